package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-points-api/internal/service"
	appErrors "github.com/noah-isme/student-points-api/pkg/errors"
	"github.com/noah-isme/student-points-api/pkg/response"
)

// PointsHandler exposes the adjustment and summary endpoints.
type PointsHandler struct {
	service *service.PointsService
}

// NewPointsHandler constructs a points handler.
func NewPointsHandler(svc *service.PointsService) *PointsHandler {
	return &PointsHandler{service: svc}
}

// Adjust godoc
// @Summary Adjust student points
// @Description Applies a signed point change, recording history and appraisal atomically
// @Tags Points
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.AdjustPointsRequest true "Adjustment payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/points [post]
func (h *PointsHandler) Adjust(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.AdjustPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid adjustment payload"))
		return
	}

	result, err := h.service.Adjust(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Summary godoc
// @Summary Get student summary
// @Description Student detail with recent history and category distribution
// @Tags Points
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/summary [get]
func (h *PointsHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
