package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/student-points-api/internal/models"
	"github.com/noah-isme/student-points-api/internal/repository"
	appErrors "github.com/noah-isme/student-points-api/pkg/errors"
)

type pointsRepository interface {
	Apply(ctx context.Context, adj repository.Adjustment) (*models.AdjustmentResult, error)
	History(ctx context.Context, studentID string, limit int) ([]models.PointsHistoryEntry, error)
	FullHistory(ctx context.Context, studentID string) ([]models.PointsHistoryEntry, error)
	Distribution(ctx context.Context, studentID string) ([]models.CategoryTotal, error)
}

type summaryStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

// AdjustPointsRequest is the payload for a point adjustment.
type AdjustPointsRequest struct {
	Points   int    `json:"points" validate:"required"`
	Category string `json:"category" validate:"required"`
	Reason   string `json:"reason" validate:"required"`
	Comment  string `json:"comment"`
}

// PointsService owns the adjustment and summary use-cases.
type PointsService struct {
	repo         pointsRepository
	students     summaryStudentRepository
	cache        *CacheService
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	maxDelta     int
	historyLimit int
	summaryTTL   time.Duration
}

// PointsConfig carries tunables for the points service.
type PointsConfig struct {
	MaxDelta     int
	HistoryLimit int
	SummaryTTL   time.Duration
}

// NewPointsService constructs the points service.
func NewPointsService(repo pointsRepository, students summaryStudentRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg PointsConfig) *PointsService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	return &PointsService{
		repo:         repo,
		students:     students,
		cache:        cache,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		maxDelta:     cfg.MaxDelta,
		historyLimit: cfg.HistoryLimit,
		summaryTTL:   cfg.SummaryTTL,
	}
}

// Adjust applies a signed point change to a student and records it. The
// repository performs the balance move and the audit writes in one
// transaction; this layer validates the request, attributes the actor, and
// keeps caches and metrics in step with committed adjustments.
func (s *PointsService) Adjust(ctx context.Context, studentID string, actorID string, req AdjustPointsRequest) (*models.AdjustmentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid adjustment payload")
	}
	if req.Points == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "points must be non-zero")
	}
	if s.maxDelta > 0 && (req.Points > s.maxDelta || req.Points < -s.maxDelta) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("points must be within ±%d", s.maxDelta))
	}
	category := models.PointsCategory(req.Category)
	if !category.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown points category")
	}
	if actorID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing actor identity")
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	result, err := s.repo.Apply(ctx, repository.Adjustment{
		StudentID: studentID,
		ActorID:   actorID,
		Delta:     req.Points,
		Category:  category,
		Reason:    req.Reason,
		Comment:   req.Comment,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply adjustment")
	}

	s.metrics.RecordAdjustment(req.Category, req.Points)
	s.invalidateSummary(ctx, studentID)
	if student.ClassID != nil && *student.ClassID != "" {
		if err := s.cache.Invalidate(ctx, classDetailsCacheKey(*student.ClassID)); err != nil {
			s.logger.Warn("failed to invalidate class cache", zap.String("class_id", *student.ClassID), zap.Error(err))
		}
	}

	s.logger.Info("points adjusted",
		zap.String("student_id", studentID),
		zap.String("actor_id", actorID),
		zap.Int("points", req.Points),
		zap.String("category", req.Category),
		zap.Int("previous_points", result.PreviousPoints),
		zap.Int("new_points", result.NewPoints),
	)
	return result, nil
}

// Summary returns the student with recent ledger activity and the category
// distribution, served read-through from cache.
func (s *PointsService) Summary(ctx context.Context, studentID string) (*models.StudentSummary, error) {
	key := studentSummaryCacheKey(studentID)
	var cached models.StudentSummary
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	history, err := s.repo.History(ctx, studentID, s.historyLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}

	distribution, err := s.repo.Distribution(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load distribution")
	}

	summary := &models.StudentSummary{
		Student:      *student,
		History:      history,
		Distribution: distribution,
	}
	if err := s.cache.Set(ctx, key, summary, s.summaryTTL); err != nil {
		s.logger.Warn("failed to cache student summary", zap.String("student_id", studentID), zap.Error(err))
	}
	return summary, nil
}

// FullHistory returns every ledger entry for a student, newest first. The
// export endpoint uses it so a report covers the whole ledger, not just the
// summary window.
func (s *PointsService) FullHistory(ctx context.Context, studentID string) ([]models.PointsHistoryEntry, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	history, err := s.repo.FullHistory(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}
	return history, nil
}

func (s *PointsService) invalidateSummary(ctx context.Context, studentID string) {
	if err := s.cache.Invalidate(ctx, studentSummaryCacheKey(studentID)); err != nil {
		s.logger.Warn("failed to invalidate student summary cache", zap.String("student_id", studentID), zap.Error(err))
	}
}

func studentSummaryCacheKey(id string) string {
	return fmt.Sprintf("student:summary:%s", id)
}
