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
	appErrors "github.com/noah-isme/student-points-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	ExistsByName(ctx context.Context, name string, excludeID string) (bool, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Delete(ctx context.Context, id string) error
	Details(ctx context.Context, id string, recentLimit int) (*models.ClassDetails, error)
}

// CreateClassRequest holds payload for creating classes.
type CreateClassRequest struct {
	Name        string `json:"name" validate:"required"`
	Grade       string `json:"grade"`
	Description string `json:"description"`
}

// UpdateClassRequest holds payload for updating classes.
type UpdateClassRequest struct {
	Name        string `json:"name" validate:"required"`
	Grade       string `json:"grade"`
	Description string `json:"description"`
}

// ClassService handles class use-cases including the per-class rollup.
type ClassService struct {
	repo        classRepository
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
	recentLimit int
	detailsTTL  time.Duration
}

// NewClassService constructs the class service.
func NewClassService(repo classRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger, recentLimit int, detailsTTL time.Duration) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recentLimit <= 0 {
		recentLimit = 5
	}
	return &ClassService{repo: repo, cache: cache, validator: validate, logger: logger, recentLimit: recentLimit, detailsTTL: detailsTTL}
}

// List returns classes and pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return classes, pagination, nil
}

// Get returns a single class.
func (s *ClassService) Get(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Details returns the class rollup, served read-through from cache.
func (s *ClassService) Details(ctx context.Context, id string) (*models.ClassDetails, error) {
	key := classDetailsCacheKey(id)
	var cached models.ClassDetails
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	details, err := s.repo.Details(ctx, id, s.recentLimit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class details")
	}

	if err := s.cache.Set(ctx, key, details, s.detailsTTL); err != nil {
		s.logger.Warn("failed to cache class details", zap.String("class_id", id), zap.Error(err))
	}
	return details, nil
}

// Create registers a new class.
func (s *ClassService) Create(ctx context.Context, req CreateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	exists, err := s.repo.ExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate class name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class name already used")
	}
	class := &models.Class{
		Name:        req.Name,
		Grade:       req.Grade,
		Description: req.Description,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// Update modifies an existing class.
func (s *ClassService) Update(ctx context.Context, id string, req UpdateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	exists, err := s.repo.ExistsByName(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate class name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class name already used")
	}
	class.Name = req.Name
	class.Grade = req.Grade
	class.Description = req.Description
	if err := s.repo.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	s.invalidate(ctx, id)
	return class, nil
}

// Delete removes a class, detaching its students.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *ClassService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, classDetailsCacheKey(id)); err != nil {
		s.logger.Warn("failed to invalidate class cache", zap.String("class_id", id), zap.Error(err))
	}
}

func classDetailsCacheKey(id string) string {
	return fmt.Sprintf("class:details:%s", id)
}
