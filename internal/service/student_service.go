package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/student-points-api/internal/models"
	appErrors "github.com/noah-isme/student-points-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	BulkCreate(ctx context.Context, students []models.Student, actorID string) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

// CreateStudentRequest holds payload for creating students.
type CreateStudentRequest struct {
	FirstName string  `json:"first_name" validate:"required"`
	LastName  string  `json:"last_name" validate:"required"`
	Email     string  `json:"email" validate:"required,email"`
	ClassID   *string `json:"class_id"`
}

// UpdateStudentRequest holds payload for updating students. The balance is
// not updatable here; only the adjustment operation moves it.
type UpdateStudentRequest struct {
	FirstName string  `json:"first_name" validate:"required"`
	LastName  string  `json:"last_name" validate:"required"`
	Email     string  `json:"email" validate:"required,email"`
	ClassID   *string `json:"class_id"`
}

// BulkCreateStudentsRequest enrolls several students into one class, each
// with an optional starting balance.
type BulkCreateStudentsRequest struct {
	Students []BulkStudentEntry `json:"students" validate:"required,min=1,dive"`
}

// BulkStudentEntry is one student in a bulk enrollment.
type BulkStudentEntry struct {
	FirstName     string `json:"first_name" validate:"required"`
	LastName      string `json:"last_name" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	InitialPoints int    `json:"initial_points"`
}

// StudentService handles student directory use-cases.
type StudentService struct {
	repo      studentRepository
	classes   classRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, classes classRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, classes: classes, cache: cache, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
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
	return students, pagination, nil
}

// Get returns detailed student information.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new student.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if req.ClassID != nil {
		if err := s.ensureClassExists(ctx, *req.ClassID); err != nil {
			return nil, err
		}
	}
	exists, err := s.repo.ExistsByEmail(ctx, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already used")
	}
	student := &models.Student{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		ClassID:   req.ClassID,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.invalidateClass(ctx, req.ClassID)
	return student, nil
}

// BulkCreate enrolls students into a class with optional starting balances.
// Starting balances are seeded through the ledger so the balance invariant
// holds from the first row.
func (s *StudentService) BulkCreate(ctx context.Context, classID string, req BulkCreateStudentsRequest, actorID string) ([]models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk enrollment payload")
	}
	if actorID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing actor identity")
	}
	if err := s.ensureClassExists(ctx, classID); err != nil {
		return nil, err
	}

	students := make([]models.Student, 0, len(req.Students))
	for _, entry := range req.Students {
		cid := classID
		students = append(students, models.Student{
			FirstName: entry.FirstName,
			LastName:  entry.LastName,
			Email:     entry.Email,
			ClassID:   &cid,
			Points:    entry.InitialPoints,
		})
	}
	if err := s.repo.BulkCreate(ctx, students, actorID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll students")
	}
	s.invalidateClass(ctx, &classID)
	return students, nil
}

// Update modifies an existing student record.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if req.ClassID != nil {
		if err := s.ensureClassExists(ctx, *req.ClassID); err != nil {
			return nil, err
		}
	}
	exists, err := s.repo.ExistsByEmail(ctx, req.Email, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already used")
	}
	previousClass := detail.ClassID
	student := detail.Student
	student.FirstName = req.FirstName
	student.LastName = req.LastName
	student.Email = req.Email
	student.ClassID = req.ClassID
	if err := s.repo.Update(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	s.invalidateClass(ctx, previousClass)
	s.invalidateClass(ctx, req.ClassID)
	return &student, nil
}

// Delete removes a student and its ledger rows.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.invalidateClass(ctx, detail.ClassID)
	if err := s.cache.Invalidate(ctx, studentSummaryCacheKey(id)); err != nil {
		s.logger.Warn("failed to invalidate student summary cache", zap.String("student_id", id), zap.Error(err))
	}
	return nil
}

func (s *StudentService) ensureClassExists(ctx context.Context, classID string) error {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return nil
}

func (s *StudentService) invalidateClass(ctx context.Context, classID *string) {
	if classID == nil || *classID == "" {
		return
	}
	if err := s.cache.Invalidate(ctx, classDetailsCacheKey(*classID)); err != nil {
		s.logger.Warn("failed to invalidate class cache", zap.String("class_id", *classID), zap.Error(err))
	}
}
