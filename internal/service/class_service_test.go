package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/student-points-api/internal/models"
	appErrors "github.com/noah-isme/student-points-api/pkg/errors"
)

type mockClassRepo struct {
	classes      map[string]models.Class
	existsByName map[string]string
	students     map[string][]models.StudentDetail
	deleted      []string
}

func (m *mockClassRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	classes := make([]models.Class, 0, len(m.classes))
	for _, c := range m.classes {
		classes = append(classes, c)
	}
	return classes, len(classes), nil
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) ExistsByName(ctx context.Context, name string, excludeID string) (bool, error) {
	if id, ok := m.existsByName[name]; ok {
		if excludeID == "" || id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockClassRepo) Create(ctx context.Context, class *models.Class) error {
	if m.classes == nil {
		m.classes = make(map[string]models.Class)
	}
	if class.ID == "" {
		class.ID = "generated"
	}
	m.classes[class.ID] = *class
	return nil
}

func (m *mockClassRepo) Update(ctx context.Context, class *models.Class) error {
	m.classes[class.ID] = *class
	return nil
}

func (m *mockClassRepo) Delete(ctx context.Context, id string) error {
	delete(m.classes, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockClassRepo) Details(ctx context.Context, id string, recentLimit int) (*models.ClassDetails, error) {
	class, ok := m.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	students := m.students[id]
	var sum int
	for _, s := range students {
		sum += s.Points
	}
	avg := 0.0
	if len(students) > 0 {
		avg = float64(sum) / float64(len(students))
	}
	recent := students
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}
	return &models.ClassDetails{Class: class, StudentCount: len(students), AveragePoints: avg, RecentStudents: recent}, nil
}

func classFixture(id, name string) models.Class {
	now := time.Now()
	return models.Class{ID: id, Name: name, Grade: "7", CreatedAt: now, UpdatedAt: now}
}

func TestClassServiceCreate(t *testing.T) {
	repo := &mockClassRepo{existsByName: map[string]string{}}
	svc := NewClassService(repo, nil, validator.New(), zap.NewNop(), 5, time.Minute)

	class, err := svc.Create(context.Background(), CreateClassRequest{Name: "7A", Grade: "7"})
	require.NoError(t, err)
	assert.NotEmpty(t, class.ID)
}

func TestClassServiceCreateDuplicateName(t *testing.T) {
	repo := &mockClassRepo{existsByName: map[string]string{"7A": "other"}}
	svc := NewClassService(repo, nil, validator.New(), zap.NewNop(), 5, time.Minute)

	_, err := svc.Create(context.Background(), CreateClassRequest{Name: "7A"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestClassServiceDetailsAverage(t *testing.T) {
	repo := &mockClassRepo{
		classes: map[string]models.Class{"c1": classFixture("c1", "7A")},
		students: map[string][]models.StudentDetail{"c1": {
			{Student: models.Student{ID: "s1", Points: 10}},
			{Student: models.Student{ID: "s2", Points: 20}},
			{Student: models.Student{ID: "s3", Points: 0}},
		}},
	}
	svc := NewClassService(repo, nil, validator.New(), zap.NewNop(), 5, time.Minute)

	details, err := svc.Details(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, details.StudentCount)
	assert.InDelta(t, 10.0, details.AveragePoints, 0.001)
	assert.Len(t, details.RecentStudents, 3)
}

func TestClassServiceDetailsEmptyClass(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]models.Class{"c1": classFixture("c1", "7A")}}
	svc := NewClassService(repo, nil, validator.New(), zap.NewNop(), 5, time.Minute)

	details, err := svc.Details(context.Background(), "c1")
	require.NoError(t, err)
	assert.Zero(t, details.StudentCount)
	assert.Zero(t, details.AveragePoints)
	assert.Empty(t, details.RecentStudents)
}

func TestClassServiceDetailsNotFound(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]models.Class{}}
	svc := NewClassService(repo, nil, validator.New(), zap.NewNop(), 5, time.Minute)

	_, err := svc.Details(context.Background(), "missing")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestClassServiceUpdate(t *testing.T) {
	repo := &mockClassRepo{
		classes:      map[string]models.Class{"c1": classFixture("c1", "7A")},
		existsByName: map[string]string{"7A": "c1"},
	}
	svc := NewClassService(repo, nil, validator.New(), zap.NewNop(), 5, time.Minute)

	updated, err := svc.Update(context.Background(), "c1", UpdateClassRequest{Name: "7B", Grade: "7"})
	require.NoError(t, err)
	assert.Equal(t, "7B", updated.Name)
}

func TestClassServiceDelete(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]models.Class{"c1": classFixture("c1", "7A")}}
	svc := NewClassService(repo, nil, validator.New(), zap.NewNop(), 5, time.Minute)

	require.NoError(t, svc.Delete(context.Background(), "c1"))
	assert.Equal(t, []string{"c1"}, repo.deleted)

	err := svc.Delete(context.Background(), "c1")
	require.Error(t, err)
}
