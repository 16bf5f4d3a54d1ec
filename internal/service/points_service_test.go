package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/student-points-api/internal/models"
	"github.com/noah-isme/student-points-api/internal/repository"
	appErrors "github.com/noah-isme/student-points-api/pkg/errors"
)

// mockLedger serializes Apply calls the way the row lock does in Postgres,
// so concurrent adjustments see chained previous/new pairs.
type mockLedger struct {
	mu       sync.Mutex
	balances map[string]int
	history  []models.PointsHistoryEntry
	applyErr error
}

func newMockLedger(balances map[string]int) *mockLedger {
	return &mockLedger{balances: balances}
}

func (m *mockLedger) Apply(ctx context.Context, adj repository.Adjustment) (*models.AdjustmentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	previous, ok := m.balances[adj.StudentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	next := previous + adj.Delta
	m.balances[adj.StudentID] = next
	m.history = append(m.history, models.PointsHistoryEntry{
		StudentID:      adj.StudentID,
		TeacherID:      adj.ActorID,
		PointsChange:   adj.Delta,
		PreviousPoints: previous,
		NewPoints:      next,
		Category:       adj.Category,
		Reason:         adj.Reason,
		CreatedAt:      time.Now(),
	})
	return &models.AdjustmentResult{PreviousPoints: previous, NewPoints: next}, nil
}

func (m *mockLedger) History(ctx context.Context, studentID string, limit int) ([]models.PointsHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []models.PointsHistoryEntry
	for i := len(m.history) - 1; i >= 0 && len(entries) < limit; i-- {
		if m.history[i].StudentID == studentID {
			entries = append(entries, m.history[i])
		}
	}
	return entries, nil
}

func (m *mockLedger) FullHistory(ctx context.Context, studentID string) ([]models.PointsHistoryEntry, error) {
	return m.History(ctx, studentID, len(m.history)+1)
}

func (m *mockLedger) Distribution(ctx context.Context, studentID string) ([]models.CategoryTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	totals := map[models.PointsCategory]int{}
	for _, entry := range m.history {
		if entry.StudentID == studentID {
			totals[entry.Category] += entry.PointsChange
		}
	}
	var result []models.CategoryTotal
	for category, total := range totals {
		result = append(result, models.CategoryTotal{Category: category, Total: total})
	}
	return result, nil
}

type mockSummaryStudents struct {
	students map[string]models.StudentDetail
}

func (m *mockSummaryStudents) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if detail, ok := m.students[id]; ok {
		return &detail, nil
	}
	return nil, sql.ErrNoRows
}

func newTestPointsService(ledger *mockLedger, students *mockSummaryStudents) *PointsService {
	return NewPointsService(ledger, students, nil, nil, validator.New(), zap.NewNop(), PointsConfig{MaxDelta: 1000, HistoryLimit: 10})
}

func studentFixture(id string) models.StudentDetail {
	return models.StudentDetail{Student: models.Student{ID: id, FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}}
}

func TestPointsServiceAdjust(t *testing.T) {
	ledger := newMockLedger(map[string]int{"s1": 10})
	students := &mockSummaryStudents{students: map[string]models.StudentDetail{"s1": studentFixture("s1")}}
	svc := newTestPointsService(ledger, students)

	result, err := svc.Adjust(context.Background(), "s1", "t1", AdjustPointsRequest{Points: 5, Category: "Academic", Reason: "quiz"})
	require.NoError(t, err)
	assert.Equal(t, 10, result.PreviousPoints)
	assert.Equal(t, 15, result.NewPoints)
	assert.Equal(t, 15, ledger.balances["s1"])
	require.Len(t, ledger.history, 1)
	assert.Equal(t, "t1", ledger.history[0].TeacherID)
}

func TestPointsServiceAdjustZeroDelta(t *testing.T) {
	ledger := newMockLedger(map[string]int{"s1": 10})
	students := &mockSummaryStudents{students: map[string]models.StudentDetail{"s1": studentFixture("s1")}}
	svc := newTestPointsService(ledger, students)

	_, err := svc.Adjust(context.Background(), "s1", "t1", AdjustPointsRequest{Points: 0, Category: "Academic", Reason: "quiz"})
	require.Error(t, err)
	assert.Empty(t, ledger.history)
}

func TestPointsServiceAdjustUnknownCategory(t *testing.T) {
	ledger := newMockLedger(map[string]int{"s1": 10})
	students := &mockSummaryStudents{students: map[string]models.StudentDetail{"s1": studentFixture("s1")}}
	svc := newTestPointsService(ledger, students)

	_, err := svc.Adjust(context.Background(), "s1", "t1", AdjustPointsRequest{Points: 5, Category: "Attitude", Reason: "quiz"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Empty(t, ledger.history)
}

func TestPointsServiceAdjustMissingReason(t *testing.T) {
	ledger := newMockLedger(map[string]int{"s1": 10})
	students := &mockSummaryStudents{students: map[string]models.StudentDetail{"s1": studentFixture("s1")}}
	svc := newTestPointsService(ledger, students)

	_, err := svc.Adjust(context.Background(), "s1", "t1", AdjustPointsRequest{Points: 5, Category: "Academic"})
	require.Error(t, err)
	assert.Empty(t, ledger.history)
}

func TestPointsServiceAdjustStudentNotFound(t *testing.T) {
	ledger := newMockLedger(map[string]int{})
	students := &mockSummaryStudents{students: map[string]models.StudentDetail{}}
	svc := newTestPointsService(ledger, students)

	_, err := svc.Adjust(context.Background(), "missing", "t1", AdjustPointsRequest{Points: 5, Category: "Academic", Reason: "quiz"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestPointsServiceAdjustMissingActor(t *testing.T) {
	ledger := newMockLedger(map[string]int{"s1": 10})
	students := &mockSummaryStudents{students: map[string]models.StudentDetail{"s1": studentFixture("s1")}}
	svc := newTestPointsService(ledger, students)

	_, err := svc.Adjust(context.Background(), "s1", "", AdjustPointsRequest{Points: 5, Category: "Academic", Reason: "quiz"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestPointsServiceAdjustExceedsMaxDelta(t *testing.T) {
	ledger := newMockLedger(map[string]int{"s1": 10})
	students := &mockSummaryStudents{students: map[string]models.StudentDetail{"s1": studentFixture("s1")}}
	svc := NewPointsService(ledger, students, nil, nil, validator.New(), zap.NewNop(), PointsConfig{MaxDelta: 50, HistoryLimit: 10})

	_, err := svc.Adjust(context.Background(), "s1", "t1", AdjustPointsRequest{Points: 51, Category: "Academic", Reason: "quiz"})
	require.Error(t, err)

	_, err = svc.Adjust(context.Background(), "s1", "t1", AdjustPointsRequest{Points: -51, Category: "Academic", Reason: "quiz"})
	require.Error(t, err)
	assert.Empty(t, ledger.history)
}

func TestPointsServiceConcurrentAdjustments(t *testing.T) {
	ledger := newMockLedger(map[string]int{"s1": 100})
	students := &mockSummaryStudents{students: map[string]models.StudentDetail{"s1": studentFixture("s1")}}
	svc := newTestPointsService(ledger, students)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.Adjust(context.Background(), "s1", "t1", AdjustPointsRequest{Points: 5, Category: "Academic", Reason: "quiz"})
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := svc.Adjust(context.Background(), "s1", "t2", AdjustPointsRequest{Points: -3, Category: "Behavior", Reason: "late"})
		assert.NoError(t, err)
	}()
	wg.Wait()

	assert.Equal(t, 102, ledger.balances["s1"])
	require.Len(t, ledger.history, 2)
	// regardless of scheduling, the entries chain: each previous matches the
	// other's new
	first, second := ledger.history[0], ledger.history[1]
	assert.Equal(t, 100, first.PreviousPoints)
	assert.Equal(t, first.NewPoints, second.PreviousPoints)
	assert.Equal(t, 102, second.NewPoints)
}

func TestPointsServiceSummary(t *testing.T) {
	ledger := newMockLedger(map[string]int{"s1": 10})
	students := &mockSummaryStudents{students: map[string]models.StudentDetail{"s1": studentFixture("s1")}}
	svc := newTestPointsService(ledger, students)

	_, err := svc.Adjust(context.Background(), "s1", "t1", AdjustPointsRequest{Points: 5, Category: "Academic", Reason: "quiz"})
	require.NoError(t, err)
	_, err = svc.Adjust(context.Background(), "s1", "t1", AdjustPointsRequest{Points: -3, Category: "Behavior", Reason: "late"})
	require.NoError(t, err)

	summary, err := svc.Summary(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", summary.Student.ID)
	require.Len(t, summary.History, 2)
	assert.Equal(t, -3, summary.History[0].PointsChange)
	assert.Len(t, summary.Distribution, 2)
}

func TestPointsServiceSummaryHistoryWindow(t *testing.T) {
	ledger := newMockLedger(map[string]int{"s1": 0})
	students := &mockSummaryStudents{students: map[string]models.StudentDetail{"s1": studentFixture("s1")}}
	svc := newTestPointsService(ledger, students)

	for i := 0; i < 12; i++ {
		_, err := svc.Adjust(context.Background(), "s1", "t1", AdjustPointsRequest{Points: 1, Category: "Academic", Reason: "drill"})
		require.NoError(t, err)
	}

	summary, err := svc.Summary(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, summary.History, 10)
}

func TestPointsServiceSummaryNotFound(t *testing.T) {
	ledger := newMockLedger(map[string]int{})
	students := &mockSummaryStudents{students: map[string]models.StudentDetail{}}
	svc := newTestPointsService(ledger, students)

	_, err := svc.Summary(context.Background(), "missing")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestPointsServiceFullHistoryNotFound(t *testing.T) {
	ledger := newMockLedger(map[string]int{})
	students := &mockSummaryStudents{students: map[string]models.StudentDetail{}}
	svc := newTestPointsService(ledger, students)

	_, err := svc.FullHistory(context.Background(), "missing")
	require.Error(t, err)
}
