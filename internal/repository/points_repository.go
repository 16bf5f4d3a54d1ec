package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/student-points-api/internal/models"
)

// PointsRepository owns the adjustment ledger: the students.points balance,
// the points_history audit trail, and the appraisals reporting table.
type PointsRepository struct {
	db *sqlx.DB
}

// NewPointsRepository constructs a PointsRepository.
func NewPointsRepository(db *sqlx.DB) *PointsRepository {
	return &PointsRepository{db: db}
}

// Adjustment is the unit of work applied to a student's balance.
type Adjustment struct {
	StudentID string
	ActorID   string
	Delta     int
	Category  models.PointsCategory
	Reason    string
	Comment   string
}

// Apply executes the adjustment atomically: it locks the student row, moves
// the balance, and appends the history and appraisal rows in one
// transaction. Concurrent adjustments to the same student serialize on the
// row lock, so the recorded previous/new pairs always chain. Any failure
// rolls back all three writes.
func (r *PointsRepository) Apply(ctx context.Context, adj Adjustment) (*models.AdjustmentResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin adjustment: %w", err)
	}

	var previous int
	if err := tx.GetContext(ctx, &previous, `SELECT points FROM students WHERE id = $1 FOR UPDATE`, adj.StudentID); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("lock student balance: %w", err)
	}

	now := time.Now().UTC()
	newPoints := previous + adj.Delta

	if _, err := tx.ExecContext(ctx, `UPDATE students SET points = $2, updated_at = $3 WHERE id = $1`, adj.StudentID, newPoints, now); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("update student balance: %w", err)
	}

	entry := models.PointsHistoryEntry{
		ID:             uuid.NewString(),
		StudentID:      adj.StudentID,
		TeacherID:      adj.ActorID,
		PointsChange:   adj.Delta,
		PreviousPoints: previous,
		NewPoints:      newPoints,
		Category:       adj.Category,
		Reason:         adj.Reason,
		Comment:        adj.Comment,
		CreatedAt:      now,
	}
	const insertHistory = `INSERT INTO points_history (id, student_id, teacher_id, points_change, previous_points, new_points, category, reason, comment, created_at)
        VALUES (:id, :student_id, :teacher_id, :points_change, :previous_points, :new_points, :category, :reason, :comment, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertHistory, entry); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("append history entry: %w", err)
	}

	appraisal := models.Appraisal{
		ID:        uuid.NewString(),
		StudentID: adj.StudentID,
		TeacherID: adj.ActorID,
		Points:    adj.Delta,
		Category:  adj.Category,
		Comment:   adj.Comment,
		CreatedAt: now,
	}
	const insertAppraisal = `INSERT INTO appraisals (id, student_id, teacher_id, points, category, comment, created_at)
        VALUES (:id, :student_id, :teacher_id, :points, :category, :comment, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertAppraisal, appraisal); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("append appraisal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit adjustment: %w", err)
	}

	return &models.AdjustmentResult{PreviousPoints: previous, NewPoints: newPoints}, nil
}

// History returns the most recent ledger entries for a student, newest
// first.
func (r *PointsRepository) History(ctx context.Context, studentID string, limit int) ([]models.PointsHistoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT id, student_id, teacher_id, points_change, previous_points, new_points, category, reason, comment, created_at
        FROM points_history WHERE student_id = $1 ORDER BY created_at DESC, id DESC LIMIT %d`, limit)
	entries := []models.PointsHistoryEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, studentID); err != nil {
		return nil, fmt.Errorf("student history: %w", err)
	}
	return entries, nil
}

// FullHistory returns every ledger entry for a student, newest first.
func (r *PointsRepository) FullHistory(ctx context.Context, studentID string) ([]models.PointsHistoryEntry, error) {
	const query = `SELECT id, student_id, teacher_id, points_change, previous_points, new_points, category, reason, comment, created_at
        FROM points_history WHERE student_id = $1 ORDER BY created_at DESC, id DESC`
	entries := []models.PointsHistoryEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, studentID); err != nil {
		return nil, fmt.Errorf("student full history: %w", err)
	}
	return entries, nil
}

// Distribution sums point changes per category, descending by total.
// Categories without entries are omitted rather than zero-filled.
func (r *PointsRepository) Distribution(ctx context.Context, studentID string) ([]models.CategoryTotal, error) {
	const query = `SELECT category, SUM(points_change) AS total
        FROM points_history WHERE student_id = $1
        GROUP BY category ORDER BY total DESC`
	totals := []models.CategoryTotal{}
	if err := r.db.SelectContext(ctx, &totals, query, studentID); err != nil {
		return nil, fmt.Errorf("points distribution: %w", err)
	}
	return totals, nil
}
