package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-points-api/internal/models"
)

func newClassMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestClassRepositoryList(t *testing.T) {
	db, mock, cleanup := newClassMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "grade", "description", "created_at", "updated_at"}).
		AddRow("c1", "7A", "7", "", time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, name, grade, description, created_at, updated_at FROM classes WHERE 1=1 ORDER BY created_at DESC LIMIT 20 OFFSET 0").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM classes WHERE 1=1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	classes, total, err := repo.List(context.Background(), models.ClassFilter{})
	require.NoError(t, err)
	assert.Len(t, classes, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newClassMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec("INSERT INTO classes").
		WithArgs(sqlmock.AnyArg(), "7A", "7", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	class := &models.Class{Name: "7A", Grade: "7"}
	require.NoError(t, repo.Create(context.Background(), class))
	assert.NotEmpty(t, class.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryDeleteDetachesStudents(t *testing.T) {
	db, mock, cleanup := newClassMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE students SET class_id = NULL").
		WithArgs("c1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM classes WHERE id = ").
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "c1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryDetails(t *testing.T) {
	db, mock, cleanup := newClassMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT id, name, grade, description, created_at, updated_at FROM classes WHERE id = ").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "grade", "description", "created_at", "updated_at"}).
			AddRow("c1", "7A", "7", "", now, now))
	mock.ExpectQuery("SELECT COUNT\\(s.id\\) AS student_count, COALESCE\\(AVG\\(s.points\\), 0\\) AS average_points").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"student_count", "average_points"}).AddRow(3, 10.0))
	classID := "c1"
	className := "7A"
	mock.ExpectQuery("WHERE s.class_id = .+ ORDER BY s.created_at DESC, s.id DESC LIMIT 5").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name", "last_name", "email", "class_id", "points", "created_at", "updated_at", "class_name"}).
			AddRow("s1", "Ada", "Lovelace", "ada@example.com", classID, 20, now, now, className))

	details, err := repo.Details(context.Background(), "c1", 5)
	require.NoError(t, err)
	assert.Equal(t, 3, details.StudentCount)
	assert.InDelta(t, 10.0, details.AveragePoints, 0.001)
	require.Len(t, details.RecentStudents, 1)
	assert.Equal(t, "s1", details.RecentStudents[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryDetailsEmptyClass(t *testing.T) {
	db, mock, cleanup := newClassMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT id, name, grade, description, created_at, updated_at FROM classes WHERE id = ").
		WithArgs("c2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "grade", "description", "created_at", "updated_at"}).
			AddRow("c2", "8B", "8", "", now, now))
	mock.ExpectQuery("SELECT COUNT\\(s.id\\) AS student_count, COALESCE\\(AVG\\(s.points\\), 0\\) AS average_points").
		WithArgs("c2").
		WillReturnRows(sqlmock.NewRows([]string{"student_count", "average_points"}).AddRow(0, 0.0))
	mock.ExpectQuery("WHERE s.class_id = .+ ORDER BY s.created_at DESC, s.id DESC LIMIT 5").
		WithArgs("c2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name", "last_name", "email", "class_id", "points", "created_at", "updated_at", "class_name"}))

	details, err := repo.Details(context.Background(), "c2", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, details.StudentCount)
	assert.Zero(t, details.AveragePoints)
	assert.Empty(t, details.RecentStudents)
	assert.NoError(t, mock.ExpectationsWereMet())
}
