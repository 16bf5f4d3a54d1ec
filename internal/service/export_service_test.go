package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/student-points-api/internal/models"
	"github.com/noah-isme/student-points-api/pkg/export"
)

func newTestExportService(ledger *mockLedger, students *mockSummaryStudents) *ExportService {
	points := newTestPointsService(ledger, students)
	return NewExportService(points, export.NewCSVExporter(), export.NewPDFExporter(), zap.NewNop())
}

func TestExportServiceHistoryCSV(t *testing.T) {
	ledger := newMockLedger(map[string]int{"s1": 0})
	students := &mockSummaryStudents{students: map[string]models.StudentDetail{"s1": studentFixture("s1")}}
	svc := newTestExportService(ledger, students)

	points := newTestPointsService(ledger, students)
	_, err := points.Adjust(context.Background(), "s1", "t1", AdjustPointsRequest{Points: 5, Category: "Academic", Reason: "quiz"})
	require.NoError(t, err)

	result, err := svc.HistoryReport(context.Background(), "s1", FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Equal(t, "points-history-s1.csv", result.Filename)

	content := string(result.Content)
	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Previous")
	assert.Contains(t, lines[1], "Academic")
	assert.Contains(t, lines[1], "quiz")
}

func TestExportServiceHistoryPDF(t *testing.T) {
	ledger := newMockLedger(map[string]int{"s1": 0})
	students := &mockSummaryStudents{students: map[string]models.StudentDetail{"s1": studentFixture("s1")}}
	svc := newTestExportService(ledger, students)

	result, err := svc.HistoryReport(context.Background(), "s1", FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, strings.HasPrefix(string(result.Content), "%PDF"))
}

func TestExportServiceUnknownFormat(t *testing.T) {
	ledger := newMockLedger(map[string]int{"s1": 0})
	students := &mockSummaryStudents{students: map[string]models.StudentDetail{"s1": studentFixture("s1")}}
	svc := newTestExportService(ledger, students)

	_, err := svc.HistoryReport(context.Background(), "s1", ExportFormat("xlsx"))
	require.Error(t, err)
}

func TestExportServiceUnknownStudent(t *testing.T) {
	ledger := newMockLedger(map[string]int{})
	students := &mockSummaryStudents{students: map[string]models.StudentDetail{}}
	svc := newTestExportService(ledger, students)

	_, err := svc.HistoryReport(context.Background(), "missing", FormatCSV)
	require.Error(t, err)
}
