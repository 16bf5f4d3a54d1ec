package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/student-points-api/pkg/errors"
	"github.com/noah-isme/student-points-api/pkg/export"
)

// ExportFormat names a supported report format.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// ExportResult carries the rendered report plus metadata for the response
// headers.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

type documentRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// ExportService renders a student's full ledger into downloadable reports.
type ExportService struct {
	points *PointsService
	csv    documentRenderer
	pdf    documentRenderer
	logger *zap.Logger
}

// NewExportService constructs an export service.
func NewExportService(points *PointsService, csv documentRenderer, pdf documentRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{points: points, csv: csv, pdf: pdf, logger: logger}
}

var historyHeaders = []string{"Date", "Points", "Previous", "New", "Category", "Reason", "Comment", "Recorded By"}

// HistoryReport renders the full ledger of a student in the given format.
func (s *ExportService) HistoryReport(ctx context.Context, studentID string, format ExportFormat) (*ExportResult, error) {
	history, err := s.points.FullHistory(ctx, studentID)
	if err != nil {
		return nil, err
	}

	doc := export.Document{
		Title:   "Points History",
		Headers: historyHeaders,
		Rows:    make([][]string, 0, len(history)),
	}
	for _, entry := range history {
		doc.Rows = append(doc.Rows, []string{
			entry.CreatedAt.Format("2006-01-02 15:04"),
			strconv.Itoa(entry.PointsChange),
			strconv.Itoa(entry.PreviousPoints),
			strconv.Itoa(entry.NewPoints),
			string(entry.Category),
			entry.Reason,
			entry.Comment,
			entry.TeacherID,
		})
	}

	switch format {
	case FormatCSV:
		content, err := s.csv.Render(doc)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return &ExportResult{
			Content:     content,
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("points-history-%s.csv", studentID),
		}, nil
	case FormatPDF:
		content, err := s.pdf.Render(doc)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return &ExportResult{
			Content:     content,
			ContentType: "application/pdf",
			Filename:    fmt.Sprintf("points-history-%s.pdf", studentID),
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}
