package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/pkg/export"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

// Supported export formats.
const (
	ExportFormatCSV  = "csv"
	ExportFormatPDF  = "pdf"
	ExportFormatXLSX = "xlsx"
)

const exportPageSize = 100

type enrollmentLister interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type xlsxRenderer interface {
	Render(data export.Dataset, sheet string) ([]byte, error)
}

// ExportFile is a rendered report ready to be sent as an attachment.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders the enrollment review report.
type ExportService struct {
	enrollments enrollmentLister
	csv         csvRenderer
	pdf         pdfRenderer
	xlsx        xlsxRenderer
	audit       auditLogger
	logger      *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(enrollments enrollmentLister, audit auditLogger, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer, xlsx xlsxRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if xlsx == nil {
		xlsx = export.NewXLSXExporter()
	}
	return &ExportService{enrollments: enrollments, csv: csv, pdf: pdf, xlsx: xlsx, audit: audit, logger: logger}
}

// ExportEnrollments renders every request matching the filter in the requested format.
func (s *ExportService) ExportEnrollments(ctx context.Context, filter models.EnrollmentFilter, format string, actor *models.JWTClaims) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF && format != ExportFormatXLSX {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv, pdf or xlsx")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}

	rows, err := s.collect(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	dataset := buildEnrollmentDataset(rows, filter)

	var payload []byte
	var contentType string
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset)
		contentType = "application/pdf"
	case ExportFormatXLSX:
		payload, err = s.xlsx.Render(dataset, "Enrollments")
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("enrollments_%s_%s.%s", sanitizeFilename(string(filter.Status)), time.Now().UTC().Format("20060102_150405"), format)
	s.logger.Info("enrollment export generated", zap.String("format", format), zap.Int("rows", len(rows)))
	if s.audit != nil && actor != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:    &actor.UserID,
			Action:    models.AuditActionEnrollmentExport,
			Resource:  "enrollment",
			NewValues: mustJSON(map[string]interface{}{"format": format, "rows": len(rows), "status": filter.Status, "course_id": filter.CourseID}),
			IPAddress: "system",
			UserAgent: "export-service",
		}); err != nil {
			s.logger.Warn("failed to persist audit log", zap.Error(err))
		}
	}
	return &ExportFile{Filename: filename, ContentType: contentType, Data: payload}, nil
}

func (s *ExportService) collect(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	var all []models.EnrollmentDetail
	filter.PageSize = exportPageSize
	for page := 1; ; page++ {
		filter.Page = page
		rows, total, err := s.enrollments.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if len(rows) < exportPageSize || len(all) >= total {
			return all, nil
		}
	}
}

func buildEnrollmentDataset(rows []models.EnrollmentDetail, filter models.EnrollmentFilter) export.Dataset {
	title := "Enrollment Requests"
	if filter.Status != "" {
		title = fmt.Sprintf("Enrollment Requests (%s)", filter.Status)
	}
	dataset := export.Dataset{
		Title:   title,
		Headers: []string{"ID", "Submitted", "Student", "Email", "Phone", "Course", "Method", "Amount", "Status", "Reviewed By"},
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	for _, row := range rows {
		course := row.CourseTitle
		if course == "" {
			course = row.CourseID
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"ID":          row.ID,
			"Submitted":   row.CreatedAt.UTC().Format("2006-01-02 15:04"),
			"Student":     row.Name,
			"Email":       row.Email,
			"Phone":       row.Phone,
			"Course":      course,
			"Method":      string(row.PaymentMethod),
			"Amount":      strconv.FormatFloat(row.Amount, 'f', 2, 64),
			"Status":      string(row.Status),
			"Reviewed By": deref(row.ReviewedBy),
		})
	}
	return dataset
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "all"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
