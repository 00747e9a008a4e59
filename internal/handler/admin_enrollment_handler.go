package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/response"
)

type enrollmentReviewService interface {
	List(ctx context.Context, query dto.EnrollmentQuery) ([]models.EnrollmentDetail, *models.Pagination, error)
	Review(ctx context.Context, id string, req dto.ReviewEnrollmentRequest, actor *models.JWTClaims) (*models.EnrollmentRecord, error)
}

type enrollmentExporter interface {
	ExportEnrollments(ctx context.Context, filter models.EnrollmentFilter, format string, actor *models.JWTClaims) (*service.ExportFile, error)
}

// AdminEnrollmentHandler serves the back-office review endpoints.
type AdminEnrollmentHandler struct {
	service  enrollmentReviewService
	exporter enrollmentExporter
}

// NewAdminEnrollmentHandler constructs the handler.
func NewAdminEnrollmentHandler(service enrollmentReviewService, exporter enrollmentExporter) *AdminEnrollmentHandler {
	return &AdminEnrollmentHandler{service: service, exporter: exporter}
}

// List godoc
// @Summary List enrollment requests
// @Tags Admin
// @Produce json
// @Param status query string false "pending, approved or rejected"
// @Param courseId query string false "Course filter"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/enrollments [get]
func (h *AdminEnrollmentHandler) List(c *gin.Context) {
	query := dto.EnrollmentQuery{
		Status:   models.EnrollmentStatus(strings.ToLower(c.Query("status"))),
		CourseID: c.Query("courseId"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "limit", 20),
	}
	details, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, pagination)
}

// Review godoc
// @Summary Approve or reject a pending request
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.ReviewEnrollmentRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/enrollments/{id}/status [patch]
func (h *AdminEnrollmentHandler) Review(c *gin.Context) {
	var req dto.ReviewEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid review payload"))
		return
	}
	req.Status = models.EnrollmentStatus(strings.ToLower(string(req.Status)))
	record, err := h.service.Review(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Export godoc
// @Summary Export enrollment requests
// @Tags Admin
// @Produce octet-stream
// @Param format query string false "csv, pdf or xlsx"
// @Param status query string false "Status filter"
// @Param courseId query string false "Course filter"
// @Success 200 {file} binary
// @Router /admin/enrollments/export [get]
func (h *AdminEnrollmentHandler) Export(c *gin.Context) {
	filter := models.EnrollmentFilter{
		Status:   models.EnrollmentStatus(strings.ToLower(c.Query("status"))),
		CourseID: c.Query("courseId"),
	}
	file, err := h.exporter.ExportEnrollments(c.Request.Context(), filter, c.DefaultQuery("format", service.ExportFormatCSV), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
