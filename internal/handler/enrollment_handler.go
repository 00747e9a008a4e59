package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/response"
)

const multipartOverhead = 1 << 20

type enrollmentService interface {
	ListMine(ctx context.Context, actor *models.JWTClaims) ([]models.EnrollmentRecord, error)
	Create(ctx context.Context, req dto.CreateEnrollmentRequest, upload service.ProofUpload, actor *models.JWTClaims) (*models.EnrollmentRecord, error)
	ProofURL(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ProofURLResponse, error)
	DownloadProof(ctx context.Context, token string) (*service.ProofDownload, error)
}

// EnrollmentHandler manages the student-facing enrollment endpoints.
type EnrollmentHandler struct {
	service      enrollmentService
	maxProofSize int64
}

// NewEnrollmentHandler constructs the handler.
func NewEnrollmentHandler(service enrollmentService, maxProofSize int64) *EnrollmentHandler {
	if maxProofSize <= 0 {
		maxProofSize = 5 * 1024 * 1024
	}
	return &EnrollmentHandler{service: service, maxProofSize: maxProofSize}
}

// ListMine godoc
// @Summary List my enrollment requests
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollments/me [get]
func (h *EnrollmentHandler) ListMine(c *gin.Context) {
	records, err := h.service.ListMine(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Create godoc
// @Summary Submit an enrollment request
// @Tags Enrollments
// @Accept multipart/form-data
// @Produce json
// @Param course_id formData string true "Course ID"
// @Param user_id formData string true "User ID"
// @Param name formData string true "Full name"
// @Param email formData string true "Email"
// @Param phone formData string false "Phone"
// @Param payment_method formData string true "jazzcash, easypaisa, card or bank"
// @Param amount formData number true "Course price"
// @Param status formData string false "Always pending"
// @Param payment_details formData string true "JSON object tagged with method"
// @Param proof formData file true "Proof of payment image"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxProofSize+multipartOverhead)

	var req dto.CreateEnrollmentRequest
	if err := c.ShouldBind(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.Clone(appErrors.ErrPayloadTooLarge, "proof exceeds "+strconv.FormatInt(h.maxProofSize, 10)+" bytes limit"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload"))
		return
	}

	upload := service.ProofUpload{}
	fileHeader, err := c.FormFile("proof")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid proof upload"))
		return
	}
	var src multipart.File
	if fileHeader != nil {
		src, err = fileHeader.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open proof"))
			return
		}
		defer src.Close()
		upload = service.ProofUpload{
			Filename: fileHeader.Filename,
			Size:     fileHeader.Size,
			MimeType: fileHeader.Header.Get("Content-Type"),
			Content:  src,
		}
	}

	record, err := h.service.Create(c.Request.Context(), req, upload, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// ProofURL godoc
// @Summary Get a signed link to the proof of payment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/proof-url [get]
func (h *EnrollmentHandler) ProofURL(c *gin.Context) {
	link, err := h.service.ProofURL(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// DownloadProof godoc
// @Summary Download a proof of payment through a signed token
// @Tags Enrollments
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /enrollments/proofs/download [get]
func (h *EnrollmentHandler) DownloadProof(c *gin.Context) {
	download, err := h.service.DownloadProof(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()
	c.Header("Cache-Control", "private, no-store")
	c.DataFromReader(http.StatusOK, download.SizeBytes, download.MimeType, download.File, map[string]string{
		"Content-Disposition": "inline; filename=\"" + download.Filename + "\"",
	})
}
