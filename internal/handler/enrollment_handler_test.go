package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/middleware"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type enrollmentServiceMock struct {
	gotReq     dto.CreateEnrollmentRequest
	gotUpload  service.ProofUpload
	gotContent []byte
	createErr  error
	records    []models.EnrollmentRecord
	download   *service.ProofDownload
}

func (m *enrollmentServiceMock) ListMine(ctx context.Context, actor *models.JWTClaims) ([]models.EnrollmentRecord, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	return m.records, nil
}

func (m *enrollmentServiceMock) Create(ctx context.Context, req dto.CreateEnrollmentRequest, upload service.ProofUpload, actor *models.JWTClaims) (*models.EnrollmentRecord, error) {
	m.gotReq = req
	m.gotUpload = upload
	if upload.Content != nil {
		m.gotContent, _ = io.ReadAll(upload.Content)
	}
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &models.EnrollmentRecord{ID: "enr-1", CourseID: req.CourseID, UserID: req.UserID, Status: models.EnrollmentStatusPending}, nil
}

func (m *enrollmentServiceMock) ProofURL(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ProofURLResponse, error) {
	return &dto.ProofURLResponse{URL: "/api/v1/enrollments/proofs/download?token=abc"}, nil
}

func (m *enrollmentServiceMock) DownloadProof(ctx context.Context, token string) (*service.ProofDownload, error) {
	if m.download == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	return m.download, nil
}

func multipartEnrollment(t *testing.T, withProof bool) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fields := map[string]string{
		"course_id":       "course-1",
		"user_id":         "user-1",
		"name":            "Ayesha Khan",
		"email":           "ayesha@example.com",
		"phone":           "03001234567",
		"payment_method":  "jazzcash",
		"amount":          "1500",
		"status":          "pending",
		"payment_details": `{"method":"jazzcash","sender_account":"03001234567","transaction_id":"TX123456"}`,
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if withProof {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="proof"; filename="receipt.png"`)
		header.Set("Content-Type", "image/png")
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write([]byte("\x89PNG\r\n\x1a\nfake"))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func newEnrollmentContext(t *testing.T, method, target string, body io.Reader, contentType string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, target, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent})
	return c, w
}

func TestEnrollmentHandlerCreateBindsMultipart(t *testing.T) {
	svc := &enrollmentServiceMock{}
	handler := NewEnrollmentHandler(svc, 0)
	body, contentType := multipartEnrollment(t, true)
	c, w := newEnrollmentContext(t, http.MethodPost, "/enrollments", body, contentType)

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.PaymentMethodJazzCash, svc.gotReq.PaymentMethod)
	assert.Equal(t, 1500.0, svc.gotReq.Amount)
	assert.Equal(t, "pending", svc.gotReq.Status)
	assert.Equal(t, "image/png", svc.gotUpload.MimeType)
	assert.Equal(t, "receipt.png", svc.gotUpload.Filename)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\nfake"), svc.gotContent)

	var envelope struct {
		Data models.EnrollmentRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "enr-1", envelope.Data.ID)
}

func TestEnrollmentHandlerCreateWithoutProofDelegatesValidation(t *testing.T) {
	svc := &enrollmentServiceMock{createErr: appErrors.Clone(appErrors.ErrValidation, "proof of payment is required")}
	handler := NewEnrollmentHandler(svc, 0)
	body, contentType := multipartEnrollment(t, false)
	c, w := newEnrollmentContext(t, http.MethodPost, "/enrollments", body, contentType)

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, svc.gotUpload.Content)
}

func TestEnrollmentHandlerCreateRendersDuplicateConflict(t *testing.T) {
	svc := &enrollmentServiceMock{createErr: service.DuplicateEnrollmentError("user-1", "course-1")}
	handler := NewEnrollmentHandler(svc, 0)
	body, contentType := multipartEnrollment(t, true)
	c, w := newEnrollmentContext(t, http.MethodPost, "/enrollments", body, contentType)

	handler.Create(c)
	require.Equal(t, http.StatusConflict, w.Code)
	var envelope struct {
		Error appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, appErrors.CodeEnrollmentDuplicate, envelope.Error.Code)
	assert.Contains(t, envelope.Error.Message, "Duplicate entry")
}

func TestEnrollmentHandlerCreateRejectsOversizedBody(t *testing.T) {
	svc := &enrollmentServiceMock{}
	handler := NewEnrollmentHandler(svc, 16)
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("proof", "huge.png")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("x"), (1<<20)+64))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	c, w := newEnrollmentContext(t, http.MethodPost, "/enrollments", body, writer.FormDataContentType())

	handler.Create(c)
	assert.GreaterOrEqual(t, w.Code, 400)
	assert.Empty(t, svc.gotReq.CourseID)
}

func TestEnrollmentHandlerListMine(t *testing.T) {
	svc := &enrollmentServiceMock{records: []models.EnrollmentRecord{{ID: "enr-1", CourseID: "course-1", Status: models.EnrollmentStatusApproved}}}
	handler := NewEnrollmentHandler(svc, 0)
	c, w := newEnrollmentContext(t, http.MethodGet, "/enrollments/me", nil, "")

	handler.ListMine(c)
	require.Equal(t, http.StatusOK, w.Code)
	var envelope struct {
		Data []models.EnrollmentRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, models.EnrollmentStatusApproved, envelope.Data[0].Status)
}

func TestEnrollmentHandlerDownloadProof(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proof.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)
	svc := &enrollmentServiceMock{download: &service.ProofDownload{File: file, Filename: "proof.png", MimeType: "image/png", SizeBytes: 9}}
	handler := NewEnrollmentHandler(svc, 0)
	c, w := newEnrollmentContext(t, http.MethodGet, "/enrollments/proofs/download?token=abc", nil, "")

	handler.DownloadProof(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "png-bytes", w.Body.String())
}
