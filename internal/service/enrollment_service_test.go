package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/storage"
)

type enrollmentRepoMock struct {
	records      map[string]*models.EnrollmentRecord
	createErr    error
	updateErr    error
	created      []*models.EnrollmentRecord
	statusUpdate models.EnrollmentStatus
}

func newEnrollmentRepoMock() *enrollmentRepoMock {
	return &enrollmentRepoMock{records: map[string]*models.EnrollmentRecord{}}
}

func (m *enrollmentRepoMock) ListByUser(ctx context.Context, userID string) ([]models.EnrollmentRecord, error) {
	var out []models.EnrollmentRecord
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *enrollmentRepoMock) FindByID(ctx context.Context, id string) (*models.EnrollmentRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *r
	return &clone, nil
}

func (m *enrollmentRepoMock) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.EnrollmentRecord, error) {
	for _, r := range m.records {
		if r.UserID == userID && r.CourseID == courseID {
			clone := *r
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *enrollmentRepoMock) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var out []models.EnrollmentDetail
	for _, r := range m.records {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, models.EnrollmentDetail{EnrollmentRecord: *r, CourseTitle: "Go Fundamentals"})
	}
	return out, len(out), nil
}

func (m *enrollmentRepoMock) Create(ctx context.Context, record *models.EnrollmentRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	record.ID = "enr-new"
	record.CreatedAt = time.Now()
	m.records[record.ID] = record
	m.created = append(m.created, record)
	return nil
}

func (m *enrollmentRepoMock) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, reviewer string, note *string, reviewedAt time.Time) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.statusUpdate = status
	m.records[id].Status = status
	return nil
}

type courseLookupStub struct {
	course *models.Course
}

func (s courseLookupStub) Get(ctx context.Context, id string) (*models.Course, error) {
	if s.course == nil || s.course.ID != id {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return s.course, nil
}

type enqueuerStub struct {
	jobs []string
}

func (s *enqueuerStub) Enqueue(jobType string, payload interface{}) error {
	s.jobs = append(s.jobs, jobType)
	return nil
}

type auditRecorder struct {
	logs []*models.AuditLog
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type enrollmentFixture struct {
	svc   *EnrollmentService
	repo  *enrollmentRepoMock
	jobs  *enqueuerStub
	audit *auditRecorder
	store *storage.LocalStorage
	dir   string
}

func newEnrollmentFixture(t *testing.T) *enrollmentFixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	proofs := NewProofService(store, storage.NewSignedURLSigner("secret", time.Minute), ProofServiceConfig{}, zap.NewNop())
	repo := newEnrollmentRepoMock()
	jobs := &enqueuerStub{}
	audit := &auditRecorder{}
	course := &models.Course{ID: "course-1", Title: "Go Fundamentals", Price: 1500, Currency: "PKR", Active: true}
	svc := NewEnrollmentService(repo, courseLookupStub{course: course}, proofs, jobs, audit, NewMetricsService(), nil, zap.NewNop())
	return &enrollmentFixture{svc: svc, repo: repo, jobs: jobs, audit: audit, store: store, dir: dir}
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent, Email: "ayesha@example.com", FullName: "Ayesha Khan"}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func validCreateRequest() dto.CreateEnrollmentRequest {
	return dto.CreateEnrollmentRequest{
		CourseID:       "course-1",
		UserID:         "user-1",
		Name:           "Ayesha Khan",
		Email:          "ayesha@example.com",
		Phone:          "03001234567",
		PaymentMethod:  models.PaymentMethodJazzCash,
		Amount:         1500,
		Status:         "pending",
		PaymentDetails: `{"method":"jazzcash","sender_account":"03001234567","transaction_id":"TX123456","extra":"dropped"}`,
	}
}

func pngUpload(size int) ProofUpload {
	content := make([]byte, size)
	copy(content, "\x89PNG\r\n\x1a\n")
	return ProofUpload{Filename: "receipt.png", Size: int64(size), MimeType: "image/png", Content: bytes.NewReader(content)}
}

func TestEnrollmentServiceCreateStoresPendingRecord(t *testing.T) {
	f := newEnrollmentFixture(t)

	record, err := f.svc.Create(context.Background(), validCreateRequest(), pngUpload(2048), studentClaims())
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusPending, record.Status)
	assert.Equal(t, 1500.0, record.Amount)
	assert.Equal(t, int64(2048), record.ProofSize)
	assert.Equal(t, "image/png", record.ProofMime)
	assert.Equal(t, models.PaymentMethodJazzCash, record.PaymentDetails.Method())
	_, hasExtra := record.PaymentDetails["extra"]
	assert.False(t, hasExtra)
	assert.Equal(t, []string{JobTypeEnrollmentEvent, JobTypeEnrollmentNotify}, f.jobs.jobs)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionEnrollmentSubmit, f.audit.logs[0].Action)

	file, err := f.store.Open(record.ProofPath)
	require.NoError(t, err)
	file.Close()
}

func TestEnrollmentServiceCreateRejectsExistingRecord(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.repo.records["enr-1"] = &models.EnrollmentRecord{ID: "enr-1", UserID: "user-1", CourseID: "course-1", Status: models.EnrollmentStatusPending}

	_, err := f.svc.Create(context.Background(), validCreateRequest(), pngUpload(128), studentClaims())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Equal(t, appErrors.CodeEnrollmentDuplicate, appErr.Code)
	assert.Contains(t, appErr.Message, "already enrolled")
	assert.Contains(t, appErr.Message, "Duplicate entry 'user-1-course-1'")
	assert.Empty(t, f.repo.created)
	assert.Empty(t, f.jobs.jobs)
}

func TestEnrollmentServiceCreateMapsConstraintRace(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.repo.createErr = errors.Join(errors.New("create enrollment"), repository.ErrDuplicateEnrollment)

	_, err := f.svc.Create(context.Background(), validCreateRequest(), pngUpload(128), studentClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.CodeEnrollmentDuplicate, appErrors.FromError(err).Code)
	assert.Empty(t, f.jobs.jobs)
}

func TestEnrollmentServiceCreateValidation(t *testing.T) {
	cases := map[string]struct {
		mutate func(*dto.CreateEnrollmentRequest, *ProofUpload)
		status int
		msg    string
	}{
		"user mismatch": {
			mutate: func(r *dto.CreateEnrollmentRequest, _ *ProofUpload) { r.UserID = "someone-else" },
			status: http.StatusForbidden,
		},
		"amount differs from price": {
			mutate: func(r *dto.CreateEnrollmentRequest, _ *ProofUpload) { r.Amount = 10 },
			status: http.StatusBadRequest,
			msg:    "amount must equal",
		},
		"missing transaction id": {
			mutate: func(r *dto.CreateEnrollmentRequest, _ *ProofUpload) {
				r.PaymentDetails = `{"method":"jazzcash","sender_account":"03001234567"}`
			},
			status: http.StatusBadRequest,
			msg:    "Transaction ID is required",
		},
		"details for another method": {
			mutate: func(r *dto.CreateEnrollmentRequest, _ *ProofUpload) {
				r.PaymentDetails = `{"method":"easypaisa","sender_account":"03001234567","transaction_id":"TX123456"}`
			},
			status: http.StatusBadRequest,
			msg:    "do not match",
		},
		"unknown course": {
			mutate: func(r *dto.CreateEnrollmentRequest, _ *ProofUpload) { r.CourseID = "course-x" },
			status: http.StatusNotFound,
		},
		"status other than pending": {
			mutate: func(r *dto.CreateEnrollmentRequest, _ *ProofUpload) { r.Status = "approved" },
			status: http.StatusBadRequest,
		},
		"pdf proof": {
			mutate: func(_ *dto.CreateEnrollmentRequest, u *ProofUpload) { u.MimeType = "application/pdf" },
			status: http.StatusBadRequest,
			msg:    "image",
		},
		"missing proof": {
			mutate: func(_ *dto.CreateEnrollmentRequest, u *ProofUpload) { u.Content = nil; u.Size = 0 },
			status: http.StatusBadRequest,
			msg:    "required",
		},
		"proof too large": {
			mutate: func(_ *dto.CreateEnrollmentRequest, u *ProofUpload) { *u = pngUpload(int(DefaultMaxProofBytes) + 1) },
			status: http.StatusRequestEntityTooLarge,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newEnrollmentFixture(t)
			req := validCreateRequest()
			upload := pngUpload(256)
			tc.mutate(&req, &upload)

			_, err := f.svc.Create(context.Background(), req, upload, studentClaims())
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, tc.status, appErr.Status)
			if tc.msg != "" {
				assert.Contains(t, appErr.Message, tc.msg)
			}
			assert.Empty(t, f.repo.created)
		})
	}
}

func TestEnrollmentServiceCreateRequiresActor(t *testing.T) {
	f := newEnrollmentFixture(t)
	_, err := f.svc.Create(context.Background(), validCreateRequest(), pngUpload(64), nil)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestEnrollmentServiceListMine(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.repo.records["enr-1"] = &models.EnrollmentRecord{ID: "enr-1", UserID: "user-1", CourseID: "course-1"}
	f.repo.records["enr-2"] = &models.EnrollmentRecord{ID: "enr-2", UserID: "user-2", CourseID: "course-1"}

	records, err := f.svc.ListMine(context.Background(), studentClaims())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "enr-1", records[0].ID)
}

func TestEnrollmentServiceReview(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.repo.records["enr-1"] = &models.EnrollmentRecord{ID: "enr-1", UserID: "user-1", CourseID: "course-1", Status: models.EnrollmentStatusPending}

	record, err := f.svc.Review(context.Background(), "enr-1", dto.ReviewEnrollmentRequest{Status: models.EnrollmentStatusApproved, Note: " welcome "}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusApproved, record.Status)
	require.NotNil(t, record.ReviewNote)
	assert.Equal(t, "welcome", *record.ReviewNote)
	assert.Equal(t, "admin-1", *record.ReviewedBy)
	assert.Equal(t, []string{JobTypeEnrollmentEvent, JobTypeEnrollmentNotify}, f.jobs.jobs)

	_, err = f.svc.Review(context.Background(), "enr-1", dto.ReviewEnrollmentRequest{Status: models.EnrollmentStatusRejected}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEnrollmentReviewed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceReviewGuards(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.repo.records["enr-1"] = &models.EnrollmentRecord{ID: "enr-1", UserID: "user-1", Status: models.EnrollmentStatusPending}

	_, err := f.svc.Review(context.Background(), "enr-1", dto.ReviewEnrollmentRequest{Status: models.EnrollmentStatusApproved}, studentClaims())
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.Review(context.Background(), "enr-1", dto.ReviewEnrollmentRequest{Status: models.EnrollmentStatusPending}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)

	_, err = f.svc.Review(context.Background(), "missing", dto.ReviewEnrollmentRequest{Status: models.EnrollmentStatusApproved}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)

	f.repo.updateErr = repository.ErrEnrollmentNotPending
	_, err = f.svc.Review(context.Background(), "enr-1", dto.ReviewEnrollmentRequest{Status: models.EnrollmentStatusApproved}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, appErrors.FromError(err).Status)
}

func TestEnrollmentServiceProofURLAndDownload(t *testing.T) {
	f := newEnrollmentFixture(t)
	record, err := f.svc.Create(context.Background(), validCreateRequest(), pngUpload(512), studentClaims())
	require.NoError(t, err)

	_, err = f.svc.ProofURL(context.Background(), record.ID, &models.JWTClaims{UserID: "intruder", Role: models.RoleStudent})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	link, err := f.svc.ProofURL(context.Background(), record.ID, adminClaims())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link.URL, "/api/v1/enrollments/proofs/download?token="))

	parsed, err := url.Parse(link.URL)
	require.NoError(t, err)
	download, err := f.svc.DownloadProof(context.Background(), parsed.Query().Get("token"))
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "image/png", download.MimeType)
	assert.Equal(t, int64(512), download.SizeBytes)
}
