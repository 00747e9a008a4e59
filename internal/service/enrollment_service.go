package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type enrollmentStore interface {
	ListByUser(ctx context.Context, userID string) ([]models.EnrollmentRecord, error)
	FindByID(ctx context.Context, id string) (*models.EnrollmentRecord, error)
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.EnrollmentRecord, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	Create(ctx context.Context, record *models.EnrollmentRecord) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, reviewer string, note *string, reviewedAt time.Time) error
}

type courseLookup interface {
	Get(ctx context.Context, id string) (*models.Course, error)
}

type proofStore interface {
	Validate(upload ProofUpload) error
	Store(ctx context.Context, upload ProofUpload) (*StoredProof, error)
	Discard(path string)
	SignedURL(recordID, path string) (string, time.Time, error)
	Open(token string) (*ProofDownload, error)
}

type jobEnqueuer interface {
	Enqueue(jobType string, payload interface{}) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// EnrollmentService implements the enrollment request lifecycle.
type EnrollmentService struct {
	repo      enrollmentStore
	courses   courseLookup
	proofs    proofStore
	jobs      jobEnqueuer
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs the service. jobs, audit and metrics are optional.
func NewEnrollmentService(repo enrollmentStore, courses courseLookup, proofs proofStore, jobs jobEnqueuer, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:      repo,
		courses:   courses,
		proofs:    proofs,
		jobs:      jobs,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// DuplicateEnrollmentError builds the conflict returned for a second request on the same course.
func DuplicateEnrollmentError(userID, courseID string) *appErrors.Error {
	return appErrors.Clone(appErrors.ErrEnrollmentDuplicate, fmt.Sprintf("%s (Duplicate entry '%s-%s' for key %s)",
		appErrors.ErrEnrollmentDuplicate.Message, userID, courseID, repository.UsersCoursesUniqueConstraint))
}

// ListMine returns every request owned by the caller.
func (s *EnrollmentService) ListMine(ctx context.Context, actor *models.JWTClaims) ([]models.EnrollmentRecord, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	records, err := s.repo.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return records, nil
}

// Get returns a request visible to the actor.
func (s *EnrollmentService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.EnrollmentRecord, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.UserID != actor.UserID && !actor.Role.IsAdmin() {
		return nil, appErrors.ErrForbidden
	}
	return record, nil
}

// Create validates and stores a new pending request with its proof of payment.
func (s *EnrollmentService) Create(ctx context.Context, req dto.CreateEnrollmentRequest, upload ProofUpload, actor *models.JWTClaims) (*models.EnrollmentRecord, error) {
	record, err := s.create(ctx, req, upload, actor)
	s.metrics.ObserveSubmission(submissionOutcome(err), req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveProof(record.ProofSize)
	return record, nil
}

func (s *EnrollmentService) create(ctx context.Context, req dto.CreateEnrollmentRequest, upload ProofUpload, actor *models.JWTClaims) (*models.EnrollmentRecord, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	normalizeCreateRequest(&req)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if req.UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "user_id does not match the authenticated user")
	}
	details, err := parsePaymentDetails(req.PaymentMethod, req.PaymentDetails)
	if err != nil {
		return nil, err
	}
	course, err := s.courses.Get(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if math.Abs(req.Amount-course.Price) > 0.005 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("amount must equal the course price %.2f", course.Price))
	}
	if err := s.proofs.Validate(upload); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByUserAndCourse(ctx, req.UserID, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if existing != nil {
		s.logger.Info("duplicate enrollment rejected", zap.String("user_id", req.UserID), zap.String("course_id", req.CourseID), zap.String("existing_status", string(existing.Status)))
		return nil, DuplicateEnrollmentError(req.UserID, req.CourseID)
	}

	stored, err := s.proofs.Store(ctx, upload)
	if err != nil {
		return nil, err
	}

	record := &models.EnrollmentRecord{
		CourseID:       req.CourseID,
		UserID:         req.UserID,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		PaymentMethod:  req.PaymentMethod,
		Amount:         course.Price,
		PaymentDetails: details,
		ProofPath:      stored.Path,
		ProofMime:      stored.MimeType,
		ProofSize:      stored.Size,
		Status:         models.EnrollmentStatusPending,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		s.proofs.Discard(stored.Path)
		if errors.Is(err, repository.ErrDuplicateEnrollment) {
			s.logger.Info("duplicate enrollment rejected by constraint", zap.String("user_id", req.UserID), zap.String("course_id", req.CourseID))
			return nil, DuplicateEnrollmentError(req.UserID, req.CourseID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.logger.Info("enrollment submitted",
		zap.String("enrollment_id", record.ID),
		zap.String("user_id", record.UserID),
		zap.String("course_id", record.CourseID),
		zap.String("payment_method", string(record.PaymentMethod)),
	)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionEnrollmentSubmit,
		Resource:   "enrollment",
		ResourceID: &record.ID,
		NewValues:  mustJSON(map[string]interface{}{"course_id": record.CourseID, "payment_method": record.PaymentMethod, "amount": record.Amount}),
	})
	s.enqueueFollowUps(models.EnrollmentEventSubmitted, record, course.Title)
	return record, nil
}

// List returns requests for back-office review.
func (s *EnrollmentService) List(ctx context.Context, query dto.EnrollmentQuery) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if query.Status != "" && !query.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	page := query.Page
	if page < 1 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	details, total, err := s.repo.List(ctx, models.EnrollmentFilter{
		Status:   query.Status,
		CourseID: query.CourseID,
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return details, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Review moves a pending request to approved or rejected. Reviewed requests are final.
func (s *EnrollmentService) Review(ctx context.Context, id string, req dto.ReviewEnrollmentRequest, actor *models.JWTClaims) (*models.EnrollmentRecord, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.IsAdmin() {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "status must be approved or rejected")
	}
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != models.EnrollmentStatusPending {
		return nil, appErrors.Clone(appErrors.ErrEnrollmentReviewed, fmt.Sprintf("enrollment already %s", record.Status))
	}

	now := time.Now().UTC()
	note := optionalString(req.Note)
	if err := s.repo.UpdateStatus(ctx, record.ID, req.Status, actor.UserID, note, now); err != nil {
		if errors.Is(err, repository.ErrEnrollmentNotPending) {
			return nil, appErrors.ErrEnrollmentReviewed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}
	previous := record.Status
	record.Status = req.Status
	record.ReviewedBy = &actor.UserID
	record.ReviewedAt = &now
	record.ReviewNote = note
	record.UpdatedAt = now

	s.metrics.ObserveReview(req.Status)
	s.logger.Info("enrollment reviewed", zap.String("enrollment_id", record.ID), zap.String("status", string(req.Status)), zap.String("reviewer", actor.UserID))
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionEnrollmentReview,
		Resource:   "enrollment",
		ResourceID: &record.ID,
		OldValues:  mustJSON(map[string]interface{}{"status": previous}),
		NewValues:  mustJSON(map[string]interface{}{"status": record.Status, "note": req.Note}),
	})
	s.enqueueFollowUps(models.EnrollmentEventReviewed, record, "")
	return record, nil
}

// ProofURL issues a signed link to the request's proof for its owner or an admin.
func (s *EnrollmentService) ProofURL(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ProofURLResponse, error) {
	record, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	url, expiresAt, err := s.proofs.SignedURL(record.ID, record.ProofPath)
	if err != nil {
		return nil, err
	}
	return &dto.ProofURLResponse{URL: url, ExpiresAt: expiresAt}, nil
}

// DownloadProof resolves a signed token into the stored proof.
func (s *EnrollmentService) DownloadProof(ctx context.Context, token string) (*ProofDownload, error) {
	if strings.TrimSpace(token) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "token is required")
	}
	download, err := s.proofs.Open(token)
	if err != nil {
		return nil, err
	}
	record, err := s.load(ctx, download.RecordID)
	if err != nil {
		download.File.Close() //nolint:errcheck
		return nil, err
	}
	if record.ProofPath != "" && download.Filename != "" && filepath.Base(record.ProofPath) != download.Filename {
		download.File.Close() //nolint:errcheck
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	download.MimeType = record.ProofMime
	s.emitAudit(ctx, &models.AuditLog{
		Action:     models.AuditActionProofDownload,
		Resource:   "enrollment",
		ResourceID: &record.ID,
	})
	return download, nil
}

func (s *EnrollmentService) load(ctx context.Context, id string) (*models.EnrollmentRecord, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return record, nil
}

func (s *EnrollmentService) enqueueFollowUps(eventType string, record *models.EnrollmentRecord, courseTitle string) {
	if s.jobs == nil {
		return
	}
	job := EnrollmentJob{
		Event: models.EnrollmentEvent{
			Type:       eventType,
			RecordID:   record.ID,
			CourseID:   record.CourseID,
			UserID:     record.UserID,
			Status:     record.Status,
			Amount:     record.Amount,
			Method:     record.PaymentMethod,
			OccurredAt: time.Now().UTC(),
		},
		Record:      *record,
		CourseTitle: courseTitle,
	}
	for _, jobType := range []string{JobTypeEnrollmentEvent, JobTypeEnrollmentNotify} {
		if err := s.jobs.Enqueue(jobType, job); err != nil {
			s.logger.Warn("failed to enqueue enrollment follow-up", zap.String("job_type", jobType), zap.String("enrollment_id", record.ID), zap.Error(err))
		}
	}
}

func (s *EnrollmentService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "enrollment-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func normalizeCreateRequest(req *dto.CreateEnrollmentRequest) {
	req.CourseID = strings.TrimSpace(req.CourseID)
	req.UserID = strings.TrimSpace(req.UserID)
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.PaymentMethod = models.PaymentMethod(strings.ToLower(strings.TrimSpace(string(req.PaymentMethod))))
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
}

func parsePaymentDetails(method models.PaymentMethod, raw string) (models.PaymentDetails, error) {
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "payment_details must be a JSON object")
	}
	details := models.PaymentDetails{}
	for key, value := range decoded {
		switch v := value.(type) {
		case string:
			details[key] = v
		case float64, bool:
			details[key] = fmt.Sprint(v)
		}
	}
	problems := details.Validate(method)
	if len(problems) > 0 {
		keys := make([]string, 0, len(problems))
		for key := range problems {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, problems[key])
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid payment details: "+strings.Join(parts, "; "))
	}
	return models.NewPaymentDetails(method, details), nil
}

func submissionOutcome(err error) string {
	if err == nil {
		return SubmissionOutcomeCreated
	}
	appErr := appErrors.FromError(err)
	switch {
	case appErr.Code == appErrors.CodeEnrollmentDuplicate:
		return SubmissionOutcomeDuplicate
	case appErr.Status < 500:
		return SubmissionOutcomeRejected
	default:
		return SubmissionOutcomeFailed
	}
}

func optionalString(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}

func mustJSON(value interface{}) []byte {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return raw
}
