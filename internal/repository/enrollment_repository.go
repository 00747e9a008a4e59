package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

// UsersCoursesUniqueConstraint guards one request per user and course.
const UsersCoursesUniqueConstraint = "users_courses_unique"

const pqUniqueViolation = "23505"

var (
	// ErrDuplicateEnrollment is returned when users_courses_unique rejects an insert.
	ErrDuplicateEnrollment = errors.New("duplicate enrollment request")
	// ErrEnrollmentNotPending is returned when a review targets an already reviewed request.
	ErrEnrollmentNotPending = errors.New("enrollment request is not pending")
)

const enrollmentColumns = `e.id, e.course_id, e.user_id, e.name, e.email, e.phone, e.payment_method, e.amount,
        e.payment_details, e.proof_path, e.proof_mime, e.proof_size, e.status, e.reviewed_by, e.reviewed_at,
        e.review_note, e.created_at, e.updated_at`

// EnrollmentRepository handles persistence of enrollment requests.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListByUser returns every request owned by the user, newest first.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string) ([]models.EnrollmentRecord, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollment_requests e WHERE e.user_id = $1 ORDER BY e.created_at DESC`
	records := make([]models.EnrollmentRecord, 0)
	if err := r.db.SelectContext(ctx, &records, query, userID); err != nil {
		return nil, fmt.Errorf("list user enrollments: %w", err)
	}
	return records, nil
}

// FindByID returns a request by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentRecord, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollment_requests e WHERE e.id = $1`
	var record models.EnrollmentRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByUserAndCourse returns the user's request for a course, or nil when none exists.
func (r *EnrollmentRepository) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.EnrollmentRecord, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollment_requests e WHERE e.user_id = $1 AND e.course_id = $2 LIMIT 1`
	var record models.EnrollmentRecord
	if err := r.db.GetContext(ctx, &record, query, userID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find enrollment by user and course: %w", err)
	}
	return &record, nil
}

// List returns requests for back-office review with course titles.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollment_requests e
LEFT JOIN courses c ON c.id = e.course_id`
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("e.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s, COALESCE(c.title, '') AS course_title
        %s ORDER BY e.created_at %s LIMIT %d OFFSET %d`, enrollmentColumns, base+clause, order, size, offset)

	details := make([]models.EnrollmentDetail, 0)
	if err := r.db.SelectContext(ctx, &details, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return details, total, nil
}

// Create persists a new pending request.
func (r *EnrollmentRepository) Create(ctx context.Context, record *models.EnrollmentRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = record.CreatedAt
	if record.Status == "" {
		record.Status = models.EnrollmentStatusPending
	}
	if record.PaymentDetails == nil {
		record.PaymentDetails = models.PaymentDetails{}
	}
	const query = `INSERT INTO enrollment_requests (id, course_id, user_id, name, email, phone, payment_method, amount,
        payment_details, proof_path, proof_mime, proof_size, status, created_at, updated_at)
        VALUES (:id, :course_id, :user_id, :name, :email, :phone, :payment_method, :amount,
        :payment_details, :proof_path, :proof_mime, :proof_size, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		if isUniqueViolation(err, UsersCoursesUniqueConstraint) {
			return fmt.Errorf("create enrollment: %w", ErrDuplicateEnrollment)
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus moves a pending request to its reviewed status.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, reviewer string, note *string, reviewedAt time.Time) error {
	const query = `UPDATE enrollment_requests SET status = $2, reviewed_by = $3, reviewed_at = $4, review_note = $5, updated_at = $4
        WHERE id = $1 AND status = $6`
	res, err := r.db.ExecContext(ctx, query, id, status, reviewer, reviewedAt, note, models.EnrollmentStatusPending)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment status rows: %w", err)
	}
	if affected == 0 {
		return ErrEnrollmentNotPending
	}
	return nil
}

// Delete removes a request. Used to roll back when the proof could not be kept.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM enrollment_requests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if string(pqErr.Code) != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == "" || pqErr.Constraint == constraint
}
