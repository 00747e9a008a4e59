package models

import "time"

// EnrollmentStatus represents the review lifecycle of an enrollment request.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending  EnrollmentStatus = "pending"
	EnrollmentStatusApproved EnrollmentStatus = "approved"
	EnrollmentStatusRejected EnrollmentStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusApproved, EnrollmentStatusRejected:
		return true
	}
	return false
}

// EnrollmentRecord is the server-owned result of a successful enrollment submission.
type EnrollmentRecord struct {
	ID             string           `db:"id" json:"id"`
	CourseID       string           `db:"course_id" json:"course_id"`
	UserID         string           `db:"user_id" json:"user_id"`
	Name           string           `db:"name" json:"name"`
	Email          string           `db:"email" json:"email"`
	Phone          string           `db:"phone" json:"phone"`
	PaymentMethod  PaymentMethod    `db:"payment_method" json:"payment_method"`
	Amount         float64          `db:"amount" json:"amount"`
	PaymentDetails PaymentDetails   `db:"payment_details" json:"payment_details"`
	ProofPath      string           `db:"proof_path" json:"-"`
	ProofMime      string           `db:"proof_mime" json:"proof_mime"`
	ProofSize      int64            `db:"proof_size" json:"proof_size"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	ReviewedBy     *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNote     *string          `db:"review_note" json:"review_note,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches a record with course information for back-office views.
type EnrollmentDetail struct {
	EnrollmentRecord
	CourseTitle string `db:"course_title" json:"course_title"`
}

// EnrollmentFilter provides filters for listing enrollment requests.
type EnrollmentFilter struct {
	UserID    string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortOrder string
}

// EnrollmentEvent is published whenever a request is created or reviewed.
type EnrollmentEvent struct {
	Type       string           `json:"type"`
	RecordID   string           `json:"record_id"`
	CourseID   string           `json:"course_id"`
	UserID     string           `json:"user_id"`
	Status     EnrollmentStatus `json:"status"`
	Amount     float64          `json:"amount"`
	Method     PaymentMethod    `json:"payment_method"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Enrollment event types.
const (
	EnrollmentEventSubmitted = "enrollment.submitted"
	EnrollmentEventReviewed  = "enrollment.reviewed"
)
