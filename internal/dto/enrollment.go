package dto

import (
	"time"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

// CreateEnrollmentRequest mirrors the multipart fields of an enrollment submission.
type CreateEnrollmentRequest struct {
	CourseID       string               `form:"course_id" validate:"required"`
	UserID         string               `form:"user_id" validate:"required"`
	Name           string               `form:"name" validate:"required,max=120"`
	Email          string               `form:"email" validate:"required,email"`
	Phone          string               `form:"phone" validate:"omitempty,max=32"`
	PaymentMethod  models.PaymentMethod `form:"payment_method" validate:"required,oneof=jazzcash easypaisa card bank"`
	Amount         float64              `form:"amount" validate:"gte=0"`
	Status         string               `form:"status" validate:"omitempty,eq=pending"`
	PaymentDetails string               `form:"payment_details" validate:"required"`
}

// ReviewEnrollmentRequest captures the reviewer decision and optional note.
type ReviewEnrollmentRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required,oneof=approved rejected"`
	Note   string                  `json:"note" validate:"max=500"`
}

// EnrollmentQuery mirrors supported back-office listing filters.
type EnrollmentQuery struct {
	Status   models.EnrollmentStatus
	CourseID string
	Page     int
	PageSize int
}

// ProofURLResponse is returned when a signed proof link is requested.
type ProofURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
