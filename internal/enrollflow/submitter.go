package enrollflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/pkg/enrollclient"
)

type enrollmentCreator interface {
	CreateEnrollment(ctx context.Context, sub enrollclient.Submission) (*models.EnrollmentRecord, error)
}

// Draft is the user-editable part of an enrollment request.
type Draft struct {
	Name   string
	Email  string
	Phone  string
	Method models.PaymentMethod
	Fields map[string]string
}

func (d Draft) clone() Draft {
	fields := make(map[string]string, len(d.Fields))
	for k, v := range d.Fields {
		fields[k] = v
	}
	d.Fields = fields
	return d
}

// Submitter assembles and dispatches the multipart enrollment request.
type Submitter struct {
	api    enrollmentCreator
	logger *zap.Logger
}

// NewSubmitter constructs a submitter.
func NewSubmitter(api enrollmentCreator, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{api: api, logger: logger}
}

// Build produces the submission. The amount always comes from the course price.
func (s *Submitter) Build(identity models.UserInfo, course models.Course, draft Draft, proof Artifact) enrollclient.Submission {
	name, email, phone := draft.Name, draft.Email, draft.Phone
	if name == "" {
		name = identity.Name
	}
	if email == "" {
		email = identity.Email
	}
	if phone == "" {
		phone = identity.Phone
	}
	return enrollclient.Submission{
		CourseID:       course.ID,
		UserID:         identity.ID,
		Name:           name,
		Email:          email,
		Phone:          phone,
		PaymentMethod:  draft.Method,
		Amount:         course.Price,
		Status:         models.EnrollmentStatusPending,
		PaymentDetails: models.NewPaymentDetails(draft.Method, draft.Fields),
		Proof: enrollclient.ProofFile{
			Filename:  proof.Filename,
			MediaType: proof.MediaType,
			Content:   proof.Content,
		},
	}
}

// Submit dispatches exactly one create call.
func (s *Submitter) Submit(ctx context.Context, identity models.UserInfo, course models.Course, draft Draft, proof Artifact) (*models.EnrollmentRecord, error) {
	sub := s.Build(identity, course, draft, proof)
	s.logger.Info("submitting enrollment request",
		zap.String("course_id", sub.CourseID),
		zap.String("payment_method", string(sub.PaymentMethod)),
		zap.Int64("proof_bytes", proof.Size()),
	)
	return s.api.CreateEnrollment(ctx, sub)
}
