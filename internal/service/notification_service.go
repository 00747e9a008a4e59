package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/pkg/mailer"
)

var (
	submittedTemplate = template.Must(template.New("submitted").Parse(`<p>A new enrollment request is awaiting review.</p>
<ul>
<li>Student: {{.Record.Name}} ({{.Record.Email}})</li>
<li>Course: {{if .CourseTitle}}{{.CourseTitle}}{{else}}{{.Record.CourseID}}{{end}}</li>
<li>Payment: {{.Record.PaymentMethod}} {{printf "%.2f" .Record.Amount}}</li>
<li>Reference: {{.Record.ID}}</li>
</ul>`))

	reviewedTemplate = template.Must(template.New("reviewed").Parse(`<p>Dear {{.Record.Name}},</p>
{{if eq .Record.Status "approved"}}<p>Your enrollment has been approved. Welcome aboard!</p>{{else}}<p>Your enrollment request was not approved.</p>{{end}}
{{with .Record.ReviewNote}}<p>Note from the reviewer: {{.}}</p>{{end}}
<p>Reference: {{.Record.ID}}</p>`))
)

// NotificationService emails admins about new requests and students about decisions.
type NotificationService struct {
	sender mailer.Sender
	admins []string
	logger *zap.Logger
}

// NewNotificationService constructs the service.
func NewNotificationService(sender mailer.Sender, admins []string, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{sender: sender, admins: admins, logger: logger}
}

// Notify sends the email matching the job's event type.
func (s *NotificationService) Notify(ctx context.Context, job EnrollmentJob) error {
	if s.sender == nil {
		return nil
	}
	var (
		msg mailer.Message
		err error
	)
	switch job.Event.Type {
	case models.EnrollmentEventSubmitted:
		if len(s.admins) == 0 {
			return nil
		}
		msg.To = s.admins
		msg.Subject = fmt.Sprintf("New enrollment request from %s", job.Record.Name)
		msg.HTML, err = render(submittedTemplate, job)
	case models.EnrollmentEventReviewed:
		if job.Record.Email == "" {
			return nil
		}
		msg.To = []string{job.Record.Email}
		msg.Subject = fmt.Sprintf("Your enrollment request was %s", job.Record.Status)
		msg.HTML, err = render(reviewedTemplate, job)
	default:
		return fmt.Errorf("unsupported notification event %q", job.Event.Type)
	}
	if err != nil {
		return err
	}
	if err := s.sender.Send(msg); err != nil {
		return err
	}
	s.logger.Info("enrollment notification sent", zap.String("event", job.Event.Type), zap.String("enrollment_id", job.Record.ID))
	return nil
}

func render(tpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", tpl.Name(), err)
	}
	return buf.String(), nil
}
