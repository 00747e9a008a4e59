package enrollflow

import "github.com/noah-isme/course-enrollment-api/internal/models"

// Status is the gating state derived from the caller's record for a course.
type Status string

// Gating states.
const (
	StatusNone     Status = "none"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// StatusOf maps a record onto a gating state; nil means none.
func StatusOf(record *models.EnrollmentRecord) Status {
	if record == nil {
		return StatusNone
	}
	switch record.Status {
	case models.EnrollmentStatusPending:
		return StatusPending
	case models.EnrollmentStatusApproved:
		return StatusApproved
	case models.EnrollmentStatusRejected:
		return StatusRejected
	}
	return StatusNone
}

// View is the rendered enrollment state.
type View struct {
	Status        Status `json:"status"`
	SubmitEnabled bool   `json:"submit_enabled"`
	Blocked       bool   `json:"blocked"`
	PolicyBlock   bool   `json:"policy_block"`
	Message       string `json:"message,omitempty"`
}

const (
	pendingMessage  = "Your enrollment request is awaiting review."
	approvedMessage = "Your enrollment in this course is already active."
	rejectedMessage = "Your enrollment request was rejected. This is a policy block, not a temporary error: resubmission stays disabled until an administrator clears the record."
)

// Render applies the gating rules. Submit is only enabled with no record,
// a staged proof and no submission in flight.
func Render(status Status, proofStaged, submitting bool) View {
	view := View{Status: status}
	switch status {
	case StatusPending:
		view.Blocked = true
		view.Message = pendingMessage
	case StatusApproved:
		view.Blocked = true
		view.Message = approvedMessage
	case StatusRejected:
		view.Blocked = true
		view.PolicyBlock = true
		view.Message = rejectedMessage
	default:
		view.Status = StatusNone
	}
	view.SubmitEnabled = !view.Blocked && proofStaged && !submitting
	return view
}
