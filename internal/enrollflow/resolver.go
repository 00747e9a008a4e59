package enrollflow

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/pkg/enrollclient"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

// ResolverState is the submission lifecycle of one form.
type ResolverState string

// Resolver states.
const (
	StateIdle              ResolverState = "idle"
	StateSubmitting        ResolverState = "submitting"
	StateSucceeded         ResolverState = "succeeded"
	StateDuplicateDetected ResolverState = "duplicate-detected"
	StateFailed            ResolverState = "failed"
)

// genericFailureMessage is shown when a suspected duplicate cannot be confirmed.
const genericFailureMessage = "We could not submit your enrollment request. Please try again."

// duplicateSignatures are matched case-insensitively against remote error text.
var duplicateSignatures = []string{"already enrolled", "Duplicate entry", "1062"}

// IsDuplicate classifies a submission failure as a duplicate enrollment. The
// typed conflict code wins; otherwise the remote message is matched against
// the known signatures. Transport failures never classify as duplicates.
func IsDuplicate(err error) bool {
	var remote *enrollclient.RemoteError
	if !errors.As(err, &remote) {
		return false
	}
	if remote.Status == http.StatusConflict && remote.Code == appErrors.CodeEnrollmentDuplicate {
		return true
	}
	text := strings.ToLower(remote.Message)
	for _, signature := range duplicateSignatures {
		if strings.Contains(text, strings.ToLower(signature)) {
			return true
		}
	}
	return false
}

type resyncer interface {
	Probe(ctx context.Context, identity *models.UserInfo, courseID string) (*models.EnrollmentRecord, error)
}

// Resolution is the settled result of a failed submission.
type Resolution struct {
	Kind    OutcomeKind
	Record  *models.EnrollmentRecord
	Message string
	Err     error
}

// ConflictResolver owns the submit guard and settles failed submissions.
type ConflictResolver struct {
	probe  resyncer
	logger *zap.Logger

	mu    sync.Mutex
	state ResolverState
}

// NewConflictResolver constructs an idle resolver.
func NewConflictResolver(probe resyncer, logger *zap.Logger) *ConflictResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictResolver{probe: probe, logger: logger, state: StateIdle}
}

// State returns the current state.
func (r *ConflictResolver) State() ResolverState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Submitting reports whether a submission is in flight.
func (r *ConflictResolver) Submitting() bool {
	return r.State() == StateSubmitting
}

// Begin enters submitting. It fails while another submission is in flight.
func (r *ConflictResolver) Begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateSubmitting {
		return ErrSubmitInProgress
	}
	r.state = StateSubmitting
	return nil
}

// Succeed records a successful submission.
func (r *ConflictResolver) Succeed() {
	r.transition(StateSucceeded)
}

// Resolve settles a failed submission. Suspected duplicates trigger exactly
// one resync; the status shown afterwards always comes from that resync.
func (r *ConflictResolver) Resolve(ctx context.Context, cause error, identity *models.UserInfo, courseID string) Resolution {
	if !IsDuplicate(cause) {
		r.transition(StateFailed)
		r.logger.Warn("enrollment submission failed", zap.String("course_id", courseID), zap.Error(cause))
		return Resolution{Kind: OutcomeFailed, Message: remoteMessage(cause), Err: cause}
	}

	r.transition(StateDuplicateDetected)
	r.logger.Info("duplicate enrollment suspected, resyncing", zap.String("course_id", courseID))

	record, err := r.probe.Probe(ctx, identity, courseID)
	if err != nil || record == nil {
		r.transition(StateFailed)
		r.logger.Warn("duplicate enrollment not confirmed", zap.String("course_id", courseID), zap.Error(err))
		return Resolution{Kind: OutcomeFailed, Message: genericFailureMessage, Err: cause}
	}

	r.transition(StateIdle)
	return Resolution{
		Kind:   OutcomeDuplicateResolved,
		Record: record,
		Err:    &ConflictError{Err: cause},
	}
}

func (r *ConflictResolver) transition(next ResolverState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = next
}

func remoteMessage(err error) string {
	var remote *enrollclient.RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		return remote.Message
	}
	return err.Error()
}
