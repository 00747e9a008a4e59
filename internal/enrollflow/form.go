// Package enrollflow drives a single enrollment form against the enrollment API:
// status probing, payment selection, proof staging, submission and duplicate
// reconciliation.
package enrollflow

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

// API is the remote surface the form consumes.
type API interface {
	enrollmentLister
	enrollmentCreator
}

// Navigator receives the navigation side effects of a submission.
type Navigator interface {
	ToLogin()
	ToEnrollment(record *models.EnrollmentRecord)
}

// NopNavigator ignores navigation.
type NopNavigator struct{}

// ToLogin implements Navigator.
func (NopNavigator) ToLogin() {}

// ToEnrollment implements Navigator.
func (NopNavigator) ToEnrollment(*models.EnrollmentRecord) {}

// OutcomeKind discriminates submission results.
type OutcomeKind string

// Submission outcomes.
const (
	OutcomeSubmitted         OutcomeKind = "submitted"
	OutcomeDuplicateResolved OutcomeKind = "duplicate-resolved"
	OutcomeFailed            OutcomeKind = "failed"
	OutcomeBlocked           OutcomeKind = "blocked"
	OutcomeLoginRequired     OutcomeKind = "login-required"
)

// Outcome is the result of Form.Submit. Message is user-facing text.
type Outcome struct {
	Kind    OutcomeKind
	Record  *models.EnrollmentRecord
	View    View
	Message string
	Err     error
}

// Form owns one draft and one staged proof for a single course.
type Form struct {
	probe     *StatusProbe
	selector  *PaymentMethodSelector
	proof     *ProofCollector
	submitter *Submitter
	resolver  *ConflictResolver
	navigator Navigator
	logger    *zap.Logger

	mu          sync.Mutex
	identity    *models.UserInfo
	course      *models.Course
	probedKey   string
	draft       Draft
	fieldErrors FieldErrors
}

// NewForm wires the components of one form instance.
func NewForm(api API, selector *PaymentMethodSelector, navigator Navigator, logger *zap.Logger) *Form {
	if logger == nil {
		logger = zap.NewNop()
	}
	if navigator == nil {
		navigator = NopNavigator{}
	}
	probe := NewStatusProbe(api, logger)
	return &Form{
		probe:     probe,
		selector:  selector,
		proof:     NewProofCollector(logger),
		submitter: NewSubmitter(api, logger),
		resolver:  NewConflictResolver(probe, logger),
		navigator: navigator,
		logger:    logger,
		draft:     Draft{Fields: map[string]string{}},
	}
}

// SetIdentity records the caller and probes once a course is also known.
func (f *Form) SetIdentity(ctx context.Context, identity *models.UserInfo) error {
	f.mu.Lock()
	f.identity = identity
	f.mu.Unlock()
	return f.probeIfChanged(ctx)
}

// SetCourse records the target course and probes once an identity is also known.
func (f *Form) SetCourse(ctx context.Context, course *models.Course) error {
	f.mu.Lock()
	f.course = course
	f.mu.Unlock()
	return f.probeIfChanged(ctx)
}

func (f *Form) probeIfChanged(ctx context.Context) error {
	f.mu.Lock()
	if f.identity == nil || f.course == nil {
		f.mu.Unlock()
		return nil
	}
	key := f.identity.ID + "/" + f.course.ID
	if key == f.probedKey {
		f.mu.Unlock()
		return nil
	}
	f.probedKey = key
	identity, courseID := *f.identity, f.course.ID
	f.mu.Unlock()

	f.probe.Reset()
	_, err := f.probe.Probe(ctx, &identity, courseID)
	return err
}

// Refresh re-probes the current (user, course) pair.
func (f *Form) Refresh(ctx context.Context) error {
	f.mu.Lock()
	if f.identity == nil || f.course == nil {
		f.mu.Unlock()
		return nil
	}
	identity, courseID := *f.identity, f.course.ID
	f.mu.Unlock()

	_, err := f.probe.Probe(ctx, &identity, courseID)
	return err
}

// SetContact overrides the contact fields taken from the identity.
func (f *Form) SetContact(name, email, phone string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft.Name, f.draft.Email, f.draft.Phone = name, email, phone
}

// SelectMethod switches the payment channel. Values and errors entered for the
// previous channel are discarded, including keys both channels declare.
func (f *Form) SelectMethod(m models.PaymentMethod) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draft.Method == m {
		return
	}
	f.draft.Method = m
	f.draft.Fields = map[string]string{}
	f.fieldErrors = nil
}

// SetField stores a value for one of the selected channel's fields. Keys the
// channel does not declare are ignored.
func (f *Form) SetField(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.selector.owns(f.draft.Method, key) {
		f.logger.Debug("ignoring payment field outside selected method",
			zap.String("payment_method", string(f.draft.Method)), zap.String("field", key))
		return
	}
	f.draft.Fields[key] = value
	delete(f.fieldErrors, key)
}

// FieldErrors returns the current per-field validation messages.
func (f *Form) FieldErrors() FieldErrors {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(FieldErrors, len(f.fieldErrors))
	for k, v := range f.fieldErrors {
		out[k] = v
	}
	return out
}

// Draft returns a copy of the draft.
func (f *Form) Draft() Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft.clone()
}

// Instructions renders the payment steps for the selected method.
func (f *Form) Instructions() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var amount float64
	if f.course != nil {
		amount = f.course.Price
	}
	return f.selector.Instructions(f.draft.Method, amount)
}

// Proof exposes the collector for staging and preview.
func (f *Form) Proof() *ProofCollector {
	return f.proof
}

// Status returns the gating state from the last successful probe.
func (f *Form) Status() Status {
	return f.probe.Status()
}

// State returns the resolver state.
func (f *Form) State() ResolverState {
	return f.resolver.State()
}

// View renders the current enrollment state.
func (f *Form) View() View {
	return Render(f.probe.Status(), f.proof.Staged(), f.resolver.Submitting())
}

// Submit validates the draft and dispatches it. Input problems are returned as
// *UserInputError; every remote result is reported through the Outcome. The
// draft and the staged proof survive every failure.
func (f *Form) Submit(ctx context.Context) (Outcome, error) {
	f.mu.Lock()
	identity, course := f.identity, f.course
	draft := f.draft.clone()
	f.mu.Unlock()

	if identity == nil || identity.ID == "" {
		f.navigator.ToLogin()
		return Outcome{Kind: OutcomeLoginRequired, View: f.View(), Message: ErrNotAuthenticated.Error()}, inputError(ErrNotAuthenticated)
	}
	if course == nil || course.ID == "" {
		return Outcome{}, inputError(ErrCourseNotLoaded)
	}

	if view := f.View(); view.Blocked {
		return Outcome{Kind: OutcomeBlocked, Record: f.probe.Record(), View: view, Message: view.Message}, nil
	}

	artifact, ok := f.proof.Artifact()
	if !ok {
		return Outcome{}, inputError(ErrProofRequired)
	}

	if problems := f.selector.Validate(draft.Method, draft.Fields); len(problems) > 0 {
		f.mu.Lock()
		f.fieldErrors = problems
		f.mu.Unlock()
		return Outcome{}, &UserInputError{Err: ErrPaymentDetails, Fields: problems}
	}

	if err := f.resolver.Begin(); err != nil {
		return Outcome{}, err
	}

	record, err := f.submitter.Submit(ctx, *identity, *course, draft, artifact)
	if err == nil {
		f.resolver.Succeed()
		f.probe.observe(record)
		f.discardDraft()
		f.navigator.ToEnrollment(record)
		return Outcome{Kind: OutcomeSubmitted, Record: record, View: f.View()}, nil
	}

	resolution := f.resolver.Resolve(ctx, err, identity, course.ID)
	outcome := Outcome{
		Kind:    resolution.Kind,
		Record:  resolution.Record,
		Message: resolution.Message,
		Err:     resolution.Err,
	}
	outcome.View = f.View()
	if resolution.Kind == OutcomeDuplicateResolved {
		outcome.Message = outcome.View.Message
	}
	return outcome, nil
}

func (f *Form) discardDraft() {
	f.mu.Lock()
	f.draft = Draft{Fields: map[string]string{}}
	f.fieldErrors = nil
	f.mu.Unlock()
	f.proof.Remove()
}
