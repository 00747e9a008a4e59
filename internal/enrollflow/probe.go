package enrollflow

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

type enrollmentLister interface {
	ListMyEnrollments(ctx context.Context) ([]models.EnrollmentRecord, error)
}

// gate holds the last known record for the active (user, course) pair.
type gate struct {
	mu     sync.RWMutex
	record *models.EnrollmentRecord
}

func (g *gate) set(record *models.EnrollmentRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record = record
}

func (g *gate) status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return StatusOf(g.record)
}

func (g *gate) current() *models.EnrollmentRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.record == nil {
		return nil
	}
	record := *g.record
	return &record
}

// StatusProbe looks up the caller's record for one course.
type StatusProbe struct {
	api    enrollmentLister
	gate   *gate
	logger *zap.Logger
}

// NewStatusProbe constructs a probe writing to its own gate.
func NewStatusProbe(api enrollmentLister, logger *zap.Logger) *StatusProbe {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusProbe{api: api, gate: &gate{}, logger: logger}
}

// Probe returns the record matching courseID, or nil when none exists, and
// updates the gate. On failure the gate is left as it was.
func (p *StatusProbe) Probe(ctx context.Context, identity *models.UserInfo, courseID string) (*models.EnrollmentRecord, error) {
	records, err := p.api.ListMyEnrollments(ctx)
	if err != nil {
		p.logger.Warn("enrollment status probe failed", zap.String("course_id", courseID), zap.Error(err))
		return nil, &ProbeError{Err: err}
	}

	var match *models.EnrollmentRecord
	for i := range records {
		record := records[i]
		if record.CourseID != courseID {
			continue
		}
		if identity != nil && record.UserID != "" && record.UserID != identity.ID {
			continue
		}
		match = &record
		break
	}

	p.gate.set(match)
	p.logger.Debug("enrollment status probed", zap.String("course_id", courseID), zap.String("status", string(StatusOf(match))))
	return match, nil
}

// Status reports the current gating state.
func (p *StatusProbe) Status() Status {
	return p.gate.status()
}

// Record returns a copy of the last matched record, if any.
func (p *StatusProbe) Record() *models.EnrollmentRecord {
	return p.gate.current()
}

// Reset forgets the last result, used when the (user, course) pair changes.
func (p *StatusProbe) Reset() {
	p.gate.set(nil)
}

func (p *StatusProbe) observe(record *models.EnrollmentRecord) {
	p.gate.set(record)
}
