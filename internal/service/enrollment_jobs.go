package service

import (
	"context"
	"fmt"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/pkg/jobs"
)

// Background job types dispatched after a request is created or reviewed.
const (
	JobTypeEnrollmentEvent  = "enrollment.event"
	JobTypeEnrollmentNotify = "enrollment.notify"
)

// EnrollmentJob is the payload shared by enrollment follow-up jobs.
type EnrollmentJob struct {
	Event       models.EnrollmentEvent
	Record      models.EnrollmentRecord
	CourseTitle string
}

type jobRegistrar interface {
	Handle(jobType string, handler jobs.Handler)
}

type eventPublisher interface {
	Publish(ctx context.Context, event models.EnrollmentEvent) error
}

type enrollmentNotifier interface {
	Notify(ctx context.Context, job EnrollmentJob) error
}

// RegisterEnrollmentJobs attaches the follow-up handlers to the queue.
func RegisterEnrollmentJobs(queue jobRegistrar, publisher eventPublisher, notifier enrollmentNotifier) {
	queue.Handle(JobTypeEnrollmentEvent, func(ctx context.Context, job jobs.Job) error {
		payload, err := enrollmentPayload(job)
		if err != nil {
			return err
		}
		return publisher.Publish(ctx, payload.Event)
	})
	queue.Handle(JobTypeEnrollmentNotify, func(ctx context.Context, job jobs.Job) error {
		payload, err := enrollmentPayload(job)
		if err != nil {
			return err
		}
		return notifier.Notify(ctx, payload)
	})
}

func enrollmentPayload(job jobs.Job) (EnrollmentJob, error) {
	payload, ok := job.Payload.(EnrollmentJob)
	if !ok {
		return EnrollmentJob{}, fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload)
	}
	return payload, nil
}
