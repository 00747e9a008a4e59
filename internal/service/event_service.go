package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/pkg/events"
)

// EventService publishes enrollment lifecycle events.
type EventService struct {
	publisher events.Publisher
	logger    *zap.Logger
}

// NewEventService constructs the service. A nil publisher drops events.
func NewEventService(publisher events.Publisher, logger *zap.Logger) *EventService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{publisher: publisher, logger: logger}
}

// Publish writes the event keyed by record so a request's events stay ordered.
func (s *EventService) Publish(ctx context.Context, event models.EnrollmentEvent) error {
	if err := s.publisher.Publish(ctx, event.RecordID, event); err != nil {
		return err
	}
	s.logger.Debug("enrollment event published", zap.String("type", event.Type), zap.String("enrollment_id", event.RecordID))
	return nil
}
