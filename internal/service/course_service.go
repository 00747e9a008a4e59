package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// CourseService serves catalog reads with a read-through cache.
type CourseService struct {
	repo     courseRepository
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCourseService constructs the service. cache may be nil.
func NewCourseService(repo courseRepository, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

func courseCacheKey(id string) string {
	return "course:" + id
}

// Get returns an active course by ID.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id is required")
	}
	key := courseCacheKey(id)
	var cached models.Course
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.cache.Set(ctx, key, course, s.cacheTTL); err != nil {
		s.logger.Debug("course cache write skipped", zap.String("course_id", id), zap.Error(err))
	}
	return course, nil
}
