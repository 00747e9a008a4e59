package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-enrollment-api/api/swagger"
	"github.com/noah-isme/course-enrollment-api/internal/handler"
	internalmiddleware "github.com/noah-isme/course-enrollment-api/internal/middleware"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/repository"
	"github.com/noah-isme/course-enrollment-api/internal/service"
	"github.com/noah-isme/course-enrollment-api/pkg/cache"
	"github.com/noah-isme/course-enrollment-api/pkg/config"
	"github.com/noah-isme/course-enrollment-api/pkg/database"
	"github.com/noah-isme/course-enrollment-api/pkg/events"
	"github.com/noah-isme/course-enrollment-api/pkg/jobs"
	"github.com/noah-isme/course-enrollment-api/pkg/logger"
	"github.com/noah-isme/course-enrollment-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/course-enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-enrollment-api/pkg/middleware/requestid"
	"github.com/noah-isme/course-enrollment-api/pkg/storage"
)

// @title Course Enrollment API
// @version 1.0.0
// @description Enrollment requests with proof of payment, duplicate detection and back-office review
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, cfg.Database.MigrationsPath, logr); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, course cache disabled", zap.Error(err))
	}

	metricsSvc := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Courses.CacheTTL, logr, redisClient != nil)

	proofStorage, err := storage.NewLocalStorage(cfg.Proofs.StorageDir)
	if err != nil {
		return fmt.Errorf("init proof storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Proofs.SignedURLSecret, cfg.Proofs.SignedURLTTL)
	proofSvc := service.NewProofService(proofStorage, signer, service.ProofServiceConfig{
		MaxFileSize: cfg.Proofs.MaxFileSizeBytes,
		APIPrefix:   cfg.APIPrefix,
	}, logr)

	publisher := events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, cfg.Events.WriteTimeout, logr)
	defer publisher.Close() //nolint:errcheck

	queue := jobs.NewQueue("enrollment-followups", jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logr,
	})
	service.RegisterEnrollmentJobs(
		queue,
		service.NewEventService(publisher, logr),
		service.NewNotificationService(mailer.New(cfg.Notifications, logr), cfg.Notifications.AdminEmails, logr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	queue.Start(ctx)
	defer queue.Stop()

	validate := validator.New()
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	}, logr)
	courseSvc := service.NewCourseService(courseRepo, cacheSvc, cfg.Courses.CacheTTL, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseSvc, proofSvc, queue, auditRepo, metricsSvc, validate, logr)
	exportSvc := service.NewExportService(enrollmentRepo, auditRepo, logr, nil, nil, nil)

	authHandler := handler.NewAuthHandler()
	courseHandler := handler.NewCourseHandler(courseSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, cfg.Proofs.MaxFileSizeBytes)
	adminHandler := handler.NewAdminEnrollmentHandler(enrollmentSvc, exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.ReadinessCheck{
		"database": db.PingContext,
		"redis": func(ctx context.Context) error {
			if redisClient == nil {
				return nil
			}
			return cacheRepo.Ping(ctx)
		},
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/enrollments/proofs/download", enrollmentHandler.DownloadProof)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(tokenSvc))
	secured.GET("/auth/me", authHandler.Me)
	secured.GET("/courses/:id", courseHandler.Get)
	secured.GET("/enrollments/me", enrollmentHandler.ListMine)
	secured.POST("/enrollments", enrollmentHandler.Create)
	secured.GET("/enrollments/:id/proof-url",
		internalmiddleware.Audit(auditRepo, models.AuditActionProofLink, "enrollment_proof"),
		enrollmentHandler.ProofURL,
	)

	admin := secured.Group("/admin")
	admin.Use(internalmiddleware.RequireAdmin())
	admin.GET("/enrollments", adminHandler.List)
	admin.GET("/enrollments/export", adminHandler.Export)
	admin.PATCH("/enrollments/:id/status", adminHandler.Review)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server forced shutdown", zap.Error(err))
	}
	return nil
}
