package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ucmas-ksa/portal-api/api/swagger"
	"github.com/ucmas-ksa/portal-api/internal/handler"
	"github.com/ucmas-ksa/portal-api/internal/middleware"
	"github.com/ucmas-ksa/portal-api/internal/models"
	"github.com/ucmas-ksa/portal-api/internal/repository"
	"github.com/ucmas-ksa/portal-api/internal/service"
	"github.com/ucmas-ksa/portal-api/pkg/cache"
	"github.com/ucmas-ksa/portal-api/pkg/config"
	"github.com/ucmas-ksa/portal-api/pkg/database"
	"github.com/ucmas-ksa/portal-api/pkg/jobs"
	"github.com/ucmas-ksa/portal-api/pkg/logger"
	corsmiddleware "github.com/ucmas-ksa/portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/ucmas-ksa/portal-api/pkg/middleware/requestid"
	"github.com/ucmas-ksa/portal-api/pkg/storage"
)

// @title UCMAS KSA Portal API
// @version 1.0.0
// @description Registration and invoicing portal for UCMAS KSA organizations
// @BasePath /api/v1
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := service.NewValidator()
	metrics := service.NewMetricsService()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)
	profileRepo := repository.NewCompanyProfileRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	eventRepo := repository.NewEventRepository(db)
	studentRepo := repository.NewStudentRepository(db, cfg.Students.RegistrationNoPrefix)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	exportRepo := repository.NewExportRepository(db)
	draftRepo := repository.NewDraftRepository(redisClient, logr, cfg.Drafts.TTL)

	// Services.
	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		Audience:           cfg.JWT.Audience,
		SingleSession:      cfg.JWT.SingleSession,
	})
	userService := service.NewUserService(userRepo, orgRepo, validate, logr)
	orgService := service.NewOrganizationService(orgRepo, validate, logr)
	profileService := service.NewCompanyProfileService(profileRepo, validate, logr)
	courseService := service.NewCourseService(courseRepo, validate, logr)
	eventService := service.NewEventService(eventRepo, validate, logr)
	studentService := service.NewStudentService(studentRepo, orgRepo, validate, logr)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, studentRepo, courseRepo, validate, logr, metrics)
	registrationService := service.NewRegistrationService(registrationRepo, studentRepo, eventRepo, validate, logr, metrics)
	invoiceService := service.NewInvoiceService(invoiceRepo, cfg.Invoicing.DefaultVATRate, validate, logr, metrics)
	draftService := service.NewDraftService(draftRepo, studentService, enrollmentService, registrationService, validate, logr)
	summaryCache := repository.NewSummaryCache(redisClient, 0)
	dashboardService := service.NewDashboardService(orgRepo, studentRepo, enrollmentRepo, registrationRepo, invoiceRepo, summaryCache, metrics, logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Export pipeline (optional).
	var (
		exportJobService *service.ExportJobService
		exportQueue      *jobs.Queue
	)
	if cfg.Exports.Enabled {
		exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exporter := service.NewExportService(
			studentRepo,
			enrollmentRepo,
			registrationRepo,
			invoiceRepo,
			exportStore,
			signer,
			service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL},
			logr,
			nil,
			nil,
		)
		worker := service.NewExportWorker(exportRepo, exporter, cfg.Exports.WorkerRetries, logr)
		exportQueue = jobs.NewQueue("exports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			Logger:     logr,
		})
		exportJobService = service.NewExportJobService(exportRepo, exportQueue, exporter, validate, logr, service.ExportJobServiceConfig{
			ResultTTL:       cfg.Exports.SignedURLTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
			MaxRetries:      cfg.Exports.WorkerRetries,
		})

		exportQueue.Start(ctx)
		exportJobService.RecoverPendingJobs(ctx)
		exportJobService.StartCleanup(ctx)
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	orgHandler := handler.NewOrganizationHandler(orgService)
	profileHandler := handler.NewCompanyProfileHandler(profileService)
	courseHandler := handler.NewCourseHandler(courseService)
	eventHandler := handler.NewEventHandler(eventService)
	studentHandler := handler.NewStudentHandler(studentService)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentService)
	registrationHandler := handler.NewRegistrationHandler(registrationService)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService)
	draftHandler := handler.NewDraftHandler(draftService)
	dashboardHandler := handler.NewDashboardHandler(dashboardService)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		readyCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(readyCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "component": "database"})
			return
		}
		if err := redisClient.Ping(readyCtx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "component": "redis"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Public routes.
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.POST("/auth/forgot-password", authHandler.ForgotPassword)
	api.POST("/auth/reset-password", authHandler.ResetPassword)
	if exportJobService != nil {
		exportHandler := handler.NewExportHandler(exportJobService)
		// The signed token in the path is the credential.
		api.GET("/export/:token", exportHandler.Download)

		exports := api.Group("/exports", middleware.JWT(authService), middleware.Audit(userRepo, "exports"))
		exports.POST("", exportHandler.Create)
		exports.GET("/:id", exportHandler.Status)
	}

	authed := api.Group("", middleware.JWT(authService))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.GET("/auth/me", authHandler.Me)
	authed.POST("/auth/change-password", authHandler.ChangePassword)

	admin := middleware.RequireRoles(models.RoleAdmin)
	adminOrManager := middleware.RequireRoles(models.RoleAdmin, models.RoleOrgManager)

	organizations := authed.Group("/organizations", admin, middleware.Audit(userRepo, "organizations"))
	organizations.GET("", orgHandler.List)
	organizations.POST("", orgHandler.Create)
	organizations.GET("/:id", orgHandler.Get)
	organizations.PUT("/:id", orgHandler.Update)
	organizations.POST("/:id/approve", orgHandler.Approve)
	organizations.POST("/:id/suspend", orgHandler.Suspend)

	users := authed.Group("/users", middleware.Audit(userRepo, "users"))
	users.GET("", adminOrManager, userHandler.List)
	users.POST("", admin, userHandler.Create)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
	users.PUT("/:id", admin, userHandler.Update)
	users.DELETE("/:id", admin, userHandler.Delete)
	users.POST("/:id/activate", admin, userHandler.Activate)
	users.POST("/:id/deactivate", admin, userHandler.Deactivate)
	users.POST("/:id/reset-password", admin, userHandler.ResetPassword)

	authed.GET("/audit-logs", admin, userHandler.AuditLogs)

	profiles := authed.Group("/company-profiles", admin, middleware.Audit(userRepo, "company_profiles"))
	profiles.GET("", profileHandler.List)
	profiles.POST("", profileHandler.Create)
	profiles.GET("/:id", profileHandler.Get)
	profiles.PUT("/:id", profileHandler.Update)
	profiles.POST("/:id/activate", profileHandler.Activate)

	courses := authed.Group("/courses", middleware.Audit(userRepo, "courses"))
	courses.GET("", courseHandler.List)
	courses.GET("/:id", courseHandler.Get)
	courses.POST("", admin, courseHandler.Create)
	courses.PUT("/:id", admin, courseHandler.Update)
	courses.DELETE("/:id", admin, courseHandler.Delete)

	events := authed.Group("/events", middleware.Audit(userRepo, "events"))
	events.GET("", eventHandler.List)
	events.GET("/:id", eventHandler.Get)
	events.POST("", admin, eventHandler.Create)
	events.PUT("/:id", admin, eventHandler.Update)
	events.POST("/:id/close", admin, eventHandler.Close)
	events.POST("/:id/reopen", admin, eventHandler.Reopen)

	students := authed.Group("/students", middleware.Audit(userRepo, "students"))
	students.GET("", studentHandler.List)
	students.POST("", studentHandler.Create)
	students.GET("/:id", studentHandler.Get)
	students.PUT("/:id", studentHandler.Update)
	students.POST("/import", studentHandler.Import)

	drafts := authed.Group("/drafts", middleware.Audit(userRepo, "drafts"))
	drafts.POST("", draftHandler.Create)
	drafts.GET("", draftHandler.List)
	drafts.GET("/:id", draftHandler.Get)
	drafts.PUT("/:id/student", draftHandler.SaveStudentStep)
	drafts.PUT("/:id/guardian", draftHandler.SaveGuardianStep)
	drafts.POST("/:id/commit", draftHandler.Commit)
	drafts.DELETE("/:id", draftHandler.Delete)

	enrollments := authed.Group("/enrollments", middleware.Audit(userRepo, "enrollments"))
	enrollments.GET("", enrollmentHandler.List)
	enrollments.POST("", enrollmentHandler.Create)
	enrollments.POST("/submit", enrollmentHandler.Submit)
	enrollments.GET("/:id", enrollmentHandler.Get)
	enrollments.POST("/:id/approve", enrollmentHandler.Approve)
	enrollments.POST("/:id/reject", enrollmentHandler.Reject)
	enrollments.POST("/:id/mark-paid", enrollmentHandler.MarkPaid)
	enrollments.POST("/:id/reset", enrollmentHandler.Reset)
	enrollments.POST("/:id/enroll", enrollmentHandler.Enroll)
	enrollments.POST("/:id/complete", enrollmentHandler.Complete)
	enrollments.POST("/:id/drop", enrollmentHandler.Drop)

	registrations := authed.Group("/registrations", middleware.Audit(userRepo, "registrations"))
	registrations.GET("", registrationHandler.List)
	registrations.POST("", registrationHandler.Create)
	registrations.POST("/submit", registrationHandler.Submit)
	registrations.GET("/:id", registrationHandler.Get)
	registrations.POST("/:id/approve", registrationHandler.Approve)
	registrations.POST("/:id/reject", registrationHandler.Reject)
	registrations.POST("/:id/mark-paid", registrationHandler.MarkPaid)
	registrations.POST("/:id/reset", registrationHandler.Reset)

	invoices := authed.Group("/invoices", middleware.Audit(userRepo, "invoices"))
	invoices.GET("", invoiceHandler.List)
	invoices.POST("/issue", invoiceHandler.Issue)
	invoices.GET("/:id", invoiceHandler.Get)
	invoices.GET("/:id/pdf", invoiceHandler.DownloadPDF)
	invoices.POST("/:id/mark-paid", invoiceHandler.MarkPaid)
	invoices.POST("/:id/cancel", invoiceHandler.Cancel)

	authed.GET("/dashboard", dashboardHandler.Summary)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	if exportQueue != nil {
		exportQueue.Stop()
	}
}
