package main

import (
	"context"
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

	_ "github.com/nif-edu/fees-api/api/swagger"
	"github.com/nif-edu/fees-api/internal/handler"
	"github.com/nif-edu/fees-api/internal/middleware"
	"github.com/nif-edu/fees-api/internal/models"
	"github.com/nif-edu/fees-api/internal/repository"
	"github.com/nif-edu/fees-api/internal/service"
	"github.com/nif-edu/fees-api/pkg/cache"
	"github.com/nif-edu/fees-api/pkg/config"
	"github.com/nif-edu/fees-api/pkg/database"
	"github.com/nif-edu/fees-api/pkg/logger"
	corsmiddleware "github.com/nif-edu/fees-api/pkg/middleware/cors"
	reqidmiddleware "github.com/nif-edu/fees-api/pkg/middleware/requestid"
	"github.com/nif-edu/fees-api/pkg/storage"
)

// @title NIF Fees API
// @version 1.0.0
// @description Multi-tenant fee ledger for NIF schools
// @BasePath /api/v1
// @schemes http

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	// The API serves without Redis; summary reads just hit the database.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	archiveRepo := repository.NewArchiveRepository(db)
	examRepo := repository.NewExamRepository(db)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logr).WithMetrics(metrics)
	defer cacheRepo.Close() //nolint:errcheck

	webhooks := service.NewWebhookService(cfg.Webhook, logr).WithMetrics(metrics)
	webhooks.Start(ctx)
	defer webhooks.Stop()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "fees-api",
	})

	feeSvc := service.NewFeeService(feeRepo, studentRepo, cacheRepo, userRepo, webhooks, validate, logr, cfg.Fees.SummaryCacheTTL)
	studentSvc := service.NewStudentService(studentRepo, feeSvc, validate, logr)
	importSvc := service.NewImportService(studentSvc, userRepo, webhooks, logr)
	archiveSvc := service.NewArchiveService(archiveRepo, studentRepo, feeRepo, userRepo, webhooks, validate, logr)
	examSvc := service.NewExamService(examRepo, studentRepo, userRepo, webhooks, validate, logr)

	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(archiveSvc, store, signer, metrics, service.ExportConfig{
		APIPrefix:       cfg.APIPrefix,
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
		Workers:         cfg.Exports.WorkerConcurrency,
		Retries:         cfg.Exports.WorkerRetries,
	}, logr)
	exportSvc.Start(ctx)
	defer exportSvc.Stop()

	authH := handler.NewAuthHandler(authSvc)
	studentH := handler.NewStudentHandler(studentSvc, importSvc)
	feeH := handler.NewFeeHandler(feeSvc)
	archiveH := handler.NewArchiveHandler(archiveSvc, exportSvc)
	examH := handler.NewExamHandler(examSvc)
	metricsH := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsH.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsH.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authH.Login)
	auth.POST("/refresh", authH.Refresh)
	authed := auth.Group("", middleware.JWT(authSvc))
	authed.POST("/logout", authH.Logout)
	authed.GET("/me", authH.Me)

	// Signed download links carry their own auth; no JWT required.
	api.GET("/archives/exports/download/:token", archiveH.Download)

	scoped := api.Group("", middleware.JWT(authSvc), middleware.TenantScope())
	staff := scoped.Group("", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin))

	scoped.GET("/students", studentH.List)
	scoped.GET("/students/:id", studentH.Get)
	scoped.GET("/students/:id/fees", feeH.ListByStudent)
	staff.POST("/students", studentH.Create)
	staff.PUT("/students/:id", studentH.Update)
	staff.DELETE("/students/:id", archiveH.ArchiveStudent)
	staff.POST("/students/:id/advance-year", studentH.AdvanceYear)
	staff.POST("/students/import", studentH.Import)

	scoped.GET("/fees", feeH.List)
	scoped.GET("/fees/summary", feeH.Summary)
	scoped.GET("/fees/:id", feeH.Get)
	staff.POST("/fees", feeH.Create)
	staff.POST("/fees/:id/collect", feeH.Collect)

	scoped.GET("/archives", archiveH.List)
	scoped.GET("/archives/export", archiveH.ExportCSV)
	scoped.GET("/archives/:id", archiveH.Get)
	staff.POST("/archives", archiveH.Archive)
	staff.PUT("/archives/:id/restore", archiveH.Restore)
	staff.POST("/archives/exports", archiveH.Export)
	staff.GET("/archives/exports/:id", archiveH.ExportStatus)

	scoped.GET("/exam-results", examH.List)
	scoped.GET("/exam-results/:id", examH.Get)
	staff.POST("/exam-results", examH.Create)
	staff.PUT("/exam-results/:id", examH.Update)
	staff.POST("/exam-results/publish", examH.Publish)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
