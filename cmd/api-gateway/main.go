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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/educlear/educlear-api/api/swagger"
	"github.com/educlear/educlear-api/internal/handler"
	"github.com/educlear/educlear-api/internal/middleware"
	"github.com/educlear/educlear-api/internal/models"
	"github.com/educlear/educlear-api/internal/repository"
	"github.com/educlear/educlear-api/internal/service"
	"github.com/educlear/educlear-api/pkg/cache"
	"github.com/educlear/educlear-api/pkg/config"
	"github.com/educlear/educlear-api/pkg/database"
	"github.com/educlear/educlear-api/pkg/export"
	"github.com/educlear/educlear-api/pkg/logger"
	corsmiddleware "github.com/educlear/educlear-api/pkg/middleware/cors"
	reqidmiddleware "github.com/educlear/educlear-api/pkg/middleware/requestid"
	"github.com/educlear/educlear-api/pkg/storage"
)

// @title EduClear API
// @version 1.0.0
// @description Student clearance management: hall ticket and no-dues approval workflows
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	documentStore, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}
	certificateStore, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init certificate storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	clearanceRepo := repository.NewClearanceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "educlear-api",
	})
	userSvc := service.NewUserService(userRepo, nil, logr)
	studentSvc := service.NewStudentService(studentRepo, nil, logr)

	certificateSvc := service.NewCertificateService(
		clearanceRepo,
		studentRepo,
		userRepo,
		export.NewCertificateRenderer(),
		certificateStore,
		logr,
		service.CertificateOptions{
			Enabled:           cfg.Certificates.Enabled,
			WorkerConcurrency: cfg.Certificates.WorkerConcurrency,
			WorkerRetries:     cfg.Certificates.WorkerRetries,
			RetryDelay:        cfg.Certificates.RetryDelay,
		},
	)
	certificateSvc.SetMetrics(metricsSvc)

	clearanceSvc := service.NewClearanceService(
		clearanceRepo,
		studentRepo,
		userRepo,
		cacheRepo,
		certificateSvc,
		nil,
		logr,
		service.ClearanceOptions{
			CacheEnabled: cfg.TaskQueue.CacheEnabled,
			CacheTTL:     cfg.TaskQueue.CacheTTL,
		},
	)
	clearanceSvc.SetMetrics(metricsSvc)

	documentSvc := service.NewDocumentService(clearanceRepo, documentStore, signer, logr, service.DocumentOptions{
		MaxFileSizeBytes: cfg.Documents.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Documents.AllowedMIMEs,
		DownloadBasePath: cfg.APIPrefix + "/documents/download",
	})

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	clearanceHandler := handler.NewClearanceHandler(clearanceSvc, studentSvc, certificateSvc)
	documentHandler := handler.NewDocumentHandler(documentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	certificateSvc.Start(rootCtx)
	defer certificateSvc.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	users := api.Group("/users", middleware.JWT(authSvc))
	{
		users.GET("", middleware.RequireRoles(models.RoleAdmin), userHandler.List)
		users.POST("", middleware.RequireRoles(models.RoleAdmin), userHandler.Create)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
		users.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Update)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Delete)
	}

	students := api.Group("/students", middleware.JWT(authSvc))
	{
		students.GET("/me", studentHandler.Me)
		students.GET("", middleware.RequireStaff(), studentHandler.List)
		students.POST("", middleware.RequireRoles(models.RoleAdmin), studentHandler.Create)
		students.GET("/:id", middleware.RequireStaff(), studentHandler.Get)
	}

	requests := api.Group("/requests", middleware.JWT(authSvc))
	{
		requests.POST("", clearanceHandler.CreateRequest)
		requests.GET("", clearanceHandler.ListRequests)
		requests.GET("/:id", clearanceHandler.GetRequest)
		requests.GET("/:id/certificate", clearanceHandler.Certificate)
	}

	approvals := api.Group("/approvals", middleware.JWT(authSvc))
	{
		approvals.GET("", middleware.RequireStaff(), clearanceHandler.ListApprovals)
		approvals.GET("/request/:requestId", middleware.RequireStaff(), clearanceHandler.ListRequestApprovals)
		approvals.PUT("/:id", middleware.RequireStaff(), clearanceHandler.DecideApproval)
	}

	documents := api.Group("/documents")
	{
		documents.POST("", middleware.JWT(authSvc), documentHandler.Upload)
		documents.GET("/sign", middleware.JWT(authSvc), documentHandler.Sign)
		// Download authenticates via the signed token itself.
		documents.GET("/download", documentHandler.Download)
	}

	admin := api.Group("/admin", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("/metrics/summary", metricsHandler.Snapshot)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
