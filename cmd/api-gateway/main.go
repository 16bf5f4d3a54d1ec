package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/student-points-api/api/swagger"
	"github.com/noah-isme/student-points-api/internal/handler"
	"github.com/noah-isme/student-points-api/internal/middleware"
	"github.com/noah-isme/student-points-api/internal/models"
	"github.com/noah-isme/student-points-api/internal/repository"
	"github.com/noah-isme/student-points-api/internal/service"
	"github.com/noah-isme/student-points-api/pkg/cache"
	"github.com/noah-isme/student-points-api/pkg/config"
	"github.com/noah-isme/student-points-api/pkg/database"
	"github.com/noah-isme/student-points-api/pkg/export"
	"github.com/noah-isme/student-points-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/student-points-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/student-points-api/pkg/middleware/requestid"
)

// @title Student Points API
// @version 1.0.0
// @description Student point tracking with an auditable adjustment ledger
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
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	validate := validator.New()
	metricsService := service.NewMetricsService()

	var cacheService *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Cache.SummaryTTL, logr, true)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}

	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	pointsRepo := repository.NewPointsRepository(db)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "student-points-api",
	})
	classService := service.NewClassService(classRepo, cacheService, validate, logr, cfg.Points.RecentLimit, cfg.Cache.ClassTTL)
	studentService := service.NewStudentService(studentRepo, classRepo, cacheService, validate, logr)
	pointsService := service.NewPointsService(pointsRepo, studentRepo, cacheService, metricsService, validate, logr, service.PointsConfig{
		MaxDelta:     cfg.Points.MaxDelta,
		HistoryLimit: cfg.Points.HistoryLimit,
		SummaryTTL:   cfg.Cache.SummaryTTL,
	})
	exportService := service.NewExportService(pointsService, export.NewCSVExporter(), export.NewPDFExporter(), logr)

	authHandler := handler.NewAuthHandler(authService)
	classHandler := handler.NewClassHandler(classService)
	studentHandler := handler.NewStudentHandler(studentService)
	pointsHandler := handler.NewPointsHandler(pointsService)
	exportHandler := handler.NewExportHandler(exportService)
	metricsHandler := handler.NewMetricsHandler(metricsService, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authService))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher, models.RoleStaff)

	classes := protected.Group("/classes")
	{
		classes.GET("", classHandler.List)
		classes.GET("/:id", classHandler.Get)
		classes.GET("/:id/details", classHandler.Details)
		classes.POST("", staff, classHandler.Create)
		classes.PUT("/:id", staff, classHandler.Update)
		classes.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), classHandler.Delete)
		classes.POST("/:id/students", staff, studentHandler.BulkCreate)
	}

	students := protected.Group("/students")
	{
		students.GET("", studentHandler.List)
		students.GET("/:id", studentHandler.Get)
		students.POST("", staff, studentHandler.Create)
		students.PUT("/:id", staff, studentHandler.Update)
		students.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), studentHandler.Delete)

		students.POST("/:id/points", staff, pointsHandler.Adjust)
		students.GET("/:id/summary", pointsHandler.Summary)
		if cfg.Points.ExportEnabled {
			students.GET("/:id/history/export", exportHandler.History)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
