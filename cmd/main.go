package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/kavelin/labelforge-backend/internal/clients/agreement"
	"github.com/kavelin/labelforge-backend/internal/clients/assets"
	"github.com/kavelin/labelforge-backend/internal/clients/gcp"
	"github.com/kavelin/labelforge-backend/internal/clients/jobstatus"
	"github.com/kavelin/labelforge-backend/internal/clients/redis"
	"github.com/kavelin/labelforge-backend/internal/config"
	"github.com/kavelin/labelforge-backend/internal/db"
	"github.com/kavelin/labelforge-backend/internal/handlers"
	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/middleware"
	"github.com/kavelin/labelforge-backend/internal/observability"
	"github.com/kavelin/labelforge-backend/internal/repos"
	"github.com/kavelin/labelforge-backend/internal/server"
	"github.com/kavelin/labelforge-backend/internal/services"
	"github.com/kavelin/labelforge-backend/internal/utils"
)

func main() {
	_ = godotenv.Load()

	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "labelforge-backend",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	})
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)

	// Settings
	cfg, err := config.Load(log)
	if err != nil {
		log.Error("Could not load settings", "error", err)
		os.Exit(1)
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	jobRepo := repos.NewJobRepo(thePG, log)
	fileRepo := repos.NewJobFileRepo(thePG, log)
	taskRepo := repos.NewTaskRepo(thePG, log)
	revisionRepo := repos.NewRevisionRepo(thePG, log)
	revisionLinkRepo := repos.NewRevisionLinkRepo(thePG, log)
	agreementScoreRepo := repos.NewAgreementScoreRepo(thePG, log)

	// Clients
	log.Info("Setting up Clients from main...")
	bucketService, err := gcp.NewBucketService(log)
	if err != nil {
		log.Warn("Could not init BucketService", "error", err)
	}
	manifestCache, err := redis.NewManifestCache(log)
	if err != nil {
		log.Warn("Could not init ManifestCache", "error", err)
	}
	assetsClient := assets.NewClient(log)
	agreementScorer := agreement.NewClient(log)
	jobStatusClient := jobstatus.NewClient(log)

	// Services
	log.Info("Setting up Services from main...")
	balancer := services.NewLoadBalancer(log)
	distributor := services.NewTaskDistributor(log, cfg, balancer, taskRepo, fileRepo, userRepo)
	consensus := services.NewConsensusEngine(log, cfg, agreementScorer, agreementScoreRepo)
	lifecycle := services.NewTaskLifecycle(log, taskRepo, fileRepo, jobRepo, revisionRepo, distributor, consensus, jobStatusClient)
	revisionStore := services.NewRevisionStore(log, revisionRepo, revisionLinkRepo, bucketService, manifestCache)
	jobService := services.NewJobService(thePG, log, jobRepo, fileRepo, taskRepo, userRepo, distributor, lifecycle, assetsClient, jobStatusClient)
	taskService := services.NewTaskService(log, taskRepo, fileRepo, distributor)
	annotationService := services.NewAnnotationService(thePG, log, taskRepo, revisionRepo, lifecycle, revisionStore)
	authService := services.NewAuthService(log, userRepo, jwtSecretKey, accessTokenTTL)

	// Handlers
	log.Info("Setting up handlers from main...")
	authHandler := handlers.NewAuthHandler(log, authService)
	jobHandler := handlers.NewJobHandler(log, jobService)
	taskHandler := handlers.NewTaskHandler(log, taskService, jobService)
	annotationHandler := handlers.NewAnnotationHandler(log, annotationService)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:       authHandler,
		AuthMiddleware:    authMiddleware,
		JobHandler:        jobHandler,
		TaskHandler:       taskHandler,
		AnnotationHandler: annotationHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
