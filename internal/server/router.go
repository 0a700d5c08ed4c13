package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/kavelin/labelforge-backend/internal/handlers"
	"github.com/kavelin/labelforge-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler       *handlers.AuthHandler
	AuthMiddleware    *middleware.AuthMiddleware
	JobHandler        *handlers.JobHandler
	TaskHandler       *handlers.TaskHandler
	AnnotationHandler *handlers.AnnotationHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("labelforge-backend"))

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Current-Tenant"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/register", cfg.AuthHandler.Register)
	router.POST("/login", cfg.AuthHandler.Login)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/api")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// Jobs
	protected.POST("/jobs", cfg.JobHandler.Create)
	protected.GET("/jobs/:id", cfg.JobHandler.Get)
	protected.POST("/jobs/:id/start", cfg.JobHandler.Start)
	protected.PUT("/jobs/:id/users", cfg.JobHandler.UpdateUsers)
	protected.GET("/jobs/:id/progress", cfg.JobHandler.Progress)
	// Tasks
	protected.GET("/jobs/:id/tasks", cfg.TaskHandler.ListByJob)
	protected.GET("/tasks/:id", cfg.TaskHandler.Get)
	protected.PATCH("/tasks/:id", cfg.TaskHandler.Edit)
	protected.POST("/tasks/:id/finish", cfg.TaskHandler.Finish)
	// Annotations
	protected.POST("/jobs/:id/files/:fileID/annotations", cfg.AnnotationHandler.Submit)
	protected.GET("/jobs/:id/files/:fileID/annotations", cfg.AnnotationHandler.History)
	protected.GET("/jobs/:id/files/:fileID/manifest", cfg.AnnotationHandler.Manifest)

	return router
}
