package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rxlens/backend/config"
)

// SetupRouter creates and configures the Gin router.
func SetupRouter(cfg *config.Config, handler *Handler, log *zap.Logger) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(RecoveryMiddleware())
	router.Use(RequestLogger(log))

	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/ndc/:code", handler.GetNdc)
		v1.GET("/statistics", handler.Statistics)
		v1.GET("/export", handler.Export)

		matches := v1.Group("/matches")
		{
			matches.GET("/search", handler.SearchMatches)
			matches.GET("/rxcui/:rxcui", handler.GetByRxcui)
			matches.POST("/batch", handler.RunBatch)
		}
	}

	return router
}
