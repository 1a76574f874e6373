// Package router registers the query service routes.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/chainrag/internal/chainrag/handler"
)

// Register mounts the handlers on engine.
func Register(engine *gin.Engine, h *handler.Handler) {
	engine.GET("/health", h.Health)
	engine.GET("/healthz", h.Health)
	engine.GET("/readyz", h.Ready)
	engine.GET("/metrics", h.Metrics)
	engine.GET("/version", h.Version)

	v1 := engine.Group("/v1")
	{
		v1.POST("/query", h.Query)
		v1.GET("/models", h.Models)
		v1.GET("/documents", h.Documents)
		v1.POST("/ingest", h.Ingest)
		v1.GET("/stats", h.Stats)
	}

	logger.Info("HTTP routes registered")
}
