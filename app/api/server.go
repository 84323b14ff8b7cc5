package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates the preview HTTP server with all routes configured
func NewServer(handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("HTTP request",
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start))
	})

	r.Use(gin.Recovery())

	setupRoutes(r, handler)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler) {
	r.GET("/feeds/:name", handler.GetFeed)
	r.GET("/health", handler.GetHealth)

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service":     "podcastify",
			"version":     handler.version,
			"description": "Turns news RSS feeds into podcast feeds by attaching the audio linked from each article",
			"endpoints": map[string]string{
				"feed":   "/feeds/<name>",
				"health": "/health",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}
