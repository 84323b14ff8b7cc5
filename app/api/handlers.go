package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/podcastify/podcastify/app/feed"
	"github.com/podcastify/podcastify/app/tasks"
)

func NewHandler(configCache *feed.ConfigCache, httpClient *http.Client, userAgent, version string) *Handler {
	return &Handler{
		configCache: configCache,
		httpClient:  httpClient,
		userAgent:   userAgent,
		version:     version,
	}
}

// GetFeed converts the named feed on demand and returns it without
// publishing.
func (h *Handler) GetFeed(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	feedConfig, err := h.configCache.GetConfig(name)
	if err != nil {
		slog.Error("Feed configuration not found", "feed", name, "error", err)
		c.Status(http.StatusNotFound)
		return
	}

	task := tasks.NewConvertFeedTask(feedConfig, h.httpClient, h.userAgent, nil)
	task.Start()

	data, result, err := task.Build(c.Request.Context())
	if err != nil {
		status := statusForError(err)
		slog.Error("Feed conversion failed", "feed", name, "id", task.GetID(), "status", status, "error", err)
		c.Status(status)
		return
	}

	c.Header("X-Feed-Name", name)
	c.Header("X-Feed-Items", strconv.Itoa(result.Items))
	c.Header("X-Feed-Enclosures", strconv.Itoa(result.Found))
	c.Header("X-Run-Id", task.GetID())

	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", data)
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"feeds":     h.configCache.GetConfigCount(),
		"version":   h.version,
	})
}

func statusForError(err error) int {
	var (
		fetchErr   *feed.FetchError
		parseErr   *feed.ParseError
		missingErr *feed.MissingContentError
	)

	switch {
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.As(err, &parseErr), errors.As(err, &missingErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
