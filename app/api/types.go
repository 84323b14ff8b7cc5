package api

import (
	"net/http"

	"github.com/podcastify/podcastify/app/feed"
)

type Handler struct {
	configCache *feed.ConfigCache
	httpClient  *http.Client
	userAgent   string
	version     string
}
