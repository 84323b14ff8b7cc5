package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
}

func NewFetcher(httpClient *http.Client, userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

// Run retrieves the raw feed document.
func (f *Fetcher) Run(ctx context.Context, url string) ([]byte, error) {
	return f.get(ctx, url, "")
}

// FetchPage retrieves an article page. A declared non-HTML content type is
// treated as a failed fetch.
func (f *Fetcher) FetchPage(ctx context.Context, url string) ([]byte, error) {
	return f.get(ctx, url, "html")
}

func (f *Fetcher) get(ctx context.Context, url string, wantType string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("HTTP error: %s", resp.Status)}
	}

	if wantType != "" {
		contentType := resp.Header.Get("Content-Type")
		if contentType != "" && !strings.Contains(strings.ToLower(contentType), wantType) {
			return nil, &FetchError{URL: url, Err: fmt.Errorf("content type is not HTML: %s", contentType)}
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return data, nil
}
