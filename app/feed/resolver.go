package feed

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type ResolveStatus string

const (
	ResolveFound    ResolveStatus = "found"
	ResolveNotFound ResolveStatus = "not_found"
	ResolveFailed   ResolveStatus = "failed"
)

// Resolution is the outcome of an audio lookup for one article. A Failed
// resolution is handled exactly like NotFound by callers; Err says why.
type Resolution struct {
	Status ResolveStatus
	URL    string
	Err    error
}

type pageFetcher interface {
	FetchPage(ctx context.Context, url string) ([]byte, error)
}

type Resolver struct {
	fetcher  pageFetcher
	selector string
}

func NewResolver(fetcher pageFetcher, selector string) *Resolver {
	if selector == "" {
		selector = DefaultAudioSelector
	}
	return &Resolver{
		fetcher:  fetcher,
		selector: selector,
	}
}

// Run looks up the audio link on the article page. It never fails: fetch and
// parse errors come back as a Failed resolution.
func (r *Resolver) Run(ctx context.Context, link string) Resolution {
	if link == "" {
		return Resolution{Status: ResolveFailed, Err: errors.New("item has no link")}
	}

	data, err := r.fetcher.FetchPage(ctx, link)
	if err != nil {
		return Resolution{Status: ResolveFailed, Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return Resolution{Status: ResolveFailed, Err: &ParseError{What: "article " + link, Err: err}}
	}

	href, ok := doc.Find("body").Find(r.selector).First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return Resolution{Status: ResolveNotFound}
	}

	return Resolution{Status: ResolveFound, URL: absoluteURL(link, href)}
}

// Apply resolves the item's audio link and attaches an enclosure when found.
func (r *Resolver) Apply(ctx context.Context, item *Item) Resolution {
	res := r.Run(ctx, item.Link)

	switch res.Status {
	case ResolveFound:
		item.AttachEnclosure(res.URL)
		slog.Debug("Audio found", "link", item.Link, "audio", res.URL)
	case ResolveNotFound:
		slog.Debug("No audio on article page", "link", item.Link)
	case ResolveFailed:
		slog.Warn("Audio lookup failed, leaving item without enclosure", "link", item.Link, "error", res.Err)
	}

	return res
}

func absoluteURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
