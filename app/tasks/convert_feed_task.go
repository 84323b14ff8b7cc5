package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/podcastify/podcastify/app/feed"
	"github.com/podcastify/podcastify/app/publish"
)

// Result summarizes one conversion.
type Result struct {
	Items          int
	Found          int
	NotFound       int
	Failed         int
	MissingContent int
	SkipEnclosed   int
}

type ConvertFeedTask struct {
	Task
	FeedConfig  *feed.Config
	fetcher     *feed.Fetcher
	transformer *feed.Transformer
	resolver    *feed.Resolver
	verifier    *publish.Verifier
	publisher   publish.Publisher
}

// NewConvertFeedTask builds the fetch, transform, resolve and publish
// pipeline for one feed definition. A nil publisher makes Execute stop after
// verification.
func NewConvertFeedTask(feedConfig *feed.Config, httpClient *http.Client, userAgent string, publisher publish.Publisher) *ConvertFeedTask {
	fetcher := feed.NewFetcher(httpClient, userAgent, feedConfig.Settings.GetTimeout())

	return &ConvertFeedTask{
		Task:        NewTask(TaskTypeConvertFeed, feedConfig.Name),
		FeedConfig:  feedConfig,
		fetcher:     fetcher,
		transformer: feed.NewTransformer(),
		resolver:    feed.NewResolver(fetcher, feedConfig.Settings.AudioSelector),
		verifier:    publish.NewVerifier(),
		publisher:   publisher,
	}
}

func (t *ConvertFeedTask) Execute(ctx context.Context) error {
	data, result, err := t.Build(ctx)
	if err != nil {
		return err
	}

	if t.publisher != nil {
		if err := t.publisher.Publish(ctx, t.FeedConfig.Output, data); err != nil {
			return err
		}
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"id", t.GetID(),
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"items", result.Items,
		"enclosures", result.Found,
		"no_audio", result.NotFound,
		"lookup_errors", result.Failed,
		"missing_content", result.MissingContent)

	return nil
}

// Build runs every stage except delivery and returns the verified feed.
func (t *ConvertFeedTask) Build(ctx context.Context) ([]byte, *Result, error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	default:
	}

	raw, err := t.fetcher.Run(ctx, t.FeedConfig.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	doc, err := t.transformer.Run(raw, t.FeedConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to transform feed: %w", err)
	}

	result := &Result{Items: len(doc.Items)}

	for _, item := range doc.Items {
		if !item.HasContent {
			result.MissingContent++
			continue
		}

		if t.FeedConfig.Settings.SkipEnclosed && item.HasEnclosure() {
			slog.Debug("Item already has an enclosure, skipping lookup", "feed", t.FeedName, "link", item.Link)
			result.SkipEnclosed++
			continue
		}

		switch t.resolver.Apply(ctx, item).Status {
		case feed.ResolveFound:
			result.Found++
		case feed.ResolveNotFound:
			result.NotFound++
		case feed.ResolveFailed:
			result.Failed++
		}
	}

	data, err := publish.Serialize(doc)
	if err != nil {
		return nil, nil, err
	}

	stats, err := t.verifier.Run(data)
	if err != nil {
		return nil, nil, err
	}

	slog.Debug("Feed verified", "feed", t.FeedName, "id", t.GetID(), "title", stats.Title, "items", stats.Items, "enclosures", stats.Enclosures)

	return data, result, nil
}
