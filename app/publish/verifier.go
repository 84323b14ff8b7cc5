package publish

import (
	"bytes"
	"fmt"

	"github.com/mmcdole/gofeed"
	"github.com/podcastify/podcastify/app/feed"
)

type Stats struct {
	Title      string
	ImageURL   string
	Items      int
	Enclosures int
}

// Serialize renders the transformed document for delivery.
func Serialize(doc *feed.Document) ([]byte, error) {
	data, err := doc.Bytes()
	if err != nil {
		return nil, &PublishError{Stage: "serialize", Err: err}
	}
	return data, nil
}

// Verifier re-reads serialized output with an independent feed parser so a
// document podcast clients cannot read is never delivered.
type Verifier struct {
	gofeedParser *gofeed.Parser
}

func NewVerifier() *Verifier {
	return &Verifier{
		gofeedParser: gofeed.NewParser(),
	}
}

func (v *Verifier) Run(data []byte) (*Stats, error) {
	parsed, err := v.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &PublishError{Stage: "verify", Err: fmt.Errorf("output is not a readable feed: %w", err)}
	}
	if parsed.FeedType != "rss" {
		return nil, &PublishError{Stage: "verify", Err: fmt.Errorf("output is a %s feed, expected rss", parsed.FeedType)}
	}

	stats := &Stats{
		Title: parsed.Title,
		Items: len(parsed.Items),
	}
	if parsed.Image != nil {
		stats.ImageURL = parsed.Image.URL
	}
	for _, item := range parsed.Items {
		for _, enclosure := range item.Enclosures {
			if enclosure != nil && enclosure.URL != "" {
				stats.Enclosures++
			}
		}
	}

	return stats, nil
}
