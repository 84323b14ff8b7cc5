package feed

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/htmlindex"
)

type Transformer struct{}

func NewTransformer() *Transformer {
	return &Transformer{}
}

// Run parses the fetched feed, replaces the channel image URL and marks every
// item's content:encoded body as CDATA.
func (t *Transformer) Run(data []byte, feedConfig *Config) (*Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader

	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &ParseError{What: "feed", Err: err}
	}

	root := doc.Root()
	if root == nil || root.Tag != "rss" {
		return nil, &ParseError{What: "feed", Err: errors.New("missing <rss> root element")}
	}

	channels := childElements(root, "channel")
	if len(channels) == 0 {
		return nil, &ParseError{What: "feed", Err: errors.New("missing <channel> element")}
	}

	d := &Document{doc: doc, channel: channels[0]}

	replaced := 0
	for _, image := range childElements(d.channel, "image") {
		for _, u := range childElements(image, "url") {
			u.SetText(feedConfig.ImageURL)
			replaced++
		}
	}
	if replaced == 0 {
		slog.Debug("Channel has no image URL, leaving it as is", "feed", feedConfig.Name)
	}

	for i, el := range childElements(d.channel, "item") {
		item := &Item{
			Index:   i,
			Link:    childText(el, "link"),
			element: el,
		}

		content := findContentEncoded(el)
		if content == nil {
			missingErr := &MissingContentError{Index: i, Link: item.Link}
			if feedConfig.Settings.MissingContent == MissingContentFail {
				return nil, missingErr
			}
			slog.Warn("Skipping item", "feed", feedConfig.Name, "error", missingErr)
		} else {
			item.HasContent = true
			markCData(content, feedConfig.Name)
		}

		d.Items = append(d.Items, item)
	}

	return d, nil
}

// markCData collapses the direct character data of content into a single
// CDATA section at the position of the first run. Comments and other tokens
// stay where they were.
func markCData(content *etree.Element, feedName string) {
	var parts []string
	first := -1
	for _, tok := range content.Child {
		if cd, ok := tok.(*etree.CharData); ok {
			if first < 0 {
				first = cd.Index()
			}
			parts = append(parts, cd.Data)
		}
	}
	text := strings.Join(parts, "")
	if strings.Contains(text, "]]>") {
		slog.Warn("Content contains a CDATA terminator, keeping it as escaped text", "feed", feedName)
		return
	}

	for i := len(content.Child) - 1; i >= 0; i-- {
		if _, ok := content.Child[i].(*etree.CharData); ok {
			content.RemoveChildAt(i)
		}
	}
	if first < 0 {
		first = 0
	}
	cdata := etree.NewElement("scratch").CreateCData(text)
	content.InsertChildAt(first, cdata)
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}
