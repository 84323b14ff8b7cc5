package feed

import (
	"fmt"
)

// FetchError reports a failed feed or article retrieval.
type FetchError struct {
	URL        string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError reports malformed feed or article markup.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// MissingContentError reports an item without a content:encoded element.
type MissingContentError struct {
	Index int
	Link  string
}

func (e *MissingContentError) Error() string {
	return fmt.Sprintf("item %d (%s) has no content:encoded element", e.Index, e.Link)
}
