package feed

import (
	"time"
)

const (
	ContentNamespace = "http://purl.org/rss/1.0/modules/content/"
	EnclosureType    = "audio/mpeg"

	DefaultAudioSelector = "a.audio-module-listen"
	DefaultTimeout       = 30 // seconds
)

// Missing content:encoded policies
const (
	MissingContentSkip = "skip"
	MissingContentFail = "fail"
)

// Configuration types

type Config struct {
	Name     string         // Derived from filename (without .yml extension)
	URL      string         `yaml:"url"`
	ImageURL string         `yaml:"image_url"`
	Output   string         `yaml:"output"`
	Settings ConfigSettings `yaml:"settings"`
}

type ConfigSettings struct {
	Enabled        bool   `yaml:"enabled"`
	Timeout        int    `yaml:"timeout"`         // seconds
	MissingContent string `yaml:"missing_content"` // skip | fail
	SkipEnclosed   bool   `yaml:"skip_enclosed"`   // leave items that already have an enclosure alone
	AudioSelector  string `yaml:"audio_selector"`
}

func (s ConfigSettings) GetTimeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultTimeout * time.Second
	}
	return time.Duration(s.Timeout) * time.Second
}
