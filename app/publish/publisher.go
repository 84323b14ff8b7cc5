package publish

import (
	"context"
	"fmt"
	"strings"
)

const (
	ModeAuto   = "auto"
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Publisher delivers a serialized feed under the given file name.
// Implementations must leave any previously published file untouched when
// delivery fails.
type Publisher interface {
	Publish(ctx context.Context, fileName string, data []byte) error
}

// PublishError reports a serialization, verification or delivery failure.
type PublishError struct {
	Stage string
	Dest  string
	Err   error
}

func (e *PublishError) Error() string {
	if e.Dest == "" {
		return fmt.Sprintf("publish (%s): %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("publish %s (%s): %v", e.Dest, e.Stage, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Select resolves the configured mode to local or remote. Auto mode picks
// local when hostname contains pattern, which is how the production host
// was recognized historically.
func Select(mode, hostname, pattern string) (string, error) {
	switch mode {
	case ModeLocal, ModeRemote:
		return mode, nil
	case ModeAuto, "":
		if pattern != "" && strings.Contains(hostname, pattern) {
			return ModeLocal, nil
		}
		return ModeRemote, nil
	default:
		return "", fmt.Errorf("unknown publish mode %q", mode)
	}
}
