package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

type LocalPublisher struct {
	dir     string
	lockDir string
}

// NewLocalPublisher publishes into dir. Lock files live in the system temp
// directory so nothing but the feed appears in dir.
func NewLocalPublisher(dir string) *LocalPublisher {
	return &LocalPublisher{dir: dir, lockDir: os.TempDir()}
}

// Publish writes data next to the destination and renames it into place
// while holding the destination's lock.
func (p *LocalPublisher) Publish(ctx context.Context, fileName string, data []byte) error {
	dest := filepath.Join(p.dir, fileName)

	if err := ctx.Err(); err != nil {
		return &PublishError{Stage: "write", Dest: dest, Err: err}
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return &PublishError{Stage: "write", Dest: dest, Err: fmt.Errorf("create directory: %w", err)}
	}

	lock := flock.New(p.lockPath(dest))
	ok, err := lock.TryLock()
	if err != nil {
		return &PublishError{Stage: "lock", Dest: dest, Err: err}
	}
	if !ok {
		return &PublishError{Stage: "lock", Dest: dest, Err: fmt.Errorf("another run is publishing this feed")}
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("Failed to release publish lock", "path", dest, "error", err)
		}
	}()

	if err := writeFileAtomic(dest, data); err != nil {
		return &PublishError{Stage: "write", Dest: dest, Err: err}
	}

	slog.Info("Feed published", "path", dest, "bytes", len(data))
	return nil
}

// lockPath names the lock after the absolute destination, so two relative
// spellings of the same file share one lock.
func (p *LocalPublisher) lockPath(dest string) string {
	if abs, err := filepath.Abs(dest); err == nil {
		dest = abs
	}
	sum := sha256.Sum256([]byte(dest))
	return filepath.Join(p.lockDir, "podcastify-"+filepath.Base(dest)+"-"+hex.EncodeToString(sum[:8])+".lock")
}

func writeFileAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
