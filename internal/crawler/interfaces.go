package crawler

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrRunCancelled unwinds a run after an operator stop or cancel was
// observed at a checkpoint. It is a controlled exit, not a failure.
var ErrRunCancelled = errors.New("crawl run cancelled")

// SkipError marks an expected content-level outcome that should be recorded
// as skipped rather than failed.
type SkipError struct {
	Reason string
}

// NewSkip builds a SkipError for the reason.
func NewSkip(reason string) *SkipError {
	return &SkipError{Reason: reason}
}

func (e *SkipError) Error() string {
	return "skipped: " + e.Reason
}

// SkipReason extracts the reason when err is a SkipError.
func SkipReason(err error) (string, bool) {
	var skip *SkipError
	if errors.As(err, &skip) {
		return skip.Reason, true
	}
	return "", false
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
