package upload

import (
	"context"
	"io"
)

// Uploader is the single capability the pipeline needs from the destination
// store: put a byte stream into the configured bucket under a key.
type Uploader interface {
	// Put streams body to the destination under key.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error

	// Preflight verifies that the destination is reachable and writable.
	// Writes a small test object to the bucket to fail fast on misconfiguration.
	Preflight(ctx context.Context) error
}
