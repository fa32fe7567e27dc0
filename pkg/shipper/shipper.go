// Package shipper performs the upload-then-delete transition for a single
// stabilized file.
package shipper

import (
	"context"
	"os"
	"time"

	"github.com/ethpandaops/shippoor/pkg/objectkey"
	"github.com/ethpandaops/shippoor/pkg/upload"
	"github.com/sirupsen/logrus"
)

// DefaultFailureBackoff is the pause after a failed upload, acting as a
// coarse rate limit against tight failure loops (destination outage,
// permission errors).
const DefaultFailureBackoff = 60 * time.Second

// Outcome is the result of one Ship call.
type Outcome int

const (
	// Uploaded means the file reached the destination and was deleted locally.
	Uploaded Outcome = iota

	// Skipped means no bucket is configured; the file is left in place.
	Skipped

	// Failed means the upload did not complete; the file is left in place
	// for a later event to retry.
	Failed
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case Uploaded:
		return "uploaded"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Shipper uploads stabilized files and deletes them locally on success.
type Shipper struct {
	log      logrus.FieldLogger
	keys     *objectkey.Generator
	uploader upload.Uploader
	bucket   string
	backoff  time.Duration

	// Injectable for tests.
	sleep func(time.Duration)
}

// New creates a shipper. bucket may be empty, in which case every Ship call
// skips the upload and keeps the file. uploader may be nil only when bucket
// is empty. Zero backoff falls back to DefaultFailureBackoff.
func New(
	log logrus.FieldLogger,
	keys *objectkey.Generator,
	uploader upload.Uploader,
	bucket string,
	backoff time.Duration,
) *Shipper {
	if backoff <= 0 {
		backoff = DefaultFailureBackoff
	}

	return &Shipper{
		log:      log.WithField("component", "shipper"),
		keys:     keys,
		uploader: uploader,
		bucket:   bucket,
		backoff:  backoff,
		sleep:    time.Sleep,
	}
}

// Ship uploads the file at path under a freshly generated object key and
// deletes it locally once the upload is confirmed. On any failure the local
// file is preserved and the call blocks for the failure backoff before
// returning, so a broken destination cannot spin the pipeline.
func (s *Shipper) Ship(ctx context.Context, path string) Outcome {
	key := s.keys.Key(path)

	if s.bucket == "" {
		s.log.WithField("path", path).Warn("File upload skipped: no bucket configured")

		return Skipped
	}

	s.log.WithFields(logrus.Fields{
		"path":   path,
		"bucket": s.bucket,
		"key":    key,
	}).Info("Uploading file")

	f, err := os.Open(path)
	if err != nil {
		return s.fail(path, key, err)
	}

	err = s.uploader.Put(ctx, key, f, upload.DetectContentType(path))

	_ = f.Close()

	if err != nil {
		return s.fail(path, key, err)
	}

	// Delete strictly after the destination confirmed the upload.
	if err := os.Remove(path); err != nil {
		return s.fail(path, key, err)
	}

	s.log.WithFields(logrus.Fields{
		"path": path,
		"key":  key,
	}).Info("File uploaded and deleted")

	return Uploaded
}

// fail logs the error with full context, preserves the local file, and
// blocks for the configured backoff.
func (s *Shipper) fail(path, key string, err error) Outcome {
	s.log.WithError(err).WithFields(logrus.Fields{
		"path":   path,
		"bucket": s.bucket,
		"key":    key,
	}).Error("Failed to upload file")

	s.sleep(s.backoff)

	return Failed
}
