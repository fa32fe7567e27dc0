package watcher

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ethpandaops/shippoor/pkg/shipper"
	"github.com/ethpandaops/shippoor/pkg/stability"
	"github.com/sirupsen/logrus"
)

// Router dispatches filesystem notifications into the stabilization and
// upload pipeline. Handlers run one at a time on the supervisor's single
// processing goroutine.
type Router struct {
	log      logrus.FieldLogger
	detector *stability.Detector
	shipper  *shipper.Shipper
}

// NewRouter creates a router.
func NewRouter(
	log logrus.FieldLogger,
	detector *stability.Detector,
	ship *shipper.Shipper,
) *Router {
	return &Router{
		log:      log.WithField("component", "router"),
		detector: detector,
		shipper:  ship,
	}
}

// HandleEvent processes one notification. The switch is exhaustive over
// EventKind.
func (r *Router) HandleEvent(ctx context.Context, ev Event) {
	switch ev.Kind {
	case FileModified:
		r.processFile(ctx, ev.Path)
	case DirModified:
		r.SweepDirectory(ctx, ev.Path)
	case Other:
		r.log.WithField("path", ev.Path).Debug("Ignoring unsupported event")
	}
}

// SweepDirectory processes every regular file directly inside dir as if a
// modification event had fired for it. Used for the startup sweep and for
// directory-modified notifications; both share these semantics.
func (r *Router) SweepDirectory(ctx context.Context, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		r.log.WithError(err).WithField("dir", dir).Warn("Failed to list directory")

		return
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		r.processFile(ctx, filepath.Join(dir, entry.Name()))
	}
}

// processFile runs the stability gate and the upload transition for one file.
func (r *Router) processFile(ctx context.Context, path string) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Race between notification and deletion; not an error.
			r.log.WithField("path", path).Debug("File no longer exists, skipped")
		} else {
			r.log.WithError(err).WithField("path", path).Warn("Stat failed, file skipped")
		}

		return
	}

	if !fi.Mode().IsRegular() {
		r.log.WithField("path", path).Debug("Not a regular file, skipped")

		return
	}

	r.log.WithField("path", path).Info("File modified")

	if !r.detector.WaitForStable(path) {
		// The detector already logged why; the file stays on disk for a
		// later event to pick up.
		return
	}

	r.log.WithField("path", path).Debug("File is stable")

	r.shipper.Ship(ctx, path)
}
