// Package stability decides when a file has finished being written.
//
// The heuristic is size-based: a file whose size is unchanged across two
// consecutive polls is treated as complete. A writer that pauses for a full
// poll interval mid-write will be declared stable early; that is an accepted
// tradeoff of the approach.
package stability

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultPollInterval is the delay between size checks.
	DefaultPollInterval = 1 * time.Second

	// DefaultTimeout bounds how long a single file is watched for stability.
	DefaultTimeout = 60 * time.Second
)

// Detector polls a file's size until it stops changing or a timeout elapses.
type Detector struct {
	log          logrus.FieldLogger
	pollInterval time.Duration
	timeout      time.Duration

	// Injectable clock for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// NewDetector creates a detector. Zero pollInterval or timeout fall back to
// the defaults.
func NewDetector(log logrus.FieldLogger, pollInterval, timeout time.Duration) *Detector {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Detector{
		log:          log.WithField("component", "stability"),
		pollInterval: pollInterval,
		timeout:      timeout,
		now:          time.Now,
		sleep:        time.Sleep,
	}
}

// WaitForStable blocks until the file at path keeps the same size across two
// consecutive polls, then returns true. It returns false if the file
// disappears, the path cannot be stat'd, or the timeout elapses before two
// equal observations.
//
// The size baseline starts at an impossible -1, so at least one full poll
// interval elapses before stability can be declared.
func (d *Detector) WaitForStable(path string) bool {
	start := d.now()
	lastSize := int64(-1)

	for d.now().Sub(start) < d.timeout {
		fi, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				d.log.WithField("path", path).Debug("File vanished while waiting for stability")

				return false
			}

			d.log.WithError(err).WithField("path", path).Warn("Stat failed while waiting for stability")

			return false
		}

		if fi.Size() == lastSize {
			return true
		}

		d.log.WithFields(logrus.Fields{
			"path": path,
			"size": fi.Size(),
		}).Debug("File still changing")

		lastSize = fi.Size()

		d.sleep(d.pollInterval)
	}

	d.log.WithFields(logrus.Fields{
		"path":    path,
		"timeout": d.timeout,
	}).Warn("File did not stabilize before timeout")

	return false
}
