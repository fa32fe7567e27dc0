package stability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when the detector sleeps, so tests run without
// real delays. onSleep runs before the clock advances and can mutate the
// file under observation.
type fakeClock struct {
	t       time.Time
	onSleep func()
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) install(d *Detector) {
	d.now = func() time.Time { return c.t }
	d.sleep = func(dur time.Duration) {
		if c.onSleep != nil {
			c.onSleep()
		}

		c.t = c.t.Add(dur)
	}
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.PanicLevel)

	return log
}

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))

	return path
}

func TestWaitForStable_ConstantSize(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.log", 100)

	d := NewDetector(testLogger(), time.Second, 60*time.Second)
	clock := newFakeClock()
	clock.install(d)

	assert.True(t, d.WaitForStable(path))
	// One full poll interval must elapse before stability is declared.
	assert.Equal(t, time.Second, clock.t.Sub(time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)))
}

func TestWaitForStable_MissingFile(t *testing.T) {
	d := NewDetector(testLogger(), time.Second, 60*time.Second)
	clock := newFakeClock()
	clock.install(d)

	assert.False(t, d.WaitForStable(filepath.Join(t.TempDir(), "nope.log")))
}

func TestWaitForStable_DeletedBetweenPolls(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.log", 100)

	d := NewDetector(testLogger(), time.Second, 60*time.Second)
	clock := newFakeClock()
	clock.onSleep = func() {
		require.NoError(t, os.Remove(path))
	}
	clock.install(d)

	assert.False(t, d.WaitForStable(path))
}

func TestWaitForStable_GrowingFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.log", 10)

	grow := func() {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		require.NoError(t, err)

		_, err = f.Write(make([]byte, 10))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	t.Run("never stops growing before timeout", func(t *testing.T) {
		d := NewDetector(testLogger(), time.Second, 3*time.Second)
		clock := newFakeClock()
		clock.onSleep = grow
		clock.install(d)

		assert.False(t, d.WaitForStable(path))
	})

	t.Run("stabilizes once growth stops", func(t *testing.T) {
		d := NewDetector(testLogger(), time.Second, 60*time.Second)
		clock := newFakeClock()

		polls := 0
		clock.onSleep = func() {
			polls++
			if polls <= 3 {
				grow()
			}
		}
		clock.install(d)

		assert.True(t, d.WaitForStable(path))
		// Three growth polls, then one quiet interval.
		assert.Equal(t, 4, polls)
	})
}

func TestNewDetector_Defaults(t *testing.T) {
	d := NewDetector(testLogger(), 0, 0)

	assert.Equal(t, DefaultPollInterval, d.pollInterval)
	assert.Equal(t, DefaultTimeout, d.timeout)
}
