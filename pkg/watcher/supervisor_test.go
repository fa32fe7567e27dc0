package watcher

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSupervisor(t *testing.T, uploader *fakeUploader, paths ...string) *Supervisor {
	t.Helper()

	s := NewSupervisor(testLogger(), newTestRouter(uploader, "bucket"), paths)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	return s
}

func TestSupervisor_StartupSweep(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "pre-existing.log", "payload")

	uploader := &fakeUploader{}
	startSupervisor(t, uploader, dir)

	assert.Eventually(t, func() bool {
		return len(uploader.Keys()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.NoFileExists(t, path)
}

func TestSupervisor_EventDriven(t *testing.T) {
	dir := t.TempDir()

	uploader := &fakeUploader{}
	startSupervisor(t, uploader, dir)

	path := writeFile(t, dir, "late.log", "payload")

	assert.Eventually(t, func() bool {
		return len(uploader.Keys()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.NoFileExists(t, path)
	assert.Equal(t, "late.log", filepath.Base(uploader.Keys()[0]))
}

func TestSupervisor_MultipleDirectories(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeFile(t, dirA, "a.log", "x")
	writeFile(t, dirB, "b.log", "y")

	uploader := &fakeUploader{}
	startSupervisor(t, uploader, dirA, dirB)

	assert.Eventually(t, func() bool {
		return len(uploader.Keys()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	keys := uploader.Keys()
	assert.NotEqual(t, keys[0], keys[1])
}

func TestSupervisor_StartUnwatchableDir(t *testing.T) {
	uploader := &fakeUploader{}
	s := NewSupervisor(testLogger(), newTestRouter(uploader, "bucket"),
		[]string{filepath.Join(t.TempDir(), "does-not-exist")})

	assert.Error(t, s.Start(context.Background()))
}

// blockingUploader parks in Put until released and records whether its
// context was canceled while it was blocked.
type blockingUploader struct {
	entered  chan struct{}
	release  chan struct{}
	canceled atomic.Bool
}

func (u *blockingUploader) Put(ctx context.Context, _ string, body io.Reader, _ string) error {
	if _, err := io.ReadAll(body); err != nil {
		return err
	}

	close(u.entered)

	select {
	case <-ctx.Done():
		u.canceled.Store(true)

		return ctx.Err()
	case <-u.release:
		return nil
	}
}

func (u *blockingUploader) Preflight(context.Context) error {
	return nil
}

func TestSupervisor_ShutdownRunsInflightUploadToCompletion(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.log", "payload")

	uploader := &blockingUploader{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := NewSupervisor(testLogger(), newTestRouter(uploader, "bucket"), []string{dir})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	select {
	case <-uploader.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("upload never started")
	}

	// External interruption while the transfer is in flight must not abort
	// it; shutdown only stops further deliveries.
	cancel()
	close(uploader.release)
	s.Stop()

	assert.False(t, uploader.canceled.Load())
	assert.NoFileExists(t, path)
}

// serialUploader flags any two Put calls that overlap in time.
type serialUploader struct {
	inflight   atomic.Int32
	overlapped atomic.Bool

	mu   sync.Mutex
	keys []string
}

func (u *serialUploader) Put(_ context.Context, key string, body io.Reader, _ string) error {
	if u.inflight.Add(1) > 1 {
		u.overlapped.Store(true)
	}
	defer u.inflight.Add(-1)

	if _, err := io.ReadAll(body); err != nil {
		return err
	}

	// Widen the window so an overlapping call would be caught.
	time.Sleep(20 * time.Millisecond)

	u.mu.Lock()
	defer u.mu.Unlock()
	u.keys = append(u.keys, key)

	return nil
}

func (u *serialUploader) Preflight(context.Context) error {
	return nil
}

func (u *serialUploader) Keys() []string {
	u.mu.Lock()
	defer u.mu.Unlock()

	return append([]string(nil), u.keys...)
}

func TestSupervisor_EventsProcessedSequentially(t *testing.T) {
	dir := t.TempDir()

	uploader := &serialUploader{}
	s := NewSupervisor(testLogger(), newTestRouter(uploader, "bucket"), []string{dir})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	// Two files arriving in quick succession are handled one after the
	// other, each under its own key.
	writeFile(t, dir, "a.log", "x")
	writeFile(t, dir, "b.log", "y")

	assert.Eventually(t, func() bool {
		return len(uploader.Keys()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	keys := uploader.Keys()
	assert.NotEqual(t, keys[0], keys[1])
	assert.False(t, uploader.overlapped.Load(), "uploads must never run concurrently")
}

func TestSupervisor_StopWaitsForHandler(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.log", "x")

	uploader := &fakeUploader{}
	s := NewSupervisor(testLogger(), newTestRouter(uploader, "bucket"), []string{dir})
	require.NoError(t, s.Start(context.Background()))

	// Give the sweep a moment to pick the file up, then stop. Stop must not
	// return before the in-flight upload finished.
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	assert.Len(t, uploader.Keys(), 1)
}
