package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapcal/internal/event"
)

func writeInboxImage(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte{0x89, 0x50, 0x4E, 0x47}, 0o644))
	return path
}

func TestScanOnce_ProcessesAndMovesImages(t *testing.T) {
	dir := t.TempDir()
	writeInboxImage(t, dir, "flyer.png")
	writeInboxImage(t, dir, "ignored.txt")

	d := &stubDescriber{text: `[{"title":"Gig","start_datetime":"2025-06-01T19:00:00"}]`}
	var sinkCalls int
	w := NewWatcher(New(d, "", time.UTC, event.DefaultPolicy()), dir, "", func(_ context.Context, res Result, _ string) error {
		sinkCalls++
		assert.Len(t, res.Events, 1)
		return nil
	})

	w.ScanOnce(context.Background())

	assert.Equal(t, 1, sinkCalls)
	_, err := os.Stat(filepath.Join(dir, "processed", "flyer.png"))
	assert.NoError(t, err, "processed image should be moved aside")
	_, err = os.Stat(filepath.Join(dir, "flyer.png"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "ignored.txt"))
	assert.NoError(t, err, "non-image files stay put")
}

func TestScanOnce_NoEventsImageIsParked(t *testing.T) {
	dir := t.TempDir()
	writeInboxImage(t, dir, "cat.png")

	d := &stubDescriber{text: "Just a cat. No events."}
	var sinkCalls int
	w := NewWatcher(New(d, "", time.UTC, event.DefaultPolicy()), dir, "", func(context.Context, Result, string) error {
		sinkCalls++
		return nil
	})

	w.ScanOnce(context.Background())

	assert.Zero(t, sinkCalls)
	_, err := os.Stat(filepath.Join(dir, "processed", "cat.png"))
	assert.NoError(t, err, "no-event images are parked, not retried forever")
}

func TestScanOnce_TransientFailureLeavesFile(t *testing.T) {
	dir := t.TempDir()
	writeInboxImage(t, dir, "flyer.png")

	d := &stubDescriber{err: errors.New("model down")}
	w := NewWatcher(New(d, "", time.UTC, event.DefaultPolicy()), dir, "", nil)

	w.ScanOnce(context.Background())

	_, err := os.Stat(filepath.Join(dir, "flyer.png"))
	assert.NoError(t, err, "failed image stays for the next scan")
}

func TestScanOnce_SinkFailureLeavesFile(t *testing.T) {
	dir := t.TempDir()
	writeInboxImage(t, dir, "flyer.png")

	d := &stubDescriber{text: `[{"title":"Gig","start_datetime":"2025-06-01T19:00:00"}]`}
	w := NewWatcher(New(d, "", time.UTC, event.DefaultPolicy()), dir, "", func(context.Context, Result, string) error {
		return errors.New("disk full")
	})

	w.ScanOnce(context.Background())

	_, err := os.Stat(filepath.Join(dir, "flyer.png"))
	assert.NoError(t, err)
}
