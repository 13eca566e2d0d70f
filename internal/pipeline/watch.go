package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"snapcal/internal/extract"
	appLog "snapcal/internal/log"
)

// Sink receives the events of one successful pipeline run, e.g. an ICS
// merge-export or a store batch write.
type Sink func(ctx context.Context, res Result, sourcePath string) error

// Watcher scans an inbox directory of captured images on a cron schedule
// and runs each image through the pipeline, one at a time. Successfully
// processed images move to the processed directory so a scan never picks
// the same file twice; failed ones stay put for the next scan.
type Watcher struct {
	pipe         *Pipeline
	dir          string
	processedDir string
	sink         Sink

	cron *cron.Cron

	// scanMu serializes scans: a slow run must not overlap the next tick.
	scanMu sync.Mutex
}

// NewWatcher builds a Watcher over dir. processedDir defaults to
// dir/processed.
func NewWatcher(pipe *Pipeline, dir, processedDir string, sink Sink) *Watcher {
	if processedDir == "" {
		processedDir = filepath.Join(dir, "processed")
	}
	return &Watcher{
		pipe:         pipe,
		dir:          dir,
		processedDir: processedDir,
		sink:         sink,
	}
}

// Start schedules periodic scans. The schedule is a standard cron string,
// e.g. "*/5 * * * *". Scans stop when ctx is cancelled.
func (w *Watcher) Start(ctx context.Context, schedule string) error {
	if w.dir == "" {
		return errors.New("watch: inbox dir is empty")
	}

	w.cron = cron.New()
	if _, err := w.cron.AddFunc(schedule, func() {
		w.ScanOnce(ctx)
	}); err != nil {
		return err
	}

	appLog.Info("inbox watcher starting", "dir", w.dir, "schedule", schedule)
	w.cron.Start()

	go func() {
		<-ctx.Done()
		stopCtx := w.cron.Stop()
		<-stopCtx.Done()
		appLog.Info("inbox watcher stopped")
	}()
	return nil
}

// ScanOnce processes every image currently in the inbox, sequentially.
// Per-file failures are logged and left in place; they never abort the
// scan.
func (w *Watcher) ScanOnce(ctx context.Context) {
	w.scanMu.Lock()
	defer w.scanMu.Unlock()

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		appLog.Error("inbox scan failed", err, "dir", w.dir)
		return
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if e.IsDir() {
			continue
		}
		mime := MimeTypeForPath(e.Name())
		if mime == "" {
			continue
		}
		w.processFile(ctx, filepath.Join(w.dir, e.Name()), mime)
	}
}

func (w *Watcher) processFile(ctx context.Context, path, mime string) {
	image, err := os.ReadFile(path)
	if err != nil {
		appLog.Error("inbox read failed", err, "path", path)
		return
	}

	res, err := w.pipe.Run(ctx, image, mime)
	if err != nil {
		// A no-events image is final: park it so we do not re-query the
		// model for it on every scan.
		if errors.Is(err, extract.ErrNoJSONFound) || errors.Is(err, extract.ErrNoEventsFound) {
			appLog.Info("inbox image produced no events", "path", path, "reason", err.Error())
			w.moveProcessed(path)
			return
		}
		appLog.Error("inbox pipeline run failed", err, "path", path)
		return
	}

	if w.sink != nil {
		if err := w.sink(ctx, res, path); err != nil {
			appLog.Error("inbox sink failed", err, "path", path)
			return
		}
	}

	appLog.Info("inbox image processed", "path", path, "events", len(res.Events), "dropped", len(res.Dropped))
	w.moveProcessed(path)
}

func (w *Watcher) moveProcessed(path string) {
	if err := os.MkdirAll(w.processedDir, 0o700); err != nil {
		appLog.Error("inbox processed dir create failed", err, "dir", w.processedDir)
		return
	}
	dest := filepath.Join(w.processedDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		appLog.Error("inbox move failed", err, "path", path, "dest", dest)
	}
}

// MimeTypeForPath maps an image file extension to its mime type, or ""
// for files the pipeline does not accept.
func MimeTypeForPath(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	default:
		return ""
	}
}
