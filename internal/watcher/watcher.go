// SPDX-License-Identifier: EPL-2.0

// Package watcher imports recordings as they appear under a directory tree.
//
// A file is imported once it has not been written to for the settle period,
// so recorders and copy jobs can finish before it is read. The database is
// tidied on an interval when something was imported, and once more on
// shutdown.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ik5/uwloc/audio"
	"github.com/ik5/uwloc/internal/database"
	"go.uber.org/zap"
)

// Importer is the part of a database the watcher drives.
type Importer interface {
	ImportFile(ctx context.Context, path string) (database.Result, error)
	Tidy(ctx context.Context) error
	Readers() *audio.Registry
}

// Config controls timing.
type Config struct {
	// Settle is how long a file must stay quiet before it is imported.
	Settle time.Duration
	// TidyInterval is how often the database is tidied while imports happen.
	TidyInterval time.Duration
	// Initial imports the files already present before watching.
	Initial bool
}

// Stats counts import outcomes since Run started.
type Stats struct {
	Imported int
	Skipped  int
	Failed   int
}

// Watcher imports files from one directory tree.
type Watcher struct {
	imp Importer
	cfg Config
	log *zap.Logger

	pending map[string]time.Time
	dirty   bool
	stats   Stats
}

// New creates a Watcher.
func New(imp Importer, cfg Config, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}

	return &Watcher{
		imp:     imp,
		cfg:     cfg,
		log:     log.Named("watcher"),
		pending: make(map[string]time.Time),
	}
}

// Run watches dir until ctx is done and returns the import counts.
// Cancellation is not an error; files that have not settled yet are left for
// the next run.
func (w *Watcher) Run(ctx context.Context, dir string) (Stats, error) {
	if w.cfg.Settle <= 0 || w.cfg.TidyInterval <= 0 {
		return w.stats, fmt.Errorf("settle %s and tidy interval %s must be positive", w.cfg.Settle, w.cfg.TidyInterval)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return w.stats, fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, dir, w.cfg.Initial); err != nil {
		return w.stats, err
	}

	w.log.Info("watching", zap.String("dir", dir), zap.Duration("settle", w.cfg.Settle))

	poll := time.NewTicker(max(w.cfg.Settle/4, 10*time.Millisecond))
	defer poll.Stop()

	tidy := time.NewTicker(w.cfg.TidyInterval)
	defer tidy.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.stats, w.shutdown(context.WithoutCancel(ctx))

		case ev, ok := <-fw.Events:
			if !ok {
				return w.stats, w.shutdown(context.WithoutCancel(ctx))
			}

			w.handle(fw, ev)

		case err, ok := <-fw.Errors:
			if !ok {
				return w.stats, w.shutdown(context.WithoutCancel(ctx))
			}

			w.log.Warn("watch error", zap.Error(err))

		case now := <-poll.C:
			w.flush(ctx, now)

		case <-tidy.C:
			w.tidy(ctx)
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			delete(w.pending, ev.Name)
		}

		return
	}

	st, err := os.Stat(ev.Name)
	if err != nil {
		return
	}

	if st.IsDir() {
		if ev.Has(fsnotify.Create) {
			if err := w.addTree(fw, ev.Name, true); err != nil {
				w.log.Warn("cannot watch directory", zap.String("dir", ev.Name), zap.Error(err))
			}
		}

		return
	}

	w.queue(ev.Name)
}

func (w *Watcher) queue(path string) {
	if _, ok := w.imp.Readers().ForPath(path); !ok {
		return
	}

	w.pending[path] = time.Now()
}

// addTree watches root and every directory below it. With queueFiles the
// files already there are queued too.
func (w *Watcher) addTree(fw *fsnotify.Watcher, root string, queueFiles bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if err := fw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}

			return nil
		}

		if queueFiles && d.Type().IsRegular() {
			w.queue(path)
		}

		return nil
	})
}

// flush imports every pending file that has settled.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	for path, seen := range w.pending {
		if now.Sub(seen) < w.cfg.Settle {
			continue
		}

		delete(w.pending, path)
		w.importFile(ctx, path)
	}
}

func (w *Watcher) importFile(ctx context.Context, path string) {
	res, err := w.imp.ImportFile(ctx, path)

	switch {
	case errors.Is(err, database.ErrMissingDeviceID):
		w.stats.Skipped++
		w.log.Info("no device id, skipping", zap.String("file", path))
	case err != nil:
		w.stats.Failed++
		w.log.Warn("import failed", zap.String("file", path), zap.Error(err))
	default:
		w.stats.Imported++
		w.dirty = true
		w.log.Info("imported",
			zap.String("file", path),
			zap.String("device", res.DeviceID),
			zap.Int64("row", res.Segment.Row),
		)
	}
}

func (w *Watcher) tidy(ctx context.Context) {
	if !w.dirty {
		return
	}

	if err := w.imp.Tidy(ctx); err != nil {
		w.log.Warn("tidy failed", zap.Error(err))
		return
	}

	w.dirty = false
}

func (w *Watcher) shutdown(ctx context.Context) error {
	if !w.dirty {
		return nil
	}

	if err := w.imp.Tidy(ctx); err != nil {
		return fmt.Errorf("tidy on shutdown: %w", err)
	}

	w.dirty = false

	return nil
}
