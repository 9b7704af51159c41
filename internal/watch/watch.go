// Package watch ingests PDFs as they appear or change under a folder tree.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"policyrag/internal/ingest"
)

const DefaultDebounce = 2 * time.Second

// FileIngester ingests a single file. *ingest.Service satisfies it.
type FileIngester interface {
	IngestFile(ctx context.Context, path string, force bool) ingest.FileResult
}

type Watcher struct {
	root        string
	ingester    FileIngester
	debounce    time.Duration
	initialScan bool
	onResult    func(ingest.FileResult)
	log         *slog.Logger

	fsw     *fsnotify.Watcher
	pending map[string]time.Time
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithInitialScan ingests the PDFs already present before watching.
func WithInitialScan(on bool) Option { return func(w *Watcher) { w.initialScan = on } }

// WithResultHook is called after every ingestion attempt.
func WithResultHook(fn func(ingest.FileResult)) Option { return func(w *Watcher) { w.onResult = fn } }

func WithLogger(l *slog.Logger) Option { return func(w *Watcher) { w.log = l } }

func New(root string, ingester FileIngester, opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		ingester: ingester,
		debounce: DefaultDebounce,
		pending:  map[string]time.Time{},
	}
	for _, o := range opts {
		o(w)
	}
	if w.log == nil {
		w.log = slog.New(slog.DiscardHandler)
	}
	return w
}

// Run watches until ctx is cancelled. A file is ingested once no event has
// touched it for the debounce interval.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", w.root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()
	w.fsw = fsw

	if err := w.addTree(w.root, w.initialScan); err != nil {
		return err
	}
	w.log.Info("Watching for PDFs.", "root", w.root, "debounce", w.debounce)

	tick := time.NewTicker(w.tickInterval())
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev, time.Now())
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("Watch error.", "error", err)
		case now := <-tick.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) tickInterval() time.Duration {
	return max(w.debounce/4, 10*time.Millisecond)
}

// addTree watches dir and every non-hidden directory below it. With
// schedule set, PDFs found on the way are queued.
func (w *Watcher) addTree(dir string, schedule bool) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if p != dir && hidden(p) {
				return filepath.SkipDir
			}
			if w.fsw != nil {
				if err := w.fsw.Add(p); err != nil {
					return fmt.Errorf("watch %s: %w", p, err)
				}
			}
			return nil
		}
		if schedule && ingest.IsPDF(p) && !hidden(p) {
			w.pending[p] = time.Now()
		}
		return nil
	})
}

func (w *Watcher) handleEvent(ev fsnotify.Event, now time.Time) {
	if hidden(ev.Name) {
		return
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		delete(w.pending, ev.Name)
		return
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
	default:
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if ev.Has(fsnotify.Create) {
			// files may land before the watch is in place
			if err := w.addTree(ev.Name, true); err != nil {
				w.log.Warn("Cannot watch new directory.", "dir", ev.Name, "error", err)
			}
		}
		return
	}
	if ingest.IsPDF(ev.Name) {
		w.pending[ev.Name] = now
	}
}

func (w *Watcher) flush(ctx context.Context, now time.Time) {
	for path, last := range w.pending {
		if now.Sub(last) < w.debounce {
			continue
		}
		delete(w.pending, path)
		res := w.ingester.IngestFile(ctx, path, false)
		w.log.Info("Watched file processed.", "file", path, "status", res.Status, "chunks", res.Chunks)
		if w.onResult != nil {
			w.onResult(res)
		}
	}
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
