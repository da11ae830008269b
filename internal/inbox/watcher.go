// Package inbox ships record files dropped into a directory.
//
// A Watcher picks up *.jsonl, *.ndjson and *.json files (optionally .gz) as
// they appear, waits until a file has been quiet for the debounce delay, ships
// it and moves it to the done directory.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/bulkship/pkg/batch"
	"github.com/bft-labs/bulkship/pkg/log"
	"github.com/bft-labs/bulkship/pkg/ship"
	"github.com/bft-labs/bulkship/pkg/source"
)

// rejectedSuffix is appended to files that could not be parsed.
const rejectedSuffix = ".rejected"

// Runner ships one record set. *ship.Shipper satisfies this interface.
type Runner interface {
	Run(ctx context.Context, source string, records []batch.Record) (ship.RunReport, error)
}

// Config holds configuration options for a Watcher.
type Config struct {
	// Dir is watched for new files.
	Dir string

	// DoneDir receives processed files.
	// Default: Dir/done
	DoneDir string

	// Debounce is how long a file must stay unchanged before it is shipped.
	// Default: 1 second
	Debounce time.Duration

	// Source overrides the source name derived from each file name.
	Source string
}

// Watcher feeds files from a directory to a Runner, one file at a time.
type Watcher struct {
	cfg    Config
	runner Runner
	logger log.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	ready  chan string
	done   chan struct{}
}

// New creates a Watcher. A nil logger disables logging.
func New(cfg Config, runner Runner, logger log.Logger) *Watcher {
	if cfg.DoneDir == "" {
		cfg.DoneDir = filepath.Join(cfg.Dir, "done")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = time.Second
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Watcher{
		cfg:    cfg,
		runner: runner,
		logger: logger.With(log.Component("inbox")),
		timers: make(map[string]*time.Timer),
		ready:  make(chan string, 64),
		done:   make(chan struct{}),
	}
}

// Run ships files already in the directory, then watches for new ones until
// ctx is cancelled. It returns nil on cancellation and an error only if the
// directory cannot be watched or a file could not be shipped safely.
// Run must be called at most once.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.done)

	if err := os.MkdirAll(w.cfg.DoneDir, 0o700); err != nil {
		return fmt.Errorf("inbox: create done dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", w.cfg.Dir, err)
	}
	defer w.stopTimers()

	w.logger.Info("watching inbox", log.String("dir", w.cfg.Dir), log.String("done_dir", w.cfg.DoneDir))

	existing, err := w.pending()
	if err != nil {
		return err
	}
	for _, path := range existing {
		w.schedule(path)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !source.Supported(event.Name) {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", log.Err(err))

		case path := <-w.ready:
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if _, err := w.ProcessFile(ctx, path); err != nil {
				if errors.Is(err, ship.ErrCancelled) || ctx.Err() != nil {
					return nil
				}
				var fatal *fatalError
				if errors.As(err, &fatal) {
					return fatal.err
				}
			}
		}
	}
}

// ProcessFile ships one file and moves it out of the inbox. Files that cannot
// be parsed are moved to the done directory with a ".rejected" suffix. A file
// is left in place only when its batches could not be persisted.
func (w *Watcher) ProcessFile(ctx context.Context, path string) (ship.RunReport, error) {
	name := w.cfg.Source
	if name == "" {
		name = source.Name(path)
	}

	records, err := source.ReadFile(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return ship.RunReport{}, ctx.Err()
		}
		w.logger.Error("rejecting unreadable file", log.String("file", path), log.Err(err))
		if mvErr := w.move(path, rejectedSuffix); mvErr != nil {
			return ship.RunReport{}, &fatalError{mvErr}
		}
		return ship.RunReport{}, err
	}

	w.logger.Info("shipping file", log.String("file", path), log.String("source", name), log.Int("records", len(records)))
	report, err := w.runner.Run(ctx, name, records)
	if err != nil && !errors.Is(err, ship.ErrCancelled) {
		w.logger.Error("file not shipped", log.String("file", path), log.Err(err))
		return report, &fatalError{err}
	}

	// every record is now delivered or persisted for replay
	if mvErr := w.move(path, ""); mvErr != nil {
		return report, &fatalError{mvErr}
	}
	w.logger.Info("file shipped",
		log.String("file", path),
		log.String("status", string(report.Status)),
		log.Int("succeeded", report.Succeeded),
		log.Int("failed", report.Failed()),
	)
	return report, err
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.cfg.Debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

// pending lists supported files already in the inbox, oldest name first.
func (w *Watcher) pending() ([]string, error) {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("inbox: read %s: %w", w.cfg.Dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !source.Supported(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(w.cfg.Dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func (w *Watcher) move(path, suffix string) error {
	dst := filepath.Join(w.cfg.DoneDir, filepath.Base(path)+suffix)
	if err := os.Rename(path, dst); err != nil {
		return fmt.Errorf("inbox: move %s: %w", filepath.Base(path), err)
	}
	return nil
}

// fatalError stops the watch loop.
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }
