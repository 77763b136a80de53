// Package watcher reloads the program document when it is edited out of
// band. Editors and scp produce bursts of filesystem events, so the reload
// callback runs only after a quiet period.
package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gardend/gardend/internal/logger"
)

const defaultDebounce = 500 * time.Millisecond

var ErrAlreadyStarted = errors.New("watcher is already started")

// Watcher observes a single file through its parent directory and invokes
// the callback after writes settle. Watching the directory survives the
// rename-over-save most editors do.
type Watcher struct {
	logger   *logger.Logger
	path     string
	debounce time.Duration
	onChange func()

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a watcher for path. onChange runs on the watcher goroutine.
func New(log *logger.Logger, path string, debounce time.Duration, onChange func()) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		logger:   log,
		path:     filepath.Clean(path),
		debounce: debounce,
		onChange: onChange,
	}
}

// Start begins watching. It returns after the filesystem watch is
// established; events are handled until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.started = true
	w.done = make(chan struct{})

	go w.run(ctx, fsw)

	w.logger.Info("file watcher started",
		logger.Field{Key: "path", Value: w.path})
	return nil
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info("file watcher stopped")
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	defer close(w.done)
	defer fsw.Close()

	var quiet *time.Timer
	defer func() {
		if quiet != nil {
			quiet.Stop()
		}
	}()

	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("file event",
				logger.Field{Key: "op", Value: event.Op.String()})
			if quiet != nil {
				quiet.Stop()
			}
			quiet = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			w.onChange()

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", err)
		}
	}
}
