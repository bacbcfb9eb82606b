// Package watcher monitors the music directory and triggers a rescan when
// its contents change.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce coalesces bursts of file events into one rescan.
const DefaultDebounce = 2 * time.Second

// Watcher recursively watches a directory tree and fires a debounced
// callback on changes. Hidden files and .tmp files are ignored.
type Watcher struct {
	dir      string
	onChange func()
	debounce time.Duration

	fs *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a watcher over dir that calls onChange after changes settle.
func New(dir string, onChange func()) *Watcher {
	return &Watcher{
		dir:      dir,
		onChange: onChange,
		debounce: DefaultDebounce,
	}
}

// SetDebounce overrides the settle window. Must be called before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start begins watching. It returns once the directory tree is registered;
// event handling runs until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.fs = fs

	go w.loop(ctx)

	if err := w.addTree(w.dir); err != nil {
		fs.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	log.Info().Str("dir", w.dir).Msg("Music directory watcher started")
	return nil
}

// addTree registers dir and every subdirectory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(filepath.Base(path), ".") && path != dir {
				return filepath.SkipDir
			}
			return w.fs.Add(path)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.fs.Close()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
		return
	}

	// New directories join the watch so deeper changes are seen.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fs.Add(event.Name); err != nil {
				log.Warn().Err(err).Str("dir", event.Name).Msg("Failed to watch new directory")
			} else {
				log.Debug().Str("dir", event.Name).Msg("Watching new directory")
			}
		}
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Write) {
		return
	}

	w.schedule()
}

// schedule arms (or re-arms) the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		log.Info().Msg("Music directory changed, triggering rescan")
		w.onChange()
	})
}
