package discovery

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of filesystem events into one rescan.
const DefaultDebounce = 250 * time.Millisecond

// Watcher calls onChange when a manifest in a watched directory changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	onChange func()
	onError  func(error)
	debounce time.Duration
}

// NewWatcher watches dirs. Directories that cannot be watched are reported
// through onError and skipped.
func NewWatcher(dirs []string, onChange func(), onError func(error), debounce time.Duration) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("watcher callback is required")
	}
	if onError == nil {
		onError = func(error) {}
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	for _, dir := range dirs {
		if err := fw.Add(dir); err != nil {
			onError(fmt.Errorf("watch %s: %w", dir, err))
		}
	}
	return &Watcher{watcher: fw, onChange: onChange, onError: onError, debounce: debounce}, nil
}

// Watched lists the directories currently watched.
func (w *Watcher) Watched() []string {
	return w.watcher.WatchList()
}

// Run blocks until ctx is done. onChange runs on this goroutine, so rescans
// never overlap.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.onError(err)
		case <-timer.C:
			pending = false
			w.onChange()
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Ext(event.Name), ".json") {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
