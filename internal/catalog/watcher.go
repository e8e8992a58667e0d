package catalog

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher reloads a catalog file when it changes on disk and hands each
// successfully loaded catalog to OnReload. A failed reload keeps the
// previous catalog.
type Watcher struct {
	path     string
	debounce time.Duration

	mu      sync.RWMutex
	current *Catalog

	// OnReload is called after each successful reload.
	OnReload func(*Catalog)
	// OnError is called when a reload fails.
	OnError func(error)

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher loads the catalog at path and prepares a watcher for it.
// Call Start to begin watching.
func NewWatcher(path string) (*Watcher, error) {
	cat, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     path,
		debounce: defaultDebounce,
		current:  cat,
		done:     make(chan struct{}),
	}, nil
}

// Current returns the most recently loaded catalog.
func (w *Watcher) Current() *Catalog {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching the catalog's directory. Editors often replace
// files rather than writing in place, so the directory is watched and
// events are filtered by name.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.watcher = watcher

	w.wg.Add(1)
	go w.watch()
	return nil
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
	}
	w.wg.Wait()
	return err
}

func (w *Watcher) watch() {
	defer w.wg.Done()

	target := filepath.Clean(w.path)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&fsnotify.Create != 0 || event.Op&fsnotify.Write != 0 || event.Op&fsnotify.Rename != 0 {
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			}
		case <-fire:
			fire = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.OnError != nil {
				w.OnError(err)
			}
		}
	}
}

func (w *Watcher) reload() {
	cat, err := Load(w.path)
	if err != nil {
		if w.OnError != nil {
			w.OnError(fmt.Errorf("reload catalog: %w", err))
		}
		return
	}

	w.mu.Lock()
	w.current = cat
	w.mu.Unlock()

	if w.OnReload != nil {
		w.OnReload(cat)
	}
}
