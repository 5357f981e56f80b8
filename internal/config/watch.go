package config

import (
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads configuration when the backing file changes, so breaker,
// cache, and retry tunables can be adjusted without a restart.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}

	mu      sync.RWMutex
	current *Config
	onLoad  func(*Config)
}

// NewWatcher starts watching the given config file. The initial config must
// be loaded by the caller; onLoad is called for every successful reload.
func NewWatcher(path string, initial *Config, onLoad func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the parent directory: editors replace files rather than
	// writing in place, which drops inode-level watches.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		watcher: fw,
		done:    make(chan struct{}),
		current: initial,
		onLoad:  onLoad,
	}
	go w.loop()
	return w, nil
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := LoadFromPath(w.path)
			if err != nil {
				log.Printf("[config] reload failed: %v", err)
				continue
			}
			w.mu.Lock()
			w.current = cfg
			w.mu.Unlock()
			if w.onLoad != nil {
				w.onLoad(cfg)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watch error: %v", err)
		}
	}
}
