package config

import (
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads a Config from disk on write events, repurposing the
// teacher's fsnotify-based workspace watcher (originally aimed at source
// files) for configuration hot-reload instead.
type Watcher struct {
	path string
	fw   *fsnotify.Watcher

	mu      sync.RWMutex
	current atomic.Pointer[Config]
	onErr   func(error)
}

// NewWatcher loads path once and starts watching it for further writes.
func NewWatcher(path string, onErr func(error)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{path: path, fw: fw, onErr: onErr}
	w.current.Store(cfg)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				if w.onErr != nil {
					w.onErr(err)
				}
				continue
			}
			w.current.Store(cfg)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			if w.onErr != nil {
				w.onErr(err)
			}
		}
	}
}

// Get returns the most recently loaded Config. Safe for concurrent use.
func (w *Watcher) Get() *Config { return w.current.Load() }

// Close stops watching.
func (w *Watcher) Close() error { return w.fw.Close() }
