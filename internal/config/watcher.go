package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codegate-ai/codegate/internal/logging"
)

// ReloadFunc receives the freshly loaded configuration after a settings
// file changes on disk.
type ReloadFunc func(*Config)

// Watcher reloads configuration when any settings file changes. Editors
// replace files with rename-and-create, so the parent directories are
// watched rather than the files themselves.
type Watcher struct {
	watcher   *fsnotify.Watcher
	directory string
	onReload  ReloadFunc
	files     map[string]bool

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// NewWatcher creates a watcher over every settings layer for the directory.
func NewWatcher(directory string, onReload ReloadFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	files := map[string]bool{}
	for _, path := range []string{
		UserSettingsPath(),
		ProjectSettingsPath(directory),
		LocalSettingsPath(directory),
		PolicySettingsPath(),
	} {
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		files[abs] = true
		// Missing directories are fine; the layer simply is not watched
		// until it exists and the watcher is restarted.
		if err := fw.Add(filepath.Dir(abs)); err != nil {
			logging.Component("config").Debug().
				Str("dir", filepath.Dir(abs)).
				Err(err).
				Msg("settings directory not watchable")
		}
	}

	return &Watcher{
		watcher:   fw,
		directory: directory,
		onReload:  onReload,
		files:     files,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

// Stop halts the watcher and waits for the goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	close(w.stopCh)
	w.watcher.Close()
	if started {
		<-w.doneCh
	}
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	// Debounce rapid event bursts from editors writing temp files.
	var pending *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil || !w.files[abs] {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Component("config").Error().Err(err).Msg("settings watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.directory)
	if err != nil {
		logging.Component("config").Error().Err(err).Msg("settings reload failed")
		return
	}
	logging.Component("config").Info().Msg("settings reloaded")
	w.onReload(cfg)
}
