package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/agentd-ai/agentd/internal/logging"
)

// Watcher monitors a project's .agentd directory and reloads the project
// config when it changes, so yolo-mode and model edits apply to live
// sessions without a restart.
type Watcher struct {
	watcher   *fsnotify.Watcher
	directory string
	onChange  func(*Project)
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
	mu        sync.Mutex
}

// NewWatcher creates a watcher for the project at directory. onChange is
// called with the freshly loaded config after every relevant filesystem
// event. Returns nil when the project has no .agentd directory to watch.
func NewWatcher(directory string, onChange func(*Project)) (*Watcher, error) {
	confDir := filepath.Join(directory, ".agentd")
	if ProjectConfigFile(directory) == "" {
		return nil, nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory rather than the file: editors replace config
	// files by rename, which breaks per-file watches.
	if err := w.Add(confDir); err != nil {
		w.Close()
		return nil, err
	}

	return &Watcher{
		watcher:   w,
		directory: directory,
		onChange:  onChange,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start begins delivering config reloads.
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

func (w *Watcher) run() {
	defer close(w.doneCh)
	log := logging.Component("config.watcher")

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			cfg, err := LoadProject(w.directory)
			if err != nil {
				log.Warn().Err(err).Str("directory", w.directory).Msg("project config reload failed")
				continue
			}
			log.Debug().Str("directory", w.directory).Msg("project config reloaded")
			w.onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

// Stop halts the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		w.watcher.Close()
		return
	}
	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
	w.started = false
}
