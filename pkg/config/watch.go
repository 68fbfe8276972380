package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/sammck-go/abibridge/internal/corelog"
)

// Watcher re-resolves the configuration for one plugin path whenever its
// source file changes on disk, per spec §4.10's live-reload requirement for
// frame_rate and the editor hack toggles. If no config file was found at
// construction time, the directory the plugin lives in is still watched so
// that dropping one in later is picked up.
type Watcher struct {
	logger     corelog.Logger
	pluginPath string
	onChange   func(Result)

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	current Result
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Watch performs an initial Load and then watches for changes, invoking
// onChange with every subsequently resolved Result. onChange is never
// called for the initial load; read the returned Watcher's Current for
// that.
func Watch(logger corelog.Logger, pluginPath string, onChange func(Result)) (*Watcher, error) {
	initial, err := Load(pluginPath)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watchDir := filepath.Dir(pluginPath)
	if initial.SourceFile != "" {
		watchDir = filepath.Dir(initial.SourceFile)
	}
	if err := fsw.Add(watchDir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		logger:     logger,
		pluginPath: pluginPath,
		onChange:   onChange,
		fsw:        fsw,
		current:    *initial,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Current returns the most recently resolved Result.
func (w *Watcher) Current() Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != FileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WLogf("config watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	result, err := Load(w.pluginPath)
	if err != nil {
		w.logger.WLogf("config reload failed, keeping previous values: %v", err)
		return
	}
	w.mu.Lock()
	w.current = *result
	w.mu.Unlock()
	if w.onChange != nil {
		w.onChange(*result)
	}
}

// Close stops the watcher. Idempotent.
func (w *Watcher) Close() error {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	<-w.doneCh
	return w.fsw.Close()
}
