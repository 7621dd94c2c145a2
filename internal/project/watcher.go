package project

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeEvent reports external activity inside one of the mutable project
// directories.
type ChangeEvent struct {
	// Dir is the project-relative directory that changed: "dataset",
	// "pretrain", or "model".
	Dir string
}

// Watcher observes the project directories a user can tamper with by hand
// and delivers debounced change notifications. Shells use it to refresh
// their lists; no registry depends on it for correctness, since reads
// already self-heal against disk state.
type Watcher struct {
	watcher *fsnotify.Watcher
	events  chan ChangeEvent
	stop    chan struct{}
	logger  *zap.Logger
}

// watchDebounce coalesces bursts of filesystem events per directory.
const watchDebounce = 250 * time.Millisecond

// NewWatcher starts watching the project's dataset, pretrain, and model
// directories. Close releases the underlying handles.
func NewWatcher(p *Project, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	for _, dir := range []string{p.DatasetDir(), p.PretrainDir(), p.ModelDir()} {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	w := &Watcher{
		watcher: fw,
		events:  make(chan ChangeEvent, 8),
		stop:    make(chan struct{}),
		logger:  logger,
	}
	go w.run(p.Path())
	return w, nil
}

// Events returns the notification channel. It is closed by Close.
func (w *Watcher) Events() <-chan ChangeEvent { return w.events }

// Close stops the watcher and closes the event channel.
func (w *Watcher) Close() error {
	close(w.stop)
	return w.watcher.Close()
}

func (w *Watcher) run(root string) {
	defer close(w.events)

	pending := make(map[string]bool)
	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			rel, err := filepath.Rel(root, event.Name)
			if err != nil {
				continue
			}
			dir := firstSegment(rel)
			if dir == "" {
				continue
			}
			if len(pending) == 0 {
				timer.Reset(watchDebounce)
			}
			pending[dir] = true

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("project watcher error", zap.Error(err))

		case <-timer.C:
			for dir := range pending {
				select {
				case w.events <- ChangeEvent{Dir: dir}:
				case <-w.stop:
					return
				}
			}
			pending = make(map[string]bool)
		}
	}
}

func firstSegment(rel string) string {
	for i := 0; i < len(rel); i++ {
		if rel[i] == filepath.Separator {
			return rel[:i]
		}
	}
	return rel
}
