package authtree

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"

	"github.com/cedarauth/cedar/pkg/observability"
)

// Watcher hot-reloads tree definitions when files in the tree directory
// change. A reload replaces the TreeSet wholesale; a failed reload keeps
// the previous trees and logs the error.
type Watcher struct {
	dir     string
	reg     *Registry
	set     *TreeSet
	logger  *observability.Logger
	metrics *observability.Metrics
	fs      *fsnotify.Watcher
}

// NewWatcher creates a watcher for dir, reloading into set.
func NewWatcher(dir string, reg *Registry, set *TreeSet, logger *observability.Logger, metrics *observability.Metrics) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Watcher{dir: dir, reg: reg, set: set, logger: logger, metrics: metrics, fs: fs}, nil
}

// Run processes filesystem events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.reload(event.Name)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("tree watcher error")
		}
	}
}

func (w *Watcher) reload(trigger string) {
	trees, err := LoadDirectory(w.dir, w.reg, w.logger, w.metrics)
	if err != nil {
		w.logger.WithError(err).WithField("trigger", trigger).Error("tree reload failed, keeping previous definitions")
		return
	}
	w.set.Replace(trees)
	w.logger.WithFields(map[string]interface{}{
		"trigger": trigger,
		"trees":   len(trees),
	}).Info("tree definitions reloaded")
}
