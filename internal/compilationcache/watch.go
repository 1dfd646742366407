package compilationcache

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DirWatcher invalidates an in-memory front (memCache, or any Cache) when
// files underneath its directory change out from under this process, e.g.
// another process sharing the same cache dir evicts or replaces an entry.
// Most single-process embedders never need this; it exists for the
// multi-process cache-sharing case spec.md §6.3 allows.
type DirWatcher struct {
	watcher *fsnotify.Watcher
	onEvict func(name string)
	log     *logrus.Entry
}

// WatchDir starts watching dir and calls onEvict with the changed file's
// base name whenever an entry is removed or overwritten. The returned
// DirWatcher must be closed to stop the background goroutine.
func WatchDir(dir string, onEvict func(name string), log *logrus.Entry) (*DirWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	dw := &DirWatcher{watcher: w, onEvict: onEvict, log: log}
	go dw.run()
	return dw, nil
}

func (dw *DirWatcher) run() {
	for {
		select {
		case ev, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Write|fsnotify.Rename) != 0 {
				dw.onEvict(filepath.Base(ev.Name))
			}
		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			dw.log.WithError(err).Warn("compilationcache: watch error")
		}
	}
}

// Close stops the watch goroutine.
func (dw *DirWatcher) Close() error { return dw.watcher.Close() }
