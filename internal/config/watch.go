package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// WatchEventFilters watches path for writes and re-invokes onChange with a
// freshly parsed EventFiltersConfig each time the file is replaced. Editors
// commonly rewrite-and-rename rather than write in place, so both Write and
// Create events trigger a reload. Errors from a single reload attempt are
// swallowed (logged by the caller via onChange's own error path) rather than
// stopping the watch loop — a transient partial write shouldn't kill hot
// reload for the rest of the process lifetime.
func WatchEventFilters(path string, onChange func(*EventFiltersConfig, error)) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create watcher")
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, "watch %s", path)
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := LoadEventFiltersConfig(path)
				onChange(cfg, err)
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return w, nil
}
