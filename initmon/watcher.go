package initmon

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Watcher watches the configuration file for changes.
type Watcher struct {
	// Events receives an event every time the configuration file is written,
	// created or renamed over. Events are dropped while the previous one has
	// not been received yet.
	Events chan EventConfigChanged

	w    *fsnotify.Watcher
	j    Journaler
	path string
}

// TryWatch attempts to watch the given file asynchronously, but it will log
// into the journaler if, for some reason, it fails to watch the file.
func TryWatch(ctx context.Context, path string, j Journaler) *Watcher {
	w := newWatcher(path, j)

	go func() {
		if err := w.init(); err != nil {
			j.Write(&EventWarning{
				Component: "watcher",
				Error:     fmt.Sprintf("not watching config because: %v", err),
			})
			return
		}

		w.watch(ctx)
	}()

	return w
}

// NewWatcher watches the given file and logs events into the journaler. The
// watcher is stopped once the given context is canceled.
func NewWatcher(ctx context.Context, path string, j Journaler) (*Watcher, error) {
	w := newWatcher(path, j)
	if err := w.init(); err != nil {
		return nil, err
	}

	go w.watch(ctx)
	return w, nil
}

func newWatcher(path string, j Journaler) *Watcher {
	return &Watcher{
		Events: make(chan EventConfigChanged, 1),
		j:      j,
		path:   filepath.Clean(path),
	}
}

func (w *Watcher) init() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}

	// Watch the directory rather than the file, since editors usually replace
	// the file instead of writing to it.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return errors.Wrap(err, "failed to watch config directory")
	}

	w.w = watcher
	return nil
}

func (w *Watcher) watch(ctx context.Context) {
	defer w.w.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-w.w.Errors:
			w.j.Write(&EventWarning{
				Component: "watcher",
				Error:     "inotify error: " + err.Error(),
			})

		case evt := <-w.w.Events:
			ev, ok := translateFsnotifyEvt(evt, w.path)
			if !ok {
				continue
			}

			w.j.Write(&ev)

			select {
			case w.Events <- ev:
			default:
			}
		}
	}
}

// translateFsnotifyEvt translates an fsnotify event on the config directory
// into an EventConfigChanged if it concerns the config file.
func translateFsnotifyEvt(evt fsnotify.Event, path string) (EventConfigChanged, bool) {
	if filepath.Clean(evt.Name) != path {
		return EventConfigChanged{}, false
	}

	switch {
	case evt.Op&fsnotify.Write != 0:
		return EventConfigChanged{Path: path, Op: "write"}, true
	case evt.Op&fsnotify.Create != 0:
		return EventConfigChanged{Path: path, Op: "create"}, true
	}

	// Removes and renames away leave nothing to load; the next create will
	// trigger the reload.
	return EventConfigChanged{}, false
}
