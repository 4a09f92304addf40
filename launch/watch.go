package launch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Watcher watches the restart trigger file and requests a full restart
// whenever it is touched. Deploy tooling touches the file instead of having
// to know the launcher's pid.
type Watcher struct {
	w    *fsnotify.Watcher
	j    Journaler
	l    *Launcher
	path string
}

// TryWatch attempts to watch the given trigger file asynchronously, but it
// will log into the journaler if, for some reason, it fails to watch.
func TryWatch(ctx context.Context, path string, l *Launcher) *Watcher {
	w := &Watcher{j: l.j, l: l, path: path}

	go func() {
		if err := w.init(); err != nil {
			w.j.Write(&EventWarning{
				Component: "watch",
				Error:     fmt.Sprintf("not watching %q because: %v", path, err),
			})
			return
		}

		w.watch(ctx)
	}()

	return w
}

func (w *Watcher) init() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}

	// Watch the containing directory: the trigger file may not exist yet,
	// and editors replace files rather than write them in place.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return errors.Wrap(err, "failed to watch dir")
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
				Component: "watch",
				Error:     "watch error: " + err.Error(),
			})

		case evt := <-w.w.Events:
			if filepath.Clean(evt.Name) != filepath.Clean(w.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			w.j.Write(&EventWatchTriggered{Path: w.path})
			w.l.Restart()
		}
	}
}
