package daemon

import (
	"errors"
	"os"

	"github.com/dunova/silent-context-foundry/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// wakeWatcher nudges the run loop out of its sleep when a monitored
// directory sees a write. It carries no data: the next pass discovers
// whatever changed through the normal cursor protocol, so a missed or
// spurious event costs at most one poll interval.
type wakeWatcher struct {
	fs *fsnotify.Watcher
}

func startWakeWatcher(dirs []string, wake chan<- struct{}) (*wakeWatcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	added := 0
	for _, dir := range dirs {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := fs.Add(dir); err != nil {
			logging.Warnf("watch %s: %v", dir, err)
			continue
		}
		added++
	}
	if added == 0 {
		fs.Close()
		return nil, errors.New("no watchable directories")
	}

	go func() {
		for {
			select {
			case ev, ok := <-fs.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-fs.Errors:
				if !ok {
					return
				}
				logging.Warnf("wake watcher: %v", err)
			}
		}
	}()

	logging.Infof("Wake watcher active on %d directories", added)
	return &wakeWatcher{fs: fs}, nil
}

func (w *wakeWatcher) Close() {
	w.fs.Close()
}
