package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	watchDebounce             = 200 * time.Millisecond
	watchChangeBuffer         = 4
	createWatcherErrorFormat  = "create watcher: %w"
	resolvePathErrorFormat    = "resolve %s: %w"
	watchDirectoryErrorFormat = "watch %s: %w"
)

// inputWatcher reports debounced changes to a fixed set of files.
// Parent directories are watched so that editors replacing a file by rename are noticed.
type inputWatcher struct {
	Changes <-chan string
	Errors  <-chan error

	changes chan string
	errors  chan error
	files   map[string]struct{}
	done    chan struct{}
	watcher *fsnotify.Watcher
}

func newInputWatcher(paths ...string) (*inputWatcher, error) {
	files := make(map[string]struct{}, len(paths))
	directories := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		absolutePath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf(resolvePathErrorFormat, path, err)
		}
		files[absolutePath] = struct{}{}
		directories[filepath.Dir(absolutePath)] = struct{}{}
	}

	fileWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf(createWatcherErrorFormat, err)
	}
	for directory := range directories {
		if err := fileWatcher.Add(directory); err != nil {
			_ = fileWatcher.Close()
			return nil, fmt.Errorf(watchDirectoryErrorFormat, directory, err)
		}
	}

	changes := make(chan string, watchChangeBuffer)
	errs := make(chan error, watchChangeBuffer)
	watcher := &inputWatcher{
		Changes: changes,
		Errors:  errs,
		changes: changes,
		errors:  errs,
		files:   files,
		done:    make(chan struct{}),
		watcher: fileWatcher,
	}
	go watcher.loop()
	return watcher, nil
}

// Close stops watching and closes the output channels.
func (watcher *inputWatcher) Close() error {
	err := watcher.watcher.Close()
	<-watcher.done
	return err
}

func (watcher *inputWatcher) loop() {
	defer close(watcher.done)
	defer close(watcher.changes)
	defer close(watcher.errors)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(watchDebounce)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-watcher.watcher.Events:
			if !ok {
				return
			}
			if _, watched := watcher.files[filepath.Clean(event.Name)]; !watched {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending[event.Name] = time.Now()
			}

		case <-ticker.C:
			now := time.Now()
			for file, changedAt := range pending {
				if now.Sub(changedAt) >= watchDebounce {
					delete(pending, file)
					select {
					case watcher.changes <- file:
					default:
					}
				}
			}

		case err, ok := <-watcher.watcher.Errors:
			if !ok {
				return
			}
			select {
			case watcher.errors <- err:
			default:
			}
		}
	}
}
