package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Change is a coalesced notification that the store root changed.
type Change struct {
	Name string
	Op   fsnotify.Op
}

// Watcher reports file changes in a store root so an open file list can
// refresh itself.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	changes   chan Change
	done      chan struct{}
	closeOnce sync.Once
	log       logrus.FieldLogger
}

// Watch starts watching root. Events for hidden and temp files are
// dropped; bursts collapse into the buffered channel.
func Watch(root string, log logrus.FieldLogger) (*Watcher, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsWatcher.Add(root); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		changes:   make(chan Change, 1),
		done:      make(chan struct{}),
		log:       log,
	}
	go w.loop()
	log.WithField("directory", root).Info("watching storage")
	return w, nil
}

// Changes is closed when the watcher stops.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

func (w *Watcher) loop() {
	defer close(w.changes)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".") {
				continue
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Remove) &&
				!event.Op.Has(fsnotify.Rename) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			select {
			case w.changes <- Change{Name: name, Op: event.Op}:
			default:
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("storage watcher error")
		}
	}
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}
