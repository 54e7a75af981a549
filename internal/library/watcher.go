package library

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultSettle is how long a new file is left alone before it is read, so
// that copies in progress are not picked up half written.
const DefaultSettle = 500 * time.Millisecond

// Watcher follows a music directory tree and keeps the catalog current as
// audio files appear and disappear.
type Watcher struct {
	scanner *Scanner
	root    string
	settle  time.Duration
	logger  logrus.FieldLogger

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
	once    sync.Once
}

// NewWatcher creates a watcher for root. Call Start to begin watching.
func NewWatcher(scanner *Scanner, root string, settle time.Duration) *Watcher {
	return &Watcher{
		scanner: scanner,
		root:    root,
		settle:  settle,
		logger:  scanner.logger.WithField("component", "watcher"),
	}
}

// Start registers every directory under root and handles events until ctx
// is done or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	if err := w.addTree(w.root); err != nil {
		watcher.Close()
		return err
	}

	w.wg.Add(1)
	go w.loop(ctx)

	w.logger.WithField("root", w.root).Info("File watcher started")
	return nil
}

// Close stops watching and waits for pending file handling to finish.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		if w.watcher != nil {
			err = w.watcher.Close()
		}
	})
	w.wg.Wait()
	return err
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			w.once.Do(func() { w.watcher.Close() })
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("File watcher error")
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
		return
	}
	audio := w.scanner.extractor.IsAudioFile(event.Name)

	switch {
	case event.Has(fsnotify.Create) && audio:
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			select {
			case <-time.After(w.settle):
			case <-ctx.Done():
				return
			}
			w.added(event.Name)
		}()

	case (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) && audio:
		w.scanner.Remove(event.Name)

	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.WithError(err).WithField("directory", event.Name).Warn("Could not watch new directory")
				return
			}
			w.logger.WithField("directory", event.Name).Info("Watching new directory")
		}
	}
}

func (w *Watcher) added(path string) {
	log := w.logger.WithField("path", path)

	exists, err := w.scanner.catalog.SoundExists(path)
	if err != nil {
		log.WithError(err).Error("Error checking if sound exists")
		return
	}
	if exists {
		log.Debug("Sound already in catalog")
		return
	}
	if w.scanner.Add(path) {
		log.Info("Added new sound")
	}
}
