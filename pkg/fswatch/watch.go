// Package fswatch watches the data root between upload passes so watch mode
// knows when to rescan.
package fswatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/datadock/datadock/pkg/errors"
)

var fs = afero.NewOsFs()

// Watcher reports filesystem activity under the data root. Events are
// coalesced: a burst of changes collapses into a single token until the
// consumer picks it up.
type Watcher struct {
	watcher *fsnotify.Watcher
	clock   clockwork.Clock

	// Events receives a token whenever something under the root changes.
	Events chan struct{}
}

// Watch watches root and every directory below it. Directories created
// while watching are picked up as they appear. Hidden directories are
// skipped, matching the scanner.
func Watch(root string) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	w := &Watcher{
		watcher: watcher,
		clock:   clockwork.NewRealClock(),
		Events:  make(chan struct{}, 1),
	}
	if err := w.addTree(root); err != nil {
		// Close the watcher so that we release the file handles for the
		// previously added paths.
		if closeErr := watcher.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Failed to close file watcher")
		}
		return nil, err
	}

	go w.run()
	return w, nil
}

// Close releases the file handles held by the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// WaitIdle blocks until something changes under the root and the tree then
// stays quiet for the given duration. Returns false when ctx ends first.
func (w *Watcher) WaitIdle(ctx context.Context, quiet time.Duration) bool {
	select {
	case <-w.Events:
	case <-ctx.Done():
		return false
	}

	for {
		select {
		case <-w.Events:
		case <-w.clock.After(quiet):
			return true
		case <-ctx.Done():
			return false
		}
	}
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				// fsnotify doesn't watch directories recursively, so new
				// ones have to be added as they show up.
				if fi, err := fs.Stat(event.Name); err == nil && fi.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						log.WithError(err).WithField("path", event.Name).
							Warn("Failed to watch new directory")
					}
				}
			}

			select {
			case w.Events <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("File watcher error")
		}
	}
}

func (w *Watcher) addTree(root string) error {
	dirs, err := collectDirs(root)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			return errors.WithContext(err, fmt.Sprintf("watch %q", dir))
		}
	}
	return nil
}

// collectDirs returns root and every directory below it, skipping hidden
// directories.
func collectDirs(root string) (dirs []string, err error) {
	if _, err := fs.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat")
	}

	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk error")
		}
		if !fi.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(filepath.Base(path), ".") {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs, err
}
