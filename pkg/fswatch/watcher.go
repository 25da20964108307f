// Package fswatch turns filesystem events under watched directories into
// registry change notifications. File changes become resources/updated for
// the file's URI; entries appearing or disappearing also become
// roots/list_changed for the enclosing root.
package fswatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/registry"
)

// ErrClosed is returned by Add after Close
var ErrClosed = errors.New("fswatch: watcher closed")

// Watcher watches directory trees. Either registry may be nil.
type Watcher struct {
	fsw       *fsnotify.Watcher
	resources *registry.Resources
	roots     *registry.Roots
	logger    logging.Logger

	mu     sync.Mutex
	dirs   map[string]string // watched directory -> root URI
	closed bool
}

// New creates a watcher that reports into resources and roots
func New(resources *registry.Resources, roots *registry.Roots, logger logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Watcher{
		fsw:       fsw,
		resources: resources,
		roots:     roots,
		logger:    logging.Component(logger, "fswatch"),
		dirs:      make(map[string]string),
	}, nil
}

// PathToURI converts a filesystem path into an absolute file:// URI
func PathToURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// Add watches dir and every directory below it. dir is reported as the root
// for all events in its tree. It returns the root URI.
func (w *Watcher) Add(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("fswatch: %s is not a directory", abs)
	}
	rootURI, err := PathToURI(abs)
	if err != nil {
		return "", err
	}
	if err := w.addTree(abs, rootURI); err != nil {
		return "", err
	}
	w.logger.Info("watching directory", logging.String("path", abs), logging.String("root", rootURI))
	return rootURI, nil
}

func (w *Watcher) addTree(top, rootURI string) error {
	return filepath.WalkDir(top, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// the top directory must be readable; unreadable children are skipped
			if p == top {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.addDir(p, rootURI)
	})
}

func (w *Watcher) addDir(dir, rootURI string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, ok := w.dirs[dir]; ok {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.dirs[dir] = rootURI
	return nil
}

// Dirs returns the number of directories being watched
func (w *Watcher) Dirs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.dirs)
}

// rootFor returns the root URI of the directory containing path
func (w *Watcher) rootFor(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if root, ok := w.dirs[path]; ok {
		return root, true
	}
	root, ok := w.dirs[filepath.Dir(path)]
	return root, ok
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.dirs, path)
}

// Run delivers events until ctx ends or the watcher is closed
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", logging.ErrorField(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	rootURI, ok := w.rootFor(ev.Name)
	if !ok {
		return
	}
	uri, err := PathToURI(ev.Name)
	if err != nil {
		return
	}
	w.logger.Debug("filesystem event", logging.String("path", ev.Name), logging.String("op", ev.Op.String()))

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name, rootURI); err != nil {
				w.logger.Warn("failed to watch new directory", logging.String("path", ev.Name), logging.ErrorField(err))
			}
		}
	}
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		// fsnotify drops watches on removed directories itself
		w.forget(ev.Name)
	}

	if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		if w.resources != nil {
			w.resources.NotifyUpdated(ctx, uri)
		}
	}
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		if w.roots != nil {
			w.roots.NotifyChanged(ctx, rootURI)
		}
	}
}

// Close stops watching. Run returns once the event channels close.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.dirs = make(map[string]string)
	w.mu.Unlock()
	return w.fsw.Close()
}
