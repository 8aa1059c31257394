// Package notify watches an inbox directory for new message files so the memo
// extractor can pick them up as they arrive.
package notify

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/scrypster/secretary/internal/mailbox"
)

// DefaultSettle is how long a file must stay quiet before it is delivered.
const DefaultSettle = 250 * time.Millisecond

// InboxWatcher watches a mail directory tree and calls back with the path of
// every message file that appears or changes. Bursts of events for one file
// are coalesced: the callback runs once the file has been quiet for the
// settle interval.
type InboxWatcher struct {
	dir      string
	callback func(path string)
	logger   *zap.Logger
	settle   time.Duration

	watcher *fsnotify.Watcher
	done    chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

// Option configures an InboxWatcher.
type Option func(*InboxWatcher)

// WithSettle sets the quiet interval before a file is delivered.
func WithSettle(d time.Duration) Option {
	return func(w *InboxWatcher) { w.settle = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *InboxWatcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewInboxWatcher creates a watcher for dir. callback may be invoked from
// several goroutines and must be safe for that.
func NewInboxWatcher(dir string, callback func(path string), opts ...Option) *InboxWatcher {
	w := &InboxWatcher{
		dir:      dir,
		callback: callback,
		logger:   zap.NewNop(),
		settle:   DefaultSettle,
		done:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start delivers the message files already present, in lexical order, then
// watches for new ones. Call Stop to clean up.
func (w *InboxWatcher) Start() error {
	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	var existing []string
	err = filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		if isCandidate(path) {
			existing = append(existing, path)
		}
		return nil
	})
	if err != nil {
		_ = fw.Close()
		return err
	}

	w.watcher = fw

	for _, path := range existing {
		w.callback(path)
	}

	go w.loop()
	w.logger.Info("watching inbox", zap.String("dir", w.dir))
	return nil
}

// Stop shuts down the watcher and drops deliveries that have not fired yet.
func (w *InboxWatcher) Stop() {
	if w.watcher == nil {
		return
	}
	_ = w.watcher.Close()
	<-w.done

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *InboxWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(evt)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *InboxWatcher) handle(evt fsnotify.Event) {
	if !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Write) {
		return
	}

	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			w.addTree(evt.Name)
			return
		}
	}

	if isCandidate(evt.Name) {
		w.schedule(evt.Name)
	}
}

// addTree watches a directory created after Start and schedules any files
// written into it before the watch was in place.
func (w *InboxWatcher) addTree(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				w.logger.Warn("cannot watch directory", zap.String("dir", path), zap.Error(err))
			}
			return nil
		}
		if isCandidate(path) {
			w.schedule(path)
		}
		return nil
	})
}

func (w *InboxWatcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() { w.fire(path) })
}

func (w *InboxWatcher) fire(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	stopped := w.stopped
	w.mu.Unlock()

	if !stopped {
		w.callback(path)
	}
}

// isCandidate accepts message files and ignores hidden staging files.
func isCandidate(path string) bool {
	return !strings.HasPrefix(filepath.Base(path), ".") && mailbox.IsMessageFile(path)
}
