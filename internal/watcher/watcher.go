// Package watcher turns directories into inboxes: instruments dropped into a watched
// directory are analyzed once and then moved aside.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/taxonomia/pkg/utils"
)

const (
	defaultDebounce = 400 * time.Millisecond
	queueSize       = 64

	// ProcessedDir receives files that were analyzed successfully.
	ProcessedDir = "processed"
	// FailedDir receives files whose analysis failed.
	FailedDir = "failed"
)

// Handler analyzes the file at path.
type Handler func(ctx context.Context, path string) error

// Inbox watches directories and hands each new instrument file to a Handler, one at a time.
type Inbox struct {
	dirs       []string
	extensions []string
	handle     Handler
	debounce   time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	pending  map[string]*time.Timer
	queue    chan string
	done     chan struct{}
	started  bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(in *Inbox) { in.logger = l }
}

// WithDebounce sets how long a file must stay quiet before it is handled.
func WithDebounce(d time.Duration) Option {
	return func(in *Inbox) {
		if d > 0 {
			in.debounce = d
		}
	}
}

// NewInbox creates an inbox over dirs. Only files whose extension is in extensions are
// handled; an empty list accepts every file.
func NewInbox(dirs, extensions []string, handle Handler, opts ...Option) *Inbox {
	in := &Inbox{
		dirs:       append([]string(nil), dirs...),
		extensions: append([]string(nil), extensions...),
		handle:     handle,
		debounce:   defaultDebounce,
		pending:    make(map[string]*time.Timer),
		queue:      make(chan string, queueSize),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(in)
	}
	in.logger = utils.LoggerOrNop(in.logger)
	return in
}

// Start creates the inbox directories, begins watching them and queues the files already
// present. It runs until ctx is cancelled or Stop is called.
func (in *Inbox) Start(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.started {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	for _, dir := range in.dirs {
		if err := prepareDir(dir); err != nil {
			_ = fw.Close()
			return err
		}
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	in.watcher = fw
	in.started = true
	in.logger.Info("inbox watcher started", zap.Strings("dirs", in.dirs), zap.Strings("extensions", in.extensions))

	in.wg.Add(2)
	go in.run(ctx)
	go in.work(ctx)

	for _, dir := range in.dirs {
		in.scanLocked(dir)
	}
	return nil
}

func prepareDir(dir string) error {
	for _, d := range []string{dir, filepath.Join(dir, ProcessedDir), filepath.Join(dir, FailedDir)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("create inbox directory %s: %w", d, err)
		}
	}
	return nil
}

// scanLocked schedules every eligible file already in dir.
func (in *Inbox) scanLocked(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		in.logger.Warn("failed to read inbox", zap.String("dir", dir), zap.Error(err))
		return
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if !e.IsDir() && in.accepts(path) {
			in.scheduleLocked(path)
		}
	}
}

func (in *Inbox) run(ctx context.Context) {
	defer in.wg.Done()
	events := in.watcher.Events
	errs := in.watcher.Errors
	for {
		select {
		case <-ctx.Done():
			go in.Stop()
			return
		case <-in.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			in.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			in.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (in *Inbox) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	in.logger.Debug("inbox event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		in.cancel(path)
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return
		}
		if !in.accepts(path) {
			return
		}
		in.mu.Lock()
		in.scheduleLocked(path)
		in.mu.Unlock()
	}
}

func (in *Inbox) accepts(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return false
	}
	return matchExtension(path, in.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// scheduleLocked (re)starts the quiet period for path.
func (in *Inbox) scheduleLocked(path string) {
	if !in.started {
		return
	}
	if t, ok := in.pending[path]; ok {
		t.Stop()
	}
	in.pending[path] = time.AfterFunc(in.debounce, func() {
		in.mu.Lock()
		delete(in.pending, path)
		in.mu.Unlock()
		select {
		case in.queue <- path:
		case <-in.done:
		}
	})
}

func (in *Inbox) cancel(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Stop()
		delete(in.pending, path)
	}
}

func (in *Inbox) work(ctx context.Context) {
	defer in.wg.Done()
	for {
		select {
		case <-in.done:
			return
		case path := <-in.queue:
			in.process(ctx, path)
		}
	}
}

func (in *Inbox) process(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	dest := ProcessedDir
	if err := in.handle(ctx, path); err != nil {
		in.logger.Warn("inbox file failed", zap.String("path", path), zap.Error(err))
		dest = FailedDir
	} else {
		in.logger.Info("inbox file analyzed", zap.String("path", path))
	}
	moved, err := moveInto(path, filepath.Join(filepath.Dir(path), dest))
	if err != nil {
		in.logger.Error("failed to move inbox file", zap.String("path", path), zap.Error(err))
		return
	}
	in.logger.Debug("inbox file moved", zap.String("to", moved))
}

// moveInto renames path into dir, suffixing the name with a timestamp if it is taken.
func moveInto(path, dir string) (string, error) {
	name := filepath.Base(path)
	target := filepath.Join(dir, name)
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(name)
		stamp := time.Now().Format("20060102T150405.000")
		target = filepath.Join(dir, strings.TrimSuffix(name, ext)+"-"+stamp+ext)
	}
	if err := os.Rename(path, target); err != nil {
		return "", err
	}
	return target, nil
}

// Directories returns the watched inbox directories.
func (in *Inbox) Directories() []string {
	return append([]string(nil), in.dirs...)
}

// Stop stops watching and waits for the file being handled, if any, to finish.
func (in *Inbox) Stop() {
	in.mu.Lock()
	if !in.started {
		in.mu.Unlock()
		return
	}
	in.started = false
	for path, t := range in.pending {
		t.Stop()
		delete(in.pending, path)
	}
	fw := in.watcher
	in.mu.Unlock()

	in.stopOnce.Do(func() { close(in.done) })
	_ = fw.Close()
	in.wg.Wait()
	in.logger.Info("inbox watcher stopped")
}
