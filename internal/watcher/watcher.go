// Package watcher streams filesystem changes for agents that have no hook
// system of their own.
package watcher

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kulti/stream/pkg/kulti"
)

const (
	DefaultDebounce     = 500 * time.Millisecond
	DefaultMaxFileBytes = 100_000
	maxContentChars     = 5000

	// Goal is announced once when watching starts.
	Goal = "Watching filesystem for changes"
)

var defaultIgnore = []string{
	"node_modules", ".git", "dist", "build", ".next", "__pycache__",
	".env", ".DS_Store", ".swp", ".swo",
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml",
}

var binaryExt = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true, ".svg": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".zip": true, ".tar": true, ".gz": true, ".br": true,
	".mp3": true, ".mp4": true, ".wav": true, ".webm": true,
	".pdf": true, ".doc": true, ".xls": true,
}

// Sender delivers payloads; *kulti.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, p *kulti.Payload) error
}

type Config struct {
	Root string
	// Ignore adds path components to the default ignore set.
	Ignore       []string
	Debounce     time.Duration
	MaxFileBytes int64
}

type Watcher struct {
	root     string
	sender   Sender
	ignore   map[string]bool
	debounce time.Duration
	maxBytes int64

	mu      sync.Mutex
	pending map[string]*change
	wg      sync.WaitGroup
}

// change is a debounced event for one path.
type change struct {
	op    fsnotify.Op
	timer *time.Timer
}

func New(cfg Config, s Sender) (*Watcher, error) {
	root := cfg.Root
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}

	w := &Watcher{
		root:     abs,
		sender:   s,
		ignore:   make(map[string]bool),
		debounce: cfg.Debounce,
		maxBytes: cfg.MaxFileBytes,
		pending:  make(map[string]*change),
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.maxBytes <= 0 {
		w.maxBytes = DefaultMaxFileBytes
	}
	for _, p := range defaultIgnore {
		w.ignore[p] = true
	}
	for _, p := range cfg.Ignore {
		if p = strings.TrimSpace(p); p != "" {
			w.ignore[p] = true
		}
	}
	return w, nil
}

// SplitIgnore parses a comma separated ignore list such as KULTI_WATCH_IGNORE.
func SplitIgnore(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (w *Watcher) Root() string { return w.root }

// Ignored reports whether a path relative to the root is skipped.
func (w *Watcher) Ignored(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if w.ignore[part] || strings.HasPrefix(part, ".env") {
			return true
		}
	}
	return binaryExt[strings.ToLower(filepath.Ext(rel))]
}

// Run watches the tree until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}
	if err := w.sender.Send(ctx, &kulti.Payload{Goal: &kulti.Goal{Title: Goal}}); err != nil {
		slog.Warn("watcher goal not sent", "error", err)
	}
	slog.Info("watching", "root", w.root)

	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.onEvent(ctx, fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		}
	}
}

// addTree registers dir and every non-ignored directory beneath it.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories can vanish mid-walk.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(w.root, path); rel != "." && w.Ignored(rel) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) onEvent(ctx context.Context, fw *fsnotify.Watcher, ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || w.Ignored(rel) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(fw, ev.Name); err != nil {
				slog.Warn("watch new directory failed", "path", rel, "error", err)
			}
			return
		}
	}
	if ev.Op == fsnotify.Chmod {
		return
	}
	w.schedule(ctx, rel, ev.Op)
}

// schedule coalesces events for one path and handles them after the
// debounce window has been quiet.
func (w *Watcher) schedule(ctx context.Context, rel string, op fsnotify.Op) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if c, ok := w.pending[rel]; ok && c.timer.Stop() {
		c.op |= op
		c.timer.Reset(w.debounce)
		return
	}
	c := &change{op: op}
	w.pending[rel] = c
	w.wg.Add(1)
	c.timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[rel] == c {
			delete(w.pending, rel)
		}
		op := c.op
		w.mu.Unlock()
		w.handle(ctx, rel, op)
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for rel, c := range w.pending {
		if c.timer.Stop() {
			w.wg.Done()
		}
		delete(w.pending, rel)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// handle streams one settled change.
func (w *Watcher) handle(ctx context.Context, rel string, op fsnotify.Op) {
	name := kulti.ShortPath(filepath.ToSlash(rel))
	content, ok := w.readFile(filepath.Join(w.root, rel))

	var verb string
	switch {
	case op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename):
		if !ok {
			if _, err := os.Stat(filepath.Join(w.root, rel)); err == nil {
				// Still there, just not streamable.
				return
			}
			w.send(ctx, &kulti.Payload{Thought: observation("File deleted: " + name)})
			return
		}
		verb = "created"
	case op.Has(fsnotify.Create):
		verb = "created"
	default:
		verb = "changed"
	}
	if !ok {
		return
	}

	w.send(ctx, &kulti.Payload{Thought: observation("File " + verb + ": " + name)})
	w.send(ctx, &kulti.Payload{Code: &kulti.Code{
		Filename: name,
		Language: kulti.Language(name),
		Content:  kulti.Truncate(content, maxContentChars),
		Action:   kulti.ActionWrite,
	}})
}

func (w *Watcher) send(ctx context.Context, p *kulti.Payload) {
	if err := w.sender.Send(ctx, p); err != nil {
		slog.Debug("watcher send failed", "error", err)
	}
}

// readFile returns the content of a regular text file no larger than the
// size cap.
func (w *Watcher) readFile(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() > w.maxBytes {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil || bytes.IndexByte(data, 0) >= 0 {
		return "", false
	}
	return string(data), true
}

func observation(content string) *kulti.Thought {
	return &kulti.Thought{Type: kulti.ThoughtObservation, Content: content, Priority: kulti.PriorityDetail}
}
