// Package inbox imports documents dropped into a watched folder. Each
// supported file becomes a document note and is removed from the folder;
// unsupported files are moved aside into a rejected/ subfolder.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/document"
	"github.com/starford/notetaker/internal/models"
	"github.com/starford/notetaker/internal/noteservice"
)

// RejectedDir is the subfolder unsupported files are moved into.
const RejectedDir = "rejected"

// DefaultSettle is how long a file must be quiet before it is imported.
const DefaultSettle = 500 * time.Millisecond

// Coordinator is the part of the note coordinator the inbox drives.
type Coordinator interface {
	SelectDocument(path, displayName string) (*document.Pending, error)
	Capture(ctx context.Context, in noteservice.Input) (*models.Note, error)
}

// ImportCallback is called after each successful import.
type ImportCallback func(n *models.Note, source string)

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettle sets the quiet period before a changed file is imported.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithCallback sets the import callback.
func WithCallback(cb ImportCallback) Option {
	return func(w *Watcher) { w.cb = cb }
}

// Watcher imports files from one directory.
type Watcher struct {
	dir    string
	coord  Coordinator
	settle time.Duration
	logger *slog.Logger
	cb     ImportCallback
}

// New creates a watcher for dir.
func New(dir string, coord Coordinator, opts ...Option) *Watcher {
	w := &Watcher{
		dir:    dir,
		coord:  coord,
		settle: DefaultSettle,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

func (w *Watcher) prepare() error {
	if err := os.MkdirAll(filepath.Join(w.dir, RejectedDir), 0o755); err != nil {
		return fmt.Errorf("inbox: mkdir: %w", err)
	}
	return nil
}

// Sweep imports every file currently in the folder and returns how many
// notes were created.
func (w *Watcher) Sweep(ctx context.Context) (int, error) {
	if err := w.prepare(); err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("inbox: read dir: %w", err)
	}
	imported := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return imported, ctx.Err()
		}
		if e.IsDir() {
			continue
		}
		if w.importFile(ctx, filepath.Join(w.dir, e.Name())) {
			imported++
		}
	}
	return imported, nil
}

// Run sweeps the folder once and then imports files as they appear, until
// ctx is cancelled. Changes are debounced so a file still being written
// is picked up once it has been quiet for the settle period.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.prepare(); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", w.dir, err)
	}
	w.logger.Info("inbox: started", slog.String("dir", w.dir))

	if n, err := w.Sweep(ctx); err != nil {
		w.logger.Warn("inbox: initial sweep", slog.String("error", err.Error()))
	} else if n > 0 {
		w.logger.Info("inbox: initial sweep imported", slog.Int("count", n))
	}

	pending := make(map[string]struct{})
	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	schedule := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(w.settle)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(w.settle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			w.logger.Info("inbox: stopped")
			return nil

		case <-settleCh:
			for path := range pending {
				delete(pending, path)
				w.importFile(ctx, path)
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Dir(ev.Name) != filepath.Clean(w.dir) {
				continue
			}
			pending[ev.Name] = struct{}{}
			schedule()

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// skip reports files the inbox never touches: hidden files and partial
// downloads.
func skip(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".part", ".crdownload", ".tmp", ".download":
		return true
	}
	return false
}

// importFile imports one file and reports whether a note was created.
func (w *Watcher) importFile(ctx context.Context, path string) bool {
	name := filepath.Base(path)
	if skip(name) {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}

	p, err := w.coord.SelectDocument(path, "")
	if err != nil {
		if errors.Is(err, apperr.ErrUnsupportedType) {
			w.reject(path, err)
			return false
		}
		w.logger.Warn("inbox: select failed", slog.String("file", name), slog.String("error", err.Error()))
		return false
	}

	title := p.SuggestedTitle
	if strings.TrimSpace(title) == "" {
		title = models.DefaultTitle(models.KindDocument)
	}
	n, err := w.coord.Capture(ctx, noteservice.DocumentInput{Title: title, Pending: p})
	if err != nil {
		w.logger.Warn("inbox: import failed", slog.String("file", name), slog.String("error", err.Error()))
		return false
	}

	if err := os.Remove(path); err != nil {
		w.logger.Warn("inbox: remove source", slog.String("file", name), slog.String("error", err.Error()))
	}
	w.logger.Info("inbox: imported", slog.String("file", name), slog.String("id", n.ID))
	if w.cb != nil {
		w.cb(n, name)
	}
	return true
}

func (w *Watcher) reject(path string, cause error) {
	name := filepath.Base(path)
	dst := filepath.Join(w.dir, RejectedDir, name)
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(name)
		dst = filepath.Join(w.dir, RejectedDir,
			fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), time.Now().UnixNano(), ext))
	}
	if err := os.Rename(path, dst); err != nil {
		w.logger.Warn("inbox: move rejected file", slog.String("file", name), slog.String("error", err.Error()))
		return
	}
	w.logger.Info("inbox: rejected", slog.String("file", name), slog.String("reason", cause.Error()))
}
