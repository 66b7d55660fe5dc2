package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/models"
	"github.com/starford/notetaker/internal/parser"
	"github.com/starford/notetaker/internal/storage"
)

// titleScanLen bounds how much of a Markdown file is read at selection
// time to find its title.
const titleScanLen = 64 << 10

type pendingState int

const (
	pendingSelected pendingState = iota
	pendingImporting
	pendingDone
	pendingCancelled
)

// Pending is a validated source file that has not been copied yet.
type Pending struct {
	Path        string
	DisplayName string
	Size        int64
	Type        Type
	// SuggestedTitle is the Markdown title when one exists, otherwise the
	// file name without extension.
	SuggestedTitle string

	mu     sync.Mutex
	state  pendingState
	handle *storage.Handle
}

// Option configures an Importer.
type Option func(*Importer)

// WithExtractor sets the text extraction step run after commit.
func WithExtractor(e Extractor) Option {
	return func(i *Importer) { i.extractor = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Importer) { i.logger = l }
}

// WithClock overrides the clock used for note timestamps.
func WithClock(now func() time.Time) Option {
	return func(i *Importer) { i.now = now }
}

// Importer runs the select → confirm | cancel workflow.
type Importer struct {
	store     storage.Provider
	extractor Extractor
	logger    *slog.Logger
	now       func() time.Time
}

// NewImporter creates an importer writing into store.
func NewImporter(store storage.Provider, opts ...Option) *Importer {
	i := &Importer{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// SelectFile validates path and reads its size and display name. No bytes
// are copied and nothing is allocated.
func (i *Importer) SelectFile(path string) (*Pending, error) {
	return i.SelectFileAs(path, filepath.Base(path))
}

// SelectFileAs is SelectFile with an explicit display name, for sources
// staged under a temporary name (uploads).
func (i *Importer) SelectFileAs(path, displayName string) (*Pending, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperr.ImportFailed(err)
	}
	if !info.Mode().IsRegular() {
		return nil, apperr.Validation("%s is not a regular file", displayName)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.ImportFailed(err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, apperr.ImportFailed(err)
	}
	t, err := Detect(displayName, head[:n])
	if err != nil {
		return nil, err
	}

	p := &Pending{
		Path:           path,
		DisplayName:    displayName,
		Size:           info.Size(),
		Type:           t,
		SuggestedTitle: strings.TrimSuffix(displayName, filepath.Ext(displayName)),
	}
	if t == TypeMarkdown {
		if title := markdownTitle(f); title != "" {
			p.SuggestedTitle = title
		}
	}
	return p, nil
}

func markdownTitle(f *os.File) string {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(f, titleScanLen))
	if err != nil {
		return ""
	}
	res, err := parser.Parse(data)
	if err != nil {
		return ""
	}
	return res.Title
}

// ConfirmImport streams the source into a new allocation, commits it and
// returns the document draft. On failure the allocation is discarded.
func (i *Importer) ConfirmImport(ctx context.Context, p *Pending, title string) (*models.Note, error) {
	p.mu.Lock()
	if p.state != pendingSelected {
		st := p.state
		p.mu.Unlock()
		return nil, apperr.InvalidState("import", st.String())
	}
	p.state = pendingImporting
	p.mu.Unlock()

	handle, err := i.store.Allocate(p.DisplayName)
	if err != nil {
		p.finish(pendingSelected)
		return nil, err
	}
	if !p.attach(handle) {
		// Cancelled between the state check and the allocation.
		_ = i.store.Discard(handle)
		return nil, apperr.InvalidState("import", pendingCancelled.String())
	}

	c, err := i.copyAndCommit(ctx, p, handle)
	if err != nil {
		if derr := i.store.Discard(handle); derr != nil {
			i.logger.Warn("document: discard after failure", slog.String("error", derr.Error()))
		}
		p.finish(pendingDone)
		return nil, err
	}

	if !p.finish(pendingDone) {
		// Cancel raced the commit and already removed the payload.
		_ = i.store.Discard(handle)
		return nil, apperr.InvalidState("import", pendingCancelled.String())
	}

	note := models.NewDraft(models.KindDocument, title, i.now())
	note.Attachment = &models.Attachment{Ref: c.Ref, Size: c.Size, Checksum: c.Checksum}
	note.AttachmentFileName = p.DisplayName
	note.TextContent = i.extract(ctx, p.Type, c.Ref)

	i.logger.Info("document: imported",
		slog.String("file", p.DisplayName),
		slog.String("type", p.Type.Name),
		slog.Int64("size", c.Size))
	return note, nil
}

func (i *Importer) copyAndCommit(ctx context.Context, p *Pending, handle *storage.Handle) (storage.Committed, error) {
	src, err := os.Open(p.Path)
	if err != nil {
		return storage.Committed{}, apperr.ImportFailed(err)
	}
	defer src.Close()

	if _, err := io.Copy(handle, &ctxReader{ctx: ctx, r: src}); err != nil {
		return storage.Committed{}, apperr.ImportFailed(err)
	}
	c, err := i.store.Commit(handle)
	if err != nil {
		return storage.Committed{}, apperr.ImportFailed(err)
	}
	return c, nil
}

func (i *Importer) extract(ctx context.Context, t Type, ref storage.Ref) string {
	if i.extractor == nil {
		return ""
	}
	payload, err := i.store.Open(ref)
	if err != nil {
		i.logger.Warn("document: open for extraction", slog.String("ref", ref), slog.String("error", err.Error()))
		return ""
	}
	defer payload.Close()
	text, err := i.extractor.Extract(ctx, t, payload)
	if err != nil {
		i.logger.Warn("document: extract text", slog.String("ref", ref), slog.String("error", err.Error()))
		return ""
	}
	return text
}

// Cancel abandons the import and discards any partial allocation. It is
// safe to call repeatedly and after a finished import (no-op).
func (i *Importer) Cancel(p *Pending) error {
	p.mu.Lock()
	if p.state == pendingDone || p.state == pendingCancelled {
		p.mu.Unlock()
		return nil
	}
	p.state = pendingCancelled
	h := p.handle
	p.mu.Unlock()

	if h == nil {
		return nil
	}
	return i.store.Discard(h)
}

func (p *Pending) attach(h *storage.Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != pendingImporting {
		return false
	}
	p.handle = h
	return true
}

// finish moves an importing Pending to next. It reports false when the
// import was cancelled meanwhile.
func (p *Pending) finish(next pendingState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != pendingImporting {
		return false
	}
	p.state = next
	if next == pendingSelected {
		p.handle = nil
	}
	return true
}

func (s pendingState) String() string {
	switch s {
	case pendingSelected:
		return "selected"
	case pendingImporting:
		return "importing"
	case pendingDone:
		return "imported"
	case pendingCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ctxReader aborts a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
