// Package noteservice is the note lifecycle coordinator: the single entry
// point that turns capture workflow results into committed notes and
// owns the rollback, edit and delete rules.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/audio"
	"github.com/starford/notetaker/internal/document"
	"github.com/starford/notetaker/internal/index"
	"github.com/starford/notetaker/internal/models"
	"github.com/starford/notetaker/internal/playback"
	"github.com/starford/notetaker/internal/sse"
	"github.com/starford/notetaker/internal/storage"
	"github.com/starford/notetaker/internal/webcapture"
)

// Notifier receives note lifecycle events after they are durable, and
// capture session state changes.
type Notifier interface {
	PublishNoteEvent(action, id, kind string)
	PublishCaptureEvent(kind, state string)
}

type noopNotifier struct{}

func (noopNotifier) PublishNoteEvent(string, string, string) {}
func (noopNotifier) PublishCaptureEvent(string, string)      {}

// workflow turns a validated input into a draft. It owns cleanup of
// anything it allocated before returning an error.
type workflow func(ctx context.Context, in Input) (*models.Note, error)

// Service coordinates the capture workflows, the attachment store and the
// record store.
type Service struct {
	store    storage.Provider
	db       index.NoteStore
	recorder *audio.Engine
	player   *playback.Player
	importer *document.Importer
	fetcher  *webcapture.Fetcher
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	locks     keyedMutex
	fetches   fetchTable
	workflows map[models.Kind]workflow
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder sets the audio capture session.
func WithRecorder(e *audio.Engine) Option {
	return func(s *Service) { s.recorder = e }
}

// WithPlayer sets the playback session.
func WithPlayer(p *playback.Player) Option {
	return func(s *Service) { s.player = p }
}

// WithImporter sets the document import workflow.
func WithImporter(i *document.Importer) Option {
	return func(s *Service) { s.importer = i }
}

// WithFetcher sets the web page fetcher.
func WithFetcher(f *webcapture.Fetcher) Option {
	return func(s *Service) { s.fetcher = f }
}

// WithNotifier sets the change observer.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the coordinator. Components not supplied through
// options get defaults over store; the default recorder has no microphone
// permission.
func NewService(store storage.Provider, db index.NoteStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		db:       db,
		notifier: noopNotifier{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.recorder == nil {
		s.recorder = audio.NewEngine(&audio.CommandMicrophone{}, store, audio.WithLogger(s.logger))
	}
	if s.player == nil {
		s.player = playback.New(store, playback.WithLogger(s.logger))
	}
	if s.importer == nil {
		s.importer = document.NewImporter(store,
			document.WithExtractor(document.TextExtractor{}),
			document.WithLogger(s.logger),
			document.WithClock(s.now))
	}
	if s.fetcher == nil {
		s.fetcher = webcapture.NewFetcher(webcapture.Config{}, s.logger)
	}

	s.workflows = map[models.Kind]workflow{
		models.KindText:     s.captureText,
		models.KindAudio:    s.captureAudio,
		models.KindDocument: s.captureDocument,
		models.KindWebLink:  s.captureWebLink,
	}
	return s
}

// Recorder returns the single audio capture session.
func (s *Service) Recorder() *audio.Engine { return s.recorder }

// Player returns the single playback session.
func (s *Service) Player() *playback.Player { return s.player }

// Capture runs the workflow for in and commits the resulting note. The
// title is checked before anything is allocated. Every failure path
// leaves no attachment behind and no record saved.
func (s *Service) Capture(ctx context.Context, in Input) (*models.Note, error) {
	if in = deref(in); in == nil {
		return nil, apperr.Validation("capture input is required")
	}
	title := strings.TrimSpace(in.title())
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	run, ok := s.workflows[in.Kind()]
	if !ok {
		return nil, apperr.Validation("unknown note kind %q", in.Kind())
	}
	if in.Kind() == models.KindAudio {
		defer s.audioChanged()
	}

	draft, err := run(ctx, in)
	if err != nil {
		s.logger.Warn("capture: workflow failed",
			slog.String("kind", in.Kind().String()),
			slog.String("error", err.Error()))
		return nil, err
	}
	draft.Title = title

	unlock := s.locks.Lock(draft.ID)
	err = s.commit(ctx, draft, sse.ActionCreated)
	unlock()
	if err != nil {
		s.discardAttachment(draft)
		return nil, err
	}
	s.logger.Info("capture: note committed",
		slog.String("id", draft.ID),
		slog.String("kind", draft.Kind.String()))
	return draft, nil
}

// commit validates and saves n, then notifies. Callers hold the id lock.
func (s *Service) commit(ctx context.Context, n *models.Note, action string) error {
	if err := n.Validate(); err != nil {
		return apperr.Validation("%s", err.Error())
	}
	if err := s.db.Save(ctx, n); err != nil {
		return apperr.PersistenceFailed(err)
	}
	s.notifier.PublishNoteEvent(action, n.ID, n.Kind.String())
	return nil
}

func (s *Service) discardAttachment(n *models.Note) {
	ref := n.AttachmentRef()
	if ref == "" {
		return
	}
	if err := s.store.Delete(ref); err != nil {
		s.logger.Error("capture: discard attachment after failed commit",
			slog.String("ref", ref),
			slog.String("error", err.Error()))
	}
}

func (s *Service) captureText(_ context.Context, in Input) (*models.Note, error) {
	ti := in.(TextInput)
	if err := ti.validate(); err != nil {
		return nil, err
	}
	n := models.NewDraft(models.KindText, ti.Title, s.now())
	n.TextContent = ti.Content
	return n, nil
}

func (s *Service) captureAudio(_ context.Context, _ Input) (*models.Note, error) {
	return s.recorder.Commit()
}

func (s *Service) captureDocument(ctx context.Context, in Input) (*models.Note, error) {
	di := in.(DocumentInput)
	if err := di.validate(); err != nil {
		return nil, err
	}
	p := di.Pending
	if p == nil {
		var err error
		if di.DisplayName != "" {
			p, err = s.importer.SelectFileAs(di.Path, di.DisplayName)
		} else {
			p, err = s.importer.SelectFile(di.Path)
		}
		if err != nil {
			return nil, err
		}
	}
	n, err := s.importer.ConfirmImport(ctx, p, di.Title)
	if err != nil {
		_ = s.importer.Cancel(p)
		return nil, err
	}
	return n, nil
}

func (s *Service) captureWebLink(ctx context.Context, in Input) (*models.Note, error) {
	wi := in.(WebLinkInput)
	if err := wi.validate(); err != nil {
		return nil, err
	}
	text := wi.Text
	if strings.TrimSpace(text) == "" && (wi.Fetch || wi.FetchID != "") {
		page, err := s.fetchForCapture(ctx, wi)
		if err != nil {
			if apperr.CodeOf(err) != apperr.CodeFetchFailed {
				return nil, err
			}
			// Best effort: the note keeps the placeholder text.
			s.logger.Warn("capture: web fetch failed",
				slog.String("url", wi.URL),
				slog.String("error", err.Error()))
		}
		text = page.Text
	}
	return webcapture.BuildNote(wi.URL, wi.Title, text, s.now())
}

// fetchForCapture claims the result of a fetch started earlier, or runs a
// new one that is cancelled if ctx ends first.
func (s *Service) fetchForCapture(ctx context.Context, wi WebLinkInput) (webcapture.Page, error) {
	if wi.FetchID == "" {
		c := s.fetcher.Start(ctx, wi.URL)
		defer c.Cancel()
		return c.Wait(ctx)
	}
	c, ok := s.fetches.get(wi.FetchID)
	if !ok {
		return webcapture.Page{}, apperr.UnknownFetch(wi.FetchID)
	}
	if c.URL != wi.URL {
		return webcapture.Page{}, apperr.Validation("fetch %s is for %s", wi.FetchID, c.URL)
	}
	return s.AwaitFetch(ctx, wi.FetchID)
}

// StartFetch begins fetching rawURL in the background and returns the id
// under which its result can be awaited, cancelled or captured. The fetch
// is detached from ctx; CancelFetch ends it.
func (s *Service) StartFetch(ctx context.Context, rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !webcapture.Validate(rawURL) {
		return "", apperr.Validation("invalid URL: %q", rawURL)
	}
	now := s.now()
	id := models.NewID(now)
	s.fetches.add(id, s.fetcher.Start(context.WithoutCancel(ctx), rawURL), now)
	return id, nil
}

// AwaitFetch blocks until the fetch completes or ctx is done. A completed
// result is handed out once; after ctx expires the fetch stays pending.
func (s *Service) AwaitFetch(ctx context.Context, id string) (webcapture.Page, error) {
	c, ok := s.fetches.get(id)
	if !ok {
		return webcapture.Page{}, apperr.UnknownFetch(id)
	}
	page, err := c.Wait(ctx)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return webcapture.Page{}, err
	}
	s.fetches.remove(id)
	if errors.Is(err, webcapture.ErrCancelled) {
		return webcapture.Page{}, apperr.UnknownFetch(id)
	}
	return page, err
}

// CancelFetch aborts a pending fetch and drops its result.
func (s *Service) CancelFetch(id string) error {
	c, ok := s.fetches.remove(id)
	if !ok {
		return apperr.UnknownFetch(id)
	}
	c.Cancel()
	return nil
}

// SelectDocument validates a local file for import without copying it.
func (s *Service) SelectDocument(path, displayName string) (*document.Pending, error) {
	if displayName != "" {
		return s.importer.SelectFileAs(path, displayName)
	}
	return s.importer.SelectFile(path)
}

// StartAudio begins a recording. The title is required up front.
func (s *Service) StartAudio(ctx context.Context, title string) error {
	defer s.audioChanged()
	return s.recorder.RequestStart(ctx, title)
}

// StopAudio stops the active recording.
func (s *Service) StopAudio() error {
	defer s.audioChanged()
	return s.recorder.Stop()
}

// CancelAudio discards the active recording, if any.
func (s *Service) CancelAudio() error {
	defer s.audioChanged()
	return s.recorder.Cancel()
}

func (s *Service) audioChanged() {
	s.notifier.PublishCaptureEvent(models.KindAudio.String(), s.recorder.Status().Name)
}

// AudioStatus returns the recorder snapshot.
func (s *Service) AudioStatus() audio.Status {
	return s.recorder.Status()
}

// Get returns a committed note.
func (s *Service) Get(ctx context.Context, id string) (*models.Note, error) {
	return s.db.Get(ctx, id)
}

// List returns notes newest first with the total count for the filter.
func (s *Service) List(ctx context.Context, opts index.ListOptions) ([]*models.Note, int, error) {
	notes, total, err := s.db.FetchAll(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	return nonNilSlice(notes), total, nil
}

// Search delegates full-text search to the record store.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Validation("query is required")
	}
	res, err := s.db.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(res), nil
}

// Edit applies a partial edit through the same commit path as capture.
func (s *Service) Edit(ctx context.Context, id string, e Edit) (*models.Note, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.db.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Title != nil {
		n.Title = strings.TrimSpace(*e.Title)
		if n.Title == "" {
			return nil, apperr.Validation("title is required")
		}
	}
	if e.Content != nil {
		n.TextContent = strings.TrimSpace(*e.Content)
		if n.TextContent == "" {
			switch n.Kind {
			case models.KindText:
				return nil, apperr.Validation("content is required")
			case models.KindWebLink:
				n.TextContent = webcapture.Placeholder(n.SourceURL)
			}
		}
	}
	n.UpdatedAt = s.now().UTC()

	if err := s.commit(ctx, n, sse.ActionUpdated); err != nil {
		return nil, err
	}
	return n, nil
}

// Delete removes the record first, then its attachment, so a reader never
// sees a note whose attachment is gone.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.db.Get(ctx, id)
	if err != nil {
		return err
	}
	s.player.UnloadNote(id)

	if err := s.db.Delete(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return apperr.PersistenceFailed(err)
	}
	s.notifier.PublishNoteEvent(sse.ActionDeleted, n.ID, n.Kind.String())

	if ref := n.AttachmentRef(); ref != "" {
		if err := s.store.Delete(ref); err != nil {
			// The record is gone; the payload is an orphan for Reconcile.
			s.logger.Error("delete: remove attachment",
				slog.String("id", id),
				slog.String("ref", ref),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// OpenAttachment returns note id and a reader over its attachment.
func (s *Service) OpenAttachment(ctx context.Context, id string) (*models.Note, *storage.Payload, error) {
	n, err := s.db.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	ref := n.AttachmentRef()
	if ref == "" {
		return nil, nil, &apperr.Error{Code: apperr.CodeNotFound, Message: "note has no attachment"}
	}
	p, err := s.store.Open(ref)
	if err != nil {
		return nil, nil, apperr.AttachmentUnreadable(ref, err)
	}
	return n, p, nil
}

// LoadPlayback loads the recording of note id into the player.
func (s *Service) LoadPlayback(ctx context.Context, id string) (playback.Status, error) {
	n, err := s.db.Get(ctx, id)
	if err != nil {
		return playback.Status{}, err
	}
	if err := s.player.Load(n); err != nil {
		return playback.Status{}, err
	}
	return s.player.Status(), nil
}

// refLister is implemented by stores that can enumerate payloads.
type refLister interface {
	Refs() ([]storage.Ref, error)
}

// Reconcile removes committed attachments no note references. It must run
// before captures start, since a capture commits its attachment before
// saving the record.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	lister, ok := s.store.(refLister)
	if !ok {
		return 0, nil
	}
	refs, err := lister.Refs()
	if err != nil {
		return 0, err
	}
	owned, err := s.db.AttachmentRefs(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconcile: %w", err)
	}
	removed := 0
	for _, ref := range refs {
		if _, ok := owned[ref]; ok {
			continue
		}
		if err := s.store.Delete(ref); err != nil {
			s.logger.Warn("reconcile: remove orphan", slog.String("ref", ref), slog.String("error", err.Error()))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("reconcile: removed orphan attachments", slog.Int("count", removed))
	}
	return removed, nil
}

// deref accepts pointer inputs so workflows can assert value types.
func deref(in Input) Input {
	switch v := in.(type) {
	case *TextInput:
		if v == nil {
			return nil
		}
		return *v
	case *AudioInput:
		if v == nil {
			return nil
		}
		return *v
	case *DocumentInput:
		if v == nil {
			return nil
		}
		return *v
	case *WebLinkInput:
		if v == nil {
			return nil
		}
		return *v
	}
	return in
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
