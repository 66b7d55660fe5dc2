package audio

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/models"
	"github.com/starford/notetaker/internal/storage"
)

type fakeMic struct {
	granted   bool
	permErr   error
	openErr   error
	permGate  chan struct{}
	permEnter chan struct{}
	duration  time.Duration
	stopErr   error

	mu      sync.Mutex
	session *fakeSession
}

func (m *fakeMic) RequestPermission(ctx context.Context) (bool, error) {
	if m.permEnter != nil {
		close(m.permEnter)
	}
	if m.permGate != nil {
		select {
		case <-m.permGate:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return m.granted, m.permErr
}

func (m *fakeMic) Open(_ context.Context, _ Format, w io.Writer) (Session, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	if _, err := w.Write([]byte("fake-aac-frames")); err != nil {
		return nil, err
	}
	s := &fakeSession{duration: m.duration, stopErr: m.stopErr, failed: make(chan error, 1)}
	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
	return s, nil
}

func (m *fakeMic) current() *fakeSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

type fakeSession struct {
	duration time.Duration
	stopErr  error
	failed   chan error

	mu      sync.Mutex
	aborted bool
}

func (s *fakeSession) Stop() (time.Duration, error) { return s.duration, s.stopErr }

func (s *fakeSession) Abort() {
	s.mu.Lock()
	s.aborted = true
	s.mu.Unlock()
}

func (s *fakeSession) Failed() <-chan error { return s.failed }

func (s *fakeSession) wasAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

func newStore(t *testing.T) *storage.FS {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	return fs
}

func assertClean(t *testing.T, fs *storage.FS) {
	t.Helper()
	pending, err := fs.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending, "pending allocations left behind")
	refs, err := fs.Refs()
	require.NoError(t, err)
	assert.Empty(t, refs, "committed attachments left behind")
}

func TestEngine_RecordAndCommit(t *testing.T) {
	fs := newStore(t)
	mic := &fakeMic{granted: true, duration: 3*time.Second + 250*time.Millisecond}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e := NewEngine(mic, fs, WithTick(5*time.Millisecond), WithClock(func() time.Time { return now }))

	require.NoError(t, e.RequestStart(context.Background(), "  Standup  "))
	assert.Equal(t, Recording, e.Status().State)
	assert.Equal(t, "Standup", e.Status().Title)

	require.Eventually(t, func() bool { return e.Status().Elapsed > 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, e.Stop())
	st := e.Status()
	assert.Equal(t, Stopped, st.State)
	assert.Equal(t, mic.duration, st.Duration)

	note, err := e.Commit()
	require.NoError(t, err)
	require.NoError(t, note.Validate())

	assert.Equal(t, models.KindAudio, note.Kind)
	assert.Equal(t, "Standup", note.Title)
	assert.Equal(t, now, note.CreatedAt)
	// Measured duration, not the display counter.
	assert.InDelta(t, 3.25, note.DurationSeconds, 1e-9)
	require.NotNil(t, note.Attachment)
	assert.Equal(t, ".m4a", filepath.Ext(note.Attachment.Ref))
	assert.Equal(t, int64(len("fake-aac-frames")), note.Attachment.Size)

	data, err := os.ReadFile(filepath.Join(fs.Root(), "attachments", note.Attachment.Ref))
	require.NoError(t, err)
	assert.Equal(t, "fake-aac-frames", string(data))

	assert.Equal(t, Idle, e.Status().State)
}

func TestEngine_TitleRequired(t *testing.T) {
	fs := newStore(t)
	e := NewEngine(&fakeMic{granted: true}, fs)

	err := e.RequestStart(context.Background(), "   ")
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, Idle, e.Status().State)
	assertClean(t, fs)
}

func TestEngine_PermissionDenied(t *testing.T) {
	fs := newStore(t)
	e := NewEngine(&fakeMic{granted: false}, fs)

	err := e.RequestStart(context.Background(), "Lecture")
	require.ErrorIs(t, err, apperr.ErrPermissionDenied)
	st := e.Status()
	assert.Equal(t, Idle, st.State)
	assert.NotEmpty(t, st.LastError)
	assertClean(t, fs)
}

func TestEngine_PermissionError(t *testing.T) {
	fs := newStore(t)
	e := NewEngine(&fakeMic{permErr: errors.New("no device")}, fs)

	err := e.RequestStart(context.Background(), "Lecture")
	require.ErrorIs(t, err, apperr.ErrRecordingFailed)
	assert.Equal(t, Idle, e.Status().State)
}

func TestEngine_OpenFailureDiscards(t *testing.T) {
	fs := newStore(t)
	e := NewEngine(&fakeMic{granted: true, openErr: errors.New("device busy")}, fs)

	err := e.RequestStart(context.Background(), "Lecture")
	require.ErrorIs(t, err, apperr.ErrRecordingFailed)
	assert.Equal(t, Idle, e.Status().State)
	assertClean(t, fs)
}

func TestEngine_DoubleStartRejected(t *testing.T) {
	fs := newStore(t)
	e := NewEngine(&fakeMic{granted: true}, fs)

	require.NoError(t, e.RequestStart(context.Background(), "One"))
	err := e.RequestStart(context.Background(), "Two")
	require.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Equal(t, "One", e.Status().Title)

	require.NoError(t, e.Cancel())
}

func TestEngine_InvalidTransitions(t *testing.T) {
	fs := newStore(t)
	e := NewEngine(&fakeMic{granted: true}, fs)

	require.ErrorIs(t, e.Stop(), apperr.ErrInvalidState)
	_, err := e.Commit()
	require.ErrorIs(t, err, apperr.ErrInvalidState)
	require.NoError(t, e.Cancel(), "cancel from idle is a no-op")

	require.NoError(t, e.RequestStart(context.Background(), "Memo"))
	_, err = e.Commit()
	require.ErrorIs(t, err, apperr.ErrInvalidState, "commit requires a stopped recording")
	require.NoError(t, e.Cancel())
}

func TestEngine_CancelWhileRecording(t *testing.T) {
	fs := newStore(t)
	mic := &fakeMic{granted: true}
	e := NewEngine(mic, fs)

	require.NoError(t, e.RequestStart(context.Background(), "Memo"))
	require.NoError(t, e.Cancel())

	assert.Equal(t, Idle, e.Status().State)
	assert.True(t, mic.current().wasAborted())
	assertClean(t, fs)
}

func TestEngine_CancelAfterStop(t *testing.T) {
	fs := newStore(t)
	e := NewEngine(&fakeMic{granted: true, duration: time.Second}, fs)

	require.NoError(t, e.RequestStart(context.Background(), "Memo"))
	require.NoError(t, e.Stop())
	require.NoError(t, e.Cancel())

	assert.Equal(t, Idle, e.Status().State)
	assertClean(t, fs)
}

func TestEngine_CancelDuringPermission(t *testing.T) {
	fs := newStore(t)
	mic := &fakeMic{granted: true, permGate: make(chan struct{}), permEnter: make(chan struct{})}
	e := NewEngine(mic, fs)

	errc := make(chan error, 1)
	go func() { errc <- e.RequestStart(context.Background(), "Memo") }()

	<-mic.permEnter
	assert.Equal(t, RequestingPermission, e.Status().State)
	require.NoError(t, e.Cancel())
	close(mic.permGate)

	require.ErrorIs(t, <-errc, ErrCancelled)
	assert.Equal(t, Idle, e.Status().State)
	assert.Nil(t, mic.current(), "no session is opened after cancel")
	assertClean(t, fs)
}

func TestEngine_StopFailureDiscards(t *testing.T) {
	fs := newStore(t)
	e := NewEngine(&fakeMic{granted: true, stopErr: errors.New("stream truncated")}, fs)

	require.NoError(t, e.RequestStart(context.Background(), "Memo"))
	require.ErrorIs(t, e.Stop(), apperr.ErrRecordingFailed)
	assert.Equal(t, Idle, e.Status().State)
	assertClean(t, fs)
}

func TestEngine_SessionFailureAborts(t *testing.T) {
	fs := newStore(t)
	mic := &fakeMic{granted: true}
	e := NewEngine(mic, fs, WithTick(time.Hour))

	require.NoError(t, e.RequestStart(context.Background(), "Memo"))
	mic.current().failed <- errors.New("device unplugged")

	require.Eventually(t, func() bool { return e.Status().State == Idle }, time.Second, 5*time.Millisecond)
	assert.Contains(t, e.Status().LastError, "device unplugged")
	assert.True(t, mic.current().wasAborted())
	assertClean(t, fs)

	// A fresh recording is possible afterwards.
	require.NoError(t, e.RequestStart(context.Background(), "Retry"))
	require.NoError(t, e.Cancel())
}

func TestExpandArgs(t *testing.T) {
	got := expandArgs([]string{"ffmpeg", "-ar", "{sample_rate}", "-ac", "{channels}", "-c:a", "{codec}"}, DefaultFormat)
	assert.Equal(t, []string{"ffmpeg", "-ar", "12000", "-ac", "1", "-c:a", "aac"}, got)
}

func TestCommandMicrophone_Disabled(t *testing.T) {
	m := &CommandMicrophone{Enabled: false, Command: []string{"ffmpeg"}}
	ok, err := m.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
