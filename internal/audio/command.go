package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const stopGrace = 5 * time.Second

// CommandMicrophone records by running an external capture program (for
// example ffmpeg) whose stdout is the encoded stream. Permission is the
// Enabled switch from configuration.
//
// Command arguments may contain {sample_rate}, {channels} and {codec}.
type CommandMicrophone struct {
	Enabled bool
	Command []string
}

// RequestPermission implements Microphone.
func (m *CommandMicrophone) RequestPermission(_ context.Context) (bool, error) {
	if !m.Enabled {
		return false, nil
	}
	if len(m.Command) == 0 {
		return false, errors.New("audio: no capture command configured")
	}
	if _, err := exec.LookPath(m.Command[0]); err != nil {
		return false, fmt.Errorf("audio: capture command: %w", err)
	}
	return true, nil
}

// Open implements Microphone.
func (m *CommandMicrophone) Open(_ context.Context, format Format, w io.Writer) (Session, error) {
	argv := expandArgs(m.Command, format)
	if len(argv) == 0 {
		return nil, errors.New("audio: no capture command configured")
	}

	// The process outlives the request context; Stop and Abort end it.
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = w
	stderr := &limitedBuffer{max: 4 << 10}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("audio: start capture: %w", err)
	}

	s := &commandSession{
		cmd:     cmd,
		started: time.Now(),
		stderr:  stderr,
		done:    make(chan struct{}),
		failed:  make(chan error, 1),
	}
	go s.wait()
	return s, nil
}

func expandArgs(args []string, f Format) []string {
	r := strings.NewReplacer(
		"{sample_rate}", strconv.Itoa(f.SampleRate),
		"{channels}", strconv.Itoa(f.Channels),
		"{codec}", f.Codec,
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

type commandSession struct {
	cmd     *exec.Cmd
	started time.Time
	stderr  *limitedBuffer

	mu        sync.Mutex
	stopping  bool
	signalled bool
	ownExit   bool
	waitErr   error
	done      chan struct{}
	failed    chan error
}

func (s *commandSession) wait() {
	err := s.cmd.Wait()

	s.mu.Lock()
	s.waitErr = err
	stopping := s.stopping
	// Exited before Stop interrupted it: the stream was cut short.
	s.ownExit = !s.signalled
	s.mu.Unlock()
	close(s.done)

	if !stopping {
		if err == nil {
			err = errors.New("capture process exited")
		}
		s.failed <- fmt.Errorf("audio: %w: %s", err, strings.TrimSpace(s.stderr.String()))
	}
}

// Stop interrupts the process so it can finalize the container, then
// waits for it. The duration is measured on the monotonic clock from
// process start to the stop request.
func (s *commandSession) Stop() (time.Duration, error) {
	elapsed := time.Since(s.started)

	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	select {
	case <-s.done:
		return elapsed, s.exitError()
	default:
	}

	s.mu.Lock()
	s.signalled = true
	s.mu.Unlock()
	if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
		_ = s.cmd.Process.Kill()
	}
	select {
	case <-s.done:
	case <-time.After(stopGrace):
		_ = s.cmd.Process.Kill()
		<-s.done
	}
	return elapsed, s.exitError()
}

// exitError ignores the non-zero exit status caused by our own interrupt
// but keeps stdout copy failures, which mean the payload is incomplete. A
// process that ended before the interrupt is a failure whatever its status.
func (s *commandSession) exitError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownExit {
		err := s.waitErr
		if err == nil {
			err = errors.New("capture process exited before stop")
		}
		return fmt.Errorf("audio: %w: %s", err, strings.TrimSpace(s.stderr.String()))
	}
	var exitErr *exec.ExitError
	if s.waitErr == nil || errors.As(s.waitErr, &exitErr) {
		return nil
	}
	return fmt.Errorf("audio: capture stream: %w", s.waitErr)
}

func (s *commandSession) Abort() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	_ = s.cmd.Process.Kill()
	<-s.done
}

func (s *commandSession) Failed() <-chan error {
	return s.failed
}

// limitedBuffer keeps the first max bytes of stderr for diagnostics.
type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
