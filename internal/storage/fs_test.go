package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/checksum"
)

func tempStore(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func writeAll(t *testing.T, h *Handle, data string) {
	t.Helper()
	if _, err := io.Copy(h, strings.NewReader(data)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestAllocateCommitOpen(t *testing.T) {
	s := tempStore(t)
	h, err := s.Allocate("recording.m4a")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if filepath.Ext(h.Name()) != ".m4a" {
		t.Errorf("name = %q, want .m4a extension", h.Name())
	}
	writeAll(t, h, "audio bytes")

	c, err := s.Commit(h)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if c.Ref != h.Name() || c.Size != int64(len("audio bytes")) {
		t.Errorf("committed = %+v", c)
	}
	if c.Checksum != checksum.Sum([]byte("audio bytes")) {
		t.Errorf("checksum = %q", c.Checksum)
	}

	p, err := s.Open(c.Ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()
	got, _ := io.ReadAll(p)
	if string(got) != "audio bytes" {
		t.Errorf("content = %q", got)
	}

	pending, _ := s.Pending()
	if len(pending) != 0 {
		t.Errorf("pending after commit: %v", pending)
	}
}

func TestCommitIdempotent(t *testing.T) {
	s := tempStore(t)
	h, _ := s.Allocate("a.pdf")
	writeAll(t, h, "%PDF-1.4")
	first, err := s.Commit(h)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	second, err := s.Commit(h)
	if err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	if first != second {
		t.Errorf("commit results differ: %+v vs %+v", first, second)
	}
}

func TestDiscardPendingIdempotent(t *testing.T) {
	s := tempStore(t)
	h, _ := s.Allocate("x.m4a")
	writeAll(t, h, "partial")

	if err := s.Discard(h); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if err := s.Discard(h); err != nil {
		t.Fatalf("second Discard: %v", err)
	}
	pending, _ := s.Pending()
	refs, _ := s.Refs()
	if len(pending) != 0 || len(refs) != 0 {
		t.Errorf("leftovers: pending=%v refs=%v", pending, refs)
	}
	if _, err := s.Commit(h); err == nil {
		t.Error("commit after discard should fail")
	}
}

func TestDiscardCommittedOrphan(t *testing.T) {
	s := tempStore(t)
	h, _ := s.Allocate("doc.txt")
	writeAll(t, h, "hello")
	c, _ := s.Commit(h)

	if err := s.Discard(h); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if s.Exists(c.Ref) {
		t.Error("orphaned payload still resolves")
	}
}

func TestSizeOfAndDelete(t *testing.T) {
	s := tempStore(t)
	h, _ := s.Allocate("n.txt")
	writeAll(t, h, "12345")
	c, _ := s.Commit(h)

	n, err := s.SizeOf(c.Ref)
	if err != nil || n != 5 {
		t.Fatalf("SizeOf = %d, %v", n, err)
	}
	if err := s.Delete(c.Ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.SizeOf(c.Ref); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("SizeOf after delete = %v, want not exist", err)
	}
	if err := s.Delete(c.Ref); err != nil {
		t.Errorf("second Delete should be a no-op: %v", err)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempStore(t)
	cases := []string{
		"../../etc/passwd",
		"../outside.m4a",
		"/etc/shadow",
		".pending",
		"",
	}
	for _, ref := range cases {
		if _, err := s.Open(ref); err == nil {
			t.Errorf("expected error opening %q", ref)
		}
		if err := s.Delete(ref); err == nil {
			t.Errorf("expected error deleting %q", ref)
		}
	}
}

func TestAllocateSanitizesExtension(t *testing.T) {
	s := tempStore(t)
	h, err := s.Allocate("../../weird name.<script>")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	defer s.Discard(h)
	if strings.ContainsAny(h.Name(), "/<>") {
		t.Errorf("unsafe generated name %q", h.Name())
	}
}

func TestAllocateStorageUnavailable(t *testing.T) {
	s := tempStore(t)
	// Replace the pending dir with a file so nothing can be created in it.
	pending := filepath.Join(s.Root(), pendingDir)
	if err := os.RemoveAll(pending); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pending, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := s.Allocate("a.m4a")
	if !errors.Is(err, apperr.ErrStorageUnavailable) {
		t.Fatalf("err = %v, want StorageUnavailable", err)
	}
}

func TestSweepPending(t *testing.T) {
	s := tempStore(t)
	h, _ := s.Allocate("old.m4a")
	writeAll(t, h, "abandoned")
	_ = h.Close()

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(filepath.Join(s.Root(), pendingDir, h.Name()), old, old); err != nil {
		t.Fatal(err)
	}
	fresh, _ := s.Allocate("fresh.m4a")
	defer s.Discard(fresh)

	n, err := s.SweepPending(time.Hour)
	if err != nil {
		t.Fatalf("SweepPending: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	pending, _ := s.Pending()
	if len(pending) != 1 || pending[0] != fresh.Name() {
		t.Errorf("pending = %v", pending)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "notetaker-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
