package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (r *recorder) handle(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, filepath.Base(path))
	return r.err
}

func (r *recorder) handled() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.paths...)
	sort.Strings(out)
	return out
}

func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", path)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func startInbox(t *testing.T, dir string, exts []string, h Handler) *Inbox {
	t.Helper()
	in := NewInbox([]string{dir}, exts, h, WithDebounce(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		in.Stop()
	})
	if err := in.Start(ctx); err != nil {
		t.Fatal(err)
	}
	return in
}

func TestInbox_ProcessesExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "existing.txt"), "1. Define a cell.")

	rec := &recorder{}
	startInbox(t, dir, []string{".txt"}, rec.handle)
	waitForFile(t, filepath.Join(dir, ProcessedDir, "existing.txt"))

	writeFile(t, filepath.Join(dir, "new.txt"), "1. Compare two cells.")
	waitForFile(t, filepath.Join(dir, ProcessedDir, "new.txt"))

	if diff := cmp.Diff([]string{"existing.txt", "new.txt"}, rec.handled()); diff != "" {
		t.Errorf("handled files (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(dir, "new.txt")); !os.IsNotExist(err) {
		t.Error("analyzed file should leave the inbox")
	}
}

func TestInbox_FailedFilesMoveToFailed(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{err: errors.New("model unavailable")}
	startInbox(t, dir, nil, rec.handle)

	writeFile(t, filepath.Join(dir, "quiz.md"), "1. Explain osmosis.")
	waitForFile(t, filepath.Join(dir, FailedDir, "quiz.md"))
	if _, err := os.Stat(filepath.Join(dir, ProcessedDir, "quiz.md")); !os.IsNotExist(err) {
		t.Error("failed file should not be in processed")
	}
}

func TestInbox_IgnoresFilteredAndHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startInbox(t, dir, []string{".txt"}, rec.handle)

	writeFile(t, filepath.Join(dir, "slides.pptx"), "x")
	writeFile(t, filepath.Join(dir, ".draft.txt"), "x")
	writeFile(t, filepath.Join(dir, "~$exam.txt"), "x")
	writeFile(t, filepath.Join(dir, "exam.txt"), "1. Name the planets.")
	waitForFile(t, filepath.Join(dir, ProcessedDir, "exam.txt"))

	if diff := cmp.Diff([]string{"exam.txt"}, rec.handled()); diff != "" {
		t.Errorf("handled files (-want +got):\n%s", diff)
	}
	for _, name := range []string{"slides.pptx", ".draft.txt", "~$exam.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s should stay in the inbox: %v", name, err)
		}
	}
}

func TestInbox_StartCreatesDirectories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	startInbox(t, dir, nil, (&recorder{}).handle)
	for _, d := range []string{dir, filepath.Join(dir, ProcessedDir), filepath.Join(dir, FailedDir)} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Errorf("%s should exist: %v", d, err)
		}
	}
}

func TestInbox_StopLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	rec := &recorder{}
	in := NewInbox([]string{dir}, nil, rec.handle, WithDebounce(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	if err := in.Start(ctx); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "a.txt"), "1. Recall.")
	waitForFile(t, filepath.Join(dir, ProcessedDir, "a.txt"))
	cancel()
	in.Stop()
	in.Stop()
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path string
		exts []string
		want bool
	}{
		{"quiz.txt", []string{".txt"}, true},
		{"QUIZ.PDF", []string{"pdf"}, true},
		{"quiz.docx", []string{".txt", ".pdf"}, false},
		{"noext", []string{".txt"}, false},
		{"anything.bin", nil, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.exts); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.exts, got, tt.want)
		}
	}
}

func TestMoveInto_RenamesOnCollision(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, ProcessedDir)
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dest, "exam.txt"), "old")
	src := filepath.Join(dir, "exam.txt")
	writeFile(t, src, "new")

	moved, err := moveInto(src, dest)
	if err != nil {
		t.Fatal(err)
	}
	if moved == filepath.Join(dest, "exam.txt") {
		t.Fatal("existing processed file should not be overwritten")
	}
	if filepath.Ext(moved) != ".txt" {
		t.Errorf("moved name %q should keep its extension", moved)
	}
	data, err := os.ReadFile(filepath.Join(dest, "exam.txt"))
	if err != nil || string(data) != "old" {
		t.Errorf("original processed file changed: %q %v", data, err)
	}
}
