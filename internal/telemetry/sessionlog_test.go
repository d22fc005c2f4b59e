package telemetry

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSessionFileName_Format(t *testing.T) {
	start := time.Date(2026, 8, 3, 14, 5, 9, 0, time.UTC)
	got := SessionFileName(start)
	want := "session_2026-08-03_14-05-09.log"
	if got != want {
		t.Fatalf("SessionFileName = %q, want %q", got, want)
	}
}

func TestSessionFileHandler_WritesLiteralFormat(t *testing.T) {
	dir := t.TempDir()
	start := time.Now()
	h, err := NewSessionFileHandler(dir, start, slog.LevelInfo)
	if err != nil {
		t.Fatalf("NewSessionFileHandler: %v", err)
	}
	defer h.Close()

	logger := slog.New(h)
	logger.Info("listening started")

	contents, err := os.ReadFile(filepath.Join(dir, SessionFileName(start)))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := strings.TrimRight(string(contents), "\n")
	if !strings.HasPrefix(line, "[") || !strings.Contains(line, "s] listening started") {
		t.Fatalf("unexpected line format: %q", line)
	}
}

func TestRotateSessionLogs_KeepsOnlyMostRecent(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < KeepSessionLogs+3; i++ {
		start := time.Now().Add(time.Duration(i) * time.Second)
		path := filepath.Join(dir, SessionFileName(start))
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %q: %v", path, err)
		}
		modTime := start
		_ = os.Chtimes(path, modTime, modTime)
	}

	if err := RotateSessionLogs(dir); err != nil {
		t.Fatalf("RotateSessionLogs: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != KeepSessionLogs {
		t.Fatalf("len(entries) = %d, want %d", len(entries), KeepSessionLogs)
	}
}

func TestRotateSessionLogs_MissingDirIsNotError(t *testing.T) {
	if err := RotateSessionLogs(filepath.Join(t.TempDir(), "does-not-exist")); err != nil {
		t.Fatalf("RotateSessionLogs on missing dir: %v", err)
	}
}

func TestFanOut_DispatchesToAllHandlers(t *testing.T) {
	dir := t.TempDir()
	start := time.Now()
	fileHandler, err := NewSessionFileHandler(dir, start, slog.LevelInfo)
	if err != nil {
		t.Fatalf("NewSessionFileHandler: %v", err)
	}
	defer fileHandler.Close()

	var sb strings.Builder
	textHandler := slog.NewTextHandler(&sb, nil)

	fanout := NewFanOut(textHandler, fileHandler)
	logger := slog.New(fanout)
	logger.Info("dual write")

	if !strings.Contains(sb.String(), "dual write") {
		t.Fatalf("stderr branch missing message: %q", sb.String())
	}
	contents, err := os.ReadFile(filepath.Join(dir, SessionFileName(start)))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(contents), "dual write") {
		t.Fatalf("file branch missing message: %q", string(contents))
	}
}
