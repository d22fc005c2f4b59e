package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// SessionLogDir is the directory session log files are written to, per
// spec.md §6.
const SessionLogDir = "logs"

// KeepSessionLogs is the number of most-recent session logs retained at
// startup.
const KeepSessionLogs = 5

// SessionFileName returns the session log file name for the given session
// start time, in the "session_<yyyy-MM-dd_HH-mm-ss>.log" format spec.md §6
// specifies.
func SessionFileName(start time.Time) string {
	return fmt.Sprintf("session_%s.log", start.Format("2006-01-02_15-04-05"))
}

// RotateSessionLogs deletes all but the KeepSessionLogs most recently
// modified "session_*.log" files under dir. Safe to call when dir does not
// yet exist or contains fewer than KeepSessionLogs files.
func RotateSessionLogs(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	type logFile struct {
		path    string
		modTime time.Time
	}
	var logs []logFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "session_") || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		logs = append(logs, logFile{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}

	sort.Slice(logs, func(i, j int) bool { return logs[i].modTime.After(logs[j].modTime) })

	for _, lf := range logs[min(KeepSessionLogs, len(logs)):] {
		_ = os.Remove(lf.path)
	}
	return nil
}

// SessionFileHandler is an slog.Handler that writes one line per record in
// the literal "[%7.2fs] <message>" format spec.md §6 requires, where the
// duration is seconds elapsed since the session started. It ignores
// structured attributes beyond formatting them inline, since the spec's wire
// format has no room for key=value pairs.
type SessionFileHandler struct {
	mu    sync.Mutex
	f     *os.File
	start time.Time
	level slog.Level
}

// NewSessionFileHandler opens (creating the parent directory and the file if
// needed) a session log file for a session that started at start.
func NewSessionFileHandler(dir string, start time.Time, level slog.Level) (*SessionFileHandler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("telemetry: ensure log dir %q: %w", dir, err)
	}
	path := filepath.Join(dir, SessionFileName(start))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open session log %q: %w", path, err)
	}
	return &SessionFileHandler{f: f, start: start, level: level}, nil
}

// Enabled implements slog.Handler.
func (h *SessionFileHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle implements slog.Handler, writing the "[%7.2fs] <message>" line.
func (h *SessionFileHandler) Handle(_ context.Context, r slog.Record) error {
	elapsed := r.Time.Sub(h.start).Seconds()
	msg := r.Message
	r.Attrs(func(a slog.Attr) bool {
		msg += fmt.Sprintf(" %s=%v", a.Key, a.Value.Any())
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintf(h.f, "[%7.2fs] %s\n", elapsed, msg)
	return err
}

// WithAttrs implements slog.Handler by returning h unchanged. Handle folds
// only each record's own attributes into the line, so attributes attached
// through WithAttrs do not appear in the session file.
func (h *SessionFileHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }

// WithGroup implements slog.Handler as a no-op; the flat line format has no
// concept of attribute groups.
func (h *SessionFileHandler) WithGroup(_ string) slog.Handler { return h }

// Close closes the underlying file.
func (h *SessionFileHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.f.Close()
}

// FanOut is an slog.Handler that dispatches every record to all of its
// member handlers, stopping at the first error. Grounded on the teacher's
// single-handler-at-startup pattern (cmd/glyphoxa/main.go newLogger),
// extended here because spec.md §6 requires both a human-readable stderr
// stream and the literal per-line session file format simultaneously.
type FanOut struct {
	handlers []slog.Handler
}

// NewFanOut returns a FanOut dispatching to all of handlers.
func NewFanOut(handlers ...slog.Handler) *FanOut {
	return &FanOut{handlers: handlers}
}

// Enabled reports true if any member handler is enabled for level.
func (f *FanOut) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle dispatches r to every enabled member handler.
func (f *FanOut) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

// WithAttrs returns a new FanOut with attrs applied to every member handler.
func (f *FanOut) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &FanOut{handlers: next}
}

// WithGroup returns a new FanOut with the group applied to every member
// handler.
func (f *FanOut) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return &FanOut{handlers: next}
}
