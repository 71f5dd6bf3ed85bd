package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/radio-control/rigd/internal/adapter"
	"github.com/radio-control/rigd/internal/config"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp time.Time              `json:"ts"`
	User      string                 `json:"user"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Outcome   string                 `json:"outcome"`
	Code      string                 `json:"code"`
	Detail    string                 `json:"detail,omitempty"`
	LatencyMs int64                  `json:"latencyMs"`
}

type actorKey struct{}

// WithActor attaches the acting user to ctx.
func WithActor(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, actorKey{}, user)
}

// ActorFrom returns the user attached by WithActor, or "system".
func ActorFrom(ctx context.Context) string {
	if user, ok := ctx.Value(actorKey{}).(string); ok && user != "" {
		return user
	}
	return "system"
}

// Logger appends JSON lines to a rotating file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      io.WriteCloser
	now      func() time.Time
}

// NewLogger opens the audit file described by cfg.
func NewLogger(cfg config.AuditConfig) (*Logger, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	// fail early on an unwritable path; lumberjack opens lazily
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	_ = f.Close()

	return newWithWriter(cfg.Path, &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}), nil
}

func newWithWriter(path string, out io.WriteCloser) *Logger {
	return &Logger{filePath: path, out: out, now: time.Now}
}

// Record appends one entry for a completed domain operation.
func (l *Logger) Record(ctx context.Context, action string, params map[string]interface{}, err error, latency time.Duration) {
	entry := Entry{
		Timestamp: l.now().UTC(),
		User:      ActorFrom(ctx),
		Action:    action,
		Params:    params,
		Outcome:   "SUCCESS",
		Code:      "SUCCESS",
		LatencyMs: latency.Milliseconds(),
	}
	if err != nil {
		entry.Outcome = "FAILURE"
		entry.Code = codeOf(err)
		entry.Detail = adapter.DetailOf(err)
	}
	l.writeEntry(entry)
}

func codeOf(err error) string {
	if code := adapter.CodeOf(err); code != nil {
		return code.Error()
	}
	return "INTERNAL"
}

func (l *Logger) writeEntry(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal audit entry: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		return
	}
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write audit entry: %v\n", err)
	}
}

// Rotate starts a new audit file, keeping the old one as a backup.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lj, ok := l.out.(*lumberjack.Logger); ok {
		return lj.Rotate()
	}
	return nil
}

// Close closes the audit file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		return nil
	}
	err := l.out.Close()
	l.out = nil
	return err
}

// FilePath returns the path of the active audit file.
func (l *Logger) FilePath() string {
	return l.filePath
}
