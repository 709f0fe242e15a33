package audit

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Logger appends one JSON line per operation phase to the audit log. It is
// nil-safe: a nil logger drops everything, so callers never guard.
type Logger struct {
	mu sync.Mutex
	zl zerolog.Logger
	f  *os.File
}

// Open creates or appends to the audit log at path.
func Open(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	zl := zerolog.New(f).With().Timestamp().Logger()
	return &Logger{zl: zl, f: f}, nil
}

// Log records one phase of an operation. Extra fields ride along as-is.
func (l *Logger) Log(requestID, operation, phase, status string, fields map[string]string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ev := l.zl.Info().
		Str("requestId", requestID).
		Str("operation", operation).
		Str("phase", phase).
		Str("status", status)
	for k, v := range fields {
		ev = ev.Str(k, v)
	}
	ev.Send()
}

func (l *Logger) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	return l.f.Close()
}
