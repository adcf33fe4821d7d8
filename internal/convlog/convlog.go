// Package convlog writes conversation transcripts as newline-delimited JSON,
// one file per visitor session.
package convlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Config controls transcript logging.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Event is one transcript line.
type Event struct {
	Timestamp  string         `json:"ts"`
	VisitorID  string         `json:"visitor_id"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw,omitempty"`
	Content    string         `json:"content,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Logger records transcript events without blocking the caller.
type Logger interface {
	Log(e Event)
	Close() error
}

// Noop discards events.
type Noop struct{}

func (Noop) Log(Event)    {}
func (Noop) Close() error { return nil }

// FileLogger appends events to <dir>/<visitor>/<session>.ndjson from a single
// writer goroutine. Events are dropped when the queue is full.
type FileLogger struct {
	dir    string
	queue  chan Event
	logger *slog.Logger
	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// New returns a FileLogger, or Noop when cfg is disabled.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	return NewFileLogger(cfg, logger)
}

// NewFileLogger creates the log directory and starts the writer.
func NewFileLogger(cfg Config, logger *slog.Logger) (*FileLogger, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("conversation log dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	l := &FileLogger{
		dir:    cfg.Dir,
		queue:  make(chan Event, size),
		logger: logger,
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Log enqueues e, filling Timestamp and Content when empty.
func (l *FileLogger) Log(e Event) {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if e.Content == "" && e.ContentRaw != "" {
		e.Content = CleanForReadability(e.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- e:
	default:
		l.logger.Warn("Conversation log queue full, dropping event",
			"session_id", e.SessionID, "event_type", e.EventType)
	}
}

// Close drains the queue and stops the writer.
func (l *FileLogger) Close() error {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
	})
	l.wg.Wait()
	return nil
}

func (l *FileLogger) run() {
	defer l.wg.Done()
	for e := range l.queue {
		if err := l.write(e); err != nil {
			l.logger.Warn("Failed to write conversation log",
				"session_id", e.SessionID, "error", err)
		}
	}
}

func (l *FileLogger) write(e Event) error {
	dir := filepath.Join(l.dir, safeComponent(e.VisitorID))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create visitor dir: %w", err)
	}
	path := filepath.Join(dir, safeComponent(e.SessionID)+".ndjson")

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append log line: %w", err)
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// safeComponent makes an identifier usable as a single path element.
func safeComponent(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	if s == "" || strings.Trim(s, "_") == "" {
		return "unknown"
	}
	return s
}

var (
	ansiSeq    = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	emphasis   = regexp.MustCompile(`\*\*([^*]*)\*\*`)
	whitespace = regexp.MustCompile(`[ \t]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// CleanForReadability strips terminal escapes and markdown bold markers and
// collapses runs of whitespace.
func CleanForReadability(s string) string {
	s = ansiSeq.ReplaceAllString(s, "")
	s = emphasis.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = whitespace.ReplaceAllString(s, " ")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
