package convlog

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileLoggerWritesPerSessionNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewFileLogger(Config{Enabled: true, Dir: dir, QueueSize: 16}, slog.Default())
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(Event{
		VisitorID:  "anon_1",
		SessionID:  "sess-1",
		Channel:    "chat_http",
		Direction:  "inbound",
		EventType:  "user_message",
		ContentRaw: "What are the **course fees**?",
	})

	path := filepath.Join(dir, "anon_1", "sess-1.ndjson")
	line := waitForLogLine(t, path)
	var got Event
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.ContentRaw != "What are the **course fees**?" {
		t.Fatalf("unexpected ContentRaw: %q", got.ContentRaw)
	}
	if got.Content != "What are the course fees?" {
		t.Fatalf("unexpected Content: %q", got.Content)
	}
	if got.Timestamp == "" {
		t.Fatal("expected timestamp to be filled")
	}
}

func TestFileLoggerCloseDrains(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewFileLogger(Config{Dir: dir, QueueSize: 64}, nil)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		logger.Log(Event{VisitorID: "v", SessionID: "s", EventType: "assistant_message", ContentRaw: "ok"})
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	logger.Log(Event{VisitorID: "v", SessionID: "s", ContentRaw: "late"})

	data, err := os.ReadFile(filepath.Join(dir, "v", "s.ndjson"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if n := len(strings.Split(strings.TrimSpace(string(data)), "\n")); n != 10 {
		t.Fatalf("expected 10 lines, got %d", n)
	}
}

func TestSafeComponent(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"anon_abc":  "anon_abc",
		"../etc":    "___etc",
		"":          "unknown",
		"..":        "unknown",
		"a/b c":     "a_b_c",
		"sess-1234": "sess-1234",
	}
	for in, want := range tests {
		if got := safeComponent(in); got != want {
			t.Errorf("safeComponent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanForReadability(t *testing.T) {
	t.Parallel()

	raw := "\x1b[31mHello\x1b[0m   **world**\n\n\n\nbye  "
	if got := CleanForReadability(raw); got != "Hello world\n\nbye" {
		t.Fatalf("unexpected clean text: %q", got)
	}
}

func TestNewDisabledReturnsNoop(t *testing.T) {
	t.Parallel()
	l, err := New(Config{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := l.(Noop); !ok {
		t.Fatalf("expected Noop, got %T", l)
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			return lines[len(lines)-1]
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}
