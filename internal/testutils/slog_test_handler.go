package testutils

import (
	"context"
	"log/slog"
	"sync"
)

// LogEntry represents a simplified log record for testing
type LogEntry map[string]interface{}

// TestSlogHandler is a memory-backed slog.Handler for testing.
// Handlers derived through WithAttrs share the captured entries and add
// their attributes to every entry they record.
type TestSlogHandler struct {
	mu      *sync.Mutex
	entries *[]LogEntry
	attrs   []slog.Attr
}

// NewTestSlogHandler creates a new memory-backed slog handler
func NewTestSlogHandler() *TestSlogHandler {
	entries := make([]LogEntry, 0)
	return &TestSlogHandler{
		mu:      &sync.Mutex{},
		entries: &entries,
	}
}

// Logger returns a logger writing to h.
func (h *TestSlogHandler) Logger() *slog.Logger {
	return slog.New(h)
}

// Enabled satisfies slog.Handler interface
func (h *TestSlogHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

// Handle satisfies slog.Handler interface
func (h *TestSlogHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := make(LogEntry)
	entry["level"] = r.Level.String()
	entry["message"] = r.Message

	for _, attr := range h.attrs {
		entry[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(attr slog.Attr) bool {
		entry[attr.Key] = attr.Value.Any()
		return true
	})

	*h.entries = append(*h.entries, entry)
	return nil
}

// WithAttrs satisfies slog.Handler interface
func (h *TestSlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &TestSlogHandler{mu: h.mu, entries: h.entries, attrs: merged}
}

// WithGroup satisfies slog.Handler interface
func (h *TestSlogHandler) WithGroup(name string) slog.Handler {
	return h
}

// Entries returns all captured log entries
func (h *TestSlogHandler) Entries() []LogEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	result := make([]LogEntry, len(*h.entries))
	copy(result, *h.entries)
	return result
}

// HasMessage reports whether an entry with the message was captured.
func (h *TestSlogHandler) HasMessage(msg string) bool {
	for _, e := range h.Entries() {
		if e["message"] == msg {
			return true
		}
	}
	return false
}

// Count returns how many captured entries have the message.
func (h *TestSlogHandler) Count(msg string) int {
	n := 0
	for _, e := range h.Entries() {
		if e["message"] == msg {
			n++
		}
	}
	return n
}

// Clear resets the captured log entries
func (h *TestSlogHandler) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	*h.entries = make([]LogEntry, 0)
}
