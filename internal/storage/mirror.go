package storage

import (
	"log/slog"
	"sync"
	"time"
)

// Mirror fans captured events out to JSONL writers, one per page and data
// kind. A nil *Mirror is valid and discards everything, so callers never
// need to branch on whether mirroring is enabled.
type Mirror struct {
	baseDir    string
	bufferSize int
	maxSizeMB  int

	mu      sync.Mutex
	writers map[string]map[string]*JSONLWriter
}

// NetworkRecord is one mirrored network request line.
type NetworkRecord struct {
	Timestamp string `json:"timestamp"`
	PageID    string `json:"page_id"`
	RequestID string `json:"request_id"`
	Method    string `json:"method"`
	URL       string `json:"url"`
}

// WebSocketRecord is one mirrored WebSocket lifecycle line.
type WebSocketRecord struct {
	Timestamp string `json:"timestamp"`
	PageID    string `json:"page_id"`
	RequestID string `json:"request_id"`
	Event     string `json:"event"`
	URL       string `json:"url,omitempty"`
}

// ConsoleRecord is one mirrored console message line.
type ConsoleRecord struct {
	Timestamp string `json:"timestamp"`
	PageID    string `json:"page_id"`
	Level     string `json:"level"`
	Text      string `json:"text"`
}

// NewMirror builds a mirror rooted at baseDir.
func NewMirror(baseDir string, bufferSize, maxSizeMB int) *Mirror {
	return &Mirror{
		baseDir:    baseDir,
		bufferSize: bufferSize,
		maxSizeMB:  maxSizeMB,
		writers:    make(map[string]map[string]*JSONLWriter),
	}
}

// WriteNetwork mirrors a request-sent event.
func (m *Mirror) WriteNetwork(pageID, url, method, requestID string) {
	if m == nil {
		return
	}
	m.writer(pageID, "network").Write(NetworkRecord{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		PageID:    pageID,
		RequestID: requestID,
		Method:    method,
		URL:       url,
	})
}

// WriteWebSocket mirrors a connection lifecycle event.
func (m *Mirror) WriteWebSocket(pageID, url, event, requestID string) {
	if m == nil {
		return
	}
	m.writer(pageID, "websocket").Write(WebSocketRecord{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		PageID:    pageID,
		RequestID: requestID,
		Event:     event,
		URL:       url,
	})
}

// WriteConsole mirrors a console message.
func (m *Mirror) WriteConsole(pageID, level, text string) {
	if m == nil {
		return
	}
	m.writer(pageID, "console").Write(ConsoleRecord{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		PageID:    pageID,
		Level:     level,
		Text:      text,
	})
}

func (m *Mirror) writer(pageID, kind string) *JSONLWriter {
	short := ShortPageID(pageID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.writers[short][kind]; ok {
		return w
	}
	if m.writers[short] == nil {
		m.writers[short] = make(map[string]*JSONLWriter)
	}

	w := NewJSONLWriter(m.baseDir, kind, short, m.bufferSize, m.maxSizeMB)
	m.writers[short][kind] = w
	slog.Info("created mirror writer", "page_id", short, "kind", kind)
	return w
}

// Close shuts down every writer.
func (m *Mirror) Close() error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for short, kinds := range m.writers {
		for kind, w := range kinds {
			if err := w.Close(); err != nil {
				slog.Error("failed to close mirror writer",
					"page_id", short,
					"kind", kind,
					"error", err)
				lastErr = err
			}
		}
	}
	m.writers = make(map[string]map[string]*JSONLWriter)
	return lastErr
}
