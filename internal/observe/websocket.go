package observe

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
)

// WebSocket frame opcodes as delivered by the protocol.
const (
	OpcodeText   = 1
	OpcodeBinary = 2
)

type FrameDirection string

const (
	FrameSent     FrameDirection = "sent"
	FrameReceived FrameDirection = "received"
)

type ConnectionStatus string

const (
	StatusConnecting ConnectionStatus = "connecting"
	StatusOpen       ConnectionStatus = "open"
	StatusClosed     ConnectionStatus = "closed"
)

// Frame is one captured WebSocket frame. Frames are append-only and never
// mutated after creation. Binary payloads arrive base64-encoded from the
// protocol and are stored decoded.
type Frame struct {
	Direction    FrameDirection `json:"direction"`
	TimestampMS  float64        `json:"timestamp_ms"`
	Opcode       int            `json:"opcode"`
	Payload      []byte         `json:"payload"`
	Truncated    bool           `json:"truncated,omitempty"`
	OriginalSize int            `json:"original_size,omitempty"`
	SHA256       string         `json:"sha256,omitempty"`
}

// WebSocketConnection is the aggregate item built incrementally from the
// created / frame-sent / frame-received / closed event stream. Identity is
// the protocol-assigned request ID, not the stable ID.
type WebSocketConnection struct {
	RequestID string           `json:"request_id"`
	URL       string           `json:"url"`
	Initiator *Initiator       `json:"initiator,omitempty"`
	Status    ConnectionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	ClosedAt  time.Time        `json:"closed_at,omitempty"`
	Frames    []Frame          `json:"frames"`
}

// WebSocketCollector builds connection aggregates per page. The lookup table
// from protocol request ID to connection is scoped to the current epoch: it
// is reset on every navigation so a request ID reused after navigation can
// never merge frames into stale data. Frame events for unknown connections
// are silently dropped; protocol delivery is best effort and every handler
// is a no-op on missing state.
type WebSocketCollector struct {
	*Collector[*WebSocketConnection]

	maxPayloadBytes int

	mu    sync.Mutex
	table map[Page]map[string]*WebSocketConnection
}

func NewWebSocketCollector(retain, maxPayloadBytes int) *WebSocketCollector {
	return &WebSocketCollector{
		Collector:       NewCollector[*WebSocketConnection]("websocket", retain),
		maxPayloadBytes: maxPayloadBytes,
		table:           make(map[Page]map[string]*WebSocketConnection),
	}
}

func (w *WebSocketCollector) Track(page Page) {
	w.Collector.Track(page)
	w.mu.Lock()
	if _, ok := w.table[page]; !ok {
		w.table[page] = make(map[string]*WebSocketConnection)
	}
	w.mu.Unlock()
}

func (w *WebSocketCollector) Untrack(page Page) {
	w.Collector.Untrack(page)
	w.mu.Lock()
	delete(w.table, page)
	w.mu.Unlock()
}

// OnCreated allocates the connection record, assigns its stable ID by
// appending it to the current epoch, registers it in the epoch lookup table,
// and transitions it straight to open: the protocol offers no distinct
// opened signal.
func (w *WebSocketCollector) OnCreated(page Page, ev *network.EventWebSocketCreated) {
	conn := &WebSocketConnection{
		RequestID: string(ev.RequestID),
		URL:       ev.URL,
		Status:    StatusConnecting,
		CreatedAt: time.Now().UTC(),
	}
	if ev.Initiator != nil {
		conn.Initiator = &Initiator{
			Type: string(ev.Initiator.Type),
			URL:  ev.Initiator.URL,
			Line: int64(ev.Initiator.LineNumber),
		}
	}
	if w.Append(page, conn) == -1 {
		return
	}

	w.mu.Lock()
	if table, ok := w.table[page]; ok {
		table[string(ev.RequestID)] = conn
	}
	w.mu.Unlock()

	w.Update(page, matchConn(conn), func(c *WebSocketConnection) {
		c.Status = StatusOpen
	})
}

func (w *WebSocketCollector) OnFrameSent(page Page, ev *network.EventWebSocketFrameSent) {
	w.appendFrame(page, string(ev.RequestID), FrameSent, ev.Timestamp, ev.Response)
}

func (w *WebSocketCollector) OnFrameReceived(page Page, ev *network.EventWebSocketFrameReceived) {
	w.appendFrame(page, string(ev.RequestID), FrameReceived, ev.Timestamp, ev.Response)
}

func (w *WebSocketCollector) OnClosed(page Page, ev *network.EventWebSocketClosed) {
	conn, ok := w.lookup(page, string(ev.RequestID))
	if !ok {
		return
	}
	closedAt := time.Now().UTC()
	w.Update(page, matchConn(conn), func(c *WebSocketConnection) {
		c.Status = StatusClosed
		c.ClosedAt = closedAt
	})
}

// OnMainFrameNavigated rotates with the default policy and resets the
// connection lookup table.
func (w *WebSocketCollector) OnMainFrameNavigated(page Page) {
	w.Rotate(page)
	w.mu.Lock()
	if _, ok := w.table[page]; ok {
		w.table[page] = make(map[string]*WebSocketConnection)
	}
	w.mu.Unlock()
}

func (w *WebSocketCollector) lookup(page Page, requestID string) (*WebSocketConnection, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	table, ok := w.table[page]
	if !ok {
		return nil, false
	}
	conn, ok := table[requestID]
	return conn, ok
}

func (w *WebSocketCollector) appendFrame(page Page, requestID string, dir FrameDirection, ts *cdp.MonotonicTime, wsFrame *network.WebSocketFrame) {
	conn, ok := w.lookup(page, requestID)
	if !ok || wsFrame == nil {
		return
	}

	payload, truncated, originalSize, payloadHash := truncateBytes(decodePayload(wsFrame), w.maxPayloadBytes)
	frame := Frame{
		Direction:    dir,
		TimestampMS:  monotonicMS(ts),
		Opcode:       int(wsFrame.Opcode),
		Payload:      payload,
		Truncated:    truncated,
		OriginalSize: originalSize,
		SHA256:       payloadHash,
	}
	w.Update(page, matchConn(conn), func(c *WebSocketConnection) {
		c.Frames = append(c.Frames, frame)
	})
}

// decodePayload returns the frame payload as raw bytes. Binary frames carry
// base64 in PayloadData; anything that fails to decode is kept verbatim.
func decodePayload(wsFrame *network.WebSocketFrame) []byte {
	if int(wsFrame.Opcode) == OpcodeBinary {
		if decoded, err := base64.StdEncoding.DecodeString(wsFrame.PayloadData); err == nil {
			return decoded
		}
	}
	return []byte(wsFrame.PayloadData)
}

func monotonicMS(ts *cdp.MonotonicTime) float64 {
	if ts == nil {
		return 0
	}
	return float64(ts.Time().UnixNano()) / float64(time.Millisecond)
}

func matchConn(target *WebSocketConnection) func(*WebSocketConnection) bool {
	return func(c *WebSocketConnection) bool { return c == target }
}

// CloneConnection copies a connection including its frame list; used as the
// snapshot clone so readers never alias a frame slice the event handlers
// still append to.
func CloneConnection(c *WebSocketConnection) WebSocketConnection {
	out := *c
	out.Frames = make([]Frame, len(c.Frames))
	copy(out.Frames, c.Frames)
	return out
}

// CloneRequest copies a request value for snapshot readers.
func CloneRequest(r *Request) Request { return *r }
