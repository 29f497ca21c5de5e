package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// lifecycleConn is a minimal browser-level CDP connection used only for
// target discovery.  Per-tab work goes through chromedp sessions; this
// connection exists so targetCreated / targetDestroyed arrive even for tabs
// chromedp has not attached to yet.
type lifecycleConn struct {
	httpBase string // e.g. "http://127.0.0.1:9222"

	mu   sync.Mutex
	conn net.Conn
	seq  atomic.Int64

	pending   map[int64]chan json.RawMessage
	pendingMu sync.Mutex

	onCreated   func(*target.Info)
	onDestroyed func(target.ID)
	onLost      func(error)
}

func newLifecycleConn(httpBase string) *lifecycleConn {
	return &lifecycleConn{
		httpBase: strings.TrimRight(httpBase, "/"),
		pending:  make(map[int64]chan json.RawMessage),
	}
}

// connect dials the browser-level WebSocket endpoint and enables target
// discovery.
func (l *lifecycleConn) connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return nil
	}

	wsURL, err := l.browserWSURL(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle: browser ws url: %w", err)
	}

	slog.Debug("lifecycle connecting", "ws_url", wsURL)
	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("lifecycle: dial: %w", err)
	}

	l.conn = conn
	l.pending = make(map[int64]chan json.RawMessage)
	go l.readLoop()

	if _, err := l.send(ctx, "Target.setDiscoverTargets", map[string]bool{"discover": true}); err != nil {
		l.closeLocked()
		return fmt.Errorf("lifecycle: setDiscoverTargets: %w", err)
	}
	return nil
}

func (l *lifecycleConn) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeLocked()
}

func (l *lifecycleConn) closeLocked() {
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
}

// readLoop dispatches command responses to waiters and lifecycle events to
// the registered callbacks.
func (l *lifecycleConn) readLoop() {
	for {
		l.mu.Lock()
		conn := l.conn
		l.mu.Unlock()
		if conn == nil {
			return
		}

		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			slog.Debug("lifecycle read loop exit", "error", err)
			l.closeAllPending()
			if l.onLost != nil {
				l.onLost(err)
			}
			return
		}

		var msg struct {
			ID     int64           `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if msg.ID > 0 {
			l.pendingMu.Lock()
			ch, ok := l.pending[msg.ID]
			if ok {
				delete(l.pending, msg.ID)
			}
			l.pendingMu.Unlock()
			if ok {
				ch <- json.RawMessage(data)
			}
			continue
		}

		switch msg.Method {
		case "Target.targetCreated":
			var params struct {
				TargetInfo *target.Info `json:"targetInfo"`
			}
			if json.Unmarshal(msg.Params, &params) == nil && params.TargetInfo != nil && l.onCreated != nil {
				l.onCreated(params.TargetInfo)
			}
		case "Target.targetDestroyed":
			var params struct {
				TargetID target.ID `json:"targetId"`
			}
			if json.Unmarshal(msg.Params, &params) == nil && l.onDestroyed != nil {
				l.onDestroyed(params.TargetID)
			}
		}
	}
}

func (l *lifecycleConn) closeAllPending() {
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()
	for id, ch := range l.pending {
		close(ch)
		delete(l.pending, id)
	}
}

func (l *lifecycleConn) deletePending(id int64) {
	l.pendingMu.Lock()
	delete(l.pending, id)
	l.pendingMu.Unlock()
}

// send issues a browser-level CDP command and waits for its response.
func (l *lifecycleConn) send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	conn := l.conn
	if conn == nil {
		return nil, fmt.Errorf("lifecycle: not connected")
	}

	id := l.seq.Add(1)
	req := struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
		Params any    `json:"params,omitempty"`
	}{ID: id, Method: method, Params: params}

	ch := make(chan json.RawMessage, 1)
	l.pendingMu.Lock()
	l.pending[id] = ch
	l.pendingMu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		l.deletePending(id)
		return nil, fmt.Errorf("lifecycle: marshal: %w", err)
	}

	if err := wsutil.WriteClientText(conn, data); err != nil {
		l.deletePending(id)
		return nil, fmt.Errorf("lifecycle: send: %w", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("lifecycle: connection closed")
		}
		return resp, nil
	case <-ctx.Done():
		l.deletePending(id)
		return nil, ctx.Err()
	}
}

// browserWSURL fetches the WebSocket debugger URL from /json/version.
func (l *lifecycleConn) browserWSURL(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.httpBase+"/json/version", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lifecycle: /json/version: HTTP %d", resp.StatusCode)
	}

	var info struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	if info.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("empty webSocketDebuggerUrl")
	}
	return info.WebSocketDebuggerURL, nil
}
