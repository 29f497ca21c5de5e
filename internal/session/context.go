// Package session owns one collector set for the browser connection and
// brokers lookups between the HTTP API and the per-page collectors.
package session

import (
	"log/slog"
	"sync"

	cdpnet "github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/netlens/internal/cdp"
	"github.com/dgnsrekt/netlens/internal/observe"
	"github.com/dgnsrekt/netlens/internal/storage"
	"github.com/dgnsrekt/netlens/internal/traffic"
)

// Scope selects the epoch window for a read: the current epoch only, or all
// retained epochs in chronological order.
type Scope string

const (
	ScopeCurrent Scope = "current"
	ScopeAll     Scope = "all"
)

// PageInfo summarizes one tracked page for listings. Counts span all
// retained epochs.
type PageInfo struct {
	PageID       string `json:"page_id"`
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	Requests     int    `json:"requests"`
	ConsoleLines int    `json:"console_lines"`
	Connections  int    `json:"connections"`
}

// RequestRecord is a network request with its stable ID.
type RequestRecord struct {
	ID        int64              `json:"id"`
	Request   observe.Request    `json:"request"`
	Initiator *observe.Initiator `json:"initiator,omitempty"`
}

// ConsoleRecord is a console message with its stable ID.
type ConsoleRecord struct {
	ID      int64                  `json:"id"`
	Message observe.ConsoleMessage `json:"message"`
}

// ConnectionRecord is a WebSocket connection with its stable ID. Frames are
// copied out of the live aggregate.
type ConnectionRecord struct {
	ID         int64                       `json:"id"`
	Connection observe.WebSocketConnection `json:"connection"`
}

// Context creates collector state when a page is attached, tears it down
// when the page is destroyed, and resolves stable IDs for the API layer.
// It implements cdp.Observer.
type Context struct {
	network   *observe.NetworkCollector
	console   *observe.ConsoleCollector
	websocket *observe.WebSocketCollector
	registry  *cdp.PageRegistry
	mirror    *storage.Mirror

	mu     sync.RWMutex
	caches map[*cdp.Page]*traffic.Cache
}

// New builds a session context. mirror may be nil when JSONL mirroring is
// disabled.
func New(retain, wsMaxFrameBytes int, registry *cdp.PageRegistry, mirror *storage.Mirror) *Context {
	return &Context{
		network:   observe.NewNetworkCollector(retain),
		console:   observe.NewConsoleCollector(retain),
		websocket: observe.NewWebSocketCollector(retain, wsMaxFrameBytes),
		registry:  registry,
		mirror:    mirror,
		caches:    make(map[*cdp.Page]*traffic.Cache),
	}
}

// --- cdp.Observer ---

func (s *Context) PageAttached(p *cdp.Page) {
	s.network.Track(p)
	s.console.Track(p)
	s.websocket.Track(p)

	s.mu.Lock()
	s.caches[p] = traffic.NewCache()
	s.mu.Unlock()
	slog.Debug("session tracking page", "page_id", p.TargetID())
}

func (s *Context) PageDetached(p *cdp.Page) {
	s.network.Untrack(p)
	s.console.Untrack(p)
	s.websocket.Untrack(p)

	s.mu.Lock()
	delete(s.caches, p)
	s.mu.Unlock()
	slog.Debug("session untracked page", "page_id", p.TargetID())
}

func (s *Context) MainFrameNavigated(p *cdp.Page, frameID string) {
	s.network.OnMainFrameNavigated(p, frameID)
	s.console.OnMainFrameNavigated(p)
	s.websocket.OnMainFrameNavigated(p)
}

func (s *Context) RequestWillBeSent(p *cdp.Page, ev *cdpnet.EventRequestWillBeSent) {
	s.network.OnRequestWillBeSent(p, ev)
	s.mirror.WriteNetwork(p.TargetID(), ev.Request.URL, ev.Request.Method, string(ev.RequestID))
}

func (s *Context) ResponseReceived(p *cdp.Page, ev *cdpnet.EventResponseReceived) {
	s.network.OnResponseReceived(p, ev)
}

func (s *Context) LoadingFinished(p *cdp.Page, ev *cdpnet.EventLoadingFinished) {
	s.network.OnLoadingFinished(p, ev)
}

func (s *Context) LoadingFailed(p *cdp.Page, ev *cdpnet.EventLoadingFailed) {
	s.network.OnLoadingFailed(p, ev)
}

func (s *Context) WebSocketCreated(p *cdp.Page, ev *cdpnet.EventWebSocketCreated) {
	s.websocket.OnCreated(p, ev)
	s.mirror.WriteWebSocket(p.TargetID(), ev.URL, "created", string(ev.RequestID))
}

func (s *Context) WebSocketFrameSent(p *cdp.Page, ev *cdpnet.EventWebSocketFrameSent) {
	s.websocket.OnFrameSent(p, ev)
}

func (s *Context) WebSocketFrameReceived(p *cdp.Page, ev *cdpnet.EventWebSocketFrameReceived) {
	s.websocket.OnFrameReceived(p, ev)
}

func (s *Context) WebSocketClosed(p *cdp.Page, ev *cdpnet.EventWebSocketClosed) {
	s.websocket.OnClosed(p, ev)
	s.mirror.WriteWebSocket(p.TargetID(), "", "closed", string(ev.RequestID))
}

func (s *Context) ConsoleAPICalled(p *cdp.Page, ev *runtime.EventConsoleAPICalled) {
	msg := s.console.OnConsoleAPICalled(p, ev)
	s.mirror.WriteConsole(p.TargetID(), msg.Kind, msg.Text)
}

// --- API-facing reads ---

func (s *Context) Pages() []PageInfo {
	pages := s.registry.List()
	out := make([]PageInfo, 0, len(pages))
	for _, p := range pages {
		out = append(out, PageInfo{
			PageID:       p.TargetID(),
			URL:          p.URL(),
			Title:        p.Title(),
			Requests:     s.network.Count(p),
			ConsoleLines: s.console.Count(p),
			Connections:  s.websocket.Count(p),
		})
	}
	return out
}

// Page resolves a page ID to its live handle.
func (s *Context) Page(pageID string) (*cdp.Page, error) {
	p, ok := s.registry.Get(target.ID(pageID))
	if !ok {
		return nil, &observe.CodedError{Code: observe.CodeNotTracked, Message: "no such page: " + pageID}
	}
	return p, nil
}

func (s *Context) Requests(pageID string, scope Scope) ([]RequestRecord, error) {
	p, err := s.Page(pageID)
	if err != nil {
		return nil, err
	}
	records, err := observe.SnapshotEntries(s.network.Collector, p, scope == ScopeAll,
		func(e observe.Entry[*observe.Request]) RequestRecord {
			return RequestRecord{ID: e.ID, Request: observe.CloneRequest(e.Item)}
		})
	if err != nil {
		return nil, err
	}
	for i := range records {
		if ini, ok := s.network.InitiatorByRequestID(p, records[i].Request.RequestID); ok {
			records[i].Initiator = ini
		}
	}
	return records, nil
}

func (s *Context) RequestByID(pageID string, id int64) (RequestRecord, error) {
	p, err := s.Page(pageID)
	if err != nil {
		return RequestRecord{}, err
	}
	record, err := observe.SnapshotByID(s.network.Collector, p, id,
		func(r *observe.Request) RequestRecord {
			return RequestRecord{ID: id, Request: observe.CloneRequest(r)}
		})
	if err != nil {
		return RequestRecord{}, err
	}
	if ini, ok := s.network.InitiatorByRequestID(p, record.Request.RequestID); ok {
		record.Initiator = ini
	}
	return record, nil
}

func (s *Context) ConsoleMessages(pageID string, scope Scope) ([]ConsoleRecord, error) {
	p, err := s.Page(pageID)
	if err != nil {
		return nil, err
	}
	return observe.SnapshotEntries(s.console.Collector, p, scope == ScopeAll,
		func(e observe.Entry[observe.ConsoleMessage]) ConsoleRecord {
			return ConsoleRecord{ID: e.ID, Message: e.Item}
		})
}

func (s *Context) Connections(pageID string, scope Scope) ([]ConnectionRecord, error) {
	p, err := s.Page(pageID)
	if err != nil {
		return nil, err
	}
	return observe.SnapshotEntries(s.websocket.Collector, p, scope == ScopeAll,
		func(e observe.Entry[*observe.WebSocketConnection]) ConnectionRecord {
			return ConnectionRecord{ID: e.ID, Connection: observe.CloneConnection(e.Item)}
		})
}

func (s *Context) ConnectionByID(pageID string, id int64) (ConnectionRecord, error) {
	p, err := s.Page(pageID)
	if err != nil {
		return ConnectionRecord{}, err
	}
	conn, err := observe.SnapshotByID(s.websocket.Collector, p, id, observe.CloneConnection)
	if err != nil {
		return ConnectionRecord{}, err
	}
	return ConnectionRecord{ID: id, Connection: conn}, nil
}

// Analyze returns the traffic summary for one connection, serving the cached
// result unless fresh is set or nothing is cached yet.
func (s *Context) Analyze(pageID string, id int64, fresh bool) (traffic.Summary, error) {
	p, err := s.Page(pageID)
	if err != nil {
		return traffic.Summary{}, err
	}

	s.mu.RLock()
	cache := s.caches[p]
	s.mu.RUnlock()

	if cache != nil && !fresh {
		if cached, ok := cache.Get(id); ok {
			return cached, nil
		}
	}

	conn, err := observe.SnapshotByID(s.websocket.Collector, p, id, observe.CloneConnection)
	if err != nil {
		return traffic.Summary{}, err
	}

	summary := traffic.Analyze(conn.Frames, id, conn.URL)
	if cache != nil {
		cache.Put(id, summary)
	}
	return summary, nil
}

// GroupFrames resolves a traffic group to its member frames for drill-down.
// The group table comes from the cached summary when available so group IDs
// stay consistent with what the caller was shown.
func (s *Context) GroupFrames(pageID string, id int64, groupID string) ([]observe.Frame, error) {
	summary, err := s.Analyze(pageID, id, false)
	if err != nil {
		return nil, err
	}

	indices, ok := summary.Members[groupID]
	if !ok {
		return nil, &observe.CodedError{Code: observe.CodeNotFound, Message: "no such traffic group: " + groupID}
	}

	p, err := s.Page(pageID)
	if err != nil {
		return nil, err
	}
	conn, err := observe.SnapshotByID(s.websocket.Collector, p, id, observe.CloneConnection)
	if err != nil {
		return nil, err
	}

	frames := make([]observe.Frame, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(conn.Frames) {
			frames = append(frames, conn.Frames[idx])
		}
	}
	return frames, nil
}
