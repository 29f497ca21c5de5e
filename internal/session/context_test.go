package session

import (
	"errors"
	"testing"

	cdproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/netlens/internal/cdp"
	"github.com/dgnsrekt/netlens/internal/observe"
)

func newSession(t *testing.T) (*Context, *cdp.Page) {
	t.Helper()
	registry := cdp.NewPageRegistry()
	sess := New(3, 1024, registry, nil)
	p := registry.Register(target.ID("TAB-1"), "https://example.com", "Example")
	sess.PageAttached(p)
	return sess, p
}

func requestEvent(requestID, loaderID, frameID string, resType network.ResourceType) *network.EventRequestWillBeSent {
	return &network.EventRequestWillBeSent{
		RequestID: network.RequestID(requestID),
		LoaderID:  cdproto.LoaderID(loaderID),
		FrameID:   cdproto.FrameID(frameID),
		Type:      resType,
		Request:   &network.Request{URL: "https://example.com/" + requestID, Method: "GET"},
	}
}

func wsFrame(requestID, payload string) *network.EventWebSocketFrameReceived {
	return &network.EventWebSocketFrameReceived{
		RequestID: network.RequestID(requestID),
		Response:  &network.WebSocketFrame{Opcode: 1, PayloadData: payload},
	}
}

func TestSessionPages(t *testing.T) {
	sess, _ := newSession(t)

	pages := sess.Pages()
	if len(pages) != 1 || pages[0].PageID != "TAB-1" || pages[0].URL != "https://example.com" {
		t.Fatalf("pages = %+v, want the registered tab", pages)
	}

	if _, err := sess.Page("missing"); err == nil {
		t.Fatal("expected error for unknown page id")
	}
}

func TestSessionPageCounts(t *testing.T) {
	sess, p := newSession(t)

	sess.RequestWillBeSent(p, requestEvent("r1", "r1", "F", network.ResourceTypeDocument))
	sess.RequestWillBeSent(p, requestEvent("r2", "l2", "F", network.ResourceTypeXHR))
	sess.WebSocketCreated(p, &network.EventWebSocketCreated{RequestID: "ws1", URL: "wss://example.com/feed"})

	pages := sess.Pages()
	if len(pages) != 1 {
		t.Fatalf("len(pages) = %d, want 1", len(pages))
	}
	if pages[0].Requests != 2 || pages[0].Connections != 1 || pages[0].ConsoleLines != 0 {
		t.Fatalf("counts = %+v, want 2 requests, 1 connection, 0 console lines", pages[0])
	}
}

func TestSessionRequestFlow(t *testing.T) {
	sess, p := newSession(t)

	sess.RequestWillBeSent(p, requestEvent("r1", "r1", "F", network.ResourceTypeDocument))
	sess.ResponseReceived(p, &network.EventResponseReceived{
		RequestID: "r1",
		Response:  &network.Response{Status: 200, MimeType: "text/html"},
	})

	records, err := sess.Requests("TAB-1", ScopeCurrent)
	if err != nil {
		t.Fatalf("Requests() error = %v", err)
	}
	if len(records) != 1 || records[0].Request.Status != 200 {
		t.Fatalf("records = %+v, want one enriched request", records)
	}

	byID, err := sess.RequestByID("TAB-1", records[0].ID)
	if err != nil {
		t.Fatalf("RequestByID() error = %v", err)
	}
	if byID.Request.RequestID != "r1" {
		t.Fatalf("byID = %+v, want r1", byID)
	}
}

func TestSessionScopeSpansNavigations(t *testing.T) {
	sess, p := newSession(t)

	sess.RequestWillBeSent(p, requestEvent("old", "loader", "F", network.ResourceTypeXHR))
	sess.MainFrameNavigated(p, "F")
	sess.RequestWillBeSent(p, requestEvent("new", "loader2", "F", network.ResourceTypeXHR))

	current, err := sess.Requests("TAB-1", ScopeCurrent)
	if err != nil {
		t.Fatalf("Requests(current) error = %v", err)
	}
	if len(current) != 1 || current[0].Request.RequestID != "new" {
		t.Fatalf("current = %+v, want only the post-navigation request", current)
	}

	all, err := sess.Requests("TAB-1", ScopeAll)
	if err != nil {
		t.Fatalf("Requests(all) error = %v", err)
	}
	if len(all) != 2 || all[0].Request.RequestID != "old" {
		t.Fatalf("all = %+v, want both requests oldest first", all)
	}
}

func TestSessionAnalysisCaching(t *testing.T) {
	sess, p := newSession(t)

	sess.WebSocketCreated(p, &network.EventWebSocketCreated{RequestID: "ws1", URL: "wss://example.com/feed"})
	sess.WebSocketFrameReceived(p, wsFrame("ws1", `{"op":"tick"}`))

	conns, err := sess.Connections("TAB-1", ScopeCurrent)
	if err != nil {
		t.Fatalf("Connections() error = %v", err)
	}
	id := conns[0].ID

	first, err := sess.Analyze("TAB-1", id, false)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if first.TotalFrames != 1 {
		t.Fatalf("total_frames = %d, want 1", first.TotalFrames)
	}

	sess.WebSocketFrameReceived(p, wsFrame("ws1", `{"op":"tick"}`))

	cached, err := sess.Analyze("TAB-1", id, false)
	if err != nil {
		t.Fatalf("Analyze() cached error = %v", err)
	}
	if cached.TotalFrames != 1 {
		t.Fatalf("cached total_frames = %d, want stale cached value 1", cached.TotalFrames)
	}

	fresh, err := sess.Analyze("TAB-1", id, true)
	if err != nil {
		t.Fatalf("Analyze() fresh error = %v", err)
	}
	if fresh.TotalFrames != 2 {
		t.Fatalf("fresh total_frames = %d, want 2", fresh.TotalFrames)
	}
}

func TestSessionGroupDrilldown(t *testing.T) {
	sess, p := newSession(t)

	sess.WebSocketCreated(p, &network.EventWebSocketCreated{RequestID: "ws1", URL: "wss://example.com/feed"})
	sess.WebSocketFrameReceived(p, wsFrame("ws1", `{"op":"tick"}`))
	sess.WebSocketFrameReceived(p, wsFrame("ws1", `{"op":"tick"}`))

	conns, err := sess.Connections("TAB-1", ScopeCurrent)
	if err != nil {
		t.Fatalf("Connections() error = %v", err)
	}
	id := conns[0].ID

	frames, err := sess.GroupFrames("TAB-1", id, "A")
	if err != nil {
		t.Fatalf("GroupFrames() error = %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2 members of group A", len(frames))
	}

	_, err = sess.GroupFrames("TAB-1", id, "ZZ")
	var coded *observe.CodedError
	if !errors.As(err, &coded) || coded.Code != observe.CodeNotFound {
		t.Fatalf("error = %v, want NOT_FOUND for unknown group", err)
	}
}

func TestSessionDetachDropsState(t *testing.T) {
	sess, p := newSession(t)

	sess.RequestWillBeSent(p, requestEvent("r1", "r1", "F", network.ResourceTypeDocument))
	sess.PageDetached(p)

	_, err := sess.Requests("TAB-1", ScopeCurrent)
	var coded *observe.CodedError
	if !errors.As(err, &coded) || coded.Code != observe.CodeNotTracked {
		t.Fatalf("error = %v, want NOT_TRACKED after detach", err)
	}
}
