package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgnsrekt/netlens/internal/observe"
	"github.com/dgnsrekt/netlens/internal/session"
	"github.com/dgnsrekt/netlens/internal/traffic"
)

type stubService struct {
	pages       []session.PageInfo
	requests    []session.RequestRecord
	connections []session.ConnectionRecord
	summary     traffic.Summary
	frames      []observe.Frame
	err         error
}

func (s *stubService) Pages() []session.PageInfo { return s.pages }

func (s *stubService) Requests(pageID string, scope session.Scope) ([]session.RequestRecord, error) {
	return s.requests, s.err
}

func (s *stubService) RequestByID(pageID string, id int64) (session.RequestRecord, error) {
	if s.err != nil {
		return session.RequestRecord{}, s.err
	}
	return s.requests[0], nil
}

func (s *stubService) ConsoleMessages(pageID string, scope session.Scope) ([]session.ConsoleRecord, error) {
	return nil, s.err
}

func (s *stubService) Connections(pageID string, scope session.Scope) ([]session.ConnectionRecord, error) {
	return s.connections, s.err
}

func (s *stubService) ConnectionByID(pageID string, id int64) (session.ConnectionRecord, error) {
	if s.err != nil {
		return session.ConnectionRecord{}, s.err
	}
	return s.connections[0], nil
}

func (s *stubService) Analyze(pageID string, id int64, fresh bool) (traffic.Summary, error) {
	return s.summary, s.err
}

func (s *stubService) GroupFrames(pageID string, id int64, groupID string) ([]observe.Frame, error) {
	return s.frames, s.err
}

func doRequest(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	h := NewServer(&stubService{})
	w := doRequest(t, h, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("body = %q, want ok status", w.Body.String())
	}
}

func TestDocsDarkMode(t *testing.T) {
	h := NewServer(&stubService{})
	w := doRequest(t, h, "/docs")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
}

func TestListPages(t *testing.T) {
	h := NewServer(&stubService{pages: []session.PageInfo{{PageID: "AB12", URL: "https://example.com"}}})
	w := doRequest(t, h, "/api/v1/pages")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var out struct {
		Pages []session.PageInfo `json:"pages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Pages) != 1 || out.Pages[0].PageID != "AB12" {
		t.Fatalf("pages = %+v, want one page AB12", out.Pages)
	}
}

func TestNotTrackedMapsTo404(t *testing.T) {
	h := NewServer(&stubService{err: &observe.CodedError{Code: observe.CodeNotTracked, Message: "no such page"}})
	w := doRequest(t, h, "/api/v1/pages/missing/requests")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestInvalidScopeRejected(t *testing.T) {
	h := NewServer(&stubService{})
	w := doRequest(t, h, "/api/v1/pages/AB12/requests?scope=bogus")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
}

func TestAnalysisTableFormat(t *testing.T) {
	summary := traffic.Summary{
		ConnectionID: 7,
		URL:          "wss://example.com/feed",
		TotalFrames:  2,
		Groups: []traffic.Group{
			{ID: "A", Direction: observe.FrameReceived, Fingerprint: "1f8b0800", SizeBucket: "small", Count: 2, MinSize: 40, MaxSize: 64, Hint: "Gzip", Samples: []int{0, 1}},
		},
		Members: map[string][]int{"A": {0, 1}},
	}
	h := NewServer(&stubService{summary: summary})

	w := doRequest(t, h, "/api/v1/pages/AB12/websockets/7/analysis?format=table")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type = %q, want text/plain", ct)
	}
	if !strings.Contains(w.Body.String(), "1f8b0800") {
		t.Fatalf("table output missing fingerprint: %q", w.Body.String())
	}
}

func TestAnalysisJSONDefault(t *testing.T) {
	h := NewServer(&stubService{summary: traffic.Summary{ConnectionID: 7, TotalFrames: 0}})
	w := doRequest(t, h, "/api/v1/pages/AB12/websockets/7/analysis")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var out traffic.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ConnectionID != 7 {
		t.Fatalf("connection_id = %d, want 7", out.ConnectionID)
	}
}

func TestGroupDrilldown(t *testing.T) {
	h := NewServer(&stubService{frames: []observe.Frame{{Direction: observe.FrameSent, Opcode: 1, Payload: []byte("ping")}}})
	w := doRequest(t, h, "/api/v1/pages/AB12/websockets/7/groups/A")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var out struct {
		GroupID string          `json:"group_id"`
		Frames  []observe.Frame `json:"frames"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.GroupID != "A" || len(out.Frames) != 1 {
		t.Fatalf("group = %+v, want group A with one frame", out)
	}
}
