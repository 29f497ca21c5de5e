package observe

import (
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

// Request is one captured HTTP request. It is created from a single
// requestWillBeSent event and enriched in place as the response and loading
// events arrive.
type Request struct {
	RequestID    string    `json:"request_id"`
	LoaderID     string    `json:"loader_id"`
	FrameID      string    `json:"frame_id"`
	URL          string    `json:"url"`
	Method       string    `json:"method"`
	ResourceType string    `json:"resource_type"`
	IsNavigation bool      `json:"is_navigation"`
	StartedAt    time.Time `json:"started_at"`

	Status       int    `json:"status,omitempty"`
	StatusText   string `json:"status_text,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	EncodedBytes int64  `json:"encoded_bytes,omitempty"`
	Finished     bool   `json:"finished"`
	Failed       bool   `json:"failed,omitempty"`
	FailureText  string `json:"failure_text,omitempty"`
}

// Initiator is call-stack attribution for what caused a request. Initiators
// are ephemeral debugging aids: the side table holding them is cleared
// wholesale on every navigation, even though the requests themselves stay
// retained for the full epoch window.
type Initiator struct {
	Type  string   `json:"type"`
	URL   string   `json:"url,omitempty"`
	Line  int64    `json:"line,omitempty"`
	Stack []string `json:"stack,omitempty"`
}

const initiatorStackDepth = 5

// NetworkCollector captures HTTP requests per page. It overrides the default
// epoch boundary policy: requests issued for the incoming navigation
// (the navigation request itself and anything recorded after it) are moved
// into the new epoch instead of being left behind with the old page.
type NetworkCollector struct {
	*Collector[*Request]

	mu         sync.Mutex
	initiators map[Page]map[string]*Initiator
}

func NewNetworkCollector(retain int) *NetworkCollector {
	return &NetworkCollector{
		Collector:  NewCollector[*Request]("network", retain),
		initiators: make(map[Page]map[string]*Initiator),
	}
}

func (n *NetworkCollector) Track(page Page) {
	n.Collector.Track(page)
	n.mu.Lock()
	if _, ok := n.initiators[page]; !ok {
		n.initiators[page] = make(map[string]*Initiator)
	}
	n.mu.Unlock()
}

func (n *NetworkCollector) Untrack(page Page) {
	n.Collector.Untrack(page)
	n.mu.Lock()
	delete(n.initiators, page)
	n.mu.Unlock()
}

// OnRequestWillBeSent records a new request in the current epoch and stashes
// its initiator in the per-navigation side table.
func (n *NetworkCollector) OnRequestWillBeSent(page Page, ev *network.EventRequestWillBeSent) {
	req := &Request{
		RequestID:    string(ev.RequestID),
		LoaderID:     string(ev.LoaderID),
		FrameID:      string(ev.FrameID),
		URL:          ev.Request.URL,
		Method:       ev.Request.Method,
		ResourceType: string(ev.Type),
		IsNavigation: string(ev.RequestID) == string(ev.LoaderID) && ev.Type == network.ResourceTypeDocument,
		StartedAt:    time.Now().UTC(),
	}
	if n.Append(page, req) == -1 {
		return
	}
	if ev.Initiator != nil {
		n.recordInitiator(page, string(ev.RequestID), ev.Initiator)
	}
}

// OnResponseReceived enriches the pending request with response metadata.
// Responses for requests from evicted epochs are dropped.
func (n *NetworkCollector) OnResponseReceived(page Page, ev *network.EventResponseReceived) {
	n.Update(page, matchRequestID(string(ev.RequestID)), func(r *Request) {
		r.Status = int(ev.Response.Status)
		r.StatusText = ev.Response.StatusText
		r.MimeType = ev.Response.MimeType
	})
}

func (n *NetworkCollector) OnLoadingFinished(page Page, ev *network.EventLoadingFinished) {
	n.Update(page, matchRequestID(string(ev.RequestID)), func(r *Request) {
		r.Finished = true
		r.EncodedBytes = int64(ev.EncodedDataLength)
	})
}

func (n *NetworkCollector) OnLoadingFailed(page Page, ev *network.EventLoadingFailed) {
	n.Update(page, matchRequestID(string(ev.RequestID)), func(r *Request) {
		r.Failed = true
		r.FailureText = ev.ErrorText
	})
}

func matchRequestID(id string) func(*Request) bool {
	return func(r *Request) bool { return r.RequestID == id }
}

// OnMainFrameNavigated rotates epochs. The current epoch is scanned from the
// end backward for the most recent navigation request on the navigated
// frame; that request and everything after it were recorded before the
// navigation signal fired but belong to the new page, so they move into the
// new current epoch. Without a match the new epoch starts empty.
func (n *NetworkCollector) OnMainFrameNavigated(page Page, frameID string) {
	n.RotateWithCut(page, func(entries []Entry[*Request]) int {
		for i := len(entries) - 1; i >= 0; i-- {
			r := entries[i].Item
			if r.IsNavigation && r.FrameID == frameID {
				return i
			}
		}
		return -1
	})

	// Initiator stacks do not survive navigation.
	n.mu.Lock()
	if _, ok := n.initiators[page]; ok {
		n.initiators[page] = make(map[string]*Initiator)
	}
	n.mu.Unlock()
}

// InitiatorOf returns the initiator recorded for a request during the
// current navigation, if any.
func (n *NetworkCollector) InitiatorOf(page Page, req *Request) (*Initiator, bool) {
	return n.InitiatorByRequestID(page, req.RequestID)
}

func (n *NetworkCollector) InitiatorByRequestID(page Page, requestID string) (*Initiator, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	table, ok := n.initiators[page]
	if !ok {
		return nil, false
	}
	ini, ok := table[requestID]
	return ini, ok
}

func (n *NetworkCollector) recordInitiator(page Page, requestID string, src *network.Initiator) {
	ini := &Initiator{
		Type: string(src.Type),
		URL:  src.URL,
		Line: int64(src.LineNumber),
	}
	if src.Stack != nil {
		for i, fr := range src.Stack.CallFrames {
			if i >= initiatorStackDepth {
				break
			}
			ini.Stack = append(ini.Stack, fmt.Sprintf("%s @ %s:%d", fr.FunctionName, fr.URL, fr.LineNumber))
		}
	}
	n.mu.Lock()
	if table, ok := n.initiators[page]; ok {
		table[requestID] = ini
	}
	n.mu.Unlock()
}
