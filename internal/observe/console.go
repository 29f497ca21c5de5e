package observe

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
)

// ConsoleMessage is one captured console API call. Messages are immutable
// after capture.
type ConsoleMessage struct {
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	URL       string    `json:"url,omitempty"`
	Line      int64     `json:"line,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ConsoleCollector captures console messages per page with the default
// epoch rotation policy.
type ConsoleCollector struct {
	*Collector[ConsoleMessage]
}

func NewConsoleCollector(retain int) *ConsoleCollector {
	return &ConsoleCollector{Collector: NewCollector[ConsoleMessage]("console", retain)}
}

// OnConsoleAPICalled captures one console call and returns the stored
// message so callers can mirror it without re-rendering the arguments.
func (c *ConsoleCollector) OnConsoleAPICalled(page Page, ev *runtime.EventConsoleAPICalled) ConsoleMessage {
	msg := ConsoleMessage{
		Kind:      string(ev.Type),
		Text:      renderConsoleArgs(ev.Args),
		Timestamp: ev.Timestamp.Time(),
	}
	if ev.StackTrace != nil && len(ev.StackTrace.CallFrames) > 0 {
		top := ev.StackTrace.CallFrames[0]
		msg.URL = top.URL
		msg.Line = top.LineNumber
	}
	c.Append(page, msg)
	return msg
}

func (c *ConsoleCollector) OnMainFrameNavigated(page Page) {
	c.Rotate(page)
}

func renderConsoleArgs(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		parts = append(parts, previewRemoteObject(arg))
	}
	return strings.Join(parts, " ")
}

func previewRemoteObject(o *runtime.RemoteObject) string {
	if o.Type == runtime.TypeString && len(o.Value) > 0 {
		var s string
		if err := json.Unmarshal(o.Value, &s); err == nil {
			return s
		}
	}
	if len(o.Value) > 0 {
		return string(o.Value)
	}
	if o.Description != "" {
		return o.Description
	}
	return string(o.Type)
}
