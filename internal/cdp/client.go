package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/netlens/internal/config"
)

// Observer receives page lifecycle and protocol events. Within one page,
// events for a given stream arrive in delivery order; ordering across pages
// or across streams is not guaranteed.
type Observer interface {
	PageAttached(p *Page)
	PageDetached(p *Page)
	MainFrameNavigated(p *Page, frameID string)

	RequestWillBeSent(p *Page, ev *network.EventRequestWillBeSent)
	ResponseReceived(p *Page, ev *network.EventResponseReceived)
	LoadingFinished(p *Page, ev *network.EventLoadingFinished)
	LoadingFailed(p *Page, ev *network.EventLoadingFailed)

	WebSocketCreated(p *Page, ev *network.EventWebSocketCreated)
	WebSocketFrameSent(p *Page, ev *network.EventWebSocketFrameSent)
	WebSocketFrameReceived(p *Page, ev *network.EventWebSocketFrameReceived)
	WebSocketClosed(p *Page, ev *network.EventWebSocketClosed)

	ConsoleAPICalled(p *Page, ev *runtime.EventConsoleAPICalled)
}

type tabContext struct {
	page   *Page
	ctx    context.Context
	cancel context.CancelFunc
}

// Client manages CDP connections to browser tabs and fans events out to the
// observer. Tabs are attached at startup enumeration and whenever the
// browser reports a new page target.
type Client struct {
	cfg      *config.Config
	observer Observer
	registry *PageRegistry

	lifecycle   *lifecycleConn
	allocCtx    context.Context
	allocCancel context.CancelFunc

	tabs   map[target.ID]*tabContext
	tabsMu sync.RWMutex

	// OnConnectionLost, when set before Connect, fires once if the
	// browser-level lifecycle connection drops.
	OnConnectionLost func(err error)
}

func NewClient(cfg *config.Config, observer Observer, registry *PageRegistry) *Client {
	return &Client{
		cfg:      cfg,
		observer: observer,
		registry: registry,
		tabs:     make(map[target.ID]*tabContext),
	}
}

// Connect attaches to the browser, enumerates existing page targets, and
// starts watching for targets created or destroyed later.
func (c *Client) Connect(ctx context.Context) error {
	cdpURL := c.cfg.CDPURL()
	slog.Info("connecting to browser", "url", cdpURL)

	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cdpURL)

	tempCtx, tempCancel := chromedp.NewContext(c.allocCtx)
	defer tempCancel()

	if err := chromedp.Run(tempCtx); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	targets, err := chromedp.Targets(tempCtx)
	if err != nil {
		return fmt.Errorf("failed to enumerate targets: %w", err)
	}

	attached := 0
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if !c.matchesTabURL(t.URL) {
			slog.Debug("skipping tab (url filter)", "url", t.URL)
			continue
		}
		if err := c.attachToTab(t.TargetID, t.URL, t.Title); err != nil {
			slog.Error("failed to attach to tab", "target_id", t.TargetID, "url", t.URL, "error", err)
			continue
		}
		attached++
	}
	slog.Info("attached to tabs", "count", attached, "tab_url_filter", c.cfg.TabURLFilter)

	// Target discovery rides a dedicated browser-level connection so new
	// tabs get tracked and destroyed tabs get torn down. Losing it degrades
	// lifecycle tracking but never fails the session.
	c.lifecycle = newLifecycleConn(cdpURL)
	c.lifecycle.onCreated = c.onTargetCreated
	c.lifecycle.onDestroyed = c.onTargetDestroyed
	c.lifecycle.onLost = func(err error) {
		slog.Warn("browser lifecycle connection lost", "error", err)
		if c.OnConnectionLost != nil {
			c.OnConnectionLost(err)
		}
	}
	if err := c.lifecycle.connect(ctx); err != nil {
		slog.Warn("target discovery unavailable", "error", err)
	}

	return nil
}

func (c *Client) onTargetCreated(info *target.Info) {
	if info.Type != "page" {
		return
	}
	if _, ok := c.registry.Get(info.TargetID); ok {
		return
	}
	if !c.matchesTabURL(info.URL) {
		return
	}
	if err := c.attachToTab(info.TargetID, info.URL, info.Title); err != nil {
		slog.Error("failed to attach to new tab", "target_id", info.TargetID, "error", err)
	}
}

func (c *Client) onTargetDestroyed(targetID target.ID) {
	c.detachTab(targetID)
}

// attachToTab registers the page, enables the protocol domains, and notifies
// the observer. Registration is rolled back on failure so a page is never
// left half tracked.
func (c *Client) attachToTab(targetID target.ID, url, title string) error {
	p := c.registry.Register(targetID, url, title)

	tabCtx, tabCancel := chromedp.NewContext(c.allocCtx, chromedp.WithTargetID(targetID))

	if err := chromedp.Run(tabCtx, network.Enable(), page.Enable()); err != nil {
		tabCancel()
		c.registry.Remove(targetID)
		return fmt.Errorf("failed to enable network/page domains: %w", err)
	}
	// Console capture is best effort; without it the page is still tracked.
	if err := chromedp.Run(tabCtx, runtime.Enable()); err != nil {
		slog.Warn("runtime domain unavailable, console capture disabled", "target_id", targetID, "error", err)
	}

	c.observer.PageAttached(p)

	c.tabsMu.Lock()
	c.tabs[targetID] = &tabContext{page: p, ctx: tabCtx, cancel: tabCancel}
	c.tabsMu.Unlock()

	chromedp.ListenTarget(tabCtx, c.eventHandler(p))
	slog.Info("attached to tab", "target_id", targetID, "url", truncateURL(url))
	return nil
}

// detachTab tears a page down: listeners die with the tab context, the
// observer discards state, and the registry entry goes away. Teardown is
// best effort; the underlying session being gone already is fine.
func (c *Client) detachTab(targetID target.ID) {
	c.tabsMu.Lock()
	tab, ok := c.tabs[targetID]
	if ok {
		delete(c.tabs, targetID)
	}
	c.tabsMu.Unlock()

	if ok {
		tab.cancel()
	}

	if p, found := c.registry.Remove(targetID); found {
		c.observer.PageDetached(p)
		slog.Info("detached from tab", "target_id", targetID, "url", truncateURL(p.URL()))
	}
}

func (c *Client) eventHandler(p *Page) func(ev interface{}) {
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame.ParentID == "" {
				p.setURL(e.Frame.URL)
				slog.Info("tab navigated", "target_id", p.TargetID(), "url", truncateURL(e.Frame.URL))
				c.observer.MainFrameNavigated(p, string(e.Frame.ID))
			}
		case *page.EventNavigatedWithinDocument:
			// SPA navigations update the URL but do not bound an epoch.
			p.setURL(e.URL)
		case *network.EventRequestWillBeSent:
			c.observer.RequestWillBeSent(p, e)
		case *network.EventResponseReceived:
			c.observer.ResponseReceived(p, e)
		case *network.EventLoadingFinished:
			c.observer.LoadingFinished(p, e)
		case *network.EventLoadingFailed:
			c.observer.LoadingFailed(p, e)
		case *network.EventWebSocketCreated:
			c.observer.WebSocketCreated(p, e)
		case *network.EventWebSocketFrameSent:
			c.observer.WebSocketFrameSent(p, e)
		case *network.EventWebSocketFrameReceived:
			c.observer.WebSocketFrameReceived(p, e)
		case *network.EventWebSocketClosed:
			c.observer.WebSocketClosed(p, e)
		case *runtime.EventConsoleAPICalled:
			c.observer.ConsoleAPICalled(p, e)
		}
	}
}

func (c *Client) Close() error {
	if c.lifecycle != nil {
		c.lifecycle.close()
	}

	c.tabsMu.Lock()
	for id, tab := range c.tabs {
		tab.cancel()
		delete(c.tabs, id)
	}
	c.tabsMu.Unlock()

	if c.allocCancel != nil {
		c.allocCancel()
	}

	slog.Info("cdp client closed")
	return nil
}

func (c *Client) TabCount() int {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	return len(c.tabs)
}

func (c *Client) matchesTabURL(url string) bool {
	if c.cfg.TabURLFilter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(url), strings.ToLower(c.cfg.TabURLFilter))
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
