package cdp

import (
	"sync"

	"github.com/chromedp/cdproto/target"
)

// Page is one attached browser tab. Collectors key their state by the *Page
// pointer, so identity is reference identity: a tab that is destroyed and
// recreated with the same target ID yields a distinct Page.
type Page struct {
	id target.ID

	mu    sync.RWMutex
	url   string
	title string
}

func newPage(id target.ID, url, title string) *Page {
	return &Page{id: id, url: url, title: title}
}

func (p *Page) TargetID() string { return string(p.id) }

func (p *Page) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url
}

func (p *Page) Title() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.title
}

func (p *Page) setURL(url string) {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
}

func (p *Page) setTitle(title string) {
	p.mu.Lock()
	p.title = title
	p.mu.Unlock()
}

// PageRegistry maps CDP target IDs to live Page handles.
type PageRegistry struct {
	mu    sync.RWMutex
	pages map[target.ID]*Page
}

func NewPageRegistry() *PageRegistry {
	return &PageRegistry{pages: make(map[target.ID]*Page)}
}

// Register creates and stores a Page for the target, returning the existing
// handle when the target is already registered.
func (r *PageRegistry) Register(targetID target.ID, url, title string) *Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pages[targetID]; ok {
		return p
	}
	p := newPage(targetID, url, title)
	r.pages[targetID] = p
	return p
}

func (r *PageRegistry) Get(targetID target.ID) (*Page, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pages[targetID]
	return p, ok
}

func (r *PageRegistry) Remove(targetID target.ID) (*Page, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pages[targetID]
	if ok {
		delete(r.pages, targetID)
	}
	return p, ok
}

// List returns a snapshot of all registered pages.
func (r *PageRegistry) List() []*Page {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Page, 0, len(r.pages))
	for _, p := range r.pages {
		out = append(out, p)
	}
	return out
}

func (r *PageRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pages)
}
