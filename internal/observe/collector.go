package observe

import (
	"log/slog"
	"sync"
)

// Page identifies one tracked browser tab. Implementations must be
// comparable; a pointer to the owning tab struct is the usual choice, which
// gives the reference-identity semantics collectors rely on.
type Page interface {
	TargetID() string
}

// DefaultRetainedEpochs is the retention window: the current epoch plus two
// preserved ones. Older epochs are discarded, not archived.
const DefaultRetainedEpochs = 3

type pageState[T comparable] struct {
	store *epochStore[T]
}

// Collector maintains, per tracked page, the ordered history of one resource
// kind partitioned into navigation epochs, with stable-ID addressability.
// Specializations feed it items and decide when epochs rotate.
type Collector[T comparable] struct {
	kind   string
	retain int

	mu    sync.RWMutex
	pages map[Page]*pageState[T]
}

// NewCollector creates a collector for one resource kind. retain is the
// total number of epochs kept per page, current included.
func NewCollector[T comparable](kind string, retain int) *Collector[T] {
	if retain < 1 {
		retain = DefaultRetainedEpochs
	}
	return &Collector[T]{kind: kind, retain: retain, pages: make(map[Page]*pageState[T])}
}

func (c *Collector[T]) Kind() string { return c.kind }

// Track registers a page for collection. Tracking an already-tracked page is
// a no-op, so callers never lose accumulated state by re-attaching.
func (c *Collector[T]) Track(page Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pages[page]; ok {
		return
	}
	c.pages[page] = &pageState[T]{store: newEpochStore[T]()}
	slog.Debug("collector tracking page", "kind", c.kind, "target_id", page.TargetID())
}

// Untrack discards all state for the page: every epoch, every item, and the
// ID generator. Untracking an unknown page is a no-op.
func (c *Collector[T]) Untrack(page Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pages[page]; !ok {
		return
	}
	delete(c.pages, page)
	slog.Debug("collector untracked page", "kind", c.kind, "target_id", page.TargetID())
}

func (c *Collector[T]) Tracked(page Page) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.pages[page]
	return ok
}

// Append stores an item in the page's current epoch and returns its stable
// ID, or -1 when the page is not tracked.
func (c *Collector[T]) Append(page Page, item T) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.pages[page]
	if !ok {
		return -1
	}
	return st.store.append(item)
}

// Update runs fn on the first item matching pred while holding the
// collector's write lock. Items that are enriched in place after collection
// (response metadata, connection status, frame lists) must only be mutated
// through here so snapshot readers never observe a torn write. Returns false
// when the page is untracked or nothing matches.
func (c *Collector[T]) Update(page Page, pred func(T) bool, fn func(T)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.pages[page]
	if !ok {
		return false
	}
	item, found := st.store.find(pred)
	if !found {
		return false
	}
	fn(item)
	return true
}

// Rotate starts a new empty epoch for the page and discards epochs beyond
// the retention window. This is the default navigation policy.
func (c *Collector[T]) Rotate(page Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.pages[page]
	if !ok {
		return
	}
	st.store.rotate(c.retain)
}

// RotateWithCut rotates like Rotate, but re-partitions the old current epoch
// at the index returned by cut: entries from that index onward move into the
// new current epoch in order. The network collector uses this to keep the
// navigation request and its concurrent subresources with the new page.
func (c *Collector[T]) RotateWithCut(page Page, cut func(entries []Entry[T]) int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.pages[page]
	if !ok {
		return
	}
	st.store.rotateWithCut(c.retain, cut)
}

// CurrentEntries returns the current epoch's entries in capture order.
func (c *Collector[T]) CurrentEntries(page Page) ([]Entry[T], error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.pages[page]
	if !ok {
		return nil, errNotTracked(c.kind)
	}
	return st.store.current(), nil
}

// AllEntries returns entries from all retained epochs in chronological
// order: oldest retained epoch first, current epoch last.
func (c *Collector[T]) AllEntries(page Page) ([]Entry[T], error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.pages[page]
	if !ok {
		return nil, errNotTracked(c.kind)
	}
	return st.store.all(), nil
}

// CurrentItems is CurrentEntries without the IDs.
func (c *Collector[T]) CurrentItems(page Page) ([]T, error) {
	entries, err := c.CurrentEntries(page)
	if err != nil {
		return nil, err
	}
	return stripIDs(entries), nil
}

// AllItems is AllEntries without the IDs.
func (c *Collector[T]) AllItems(page Page) ([]T, error) {
	entries, err := c.AllEntries(page)
	if err != nil {
		return nil, err
	}
	return stripIDs(entries), nil
}

// Count is the total number of retained items for the page across all
// epochs. Untracked pages count as zero.
func (c *Collector[T]) Count(page Page) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.pages[page]
	if !ok {
		return 0
	}
	return st.store.size()
}

// IDOf returns the stable ID of an item collected for the page, or -1 when
// the item is unknown.
func (c *Collector[T]) IDOf(page Page, item T) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.pages[page]
	if !ok {
		return -1
	}
	return st.store.idOf(item)
}

// ByID resolves a stable ID across all retained epochs.
func (c *Collector[T]) ByID(page Page, id int64) (T, error) {
	var zero T
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.pages[page]
	if !ok {
		return zero, errNotTracked(c.kind)
	}
	item, ok := st.store.byID(id)
	if !ok {
		return zero, errNotFound(c.kind, id)
	}
	return item, nil
}

// Find returns the first item matching pred, scanning the current epoch
// first.
func (c *Collector[T]) Find(page Page, pred func(T) bool) (T, bool, error) {
	var zero T
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.pages[page]
	if !ok {
		return zero, false, errNotTracked(c.kind)
	}
	item, found := st.store.find(pred)
	return item, found, nil
}

func stripIDs[T any](entries []Entry[T]) []T {
	items := make([]T, len(entries))
	for i := range entries {
		items[i] = entries[i].Item
	}
	return items
}

// SnapshotEntries returns clone(entry) for each retained entry, evaluated
// under the collector's read lock so clones may safely dereference items
// that event handlers mutate through Update. Scope follows CurrentEntries
// when all is false and AllEntries when true.
func SnapshotEntries[T comparable, U any](c *Collector[T], page Page, all bool, clone func(Entry[T]) U) ([]U, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.pages[page]
	if !ok {
		return nil, errNotTracked(c.kind)
	}
	var entries []Entry[T]
	if all {
		entries = st.store.all()
	} else {
		entries = st.store.current()
	}
	out := make([]U, len(entries))
	for i := range entries {
		out[i] = clone(entries[i])
	}
	return out, nil
}

// SnapshotByID resolves a stable ID and returns clone(item) under the read
// lock.
func SnapshotByID[T comparable, U any](c *Collector[T], page Page, id int64, clone func(T) U) (U, error) {
	var zero U
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.pages[page]
	if !ok {
		return zero, errNotTracked(c.kind)
	}
	item, found := st.store.byID(id)
	if !found {
		return zero, errNotFound(c.kind, id)
	}
	return clone(item), nil
}
