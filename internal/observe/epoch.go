package observe

// Entry pairs a collected item with its stable ID.
type Entry[T any] struct {
	ID   int64
	Item T
}

type epoch[T any] struct {
	entries []Entry[T]
}

// epochStore holds the navigation-windowed history for one page and one
// collector kind. Index 0 is always the current epoch. The store is not
// safe for concurrent use; the owning collector serializes access.
type epochStore[T comparable] struct {
	ids    idGenerator
	epochs []*epoch[T]
}

func newEpochStore[T comparable]() *epochStore[T] {
	return &epochStore[T]{epochs: []*epoch[T]{{}}}
}

// append assigns a fresh stable ID and appends the item to the current epoch.
func (s *epochStore[T]) append(item T) int64 {
	id := s.ids.next()
	s.epochs[0].entries = append(s.epochs[0].entries, Entry[T]{ID: id, Item: item})
	return id
}

// rotate pushes a new empty epoch to the front and truncates the retained
// window to retain epochs. Truncation happens after insertion, so the window
// is retain epochs total including the new current one.
func (s *epochStore[T]) rotate(retain int) {
	s.epochs = append([]*epoch[T]{{}}, s.epochs...)
	s.truncate(retain)
}

// rotateWithCut rotates like rotate, but first asks cut for the index of the
// earliest current-epoch item that belongs to the next page. Items from that
// index onward move into the new current epoch in their original order; on a
// negative cut index the new epoch starts empty.
func (s *epochStore[T]) rotateWithCut(retain int, cut func(items []Entry[T]) int) {
	prev := s.epochs[0]
	k := cut(prev.entries)
	next := &epoch[T]{}
	if k >= 0 && k <= len(prev.entries) {
		next.entries = append(next.entries, prev.entries[k:]...)
		prev.entries = prev.entries[:k]
	}
	s.epochs = append([]*epoch[T]{next}, s.epochs...)
	s.truncate(retain)
}

func (s *epochStore[T]) truncate(retain int) {
	if retain < 1 {
		retain = 1
	}
	if len(s.epochs) > retain {
		s.epochs = s.epochs[:retain]
	}
}

// current returns the current epoch's entries in capture order.
func (s *epochStore[T]) current() []Entry[T] {
	out := make([]Entry[T], len(s.epochs[0].entries))
	copy(out, s.epochs[0].entries)
	return out
}

// all returns every retained entry in chronological order: oldest retained
// epoch first, current epoch last.
func (s *epochStore[T]) all() []Entry[T] {
	var out []Entry[T]
	for i := len(s.epochs) - 1; i >= 0; i-- {
		out = append(out, s.epochs[i].entries...)
	}
	return out
}

// size is the total retained entry count across all epochs.
func (s *epochStore[T]) size() int {
	n := 0
	for _, ep := range s.epochs {
		n += len(ep.entries)
	}
	return n
}

// byID scans the current epoch first, then older epochs. Most lookups target
// recent items.
func (s *epochStore[T]) byID(id int64) (T, bool) {
	for _, ep := range s.epochs {
		for i := range ep.entries {
			if ep.entries[i].ID == id {
				return ep.entries[i].Item, true
			}
		}
	}
	var zero T
	return zero, false
}

func (s *epochStore[T]) find(pred func(T) bool) (T, bool) {
	for _, ep := range s.epochs {
		for i := range ep.entries {
			if pred(ep.entries[i].Item) {
				return ep.entries[i].Item, true
			}
		}
	}
	var zero T
	return zero, false
}

func (s *epochStore[T]) idOf(item T) int64 {
	for _, ep := range s.epochs {
		for i := range ep.entries {
			if ep.entries[i].Item == item {
				return ep.entries[i].ID
			}
		}
	}
	return -1
}
