package observe

import (
	"errors"
	"fmt"
	"testing"
)

type fakePage struct {
	id string
}

func (p *fakePage) TargetID() string { return p.id }

func newRequest(id string) *Request {
	return &Request{RequestID: id, URL: "https://example.com/" + id, Method: "GET"}
}

func TestCollectorTracking(t *testing.T) {
	t.Run("append_to_untracked_page_returns_minus_one", func(t *testing.T) {
		c := NewCollector[*Request]("network", 3)
		if id := c.Append(&fakePage{id: "p1"}, newRequest("1")); id != -1 {
			t.Fatalf("Append() = %d, want -1", id)
		}
	})

	t.Run("reads_on_untracked_page_fail_with_not_tracked", func(t *testing.T) {
		c := NewCollector[*Request]("network", 3)
		_, err := c.CurrentEntries(&fakePage{id: "p1"})
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		var coded *CodedError
		if !errors.As(err, &coded) || coded.Code != CodeNotTracked {
			t.Fatalf("error = %v, want code %s", err, CodeNotTracked)
		}
	})

	t.Run("track_is_idempotent", func(t *testing.T) {
		c := NewCollector[*Request]("network", 3)
		p := &fakePage{id: "p1"}
		c.Track(p)
		c.Append(p, newRequest("1"))
		c.Track(p)

		items, err := c.CurrentItems(p)
		if err != nil {
			t.Fatalf("CurrentItems() error = %v", err)
		}
		if len(items) != 1 {
			t.Fatalf("len(items) = %d, want 1 after re-track", len(items))
		}
	})

	t.Run("untrack_discards_all_state", func(t *testing.T) {
		c := NewCollector[*Request]("network", 3)
		p := &fakePage{id: "p1"}
		c.Track(p)
		c.Append(p, newRequest("1"))
		c.Untrack(p)

		if c.Tracked(p) {
			t.Fatal("page still tracked after Untrack")
		}
		if _, err := c.CurrentEntries(p); err == nil {
			t.Fatal("expected not-tracked error after Untrack")
		}
	})

	t.Run("pages_are_isolated", func(t *testing.T) {
		c := NewCollector[*Request]("network", 3)
		p1 := &fakePage{id: "p1"}
		p2 := &fakePage{id: "p2"}
		c.Track(p1)
		c.Track(p2)

		id1 := c.Append(p1, newRequest("a"))
		id2 := c.Append(p2, newRequest("b"))
		if id1 != 1 || id2 != 1 {
			t.Fatalf("ids = %d, %d; want independent sequences starting at 1", id1, id2)
		}

		items, err := c.CurrentItems(p2)
		if err != nil {
			t.Fatalf("CurrentItems() error = %v", err)
		}
		if len(items) != 1 || items[0].RequestID != "b" {
			t.Fatalf("p2 items = %+v, want only request b", items)
		}
	})
}

func TestStableIDs(t *testing.T) {
	t.Run("ids_are_monotonic_across_rotations", func(t *testing.T) {
		c := NewCollector[*Request]("network", 3)
		p := &fakePage{id: "p1"}
		c.Track(p)

		var ids []int64
		for epoch := 0; epoch < 3; epoch++ {
			for i := 0; i < 2; i++ {
				ids = append(ids, c.Append(p, newRequest(fmt.Sprintf("%d-%d", epoch, i))))
			}
			c.Rotate(p)
		}

		for i, id := range ids {
			if id != int64(i+1) {
				t.Fatalf("ids = %v, want 1..%d", ids, len(ids))
			}
		}
	})

	t.Run("ids_resolve_across_retained_epochs", func(t *testing.T) {
		c := NewCollector[*Request]("network", 3)
		p := &fakePage{id: "p1"}
		c.Track(p)

		first := c.Append(p, newRequest("old"))
		c.Rotate(p)
		c.Append(p, newRequest("new"))

		got, err := c.ByID(p, first)
		if err != nil {
			t.Fatalf("ByID() error = %v", err)
		}
		if got.RequestID != "old" {
			t.Fatalf("ByID() = %+v, want request old", got)
		}
	})

	t.Run("ids_of_evicted_items_are_never_reused", func(t *testing.T) {
		c := NewCollector[*Request]("network", 2)
		p := &fakePage{id: "p1"}
		c.Track(p)

		first := c.Append(p, newRequest("evicted"))
		c.Rotate(p)
		c.Rotate(p)

		if _, err := c.ByID(p, first); err == nil {
			t.Fatal("expected not-found error for evicted id")
		}
		var coded *CodedError
		_, err := c.ByID(p, first)
		if !errors.As(err, &coded) || coded.Code != CodeNotFound {
			t.Fatalf("error = %v, want code %s", err, CodeNotFound)
		}

		next := c.Append(p, newRequest("fresh"))
		if next <= first {
			t.Fatalf("next id = %d, want greater than evicted id %d", next, first)
		}
	})
}

func TestRetention(t *testing.T) {
	t.Run("window_is_bounded_after_many_navigations", func(t *testing.T) {
		c := NewCollector[*Request]("network", 3)
		p := &fakePage{id: "p1"}
		c.Track(p)

		for epoch := 0; epoch < 6; epoch++ {
			c.Append(p, newRequest(fmt.Sprintf("r%d", epoch)))
			if epoch < 5 {
				c.Rotate(p)
			}
		}

		all, err := c.AllItems(p)
		if err != nil {
			t.Fatalf("AllItems() error = %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("len(all) = %d, want 3 retained items", len(all))
		}
	})

	t.Run("count_spans_retained_epochs_only", func(t *testing.T) {
		c := NewCollector[*Request]("network", 2)
		p := &fakePage{id: "p1"}
		c.Track(p)

		c.Append(p, newRequest("r1"))
		c.Append(p, newRequest("r2"))
		c.Rotate(p)
		c.Append(p, newRequest("r3"))
		if got := c.Count(p); got != 3 {
			t.Fatalf("Count() = %d, want 3", got)
		}

		c.Rotate(p)
		if got := c.Count(p); got != 1 {
			t.Fatalf("Count() after eviction = %d, want 1", got)
		}
		if got := c.Count(&fakePage{id: "other"}); got != 0 {
			t.Fatalf("Count() on untracked page = %d, want 0", got)
		}
	})

	t.Run("all_items_are_chronological_oldest_first", func(t *testing.T) {
		c := NewCollector[*Request]("network", 3)
		p := &fakePage{id: "p1"}
		c.Track(p)

		c.Append(p, newRequest("first"))
		c.Rotate(p)
		c.Append(p, newRequest("second"))
		c.Rotate(p)
		c.Append(p, newRequest("third"))

		entries, err := c.AllEntries(p)
		if err != nil {
			t.Fatalf("AllEntries() error = %v", err)
		}
		want := []string{"first", "second", "third"}
		if len(entries) != len(want) {
			t.Fatalf("len(entries) = %d, want %d", len(entries), len(want))
		}
		for i, entry := range entries {
			if entry.Item.RequestID != want[i] {
				t.Fatalf("entries[%d] = %s, want %s", i, entry.Item.RequestID, want[i])
			}
			if i > 0 && entry.ID <= entries[i-1].ID {
				t.Fatalf("ids out of order: %d then %d", entries[i-1].ID, entry.ID)
			}
		}
	})

	t.Run("rotate_with_cut_moves_tail_into_new_epoch", func(t *testing.T) {
		c := NewCollector[*Request]("network", 3)
		p := &fakePage{id: "p1"}
		c.Track(p)

		for i := 1; i <= 5; i++ {
			c.Append(p, newRequest(fmt.Sprintf("r%d", i)))
		}
		c.RotateWithCut(p, func(entries []Entry[*Request]) int { return 2 })

		current, err := c.CurrentItems(p)
		if err != nil {
			t.Fatalf("CurrentItems() error = %v", err)
		}
		if len(current) != 3 || current[0].RequestID != "r3" {
			t.Fatalf("current = %+v, want r3..r5", current)
		}

		all, err := c.AllItems(p)
		if err != nil {
			t.Fatalf("AllItems() error = %v", err)
		}
		if len(all) != 5 || all[0].RequestID != "r1" || all[4].RequestID != "r5" {
			t.Fatalf("all = %+v, want r1..r5 in order", all)
		}
	})
}

func TestUpdate(t *testing.T) {
	t.Run("mutates_matching_item_in_place", func(t *testing.T) {
		c := NewCollector[*Request]("network", 3)
		p := &fakePage{id: "p1"}
		c.Track(p)
		c.Append(p, newRequest("1"))

		ok := c.Update(p, matchRequestID("1"), func(r *Request) { r.Status = 200 })
		if !ok {
			t.Fatal("Update() = false, want true")
		}

		got, err := c.ByID(p, 1)
		if err != nil {
			t.Fatalf("ByID() error = %v", err)
		}
		if got.Status != 200 {
			t.Fatalf("status = %d, want 200", got.Status)
		}
	})

	t.Run("returns_false_when_nothing_matches", func(t *testing.T) {
		c := NewCollector[*Request]("network", 3)
		p := &fakePage{id: "p1"}
		c.Track(p)

		if c.Update(p, matchRequestID("ghost"), func(r *Request) {}) {
			t.Fatal("Update() = true for unmatched predicate")
		}
	})
}

func TestSnapshots(t *testing.T) {
	t.Run("snapshot_entries_clone_under_lock", func(t *testing.T) {
		c := NewCollector[*Request]("network", 3)
		p := &fakePage{id: "p1"}
		c.Track(p)
		c.Append(p, newRequest("1"))

		snap, err := SnapshotEntries(c, p, false, func(e Entry[*Request]) Request { return *e.Item })
		if err != nil {
			t.Fatalf("SnapshotEntries() error = %v", err)
		}

		c.Update(p, matchRequestID("1"), func(r *Request) { r.Status = 500 })
		if snap[0].Status != 0 {
			t.Fatalf("snapshot mutated after update: status = %d", snap[0].Status)
		}
	})

	t.Run("snapshot_by_id_not_found", func(t *testing.T) {
		c := NewCollector[*Request]("network", 3)
		p := &fakePage{id: "p1"}
		c.Track(p)

		_, err := SnapshotByID(c, p, 42, CloneRequest)
		var coded *CodedError
		if !errors.As(err, &coded) || coded.Code != CodeNotFound {
			t.Fatalf("error = %v, want code %s", err, CodeNotFound)
		}
	})
}

func TestIDGeneratorWrap(t *testing.T) {
	g := idGenerator{last: maxStableID}
	if got := g.next(); got != 1 {
		t.Fatalf("next() after max = %d, want 1", got)
	}
}
