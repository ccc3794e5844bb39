package incremental

import (
	"slices"

	"github.com/Sternrassler/shopify-source/pkg/record"
)

// Window is the closed range of cursor values a run loads: Start <= v <= End.
// A zero Start is unbounded below, a zero End is unbounded above.
type Window struct {
	// Field is the item path holding the cursor value (e.g. "updated_at").
	Field string

	// Kind is the type of the cursor value.
	Kind Kind

	// Start is the saved high-water mark or the configured start date.
	Start Cursor

	// End is the optional configured end date.
	End Cursor

	// BoundaryKeys are the primary keys already loaded with cursor == Start.
	BoundaryKeys []string
}

// HasEnd reports whether an upper bound is set.
func (w Window) HasEnd() bool {
	return !w.End.IsZero()
}

// Contains reports whether c lies inside the window.
func (w Window) Contains(c Cursor) bool {
	if !w.Start.IsZero() && c.Compare(w.Start) < 0 {
		return false
	}
	if w.HasEnd() && c.Compare(w.End) > 0 {
		return false
	}
	return true
}

// Tracker filters items to a window and records the highest cursor seen
// together with the keys of the items carrying it. It is not safe for
// concurrent use; one tracker belongs to one run.
type Tracker struct {
	window     Window
	primaryKey []string
	loaded     map[string]struct{}

	max     Cursor
	maxKeys []string
	seen    int
	dropped int
}

// NewTracker creates a tracker for one run over the given window.
func NewTracker(window Window, primaryKey []string) *Tracker {
	loaded := make(map[string]struct{}, len(window.BoundaryKeys))
	for _, k := range window.BoundaryKeys {
		loaded[k] = struct{}{}
	}

	return &Tracker{
		window:     window,
		primaryKey: primaryKey,
		loaded:     loaded,
	}
}

// Filter returns the items of page that lie inside the window and were not
// already loaded at the boundary. Items without a usable cursor value are
// passed through untracked.
func (t *Tracker) Filter(page record.Page) record.Page {
	out := make(record.Page, 0, len(page))

	for _, item := range page {
		v, ok := record.Lookup(item, t.window.Field)
		if !ok {
			out = append(out, item)
			continue
		}
		c, err := FromValue(t.window.Kind, v)
		if err != nil {
			out = append(out, item)
			continue
		}

		if !t.window.Contains(c) {
			t.dropped++
			continue
		}

		key := ""
		if len(t.primaryKey) > 0 {
			key, _ = record.Key(item, t.primaryKey)
		}

		if key != "" && !t.window.Start.IsZero() && c.Compare(t.window.Start) == 0 {
			if _, dup := t.loaded[key]; dup {
				t.dropped++
				continue
			}
		}

		t.observe(c, key)
		out = append(out, item)
	}

	return out
}

func (t *Tracker) observe(c Cursor, key string) {
	t.seen++

	switch cmp := c.Compare(t.max); {
	case t.max.IsZero() || cmp > 0:
		t.max = c
		t.maxKeys = t.maxKeys[:0]
		if key != "" {
			t.maxKeys = append(t.maxKeys, key)
		}
	case cmp == 0 && key != "":
		t.maxKeys = append(t.maxKeys, key)
	}
}

// Dropped is the number of items filtered out so far.
func (t *Tracker) Dropped() int {
	return t.dropped
}

// Result returns the new high-water mark and its boundary keys. When nothing
// moved the mark forward the previous window state is carried over.
func (t *Tracker) Result() (Cursor, []string) {
	if t.max.IsZero() {
		return t.window.Start, slices.Clone(t.window.BoundaryKeys)
	}

	if !t.window.Start.IsZero() && t.max.Compare(t.window.Start) == 0 {
		keys := append(slices.Clone(t.window.BoundaryKeys), t.maxKeys...)
		slices.Sort(keys)
		return t.max, slices.Compact(keys)
	}

	keys := slices.Clone(t.maxKeys)
	slices.Sort(keys)
	return t.max, slices.Compact(keys)
}
