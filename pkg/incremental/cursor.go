// Package incremental implements the saved high-water mark of a resource:
// cursor values, the closed fetch window built from them, and the tracker
// that filters a run's items to that window and records the new mark.
package incremental

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/shopify-source/pkg/record"
)

// Kind is the type of value a cursor field holds.
type Kind string

const (
	// KindTimestamp cursors compare last-modified or creation timestamps.
	KindTimestamp Kind = "timestamp"

	// KindID cursors compare monotonically increasing numeric ids.
	KindID Kind = "id"
)

// Epoch is the default lower bound of a first run.
var Epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Cursor is a single timestamp or id value. The zero Cursor means "unset".
type Cursor struct {
	Kind Kind
	Time time.Time
	ID   int64
}

// Timestamp returns a timestamp cursor.
func Timestamp(t time.Time) Cursor {
	return Cursor{Kind: KindTimestamp, Time: t}
}

// ID returns a numeric id cursor.
func ID(id int64) Cursor {
	return Cursor{Kind: KindID, ID: id}
}

// IsZero reports whether the cursor is unset.
func (c Cursor) IsZero() bool {
	return c.Kind == ""
}

// Compare returns -1, 0 or +1. Cursors of different kinds compare by kind name
// so the ordering stays total; the tracker never mixes kinds.
func (c Cursor) Compare(o Cursor) int {
	if c.Kind != o.Kind {
		switch {
		case c.Kind < o.Kind:
			return -1
		default:
			return 1
		}
	}

	switch c.Kind {
	case KindTimestamp:
		return c.Time.Compare(o.Time)
	case KindID:
		switch {
		case c.ID < o.ID:
			return -1
		case c.ID > o.ID:
			return 1
		}
	}
	return 0
}

// String renders the cursor the way it is persisted and sent to the API.
func (c Cursor) String() string {
	switch c.Kind {
	case KindTimestamp:
		return c.Time.Format(time.RFC3339Nano)
	case KindID:
		return strconv.FormatInt(c.ID, 10)
	default:
		return ""
	}
}

// Parse reads a persisted cursor value.
func Parse(kind Kind, s string) (Cursor, error) {
	switch kind {
	case KindTimestamp:
		t, ok := record.ParseTime(s)
		if !ok {
			return Cursor{}, fmt.Errorf("parse timestamp cursor %q", s)
		}
		return Timestamp(t), nil
	case KindID:
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Cursor{}, fmt.Errorf("parse id cursor %q: %w", s, err)
		}
		return ID(id), nil
	default:
		return Cursor{}, fmt.Errorf("unknown cursor kind %q", kind)
	}
}

// FromValue converts an item field into a cursor of the given kind.
func FromValue(kind Kind, v any) (Cursor, error) {
	switch kind {
	case KindTimestamp:
		switch t := v.(type) {
		case time.Time:
			return Timestamp(t), nil
		case string:
			return Parse(kind, t)
		}
	case KindID:
		switch t := v.(type) {
		case json.Number:
			id, err := t.Int64()
			if err != nil {
				return Cursor{}, fmt.Errorf("id cursor %q: %w", t, err)
			}
			return ID(id), nil
		case float64:
			return ID(int64(t)), nil
		case int64:
			return ID(t), nil
		case int:
			return ID(int64(t)), nil
		case string:
			return Parse(kind, t)
		}
	default:
		return Cursor{}, fmt.Errorf("unknown cursor kind %q", kind)
	}
	return Cursor{}, fmt.Errorf("%s cursor from %T", kind, v)
}
