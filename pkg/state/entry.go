package state

import (
	"slices"
	"time"

	"github.com/Sternrassler/shopify-source/pkg/incremental"
)

// Entry is the saved high-water mark of a resource.
type Entry struct {
	// Kind and Value are the persisted cursor (see incremental.Cursor.String).
	Kind  incremental.Kind `json:"kind"`
	Value string           `json:"value"`

	// BoundaryKeys are the primary keys already loaded at the cursor value.
	BoundaryKeys []string `json:"boundary_keys,omitempty"`

	// LoadID is the load that committed this entry.
	LoadID string `json:"load_id,omitempty"`

	// UpdatedAt is when the entry was written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Keyed is an entry together with its key.
type Keyed struct {
	Key   Key
	Entry *Entry
}

// NewEntry builds an entry from a cursor.
func NewEntry(cursor incremental.Cursor, boundaryKeys []string, loadID string) *Entry {
	return &Entry{
		Kind:         cursor.Kind,
		Value:        cursor.String(),
		BoundaryKeys: slices.Clone(boundaryKeys),
		LoadID:       loadID,
		UpdatedAt:    time.Now().UTC(),
	}
}

// Cursor parses the saved cursor.
func (e *Entry) Cursor() (incremental.Cursor, error) {
	return incremental.Parse(e.Kind, e.Value)
}
