package shopify

import (
	"context"
	"iter"
	"net/url"

	"github.com/Sternrassler/shopify-source/pkg/incremental"
	"github.com/Sternrassler/shopify-source/pkg/pagination"
	"github.com/Sternrassler/shopify-source/pkg/ratelimit"
	"github.com/Sternrassler/shopify-source/pkg/record"
)

// WriteDisposition tells the loader how a resource's rows combine with
// what is already stored.
type WriteDisposition string

const (
	// Append inserts every row.
	Append WriteDisposition = "append"

	// Merge upserts rows by primary key.
	Merge WriteDisposition = "merge"

	// SCD2 keeps a version history per primary key.
	SCD2 WriteDisposition = "scd2"
)

// Incremental declares the cursor field of a resource.
type Incremental struct {
	// Field is the item path of the cursor value.
	Field string

	// Kind is the cursor value type.
	Kind incremental.Kind

	// Bounded reports whether the configured end date applies.
	Bounded bool
}

// RESTResource configures a resource served by a REST list endpoint.
type RESTResource struct {
	Name             string
	Path             string
	PrimaryKey       []string
	WriteDisposition WriteDisposition
	Incremental      *Incremental

	// Params builds the first request's query for a window.
	Params func(w incremental.Window) url.Values
}

// GraphQLResource configures a resource served by a GraphQL connection.
type GraphQLResource struct {
	Name             string
	PrimaryKey       []string
	WriteDisposition WriteDisposition
	Incremental      *Incremental

	// Query carries text and paths; its Variables are ignored.
	Query pagination.Query

	// Variables builds the initial variables for a window.
	Variables func(w incremental.Window) map[string]any
}

// pageFunc produces the raw pages of one run.
type pageFunc func(ctx context.Context, w incremental.Window) iter.Seq2[record.Page, error]

// Resource is one table-producing entity of the source.
type Resource struct {
	Name             string
	PrimaryKey       []string
	WriteDisposition WriteDisposition
	Incremental      *Incremental
	API              ratelimit.API

	pages pageFunc
	start incremental.Cursor
	end   incremental.Cursor
}

// IsIncremental reports whether the resource has a cursor.
func (r *Resource) IsIncremental() bool {
	return r.Incremental != nil
}

// Window returns the window of a run. A zero saved cursor falls back to the
// configured start; the end date applies to bounded resources only.
func (r *Resource) Window(saved incremental.Cursor, boundaryKeys []string) incremental.Window {
	if r.Incremental == nil {
		return incremental.Window{}
	}

	w := incremental.Window{
		Field: r.Incremental.Field,
		Kind:  r.Incremental.Kind,
		Start: r.start,
	}
	if !saved.IsZero() && saved.Kind == r.Incremental.Kind {
		w.Start = saved
		w.BoundaryKeys = boundaryKeys
	}
	if r.Incremental.Bounded {
		w.End = r.end
	}
	return w
}

// Run prepares a run of the resource over window. A zero window means the
// resource's default window. Nothing is fetched until the run's Pages are
// ranged over.
func (r *Resource) Run(window incremental.Window) *Run {
	if r.Incremental != nil && window.Field == "" {
		window = r.Window(incremental.Cursor{}, nil)
	}

	run := &Run{
		resource: r,
		window:   window,
		phase:    PhaseNotStarted,
	}
	if r.Incremental != nil {
		run.tracker = incremental.NewTracker(window, r.PrimaryKey)
	}
	return run
}
