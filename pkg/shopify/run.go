package shopify

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/Sternrassler/shopify-source/pkg/incremental"
	"github.com/Sternrassler/shopify-source/pkg/record"
)

var (
	// ErrNotDrained is returned by Result before a run has fetched its last page.
	ErrNotDrained = errors.New("run not drained")

	// ErrRunStarted is yielded when Pages of a run is ranged over twice.
	ErrRunStarted = errors.New("run already started")
)

// Phase is the state of a run.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseFetching
	PhaseDrained
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseFetching:
		return "fetching"
	case PhaseDrained:
		return "drained"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Run is a single pass over a resource. It is not safe for concurrent use.
type Run struct {
	resource *Resource
	window   incremental.Window
	tracker  *incremental.Tracker

	phase Phase
	pages int
	items int
	err   error
}

// RunResult is what a drained run reports.
type RunResult struct {
	Resource string

	// Cursor and BoundaryKeys are the new high-water mark. Zero for
	// non-incremental resources.
	Cursor       incremental.Cursor
	BoundaryKeys []string

	// Committable is true when the mark may be saved: the resource is
	// incremental and the window had no end bound.
	Committable bool

	Pages   int
	Items   int
	Dropped int
}

// Resource returns the resource the run belongs to.
func (run *Run) Resource() *Resource {
	return run.resource
}

// Window returns the window the run loads.
func (run *Run) Window() incremental.Window {
	return run.window
}

// Phase returns the current phase.
func (run *Run) Phase() Phase {
	return run.phase
}

// Err returns the error that failed the run, if any.
func (run *Run) Err() error {
	return run.err
}

// Pages returns the run's pages, filtered to the window for incremental
// resources. Pages left empty by the filter are skipped. The run is drained
// once the fetcher stops cleanly; stopping the range early leaves it fetching.
func (run *Run) Pages(ctx context.Context) iter.Seq2[record.Page, error] {
	return func(yield func(record.Page, error) bool) {
		if run.phase != PhaseNotStarted {
			yield(nil, fmt.Errorf("%s: %w", run.resource.Name, ErrRunStarted))
			return
		}
		run.phase = PhaseFetching

		for page, err := range run.resource.pages(ctx, run.window) {
			if err != nil {
				run.phase = PhaseFailed
				run.err = fmt.Errorf("%s: %w", run.resource.Name, err)
				yield(nil, run.err)
				return
			}

			run.pages++
			if run.tracker != nil {
				page = run.tracker.Filter(page)
			}
			if len(page) == 0 {
				continue
			}
			run.items += len(page)

			if !yield(page, nil) {
				return
			}
		}

		run.phase = PhaseDrained
	}
}

// Result returns the outcome of a drained run.
func (run *Run) Result() (RunResult, error) {
	if run.phase != PhaseDrained {
		return RunResult{}, fmt.Errorf("%s is %s: %w", run.resource.Name, run.phase, ErrNotDrained)
	}

	res := RunResult{
		Resource: run.resource.Name,
		Pages:    run.pages,
		Items:    run.items,
	}
	if run.tracker != nil {
		res.Cursor, res.BoundaryKeys = run.tracker.Result()
		res.Dropped = run.tracker.Dropped()
		res.Committable = !run.window.HasEnd()
	}
	return res, nil
}
