// Package pipeline runs Shopify resources into a sink and commits their
// cursors to a state store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/shopify-source/pkg/incremental"
	"github.com/Sternrassler/shopify-source/pkg/shopify"
	"github.com/Sternrassler/shopify-source/pkg/sink"
	"github.com/Sternrassler/shopify-source/pkg/state"
)

// Source provides the resources of one shop.
type Source interface {
	Shop() string
	Select(names ...string) ([]*shopify.Resource, error)
}

// Config holds runner settings.
type Config struct {
	// MaxConcurrency bounds how many resources run at once.
	MaxConcurrency int

	// FullRefresh ignores saved cursors and reloads from the start date.
	FullRefresh bool
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{MaxConcurrency: 2}
}

// Result is the outcome of one resource in a load.
type Result struct {
	Resource string
	LoadID   string
	Phase    shopify.Phase
	Pages    int
	Items    int
	Dropped  int

	// Cursor is the high-water mark after the run; Committed reports
	// whether it was saved.
	Cursor    incremental.Cursor
	Committed bool

	Duration time.Duration
	Err      error
}

// Runner loads resources from a source into a sink.
type Runner struct {
	source Source
	store  state.Store
	sink   sink.Sink
	config Config
	logger zerolog.Logger
}

// New creates a runner.
func New(source Source, store state.Store, dest sink.Sink, cfg Config) (*Runner, error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if dest == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if cfg.MaxConcurrency < 1 {
		return nil, fmt.Errorf("max_concurrency must be >= 1 (got %d)", cfg.MaxConcurrency)
	}

	return &Runner{
		source: source,
		store:  store,
		sink:   dest,
		config: cfg,
		logger: log.With().Str("component", "pipeline").Str("shop", source.Shop()).Logger(),
	}, nil
}

// Run loads the named resources, or all resources when none are named, under
// one load id. A failed resource does not stop the others; their errors are
// joined into the returned error. Results keep the order of the resources.
func (r *Runner) Run(ctx context.Context, names ...string) ([]Result, error) {
	resources, err := r.source.Select(names...)
	if err != nil {
		return nil, err
	}

	loadID := uuid.NewString()
	logger := r.logger.With().Str("load_id", loadID).Logger()
	logger.Info().Int("resources", len(resources)).Bool("full_refresh", r.config.FullRefresh).Msg("Load started")

	results := make([]Result, len(resources))

	var group errgroup.Group
	group.SetLimit(r.config.MaxConcurrency)
	for i, res := range resources {
		group.Go(func() error {
			results[i] = r.runResource(ctx, res, loadID, logger)
			return nil
		})
	}
	group.Wait()

	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}

	logger.Info().Int("failed", len(errs)).Msg("Load finished")
	return results, errors.Join(errs...)
}

func (r *Runner) runResource(ctx context.Context, res *shopify.Resource, loadID string, logger zerolog.Logger) (result Result) {
	start := time.Now()
	logger = logger.With().Str("resource", res.Name).Logger()

	result = Result{Resource: res.Name, LoadID: loadID, Phase: shopify.PhaseNotStarted}
	defer func() {
		result.Duration = time.Since(start)
		ResourceRunDuration.WithLabelValues(res.Name).Observe(result.Duration.Seconds())

		status := "success"
		if result.Err != nil {
			status = "failed"
			logger.Error().Err(result.Err).Str("phase", result.Phase.String()).Msg("Resource failed")
		}
		ResourceRuns.WithLabelValues(res.Name, status).Inc()
	}()

	key := state.Key{Shop: r.source.Shop(), Resource: res.Name}

	window, err := r.window(ctx, res, key)
	if err != nil {
		result.Err = fmt.Errorf("%s: %w", res.Name, err)
		return result
	}

	table := sink.Table{
		Name:        res.Name,
		PrimaryKey:  res.PrimaryKey,
		Disposition: sink.Disposition(res.WriteDisposition),
	}

	logger.Info().Str("cursor", window.Start.String()).Str("end", window.End.String()).Msg("Resource started")

	run := res.Run(window)
	var writeErr error
	for page, err := range run.Pages(ctx) {
		if err != nil {
			break
		}
		if writeErr = r.sink.Write(ctx, table, loadID, page); writeErr != nil {
			break
		}
		ResourceRows.WithLabelValues(res.Name).Add(float64(len(page)))
		logger.Debug().Int("items", len(page)).Msg("Page written")
	}

	result.Phase = run.Phase()
	switch {
	case run.Err() != nil:
		result.Err = run.Err()
	case writeErr != nil:
		result.Err = fmt.Errorf("%s: %w", res.Name, writeErr)
	}
	if result.Err != nil {
		if err := r.sink.Abort(context.WithoutCancel(ctx), table, loadID); err != nil {
			logger.Warn().Err(err).Msg("Abort failed")
		}
		return result
	}

	if err := r.sink.Complete(ctx, table, loadID); err != nil {
		result.Err = fmt.Errorf("%s: complete: %w", res.Name, err)
		return result
	}

	runResult, err := run.Result()
	if err != nil {
		result.Err = err
		return result
	}
	result.Pages = runResult.Pages
	result.Items = runResult.Items
	result.Dropped = runResult.Dropped
	result.Cursor = runResult.Cursor

	if runResult.Committable && !runResult.Cursor.IsZero() {
		entry := state.NewEntry(runResult.Cursor, runResult.BoundaryKeys, loadID)
		if err := r.store.Set(ctx, key, entry); err != nil {
			result.Err = fmt.Errorf("%s: commit cursor: %w", res.Name, err)
			return result
		}
		result.Committed = true
		CursorCommits.WithLabelValues(res.Name).Inc()
	}

	logger.Info().
		Int("pages", result.Pages).
		Int("items", result.Items).
		Int("dropped", result.Dropped).
		Str("cursor", result.Cursor.String()).
		Bool("committed", result.Committed).
		Dur("duration", time.Since(start)).
		Msg("Resource finished")

	return result
}

// window builds the run window from saved state.
func (r *Runner) window(ctx context.Context, res *shopify.Resource, key state.Key) (incremental.Window, error) {
	if !res.IsIncremental() || r.config.FullRefresh {
		return res.Window(incremental.Cursor{}, nil), nil
	}

	entry, err := r.store.Get(ctx, key)
	if errors.Is(err, state.ErrNoState) {
		return res.Window(incremental.Cursor{}, nil), nil
	}
	if err != nil {
		return incremental.Window{}, fmt.Errorf("read state: %w", err)
	}

	saved, err := entry.Cursor()
	if err != nil {
		return incremental.Window{}, fmt.Errorf("saved cursor: %w", err)
	}
	return res.Window(saved, entry.BoundaryKeys), nil
}
