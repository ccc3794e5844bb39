package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	callLimitUtilization = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shopify_call_limit_utilization",
		Help: "Last observed Shopify bucket fill ratio by API",
	}, []string{"api"})

	rateLimitBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_rate_limit_blocks_total",
		Help: "Total number of requests held until the bucket drained",
	}, []string{"api"})

	rateLimitThrottlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_rate_limit_throttles_total",
		Help: "Total number of requests delayed in the warning band",
	}, []string{"api"})
)

// ThrottleStatus is the bucket report of a GraphQL response
// (extensions.cost.throttleStatus).
type ThrottleStatus struct {
	MaximumAvailable   float64 `json:"maximumAvailable"`
	CurrentlyAvailable float64 `json:"currentlyAvailable"`
	RestoreRate        float64 `json:"restoreRate"`
}

// Tracker monitors Shopify call limits for one shop and gates requests.
// It is safe for concurrent use when its Store is.
type Tracker struct {
	store  Store
	shop   string
	logger zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTracker creates a new rate limit tracker.
func NewTracker(store Store, shop string, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:  store,
		shop:   shop,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// GetState retrieves the current bucket state.
// Returns an empty bucket if nothing has been observed yet.
func (t *Tracker) GetState(ctx context.Context, api API) (*BucketState, error) {
	state, err := t.store.Load(ctx, t.shop, api)
	if err != nil {
		return nil, fmt.Errorf("load %s bucket state: %w", api, err)
	}
	if state == nil {
		return &BucketState{
			Capacity:    defaultCapacity(api),
			RestoreRate: defaultRestoreRate(api),
			LastUpdate:  t.now(),
		}, nil
	}
	return state, nil
}

// UpdateFromHeaders parses the REST call-limit header and stores the bucket state.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	raw := headers.Get(HeaderCallLimit)
	if raw == "" {
		// GraphQL responses and some endpoints do not carry it
		return nil
	}

	used, capacity, err := ParseCallLimit(raw)
	if err != nil {
		return err
	}

	return t.save(ctx, APIREST, &BucketState{
		Used:        used,
		Capacity:    capacity,
		RestoreRate: DefaultRESTRestoreRate,
		LastUpdate:  t.now(),
	})
}

// UpdateFromThrottleStatus stores the bucket state reported by a GraphQL response.
func (t *Tracker) UpdateFromThrottleStatus(ctx context.Context, status ThrottleStatus) error {
	if status.MaximumAvailable <= 0 {
		return nil
	}

	restore := status.RestoreRate
	if restore <= 0 {
		restore = DefaultGraphQLRestoreRate
	}

	return t.save(ctx, APIGraphQL, &BucketState{
		Used:        status.MaximumAvailable - status.CurrentlyAvailable,
		Capacity:    status.MaximumAvailable,
		RestoreRate: restore,
		LastUpdate:  t.now(),
	})
}

func (t *Tracker) save(ctx context.Context, api API, state *BucketState) error {
	if err := t.store.Save(ctx, t.shop, api, state); err != nil {
		return fmt.Errorf("store %s bucket state: %w", api, err)
	}

	now := t.now()
	callLimitUtilization.WithLabelValues(string(api)).Set(state.Utilization(now))

	switch {
	case state.NeedsCriticalBlock(now):
		t.logger.Warn().
			Str("api", string(api)).
			Float64("used", state.Used).
			Float64("capacity", state.Capacity).
			Msg("Shopify call limit CRITICAL - requests will wait")
	case state.NeedsThrottling(now):
		t.logger.Info().
			Str("api", string(api)).
			Float64("used", state.Used).
			Float64("capacity", state.Capacity).
			Msg("Shopify call limit WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Str("api", string(api)).
			Float64("used", state.Used).
			Float64("capacity", state.Capacity).
			Msg("Shopify call limit state updated")
	}

	return nil
}

// Wait blocks until a request against api may be sent. It waits for the
// bucket to drain in the critical band and pauses briefly in the warning band.
func (t *Tracker) Wait(ctx context.Context, api API) error {
	state, err := t.GetState(ctx, api)
	if err != nil {
		return fmt.Errorf("get rate limit state: %w", err)
	}

	now := t.now()

	if state.NeedsCriticalBlock(now) {
		wait := state.TimeUntilWarning(now)
		t.logger.Warn().
			Str("api", string(api)).
			Dur("wait_duration", wait).
			Msg("Shopify call limit critical - holding request")
		rateLimitBlocksTotal.WithLabelValues(string(api)).Inc()
		return t.sleep(ctx, wait)
	}

	if state.NeedsThrottling(now) {
		delay := state.ThrottleDelay()
		t.logger.Debug().
			Str("api", string(api)).
			Dur("delay", delay).
			Msg("Shopify call limit warning - throttling request")
		rateLimitThrottlesTotal.WithLabelValues(string(api)).Inc()
		return t.sleep(ctx, delay)
	}

	return nil
}

// ParseCallLimit parses "used/capacity".
func ParseCallLimit(raw string) (used, capacity float64, err error) {
	usedStr, capStr, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok {
		return 0, 0, fmt.Errorf("parse %s header %q: missing '/'", HeaderCallLimit, raw)
	}

	used, err = strconv.ParseFloat(usedStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse %s header used: %w", HeaderCallLimit, err)
	}
	capacity, err = strconv.ParseFloat(capStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse %s header capacity: %w", HeaderCallLimit, err)
	}
	if capacity <= 0 {
		return 0, 0, fmt.Errorf("parse %s header %q: capacity must be > 0", HeaderCallLimit, raw)
	}
	return used, capacity, nil
}

func defaultCapacity(api API) float64 {
	if api == APIGraphQL {
		return 1000
	}
	return 40
}

func defaultRestoreRate(api API) float64 {
	if api == APIGraphQL {
		return DefaultGraphQLRestoreRate
	}
	return DefaultRESTRestoreRate
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
