// Package ratelimit implements Shopify call-limit tracking and request gating.
// REST responses report the leaky bucket in the X-Shopify-Shop-Api-Call-Limit
// header ("used/capacity"); GraphQL responses report it in
// extensions.cost.throttleStatus. Both are folded into a BucketState per API.
package ratelimit

import (
	"time"
)

// API identifies which Shopify bucket a state belongs to.
type API string

const (
	// APIREST is the Admin REST API bucket (counted in requests).
	APIREST API = "rest"

	// APIGraphQL is the Admin GraphQL bucket (counted in query cost points).
	APIGraphQL API = "graphql"
)

// HeaderCallLimit is the REST response header carrying "used/capacity".
const HeaderCallLimit = "X-Shopify-Shop-Api-Call-Limit"

// Thresholds for rate limit decisions, as a fraction of bucket capacity.
const (
	// UtilizationCritical blocks requests until the bucket drains below the warning level.
	UtilizationCritical = 0.95

	// UtilizationWarning adds a short pause before each request.
	UtilizationWarning = 0.80
)

// Default leak rates when the API does not report one.
const (
	DefaultRESTRestoreRate    = 2.0   // requests per second (standard plan)
	DefaultGraphQLRestoreRate = 100.0 // cost points per second
)

// BucketState is the last observed state of one leaky bucket.
type BucketState struct {
	// Used is the bucket fill at LastUpdate.
	Used float64 `json:"used"`

	// Capacity is the bucket size.
	Capacity float64 `json:"capacity"`

	// RestoreRate is how many units leak out per second.
	RestoreRate float64 `json:"restore_rate"`

	// LastUpdate is when Used was observed.
	LastUpdate time.Time `json:"last_update"`
}

// UsedAt returns the estimated fill at now, accounting for the leak since LastUpdate.
func (s *BucketState) UsedAt(now time.Time) float64 {
	elapsed := now.Sub(s.LastUpdate).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	used := s.Used - elapsed*s.RestoreRate
	if used < 0 {
		return 0
	}
	return used
}

// Utilization returns the estimated fill ratio at now.
func (s *BucketState) Utilization(now time.Time) float64 {
	if s.Capacity <= 0 {
		return 0
	}
	return s.UsedAt(now) / s.Capacity
}

// NeedsCriticalBlock returns true if requests should wait for the bucket to drain.
func (s *BucketState) NeedsCriticalBlock(now time.Time) bool {
	return s.Utilization(now) >= UtilizationCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *BucketState) NeedsThrottling(now time.Time) bool {
	return s.Utilization(now) >= UtilizationWarning && !s.NeedsCriticalBlock(now)
}

// TimeUntilWarning returns how long until the bucket drains below the warning level.
// Returns 0 if it already is.
func (s *BucketState) TimeUntilWarning(now time.Time) time.Duration {
	if s.RestoreRate <= 0 {
		return 0
	}
	excess := s.UsedAt(now) - UtilizationWarning*s.Capacity
	if excess <= 0 {
		return 0
	}
	return time.Duration(excess / s.RestoreRate * float64(time.Second))
}

// ThrottleDelay is the pause applied in the warning band: the time one unit takes to leak.
func (s *BucketState) ThrottleDelay() time.Duration {
	if s.RestoreRate <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / s.RestoreRate)
}
