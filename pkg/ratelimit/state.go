// Package ratelimit implements Retry-After throttle tracking and request
// gating for the Graph and Airtable APIs. Both services answer 429 with a
// Retry-After header; the gate records the backoff deadline in Redis so all
// concurrent workers (and any other process sharing the Redis instance)
// stop issuing requests until it passes.
package ratelimit

import (
	"fmt"
	"time"
)

// Redis key suffixes for throttle state, namespaced per service.
const (
	keyBlockedUntil = "blocked_until"
	keyLastStatus   = "last_status"
	keyLastUpdate   = "last_update"
)

// DefaultBackoff is assumed when a throttling response carries no parseable
// Retry-After header. Airtable documents 30 seconds; Graph is usually lower.
const DefaultBackoff = 30 * time.Second

// State is the current throttle state for one service.
type State struct {
	// BlockedUntil is the deadline before which no request should be sent.
	// Zero when the service is not throttling.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastStatus is the HTTP status that produced the block (usually 429).
	LastStatus int `json:"last_status"`

	// LastUpdate is when this state was last written.
	LastUpdate time.Time `json:"last_update"`
}

// IsBlocked reports whether requests should currently be held back.
func (s *State) IsBlocked() bool {
	return time.Now().Before(s.BlockedUntil)
}

// RemainingBlock returns the duration until requests may resume.
// Returns 0 when not blocked.
func (s *State) RemainingBlock() time.Duration {
	d := time.Until(s.BlockedUntil)
	if d < 0 {
		return 0
	}
	return d
}

// stateKey builds the namespaced Redis key for one state field.
func stateKey(service, field string) string {
	return fmt.Sprintf("outlook_sync:%s:throttle:%s", service, field)
}
