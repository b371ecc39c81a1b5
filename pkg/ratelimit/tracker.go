package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Suryakiran09/Outlook-Automation-Pipeline/pkg/logging"
)

// Prometheus metrics for throttle tracking.
var (
	throttleBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outlook_sync_throttle_blocks_total",
		Help: "Total requests blocked while a Retry-After deadline was pending",
	}, []string{"service"})

	throttleBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outlook_sync_throttle_backoff_seconds",
		Help:    "Backoff durations recorded from Retry-After headers",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	}, []string{"service"})
)

// Gate tracks one service's throttle state and gates requests against it.
// A nil *Gate is valid and allows everything, so callers without Redis can
// skip shared throttle tracking entirely.
type Gate struct {
	redis   *redis.Client
	service string
	logger  zerolog.Logger
}

// NewGate creates a throttle gate for the given service name ("graph",
// "airtable"). State is shared via Redis across workers and processes.
func NewGate(redisClient *redis.Client, service string) *Gate {
	return &Gate{
		redis:   redisClient,
		service: service,
		logger:  logging.NewLogger("ratelimit").With().Str("service", service).Logger(),
	}
}

// GetState retrieves the current throttle state from Redis. Returns an
// unblocked state when no data exists.
func (g *Gate) GetState(ctx context.Context) (*State, error) {
	blockedUnix, err := g.redis.Get(ctx, stateKey(g.service, keyBlockedUntil)).Int64()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if err == redis.Nil {
		return &State{}, nil
	}

	lastStatus, err := g.redis.Get(ctx, stateKey(g.service, keyLastStatus)).Int()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	lastUpdateUnix, err := g.redis.Get(ctx, stateKey(g.service, keyLastUpdate)).Int64()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	return &State{
		BlockedUntil: time.Unix(blockedUnix, 0),
		LastStatus:   lastStatus,
		LastUpdate:   time.Unix(lastUpdateUnix, 0),
	}, nil
}

// Allow reports whether a request may be sent now. Redis errors fail open:
// losing the shared deadline is better than stalling the whole pool.
func (g *Gate) Allow(ctx context.Context) bool {
	if g == nil || g.redis == nil {
		return true
	}

	state, err := g.GetState(ctx)
	if err != nil {
		g.logger.Warn().Err(err).Msg("Throttle state read failed, allowing request")
		return true
	}

	if state.IsBlocked() {
		throttleBlocksTotal.WithLabelValues(g.service).Inc()
		g.logger.Warn().
			Dur("remaining", state.RemainingBlock()).
			Int("last_status", state.LastStatus).
			Msg("Request held back by throttle gate")
		return false
	}

	return true
}

// Wait blocks until the throttle deadline passes or the context is done.
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil || g.redis == nil {
		return nil
	}

	state, err := g.GetState(ctx)
	if err != nil || !state.IsBlocked() {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(state.RemainingBlock()):
		return nil
	}
}

// UpdateFromResponse inspects a response for throttling and records the
// backoff deadline. Only 429 and 503 responses are considered; everything
// else clears nothing and costs one header lookup.
func (g *Gate) UpdateFromResponse(ctx context.Context, resp *http.Response) {
	if g == nil || g.redis == nil || resp == nil {
		return
	}
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return
	}

	backoff := ParseRetryAfter(resp.Header.Get("Retry-After"))
	deadline := time.Now().Add(backoff)
	throttleBackoffSeconds.WithLabelValues(g.service).Observe(backoff.Seconds())

	// Keys expire with the deadline so stale blocks clean themselves up.
	ttl := backoff + time.Minute
	pipe := g.redis.Pipeline()
	pipe.Set(ctx, stateKey(g.service, keyBlockedUntil), deadline.Unix(), ttl)
	pipe.Set(ctx, stateKey(g.service, keyLastStatus), resp.StatusCode, ttl)
	pipe.Set(ctx, stateKey(g.service, keyLastUpdate), time.Now().Unix(), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		g.logger.Warn().Err(err).Msg("Throttle state write failed")
		return
	}

	g.logger.Warn().
		Int("status", resp.StatusCode).
		Dur("backoff", backoff).
		Msg("Throttling recorded from Retry-After")
}

// ParseRetryAfter parses a Retry-After header value, either delta-seconds
// or an HTTP date. Returns DefaultBackoff for empty or unparseable input.
func ParseRetryAfter(value string) time.Duration {
	if value == "" {
		return DefaultBackoff
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return DefaultBackoff
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		d := time.Until(at)
		if d < 0 {
			return 0
		}
		return d
	}

	return DefaultBackoff
}
