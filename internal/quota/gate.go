// Package quota caches the server-side allowance and refuses submissions
// that would exceed it without a round trip. The server remains the
// authority; the gate only saves users from queueing work that is certain
// to be rejected.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"easel/internal/imageapi"
	"easel/internal/logging"
)

// QuotaAPI is the slice of the service API the gate needs.
type QuotaAPI interface {
	Quota(ctx context.Context) (*imageapi.Quota, error)
}

// InsufficientError reports a local refusal: the requested weight exceeds
// the cached daily allowance.
type InsufficientError struct {
	Requested int
	Remaining int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("quota exceeded: requested %d image(s) but only %d remaining today", e.Requested, e.Remaining)
}

// Gate caches the allowance snapshot from GET /tasks/quota/me. The cached
// value is never decremented locally; after each successful completion the
// caller refreshes from the server, which also captures usage from other
// sessions on the same account.
type Gate struct {
	api    QuotaAPI
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	cached    imageapi.Quota
	fetchedAt time.Time
}

// NewGate creates a gate with the given cache TTL.
func NewGate(api QuotaAPI, ttl time.Duration, logger *slog.Logger) *Gate {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Gate{
		api:    api,
		ttl:    ttl,
		logger: logging.NewComponentLogger(logger, "quota"),
		now:    time.Now,
	}
}

// Current returns the cached snapshot, fetching one first when the cache is
// empty or older than the TTL.
func (g *Gate) Current(ctx context.Context) (imageapi.Quota, error) {
	g.mu.Lock()
	fresh := !g.fetchedAt.IsZero() && g.now().Sub(g.fetchedAt) < g.ttl
	cached := g.cached
	g.mu.Unlock()

	if fresh {
		return cached, nil
	}
	return g.Refresh(ctx)
}

// Refresh fetches a new snapshot regardless of cache age. On failure the
// previous snapshot stays cached.
func (g *Gate) Refresh(ctx context.Context) (imageapi.Quota, error) {
	snapshot, err := g.api.Quota(ctx)
	if err != nil {
		return imageapi.Quota{}, fmt.Errorf("fetch quota: %w", err)
	}
	quota := *snapshot

	g.mu.Lock()
	g.cached = quota
	g.fetchedAt = g.now()
	g.mu.Unlock()

	g.logger.Debug("quota refreshed",
		logging.Args(
			logging.Int("remaining_today", quota.RemainingToday),
			logging.Int("daily_limit", quota.DailyLimit),
		)...)
	return quota, nil
}

// Check refuses a submission of the given weight when the cached allowance
// cannot cover it. The check is purely local once a snapshot is cached; a
// snapshot is fetched only if none exists yet. A refusal here is advisory,
// the server enforces the real limit at submission time.
func (g *Gate) Check(ctx context.Context, weight int) error {
	if weight < 1 {
		weight = 1
	}

	quota, err := g.Current(ctx)
	if err != nil {
		// Without a snapshot there is nothing to refuse on; let the server
		// decide.
		g.logger.Warn("quota check skipped", logging.Args(logging.Error(err))...)
		return nil
	}

	if weight > quota.RemainingToday {
		return &InsufficientError{Requested: weight, Remaining: quota.RemainingToday}
	}
	return nil
}

// Invalidate drops the cached snapshot so the next Current fetches anew.
func (g *Gate) Invalidate() {
	g.mu.Lock()
	g.fetchedAt = time.Time{}
	g.mu.Unlock()
}
