// Package orgctx resolves the organization and role of an authenticated
// user and caches the answer for a short time.
package orgctx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/deppfellow/shiftboard/internal/config"
	"github.com/deppfellow/shiftboard/internal/database"
	"github.com/deppfellow/shiftboard/internal/errs"
	"github.com/deppfellow/shiftboard/internal/postgrest"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// InvalidateChannel carries user ids whose cached context must be dropped.
const InvalidateChannel = "orgctx:invalidate"

type OrgContext struct {
	OrgID string `json:"org_id"`
	Role  string `json:"role"`
}

type entry struct {
	org       OrgContext
	expiresAt time.Time
}

// Resolver maps user ids to their OrgContext. It is safe for concurrent use.
type Resolver struct {
	table string
	ttl   time.Duration
	now   func() time.Time
	rdb   redis.UniversalClient
	log   zerolog.Logger

	mu    sync.RWMutex
	items map[string]entry

	// gens counts invalidations per user. Get only stores its result when
	// no invalidation landed while it was querying.
	gens map[string]uint64
}

type Option func(*Resolver)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// WithRedis enables cross instance invalidation through pub/sub.
func WithRedis(rdb redis.UniversalClient) Option {
	return func(r *Resolver) {
		r.rdb = rdb
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) {
		r.log = l
	}
}

func New(cfg *config.TenancyConfig, opts ...Option) *Resolver {
	if cfg == nil {
		cfg = config.DefaultTenancyConfig()
	}

	r := &Resolver{
		table: cfg.MembershipTable,
		ttl:   cfg.OrgCacheTTL,
		now:   time.Now,
		log:   zerolog.Nop(),
		items: make(map[string]entry),
		gens:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the user's organization context, querying the membership
// table through q on a cache miss.
func (r *Resolver) Get(ctx context.Context, q database.Querier, userID string) (OrgContext, error) {
	if userID == "" {
		return OrgContext{}, errs.NewUnauthorizedError("Unauthorized", false)
	}

	if org, ok := r.lookup(userID); ok {
		return org, nil
	}

	r.mu.RLock()
	gen := r.gens[userID]
	r.mu.RUnlock()

	res := postgrest.New(q).
		From(r.table).
		Select("org_id, role").
		Eq("user_id", userID).
		Single(ctx)
	if res.Error != nil {
		return OrgContext{}, res.Error
	}
	if res.Data == nil {
		return OrgContext{}, errs.NewForbiddenError("user is not a member of any organization", true)
	}

	org := OrgContext{
		OrgID: res.Data.Value("org_id").String(),
		Role:  res.Data.Value("role").String(),
	}

	r.mu.Lock()
	stale := r.gens[userID] != gen
	if !stale {
		r.items[userID] = entry{org: org, expiresAt: r.now().Add(r.ttl)}
	}
	r.mu.Unlock()

	if stale {
		r.log.Debug().Str("user_id", userID).Msg("org context invalidated during lookup, not cached")
		return org, nil
	}

	r.log.Debug().Str("user_id", userID).Str("org_id", org.OrgID).Msg("resolved organization context")
	return org, nil
}

func (r *Resolver) lookup(userID string) (OrgContext, bool) {
	r.mu.RLock()
	e, ok := r.items[userID]
	r.mu.RUnlock()

	if !ok {
		return OrgContext{}, false
	}
	if !r.now().Before(e.expiresAt) {
		r.evict(userID)
		return OrgContext{}, false
	}
	return e.org, true
}

func (r *Resolver) evict(userID string) {
	r.mu.Lock()
	delete(r.items, userID)
	r.mu.Unlock()
}

// invalidate evicts userID and makes lookups already in flight skip the
// cache store.
func (r *Resolver) invalidate(userID string) {
	r.mu.Lock()
	delete(r.items, userID)
	r.gens[userID]++
	r.mu.Unlock()
}

// Clear drops the cached context of userID so the next Get re-queries. With
// Redis configured the id is also published to other instances.
func (r *Resolver) Clear(ctx context.Context, userID string) error {
	r.invalidate(userID)

	if r.rdb == nil {
		return nil
	}
	if err := r.rdb.Publish(ctx, InvalidateChannel, userID).Err(); err != nil {
		return fmt.Errorf("publish org context invalidation: %w", err)
	}
	return nil
}

// Listen evicts user ids published on InvalidateChannel until ctx is done.
// Without Redis it returns immediately.
func (r *Resolver) Listen(ctx context.Context) error {
	if r.rdb == nil {
		return nil
	}

	sub := r.rdb.Subscribe(ctx, InvalidateChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", InvalidateChannel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg)
		}
	}
}

func (r *Resolver) handle(msg *redis.Message) {
	if msg == nil || msg.Payload == "" {
		return
	}
	r.invalidate(msg.Payload)
	r.log.Debug().Str("user_id", msg.Payload).Msg("org context invalidated")
}

// Size returns the number of cached entries, expired ones included.
func (r *Resolver) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
