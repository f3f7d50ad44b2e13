package matching_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/swipecook/internal/app"
	"github.com/oggyb/swipecook/internal/cache"
	"github.com/oggyb/swipecook/internal/config"
	"github.com/oggyb/swipecook/internal/db"
	"github.com/oggyb/swipecook/internal/db/dbtest"
	"github.com/oggyb/swipecook/internal/logger"
	"github.com/oggyb/swipecook/internal/match"
	"github.com/oggyb/swipecook/internal/metrics"
	"github.com/oggyb/swipecook/internal/service/matching"
	"github.com/oggyb/swipecook/internal/wire"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) { c.Set(c.Now().Add(d)) }

type routed struct {
	Pair match.PairKey
	User string
	Ev   wire.Event
}

type recordingRouter struct {
	mu     sync.Mutex
	events []routed
}

func (r *recordingRouter) Deliver(_ context.Context, userID string, ev wire.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, routed{User: userID, Ev: ev})
	return 1
}

func (r *recordingRouter) BroadcastToPair(_ context.Context, pair match.PairKey, ev wire.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, routed{Pair: pair, Ev: ev})
	return 2
}

func (r *recordingRouter) ofType(typ string) []routed {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []routed
	for _, e := range r.events {
		if e.Ev.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc     *matching.Service
	db      *gorm.DB
	clock   *fakeClock
	router  *recordingRouter
	metrics *metrics.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gdb := dbtest.Open(t)
	require.NoError(t, db.SeedItems(gdb))

	mr := miniredis.RunT(t)
	rc := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	cfg := &config.Config{}
	cfg.Match.Expiry = match.DefaultExpiry
	cfg.Match.DefaultPageSize = 20
	cfg.Match.MaxPageSize = 100

	f := &fixture{
		db:      gdb,
		clock:   &fakeClock{now: t0},
		router:  &recordingRouter{},
		metrics: metrics.New(),
	}
	appCtx := app.New(cfg, gdb, rc, logger.Discard(), f.metrics)
	f.svc = matching.NewService(appCtx,
		matching.WithClock(f.clock.Now),
		matching.WithRouter(f.router),
	)
	return f
}

// mutualLike makes both members like itemID and returns the match.
func (f *fixture) mutualLike(t *testing.T, a, b, itemID string) *db.Match {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.RecordDecision(ctx, a, itemID, true)
	require.NoError(t, err)
	res, err := f.svc.RecordDecision(ctx, b, itemID, true)
	require.NoError(t, err)
	require.True(t, res.Matched)
	return res.Match
}

func counterValue(t *testing.T, reg *metrics.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gatherer().Gather()
	require.NoError(t, err)

	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
