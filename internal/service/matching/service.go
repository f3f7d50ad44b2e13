package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oggyb/swipecook/internal/app"
	"github.com/oggyb/swipecook/internal/catalog"
	"github.com/oggyb/swipecook/internal/db"
	"github.com/oggyb/swipecook/internal/logger"
	"github.com/oggyb/swipecook/internal/match"
	"github.com/oggyb/swipecook/internal/repository"
	"github.com/oggyb/swipecook/internal/utils/pagination"
	"github.com/oggyb/swipecook/internal/wire"
)

const (
	maxTransitionAttempts = 3
	sweepBatchSize        = 100
	reconcileBatchSize    = 100
)

// Router pushes events to live connections. Delivery is best-effort.
type Router interface {
	Deliver(ctx context.Context, userID string, ev wire.Event) int
	BroadcastToPair(ctx context.Context, pair match.PairKey, ev wire.Event) int
}

type nopRouter struct{}

func (nopRouter) Deliver(context.Context, string, wire.Event) int                { return 0 }
func (nopRouter) BroadcastToPair(context.Context, match.PairKey, wire.Event) int { return 0 }

// Service holds the rating store, the match detector and the match lifecycle
// engine. Every method takes the acting user id explicitly; the gRPC layer
// fills it from the authenticated identity.
type Service struct {
	appCtx    *app.AppContext
	log       *slog.Logger
	decisions *repository.DecisionRepository
	matches   *repository.MatchRepository
	users     *repository.UserRepository
	catalog   catalog.Catalog
	router    Router
	now       func() time.Time
	expiry    time.Duration
}

type Option func(*Service)

// WithRouter sets where match events go.
func WithRouter(r Router) Option {
	return func(s *Service) {
		if r != nil {
			s.router = r
		}
	}
}

func WithCatalog(c catalog.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithClock replaces the engine clock (tests drive expiry with it).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the repositories from AppContext.
// The catalog defaults to the items table, cached in Redis when available.
func NewService(appCtx *app.AppContext, opts ...Option) *Service {
	var cat catalog.Catalog = catalog.NewDBCatalog(appCtx.DB)
	if appCtx.RedisCache != nil {
		cat = catalog.NewCachedCatalog(cat, appCtx.RedisCache, time.Hour, appCtx.Logger)
	}

	expiry := appCtx.Config.Match.Expiry
	if expiry <= 0 {
		expiry = match.DefaultExpiry
	}

	s := &Service{
		appCtx:    appCtx,
		log:       logger.Component(appCtx.Logger, "matching"),
		decisions: repository.NewDecisionRepository(appCtx.DB),
		matches:   repository.NewMatchRepository(appCtx.DB),
		users:     repository.NewUserRepository(appCtx.DB),
		catalog:   cat,
		router:    nopRouter{},
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		expiry:    expiry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DecisionResult is the outcome of RecordDecision.
type DecisionResult struct {
	Matched bool
	Match   *db.Match
	Item    *wire.Item
}

// RecordDecision stores a decision and runs the match detector.
//
// Behavior:
//   - Second decision on the same item → match.ErrAlreadyDecided, nothing changes.
//   - Positive decision whose partner already liked the item → the shared match
//     (created now or by a concurrent partner request) is returned.
//   - The detector runs after the decision commits, so of two racing partner
//     requests the later commit always sees the earlier one.
//   - A repeated positive decision reruns the detector before returning
//     ErrAlreadyDecided, so a retry completes a match whose creation failed.
//
// Example:
//
//	svc.RecordDecision(ctx, "u2", "item-007", true) // -> Matched: true if u1 liked item-007
func (s *Service) RecordDecision(ctx context.Context, userID, itemID string, positive bool) (*DecisionResult, error) {
	userID, itemID = strings.TrimSpace(userID), strings.TrimSpace(itemID)
	if userID == "" || itemID == "" {
		return nil, fmt.Errorf("%w: user and item are required", match.ErrInvalidInput)
	}

	s.log.Debug("RecordDecision called", "user", userID, "item", itemID, "positive", positive)

	if err := s.decisions.RecordDecision(ctx, userID, itemID, positive); err != nil {
		if errors.Is(err, match.ErrAlreadyDecided) {
			s.log.Debug("decision rejected", "user", userID, "item", itemID, "err", err)
			s.redetect(ctx, userID, itemID)
		} else {
			s.log.Error("RecordDecision failed", "user", userID, "item", itemID, "err", err)
		}
		return nil, err
	}
	s.appCtx.Metrics.ObserveDecision(positive)

	// The decision is committed; detection must not be cut short by the caller.
	m, err := s.OnDecisionRecorded(context.WithoutCancel(ctx), userID, itemID, positive)
	if err != nil {
		s.log.Error("match detection failed", "user", userID, "item", itemID, "err", err)
		return nil, err
	}

	res := &DecisionResult{Matched: m != nil, Match: m}
	if m != nil {
		res.Item = s.lookupItem(ctx, itemID)
	}
	return res, nil
}

// redetect reruns the detector for a stored positive decision. Insert-or-fetch
// makes this a no-op when the match already exists.
func (s *Service) redetect(ctx context.Context, userID, itemID string) {
	d, err := s.decisions.Get(ctx, userID, itemID)
	if err != nil || !d.Positive {
		return
	}
	if _, err := s.OnDecisionRecorded(context.WithoutCancel(ctx), userID, itemID, true); err != nil {
		s.log.Error("match detection retry failed", "user", userID, "item", itemID, "err", err)
	}
}

// ReconcileMatches creates the match for every item both mutual partners
// liked that has none, e.g. because detection failed after the decision
// committed. Returns the number of matches created.
func (s *Service) ReconcileMatches(ctx context.Context) (int, error) {
	created := 0
	for {
		rows, err := s.decisions.ListUnmatchedMutual(ctx, reconcileBatchSize)
		if err != nil {
			return created, err
		}

		seen := make(map[string]bool, len(rows))
		for _, r := range rows {
			pair := match.NewPairKey(r.UserA, r.UserB)
			key := pair.String() + "|" + r.ItemID
			if seen[key] {
				continue
			}
			seen[key] = true

			_, ok, err := s.CreateIfAbsent(ctx, pair, r.ItemID)
			if err != nil {
				return created, fmt.Errorf("reconcile %s %s: %w", pair.String(), r.ItemID, err)
			}
			if ok {
				created++
				s.log.Warn("missing match recovered", "pair", pair.String(), "item", r.ItemID)
			}
		}

		if len(rows) < reconcileBatchSize || len(seen) == 0 {
			return created, nil
		}
	}
}

// OnDecisionRecorded is the match detector.
//
// Behavior:
//   - Negative decision or unpaired user → no-op (nil match).
//   - Partner has not liked the item → no-op; the partner's own decision
//     will trigger detection later.
//   - Otherwise CreateIfAbsent on (pair, item).
func (s *Service) OnDecisionRecorded(ctx context.Context, userID, itemID string, positive bool) (*db.Match, error) {
	if !positive {
		return nil, nil
	}

	partnerID, err := s.users.PartnerOf(ctx, userID)
	if errors.Is(err, match.ErrNotPartnered) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	liked, err := s.decisions.HasPositive(ctx, partnerID, itemID)
	if err != nil {
		return nil, err
	}
	if !liked {
		return nil, nil
	}

	m, _, err := s.CreateIfAbsent(ctx, match.NewPairKey(userID, partnerID), itemID)
	return m, err
}

// CreateIfAbsent materialises the match for pair+item exactly once.
//
// Behavior:
//   - Members that are not mutual partners → match.ErrNotPartnered.
//   - Relies on the storage unique key, never on a prior read.
//   - Only the creating call counts the match and delivers newMatch.
func (s *Service) CreateIfAbsent(ctx context.Context, pair match.PairKey, itemID string) (*db.Match, bool, error) {
	if err := s.ensurePartners(ctx, pair); err != nil {
		return nil, false, err
	}

	m, created, err := s.matches.CreateIfAbsent(ctx, pair, itemID, s.now())
	if err != nil {
		return nil, false, err
	}

	if !created {
		s.appCtx.Metrics.DuplicatesResolved.Inc()
		s.log.Debug("duplicate match attempt resolved", "match", m.ID, "pair", pair.String(), "item", itemID)
		return m, false, nil
	}

	s.appCtx.Metrics.MatchesCreated.Inc()
	s.log.Info("match created", "match", m.ID, "pair", pair.String(), "item", itemID)

	payload := wire.NewMatchPayload{Match: ToWire(m), Item: s.lookupItem(ctx, itemID)}
	s.router.BroadcastToPair(context.WithoutCancel(ctx), pair, wire.Event{Type: wire.EventNewMatch, Payload: payload})
	return m, true, nil
}

func (s *Service) ensurePartners(ctx context.Context, pair match.PairKey) error {
	if pair.UserA == "" || pair.UserA == pair.UserB {
		return match.ErrNotPartnered
	}
	for _, id := range pair.Members() {
		partner, err := s.users.PartnerOf(ctx, id)
		if err != nil {
			return err
		}
		if other, _ := pair.Other(id); partner != other {
			return match.ErrNotPartnered
		}
	}
	return nil
}

// UpdateStatus applies a user-requested transition.
//
// Behavior:
//   - Non-members → match.ErrUserNotInMatch.
//   - Disallowed edge (including any user request for expired) → match.ErrInvalidTransition.
//   - scheduled requires a cook date after now → match.ErrInvalidCookDate.
//   - A lost compare-and-swap re-reads the match and re-plans, a few times.
func (s *Service) UpdateStatus(ctx context.Context, userID, matchID string, to match.Status, cookDate *time.Time) (*db.Match, error) {
	var lastErr error
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		m, err := s.memberMatch(ctx, userID, matchID)
		if err != nil {
			return nil, err
		}

		plan, err := match.PlanTransition(stateOf(m), to, match.TriggerUser, cookDate, s.now())
		if err != nil {
			return nil, err
		}

		err = s.matches.ApplyTransition(ctx, m, plan)
		if errors.Is(err, match.ErrConcurrentUpdate) {
			lastErr = err
			s.log.Debug("status update lost race, retrying", "match", matchID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.appCtx.Metrics.Transitions.WithLabelValues(string(plan.To)).Inc()
		s.log.Info("match status changed", "match", matchID, "from", plan.From, "to", plan.To, "by", userID)
		return s.reloadAndNotify(ctx, matchID, "status")
	}
	return nil, lastErr
}

// AddRating upserts the member's 1..5 rating.
func (s *Service) AddRating(ctx context.Context, userID, matchID string, rating int) (*db.Match, error) {
	if err := match.ValidateRating(rating); err != nil {
		return nil, err
	}
	if _, err := s.memberMatch(ctx, userID, matchID); err != nil {
		return nil, err
	}
	if err := s.matches.UpsertRating(ctx, matchID, userID, rating, s.now()); err != nil {
		return nil, err
	}
	return s.reloadAndNotify(ctx, matchID, "rating")
}

// AddNote appends a member's note.
func (s *Service) AddNote(ctx context.Context, userID, matchID, text string) (*db.Match, error) {
	text, err := match.ValidateNote(text)
	if err != nil {
		return nil, err
	}
	if _, err := s.memberMatch(ctx, userID, matchID); err != nil {
		return nil, err
	}
	note := &db.MatchNote{MatchID: matchID, UserID: userID, Text: text, At: s.now()}
	if err := s.matches.AddNote(ctx, note); err != nil {
		return nil, err
	}
	return s.reloadAndNotify(ctx, matchID, "note")
}

// GetMatch returns a match the user belongs to.
func (s *Service) GetMatch(ctx context.Context, userID, matchID string) (*db.Match, error) {
	return s.memberMatch(ctx, userID, matchID)
}

// MatchPage is one page of ListMatches.
type MatchPage struct {
	Matches []db.Match
	Total   int64
	HasMore bool
}

// ListMatches pages through the user's matches, newest first.
// A negative offset is clamped to 0; limit falls back to the configured default.
func (s *Service) ListMatches(ctx context.Context, userID, status string, limit, offset int) (*MatchPage, error) {
	st, err := match.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", match.ErrInvalidInput, err)
	}

	cfg := s.appCtx.Config.Match
	page := pagination.Normalize(limit, offset, cfg.DefaultPageSize, cfg.MaxPageSize)

	rows, total, err := s.matches.ListForUser(ctx, userID, repository.ListFilter{
		Status: st,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("ListMatches result", "user", userID, "count", len(rows), "total", total)
	return &MatchPage{Matches: rows, Total: total, HasMore: page.HasMore(len(rows), total)}, nil
}

// Stats is the user's counters and decision sets.
type Stats struct {
	PartnerID      string
	TotalDecisions int64
	TotalMatches   int64
	ItemsCooked    int64
	Liked          []string
	Disliked       []string
}

func (s *Service) GetStats(ctx context.Context, userID string) (*Stats, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	liked, disliked, err := s.decisions.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		TotalDecisions: u.TotalDecisions,
		TotalMatches:   u.TotalMatches,
		ItemsCooked:    u.ItemsCooked,
		Liked:          liked,
		Disliked:       disliked,
	}
	if u.PartnerID != nil {
		st.PartnerID = *u.PartnerID
	}
	return st, nil
}

// LinkPartners pairs two users.
func (s *Service) LinkPartners(ctx context.Context, a, b string) error {
	if err := s.users.LinkPartners(ctx, a, b); err != nil {
		return err
	}
	s.log.Info("partners linked", "pair", match.NewPairKey(a, b).String())
	return nil
}

// ExpireStale is the sweep: matches still in matched with no activity for
// longer than the expiry threshold become expired. Returns how many moved.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.expiry)
	expired := 0

	for {
		batch, err := s.matches.ListStale(ctx, cutoff, sweepBatchSize)
		if err != nil {
			return expired, err
		}

		progressed := 0
		for _, m := range batch {
			ok, err := s.matches.Expire(ctx, m.ID, cutoff, now)
			if err != nil {
				return expired, err
			}
			if !ok {
				continue
			}
			progressed++
			s.appCtx.Metrics.MatchesExpired.Inc()
			s.appCtx.Metrics.Transitions.WithLabelValues(string(match.StatusExpired)).Inc()
			if _, err := s.reloadAndNotify(ctx, m.ID, "expired"); err != nil {
				s.log.Warn("expired match reload failed", "match", m.ID, "err", err)
			}
		}
		expired += progressed

		if len(batch) < sweepBatchSize || progressed == 0 {
			break
		}
	}

	if expired > 0 {
		s.log.Info("expired stale matches", "count", expired, "cutoff", cutoff)
	}
	return expired, nil
}

// PartnerOf exposes the pairing to the live channel.
func (s *Service) PartnerOf(ctx context.Context, userID string) (string, error) {
	return s.users.PartnerOf(ctx, userID)
}

// Now is the engine clock.
func (s *Service) Now() time.Time { return s.now() }

func (s *Service) memberMatch(ctx context.Context, userID, matchID string) (*db.Match, error) {
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !match.NewPairKey(m.UserA, m.UserB).Has(userID) {
		return nil, match.ErrUserNotInMatch
	}
	return m, nil
}

func (s *Service) reloadAndNotify(ctx context.Context, matchID, reason string) (*db.Match, error) {
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	s.router.BroadcastToPair(context.WithoutCancel(ctx), match.NewPairKey(m.UserA, m.UserB), wire.Event{
		Type:    wire.EventMatchUpdated,
		Payload: wire.MatchUpdatedPayload{Match: ToWire(m), Reason: reason},
	})
	return m, nil
}

// lookupItem never fails the caller; the item is enrichment only.
func (s *Service) lookupItem(ctx context.Context, itemID string) *wire.Item {
	it, err := s.catalog.Get(ctx, itemID)
	if err != nil {
		s.log.Warn("catalog lookup failed", "item", itemID, "err", err)
		return nil
	}
	return it
}

func stateOf(m *db.Match) match.State {
	return match.State{
		Status:         match.Status(m.Status),
		CreatedAt:      m.CreatedAt,
		CookDate:       m.CookDate,
		LastActivityAt: m.LastActivityAt,
	}
}
