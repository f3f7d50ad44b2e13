package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/swipecook/internal/db"
	"github.com/oggyb/swipecook/internal/match"
)

// MatchRepository persists matches and their history, ratings and notes.
//
// Every mutation is one transaction scoped to a single match row. Status
// changes are compare-and-swap on the current status, so two workers never
// both apply a transition from the same state.
type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

// CreateIfAbsent inserts the match for pair+item or returns the existing one.
//
// Behavior:
//   - INSERT ... ON CONFLICT DO NOTHING against idx_match_pair_item.
//   - Winner (1 row affected): appends the initial "matched" history entry and
//     increments total_matches for both users, all in the same transaction.
//   - Loser (0 rows): fetches and returns the row the winner created.
//
// created is true only for the winner.
func (r *MatchRepository) CreateIfAbsent(
	ctx context.Context,
	pair match.PairKey,
	itemID string,
	now time.Time,
) (m *db.Match, created bool, err error) {
	row := db.Match{
		ID:             uuid.NewString(),
		UserA:          pair.UserA,
		UserB:          pair.UserB,
		ItemID:         itemID,
		Status:         string(match.StatusMatched),
		CreatedAt:      now,
		LastActivityAt: now,
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_a"}, {Name: "user_b"}, {Name: "item_id"}},
				DoNothing: true,
			}).
			Create(&row)
		if res.Error != nil {
			return fmt.Errorf("insert match: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return match.ErrDuplicateMatchAttempt
		}

		entry := db.MatchStatusEntry{MatchID: row.ID, Status: row.Status, At: now}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		row.History = []db.MatchStatusEntry{entry}

		return tx.Model(&db.User{}).
			Where("id IN ?", pair.Members()).
			UpdateColumn("total_matches", gorm.Expr("total_matches + 1")).Error
	})

	switch {
	case err == nil:
		return &row, true, nil
	case errors.Is(err, match.ErrDuplicateMatchAttempt):
		existing, ferr := r.FindByPairItem(ctx, pair, itemID)
		if ferr != nil {
			return nil, false, fmt.Errorf("resolve duplicate match: %w", ferr)
		}
		return existing, false, nil
	default:
		return nil, false, err
	}
}

// FindByPairItem loads the match for pair+item with its children.
func (r *MatchRepository) FindByPairItem(ctx context.Context, pair match.PairKey, itemID string) (*db.Match, error) {
	var m db.Match
	err := r.withChildren(r.db.WithContext(ctx)).
		First(&m, "user_a = ? AND user_b = ? AND item_id = ?", pair.UserA, pair.UserB, itemID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, match.ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Get loads a match by id with history, ratings and notes.
func (r *MatchRepository) Get(ctx context.Context, id string) (*db.Match, error) {
	var m db.Match
	err := r.withChildren(r.db.WithContext(ctx)).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, match.ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListFilter narrows ListForUser.
type ListFilter struct {
	Status match.Status
	Limit  int
	Offset int
}

// ListForUser returns one page of the user's matches, newest first, and the
// total number of matches matching the filter.
func (r *MatchRepository) ListForUser(ctx context.Context, userID string, f ListFilter) ([]db.Match, int64, error) {
	base := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("(user_a = ? OR user_b = ?)", userID, userID)
	if f.Status != "" {
		base = base.Where("status = ?", string(f.Status))
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var matches []db.Match
	err := r.withChildren(base.Session(&gorm.Session{})).
		Order("created_at DESC, id DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&matches).Error
	if err != nil {
		return nil, 0, err
	}
	return matches, total, nil
}

// ApplyTransition writes a planned status change.
//
// Behavior:
//   - UPDATE ... WHERE id = ? AND status = plan.From (compare-and-swap).
//   - 0 rows → match.ErrConcurrentUpdate; the caller re-reads and re-plans.
//   - Appends the history entry and bumps last_activity_at.
//   - Entering cooked increments items_cooked for both members.
func (r *MatchRepository) ApplyTransition(ctx context.Context, m *db.Match, plan match.Plan) error {
	updates := map[string]any{
		"status":           string(plan.To),
		"cook_date":        plan.CookDate,
		"last_activity_at": plan.At,
	}
	if plan.MatchToCook != nil {
		updates["match_to_cook_seconds"] = int64(plan.MatchToCook.Seconds())
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.Match{}).
			Where("id = ? AND status = ?", m.ID, string(plan.From)).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return match.ErrConcurrentUpdate
		}

		entry := db.MatchStatusEntry{MatchID: m.ID, Status: string(plan.To), At: plan.At}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("insert history: %w", err)
		}

		if plan.To == match.StatusCooked {
			return tx.Model(&db.User{}).
				Where("id IN ?", []string{m.UserA, m.UserB}).
				UpdateColumn("items_cooked", gorm.Expr("items_cooked + 1")).Error
		}
		return nil
	})
}

// UpsertRating stores the member's rating, overwriting an earlier one, and
// bumps last_activity_at.
func (r *MatchRepository) UpsertRating(ctx context.Context, matchID, userID string, rating int, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := db.MatchRating{MatchID: matchID, UserID: userID, Rating: rating, UpdatedAt: now}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "match_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"rating", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("upsert rating: %w", err)
		}
		return touch(tx, matchID, now)
	})
}

// AddNote appends a note and bumps last_activity_at.
func (r *MatchRepository) AddNote(ctx context.Context, note *db.MatchNote) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(note).Error; err != nil {
			return fmt.Errorf("insert note: %w", err)
		}
		return touch(tx, note.MatchID, note.At)
	})
}

// ListStale returns matched matches idle since before cutoff, oldest first.
func (r *MatchRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]db.Match, error) {
	var matches []db.Match
	err := r.db.WithContext(ctx).
		Where("status = ? AND last_activity_at < ?", string(match.StatusMatched), cutoff).
		Order("last_activity_at ASC").
		Limit(limit).
		Find(&matches).Error
	return matches, err
}

// Expire moves one stale match to expired. It re-checks status and idleness
// in the UPDATE so activity racing the sweep wins. Returns false when the
// match was no longer eligible.
func (r *MatchRepository) Expire(ctx context.Context, matchID string, cutoff, now time.Time) (bool, error) {
	expired := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.Match{}).
			Where("id = ? AND status = ? AND last_activity_at < ?", matchID, string(match.StatusMatched), cutoff).
			Updates(map[string]any{
				"status":           string(match.StatusExpired),
				"last_activity_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		expired = true
		return tx.Create(&db.MatchStatusEntry{MatchID: matchID, Status: string(match.StatusExpired), At: now}).Error
	})
	return expired, err
}

func (r *MatchRepository) withChildren(q *gorm.DB) *gorm.DB {
	return q.
		Preload("History", func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") }).
		Preload("Ratings", func(tx *gorm.DB) *gorm.DB { return tx.Order("updated_at ASC, user_id ASC") }).
		Preload("Notes", func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") })
}

func touch(tx *gorm.DB, matchID string, now time.Time) error {
	return tx.Model(&db.Match{}).Where("id = ?", matchID).Update("last_activity_at", now).Error
}
