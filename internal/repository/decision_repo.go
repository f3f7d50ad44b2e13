package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/swipecook/internal/db"
	"github.com/oggyb/swipecook/internal/match"
)

// DecisionRepository provides data access methods for the Decision model.
// Decisions are write-once: there is no update path.
type DecisionRepository struct {
	db *gorm.DB
}

// NewDecisionRepository creates a new repository bound to the given DB connection.
func NewDecisionRepository(database *gorm.DB) *DecisionRepository {
	return &DecisionRepository{db: database}
}

// RecordDecision stores a user's decision on an item.
//
// Behavior:
//   - Creates the user row on first sight of the identity.
//   - If (user_id, item_id) already exists → match.ErrAlreadyDecided, nothing changes.
//   - Otherwise inserts the decision and increments users.total_decisions
//     in the same transaction.
//
// Example:
//
//	repo.RecordDecision(ctx, "u1", "item-007", true) // u1 liked item-007
func (r *DecisionRepository) RecordDecision(
	ctx context.Context,
	userID, itemID string,
	positive bool,
) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUser(tx, userID); err != nil {
			return err
		}

		decision := db.Decision{UserID: userID, ItemID: itemID, Positive: positive}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
			DoNothing: true,
		}).Create(&decision)
		if res.Error != nil {
			return fmt.Errorf("insert decision: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return match.ErrAlreadyDecided
		}

		return tx.Model(&db.User{}).
			Where("id = ?", userID).
			UpdateColumn("total_decisions", gorm.Expr("total_decisions + 1")).Error
	})
}

// HasPositive checks whether a user liked an item.
//
// Used by the match detector on the partner's side.
func (r *DecisionRepository) HasPositive(
	ctx context.Context,
	userID, itemID string,
) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Decision{}).
		Where("user_id = ? AND item_id = ? AND positive = ?", userID, itemID, true).
		Count(&count).Error
	return count > 0, err
}

// Get returns one decision or gorm.ErrRecordNotFound.
func (r *DecisionRepository) Get(ctx context.Context, userID, itemID string) (*db.Decision, error) {
	var d db.Decision
	if err := r.db.WithContext(ctx).First(&d, "user_id = ? AND item_id = ?", userID, itemID).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// MutualLike is a pair of partners who both liked ItemID.
type MutualLike struct {
	UserA  string
	UserB  string
	ItemID string
}

// ListUnmatchedMutual finds items both mutual partners liked that have no
// match row yet. Each pair appears once per orientation.
func (r *DecisionRepository) ListUnmatchedMutual(ctx context.Context, limit int) ([]MutualLike, error) {
	var out []MutualLike
	err := r.db.WithContext(ctx).
		Table("decisions AS d1").
		Select("d1.user_id AS user_a, d2.user_id AS user_b, d1.item_id AS item_id").
		Joins("JOIN users u1 ON u1.id = d1.user_id").
		Joins("JOIN decisions d2 ON d2.user_id = u1.partner_id AND d2.item_id = d1.item_id").
		Joins("JOIN users u2 ON u2.id = d2.user_id AND u2.partner_id = d1.user_id").
		Joins("LEFT JOIN matches m ON m.item_id = d1.item_id AND " +
			"((m.user_a = d1.user_id AND m.user_b = d2.user_id) OR (m.user_a = d2.user_id AND m.user_b = d1.user_id))").
		Where("d1.positive = ? AND d2.positive = ? AND m.id IS NULL", true, true).
		Order("d1.item_id, d1.user_id").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list unmatched mutual likes: %w", err)
	}
	return out, nil
}

// ListItems returns the user's liked and disliked item ids, oldest first.
func (r *DecisionRepository) ListItems(ctx context.Context, userID string) (liked, disliked []string, err error) {
	var decisions []db.Decision
	err = r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, item_id ASC").
		Find(&decisions).Error
	if err != nil {
		return nil, nil, err
	}

	liked, disliked = []string{}, []string{}
	for _, d := range decisions {
		if d.Positive {
			liked = append(liked, d.ItemID)
		} else {
			disliked = append(disliked, d.ItemID)
		}
	}
	return liked, disliked, nil
}

// ensureUser inserts an empty user row if the id is new.
func ensureUser(tx *gorm.DB, userID string) error {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&db.User{ID: userID}).Error
	if err != nil {
		return fmt.Errorf("ensure user %s: %w", userID, err)
	}
	return nil
}
