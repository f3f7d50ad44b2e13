package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/oggyb/swipecook/internal/db"
	"github.com/oggyb/swipecook/internal/match"
)

// UserRepository reads users and maintains the symmetric partner link.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

// EnsureUser creates the user row if it does not exist yet.
func (r *UserRepository) EnsureUser(ctx context.Context, userID string) error {
	return ensureUser(r.db.WithContext(ctx), userID)
}

// Get returns the user or match.ErrUserNotFound.
func (r *UserRepository) Get(ctx context.Context, userID string) (*db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).First(&u, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", match.ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// PartnerOf returns the partner id, or match.ErrNotPartnered when the user
// is unknown or unpaired.
func (r *UserRepository) PartnerOf(ctx context.Context, userID string) (string, error) {
	var u db.User
	err := r.db.WithContext(ctx).Select("id", "partner_id").First(&u, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", match.ErrNotPartnered
	}
	if err != nil {
		return "", err
	}
	if u.PartnerID == nil || *u.PartnerID == "" {
		return "", match.ErrNotPartnered
	}
	return *u.PartnerID, nil
}

// LinkPartners pairs two users symmetrically.
//
// Behavior:
//   - Creates either user row if missing.
//   - Linking an existing pair again is a no-op.
//   - If either user has a different partner → match.ErrAlreadyPartnered.
//
// Each side is a conditional update, so two racing links cannot leave a
// one-sided pairing: the loser's transaction rolls back.
func (r *UserRepository) LinkPartners(ctx context.Context, a, b string) error {
	if a == "" || b == "" || a == b {
		return fmt.Errorf("cannot pair %q with %q", a, b)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range []string{a, b} {
			if err := ensureUser(tx, id); err != nil {
				return err
			}
		}
		if err := setPartner(tx, a, b); err != nil {
			return err
		}
		return setPartner(tx, b, a)
	})
}

func setPartner(tx *gorm.DB, userID, partnerID string) error {
	res := tx.Model(&db.User{}).
		Where("id = ? AND (partner_id IS NULL OR partner_id = ?)", userID, partnerID).
		Update("partner_id", partnerID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// mysql reports 0 affected rows when the value is unchanged
	var u db.User
	if err := tx.Select("id", "partner_id").First(&u, "id = ?", userID).Error; err != nil {
		return err
	}
	if u.PartnerID != nil && *u.PartnerID == partnerID {
		return nil
	}
	return fmt.Errorf("%w: %s", match.ErrAlreadyPartnered, userID)
}
