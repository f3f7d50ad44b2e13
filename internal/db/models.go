package db

import (
	"time"
)

// User is the local projection of an identity plus its pairing and counters.
// Ids come from the identity service and are opaque strings.
type User struct {
	ID             string    `gorm:"primaryKey;size:64"`
	PartnerID      *string   `gorm:"size:64;index"`
	TotalDecisions int64     `gorm:"not null;default:0"`
	TotalMatches   int64     `gorm:"not null;default:0"`
	ItemsCooked    int64     `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// Decision is a user's immutable positive/negative rating of one item.
//
// Composite PK: (UserID, ItemID)
//   - One decision per user and item, ever. A second insert conflicts.
//
// Indexes:
//   - idx_item_positive_user(item_id, positive, user_id)
//     Serves the partner lookup of the match detector.
type Decision struct {
	UserID    string    `gorm:"primaryKey;size:64"`
	ItemID    string    `gorm:"primaryKey;size:64;index:idx_item_positive_user,priority:1"`
	Positive  bool      `gorm:"not null;index:idx_item_positive_user,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Item is the catalog projection used to enrich match events.
type Item struct {
	ID          string `gorm:"primaryKey;size:64"`
	Title       string `gorm:"size:255;not null"`
	Description string `gorm:"size:1024"`
	ImageURL    string `gorm:"size:512"`
	Cuisine     string `gorm:"size:64"`
	CreatedAt   time.Time
}

// Match is created exactly once per unordered user pair and item.
//
// Unique index idx_match_pair_item(user_a, user_b, item_id) is what makes
// creation race-free: user_a < user_b always, so both partners map to the
// same key and the second insert conflicts.
//
// idx_match_status_activity(status, last_activity_at) serves the expiry sweep.
type Match struct {
	ID                 string     `gorm:"primaryKey;size:36"`
	UserA              string     `gorm:"size:64;not null;uniqueIndex:idx_match_pair_item,priority:1;index:idx_match_user_a"`
	UserB              string     `gorm:"size:64;not null;uniqueIndex:idx_match_pair_item,priority:2;index:idx_match_user_b"`
	ItemID             string     `gorm:"size:64;not null;uniqueIndex:idx_match_pair_item,priority:3"`
	Status             string     `gorm:"size:16;not null;index:idx_match_status_activity,priority:1"`
	CookDate           *time.Time
	MatchToCookSeconds *int64
	CreatedAt          time.Time `gorm:"not null"`
	LastActivityAt     time.Time `gorm:"not null;index:idx_match_status_activity,priority:2"`

	History []MatchStatusEntry `gorm:"foreignKey:MatchID"`
	Ratings []MatchRating      `gorm:"foreignKey:MatchID"`
	Notes   []MatchNote        `gorm:"foreignKey:MatchID"`
}

// MatchStatusEntry is one row of the append-only status history.
// Insertion order (ID) is the history order.
type MatchStatusEntry struct {
	ID      uint64    `gorm:"primaryKey;autoIncrement"`
	MatchID string    `gorm:"size:36;not null;index"`
	Status  string    `gorm:"size:16;not null"`
	At      time.Time `gorm:"not null"`
}

// MatchRating holds at most one rating per member. Composite PK makes the
// upsert overwrite.
type MatchRating struct {
	MatchID   string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"primaryKey;size:64"`
	Rating    int       `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type MatchNote struct {
	ID      uint64    `gorm:"primaryKey;autoIncrement"`
	MatchID string    `gorm:"size:36;not null;index"`
	UserID  string    `gorm:"size:64;not null"`
	Text    string    `gorm:"size:1000;not null"`
	At      time.Time `gorm:"not null"`
}

// Models lists every table in migration order.
func Models() []any {
	return []any{
		&User{},
		&Decision{},
		&Item{},
		&Match{},
		&MatchStatusEntry{},
		&MatchRating{},
		&MatchNote{},
	}
}
