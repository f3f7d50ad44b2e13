package db

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var seedItems = []Item{
	{ID: "item-001", Title: "Shakshuka", Cuisine: "middle-eastern", Description: "Eggs poached in spiced tomato sauce"},
	{ID: "item-002", Title: "Pad Thai", Cuisine: "thai", Description: "Rice noodles, tamarind, peanuts"},
	{ID: "item-003", Title: "Margherita Pizza", Cuisine: "italian", Description: "Tomato, mozzarella, basil"},
	{ID: "item-004", Title: "Chana Masala", Cuisine: "indian", Description: "Chickpeas in onion tomato gravy"},
	{ID: "item-005", Title: "Bibimbap", Cuisine: "korean", Description: "Rice bowl with vegetables and gochujang"},
	{ID: "item-006", Title: "Fish Tacos", Cuisine: "mexican", Description: "Crispy fish, slaw, lime crema"},
	{ID: "item-007", Title: "Ramen", Cuisine: "japanese", Description: "Pork broth, noodles, soft egg"},
	{ID: "item-008", Title: "Greek Salad", Cuisine: "greek", Description: "Tomato, cucumber, feta, olives"},
	{ID: "item-009", Title: "Beef Bourguignon", Cuisine: "french", Description: "Beef braised in red wine"},
	{ID: "item-010", Title: "Falafel Wrap", Cuisine: "middle-eastern", Description: "Chickpea fritters, tahini, pickles"},
}

// SeedTestData resets the database and inserts catalog items plus partnered users.
//
// Behavior:
//  1. Clears matches (with history, ratings, notes), decisions, users and items.
//  2. Inserts the demo catalog.
//  3. Creates `pairs` couples user1<->user2, user3<->user4, ...
//
// Works on mysql, postgres and sqlite.
func SeedTestData(db *gorm.DB, pairs int, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	for _, table := range []string{"match_notes", "match_ratings", "match_status_entries", "matches", "decisions", "users", "items"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	log.Info("cleared existing data")

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seedItems).Error; err != nil {
		return fmt.Errorf("failed to seed items: %w", err)
	}
	log.Info("seeded items", "count", len(seedItems))

	for i := 0; i < pairs; i++ {
		a := fmt.Sprintf("user%d", 2*i+1)
		b := fmt.Sprintf("user%d", 2*i+2)
		users := []User{
			{ID: a, PartnerID: &b},
			{ID: b, PartnerID: &a},
		}
		if err := db.Create(&users).Error; err != nil {
			return fmt.Errorf("failed to seed pair %s/%s: %w", a, b, err)
		}
	}
	log.Info("seeded partnered users", "pairs", pairs)

	return nil
}

// SeedItems inserts the demo catalog only. Existing ids are left alone.
func SeedItems(db *gorm.DB) error {
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seedItems).Error
}
