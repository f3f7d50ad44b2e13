package matching

import (
	"github.com/oggyb/swipecook/internal/db"
	"github.com/oggyb/swipecook/internal/match"
	"github.com/oggyb/swipecook/internal/wire"
)

// ToWire flattens a stored match into its client representation.
func ToWire(m *db.Match) wire.Match {
	out := wire.Match{
		ID:                 m.ID,
		UserA:              m.UserA,
		UserB:              m.UserB,
		ItemID:             m.ItemID,
		Status:             m.Status,
		StatusHistory:      make([]wire.StatusEntry, 0, len(m.History)),
		CreatedAt:          m.CreatedAt,
		CookDate:           m.CookDate,
		Ratings:            make(map[string]int, len(m.Ratings)),
		MatchToCookSeconds: m.MatchToCookSeconds,
		LastActivityAt:     m.LastActivityAt,
		Notes:              make([]wire.Note, 0, len(m.Notes)),
	}

	for _, h := range m.History {
		out.StatusHistory = append(out.StatusHistory, wire.StatusEntry{Status: h.Status, At: h.At})
	}
	for _, r := range m.Ratings {
		out.Ratings[r.UserID] = r.Rating
	}
	if avg, ok := match.AverageRating(out.Ratings); ok {
		out.AverageRating = &avg
	}
	for _, n := range m.Notes {
		out.Notes = append(out.Notes, wire.Note{UserID: n.UserID, Text: n.Text, At: n.At})
	}
	return out
}

func toWireList(ms []db.Match) []wire.Match {
	out := make([]wire.Match, 0, len(ms))
	for i := range ms {
		out = append(out, ToWire(&ms[i]))
	}
	return out
}
