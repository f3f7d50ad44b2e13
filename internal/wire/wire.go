// Package wire is the JSON contract shared by the gRPC API, the live channel
// server and the live channel client.
package wire

import (
	"encoding/json"
	"time"
)

// Live channel event types. Lifecycle events (stateChange, connected,
// disconnected, error, maxReconnectAttemptsReached) are raised locally by the
// client manager; the rest travel over the wire.
const (
	EventNewMatch        = "newMatch"
	EventMatchUpdated    = "matchUpdated"
	EventPartnerOnline   = "partnerOnline"
	EventPartnerOffline  = "partnerOffline"
	EventPartnerActivity = "partnerActivity"
	EventError           = "error"

	// client -> server
	EventCheckPartnerStatus = "checkPartnerStatus"
	EventActivity           = "activity"
	EventHeartbeat          = "heartbeat"
)

// Event is an outbound message before encoding.
type Event struct {
	Type    string
	Payload any
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		Payload any    `json:"payload,omitempty"`
	}{e.Type, e.Payload})
}

// Envelope is a decoded message with its payload left raw.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func Decode(b []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(b, &env)
	return env, err
}

type Item struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Cuisine     string `json:"cuisine,omitempty"`
}

type StatusEntry struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

type Note struct {
	UserID string    `json:"userId"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

type Match struct {
	ID                 string         `json:"id"`
	UserA              string         `json:"userA"`
	UserB              string         `json:"userB"`
	ItemID             string         `json:"itemId"`
	Status             string         `json:"status"`
	StatusHistory      []StatusEntry  `json:"statusHistory"`
	CreatedAt          time.Time      `json:"createdAt"`
	CookDate           *time.Time     `json:"cookDate,omitempty"`
	Ratings            map[string]int `json:"ratings"`
	AverageRating      *float64       `json:"averageRating,omitempty"`
	MatchToCookSeconds *int64         `json:"matchToCookSeconds,omitempty"`
	LastActivityAt     time.Time      `json:"lastActivityAt"`
	Notes              []Note         `json:"notes"`
}

type NewMatchPayload struct {
	Match Match `json:"match"`
	Item  *Item `json:"item,omitempty"`
}

type MatchUpdatedPayload struct {
	Match  Match  `json:"match"`
	Reason string `json:"reason"`
}

type PresencePayload struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// ActivityPayload is what a client sends as "activity" and what the partner
// receives as "partnerActivity" (with UserID filled in by the server).
type ActivityPayload struct {
	UserID   string          `json:"userId,omitempty"`
	Activity string          `json:"activity"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
