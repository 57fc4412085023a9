package types

import "time"

// Review is a user-authored rating for a location. Reviews live only in the
// remote store; they are never mirrored into the local cache.
type Review struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Rating    float64   `json:"rating"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
