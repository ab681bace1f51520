package messages

import "time"

// Default topic names; overridable via config.
const (
	TopicRequesterCreated = "requester.created"
	TopicMatchOutcome     = "match.outcome"
)

// RequesterCreated announces a fresh intake record that is ready for a
// matching pass.
type RequesterCreated struct {
	RequesterID uint64    `json:"requester_id"`
	Category    string    `json:"category,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MatchOutcome reports how one engine pass for a requester ended: a match,
// a queue entry, or a fallback route.
type MatchOutcome struct {
	RequesterID uint64  `json:"requester_id"`
	Kind        string  `json:"kind"`
	MatchID     *uint64 `json:"match_id,omitempty"`
	VolunteerID *uint64 `json:"volunteer_id,omitempty"`
	Tier        string  `json:"tier,omitempty"`
	Status      string  `json:"status,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}
