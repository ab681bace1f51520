package models

import "time"

// Support categories a requester can ask for and a volunteer can serve.
type SupportCategory string

const (
	CategoryPsychological SupportCategory = "psychological"
	CategoryLegal         SupportCategory = "legal"
)

func (c SupportCategory) Valid() bool {
	switch c {
	case CategoryPsychological, CategoryLegal:
		return true
	}
	return false
}

// Requester lifecycle. Closed and Duplicated are terminal: they are set at
// intake (international / duplicate records) and the engine never matches
// a requester in a terminal status.
type RequesterStatus string

const (
	RequesterStatusOpen            RequesterStatus = "open"
	RequesterStatusMatched         RequesterStatus = "matched"
	RequesterStatusPublicService   RequesterStatus = "public_service"
	RequesterStatusWaitingForMatch RequesterStatus = "waiting_for_match"
	RequesterStatusSocialWorker    RequesterStatus = "social_worker"
	RequesterStatusClosed          RequesterStatus = "closed"
	RequesterStatusDuplicated      RequesterStatus = "duplicated"
)

func (s RequesterStatus) Terminal() bool {
	return s == RequesterStatusClosed || s == RequesterStatusDuplicated
}

type MatchType string

const (
	MatchTypeSystem MatchType = "system"
	MatchTypeManual MatchType = "manual"
)

type MatchTier string

const (
	TierIdeal    MatchTier = "ideal"
	TierExpanded MatchTier = "expanded"
	TierOnline   MatchTier = "online"
	TierManual   MatchTier = "manual"
)

type MatchStatus string

const (
	MatchStatusWaitingContact MatchStatus = "waiting_contact"
	MatchStatusInContact      MatchStatus = "in_contact"
	MatchStatusCompleted      MatchStatus = "completed"
	MatchStatusAbandoned      MatchStatus = "abandoned"
)

// Volunteer condition as shown to operators. FullyBooked means the load
// reached a level that disqualifies further matches.
type VolunteerCondition string

const (
	ConditionOpen        VolunteerCondition = "open"
	ConditionFullyBooked VolunteerCondition = "fully_booked"
)

// LocationUnknown is the sentinel written at intake when geocoding could not
// resolve a city or state. An unknown location never expand-matches.
const LocationUnknown = "unknown"

type Requester struct {
	ID       uint64  `json:"id"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	TicketID *uint64 `json:"ticketId,omitempty"`

	Category SupportCategory `json:"category"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	City      string   `json:"city"`
	State     string   `json:"state"`

	Status RequesterStatus `json:"status"`

	// Queue bookkeeping for requesters in waiting_for_match.
	AttemptCount  int32      `json:"attemptCount"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasCoordinates reports whether the requester can participate in distance
// comparisons. Exact-zero coordinates are treated as missing.
func (r *Requester) HasCoordinates() bool {
	return hasCoordinates(r.Latitude, r.Longitude)
}

type RequesterCreateInput struct {
	Name      string
	Email     string
	TicketID  *uint64
	Category  SupportCategory
	Latitude  *float64
	Longitude *float64
	City      string
	State     string
	Country   string
}

type VolunteerAvailability struct {
	VolunteerID uint64  `json:"volunteerId"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	TicketID    *uint64 `json:"ticketId,omitempty"`

	Category SupportCategory `json:"category"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	City      string   `json:"city"`
	State     string   `json:"state"`

	CurrentLoad int32              `json:"currentLoad"`
	MaxLoad     int32              `json:"maxLoad"`
	IsAvailable bool               `json:"isAvailable"`
	Condition   VolunteerCondition `json:"condition"`

	UpdatedAt time.Time `json:"updatedAt"`
}

func (v *VolunteerAvailability) HasCoordinates() bool {
	return hasCoordinates(v.Latitude, v.Longitude)
}

func hasCoordinates(lat, lon *float64) bool {
	if lat == nil || lon == nil {
		return false
	}
	return *lat != 0 || *lon != 0
}

type Match struct {
	ID          uint64 `json:"id"`
	RequesterID uint64 `json:"requesterId"`
	VolunteerID uint64 `json:"volunteerId"`

	RequesterTicketID *uint64 `json:"requesterTicketId,omitempty"`
	VolunteerTicketID *uint64 `json:"volunteerTicketId,omitempty"`

	Category SupportCategory `json:"category"`
	Type     MatchType       `json:"type"`
	Tier     MatchTier       `json:"tier"`
	Status   MatchStatus     `json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MatchConfirmation reserves a volunteer for a requester ahead of a manual
// confirmation. Its only role in the engine is to keep that volunteer out of
// the requester's candidate pool.
type MatchConfirmation struct {
	ID          uint64          `json:"id"`
	RequesterID uint64          `json:"requesterId"`
	VolunteerID uint64          `json:"volunteerId"`
	Category    SupportCategory `json:"category"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type HistoryKind string

const (
	HistoryKindRequester HistoryKind = "requester"
	HistoryKindVolunteer HistoryKind = "volunteer"
	HistoryKindMatch     HistoryKind = "match"
)

// StatusHistoryEntry is one row of the append-only audit trail. Entries are
// written by the same transaction that performs the owning mutation.
type StatusHistoryEntry struct {
	ID         uint64      `json:"id"`
	EntityKind HistoryKind `json:"entityKind"`
	EntityID   uint64      `json:"entityId"`
	OldStatus  string      `json:"oldStatus"`
	NewStatus  string      `json:"newStatus"`
	CreatedAt  time.Time   `json:"createdAt"`
}
