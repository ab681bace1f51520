package ticketing

import "context"

// Ticket is the engine-side view of an external support ticket. Only the
// fields the engine writes are modeled here.
type Ticket struct {
	ID      uint64
	Subject string
	Status  string
	Comment string
}

type TicketRef struct {
	ID uint64
}

type UserInfo struct {
	ID    uint64
	Name  string
	Email string
	Phone string
}

// Client is the ticketing collaborator. A nil ref without an error still
// counts as "external update failed" for the caller; either way the match
// outcome already committed stands.
type Client interface {
	CreateTicket(ctx context.Context, t Ticket) (*TicketRef, error)
	UpdateTicket(ctx context.Context, t Ticket) (*TicketRef, error)
	GetUser(ctx context.Context, externalID uint64) (*UserInfo, error)
}
