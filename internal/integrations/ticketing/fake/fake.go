package fake

import (
	"context"
	"sync"

	"github.com/BridgeAid/MatchBox/internal/integrations/ticketing"
)

// FakeClient is an in-memory ticketing collaborator for local runs and
// tests. Ids are handed out sequentially and every call is recorded.
type FakeClient struct {
	mu      sync.Mutex
	nextID  uint64
	Created []ticketing.Ticket
	Updated []ticketing.Ticket
}

func New() *FakeClient {
	return &FakeClient{nextID: 1}
}

func (f *FakeClient) CreateTicket(_ context.Context, t ticketing.Ticket) (*ticketing.TicketRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = f.nextID
	f.nextID++
	f.Created = append(f.Created, t)
	return &ticketing.TicketRef{ID: t.ID}, nil
}

func (f *FakeClient) UpdateTicket(_ context.Context, t ticketing.Ticket) (*ticketing.TicketRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Updated = append(f.Updated, t)
	return &ticketing.TicketRef{ID: t.ID}, nil
}

func (f *FakeClient) GetUser(_ context.Context, externalID uint64) (*ticketing.UserInfo, error) {
	return &ticketing.UserInfo{
		ID:    externalID,
		Name:  "fake user",
		Email: "fake@example.org",
	}, nil
}
