package fake

import (
	"context"
	"sync"
)

type Sent struct {
	Recipient  string
	TemplateID string
	Vars       map[string]string
}

// FakeClient records every send and always reports acceptance.
type FakeClient struct {
	mu   sync.Mutex
	Sent []Sent
}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Send(_ context.Context, recipient, templateID string, vars map[string]string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, Sent{Recipient: recipient, TemplateID: templateID, Vars: vars})
	return true, nil
}
