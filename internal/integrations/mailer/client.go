package mailer

import "context"

// Client is the notification collaborator. The boolean reports whether the
// provider accepted the message; callers only log the result.
type Client interface {
	Send(ctx context.Context, recipient, templateID string, vars map[string]string) (bool, error)
}
