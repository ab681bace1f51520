package deskhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BridgeAid/MatchBox/internal/integrations/ticketing"
	"github.com/pkg/errors"
)

// Client talks to a Zendesk-style helpdesk REST API.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9100"
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type ticketBody struct {
	Ticket struct {
		ID      uint64 `json:"id,omitempty"`
		Subject string `json:"subject,omitempty"`
		Status  string `json:"status,omitempty"`
		Comment *struct {
			Body string `json:"body"`
		} `json:"comment,omitempty"`
	} `json:"ticket"`
}

type userBody struct {
	User struct {
		ID    uint64 `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"user"`
}

func (c *Client) CreateTicket(ctx context.Context, t ticketing.Ticket) (*ticketing.TicketRef, error) {
	return c.sendTicket(ctx, http.MethodPost, "/api/v2/tickets.json", t)
}

func (c *Client) UpdateTicket(ctx context.Context, t ticketing.Ticket) (*ticketing.TicketRef, error) {
	if t.ID == 0 {
		return nil, errors.New("ticket id is required for update")
	}
	return c.sendTicket(ctx, http.MethodPut, fmt.Sprintf("/api/v2/tickets/%d.json", t.ID), t)
}

func (c *Client) GetUser(ctx context.Context, externalID uint64) (*ticketing.UserInfo, error) {
	u, err := c.endpoint(fmt.Sprintf("/api/v2/users/%d.json", externalID))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("helpdesk http %d", resp.StatusCode)
	}

	var body userBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "decode user")
	}
	return &ticketing.UserInfo{
		ID:    body.User.ID,
		Name:  body.User.Name,
		Email: body.User.Email,
		Phone: body.User.Phone,
	}, nil
}

func (c *Client) sendTicket(ctx context.Context, method, path string, t ticketing.Ticket) (*ticketing.TicketRef, error) {
	u, err := c.endpoint(path)
	if err != nil {
		return nil, err
	}

	var body ticketBody
	body.Ticket.ID = t.ID
	body.Ticket.Subject = t.Subject
	body.Ticket.Status = t.Status
	if t.Comment != "" {
		body.Ticket.Comment = &struct {
			Body string `json:"body"`
		}{Body: t.Comment}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal ticket")
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("helpdesk http %d", resp.StatusCode)
	}

	var out ticketBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode ticket")
	}
	return &ticketing.TicketRef{ID: out.Ticket.ID}, nil
}

func (c *Client) endpoint(path string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", errors.Wrap(err, "parse base url")
	}
	u.Path = path
	return u.String(), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
