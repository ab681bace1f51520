package resthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// Client posts template emails to a transactional mail REST API.
type Client struct {
	baseURL string
	apiKey  string
	from    string
	httpc   *http.Client
}

func New(baseURL, apiKey, from string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9200"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		from:    from,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendBody struct {
	From       string            `json:"from"`
	To         string            `json:"to"`
	TemplateID string            `json:"template_id"`
	Variables  map[string]string `json:"variables,omitempty"`
}

func (c *Client) Send(ctx context.Context, recipient, templateID string, vars map[string]string) (bool, error) {
	if recipient == "" {
		return false, errors.New("recipient is required")
	}
	if templateID == "" {
		return false, errors.New("templateId is required")
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return false, errors.Wrap(err, "parse base url")
	}
	u.Path = "/v1/mail/send"

	b, err := json.Marshal(sendBody{
		From:       c.from,
		To:         recipient,
		TemplateID: templateID,
		Variables:  vars,
	})
	if err != nil {
		return false, errors.Wrap(err, "marshal mail")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(b))
	if err != nil {
		return false, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return false, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return false, fmt.Errorf("mailer http %d", resp.StatusCode)
	}
	return true, nil
}
