package deskhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BridgeAid/MatchBox/internal/integrations/ticketing"
	"github.com/stretchr/testify/require"
)

func TestClient_UpdateTicket_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/v2/tickets/42.json", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		comment, ok := body["ticket"]["comment"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "matched with a volunteer", comment["body"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ticket":{"id":42,"status":"open"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	ref, err := c.UpdateTicket(context.Background(), ticketing.Ticket{
		ID:      42,
		Status:  "open",
		Comment: "matched with a volunteer",
	})
	require.NoError(t, err)
	require.Equal(t, uint64(42), ref.ID)
}

func TestClient_UpdateTicket_RequiresID(t *testing.T) {
	c := New("http://localhost:9100", "")
	_, err := c.UpdateTicket(context.Background(), ticketing.Ticket{Comment: "x"})
	require.Error(t, err)
}

func TestClient_CreateTicket_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, err := c.CreateTicket(context.Background(), ticketing.Ticket{Subject: "help request"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "helpdesk http 502")
}

func TestClient_GetUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/users/7.json" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"user":{"id":7,"name":"Ana","email":"ana@example.org","phone":"+55 11 91234-5678"}}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	u, err := c.GetUser(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, "Ana", u.Name)
	require.Equal(t, "ana@example.org", u.Email)

	// Unknown user is a nil result, not an error.
	u, err = c.GetUser(context.Background(), 8)
	require.NoError(t, err)
	require.Nil(t, u)
}
