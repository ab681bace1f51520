package matching_api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BridgeAid/MatchBox/internal/models"
	"github.com/BridgeAid/MatchBox/internal/services/matching"
	"github.com/BridgeAid/MatchBox/internal/storage/pgmatch"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type svcStub struct {
	requester    *models.Requester
	match        *models.Match
	confirmation *models.MatchConfirmation
	volunteer    *models.VolunteerAvailability
	history      []*models.StatusHistoryEntry
	outcome      matching.Outcome
	err          error

	gotMatchType models.MatchType
}

func (s *svcStub) CreateRequester(ctx context.Context, in models.RequesterCreateInput) (*models.Requester, error) {
	return s.requester, s.err
}
func (s *svcStub) GetRequester(ctx context.Context, id uint64) (*models.Requester, error) {
	return s.requester, s.err
}
func (s *svcStub) MatchRequester(ctx context.Context, requesterID uint64, matchType models.MatchType, queueOnFailure bool) (matching.Outcome, error) {
	s.gotMatchType = matchType
	return s.outcome, s.err
}
func (s *svcStub) GetMatch(ctx context.Context, id uint64) (*models.Match, error) {
	return s.match, s.err
}
func (s *svcStub) ListRequesterHistory(ctx context.Context, requesterID uint64, limit, offset int) ([]*models.StatusHistoryEntry, error) {
	return s.history, s.err
}
func (s *svcStub) ReserveVolunteer(ctx context.Context, requesterID, volunteerID uint64) (*models.MatchConfirmation, error) {
	return s.confirmation, s.err
}
func (s *svcStub) UpsertVolunteer(ctx context.Context, v *models.VolunteerAvailability) (*models.VolunteerAvailability, error) {
	return s.volunteer, s.err
}

func newRouter(s Service) http.Handler {
	r := chi.NewRouter()
	New(s).Routes(r)
	return r
}

func TestCreateRequester_Created(t *testing.T) {
	now := time.Now().UTC()
	stub := &svcStub{requester: &models.Requester{
		ID: 1, Name: "Ana", Email: "ana@example.org",
		Category: models.CategoryPsychological,
		Status:   models.RequesterStatusOpen,
		City:     "unknown", State: "unknown",
		CreatedAt: now, UpdatedAt: now,
	}}
	srv := httptest.NewServer(newRouter(stub))
	defer srv.Close()

	body := []byte(`{"name":"Ana","email":"ana@example.org","category":"psychological"}`)
	resp, err := http.Post(srv.URL+"/v1/requesters", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var got models.Requester
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, uint64(1), got.ID)
	require.Equal(t, models.RequesterStatusOpen, got.Status)
}

func TestCreateRequester_BadBody(t *testing.T) {
	srv := httptest.NewServer(newRouter(&svcStub{}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/requesters", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRequester_NotFound(t *testing.T) {
	srv := httptest.NewServer(newRouter(&svcStub{err: pgmatch.ErrNotFound}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/requesters/99")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMatchRequester_ReturnsOutcome(t *testing.T) {
	stub := &svcStub{outcome: matching.Outcome{
		Kind:  matching.OutcomeMatch,
		Match: &models.Match{ID: 5, RequesterID: 1, VolunteerID: 2, Tier: models.TierIdeal},
	}}
	srv := httptest.NewServer(newRouter(stub))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/requesters/1/match", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got matching.Outcome
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, matching.OutcomeMatch, got.Kind)
	require.Equal(t, uint64(5), got.Match.ID)
}

func TestMatchRequester_MatchTypeField(t *testing.T) {
	stub := &svcStub{outcome: matching.NoMatchOutcome()}
	srv := httptest.NewServer(newRouter(stub))
	defer srv.Close()

	body := []byte(`{"matchType":"manual","queueOnFailure":false}`)
	resp, err := http.Post(srv.URL+"/v1/requesters/1/match", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, models.MatchTypeManual, stub.gotMatchType)

	// Empty body runs a system pass.
	resp, err = http.Post(srv.URL+"/v1/requesters/1/match", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, models.MatchTypeSystem, stub.gotMatchType)
}

func TestMatchRequester_InvalidID(t *testing.T) {
	srv := httptest.NewServer(newRouter(&svcStub{}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/requesters/abc/match", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetMatch_OK(t *testing.T) {
	stub := &svcStub{match: &models.Match{ID: 5, Status: models.MatchStatusWaitingContact}}
	srv := httptest.NewServer(newRouter(stub))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/matches/5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListRequesterHistory_OK(t *testing.T) {
	stub := &svcStub{history: []*models.StatusHistoryEntry{
		{ID: 1, EntityKind: models.HistoryKindRequester, EntityID: 1, OldStatus: "open", NewStatus: "matched"},
	}}
	srv := httptest.NewServer(newRouter(stub))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/requesters/1/history?limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Items []*models.StatusHistoryEntry `json:"items"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got.Items, 1)
}

func TestReserveVolunteer_Created(t *testing.T) {
	stub := &svcStub{confirmation: &models.MatchConfirmation{ID: 3, RequesterID: 1, VolunteerID: 2}}
	srv := httptest.NewServer(newRouter(stub))
	defer srv.Close()

	body := []byte(`{"volunteerId":2}`)
	resp, err := http.Post(srv.URL+"/v1/requesters/1/reservations", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestUpsertVolunteer_OK(t *testing.T) {
	stub := &svcStub{volunteer: &models.VolunteerAvailability{
		VolunteerID: 2, Name: "Bia", Category: models.CategoryLegal, MaxLoad: 2, IsAvailable: true,
	}}
	srv := httptest.NewServer(newRouter(stub))
	defer srv.Close()

	body := []byte(`{"volunteerId":2,"name":"Bia","email":"bia@example.org","category":"legal","maxLoad":2}`)
	resp, err := http.Post(srv.URL+"/v1/volunteers", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
