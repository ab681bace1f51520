package matching

import (
	"testing"

	"github.com/BridgeAid/MatchBox/internal/models"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func saoPauloRequester() *models.Requester {
	return &models.Requester{
		ID:       1,
		Category: models.CategoryPsychological,
		Latitude: f64(-23.5505), Longitude: f64(-46.6333),
		City: "Sao Paulo", State: "SP",
		Status: models.RequesterStatusOpen,
	}
}

func TestSelectCandidate_IdealPicksClosestWithinRadius(t *testing.T) {
	req := saoPauloRequester()
	pool := []*models.VolunteerAvailability{
		// Campinas, ~90 km out.
		{VolunteerID: 10, Latitude: f64(-22.9056), Longitude: f64(-47.0608), City: "Campinas", State: "SP"},
		// Guarulhos, ~15 km out.
		{VolunteerID: 11, Latitude: f64(-23.4543), Longitude: f64(-46.5337), City: "Guarulhos", State: "SP"},
	}

	v, tier := SelectCandidate(req, pool, IdealDistanceKm)
	require.NotNil(t, v)
	require.Equal(t, uint64(11), v.VolunteerID)
	require.Equal(t, models.TierIdeal, tier)
}

func TestSelectCandidate_IdealRejectsBeyondRadius(t *testing.T) {
	req := saoPauloRequester()
	pool := []*models.VolunteerAvailability{
		// Campinas only: closest is ~90 km, beyond the ideal radius, but the
		// city/state do not match either, so online wins.
		{VolunteerID: 10, Latitude: f64(-22.9056), Longitude: f64(-47.0608), City: "Campinas", State: "SP"},
	}

	v, tier := SelectCandidate(req, pool, IdealDistanceKm)
	require.NotNil(t, v)
	require.Equal(t, uint64(10), v.VolunteerID)
	require.Equal(t, models.TierOnline, tier)
}

func TestSelectCandidate_ExpandedMatchesCityState(t *testing.T) {
	req := saoPauloRequester()
	req.Latitude, req.Longitude = nil, nil
	pool := []*models.VolunteerAvailability{
		{VolunteerID: 10, City: "Campinas", State: "SP"},
		{VolunteerID: 11, City: "Sao Paulo", State: "SP"},
	}

	v, tier := SelectCandidate(req, pool, IdealDistanceKm)
	require.NotNil(t, v)
	require.Equal(t, uint64(11), v.VolunteerID)
	require.Equal(t, models.TierExpanded, tier)
}

func TestSelectCandidate_UnknownLocationNeverExpands(t *testing.T) {
	req := saoPauloRequester()
	req.Latitude, req.Longitude = nil, nil
	req.City, req.State = models.LocationUnknown, models.LocationUnknown
	pool := []*models.VolunteerAvailability{
		{VolunteerID: 10, City: models.LocationUnknown, State: models.LocationUnknown},
	}

	v, tier := SelectCandidate(req, pool, IdealDistanceKm)
	require.NotNil(t, v)
	require.Equal(t, models.TierOnline, tier)
}

func TestSelectCandidate_ZeroCoordinatesAreMissing(t *testing.T) {
	req := saoPauloRequester()
	req.Latitude, req.Longitude = f64(0), f64(0)
	req.City, req.State = models.LocationUnknown, models.LocationUnknown
	pool := []*models.VolunteerAvailability{
		{VolunteerID: 10, Latitude: f64(-23.4543), Longitude: f64(-46.5337), City: "Guarulhos", State: "SP"},
	}

	// (0, 0) must not place the requester in the Atlantic: ideal is skipped
	// and online falls back to pool order.
	v, tier := SelectCandidate(req, pool, IdealDistanceKm)
	require.NotNil(t, v)
	require.Equal(t, models.TierOnline, tier)
}

func TestMatchOnline_PrefersClosestInState(t *testing.T) {
	req := saoPauloRequester()
	pool := []*models.VolunteerAvailability{
		// Rio, out of state, much further.
		{VolunteerID: 10, Latitude: f64(-22.9068), Longitude: f64(-43.1729), City: "Rio de Janeiro", State: "RJ"},
		// Campinas, in state.
		{VolunteerID: 11, Latitude: f64(-22.9056), Longitude: f64(-47.0608), City: "Campinas", State: "SP"},
	}

	v := matchOnline(req, pool)
	require.NotNil(t, v)
	require.Equal(t, uint64(11), v.VolunteerID)
}

func TestMatchOnline_FallsBackToGlobalClosest(t *testing.T) {
	req := saoPauloRequester()
	pool := []*models.VolunteerAvailability{
		{VolunteerID: 10, Latitude: f64(-22.9068), Longitude: f64(-43.1729), City: "Rio de Janeiro", State: "RJ"},
		{VolunteerID: 11, Latitude: f64(-15.7939), Longitude: f64(-47.8828), City: "Brasilia", State: "DF"},
	}

	v := matchOnline(req, pool)
	require.NotNil(t, v)
	require.Equal(t, uint64(10), v.VolunteerID)
}

func TestMatchOnline_PoolOrderWithoutCoordinates(t *testing.T) {
	req := saoPauloRequester()
	req.Latitude, req.Longitude = nil, nil
	pool := []*models.VolunteerAvailability{
		{VolunteerID: 10},
		{VolunteerID: 11},
	}

	v := matchOnline(req, pool)
	require.NotNil(t, v)
	require.Equal(t, uint64(10), v.VolunteerID)
}

func TestSelectCandidate_EmptyPool(t *testing.T) {
	v, tier := SelectCandidate(saoPauloRequester(), nil, IdealDistanceKm)
	require.Nil(t, v)
	require.Empty(t, tier)
}

func TestSelectCandidate_CustomIdealRadius(t *testing.T) {
	req := saoPauloRequester()
	pool := []*models.VolunteerAvailability{
		// Campinas, ~90 km out: beyond the default radius, inside 100 km.
		{VolunteerID: 10, Latitude: f64(-22.9056), Longitude: f64(-47.0608), City: "Campinas", State: "SP"},
	}

	v, tier := SelectCandidate(req, pool, IdealDistanceKm)
	require.Equal(t, models.TierOnline, tier)
	require.Equal(t, uint64(10), v.VolunteerID)

	v, tier = SelectCandidate(req, pool, 100)
	require.Equal(t, models.TierIdeal, tier)
	require.Equal(t, uint64(10), v.VolunteerID)
}

func TestRemoveVolunteer(t *testing.T) {
	pool := []*models.VolunteerAvailability{
		{VolunteerID: 10}, {VolunteerID: 11}, {VolunteerID: 12},
	}
	pool = removeVolunteer(pool, 11)
	require.Len(t, pool, 2)
	require.Equal(t, uint64(10), pool[0].VolunteerID)
	require.Equal(t, uint64(12), pool[1].VolunteerID)
}
