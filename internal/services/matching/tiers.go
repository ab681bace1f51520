package matching

import (
	"github.com/BridgeAid/MatchBox/internal/models"
)

// IdealDistanceKm is the default maximum distance the Ideal tier accepts.
const IdealDistanceKm = 20.0

// SelectCandidate runs the Ideal -> Expanded -> Online cascade over an
// ordered candidate pool and returns the winner with the tier that produced
// it. idealKm bounds the Ideal tier. The first tier to produce a candidate
// wins; later tiers are not evaluated. Returns nil only when every tier
// declines (which for Online means the pool is empty).
func SelectCandidate(req *models.Requester, pool []*models.VolunteerAvailability, idealKm float64) (*models.VolunteerAvailability, models.MatchTier) {
	if v := matchIdeal(req, pool, idealKm); v != nil {
		return v, models.TierIdeal
	}
	if v := matchExpanded(req, pool); v != nil {
		return v, models.TierExpanded
	}
	if v := matchOnline(req, pool); v != nil {
		return v, models.TierOnline
	}
	return nil, ""
}

// matchIdeal picks the geographically closest candidate, and only if that
// minimum is within idealKm. Requires coordinates on both sides.
func matchIdeal(req *models.Requester, pool []*models.VolunteerAvailability, idealKm float64) *models.VolunteerAvailability {
	if !req.HasCoordinates() {
		return nil
	}
	best, dist := closestByDistance(req, pool)
	if best == nil || dist > idealKm {
		return nil
	}
	return best
}

// matchExpanded ignores coordinates and requires an exact (city, state)
// match. A requester whose location never resolved cannot expand-match.
func matchExpanded(req *models.Requester, pool []*models.VolunteerAvailability) *models.VolunteerAvailability {
	if req.City == models.LocationUnknown || req.State == models.LocationUnknown {
		return nil
	}
	for _, v := range pool {
		if v.City == req.City && v.State == req.State {
			return v
		}
	}
	return nil
}

// matchOnline is the last resort: prefer the closest in-state candidate,
// then the closest candidate anywhere, then plain pool order. With a
// non-empty pool it always returns somebody.
func matchOnline(req *models.Requester, pool []*models.VolunteerAvailability) *models.VolunteerAvailability {
	if len(pool) == 0 {
		return nil
	}

	if req.HasCoordinates() {
		if req.State != models.LocationUnknown {
			inState := make([]*models.VolunteerAvailability, 0, len(pool))
			for _, v := range pool {
				if v.State == req.State {
					inState = append(inState, v)
				}
			}
			if best, _ := closestByDistance(req, inState); best != nil {
				return best
			}
		}
		if best, _ := closestByDistance(req, pool); best != nil {
			return best
		}
	}

	return pool[0]
}

// closestByDistance returns the coordinate-bearing candidate nearest to the
// requester and its distance in km. Candidates without usable coordinates do
// not participate.
func closestByDistance(req *models.Requester, pool []*models.VolunteerAvailability) (*models.VolunteerAvailability, float64) {
	if !req.HasCoordinates() {
		return nil, 0
	}

	var best *models.VolunteerAvailability
	var bestDist float64
	for _, v := range pool {
		if !v.HasCoordinates() {
			continue
		}
		d := Distance(*req.Latitude, *req.Longitude, *v.Latitude, *v.Longitude)
		if best == nil || d < bestDist {
			best = v
			bestDist = d
		}
	}
	return best, bestDist
}

func removeVolunteer(pool []*models.VolunteerAvailability, volunteerID uint64) []*models.VolunteerAvailability {
	out := pool[:0]
	for _, v := range pool {
		if v.VolunteerID != volunteerID {
			out = append(out, v)
		}
	}
	return out
}
