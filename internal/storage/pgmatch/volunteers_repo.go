package pgmatch

import (
	"context"
	"time"

	"github.com/BridgeAid/MatchBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const volunteerColumns = `
  volunteer_id, name, email, ticket_id, category,
  latitude, longitude, city, state,
  current_load, max_load, is_available, condition, updated_at`

func scanVolunteer(row pgx.Row) (*models.VolunteerAvailability, error) {
	var v models.VolunteerAvailability
	if err := row.Scan(
		&v.VolunteerID, &v.Name, &v.Email, &v.TicketID, &v.Category,
		&v.Latitude, &v.Longitude, &v.City, &v.State,
		&v.CurrentLoad, &v.MaxLoad, &v.IsAvailable, &v.Condition, &v.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Storage) UpsertVolunteer(ctx context.Context, v *models.VolunteerAvailability) (*models.VolunteerAvailability, error) {
	now := time.Now().UTC()

	city := v.City
	if city == "" {
		city = models.LocationUnknown
	}
	state := v.State
	if state == "" {
		state = models.LocationUnknown
	}
	maxLoad := v.MaxLoad
	if maxLoad <= 0 {
		maxLoad = 1
	}
	cond := v.Condition
	if cond == "" {
		cond = models.ConditionOpen
	}

	row := s.db.QueryRow(ctx, `
INSERT INTO volunteer_availability (
  volunteer_id, name, email, ticket_id, category, latitude, longitude,
  city, state, current_load, max_load, is_available, condition, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (volunteer_id) DO UPDATE SET
  name = EXCLUDED.name,
  email = EXCLUDED.email,
  ticket_id = EXCLUDED.ticket_id,
  category = EXCLUDED.category,
  latitude = EXCLUDED.latitude,
  longitude = EXCLUDED.longitude,
  city = EXCLUDED.city,
  state = EXCLUDED.state,
  max_load = EXCLUDED.max_load,
  is_available = EXCLUDED.is_available,
  condition = EXCLUDED.condition,
  updated_at = EXCLUDED.updated_at
RETURNING`+volunteerColumns,
		v.VolunteerID, v.Name, v.Email, v.TicketID, v.Category,
		v.Latitude, v.Longitude, city, state,
		v.CurrentLoad, maxLoad, v.IsAvailable, cond, now)

	out, err := scanVolunteer(row)
	if err != nil {
		return nil, errors.Wrap(err, "upsert volunteer")
	}
	return out, nil
}

func (s *Storage) GetVolunteer(ctx context.Context, volunteerID uint64) (*models.VolunteerAvailability, error) {
	row := s.db.QueryRow(ctx, `SELECT`+volunteerColumns+` FROM volunteer_availability WHERE volunteer_id = $1`, volunteerID)
	v, err := scanVolunteer(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select volunteer")
	}
	return v, nil
}

// ListCandidates returns the ordered candidate pool for a requester:
// available volunteers of the same category, least loaded first, ties broken
// by most recent activity, minus volunteers already matched or pending
// confirmation for this requester.
func (s *Storage) ListCandidates(ctx context.Context, requesterID uint64, category models.SupportCategory) ([]*models.VolunteerAvailability, error) {
	rows, err := s.db.Query(ctx, `
SELECT`+volunteerColumns+`
FROM volunteer_availability
WHERE is_available
  AND category = $2
  AND volunteer_id NOT IN (SELECT volunteer_id FROM matches WHERE requester_id = $1)
  AND volunteer_id NOT IN (SELECT volunteer_id FROM match_confirmations WHERE requester_id = $1)
ORDER BY current_load ASC, updated_at DESC
`, requesterID, category)
	if err != nil {
		return nil, errors.Wrap(err, "select candidates")
	}
	defer rows.Close()

	out := []*models.VolunteerAvailability{}
	for rows.Next() {
		v, err := scanVolunteer(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan candidate")
		}
		out = append(out, v)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
