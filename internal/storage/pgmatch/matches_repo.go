package pgmatch

import (
	"context"
	"time"

	"github.com/BridgeAid/MatchBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// MatchCommit carries the state read at selection time. CurrentLoad and
// IsAvailable of the volunteer act as the optimistic-concurrency guard: if
// either changed since the pool was read, the commit fails with
// ErrCapacityConflict and nothing is persisted.
type MatchCommit struct {
	Requester *models.Requester
	Volunteer *models.VolunteerAvailability
	Type      models.MatchType
	Tier      models.MatchTier
}

const matchColumns = `
  id, requester_id, volunteer_id,
  requester_ticket_id, volunteer_ticket_id,
  category, match_type, tier, status,
  created_at, updated_at`

func scanMatch(row pgx.Row) (*models.Match, error) {
	var m models.Match
	if err := row.Scan(
		&m.ID, &m.RequesterID, &m.VolunteerID,
		&m.RequesterTicketID, &m.VolunteerTicketID,
		&m.Category, &m.Type, &m.Tier, &m.Status,
		&m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// CommitMatch performs the whole match bookkeeping as one transaction:
// volunteer load increment (guarded), availability recompute, requester to
// matched, the match row itself, and every history entry. Either all of it
// lands or none of it does.
func (s *Storage) CommitMatch(ctx context.Context, c MatchCommit) (*models.Match, error) {
	if c.Requester == nil || c.Volunteer == nil {
		return nil, errors.New("requester and volunteer are required")
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Guarded increment. After the increment the volunteer must be
	// unavailable whenever current_load + 1 >= max_load, so the new
	// availability is (old load + 2) < max_load.
	var newLoad int32
	var available bool
	var cond models.VolunteerCondition
	err = tx.QueryRow(ctx, `
UPDATE volunteer_availability
SET current_load = current_load + 1,
    is_available = current_load + 2 < max_load,
    condition = CASE WHEN current_load + 2 < max_load THEN condition ELSE 'fully_booked' END,
    updated_at = now()
WHERE volunteer_id = $1
  AND current_load = $2
  AND is_available
RETURNING current_load, is_available, condition
`, c.Volunteer.VolunteerID, c.Volunteer.CurrentLoad).Scan(&newLoad, &available, &cond)
	if err == pgx.ErrNoRows {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM volunteer_availability WHERE volunteer_id = $1)`, c.Volunteer.VolunteerID).Scan(&exists); err != nil {
			return nil, errors.Wrap(err, "check volunteer")
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrCapacityConflict
	}
	if err != nil {
		return nil, errors.Wrap(err, "increment volunteer load")
	}

	if cond == models.ConditionFullyBooked && c.Volunteer.Condition != models.ConditionFullyBooked {
		if err := insertHistory(ctx, tx, models.HistoryKindVolunteer, c.Volunteer.VolunteerID,
			string(c.Volunteer.Condition), string(models.ConditionFullyBooked)); err != nil {
			return nil, err
		}
	}

	tag, err := tx.Exec(ctx, `UPDATE requesters SET status = 'matched', updated_at = now() WHERE id = $1`, c.Requester.ID)
	if err != nil {
		return nil, errors.Wrap(err, "update requester status")
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	if err := insertHistory(ctx, tx, models.HistoryKindRequester, c.Requester.ID,
		string(c.Requester.Status), string(models.RequesterStatusMatched)); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
INSERT INTO matches (
  requester_id, volunteer_id, requester_ticket_id, volunteer_ticket_id,
  category, match_type, tier, status, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
RETURNING`+matchColumns,
		c.Requester.ID, c.Volunteer.VolunteerID, c.Requester.TicketID, c.Volunteer.TicketID,
		c.Requester.Category, c.Type, c.Tier, models.MatchStatusWaitingContact, now)
	m, err := scanMatch(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert match")
	}

	if err := insertHistory(ctx, tx, models.HistoryKindMatch, m.ID, "", string(models.MatchStatusWaitingContact)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return m, nil
}

func (s *Storage) GetMatch(ctx context.Context, id uint64) (*models.Match, error) {
	row := s.db.QueryRow(ctx, `SELECT`+matchColumns+` FROM matches WHERE id = $1`, id)
	m, err := scanMatch(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select match")
	}
	return m, nil
}

// CreateMatchConfirmation reserves a volunteer for a requester so the pool
// never offers the pair again while a manual confirmation is pending.
func (s *Storage) CreateMatchConfirmation(ctx context.Context, requesterID, volunteerID uint64) (*models.MatchConfirmation, error) {
	r, err := s.GetRequester(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetVolunteer(ctx, volunteerID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var mc models.MatchConfirmation
	err = s.db.QueryRow(ctx, `
INSERT INTO match_confirmations (requester_id, volunteer_id, category, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (requester_id, volunteer_id) DO UPDATE SET category = EXCLUDED.category
RETURNING id, requester_id, volunteer_id, category, created_at
`, requesterID, volunteerID, r.Category, now).
		Scan(&mc.ID, &mc.RequesterID, &mc.VolunteerID, &mc.Category, &mc.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert match confirmation")
	}
	return &mc, nil
}
