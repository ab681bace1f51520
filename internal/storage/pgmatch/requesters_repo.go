package pgmatch

import (
	"context"
	"time"

	"github.com/BridgeAid/MatchBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const requesterColumns = `
  id, name, email, ticket_id, category,
  latitude, longitude, city, state,
  status, attempt_count, next_attempt_at,
  created_at, updated_at`

func scanRequester(row pgx.Row) (*models.Requester, error) {
	var r models.Requester
	if err := row.Scan(
		&r.ID, &r.Name, &r.Email, &r.TicketID, &r.Category,
		&r.Latitude, &r.Longitude, &r.City, &r.State,
		&r.Status, &r.AttemptCount, &r.NextAttemptAt,
		&r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Storage) CreateRequester(ctx context.Context, in models.RequesterCreateInput, status models.RequesterStatus) (*models.Requester, error) {
	now := time.Now().UTC()

	city := in.City
	if city == "" {
		city = models.LocationUnknown
	}
	state := in.State
	if state == "" {
		state = models.LocationUnknown
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
INSERT INTO requesters (
  name, email, ticket_id, category, latitude, longitude, city, state,
  status, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
RETURNING`+requesterColumns,
		in.Name, in.Email, in.TicketID, in.Category, in.Latitude, in.Longitude,
		city, state, status, now)
	r, err := scanRequester(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert requester")
	}

	if err := insertHistory(ctx, tx, models.HistoryKindRequester, r.ID, "", string(status)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return r, nil
}

func (s *Storage) GetRequester(ctx context.Context, id uint64) (*models.Requester, error) {
	row := s.db.QueryRow(ctx, `SELECT`+requesterColumns+` FROM requesters WHERE id = $1`, id)
	r, err := scanRequester(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select requester")
	}
	return r, nil
}

// HasOpenRequester reports whether a non-terminal record for the same
// email and category already exists. Intake uses it to flag duplicates.
func (s *Storage) HasOpenRequester(ctx context.Context, email string, category models.SupportCategory) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM requesters
  WHERE email = $1 AND category = $2 AND status NOT IN ('closed','duplicated')
)`, email, category).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "select open requester")
	}
	return exists, nil
}

// SetRequesterStatus moves a requester to a new lifecycle status and appends
// the history row in the same transaction.
func (s *Storage) SetRequesterStatus(ctx context.Context, id uint64, to models.RequesterStatus) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var old models.RequesterStatus
	err = tx.QueryRow(ctx, `
UPDATE requesters r SET status = $2, updated_at = now()
FROM (SELECT id, status FROM requesters WHERE id = $1 FOR UPDATE) prev
WHERE r.id = prev.id
RETURNING prev.status
`, id, to).Scan(&old)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "update requester status")
	}

	if err := insertHistory(ctx, tx, models.HistoryKindRequester, id, string(old), string(to)); err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

// QueueRequester parks a requester in waiting_for_match and schedules the
// sweeper's next attempt.
func (s *Storage) QueueRequester(ctx context.Context, id uint64, nextAttemptAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var old models.RequesterStatus
	err = tx.QueryRow(ctx, `
UPDATE requesters r
SET status = 'waiting_for_match',
    attempt_count = r.attempt_count + 1,
    next_attempt_at = $2,
    updated_at = now()
FROM (SELECT id, status FROM requesters WHERE id = $1 FOR UPDATE) prev
WHERE r.id = prev.id
RETURNING prev.status
`, id, nextAttemptAt.UTC()).Scan(&old)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "queue requester")
	}

	if old != models.RequesterStatusWaitingForMatch {
		if err := insertHistory(ctx, tx, models.HistoryKindRequester, id, string(old), string(models.RequesterStatusWaitingForMatch)); err != nil {
			return err
		}
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

// ClaimQueuedRequesters picks a batch of queued requesters due for another
// matching attempt and leases them forward so concurrent sweepers do not
// pick them up again while they are being processed.
// Uses SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimQueuedRequesters(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Requester, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT`+requesterColumns+`
FROM requesters
WHERE status = 'waiting_for_match'
  AND next_attempt_at IS NOT NULL
  AND next_attempt_at <= $1
ORDER BY next_attempt_at ASC
LIMIT $2
FOR UPDATE SKIP LOCKED
`, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select queued requesters")
	}
	defer rows.Close()

	var picked []*models.Requester
	for rows.Next() {
		r, err := scanRequester(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan queued requester")
		}
		picked = append(picked, r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, r := range picked {
		_, err := tx.Exec(ctx, `UPDATE requesters SET next_attempt_at = $2, updated_at = now() WHERE id = $1`, r.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease requester")
		}
		t := leaseUntil
		r.NextAttemptAt = &t
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}
