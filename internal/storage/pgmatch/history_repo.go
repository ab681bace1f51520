package pgmatch

import (
	"context"

	"github.com/BridgeAid/MatchBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func insertHistory(ctx context.Context, tx pgx.Tx, kind models.HistoryKind, entityID uint64, old, new string) error {
	_, err := tx.Exec(ctx, `
INSERT INTO status_history (entity_kind, entity_id, old_status, new_status, created_at)
VALUES ($1,$2,$3,$4, now())
`, kind, entityID, old, new)
	return errors.Wrap(err, "insert status history")
}

func (s *Storage) ListStatusHistory(ctx context.Context, kind models.HistoryKind, entityID uint64, limit, offset int) ([]*models.StatusHistoryEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, entity_kind, entity_id, old_status, new_status, created_at
FROM status_history
WHERE entity_kind = $1 AND entity_id = $2
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4
`, kind, entityID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select status history")
	}
	defer rows.Close()

	var out []*models.StatusHistoryEntry
	for rows.Next() {
		var e models.StatusHistoryEntry
		if err := rows.Scan(&e.ID, &e.EntityKind, &e.EntityID, &e.OldStatus, &e.NewStatus, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan status history")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
