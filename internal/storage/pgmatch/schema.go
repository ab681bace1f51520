package pgmatch

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS requesters (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  email TEXT NOT NULL,
  ticket_id BIGINT NULL,
  category TEXT NOT NULL,
  latitude DOUBLE PRECISION NULL,
  longitude DOUBLE PRECISION NULL,
  city TEXT NOT NULL DEFAULT 'unknown',
  state TEXT NOT NULL DEFAULT 'unknown',
  status TEXT NOT NULL,
  attempt_count INT NOT NULL DEFAULT 0,
  next_attempt_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_requesters_status_next_attempt ON requesters(status, next_attempt_at)`,
		`CREATE INDEX IF NOT EXISTS idx_requesters_email ON requesters(email)`,
		`
CREATE TABLE IF NOT EXISTS volunteer_availability (
  volunteer_id BIGINT PRIMARY KEY,
  name TEXT NOT NULL,
  email TEXT NOT NULL,
  ticket_id BIGINT NULL,
  category TEXT NOT NULL,
  latitude DOUBLE PRECISION NULL,
  longitude DOUBLE PRECISION NULL,
  city TEXT NOT NULL DEFAULT 'unknown',
  state TEXT NOT NULL DEFAULT 'unknown',
  current_load INT NOT NULL DEFAULT 0 CHECK (current_load >= 0),
  max_load INT NOT NULL CHECK (max_load > 0),
  is_available BOOLEAN NOT NULL DEFAULT TRUE,
  condition TEXT NOT NULL DEFAULT 'open',
  updated_at TIMESTAMPTZ NOT NULL,
  CHECK (current_load <= max_load)
)`,
		`CREATE INDEX IF NOT EXISTS idx_volunteer_availability_pool ON volunteer_availability(category, is_available, current_load, updated_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS matches (
  id BIGSERIAL PRIMARY KEY,
  requester_id BIGINT NOT NULL REFERENCES requesters(id),
  volunteer_id BIGINT NOT NULL REFERENCES volunteer_availability(volunteer_id),
  requester_ticket_id BIGINT NULL,
  volunteer_ticket_id BIGINT NULL,
  category TEXT NOT NULL,
  match_type TEXT NOT NULL,
  tier TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_requester_id ON matches(requester_id)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_volunteer_id ON matches(volunteer_id)`,
		`
CREATE TABLE IF NOT EXISTS match_confirmations (
  id BIGSERIAL PRIMARY KEY,
  requester_id BIGINT NOT NULL REFERENCES requesters(id),
  volunteer_id BIGINT NOT NULL REFERENCES volunteer_availability(volunteer_id),
  category TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  UNIQUE (requester_id, volunteer_id)
)`,
		`
CREATE TABLE IF NOT EXISTS status_history (
  id BIGSERIAL PRIMARY KEY,
  entity_kind TEXT NOT NULL,
  entity_id BIGINT NOT NULL,
  old_status TEXT NOT NULL DEFAULT '',
  new_status TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_status_history_entity ON status_history(entity_kind, entity_id, created_at DESC)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
