package pgjournal

import (
	"context"

	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS consignments (
  consignment_id   TEXT PRIMARY KEY,
  travel_id        TEXT NOT NULL DEFAULT '',
  status           TEXT NOT NULL,
  driver_lat       DOUBLE PRECISION,
  driver_lng       DOUBLE PRECISION,
  last_location_at TIMESTAMPTZ,
  updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS consignment_steps (
  id             BIGSERIAL PRIMARY KEY,
  consignment_id TEXT NOT NULL,
  step           TEXT NOT NULL,
  completed      BOOLEAN NOT NULL,
  updated_at     TIMESTAMPTZ,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (consignment_id, step)
);

CREATE INDEX IF NOT EXISTS idx_consignment_steps_cid ON consignment_steps (consignment_id);
`

func (s *Storage) initSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "init schema")
	}
	return nil
}
