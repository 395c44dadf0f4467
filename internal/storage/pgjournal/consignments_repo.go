package pgjournal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/models"
)

// SaveSnapshot upserts the consignment row and its step log in one tx.
func (s *Storage) SaveSnapshot(ctx context.Context, c models.Consignment) error {
	if c.ConsignmentID == "" {
		return errors.New("consignmentId is required")
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var lat, lng *float64
	if c.DriverLocation != nil {
		lat, lng = &c.DriverLocation.Latitude, &c.DriverLocation.Longitude
	}

	_, err = tx.Exec(ctx, `
INSERT INTO consignments (consignment_id, travel_id, status, driver_lat, driver_lng, last_location_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (consignment_id)
DO UPDATE SET
  travel_id        = EXCLUDED.travel_id,
  status           = EXCLUDED.status,
  driver_lat       = COALESCE(EXCLUDED.driver_lat, consignments.driver_lat),
  driver_lng       = COALESCE(EXCLUDED.driver_lng, consignments.driver_lng),
  last_location_at = COALESCE(EXCLUDED.last_location_at, consignments.last_location_at),
  updated_at       = EXCLUDED.updated_at
`, c.ConsignmentID, c.TravelID, c.Status, lat, lng, c.LastLocationAt, now)
	if err != nil {
		return errors.Wrap(err, "upsert consignment")
	}

	for _, st := range c.History {
		_, err = tx.Exec(ctx, `
INSERT INTO consignment_steps (consignment_id, step, completed, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (consignment_id, step)
DO UPDATE SET
  completed  = EXCLUDED.completed OR consignment_steps.completed,
  updated_at = COALESCE(EXCLUDED.updated_at, consignment_steps.updated_at)
`, c.ConsignmentID, st.Step, st.Completed, st.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, "upsert step")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// RecordLocation updates only the driver position of an existing journal row.
func (s *Storage) RecordLocation(ctx context.Context, consignmentID string, p models.GeoPoint, at time.Time) error {
	if consignmentID == "" {
		return errors.New("consignmentId is required")
	}
	_, err := s.db.Exec(ctx, `
UPDATE consignments
SET driver_lat = $2, driver_lng = $3, last_location_at = $4, updated_at = now()
WHERE consignment_id = $1
`, consignmentID, p.Latitude, p.Longitude, at)
	if err != nil {
		return errors.Wrap(err, "record location")
	}
	return nil
}

// GetSnapshot returns the journalled consignment with its step log, or nil
// when the journal has never seen it.
func (s *Storage) GetSnapshot(ctx context.Context, consignmentID string) (*models.Consignment, error) {
	row := s.db.QueryRow(ctx, `
SELECT consignment_id, travel_id, status, driver_lat, driver_lng, last_location_at, updated_at
FROM consignments
WHERE consignment_id = $1
`, consignmentID)

	var c models.Consignment
	var lat, lng *float64
	err := row.Scan(&c.ConsignmentID, &c.TravelID, &c.Status, &lat, &lng, &c.LastLocationAt, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan consignment")
	}
	if lat != nil && lng != nil {
		c.DriverLocation = &models.GeoPoint{Latitude: *lat, Longitude: *lng}
	}

	rows, err := s.db.Query(ctx, `
SELECT step, completed, updated_at
FROM consignment_steps
WHERE consignment_id = $1
ORDER BY id
`, consignmentID)
	if err != nil {
		return nil, errors.Wrap(err, "query steps")
	}
	defer rows.Close()

	for rows.Next() {
		var st models.StatusStep
		if err := rows.Scan(&st.Step, &st.Completed, &st.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan step")
		}
		c.History = append(c.History, st)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate steps")
	}
	return &c, nil
}
