// Package redisstore persists the small per-device state the tracking core
// needs across relaunches: session identity, the rated-consignments set and
// in-flight tracking markers.
package redisstore

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/models"
)

const (
	keyPhoneNumber = "phoneNumber"
	keyAPIBaseURL  = "apiBaseUrl"
	keyRatedSet    = "ratedConsignments"

	trackingKeyPrefix = "tracking_"
)

type Store struct {
	c *redis.Client
}

func New(addr string) *Store {
	return &Store{
		c: redis.NewClient(&redis.Options{
			Addr: addr,
		}),
	}
}

func (s *Store) Close() error { return s.c.Close() }

func (s *Store) SaveSession(ctx context.Context, sess models.Session) error {
	pipe := s.c.TxPipeline()
	pipe.Set(ctx, keyPhoneNumber, sess.PhoneNumber, 0)
	pipe.Set(ctx, keyAPIBaseURL, sess.APIBaseURL, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "save session")
	}
	return nil
}

// LoadSession returns the persisted session; missing keys come back as empty
// strings, the channel layer treats that as a configuration error.
func (s *Store) LoadSession(ctx context.Context) (models.Session, error) {
	var sess models.Session
	for key, dst := range map[string]*string{
		keyPhoneNumber: &sess.PhoneNumber,
		keyAPIBaseURL:  &sess.APIBaseURL,
	} {
		v, err := s.c.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return models.Session{}, errors.Wrap(err, "load session")
		}
		*dst = v
	}
	return sess, nil
}

func (s *Store) IsRated(ctx context.Context, consignmentID string) (bool, error) {
	ok, err := s.c.SIsMember(ctx, keyRatedSet, consignmentID).Result()
	if err != nil {
		return false, errors.Wrap(err, "rated-set lookup")
	}
	return ok, nil
}

func (s *Store) MarkRated(ctx context.Context, consignmentID string) error {
	if err := s.c.SAdd(ctx, keyRatedSet, consignmentID).Err(); err != nil {
		return errors.Wrap(err, "rated-set add")
	}
	return nil
}

// TrackingMarker lets the agent resume an in-flight tracking session after a
// relaunch.
type TrackingMarker struct {
	ConsignmentID string          `json:"consignmentId"`
	TravelID      string          `json:"travelId"`
	Destination   models.GeoPoint `json:"destination"`
}

func (s *Store) SetTrackingMarker(ctx context.Context, m TrackingMarker) error {
	b, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "marshal tracking marker")
	}
	if err := s.c.Set(ctx, trackingKeyPrefix+m.ConsignmentID, b, 0).Err(); err != nil {
		return errors.Wrap(err, "set tracking marker")
	}
	return nil
}

func (s *Store) ClearTrackingMarker(ctx context.Context, consignmentID string) error {
	if err := s.c.Del(ctx, trackingKeyPrefix+consignmentID).Err(); err != nil {
		return errors.Wrap(err, "clear tracking marker")
	}
	return nil
}

// ListTrackingMarkers scans for in-flight sessions left by a previous run.
func (s *Store) ListTrackingMarkers(ctx context.Context) ([]TrackingMarker, error) {
	var out []TrackingMarker
	iter := s.c.Scan(ctx, 0, trackingKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		b, err := s.c.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "read tracking marker")
		}
		var m TrackingMarker
		if json.Unmarshal(b, &m) != nil {
			continue
		}
		if m.ConsignmentID == "" {
			m.ConsignmentID = strings.TrimPrefix(key, trackingKeyPrefix)
		}
		out = append(out, m)
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "scan tracking markers")
	}
	return out, nil
}
