// Package rating gates the post-delivery rating prompt so a traveler is
// asked about each shipment at most once, across restarts.
package rating

import (
	"context"
	"log/slog"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/errs"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/models"
)

type API interface {
	SubmitRating(ctx context.Context, phoneNumber string, r models.Rating) error
}

// Store is the persisted set of already-rated consignment ids.
type Store interface {
	IsRated(ctx context.Context, consignmentID string) (bool, error)
	MarkRated(ctx context.Context, consignmentID string) error
}

type Service struct {
	api   API
	store Store
	phone string
}

func New(api API, store Store, phoneNumber string) *Service {
	return &Service{api: api, store: store, phone: phoneNumber}
}

// ShouldPrompt reports whether the rating dialog is due: the shipment is
// delivered and has not been rated before. A store failure suppresses the
// prompt rather than risking a duplicate.
func (s *Service) ShouldPrompt(ctx context.Context, consignmentID, status string) bool {
	if status != models.StatusDelivered {
		return false
	}
	rated, err := s.store.IsRated(ctx, consignmentID)
	if err != nil {
		slog.Warn("rated-set lookup failed", "consignment_id", consignmentID, "error", err.Error())
		return false
	}
	return !rated
}

// Submit validates, re-checks the rated set, sends the rating and marks the
// consignment rated. The re-check keeps a second prompt fired in parallel
// from producing a duplicate submission.
func (s *Service) Submit(ctx context.Context, r models.Rating) error {
	if r.ConsignmentID == "" {
		return errs.Validation("consignmentId is required")
	}
	if r.Rate < 1 || r.Rate > 5 {
		return errs.Validation("rate must be between 1 and 5")
	}

	rated, err := s.store.IsRated(ctx, r.ConsignmentID)
	if err != nil {
		return err
	}
	if rated {
		return nil
	}

	if err := s.api.SubmitRating(ctx, s.phone, r); err != nil {
		return err
	}

	if err := s.store.MarkRated(ctx, r.ConsignmentID); err != nil {
		// Оценка ушла на сервер; потеря отметки грозит лишь повторным промптом.
		slog.Warn("mark rated failed", "consignment_id", r.ConsignmentID, "error", err.Error())
	}
	slog.Info("rating submitted", "consignment_id", r.ConsignmentID, "rate", r.Rate)
	return nil
}
