package consignments

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/broker/messages"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/errs"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/integrations/courierapi"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/location"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/models"
)

type API interface {
	StatusHistory(ctx context.Context, phoneNumber, consignmentID string) (courierapi.History, error)
	SubmitPickup(ctx context.Context, req courierapi.ConfirmRequest) error
	SubmitDelivery(ctx context.Context, req courierapi.ConfirmRequest) error
}

type Locator interface {
	Acquire(ctx context.Context) (location.Fix, error)
}

type Journal interface {
	SaveSnapshot(ctx context.Context, c models.Consignment) error
}

// Publisher feeds lifecycle transitions into the telemetry topic.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

var otpRe = regexp.MustCompile(`^[0-9]{4}$`)

// Service is the delivery-status state machine for one session. Status is
// derived, never stored authoritatively: after every mutating call the
// history is re-fetched and recomputed, so a dropped channel event heals on
// the next refresh.
type Service struct {
	api      API
	loc      Locator
	journal  Journal   // optional
	producer Publisher // optional
	phone    string

	mu         sync.Mutex
	inFlight   map[string]struct{}
	lastStatus map[string]string
}

func New(api API, loc Locator, phoneNumber string) *Service {
	return &Service{
		api:        api,
		loc:        loc,
		phone:      phoneNumber,
		inFlight:   map[string]struct{}{},
		lastStatus: map[string]string{},
	}
}

func (s *Service) WithJournal(j Journal) *Service {
	s.journal = j
	return s
}

func (s *Service) WithPublisher(p Publisher) *Service {
	s.producer = p
	return s
}

// Refresh fetches the history and re-derives the display status.
func (s *Service) Refresh(ctx context.Context, travelID, consignmentID string) (models.Consignment, error) {
	if consignmentID == "" {
		return models.Consignment{}, errs.Validation("consignmentId is required")
	}

	h, err := s.api.StatusHistory(ctx, s.phone, consignmentID)
	if err != nil {
		return models.Consignment{}, err
	}

	derived := DeriveStatus(h)

	s.mu.Lock()
	prev := s.lastStatus[consignmentID]
	// История только растёт; понижение допустимо лишь в Upcoming-витрину.
	if prev != "" && derived != models.StatusUpcoming && statusRank(derived) < statusRank(prev) {
		derived = prev
	}
	s.lastStatus[consignmentID] = derived
	changed := derived != prev
	s.mu.Unlock()

	c := models.Consignment{
		ConsignmentID: consignmentID,
		TravelID:      travelID,
		Status:        derived,
		History:       h.Steps,
		UpdatedAt:     time.Now().UTC(),
	}

	if s.journal != nil {
		if err := s.journal.SaveSnapshot(ctx, c); err != nil {
			slog.Warn("journal snapshot failed", "consignment_id", consignmentID, "error", err.Error())
		}
	}
	if s.producer != nil && changed {
		s.publishLifecycle(ctx, c)
	}
	return c, nil
}

func (s *Service) publishLifecycle(ctx context.Context, c models.Consignment) {
	b, err := json.Marshal(messages.ConsignmentTelemetry{
		Kind:          messages.TelemetryLifecycle,
		ConsignmentID: c.ConsignmentID,
		TravelID:      c.TravelID,
		RecordedAt:    c.UpdatedAt,
		Status:        c.Status,
	})
	if err != nil {
		return
	}
	if err := s.producer.Publish(ctx, []byte(c.ConsignmentID), b); err != nil {
		slog.Warn("lifecycle telemetry publish failed", "consignment_id", c.ConsignmentID, "error", err.Error())
	}
}

// SubmitPickup runs the YetToCollect -> Collected transition: 4-digit OTP is
// validated before any network call, a location fix is mandatory, and the
// resulting status comes from a fresh history fetch, not a local flip.
func (s *Service) SubmitPickup(ctx context.Context, travelID, consignmentID, otp string) (models.Consignment, error) {
	return s.submit(ctx, travelID, consignmentID, otp, s.api.SubmitPickup)
}

// SubmitDelivery runs Collected -> Delivered under the same guards.
func (s *Service) SubmitDelivery(ctx context.Context, travelID, consignmentID, otp string) (models.Consignment, error) {
	return s.submit(ctx, travelID, consignmentID, otp, s.api.SubmitDelivery)
}

func (s *Service) submit(
	ctx context.Context,
	travelID, consignmentID, otp string,
	call func(context.Context, courierapi.ConfirmRequest) error,
) (models.Consignment, error) {
	if !otpRe.MatchString(otp) {
		return models.Consignment{}, errs.Validation("a valid 4-digit OTP is required")
	}
	if consignmentID == "" || travelID == "" {
		return models.Consignment{}, errs.Validation("travelId and consignmentId are required")
	}

	if !s.begin(consignmentID) {
		// Double-tap: предыдущий сабмит ещё в полёте.
		return models.Consignment{}, errs.Validation("a submission is already in progress")
	}
	defer s.end(consignmentID)

	fix, err := s.loc.Acquire(ctx)
	if err != nil {
		return models.Consignment{}, err
	}

	err = call(ctx, courierapi.ConfirmRequest{
		TravelID:      travelID,
		ConsignmentID: consignmentID,
		OTP:           otp,
		Latitude:      fix.Point.Latitude,
		Longitude:     fix.Point.Longitude,
	})
	if err != nil {
		// Локальное состояние не трогаем: транзишен случается только после
		// подтверждения сервера.
		return models.Consignment{}, err
	}

	return s.Refresh(ctx, travelID, consignmentID)
}

// Status returns the last derived status for a consignment, if any.
func (s *Service) Status(consignmentID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.lastStatus[consignmentID]
	return st, ok
}

func (s *Service) begin(consignmentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[consignmentID]; busy {
		return false
	}
	s.inFlight[consignmentID] = struct{}{}
	return true
}

func (s *Service) end(consignmentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, consignmentID)
}
