package tracker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/broker/messages"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/channel"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/integrations/routing"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/location"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/models"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/scheduler"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/store/redisstore"
)

// Channel is the realtime surface the tracker needs from the connection
// manager.
type Channel interface {
	On(event channel.Event, fn channel.Handler) func()
	OnStatus(fn func(channel.State)) func()
	Emit(event channel.Event, payload any) error
	JoinRoom(travelID string) error
	LeaveRoom(travelID string) error
	State() channel.State
}

type RiderAPI interface {
	TrackRider(ctx context.Context, travelID, phoneNumber string) (models.LocationSample, error)
}

// Markers persists in-flight session markers for resume-after-relaunch.
type Markers interface {
	SetTrackingMarker(ctx context.Context, m redisstore.TrackingMarker) error
	ClearTrackingMarker(ctx context.Context, consignmentID string) error
}

// Publisher feeds the telemetry topic; best-effort, never blocks tracking.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

type Locator interface {
	Acquire(ctx context.Context) (location.Fix, error)
}

// Service manages live-location sessions: at most one per consignment per
// device. A session fuses channel pushes with a fixed-cadence REST poll, so a
// silent or degraded channel only lowers freshness, never availability.
type Service struct {
	ch     Channel
	api    RiderAPI
	router routing.Client
	phone  string

	markers  Markers   // optional
	producer Publisher // optional
	locator  Locator   // optional: carrying side publishes its own fixes

	pollInterval    time.Duration
	publishInterval time.Duration
	staleAfter      time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func New(ch Channel, api RiderAPI, router routing.Client, phoneNumber string) *Service {
	return &Service{
		ch:              ch,
		api:             api,
		router:          router,
		phone:           phoneNumber,
		pollInterval:    5 * time.Second,
		publishInterval: 5 * time.Second,
		staleAfter:      15 * time.Second,
		sessions:        map[string]*Session{},
	}
}

func (s *Service) WithMarkers(m Markers) *Service     { s.markers = m; return s }
func (s *Service) WithPublisher(p Publisher) *Service { s.producer = p; return s }
func (s *Service) WithLocator(l Locator) *Service     { s.locator = l; return s }

func (s *Service) WithIntervals(poll, publish, staleAfter time.Duration) *Service {
	if poll > 0 {
		s.pollInterval = poll
	}
	if publish > 0 {
		s.publishInterval = publish
	}
	if staleAfter > 0 {
		s.staleAfter = staleAfter
	}
	return s
}

// Session is one live tracking instance. Never shared across consignments.
type Session struct {
	ID            string
	ConsignmentID string
	TravelID      string

	svc    *Service
	dest   models.GeoPoint
	ctx    context.Context
	cancel context.CancelFunc

	offLocation func()
	offStop     func()
	offStatus   func()
	poll        *scheduler.Task
	publish     *scheduler.Task

	mu       sync.Mutex
	stopped  bool
	degraded bool
	last     models.LocationSample
	lastAt   time.Time
	route    *routing.Route

	samplesApplied atomic.Int64
	samplesDropped atomic.Int64
	pollCycles     atomic.Int64
	publishErrors  atomic.Int64
}

// Start activates tracking for a shipment that entered the "on the way"
// state. Starting an already-tracked consignment returns the running session.
func (s *Service) Start(ctx context.Context, travelID, consignmentID string, dest models.GeoPoint) (*Session, error) {
	if travelID == "" || consignmentID == "" {
		return nil, errors.New("travelId and consignmentId are required")
	}

	s.mu.Lock()
	if existing, ok := s.sessions[consignmentID]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	sctx, cancel := context.WithCancel(ctx)
	sess := &Session{
		ID:            uuid.NewString(),
		ConsignmentID: consignmentID,
		TravelID:      travelID,
		svc:           s,
		dest:          dest,
		ctx:           sctx,
		cancel:        cancel,
	}
	s.sessions[consignmentID] = sess
	s.mu.Unlock()

	if err := s.ch.JoinRoom(travelID); err != nil {
		// Комната недоступна: канал деградирован, но поллинг всё равно даст данные.
		slog.Warn("join tracking room failed", "travel_id", travelID, "error", err.Error())
		sess.setDegraded(true)
	}

	sess.offLocation = s.ch.On(channel.EventRiderLocation, func(p json.RawMessage) {
		var sample models.LocationSample
		if err := json.Unmarshal(p, &sample); err != nil {
			slog.Warn("bad location payload", "error", err.Error())
			return
		}
		if sample.TravelID != "" && sample.TravelID != travelID {
			return
		}
		sess.applySample(sample)
	})

	sess.offStop = s.ch.On(channel.StopTracking(consignmentID), func(json.RawMessage) {
		// Сервер сам закрыл трекинг (доставлено/отменено).
		go sess.Stop()
	})

	sess.offStatus = s.ch.OnStatus(func(st channel.State) {
		sess.setDegraded(!st.Connected)
	})

	sess.poll = scheduler.Every(sctx, s.pollInterval, func(ctx context.Context) {
		sess.pollCycles.Add(1)
		sample, err := s.api.TrackRider(ctx, travelID, s.phone)
		if err != nil {
			slog.Warn("track rider poll failed", "travel_id", travelID, "error", err.Error())
			return
		}
		sample.ConsignmentID = consignmentID
		sess.applySample(sample)
	})

	if s.locator != nil {
		sess.publish = scheduler.Every(sctx, s.publishInterval, func(ctx context.Context) {
			sess.publishOwnFix(ctx)
		})
	}

	if s.markers != nil {
		err := s.markers.SetTrackingMarker(ctx, redisstore.TrackingMarker{
			ConsignmentID: consignmentID,
			TravelID:      travelID,
			Destination:   dest,
		})
		if err != nil {
			slog.Warn("tracking marker not persisted", "consignment_id", consignmentID, "error", err.Error())
		}
	}

	slog.Info("tracking started", "session_id", sess.ID, "consignment_id", consignmentID, "travel_id", travelID)
	return sess, nil
}

// Stop deactivates tracking for a consignment; a no-op when none is active.
func (s *Service) Stop(consignmentID string) {
	s.mu.Lock()
	sess := s.sessions[consignmentID]
	s.mu.Unlock()
	if sess != nil {
		sess.Stop()
	}
}

// StopAll tears down every live session (logout / shutdown).
func (s *Service) StopAll() {
	s.mu.Lock()
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.Unlock()
	for _, sess := range all {
		sess.Stop()
	}
}

func (s *Service) Active(consignmentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[consignmentID]
	return ok
}

// Stop releases everything the session holds: channel handlers, poll tasks,
// the room subscription and the resume marker. Idempotent; leaking any of
// these is a correctness bug, not a cleanup nicety.
func (sess *Session) Stop() {
	sess.mu.Lock()
	if sess.stopped {
		sess.mu.Unlock()
		return
	}
	sess.stopped = true
	sess.mu.Unlock()

	sess.cancel()
	if sess.offLocation != nil {
		sess.offLocation()
	}
	if sess.offStop != nil {
		sess.offStop()
	}
	if sess.offStatus != nil {
		sess.offStatus()
	}
	if sess.poll != nil {
		sess.poll.Cancel()
	}
	if sess.publish != nil {
		sess.publish.Cancel()
	}

	if err := sess.svc.ch.LeaveRoom(sess.TravelID); err != nil {
		slog.Warn("leave tracking room failed", "travel_id", sess.TravelID, "error", err.Error())
	}

	if sess.svc.markers != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := sess.svc.markers.ClearTrackingMarker(ctx, sess.ConsignmentID); err != nil {
			slog.Warn("tracking marker not cleared", "consignment_id", sess.ConsignmentID, "error", err.Error())
		}
	}

	sess.svc.mu.Lock()
	delete(sess.svc.sessions, sess.ConsignmentID)
	sess.svc.mu.Unlock()

	slog.Info("tracking stopped", "session_id", sess.ID, "consignment_id", sess.ConsignmentID)
}

// applySample is the single funnel for both sources. Out-of-order protection:
// when a sample carries a server timestamp older than the one already held it
// is dropped; samples without timestamps fall back to last-arrived-wins.
func (sess *Session) applySample(sample models.LocationSample) {
	sess.mu.Lock()
	if sess.stopped {
		sess.mu.Unlock()
		return
	}
	if !sample.Timestamp.IsZero() && !sess.last.Timestamp.IsZero() &&
		sample.Timestamp.Before(sess.last.Timestamp) {
		sess.mu.Unlock()
		sess.samplesDropped.Add(1)
		return
	}
	sess.last = sample
	sess.lastAt = time.Now()
	dest := sess.dest
	sess.mu.Unlock()

	sess.samplesApplied.Add(1)

	if route, err := sess.svc.router.Route(sess.ctx, sample.Point(), dest); err == nil {
		sess.mu.Lock()
		if !sess.stopped {
			sess.route = &route
		}
		sess.mu.Unlock()
	} else if sess.ctx.Err() == nil {
		slog.Warn("route recompute failed", "consignment_id", sess.ConsignmentID, "error", err.Error())
	}

	sess.publishTelemetry(sample)
}

func (sess *Session) publishTelemetry(sample models.LocationSample) {
	p := sess.svc.producer
	if p == nil {
		return
	}
	at := sample.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}
	b, err := json.Marshal(messages.ConsignmentTelemetry{
		Kind:          messages.TelemetryLocation,
		ConsignmentID: sess.ConsignmentID,
		TravelID:      sess.TravelID,
		RecordedAt:    at,
		Latitude:      sample.Latitude,
		Longitude:     sample.Longitude,
	})
	if err != nil {
		return
	}
	if err := p.Publish(sess.ctx, []byte(sess.ConsignmentID), b); err != nil {
		sess.publishErrors.Add(1)
		if sess.ctx.Err() == nil {
			slog.Warn("telemetry publish failed", "consignment_id", sess.ConsignmentID, "error", err.Error())
		}
	}
}

// publishOwnFix is the carrying side: one GPS fix per cadence tick goes to
// the room so viewers see movement.
func (sess *Session) publishOwnFix(ctx context.Context) {
	fix, err := sess.svc.locator.Acquire(ctx)
	if err != nil {
		slog.Warn("own location fix failed", "consignment_id", sess.ConsignmentID, "error", err.Error())
		return
	}
	sample := models.LocationSample{
		TravelID:      sess.TravelID,
		ConsignmentID: sess.ConsignmentID,
		Latitude:      fix.Point.Latitude,
		Longitude:     fix.Point.Longitude,
		Timestamp:     fix.At.UTC(),
	}
	if err := sess.svc.ch.Emit(channel.EventLocationUpdate, sample); err != nil {
		// Канал лежит — сами себе применим сэмпл, поллинг у зрителей его добёрет.
		slog.Warn("location emit failed", "consignment_id", sess.ConsignmentID, "error", err.Error())
	}
	sess.applySample(sample)
}

func (sess *Session) setDegraded(v bool) {
	sess.mu.Lock()
	sess.degraded = v
	sess.mu.Unlock()
}

type SessionStats struct {
	SessionID       string           `json:"sessionId"`
	ConsignmentID   string           `json:"consignmentId"`
	TravelID        string           `json:"travelId"`
	Degraded        bool             `json:"degraded"`
	Stale           bool             `json:"stale"`
	LastUpdateAt    *time.Time       `json:"lastUpdateAt,omitempty"`
	DriverLocation  *models.GeoPoint `json:"driverLocation,omitempty"`
	RemainingMeters *float64         `json:"remainingMeters,omitempty"`
	SamplesApplied  int64            `json:"samplesApplied"`
	SamplesDropped  int64            `json:"samplesDropped"`
	PollCycles      int64            `json:"pollCycles"`
	PublishErrors   int64            `json:"publishErrors"`
}

func (sess *Session) Stats() SessionStats {
	sess.mu.Lock()
	st := SessionStats{
		SessionID:     sess.ID,
		ConsignmentID: sess.ConsignmentID,
		TravelID:      sess.TravelID,
		Degraded:      sess.degraded,
	}
	if !sess.lastAt.IsZero() {
		t := sess.lastAt
		st.LastUpdateAt = &t
		st.Stale = time.Since(t) > sess.svc.staleAfter
		p := sess.last.Point()
		st.DriverLocation = &p
	}
	if sess.route != nil {
		d := sess.route.DistanceMeters
		st.RemainingMeters = &d
	}
	sess.mu.Unlock()

	st.SamplesApplied = sess.samplesApplied.Load()
	st.SamplesDropped = sess.samplesDropped.Load()
	st.PollCycles = sess.pollCycles.Load()
	st.PublishErrors = sess.publishErrors.Load()
	return st
}

// Location returns the last applied driver position, if any.
func (sess *Session) Location() (models.LocationSample, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.last, !sess.lastAt.IsZero()
}

func (sess *Session) Degraded() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.degraded
}

// Stats aggregates every live session for the ops endpoint.
func (s *Service) Stats() []SessionStats {
	s.mu.Lock()
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.Unlock()

	out := make([]SessionStats, 0, len(all))
	for _, sess := range all {
		out = append(out, sess.Stats())
	}
	return out
}
