package tracker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/channel"
	routingfake "github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/integrations/routing/fake"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/models"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/store/redisstore"
)

type fakeChannel struct {
	mu       sync.Mutex
	handlers map[channel.Event][]*channel.Handler
	status   []*func(channel.State)
	state    channel.State
	joined   []string
	left     []string
	emitted  []channel.Event
	emitErr  error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		handlers: map[channel.Event][]*channel.Handler{},
		state:    channel.State{Connected: true},
	}
}

func (f *fakeChannel) On(event channel.Event, fn channel.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := &fn
	f.handlers[event] = append(f.handlers[event], ref)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		hs := f.handlers[event]
		for i, h := range hs {
			if h == ref {
				f.handlers[event] = append(hs[:i], hs[i+1:]...)
				return
			}
		}
	}
}

func (f *fakeChannel) OnStatus(fn func(channel.State)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := &fn
	f.status = append(f.status, ref)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, h := range f.status {
			if h == ref {
				f.status = append(f.status[:i], f.status[i+1:]...)
				return
			}
		}
	}
}

func (f *fakeChannel) Emit(event channel.Event, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, event)
	return f.emitErr
}

func (f *fakeChannel) JoinRoom(travelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, travelID)
	return nil
}

func (f *fakeChannel) LeaveRoom(travelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, travelID)
	return nil
}

func (f *fakeChannel) State() channel.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeChannel) push(t *testing.T, event channel.Event, payload any) {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	f.mu.Lock()
	hs := append([]*channel.Handler(nil), f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range hs {
		(*h)(b)
	}
}

func (f *fakeChannel) setConnected(v bool) {
	f.mu.Lock()
	f.state = channel.State{Connected: v}
	hs := append(([]*func(channel.State))(nil), f.status...)
	st := f.state
	f.mu.Unlock()
	for _, h := range hs {
		(*h)(st)
	}
}

func (f *fakeChannel) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.status)
	for _, hs := range f.handlers {
		n += len(hs)
	}
	return n
}

type fakeRiderAPI struct {
	mu     sync.Mutex
	sample models.LocationSample
	err    error
	calls  int
}

func (f *fakeRiderAPI) TrackRider(ctx context.Context, travelID, phoneNumber string) (models.LocationSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.sample, f.err
}

func (f *fakeRiderAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMarkers struct {
	mu      sync.Mutex
	markers map[string]redisstore.TrackingMarker
}

func newFakeMarkers() *fakeMarkers {
	return &fakeMarkers{markers: map[string]redisstore.TrackingMarker{}}
}

func (f *fakeMarkers) SetTrackingMarker(ctx context.Context, m redisstore.TrackingMarker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markers[m.ConsignmentID] = m
	return nil
}

func (f *fakeMarkers) ClearTrackingMarker(ctx context.Context, consignmentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.markers, consignmentID)
	return nil
}

func (f *fakeMarkers) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.markers[id]
	return ok
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (f *fakePublisher) Publish(ctx context.Context, key, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, value)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func newTestService(ch *fakeChannel, api *fakeRiderAPI) *Service {
	return New(ch, api, routingfake.New(), "9876543210").
		WithIntervals(20*time.Millisecond, 20*time.Millisecond, 100*time.Millisecond)
}

func TestStart_JoinsRoomAndAppliesChannelSamples(t *testing.T) {
	ch := newFakeChannel()
	api := &fakeRiderAPI{err: context.DeadlineExceeded}
	svc := newTestService(ch, api)
	defer svc.StopAll()

	sess, err := svc.Start(context.Background(), "T1", "C1", models.GeoPoint{Latitude: 12.98, Longitude: 77.6})
	require.NoError(t, err)
	require.Equal(t, []string{"T1"}, ch.joined)
	require.NotEmpty(t, sess.ID)

	ch.push(t, channel.EventRiderLocation, models.LocationSample{
		TravelID:  "T1",
		Latitude:  12.9716,
		Longitude: 77.5946,
		Timestamp: time.Now().UTC(),
	})

	loc, ok := sess.Location()
	require.True(t, ok)
	require.InDelta(t, 12.9716, loc.Latitude, 1e-9)

	st := sess.Stats()
	require.Equal(t, int64(1), st.SamplesApplied)
	require.NotNil(t, st.RemainingMeters)
	require.Greater(t, *st.RemainingMeters, 0.0)
}

func TestStart_SecondStartReturnsSameSession(t *testing.T) {
	ch := newFakeChannel()
	svc := newTestService(ch, &fakeRiderAPI{})
	defer svc.StopAll()

	a, err := svc.Start(context.Background(), "T1", "C1", models.GeoPoint{})
	require.NoError(t, err)
	b, err := svc.Start(context.Background(), "T1", "C1", models.GeoPoint{})
	require.NoError(t, err)
	require.Same(t, a, b)
	require.Equal(t, []string{"T1"}, ch.joined, "room joined once")
}

func TestApplySample_DropsOutOfOrderTimestamps(t *testing.T) {
	ch := newFakeChannel()
	svc := newTestService(ch, &fakeRiderAPI{err: context.DeadlineExceeded})
	defer svc.StopAll()

	sess, err := svc.Start(context.Background(), "T1", "C1", models.GeoPoint{})
	require.NoError(t, err)

	now := time.Now().UTC()
	sess.applySample(models.LocationSample{TravelID: "T1", Latitude: 10, Timestamp: now})
	sess.applySample(models.LocationSample{TravelID: "T1", Latitude: 99, Timestamp: now.Add(-time.Minute)})

	loc, ok := sess.Location()
	require.True(t, ok)
	require.Equal(t, 10.0, loc.Latitude, "stale sample must not win")
	require.Equal(t, int64(1), sess.Stats().SamplesDropped)
}

func TestApplySample_NoTimestampFallsBackToLastArrived(t *testing.T) {
	ch := newFakeChannel()
	svc := newTestService(ch, &fakeRiderAPI{err: context.DeadlineExceeded})
	defer svc.StopAll()

	sess, err := svc.Start(context.Background(), "T1", "C1", models.GeoPoint{})
	require.NoError(t, err)

	sess.applySample(models.LocationSample{TravelID: "T1", Latitude: 10})
	sess.applySample(models.LocationSample{TravelID: "T1", Latitude: 20})

	loc, _ := sess.Location()
	require.Equal(t, 20.0, loc.Latitude)
}

func TestPollFallback_KeepsFeedingWhileDegraded(t *testing.T) {
	ch := newFakeChannel()
	api := &fakeRiderAPI{sample: models.LocationSample{TravelID: "T1", Latitude: 1, Longitude: 2}}
	svc := newTestService(ch, api)
	defer svc.StopAll()

	sess, err := svc.Start(context.Background(), "T1", "C1", models.GeoPoint{})
	require.NoError(t, err)

	ch.setConnected(false)
	require.True(t, sess.Degraded())

	require.Eventually(t, func() bool {
		return api.callCount() >= 2
	}, time.Second, 5*time.Millisecond, "poll must keep running without the channel")

	loc, ok := sess.Location()
	require.True(t, ok)
	require.Equal(t, 1.0, loc.Latitude)

	ch.setConnected(true)
	require.False(t, sess.Degraded())
}

func TestStop_ReleasesEverythingAndIsIdempotent(t *testing.T) {
	ch := newFakeChannel()
	markers := newFakeMarkers()
	svc := newTestService(ch, &fakeRiderAPI{err: context.DeadlineExceeded}).WithMarkers(markers)

	sess, err := svc.Start(context.Background(), "T1", "C1", models.GeoPoint{})
	require.NoError(t, err)
	require.True(t, markers.has("C1"))
	require.True(t, svc.Active("C1"))

	sess.Stop()
	sess.Stop()
	svc.Stop("C1") // уже нет сессии — no-op

	require.Equal(t, 0, ch.handlerCount(), "all channel handlers unsubscribed")
	require.Equal(t, []string{"T1"}, ch.left)
	require.False(t, markers.has("C1"))
	require.False(t, svc.Active("C1"))
	require.False(t, sess.poll.Running())

	// Сэмпл после остановки не должен оживить сессию.
	sess.applySample(models.LocationSample{TravelID: "T1", Latitude: 5})
	_, ok := sess.Location()
	require.False(t, ok)
}

func TestServerStopEvent_TearsDownSession(t *testing.T) {
	ch := newFakeChannel()
	svc := newTestService(ch, &fakeRiderAPI{})
	defer svc.StopAll()

	_, err := svc.Start(context.Background(), "T1", "C1", models.GeoPoint{})
	require.NoError(t, err)

	ch.push(t, channel.StopTracking("C1"), struct{}{})

	require.Eventually(t, func() bool {
		return !svc.Active("C1")
	}, time.Second, 5*time.Millisecond)
}

func TestApplySample_PublishesTelemetry(t *testing.T) {
	ch := newFakeChannel()
	pub := &fakePublisher{}
	svc := newTestService(ch, &fakeRiderAPI{err: context.DeadlineExceeded}).WithPublisher(pub)
	defer svc.StopAll()

	sess, err := svc.Start(context.Background(), "T1", "C1", models.GeoPoint{})
	require.NoError(t, err)

	sess.applySample(models.LocationSample{TravelID: "T1", Latitude: 3, Longitude: 4, Timestamp: time.Now().UTC()})
	require.Equal(t, 1, pub.count())
}

func TestSamplesFromOtherTravel_Ignored(t *testing.T) {
	ch := newFakeChannel()
	svc := newTestService(ch, &fakeRiderAPI{err: context.DeadlineExceeded})
	defer svc.StopAll()

	sess, err := svc.Start(context.Background(), "T1", "C1", models.GeoPoint{})
	require.NoError(t, err)

	ch.push(t, channel.EventRiderLocation, models.LocationSample{TravelID: "OTHER", Latitude: 42})
	_, ok := sess.Location()
	require.False(t, ok)
}
