package gpshttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/location"
)

func TestClient_Current(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fix", r.URL.Path)
		require.Equal(t, "high", r.URL.Query().Get("accuracy"))
		_, _ = w.Write([]byte(`{"ltd": 12.9716, "lng": 77.5946}`))
	}))
	defer srv.Close()

	fix, err := New(srv.URL).Current(context.Background(), location.AccuracyHigh)
	require.NoError(t, err)
	require.InDelta(t, 12.9716, fix.Point.Latitude, 1e-9)
	require.InDelta(t, 77.5946, fix.Point.Longitude, 1e-9)
	require.False(t, fix.At.IsZero(), "missing timestamp defaults to now")
}

func TestClient_Current_GatewayDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Current(context.Background(), location.AccuracyBalanced)
	require.Error(t, err)
}
