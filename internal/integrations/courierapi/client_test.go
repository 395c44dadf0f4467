package courierapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/errs"
)

func TestClient_StatusHistory_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/order/statusHistory", r.URL.Path)
		require.Equal(t, "9876543210", r.URL.Query().Get("phoneNumber"))
		require.Equal(t, "C1", r.URL.Query().Get("consignmentId"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "status": "accepted",
  "statusHistory": [
    {"step":"Consignment Collected","completed":true,"updatedat":"2025-08-19T23:38:59.000Z"},
    {"step":"Consignment Delivered","completed":false}
  ]
}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	h, err := c.StatusHistory(context.Background(), "9876543210", "C1")
	require.NoError(t, err)
	require.Equal(t, "accepted", h.ServerStatus)
	require.Len(t, h.Steps, 2)
	require.True(t, h.Steps[0].Completed)
	require.NotNil(t, h.Steps[0].UpdatedAt)
	require.Nil(t, h.Steps[1].UpdatedAt)
}

func TestClient_SubmitPickup_SendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/travel/pickup", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req ConfirmRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "T1", req.TravelID)
		require.Equal(t, "1234", req.OTP)
		require.Equal(t, 12.9, req.Latitude)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.SubmitPickup(context.Background(), ConfirmRequest{
		TravelID: "T1", ConsignmentID: "C1", OTP: "1234", Latitude: 12.9, Longitude: 77.6,
	})
	require.NoError(t, err)
}

func TestClient_OTPMismatchIsValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"OTP does not match"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.SubmitDelivery(context.Background(), ConfirmRequest{TravelID: "T1", OTP: "0000"})
	require.Error(t, err)
	require.True(t, errs.IsKind(err, errs.KindValidation))
	require.Contains(t, err.Error(), "OTP does not match")
}

func TestClient_ServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.StatusHistory(context.Background(), "p", "c")
	require.True(t, errs.IsKind(err, errs.KindTransport))
}

func TestClient_TrackRider_WireLatitudeField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/travel/trackRider", r.URL.Path)
		// Бэкенд исторически шлёт "ltd" вместо "lat".
		_, _ = w.Write([]byte(`{"ltd":12.97,"lng":77.59,"timestamp":"2025-08-19T23:38:59Z"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	s, err := c.TrackRider(context.Background(), "T1", "9876543210")
	require.NoError(t, err)
	require.Equal(t, 12.97, s.Latitude)
	require.Equal(t, "T1", s.TravelID)
	require.False(t, s.Timestamp.IsZero())
}
