// Package gpshttp reads fixes from a local GPS gateway (companion app or
// gpsd-style bridge exposing GET /fix).
package gpshttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/location"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/models"
)

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

type fixResponse struct {
	Latitude  float64   `json:"ltd"`
	Longitude float64   `json:"lng"`
	At        time.Time `json:"at"`
}

func (c *Client) Current(ctx context.Context, acc location.Accuracy) (location.Fix, error) {
	url := fmt.Sprintf("%s/fix?accuracy=%s", c.baseURL, acc)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return location.Fix{}, errors.Wrap(err, "build request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return location.Fix{}, errors.Wrap(err, "gps gateway request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return location.Fix{}, errors.Errorf("gps gateway status %d", resp.StatusCode)
	}

	var out fixResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return location.Fix{}, errors.Wrap(err, "decode fix")
	}
	at := out.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return location.Fix{
		Point: models.GeoPoint{Latitude: out.Latitude, Longitude: out.Longitude},
		At:    at,
	}, nil
}
