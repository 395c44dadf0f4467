package osrmhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/integrations/routing"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/models"
)

// Client talks to an OSRM-compatible routing service.
type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}
	return &Client{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type osrmResp struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry string  `json:"geometry"`
	} `json:"routes"`
}

func (c *Client) Route(ctx context.Context, from, to models.GeoPoint) (routing.Route, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return routing.Route{}, errors.Wrap(err, "parse base url")
	}
	// OSRM ожидает координаты в порядке lon,lat.
	u.Path = fmt.Sprintf("/route/v1/driving/%f,%f;%f,%f",
		from.Longitude, from.Latitude, to.Longitude, to.Latitude)
	q := u.Query()
	q.Set("overview", "full")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return routing.Route{}, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return routing.Route{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return routing.Route{}, fmt.Errorf("routing http %d", resp.StatusCode)
	}

	var r osrmResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return routing.Route{}, errors.Wrap(err, "decode")
	}
	if r.Code != "Ok" || len(r.Routes) == 0 {
		return routing.Route{}, fmt.Errorf("routing status=%s", r.Code)
	}

	return routing.Route{
		DistanceMeters:  r.Routes[0].Distance,
		DurationSeconds: r.Routes[0].Duration,
		Geometry:        r.Routes[0].Geometry,
	}, nil
}
