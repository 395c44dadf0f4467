// Package courierapi is the HTTP client for the courier backend the core
// treats as an opaque collaborator: status history, OTP-gated pickup and
// delivery confirmation, rider position and rating submission.
package courierapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/errs"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/models"
)

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}
	return &Client{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// History is a status-history snapshot: the server's own status word plus the
// ordered step log the client derives the display status from.
type History struct {
	ServerStatus string              `json:"status"`
	Steps        []models.StatusStep `json:"statusHistory"`
}

func (c *Client) StatusHistory(ctx context.Context, phoneNumber, consignmentID string) (History, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return History{}, errors.Wrap(err, "parse base url")
	}
	u.Path = "/order/statusHistory"
	q := u.Query()
	q.Set("phoneNumber", phoneNumber)
	q.Set("consignmentId", consignmentID)
	u.RawQuery = q.Encode()

	var out History
	if err := c.getJSON(ctx, u.String(), &out); err != nil {
		return History{}, err
	}
	return out, nil
}

type ConfirmRequest struct {
	TravelID      string  `json:"travelId"`
	ConsignmentID string  `json:"consignmentId"`
	OTP           string  `json:"otp"`
	Latitude      float64 `json:"lat"`
	Longitude     float64 `json:"lng"`
}

// SubmitPickup confirms physical collection; the server compares the OTP
// against the sender-side code.
func (c *Client) SubmitPickup(ctx context.Context, req ConfirmRequest) error {
	return c.postJSON(ctx, "/travel/pickup", req, nil)
}

// SubmitDelivery confirms hand-over; the server compares the receiver-side code.
func (c *Client) SubmitDelivery(ctx context.Context, req ConfirmRequest) error {
	return c.postJSON(ctx, "/travel/deliver", req, nil)
}

// TrackRider is the polling twin of the riderLocationUpdate channel event.
func (c *Client) TrackRider(ctx context.Context, travelID, phoneNumber string) (models.LocationSample, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return models.LocationSample{}, errors.Wrap(err, "parse base url")
	}
	u.Path = "/travel/trackRider"
	q := u.Query()
	q.Set("travelId", travelID)
	q.Set("phoneNumber", phoneNumber)
	u.RawQuery = q.Encode()

	var out models.LocationSample
	if err := c.getJSON(ctx, u.String(), &out); err != nil {
		return models.LocationSample{}, err
	}
	if out.TravelID == "" {
		out.TravelID = travelID
	}
	return out, nil
}

type ratingRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	models.Rating
}

func (c *Client) SubmitRating(ctx context.Context, phoneNumber string, r models.Rating) error {
	return c.postJSON(ctx, "/rating", ratingRequest{PhoneNumber: phoneNumber, Rating: r}, nil)
}

func (c *Client) getJSON(ctx context.Context, rawurl string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return errs.Transport(err, "courier api request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode/100 == 2:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "decode response")
		}
		return nil
	case resp.StatusCode/100 == 4:
		// Сервер присылает человекочитаемое сообщение (например, OTP mismatch).
		var body struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Message == "" {
			body.Message = fmt.Sprintf("courier api rejected request (http %d)", resp.StatusCode)
		}
		return errs.Validation(body.Message)
	default:
		return errs.Transport(nil, fmt.Sprintf("courier api http %d", resp.StatusCode))
	}
}
