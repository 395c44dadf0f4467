package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/channel"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/errs"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/models"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/scheduler"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/services/consignments"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/services/rating"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/services/tracker"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/storage/pgjournal"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/timefmt"
)

type agentHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	// baseCtx owns tracking sessions started over HTTP; request contexts die
	// with the request.
	baseCtx context.Context

	channel      *channel.Manager
	consignments *consignments.Service
	tracker      *tracker.Service
	rating       *rating.Service
	journal      *pgjournal.Storage // optional
}

func (o agentHTTPOpts) base() context.Context {
	if o.baseCtx != nil {
		return o.baseCtx
	}
	return context.Background()
}

func runAgentHTTPServer(ctx context.Context, opts agentHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8084"
	}
	if opts.baseCtx == nil {
		opts.baseCtx = ctx
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newAgentRouter(opts)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	err = srv.Serve(lis)
	if err == http.ErrServerClosed && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func newAgentRouter(opts agentHTTPOpts) http.Handler {
	r := chi.NewRouter()
	norm := timefmt.New(nil)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"channel":     opts.channel.State(),
			"tracking":    opts.tracker.Stats(),
			"activeTasks": scheduler.Active(),
		})
	})

	r.Post("/channel/retry", func(w http.ResponseWriter, r *http.Request) {
		if err := opts.channel.Retry(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, opts.channel.State())
	})

	r.Get("/consignments/{consignmentID}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "consignmentID")
		out := map[string]any{"consignmentId": id}
		if st, ok := opts.consignments.Status(id); ok {
			out["status"] = st
		} else if opts.journal != nil {
			// Холодный старт: до первого refresh отдаём журнал.
			if snap, err := opts.journal.GetSnapshot(r.Context(), id); err == nil && snap != nil {
				out["status"] = snap.Status
				out["updated"] = norm.NormalizeOrPlaceholder(snap.UpdatedAt)
				out["journalled"] = true
			}
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/consignments/{consignmentID}/refresh", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TravelID string `json:"travelId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		c, err := opts.consignments.Refresh(r.Context(), body.TravelID, chi.URLParam(r, "consignmentID"))
		if err != nil {
			writeError(w, err)
			return
		}
		if c.Status == models.StatusDelivered {
			// Трекинг живёт только пока посылка в пути.
			opts.tracker.Stop(c.ConsignmentID)
		}
		writeJSON(w, http.StatusOK, consignmentView(norm, c))
	})

	r.Post("/consignments/{consignmentID}/pickup", confirmHandler(opts, norm, opts.consignments.SubmitPickup))
	r.Post("/consignments/{consignmentID}/deliver", confirmHandler(opts, norm, opts.consignments.SubmitDelivery))

	r.Post("/consignments/{consignmentID}/track", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TravelID    string          `json:"travelId"`
			Destination models.GeoPoint `json:"destination"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, errs.Validation("malformed request body"))
			return
		}
		sess, err := opts.tracker.Start(opts.base(), body.TravelID, chi.URLParam(r, "consignmentID"), body.Destination)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess.Stats())
	})

	r.Delete("/consignments/{consignmentID}/track", func(w http.ResponseWriter, r *http.Request) {
		opts.tracker.Stop(chi.URLParam(r, "consignmentID"))
		writeJSON(w, http.StatusOK, map[string]any{"stopped": true})
	})

	r.Get("/consignments/{consignmentID}/rate-prompt", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "consignmentID")
		st, _ := opts.consignments.Status(id)
		writeJSON(w, http.StatusOK, map[string]any{
			"prompt": opts.rating.ShouldPrompt(r.Context(), id, st),
		})
	})

	r.Post("/consignments/{consignmentID}/rate", func(w http.ResponseWriter, r *http.Request) {
		var body models.Rating
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, errs.Validation("malformed request body"))
			return
		}
		body.ConsignmentID = chi.URLParam(r, "consignmentID")
		if err := opts.rating.Submit(r.Context(), body); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rated": true})
	})

	return r
}

func confirmHandler(
	opts agentHTTPOpts,
	norm *timefmt.Normalizer,
	submit func(ctx context.Context, travelID, consignmentID, otp string) (models.Consignment, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TravelID    string          `json:"travelId"`
			OTP         string          `json:"otp"`
			Destination models.GeoPoint `json:"destination"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, errs.Validation("malformed request body"))
			return
		}
		c, err := submit(r.Context(), body.TravelID, chi.URLParam(r, "consignmentID"), body.OTP)
		if err != nil {
			writeError(w, err)
			return
		}
		switch c.Status {
		case models.StatusCollected:
			// Посылка поехала — трекинг стартует сразу, без отдельного вызова.
			if _, err := opts.tracker.Start(opts.base(), body.TravelID, c.ConsignmentID, body.Destination); err != nil {
				slog.Warn("tracking not started", "consignment_id", c.ConsignmentID, "error", err.Error())
			}
		case models.StatusDelivered:
			opts.tracker.Stop(c.ConsignmentID)
		}
		writeJSON(w, http.StatusOK, consignmentView(norm, c))
	}
}

// consignmentView decorates the snapshot with display-ready step timestamps;
// unparseable server times degrade to the placeholder, never an error.
type stepView struct {
	models.StatusStep
	Display timefmt.Normalized `json:"display"`
}

func consignmentView(norm *timefmt.Normalizer, c models.Consignment) map[string]any {
	steps := make([]stepView, 0, len(c.History))
	for _, st := range c.History {
		var raw any
		if st.UpdatedAt != nil {
			raw = *st.UpdatedAt
		}
		steps = append(steps, stepView{StatusStep: st, Display: norm.NormalizeOrPlaceholder(raw)})
	}
	return map[string]any{
		"consignmentId": c.ConsignmentID,
		"travelId":      c.TravelID,
		"status":        c.Status,
		"statusHistory": steps,
		"updatedAt":     c.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	out := map[string]any{"error": err.Error()}

	var e *errs.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case errs.KindValidation, errs.KindFormat:
			code = http.StatusBadRequest
		case errs.KindConfiguration:
			code = http.StatusConflict
		case errs.KindTransport:
			code = http.StatusBadGateway
		case errs.KindLocation:
			code = http.StatusServiceUnavailable
			out["remediation"] = e.Remediation
		}
	}
	writeJSON(w, code, out)
}
