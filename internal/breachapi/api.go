// Package breachapi exposes the HTTP surface for operating on tracked
// breaches: listing, snoozing, marking handled, and triggering sweeps.
package breachapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/slawatch/internal/monitor"
)

// MonitorService defines the business operations breachapi needs.
type MonitorService interface {
	List(ctx context.Context) []monitor.Breach
	Snooze(ctx context.Context, key monitor.Key, until time.Time) error
	MarkHandled(ctx context.Context, key monitor.Key) error
	Sweep(ctx context.Context) (*monitor.Report, error)
	LastReport(ctx context.Context) (*monitor.Report, bool)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    MonitorService
}

// New creates a new API handler.
func New(logger log.Logger, svc MonitorService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("monitor service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/breaches", a.handleListBreaches)
		r.Post("/breaches/{channelID}/{messageID}/snooze", a.handleSnooze)
		r.Post("/breaches/{channelID}/{messageID}/handled", a.handleMarkHandled)
		r.Post("/sweeps", a.handleTriggerSweep)
		r.Get("/sweeps/latest", a.handleLatestSweep)
	})
}

func (a *API) handleListBreaches(w http.ResponseWriter, r *http.Request) {
	breaches := a.svc.List(r.Context())

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int("slawatch.breaches", len(breaches)))

	writeJSON(w, http.StatusOK, map[string]any{"breaches": breaches})
}

// snoozeRequest accepts either an absolute deadline or a duration in minutes.
type snoozeRequest struct {
	Until   time.Time `json:"until,omitzero"`
	Minutes int       `json:"minutes,omitempty"`
}

func (a *API) handleSnooze(w http.ResponseWriter, r *http.Request) {
	key := keyFromRequest(r)

	var req snoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	until := req.Until
	if until.IsZero() {
		if req.Minutes <= 0 {
			writeError(w, http.StatusBadRequest, "either until or minutes is required")
			return
		}
		until = time.Now().UTC().Add(time.Duration(req.Minutes) * time.Minute)
	}
	if !until.After(time.Now()) {
		writeError(w, http.StatusBadRequest, "snooze deadline is in the past")
		return
	}

	if err := a.svc.Snooze(r.Context(), key, until); err != nil {
		a.respondOpError(w, r, err, "snooze failed", key)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channel_id":    key.ChannelID,
		"message_id":    key.MessageID,
		"snoozed_until": until,
	})
}

func (a *API) handleMarkHandled(w http.ResponseWriter, r *http.Request) {
	key := keyFromRequest(r)

	if err := a.svc.MarkHandled(r.Context(), key); err != nil {
		a.respondOpError(w, r, err, "mark handled failed", key)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channel_id": key.ChannelID,
		"message_id": key.MessageID,
		"handled":    true,
	})
}

func (a *API) handleTriggerSweep(w http.ResponseWriter, r *http.Request) {
	report, err := a.svc.Sweep(r.Context())
	if err != nil {
		if errors.Is(err, monitor.ErrSweepInProgress) {
			writeError(w, http.StatusConflict, "sweep already in progress")
			return
		}
		a.logger.Error(r.Context(), err, "sweep failed")
		// the sweep ran; surface the partial report alongside the failure
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "sweep failed",
			"report": report,
		})
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("slawatch.sweep.id", report.ID))

	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleLatestSweep(w http.ResponseWriter, r *http.Request) {
	report, ok := a.svc.LastReport(r.Context())
	if !ok {
		writeError(w, http.StatusNotFound, "no sweep has run yet")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) respondOpError(w http.ResponseWriter, r *http.Request, err error, msg string, key monitor.Key) {
	if errors.Is(err, monitor.ErrNotTracked) {
		writeError(w, http.StatusNotFound, "not a tracked breach")
		return
	}
	a.logger.Error(r.Context(), err, msg, "channel", key.ChannelID, "message", key.MessageID)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func keyFromRequest(r *http.Request) monitor.Key {
	return monitor.Key{
		ChannelID: chi.URLParam(r, "channelID"),
		MessageID: chi.URLParam(r, "messageID"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
