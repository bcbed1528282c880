package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"aegis/internal/incident/models"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/httputil"
	"aegis/pkg/requestcontext"
)

// Service is the incident surface used by HTTP.
type Service interface {
	Get(ctx context.Context, id string) (*models.Incident, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Incident, error)
	Stats(ctx context.Context) (*models.Stats, error)
	Acknowledge(ctx context.Context, id string, containment *bool) (*models.Incident, error)
	SetContainment(ctx context.Context, id string, active bool) (*models.Incident, error)
	Resolve(ctx context.Context, id, notes string, containment bool) (*models.Incident, error)
}

type Middleware = func(http.Handler) http.Handler

type Handler struct {
	service   Service
	logger    *slog.Logger
	adminAuth Middleware
}

type Option func(*Handler)

func WithAdminAuth(mw Middleware) Option {
	return func(h *Handler) { h.adminAuth = mw }
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		if h.adminAuth != nil {
			r.Use(h.adminAuth)
		}
		r.Get("/", h.handleList)
		r.Get("/stats", h.handleStats)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/ack", h.handleAcknowledge)
		r.Post("/{id}/contain", h.handleContain)
		r.Post("/{id}/resolve", h.handleResolve)
	})
}

type listResponse struct {
	Incidents []*models.Incident `json:"incidents"`
	Count     int                `json:"count"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ListFilter{
		Status:   models.Status(q.Get("status")),
		Severity: models.Severity(q.Get("severity")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}
	incidents, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "failed to list incidents", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Incidents: incidents, Count: len(incidents)})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.fail(w, r, "failed to count incidents", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	inc, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "failed to get incident", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inc)
}

type acknowledgeRequest struct {
	ContainmentActive *bool `json:"containmentActive"`
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOptional[acknowledgeRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	inc, err := h.service.Acknowledge(r.Context(), chi.URLParam(r, "id"), req.ContainmentActive)
	if err != nil {
		h.fail(w, r, "failed to acknowledge incident", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inc)
}

type containRequest struct {
	Active *bool `json:"active"`
}

func (h *Handler) handleContain(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.DecodeJSON[containRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Active == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "active is required"))
		return
	}
	inc, err := h.service.SetContainment(r.Context(), chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		h.fail(w, r, "failed to update containment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inc)
}

type resolveRequest struct {
	Notes             string `json:"notes"`
	ContainmentActive bool   `json:"containmentActive"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOptional[resolveRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	inc, err := h.service.Resolve(r.Context(), chi.URLParam(r, "id"), req.Notes, req.ContainmentActive)
	if err != nil {
		h.fail(w, r, "failed to resolve incident", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inc)
}

// decodeOptional accepts an empty body as the zero request.
func decodeOptional[T any](r *http.Request) (*T, error) {
	if r.ContentLength == 0 {
		return new(T), nil
	}
	return httputil.DecodeJSON[T](r)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if h.logger != nil {
		ctx := r.Context()
		attrs := []any{"error", err, "request_id", requestcontext.RequestID(ctx)}
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, msg, attrs...)
		} else {
			h.logger.WarnContext(ctx, msg, attrs...)
		}
	}
	httputil.WriteError(w, err)
}
