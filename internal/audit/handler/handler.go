package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"aegis/internal/audit/models"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/httputil"
	"aegis/pkg/requestcontext"
)

type Service interface {
	Record(ctx context.Context, in models.RecordInput) (*models.Record, error)
	Get(ctx context.Context, id string) (*models.Record, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*models.Record, error)
}

// IntegrityRunner triggers an on-demand integrity pass.
type IntegrityRunner interface {
	RunOnce(ctx context.Context) (*models.IntegrityReport, error)
}

type Middleware = func(http.Handler) http.Handler

type Handler struct {
	service     Service
	integrity   IntegrityRunner
	logger      *slog.Logger
	serviceAuth Middleware
	adminAuth   Middleware
}

type Option func(*Handler)

func WithServiceAuth(mw Middleware) Option {
	return func(h *Handler) { h.serviceAuth = mw }
}

func WithAdminAuth(mw Middleware) Option {
	return func(h *Handler) { h.adminAuth = mw }
}

func WithIntegrityRunner(runner IntegrityRunner) Option {
	return func(h *Handler) { h.integrity = runner }
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/audit-records", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if h.serviceAuth != nil {
				r.Use(h.serviceAuth)
			}
			r.Post("/", h.handleRecord)
		})

		r.Group(func(r chi.Router) {
			if h.adminAuth != nil {
				r.Use(h.adminAuth)
			}
			r.Get("/", h.handleListBySubject)
			r.Get("/{id}", h.handleGet)
			if h.integrity != nil {
				r.Post("/integrity/run", h.handleIntegrityRun)
			}
		})
	})
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[models.RecordInput](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.service.Record(ctx, *req)
	if err != nil {
		h.fail(ctx, "failed to record audit entry", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

type listResponse struct {
	Records []*models.Record `json:"records"`
	Count   int              `json:"count"`
}

func (h *Handler) handleListBySubject(w http.ResponseWriter, r *http.Request) {
	subjectID := strings.TrimSpace(r.URL.Query().Get("subjectId"))
	if subjectID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "subjectId is required"))
		return
	}
	recs, err := h.service.ListBySubject(r.Context(), subjectID)
	if err != nil {
		h.fail(r.Context(), "failed to list audit records", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Records: recs, Count: len(recs)})
}

func (h *Handler) handleIntegrityRun(w http.ResponseWriter, r *http.Request) {
	report, err := h.integrity.RunOnce(r.Context())
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "integrity run failed")
		h.fail(r.Context(), "failed to run integrity check", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) fail(ctx context.Context, msg string, err error) {
	if h.logger == nil {
		return
	}
	attrs := []any{"error", err, "request_id", requestcontext.RequestID(ctx)}
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, msg, attrs...)
		return
	}
	h.logger.WarnContext(ctx, msg, attrs...)
}
