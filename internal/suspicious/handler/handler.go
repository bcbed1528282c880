package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"aegis/internal/suspicious/models"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/httputil"
	"aegis/pkg/requestcontext"
)

type Service interface {
	Assess(ctx context.Context, req models.AssessRequest) (*models.Assessment, error)
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
	r.Group(func(r chi.Router) {
		if h.adminAuth != nil {
			r.Use(h.adminAuth)
		}
		r.Post("/activity/assess", h.handleAssess)
	})
}

// assessRequest defaults userAgent to the caller's own header when omitted.
type assessRequest struct {
	SubjectID string     `json:"subjectId"`
	Office    string     `json:"office"`
	At        *time.Time `json:"at"`
	UserAgent *string    `json:"userAgent"`
}

func (h *Handler) handleAssess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[assessRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	in := models.AssessRequest{SubjectID: req.SubjectID, Office: req.Office, UserAgent: r.UserAgent()}
	if req.At != nil {
		in.At = *req.At
	}
	if req.UserAgent != nil {
		in.UserAgent = *req.UserAgent
	}
	assessment, err := h.service.Assess(ctx, in)
	if err != nil {
		if h.logger != nil && dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "activity assessment failed", "error", err, "request_id", requestcontext.RequestID(ctx))
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, assessment)
}
