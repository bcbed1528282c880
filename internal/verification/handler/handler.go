package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"aegis/internal/verification/models"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/httputil"
	"aegis/pkg/requestcontext"
)

// Service is the verification surface used by HTTP.
type Service interface {
	Issue(ctx context.Context, subjectID string, purpose models.Purpose) (*models.IssueResult, error)
	Verify(ctx context.Context, subjectID string, purpose models.Purpose, code string) error
	Status(ctx context.Context, subjectID string, purpose models.Purpose) (*models.Status, error)
}

// ContainmentChecker reports whether an open incident has contained a subject.
type ContainmentChecker interface {
	IsContained(ctx context.Context, subjectID string) (bool, error)
}

type Handler struct {
	service     Service
	containment ContainmentChecker
	logger      *slog.Logger
}

type Option func(*Handler)

// WithContainment blocks sensitive confirmations for contained subjects.
func WithContainment(c ContainmentChecker) Option {
	return func(h *Handler) { h.containment = c }
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/verify", func(r chi.Router) {
		r.Post("/start", h.handleStart)
		r.Post("/confirm", h.handleConfirm)
		r.Get("/status", h.handleStatus)
	})
}

type startRequest struct {
	SubjectID string `json:"subjectId"`
	Purpose   string `json:"purpose"`
}

type startResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
}

type deliveryFailedResponse struct {
	Error            string    `json:"error"`
	ErrorDescription string    `json:"error_description"`
	ExpiresAt        time.Time `json:"expires_at"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[startRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.Issue(ctx, req.SubjectID, models.Purpose(req.Purpose))
	if err != nil {
		// The code stays active, so the client can offer a resend.
		if res != nil && dErrors.HasCode(err, dErrors.CodeDeliveryFailed) {
			h.logFailure(ctx, "verification delivery failed", err)
			httputil.WriteJSON(w, http.StatusBadGateway, deliveryFailedResponse{
				Error:            string(dErrors.CodeDeliveryFailed),
				ErrorDescription: "code issued but delivery failed",
				ExpiresAt:        res.ExpiresAt,
			})
			return
		}
		h.logFailure(ctx, "failed to issue verification code", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, startResponse{ExpiresAt: res.ExpiresAt})
}

type confirmRequest struct {
	SubjectID string `json:"subjectId"`
	Purpose   string `json:"purpose"`
	Code      string `json:"code"`
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[confirmRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	purpose := models.Purpose(req.Purpose)

	if purpose.Sensitive() && h.containment != nil && req.SubjectID != "" {
		contained, err := h.containment.IsContained(ctx, req.SubjectID)
		if err != nil {
			h.logFailure(ctx, "containment check failed", err)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "containment check failed"))
			return
		}
		if contained {
			httputil.WriteError(w, dErrors.New(dErrors.CodeContained, "account is under containment"))
			return
		}
	}

	if err := h.service.Verify(ctx, req.SubjectID, purpose, req.Code); err != nil {
		h.logFailure(ctx, "verification failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"consumed": true})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := h.service.Status(r.Context(), q.Get("subjectId"), models.Purpose(q.Get("purpose")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
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
