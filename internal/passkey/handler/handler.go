package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"aegis/internal/passkey/models"
	"aegis/internal/passkey/service"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/httputil"
	"aegis/pkg/requestcontext"
)

// Service is the pairing and registration surface used by HTTP.
type Service interface {
	CreateSession(ctx context.Context) (*models.Session, error)
	BeginAuthentication(ctx context.Context, id string) (json.RawMessage, error)
	Approve(ctx context.Context, id string, assertion []byte) (string, error)
	Deny(ctx context.Context, id string) error
	Status(ctx context.Context, id string) (*models.Status, error)
	BeginRegistration(ctx context.Context, subjectID string) (*service.RegistrationChallenge, error)
	FinishRegistration(ctx context.Context, subjectID, registrationID string, response []byte) (*models.Credential, error)
}

type Middleware = func(http.Handler) http.Handler

type Handler struct {
	service Service
	logger  *slog.Logger
	auth    Middleware
}

type Option func(*Handler)

// WithAuth protects the registration endpoints. Pairing stays
// unauthenticated: Device A has no session yet.
func WithAuth(mw Middleware) Option {
	return func(h *Handler) { h.auth = mw }
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/passkey", func(r chi.Router) {
		r.Route("/pair", func(r chi.Router) {
			r.Post("/start", h.handleStart)
			r.Post("/{sessionId}/begin", h.handleBegin)
			r.Get("/status/{sessionId}", h.handleStatus)
			r.Post("/approve", h.handleApprove)
			r.Post("/deny", h.handleDeny)
		})
		r.Group(func(r chi.Router) {
			if h.auth != nil {
				r.Use(h.auth)
			}
			r.Post("/register/begin", h.handleRegisterBegin)
			r.Post("/register/finish", h.handleRegisterFinish)
		})
	})
}

type startResponse struct {
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.CreateSession(r.Context())
	if err != nil {
		h.fail(w, r, "failed to create pairing session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, startResponse{SessionID: sess.ID, ExpiresAt: sess.ExpiresAt})
}

func (h *Handler) handleBegin(w http.ResponseWriter, r *http.Request) {
	options, err := h.service.BeginAuthentication(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.fail(w, r, "failed to begin pairing authentication", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, options)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

type approveRequest struct {
	SessionID string          `json:"sessionId"`
	Assertion json.RawMessage `json:"assertion"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.DecodeJSON[approveRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	userID, err := h.service.Approve(r.Context(), req.SessionID, req.Assertion)
	if err != nil {
		h.fail(w, r, "pairing approval failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"state": string(models.StateApproved), "userId": userID})
}

type denyRequest struct {
	SessionID string `json:"sessionId"`
}

func (h *Handler) handleDeny(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.DecodeJSON[denyRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Deny(r.Context(), req.SessionID); err != nil {
		h.fail(w, r, "pairing denial failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"state": string(models.StateDenied)})
}

func (h *Handler) handleRegisterBegin(w http.ResponseWriter, r *http.Request) {
	subjectID := requestcontext.SubjectID(r.Context())
	if subjectID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	challenge, err := h.service.BeginRegistration(r.Context(), subjectID)
	if err != nil {
		h.fail(w, r, "failed to begin passkey registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, challenge)
}

type finishRequest struct {
	RegistrationID string          `json:"registrationId"`
	Credential     json.RawMessage `json:"credential"`
}

func (h *Handler) handleRegisterFinish(w http.ResponseWriter, r *http.Request) {
	subjectID := requestcontext.SubjectID(r.Context())
	if subjectID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	req, err := httputil.DecodeJSON[finishRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cred, err := h.service.FinishRegistration(r.Context(), subjectID, req.RegistrationID, req.Credential)
	if err != nil {
		h.fail(w, r, "failed to finish passkey registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"credentialId": cred.CredentialID,
		"createdAt":    cred.CreatedAt,
	})
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
