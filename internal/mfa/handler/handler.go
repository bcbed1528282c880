package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aegis/internal/mfa/models"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/httputil"
	"aegis/pkg/requestcontext"
)

// Service is the MFA surface used by HTTP.
type Service interface {
	Setup(ctx context.Context, subjectID string) (*models.SetupResult, error)
	Verify(ctx context.Context, subjectID, code string) (*models.VerifyResult, error)
	Disable(ctx context.Context, subjectID string, req models.DisableRequest) error
	Challenge(ctx context.Context, subjectID string) (*models.Challenge, error)
	VerifyChallenge(ctx context.Context, subjectID, code string) (models.ChallengeMethod, error)
	CredentialChanged(ctx context.Context, subjectID string, kind models.CredentialChange) (*models.Status, error)
	Status(ctx context.Context, subjectID string) (*models.Status, error)
}

type ContainmentChecker interface {
	IsContained(ctx context.Context, subjectID string) (bool, error)
}

type Middleware = func(http.Handler) http.Handler

type Handler struct {
	service     Service
	logger      *slog.Logger
	auth        Middleware
	containment ContainmentChecker
}

type Option func(*Handler)

// WithAuth installs the bearer token middleware for every route.
func WithAuth(mw Middleware) Option {
	return func(h *Handler) { h.auth = mw }
}

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
	r.Group(func(r chi.Router) {
		if h.auth != nil {
			r.Use(h.auth)
		}
		r.Route("/mfa", func(r chi.Router) {
			r.Post("/setup", h.handleSetup)
			r.Post("/verify", h.handleVerify)
			r.Post("/disable", h.handleDisable)
			r.Get("/status", h.handleStatus)
			r.Post("/challenge", h.handleChallenge)
			r.Post("/challenge/verify", h.handleVerifyChallenge)
		})
		r.Post("/account/credential-changed", h.handleCredentialChanged)
	})
}

type codeRequest struct {
	Code string `json:"code"`
}

type disableRequest struct {
	Code      string `json:"code"`
	EmailCode string `json:"emailCode"`
}

type credentialChangedRequest struct {
	Kind string `json:"kind"`
}

func (h *Handler) handleSetup(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := h.subject(w, r)
	if !ok {
		return
	}
	res, err := h.service.Setup(r.Context(), subjectID)
	if err != nil {
		h.fail(w, r, "mfa setup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := h.subject(w, r)
	if !ok {
		return
	}
	req, err := httputil.DecodeJSON[codeRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.Verify(r.Context(), subjectID, req.Code)
	if err != nil {
		h.fail(w, r, "mfa verify failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, ok := h.subject(w, r)
	if !ok {
		return
	}
	req, err := httputil.DecodeJSON[disableRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if h.containment != nil {
		contained, err := h.containment.IsContained(ctx, subjectID)
		if err != nil {
			h.fail(w, r, "containment check failed", dErrors.Wrap(err, dErrors.CodeInternal, "containment check failed"))
			return
		}
		if contained {
			httputil.WriteError(w, dErrors.New(dErrors.CodeContained, "account is under containment"))
			return
		}
	}
	if err := h.service.Disable(ctx, subjectID, models.DisableRequest{TOTPCode: req.Code, EmailCode: req.EmailCode}); err != nil {
		h.fail(w, r, "mfa disable failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"state": string(models.StateDisabled)})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := h.subject(w, r)
	if !ok {
		return
	}
	status, err := h.service.Status(r.Context(), subjectID)
	if err != nil {
		h.fail(w, r, "mfa status failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := h.subject(w, r)
	if !ok {
		return
	}
	ch, err := h.service.Challenge(r.Context(), subjectID)
	if err != nil {
		h.fail(w, r, "mfa challenge failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ch)
}

func (h *Handler) handleVerifyChallenge(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := h.subject(w, r)
	if !ok {
		return
	}
	req, err := httputil.DecodeJSON[codeRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	method, err := h.service.VerifyChallenge(r.Context(), subjectID, req.Code)
	if err != nil {
		h.fail(w, r, "mfa challenge verify failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"verified": true, "method": method})
}

func (h *Handler) handleCredentialChanged(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := h.subject(w, r)
	if !ok {
		return
	}
	req, err := httputil.DecodeJSON[credentialChangedRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status, err := h.service.CredentialChanged(r.Context(), subjectID, models.CredentialChange(req.Kind))
	if err != nil {
		h.fail(w, r, "credential change handling failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) subject(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := requestcontext.SubjectID(r.Context())
	if id == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return id, true
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
