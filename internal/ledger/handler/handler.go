package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aegis/internal/ledger/models"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/guard"
	"aegis/pkg/platform/httputil"
	"aegis/pkg/requestcontext"
)

// Service is the ledger surface used by HTTP.
type Service interface {
	RecordHash(ctx context.Context, hash models.Hash, eventType string) (*models.HashEntry, error)
	VerifyHash(ctx context.Context, hash models.Hash) (*models.HashVerification, error)
	RecordCriticalEvent(ctx context.Context, eventType, subjectID string, details map[string]string) (*models.CriticalEvent, error)
	CriticalEvent(ctx context.Context, id string) (*models.CriticalEvent, error)
	RecordAdminApproval(ctx context.Context, approvalID, eventType, subjectID, approverID string, approved bool, details map[string]string) (*models.AdminApproval, error)
	Counts(ctx context.Context) (models.Counts, error)
	VerifyChain(ctx context.Context) (*models.ChainReport, error)
}

type Middleware = func(http.Handler) http.Handler

type Handler struct {
	service       Service
	logger        *slog.Logger
	serviceAuth   Middleware
	adminAuth     Middleware
	approvalGuard *guard.Pipeline
}

type Option func(*Handler)

// WithServiceAuth protects ledger writes made by internal services.
func WithServiceAuth(mw Middleware) Option {
	return func(h *Handler) { h.serviceAuth = mw }
}

// WithAdminAuth protects approvals and chain verification.
func WithAdminAuth(mw Middleware) Option {
	return func(h *Handler) { h.adminAuth = mw }
}

// WithApprovalGuard runs after admin auth on approval writes.
func WithApprovalGuard(p *guard.Pipeline) Option {
	return func(h *Handler) { h.approvalGuard = p }
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Get("/hash/{hash}", h.handleVerifyHash)
		r.Get("/critical-events/{id}", h.handleGetCriticalEvent)
		r.Get("/counts", h.handleCounts)

		r.Group(func(r chi.Router) {
			if h.serviceAuth != nil {
				r.Use(h.serviceAuth)
			}
			r.Post("/hash", h.handleRecordHash)
			r.Post("/critical-events", h.handleRecordCriticalEvent)
		})

		r.Group(func(r chi.Router) {
			if h.adminAuth != nil {
				r.Use(h.adminAuth)
			}
			approvals := http.Handler(http.HandlerFunc(h.handleRecordApproval))
			if h.approvalGuard != nil {
				approvals = h.approvalGuard.Wrap(approvals)
			}
			r.Method(http.MethodPost, "/approvals", approvals)
			r.Get("/chain/verify", h.handleVerifyChain)
		})
	})
}

type recordHashRequest struct {
	Hash      string `json:"hash"`
	EventType string `json:"eventType"`
}

type hashResponse struct {
	Hash       string `json:"hash"`
	EventType  string `json:"eventType"`
	Timestamp  int64  `json:"timestamp"`
	RecordedBy string `json:"recordedBy"`
	Sequence   int64  `json:"sequence"`
}

func (h *Handler) handleRecordHash(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[recordHashRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	hash, err := models.ParseHash(req.Hash)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entry, err := h.service.RecordHash(ctx, hash, req.EventType)
	if err != nil {
		h.logFailure(ctx, "failed to record hash", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, hashResponse{
		Hash:       entry.Hash.String(),
		EventType:  entry.EventType,
		Timestamp:  entry.Timestamp.UnixMilli(),
		RecordedBy: entry.RecordedBy,
		Sequence:   entry.Sequence,
	})
}

type verifyHashResponse struct {
	Exists    bool  `json:"exists"`
	Timestamp int64 `json:"timestamp"`
}

func (h *Handler) handleVerifyHash(w http.ResponseWriter, r *http.Request) {
	hash, err := models.ParseHash(chi.URLParam(r, "hash"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	v, err := h.service.VerifyHash(r.Context(), hash)
	if err != nil {
		h.logFailure(r.Context(), "failed to verify hash", err)
		httputil.WriteError(w, err)
		return
	}
	resp := verifyHashResponse{Exists: v.Exists}
	if v.Exists {
		resp.Timestamp = v.Timestamp.UnixMilli()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type criticalEventRequest struct {
	EventType string            `json:"eventType"`
	SubjectID string            `json:"subjectId"`
	Details   map[string]string `json:"details"`
}

func (h *Handler) handleRecordCriticalEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[criticalEventRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	event, err := h.service.RecordCriticalEvent(ctx, req.EventType, req.SubjectID, req.Details)
	if err != nil {
		h.logFailure(ctx, "failed to record critical event", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, event)
}

func (h *Handler) handleGetCriticalEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.service.CriticalEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, event)
}

type approvalRequest struct {
	ApprovalID string            `json:"approvalId"`
	EventType  string            `json:"eventType"`
	SubjectID  string            `json:"subjectId"`
	Approved   bool              `json:"approved"`
	Details    map[string]string `json:"details"`
}

func (h *Handler) handleRecordApproval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	approverID := requestcontext.SubjectID(ctx)
	if approverID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	req, err := httputil.DecodeJSON[approvalRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	approval, err := h.service.RecordAdminApproval(ctx, req.ApprovalID, req.EventType, req.SubjectID, approverID, req.Approved, req.Details)
	if err != nil {
		h.logFailure(ctx, "failed to record approval", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, approval)
}

func (h *Handler) handleCounts(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Counts(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.VerifyChain(r.Context())
	if err != nil {
		h.logFailure(r.Context(), "failed to verify chain", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
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
