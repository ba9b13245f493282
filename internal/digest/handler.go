package digest

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mberezin/tubedigest/internal/pkg/httputil"
	"github.com/mberezin/tubedigest/internal/subscriptions"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrRunInProgress, Status: http.StatusConflict},
	{Error: ErrSendFailed, Status: http.StatusBadGateway},
	{Error: ErrMailDisabled, Status: http.StatusServiceUnavailable},
	{Error: subscriptions.ErrNotFound, Status: http.StatusNotFound},
}

// Handler handles the admin HTTP surface: stats, subscription oversight,
// test email delivery and batch triggering.
type Handler struct {
	service   *Service
	subs      *subscriptions.Service
	validator *validator.Validate
}

// NewHandler creates a new admin handler.
func NewHandler(service *Service, subs *subscriptions.Service) *Handler {
	return &Handler{
		service:   service,
		subs:      subs,
		validator: validator.New(),
	}
}

// RegisterRoutes registers admin routes. The caller wraps them in the auth
// and role middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Get("/stats", h.Stats)
		r.Get("/subscriptions", h.ListSubscriptions)
		r.Delete("/subscriptions/{id}", h.DeleteSubscription)
		r.Post("/send-test-email", h.SendTestEmail)
		r.Post("/run-notification-batch", h.RunBatch)
	})
}

// Stats handles GET /admin/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, stats)
}

// ListSubscriptions handles GET /admin/subscriptions: every subscription
// across all accounts.
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subs.ListAll(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, subs)
}

// DeleteSubscription handles DELETE /admin/subscriptions/{id}. Unlike the
// owner route, no ownership check applies.
func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.subs.AdminDelete(r.Context(), id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SendTestEmailRequest represents the request body for a test email.
type SendTestEmailRequest struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// SendTestEmail handles POST /admin/send-test-email. A relay failure maps
// to 502 so the operator sees the transport is broken.
func (h *Handler) SendTestEmail(w http.ResponseWriter, r *http.Request) {
	var req SendTestEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	if req.Subject == "" {
		req.Subject = "TubeDigest test email"
	}
	if req.Message == "" {
		req.Message = "If you can read this, outbound mail works."
	}

	if err := h.service.SendTestEmail(r.Context(), req.To, req.Subject, req.Message); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]string{"status": "sent", "recipient": req.To})
}

// RunBatch handles POST /admin/run-notification-batch. The run executes
// synchronously and the summary is returned to the caller.
func (h *Handler) RunBatch(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RunBatch(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, result)
}
