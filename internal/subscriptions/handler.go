package subscriptions

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mberezin/tubedigest/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrNotFound, Status: http.StatusNotFound},
	{Error: ErrNotOwner, Status: http.StatusForbidden},
	{Error: ErrDuplicateChannel, Status: http.StatusConflict},
	{Error: ErrInvalidChannelURL, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for the subscriptions module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new subscriptions handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers owner-scoped subscription routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/me/subscriptions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Add)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

// List handles GET /me/subscriptions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	email := httputil.GetAccountEmail(r.Context())

	subs, err := h.service.ListByAccount(r.Context(), email)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, subs)
}

// AddRequest represents the request body for adding a channel.
type AddRequest struct {
	ChannelURL  string `json:"channel_url" validate:"required"`
	ChannelName string `json:"channel_name"`
}

// Add handles POST /me/subscriptions.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	email := httputil.GetAccountEmail(r.Context())

	var req AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	sub, err := h.service.Add(r.Context(), email, req.ChannelURL, req.ChannelName)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, sub)
}

// UpdateRequest represents the request body for updating a subscription.
type UpdateRequest struct {
	ChannelURL  *string `json:"channel_url"`
	ChannelName *string `json:"channel_name"`
	IsActive    *bool   `json:"is_active"`
}

// Update handles PUT /me/subscriptions/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	email := httputil.GetAccountEmail(r.Context())
	id := chi.URLParam(r, "id")

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	sub, err := h.service.Update(r.Context(), email, id, UpdateInput(req))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, sub)
}

// Delete handles DELETE /me/subscriptions/{id}. Hard delete, irreversible;
// confirmation is the client's concern.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	email := httputil.GetAccountEmail(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), email, id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
