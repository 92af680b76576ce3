package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/orderdesk/api/internal/platform/httpx"
	"github.com/orderdesk/api/internal/services"
)

type updateSettingsRequest struct {
	TaxRateBps int64 `json:"tax_rate_bps"`
}

// SettingsHandlers exposes the commerce configuration document.
type SettingsHandlers struct {
	settings services.SettingsService
}

// NewSettingsHandlers constructs a new SettingsHandlers instance.
func NewSettingsHandlers(settings services.SettingsService) *SettingsHandlers {
	return &SettingsHandlers{settings: settings}
}

// Routes registers the /settings endpoints.
func (h *SettingsHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/commerce", h.getSettings)
	r.Put("/commerce", h.updateSettings)
}

func (h *SettingsHandlers) getSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("settings_service_unavailable", "settings service unavailable", http.StatusServiceUnavailable))
		return
	}

	settings, err := h.settings.Get(ctx)
	if err != nil {
		writeSettingsError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, settingsResponse{Settings: buildSettingsPayload(settings)})
}

func (h *SettingsHandlers) updateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("settings_service_unavailable", "settings service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req updateSettingsRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	settings, err := h.settings.Update(ctx, services.UpdateSettingsCommand{
		TaxRateBps: req.TaxRateBps,
		ActorID:    actorID(r),
	})
	if err != nil {
		writeSettingsError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, settingsResponse{Settings: buildSettingsPayload(settings)})
}

type settingsResponse struct {
	Settings settingsPayload `json:"settings"`
}

type settingsPayload struct {
	TaxRateBps int64  `json:"tax_rate_bps"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

func buildSettingsPayload(settings services.CommerceSettings) settingsPayload {
	return settingsPayload{
		TaxRateBps: settings.TaxRateBps,
		UpdatedAt:  formatTime(settings.UpdatedAt),
	}
}

func writeSettingsError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrSettingsInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("settings_error", "failed to process settings request", http.StatusInternalServerError))
	}
}
