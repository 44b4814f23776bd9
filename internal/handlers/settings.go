package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lokapasar/api/internal/domain"
	"github.com/lokapasar/api/internal/platform/httpx"
	"github.com/lokapasar/api/internal/services"
)

// SettingsHandlers exposes storefront-facing shipping settings and the active
// payment method catalog.
type SettingsHandlers struct {
	settings services.SettingsService
}

// NewSettingsHandlers constructs the settings handlers.
func NewSettingsHandlers(settings services.SettingsService) *SettingsHandlers {
	return &SettingsHandlers{settings: settings}
}

// Routes registers the /settings endpoints.
func (h *SettingsHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getShippingSettings)
	r.Get("/payment-methods", h.listPaymentMethods)
}

func (h *SettingsHandlers) getShippingSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("settings_unavailable", "settings service unavailable", http.StatusServiceUnavailable))
		return
	}

	settings, err := h.settings.GetShippingSettings(ctx)
	if err != nil {
		writeSettingsError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, shippingSettingsResponse{
		Settings: buildShippingSettingsPayload(settings),
	})
}

func (h *SettingsHandlers) listPaymentMethods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("settings_unavailable", "settings service unavailable", http.StatusServiceUnavailable))
		return
	}

	methods, err := h.settings.ListPaymentMethods(ctx, true)
	if err != nil {
		writeSettingsError(ctx, w, err)
		return
	}

	items := make([]paymentMethodPayload, 0, len(methods))
	for _, method := range methods {
		items = append(items, buildPaymentMethodPayload(method))
	}

	writeJSONResponse(w, http.StatusOK, paymentMethodListResponse{Items: items})
}

type shippingSettingsResponse struct {
	Settings shippingSettingsPayload `json:"settings"`
}

type shippingSettingsPayload struct {
	FreeShippingThreshold int64  `json:"free_shipping_threshold"`
	DefaultShippingCost   int64  `json:"default_shipping_cost"`
	UpdatedAt             string `json:"updated_at,omitempty"`
}

type paymentMethodListResponse struct {
	Items []paymentMethodPayload `json:"items"`
}

type paymentMethodPayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Fee         int64    `json:"fee"`
	Channels    []string `json:"channels,omitempty"`
	Description string   `json:"description,omitempty"`
	IsActive    bool     `json:"is_active"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

func buildShippingSettingsPayload(settings domain.GlobalShippingSettings) shippingSettingsPayload {
	return shippingSettingsPayload{
		FreeShippingThreshold: settings.FreeShippingThreshold,
		DefaultShippingCost:   settings.DefaultShippingCost,
		UpdatedAt:             formatTime(settings.UpdatedAt),
	}
}

func buildPaymentMethodPayload(method domain.PaymentMethod) paymentMethodPayload {
	return paymentMethodPayload{
		ID:          strings.TrimSpace(method.ID),
		Name:        strings.TrimSpace(method.Name),
		Type:        string(method.Type),
		Fee:         method.Fee,
		Channels:    method.Channels,
		Description: strings.TrimSpace(method.Description),
		IsActive:    method.IsActive,
		CreatedAt:   formatTime(method.CreatedAt),
		UpdatedAt:   formatTime(method.UpdatedAt),
	}
}

func writeSettingsError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrSettingsInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSettingsNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("settings_not_found", "settings not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("settings_error", "failed to process settings request", http.StatusInternalServerError))
	}
}
