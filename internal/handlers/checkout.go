package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lokapasar/api/internal/payments"
	"github.com/lokapasar/api/internal/platform/auth"
	"github.com/lokapasar/api/internal/platform/httpx"
	"github.com/lokapasar/api/internal/services"
)

const maxCheckoutRequestBody = 8 * 1024

// CheckoutHandlers turns carts and buy-now requests into orders.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.checkoutCart)
	r.Post("/buy-now", h.buyNow)
}

type checkoutRequest struct {
	AddressID      string   `json:"addressId"`
	PaymentMethod  string   `json:"paymentMethodId"`
	PaymentChannel string   `json:"paymentChannel"`
	ItemIDs        []string `json:"itemIds"`
	CustomerName   string   `json:"customerName"`
	CustomerEmail  string   `json:"customerEmail"`
	CustomerPhone  string   `json:"customerPhone"`
}

type buyNowRequest struct {
	ProductID      string `json:"productId"`
	Quantity       int    `json:"quantity"`
	Color          string `json:"color"`
	Size           string `json:"size"`
	ImageURL       string `json:"imageUrl"`
	AddressID      string `json:"addressId"`
	PaymentMethod  string `json:"paymentMethodId"`
	PaymentChannel string `json:"paymentChannel"`
	CustomerName   string `json:"customerName"`
	CustomerEmail  string `json:"customerEmail"`
	CustomerPhone  string `json:"customerPhone"`
}

type checkoutResponse struct {
	Order             orderPayload               `json:"order"`
	RedirectToSuccess bool                       `json:"redirect_to_success"`
	Payment           *paymentInstructionPayload `json:"payment,omitempty"`
}

type paymentInstructionPayload struct {
	Provider     string `json:"provider"`
	Reference    string `json:"reference,omitempty"`
	PaymentType  string `json:"payment_type,omitempty"`
	VABank       string `json:"va_bank,omitempty"`
	VANumber     string `json:"va_number,omitempty"`
	QRImageURL   string `json:"qr_image_url,omitempty"`
	PaymentURL   string `json:"payment_url,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	GrossAmount  int64  `json:"gross_amount"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

func (h *CheckoutHandlers) checkoutCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req checkoutRequest
	if !decodeCheckoutBody(ctx, w, r, &req) {
		return
	}

	result, err := h.checkout.CheckoutCart(ctx, services.CheckoutCartCommand{
		UserID:         uid,
		AddressID:      strings.TrimSpace(req.AddressID),
		PaymentMethod:  strings.TrimSpace(req.PaymentMethod),
		PaymentChannel: strings.TrimSpace(req.PaymentChannel),
		ItemIDs:        req.ItemIDs,
		CustomerName:   strings.TrimSpace(req.CustomerName),
		CustomerEmail:  strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:  strings.TrimSpace(req.CustomerPhone),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildCheckoutResponse(result))
}

func (h *CheckoutHandlers) buyNow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req buyNowRequest
	if !decodeCheckoutBody(ctx, w, r, &req) {
		return
	}

	result, err := h.checkout.BuyNow(ctx, services.BuyNowCommand{
		UserID:         uid,
		ProductID:      strings.TrimSpace(req.ProductID),
		Quantity:       req.Quantity,
		Color:          strings.TrimSpace(req.Color),
		Size:           strings.TrimSpace(req.Size),
		ImageURL:       strings.TrimSpace(req.ImageURL),
		AddressID:      strings.TrimSpace(req.AddressID),
		PaymentMethod:  strings.TrimSpace(req.PaymentMethod),
		PaymentChannel: strings.TrimSpace(req.PaymentChannel),
		CustomerName:   strings.TrimSpace(req.CustomerName),
		CustomerEmail:  strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:  strings.TrimSpace(req.CustomerPhone),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildCheckoutResponse(result))
}

func (h *CheckoutHandlers) requireIdentity(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return strings.TrimSpace(identity.UID), true
}

func decodeCheckoutBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func buildCheckoutResponse(result services.CheckoutResult) checkoutResponse {
	return checkoutResponse{
		Order:             buildOrderPayload(result.Order),
		RedirectToSuccess: result.RedirectToSuccess,
		Payment:           buildPaymentInstructionPayload(result.Payment),
	}
}

func buildPaymentInstructionPayload(instructions *payments.PaymentInstructions) *paymentInstructionPayload {
	if instructions == nil {
		return nil
	}
	return &paymentInstructionPayload{
		Provider:     instructions.Provider,
		Reference:    instructions.Reference,
		PaymentType:  instructions.PaymentType,
		VABank:       instructions.VABank,
		VANumber:     instructions.VANumber,
		QRImageURL:   instructions.QRImageURL,
		PaymentURL:   instructions.PaymentURL,
		Instructions: instructions.Instructions,
		GrossAmount:  instructions.GrossAmount,
		ExpiresAt:    formatTime(pointerTime(instructions.ExpiresAt)),
	}
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", "shipping address not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutMethodUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_method_unavailable", "payment method is not available", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutChannelRequired):
		httpx.WriteError(ctx, w, httpx.NewError("payment_channel_required", "a supported payment channel is required", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutNoItems):
		httpx.WriteError(ctx, w, httpx.NewError("no_items", "no items to check out", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", "a product in the order is unavailable", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "insufficient stock to reserve items", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment could not be initiated", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}
