package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	domain "github.com/lokapasar/api/internal/domain"
	"github.com/lokapasar/api/internal/payments"
	"github.com/lokapasar/api/internal/platform/httpx"
	"github.com/lokapasar/api/internal/services"
)

const (
	maxWebhookBodySize = 64 * 1024
	carrierActorID     = "carrier"
)

// MidtransSignatureVerifier checks the signature Midtrans attaches to
// HTTP notifications. *payments.MidtransProvider satisfies it.
type MidtransSignatureVerifier interface {
	VerifyNotificationSignature(orderID, statusCode, grossAmount, signature string) bool
}

// WebhookHandlersDeps bundles collaborators for the webhook endpoints.
type WebhookHandlersDeps struct {
	Orders              services.OrderService
	Midtrans            MidtransSignatureVerifier
	StripeWebhookSecret string
	RateLimit           int
	Logger              func(ctx context.Context, event string, fields map[string]any)
}

// WebhookHandlers receives payment gateway and shipping carrier callbacks.
type WebhookHandlers struct {
	orders              services.OrderService
	midtrans            MidtransSignatureVerifier
	stripeWebhookSecret string
	limiter             rateLimiter
	logger              func(ctx context.Context, event string, fields map[string]any)
}

// NewWebhookHandlers constructs the webhook handlers.
func NewWebhookHandlers(deps WebhookHandlersDeps) (*WebhookHandlers, error) {
	if deps.Orders == nil {
		return nil, errors.New("webhook handlers: order service is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	h := &WebhookHandlers{
		orders:              deps.Orders,
		midtrans:            deps.Midtrans,
		stripeWebhookSecret: strings.TrimSpace(deps.StripeWebhookSecret),
		logger:              logger,
	}
	if deps.RateLimit > 0 {
		h.limiter = newSimpleRateLimiter(deps.RateLimit, rateLimitWindow, nil)
	}
	return h, nil
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/midtrans", h.midtransNotification)
	r.Post("/payments/stripe", h.stripeNotification)
	r.Post("/shipping", h.shippingUpdate)
}

type midtransNotificationPayload struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	SettlementTime    string `json:"settlement_time"`
}

func (h *WebhookHandlers) midtransNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allow(ctx, w, r) {
		return
	}
	if h.midtrans == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "midtrans notifications not configured", http.StatusServiceUnavailable))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read notification body", http.StatusBadRequest))
		return
	}

	var payload midtransNotificationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "notification body must be valid JSON", http.StatusBadRequest))
		return
	}

	orderNumber := strings.TrimSpace(payload.OrderID)
	if orderNumber == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_id is required", http.StatusBadRequest))
		return
	}

	if !h.midtrans.VerifyNotificationSignature(payload.OrderID, payload.StatusCode, payload.GrossAmount, payload.SignatureKey) {
		h.logger(ctx, "webhook.midtrans.signature_rejected", map[string]any{"orderNumber": orderNumber})
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "notification signature mismatch", http.StatusUnauthorized))
		return
	}

	details := payments.PaymentDetails{
		Provider:  "midtrans",
		Reference: strings.TrimSpace(payload.TransactionID),
		Status:    payments.MapMidtransNotificationStatus(payload.TransactionStatus, payload.FraudStatus),
		RawStatus: strings.TrimSpace(payload.TransactionStatus),
		SettledAt: payments.ParseMidtransNotificationTime(payload.SettlementTime),
	}
	if amount, err := strconv.ParseFloat(strings.TrimSpace(payload.GrossAmount), 64); err == nil {
		details.GrossAmount = int64(amount)
	}

	if _, err := h.orders.ApplyGatewayNotification(ctx, orderNumber, details); err != nil {
		h.writeNotificationError(ctx, w, orderNumber, err)
		return
	}

	h.logger(ctx, "webhook.midtrans.applied", map[string]any{
		"orderNumber": orderNumber,
		"status":      string(details.Status),
	})
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WebhookHandlers) stripeNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allow(ctx, w, r) {
		return
	}
	if h.stripeWebhookSecret == "" {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "stripe notifications not configured", http.StatusServiceUnavailable))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read event body", http.StatusBadRequest))
		return
	}

	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), h.stripeWebhookSecret)
	if err != nil {
		h.logger(ctx, "webhook.stripe.signature_rejected", map[string]any{"error": err.Error()})
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "event signature mismatch", http.StatusUnauthorized))
		return
	}

	var status payments.Status
	switch event.Type {
	case "checkout.session.completed":
		status = payments.StatusSucceeded
	case "checkout.session.expired":
		status = payments.StatusFailed
	default:
		// Unhandled event types are acknowledged so Stripe stops retrying.
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "event payload is not a checkout session", http.StatusBadRequest))
		return
	}

	orderNumber := strings.TrimSpace(session.ClientReferenceID)
	if orderNumber == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "checkout session has no order reference", http.StatusBadRequest))
		return
	}

	details := payments.PaymentDetails{
		Provider:    "stripe",
		Reference:   session.ID,
		Status:      status,
		GrossAmount: session.AmountTotal,
		RawStatus:   string(event.Type),
	}

	if _, err := h.orders.ApplyGatewayNotification(ctx, orderNumber, details); err != nil {
		h.writeNotificationError(ctx, w, orderNumber, err)
		return
	}

	h.logger(ctx, "webhook.stripe.applied", map[string]any{
		"orderNumber": orderNumber,
		"status":      string(status),
	})
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

type shippingUpdateRequest struct {
	OrderNumber  string `json:"orderNumber"`
	Status       string `json:"status"`
	TrackingCode string `json:"trackingCode"`
	Note         string `json:"note"`
}

// shippingUpdate moves an order along the fulfilment axis when the carrier
// reports progress. The route is expected to sit behind HMAC middleware.
func (h *WebhookHandlers) shippingUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allow(ctx, w, r) {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read update body", http.StatusBadRequest))
		return
	}

	var req shippingUpdateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "update body must be valid JSON", http.StatusBadRequest))
		return
	}

	orderNumber := strings.TrimSpace(req.OrderNumber)
	if orderNumber == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderNumber is required", http.StatusBadRequest))
		return
	}

	var target domain.OrderStatus
	switch strings.ToLower(strings.TrimSpace(req.Status)) {
	case string(domain.OrderStatusShipped):
		target = domain.OrderStatusShipped
	case string(domain.OrderStatusDelivered):
		target = domain.OrderStatusDelivered
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be shipped or delivered", http.StatusBadRequest))
		return
	}

	reason := strings.TrimSpace(req.Note)
	if code := strings.TrimSpace(req.TrackingCode); code != "" {
		if reason != "" {
			reason += "; "
		}
		reason += "tracking " + code
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderNumber:  orderNumber,
		TargetStatus: target,
		Reason:       reason,
		ActorID:      carrierActorID,
	})
	if err != nil {
		h.writeNotificationError(ctx, w, orderNumber, err)
		return
	}

	h.logger(ctx, "webhook.shipping.applied", map[string]any{
		"orderNumber": orderNumber,
		"status":      string(order.Status),
	})
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *WebhookHandlers) allow(ctx context.Context, w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	if h.limiter.Allow(strings.TrimSpace(r.RemoteAddr)) {
		return true
	}
	httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many webhook requests", http.StatusTooManyRequests))
	return false
}

func (h *WebhookHandlers) writeNotificationError(ctx context.Context, w http.ResponseWriter, orderNumber string, err error) {
	h.logger(ctx, "webhook.apply_failed", map[string]any{
		"orderNumber": orderNumber,
		"error":       err.Error(),
	})
	writeOrderError(ctx, w, err)
}
