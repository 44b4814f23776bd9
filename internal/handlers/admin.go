package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lokapasar/api/internal/domain"
	"github.com/lokapasar/api/internal/platform/auth"
	"github.com/lokapasar/api/internal/platform/httpx"
	"github.com/lokapasar/api/internal/repositories"
	"github.com/lokapasar/api/internal/services"
)

const (
	adminRole        = "admin"
	maxAdminBodySize = 16 * 1024
)

var adminOrderStatuses = map[string]domain.OrderStatus{
	string(domain.OrderStatusProcessing): domain.OrderStatusProcessing,
	string(domain.OrderStatusShipped):    domain.OrderStatusShipped,
	string(domain.OrderStatusDelivered):  domain.OrderStatusDelivered,
	string(domain.OrderStatusCancelled):  domain.OrderStatusCancelled,
	string(domain.OrderStatusRefunded):   domain.OrderStatusRefunded,
}

// AdminHandlers exposes the management surface for store operators.
type AdminHandlers struct {
	authn    *auth.Authenticator
	catalog  services.CatalogService
	settings services.SettingsService
	orders   services.OrderService
}

// NewAdminHandlers constructs the admin handlers.
func NewAdminHandlers(authn *auth.Authenticator, catalog services.CatalogService, settings services.SettingsService, orders services.OrderService) *AdminHandlers {
	return &AdminHandlers{
		authn:    authn,
		catalog:  catalog,
		settings: settings,
		orders:   orders,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(adminRole))
	}
	r.Put("/settings/shipping", h.updateShippingSettings)
	r.Get("/settings/payment-methods", h.listPaymentMethods)
	r.Post("/settings/payment-methods", h.createPaymentMethod)
	r.Put("/settings/payment-methods/{methodID}", h.updatePaymentMethod)
	r.Post("/products", h.createProduct)
	r.Put("/products/{productID}", h.updateProduct)
	r.Get("/orders", h.listOrders)
	r.Put("/orders/{orderNumber}/status", h.updateOrderStatus)
}

type shippingSettingsRequest struct {
	FreeShippingThreshold int64 `json:"freeShippingThreshold"`
	DefaultShippingCost   int64 `json:"defaultShippingCost"`
}

type paymentMethodRequest struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Fee         int64    `json:"fee"`
	Channels    []string `json:"channels"`
	Description string   `json:"description"`
	IsActive    *bool    `json:"isActive"`
}

type adminProductRequest struct {
	Name        string                  `json:"name"`
	SKU         string                  `json:"sku"`
	Description string                  `json:"description"`
	Price       int64                   `json:"price"`
	SalePrice   *int64                  `json:"salePrice"`
	Stock       int                     `json:"stock"`
	Colors      []string                `json:"colors"`
	Sizes       []string                `json:"sizes"`
	ImageURLs   []string                `json:"imageUrls"`
	Shipping    *productShippingPayload `json:"shipping"`
	IsActive    *bool                   `json:"isActive"`
}

type orderStatusRequest struct {
	Status         string `json:"status"`
	ExpectedStatus string `json:"expectedStatus"`
	Reason         string `json:"reason"`
}

func (h *AdminHandlers) updateShippingSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, ok := h.requireAdmin(ctx, w)
	if !ok {
		return
	}

	var req shippingSettingsRequest
	if !decodeAdminBody(ctx, w, r, &req) {
		return
	}

	settings, err := h.settings.UpdateShippingSettings(ctx, services.UpdateShippingSettingsCommand{
		FreeShippingThreshold: req.FreeShippingThreshold,
		DefaultShippingCost:   req.DefaultShippingCost,
		ActorID:               actorID,
	})
	if err != nil {
		writeSettingsError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, shippingSettingsResponse{
		Settings: buildShippingSettingsPayload(settings),
	})
}

func (h *AdminHandlers) listPaymentMethods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireAdmin(ctx, w); !ok {
		return
	}

	methods, err := h.settings.ListPaymentMethods(ctx, false)
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

func (h *AdminHandlers) createPaymentMethod(w http.ResponseWriter, r *http.Request) {
	h.upsertPaymentMethod(w, r, "")
}

func (h *AdminHandlers) updatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	methodID := strings.TrimSpace(chi.URLParam(r, "methodID"))
	if methodID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "method id is required", http.StatusBadRequest))
		return
	}
	h.upsertPaymentMethod(w, r, methodID)
}

func (h *AdminHandlers) upsertPaymentMethod(w http.ResponseWriter, r *http.Request, methodID string) {
	ctx := r.Context()
	actorID, ok := h.requireAdmin(ctx, w)
	if !ok {
		return
	}

	var req paymentMethodRequest
	if !decodeAdminBody(ctx, w, r, &req) {
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	method, err := h.settings.UpsertPaymentMethod(ctx, services.UpsertPaymentMethodCommand{
		MethodID:    methodID,
		Name:        strings.TrimSpace(req.Name),
		Type:        domain.PaymentMethodType(strings.TrimSpace(req.Type)),
		Fee:         req.Fee,
		Channels:    req.Channels,
		Description: strings.TrimSpace(req.Description),
		IsActive:    isActive,
		ActorID:     actorID,
	})
	if err != nil {
		writeSettingsError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if methodID == "" {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, map[string]any{"payment_method": buildPaymentMethodPayload(method)})
}

func (h *AdminHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.upsertProduct(w, r, "")
}

func (h *AdminHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}
	h.upsertProduct(w, r, productID)
}

func (h *AdminHandlers) upsertProduct(w http.ResponseWriter, r *http.Request, productID string) {
	ctx := r.Context()
	actorID, ok := h.requireAdmin(ctx, w)
	if !ok {
		return
	}

	var req adminProductRequest
	if !decodeAdminBody(ctx, w, r, &req) {
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	cmd := services.UpsertProductCommand{
		ProductID:   productID,
		Name:        strings.TrimSpace(req.Name),
		SKU:         strings.TrimSpace(req.SKU),
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price,
		SalePrice:   req.SalePrice,
		Stock:       req.Stock,
		Colors:      req.Colors,
		Sizes:       req.Sizes,
		ImageURLs:   req.ImageURLs,
		IsActive:    isActive,
		ActorID:     actorID,
	}
	if req.Shipping != nil {
		cmd.Shipping = domain.ShippingSettings{
			FreeShippingThreshold: req.Shipping.FreeShippingThreshold,
			DefaultShippingCost:   req.Shipping.DefaultShippingCost,
			ServiceFee:            req.Shipping.ServiceFee,
		}
	}

	product, err := h.catalog.UpsertProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if productID == "" {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireAdmin(ctx, w); !ok {
		return
	}

	query := r.URL.Query()
	filter := repositories.OrderListFilter{
		UserID:        strings.TrimSpace(query.Get("user_id")),
		Status:        parseFilterValues(query["status"]),
		PaymentStatus: parseFilterValues(query["payment_status"]),
	}

	pageSize, err := parsePageSize(query.Get("page_size"), defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter.Pagination = domain.Pagination{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}

	page, err := h.orders.List(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, ok := h.requireAdmin(ctx, w)
	if !ok {
		return
	}

	orderNumber := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
	if orderNumber == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order number is required", http.StatusBadRequest))
		return
	}

	var req orderStatusRequest
	if !decodeAdminBody(ctx, w, r, &req) {
		return
	}

	target, ok := adminOrderStatuses[strings.ToLower(strings.TrimSpace(req.Status))]
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be one of processing, shipped, delivered, cancelled, refunded", http.StatusBadRequest))
		return
	}

	cmd := services.OrderStatusTransitionCommand{
		OrderNumber:  orderNumber,
		TargetStatus: target,
		Reason:       strings.TrimSpace(req.Reason),
		ActorID:      actorID,
	}
	if raw := strings.ToLower(strings.TrimSpace(req.ExpectedStatus)); raw != "" {
		expected := domain.OrderStatus(raw)
		cmd.ExpectedStatus = &expected
	}

	order, err := h.orders.TransitionStatus(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) requireAdmin(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.catalog == nil || h.settings == nil || h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("admin_unavailable", "admin services unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return strings.TrimSpace(identity.UID), true
}

func decodeAdminBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxAdminBodySize)
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
