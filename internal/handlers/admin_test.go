package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/lokapasar/api/internal/domain"
	"github.com/lokapasar/api/internal/repositories"
	"github.com/lokapasar/api/internal/services"
)

func newAdminRouter(catalog services.CatalogService, settings services.SettingsService, orders services.OrderService) http.Handler {
	r := chi.NewRouter()
	NewAdminHandlers(nil, catalog, settings, orders).Routes(r)
	return r
}

func TestAdminUpdateShippingSettings(t *testing.T) {
	settings := &stubSettingsService{
		updateShippingFn: func(_ context.Context, cmd services.UpdateShippingSettingsCommand) (domain.GlobalShippingSettings, error) {
			if cmd.FreeShippingThreshold != 200000 || cmd.DefaultShippingCost != 12000 {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			if cmd.ActorID != "admin_1" {
				t.Fatalf("expected actor admin_1, got %q", cmd.ActorID)
			}
			return domain.GlobalShippingSettings{
				FreeShippingThreshold: cmd.FreeShippingThreshold,
				DefaultShippingCost:   cmd.DefaultShippingCost,
			}, nil
		},
	}

	body := strings.NewReader(`{"freeShippingThreshold":200000,"defaultShippingCost":12000}`)
	req := authenticatedRequest(t, http.MethodPut, "/settings/shipping", body, "admin_1", "admin")
	rr := httptest.NewRecorder()
	newAdminRouter(&stubCatalogService{}, settings, &stubOrderService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp shippingSettingsResponse
	decodeBody(t, rr, &resp)
	if resp.Settings.FreeShippingThreshold != 200000 {
		t.Fatalf("unexpected settings payload: %+v", resp.Settings)
	}
}

func TestAdminListPaymentMethodsIncludesInactive(t *testing.T) {
	settings := &stubSettingsService{
		listMethodsFn: func(_ context.Context, activeOnly bool) ([]domain.PaymentMethod, error) {
			if activeOnly {
				t.Fatal("expected the admin listing to include inactive methods")
			}
			return []domain.PaymentMethod{
				{ID: "pm_cod", Type: domain.PaymentMethodCOD, IsActive: true},
				{ID: "pm_cc", Type: domain.PaymentMethodCreditCard, IsActive: false},
			}, nil
		},
	}

	req := authenticatedRequest(t, http.MethodGet, "/settings/payment-methods", nil, "admin_1", "admin")
	rr := httptest.NewRecorder()
	newAdminRouter(&stubCatalogService{}, settings, &stubOrderService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp paymentMethodListResponse
	decodeBody(t, rr, &resp)
	if len(resp.Items) != 2 {
		t.Fatalf("expected two methods, got %d", len(resp.Items))
	}
}

func TestAdminCreatePaymentMethodDefaultsActive(t *testing.T) {
	settings := &stubSettingsService{
		upsertMethodFn: func(_ context.Context, cmd services.UpsertPaymentMethodCommand) (domain.PaymentMethod, error) {
			if cmd.MethodID != "" {
				t.Fatalf("expected create without id, got %q", cmd.MethodID)
			}
			if !cmd.IsActive {
				t.Fatal("expected isActive to default to true")
			}
			if cmd.Type != domain.PaymentMethodVirtualAccount || len(cmd.Channels) != 2 {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			return domain.PaymentMethod{ID: "pm_new", Name: cmd.Name, Type: cmd.Type, Fee: cmd.Fee, Channels: cmd.Channels, IsActive: true}, nil
		},
	}

	body := strings.NewReader(`{"name":"Bank Transfer","type":"VIRTUAL_ACCOUNT","fee":4000,"channels":["bca","bni"]}`)
	req := authenticatedRequest(t, http.MethodPost, "/settings/payment-methods", body, "admin_1", "admin")
	rr := httptest.NewRecorder()
	newAdminRouter(&stubCatalogService{}, settings, &stubOrderService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdminUpsertProductWithShipping(t *testing.T) {
	catalog := &stubCatalogService{
		upsertFn: func(_ context.Context, cmd services.UpsertProductCommand) (domain.Product, error) {
			if cmd.ProductID != "prod_a" {
				t.Fatalf("expected prod_a, got %q", cmd.ProductID)
			}
			if cmd.Shipping.FreeShippingThreshold == nil || *cmd.Shipping.FreeShippingThreshold != 150 {
				t.Fatalf("unexpected shipping policy: %+v", cmd.Shipping)
			}
			return domain.Product{ID: cmd.ProductID, Name: cmd.Name, Price: cmd.Price, Shipping: cmd.Shipping, IsActive: cmd.IsActive}, nil
		},
	}

	body := strings.NewReader(`{"name":"Batik Shirt","price":100,"stock":12,"shipping":{"free_shipping_threshold":150,"default_shipping_cost":10}}`)
	req := authenticatedRequest(t, http.MethodPut, "/products/prod_a", body, "admin_1", "admin")
	rr := httptest.NewRecorder()
	newAdminRouter(catalog, &stubSettingsService{}, &stubOrderService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp productResponse
	decodeBody(t, rr, &resp)
	if resp.Product.Shipping == nil || *resp.Product.Shipping.FreeShippingThreshold != 150 {
		t.Fatalf("unexpected product payload: %+v", resp.Product)
	}
}

func TestAdminListOrdersAnyUser(t *testing.T) {
	var captured repositories.OrderListFilter
	orders := &stubOrderService{
		listFn: func(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			captured = filter
			return domain.CursorPage[domain.Order]{Items: []domain.Order{testOrder("LP-20260210-0001")}}, nil
		},
	}

	req := authenticatedRequest(t, http.MethodGet, "/orders?user_id=user_7&status=shipped", nil, "admin_1", "admin")
	rr := httptest.NewRecorder()
	newAdminRouter(&stubCatalogService{}, &stubSettingsService{}, orders).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user_7" {
		t.Fatalf("expected filter on user_7, got %q", captured.UserID)
	}
	if len(captured.Status) != 1 || captured.Status[0] != "shipped" {
		t.Fatalf("unexpected status filter: %v", captured.Status)
	}
}

func TestAdminUpdateOrderStatusWithExpectedStatus(t *testing.T) {
	orders := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.OrderStatusTransitionCommand) (domain.Order, error) {
			if cmd.TargetStatus != domain.OrderStatusShipped {
				t.Fatalf("expected target shipped, got %s", cmd.TargetStatus)
			}
			if cmd.ExpectedStatus == nil || *cmd.ExpectedStatus != domain.OrderStatusProcessing {
				t.Fatalf("unexpected expected status: %v", cmd.ExpectedStatus)
			}
			if cmd.ActorID != "admin_1" {
				t.Fatalf("expected actor admin_1, got %q", cmd.ActorID)
			}
			order := testOrder(cmd.OrderNumber)
			order.Status = domain.OrderStatusShipped
			return order, nil
		},
	}

	body := strings.NewReader(`{"status":"shipped","expectedStatus":"processing","reason":"handed to carrier"}`)
	req := authenticatedRequest(t, http.MethodPut, "/orders/LP-20260210-0001/status", body, "admin_1", "admin")
	rr := httptest.NewRecorder()
	newAdminRouter(&stubCatalogService{}, &stubSettingsService{}, orders).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp orderResponse
	decodeBody(t, rr, &resp)
	if resp.Order.Status != "shipped" {
		t.Fatalf("expected shipped, got %q", resp.Order.Status)
	}
}

func TestAdminUpdateOrderStatusRefund(t *testing.T) {
	orders := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.OrderStatusTransitionCommand) (domain.Order, error) {
			if cmd.TargetStatus != domain.OrderStatusRefunded {
				t.Fatalf("expected target refunded, got %s", cmd.TargetStatus)
			}
			order := testOrder(cmd.OrderNumber)
			order.Status = domain.OrderStatusRefunded
			order.PaymentStatus = domain.PaymentStatusRefunded
			return order, nil
		},
	}

	body := strings.NewReader(`{"status":"refunded","reason":"defective item"}`)
	req := authenticatedRequest(t, http.MethodPut, "/orders/LP-20260210-0001/status", body, "admin_1", "admin")
	rr := httptest.NewRecorder()
	newAdminRouter(&stubCatalogService{}, &stubSettingsService{}, orders).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdminUpdateOrderStatusRejectsPending(t *testing.T) {
	body := strings.NewReader(`{"status":"pending"}`)
	req := authenticatedRequest(t, http.MethodPut, "/orders/LP-20260210-0001/status", body, "admin_1", "admin")
	rr := httptest.NewRecorder()
	newAdminRouter(&stubCatalogService{}, &stubSettingsService{}, &stubOrderService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAdminUpdateOrderStatusUnpaidRefund(t *testing.T) {
	orders := &stubOrderService{
		transitionFn: func(context.Context, services.OrderStatusTransitionCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderInvalidState
		},
	}

	body := strings.NewReader(`{"status":"refunded"}`)
	req := authenticatedRequest(t, http.MethodPut, "/orders/LP-20260210-0001/status", body, "admin_1", "admin")
	rr := httptest.NewRecorder()
	newAdminRouter(&stubCatalogService{}, &stubSettingsService{}, orders).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var payload map[string]any
	decodeBody(t, rr, &payload)
	if payload["error"] != "order_invalid_state" {
		t.Fatalf("expected order_invalid_state, got %v", payload["error"])
	}
}
