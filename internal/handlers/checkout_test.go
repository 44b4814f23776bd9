package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/lokapasar/api/internal/domain"
	"github.com/lokapasar/api/internal/payments"
	"github.com/lokapasar/api/internal/services"
)

type stubCheckoutService struct {
	checkoutFn func(ctx context.Context, cmd services.CheckoutCartCommand) (services.CheckoutResult, error)
	buyNowFn   func(ctx context.Context, cmd services.BuyNowCommand) (services.CheckoutResult, error)
}

func (s *stubCheckoutService) CheckoutCart(ctx context.Context, cmd services.CheckoutCartCommand) (services.CheckoutResult, error) {
	if s.checkoutFn == nil {
		return services.CheckoutResult{}, services.ErrCheckoutUnavailable
	}
	return s.checkoutFn(ctx, cmd)
}

func (s *stubCheckoutService) BuyNow(ctx context.Context, cmd services.BuyNowCommand) (services.CheckoutResult, error) {
	if s.buyNowFn == nil {
		return services.CheckoutResult{}, services.ErrCheckoutUnavailable
	}
	return s.buyNowFn(ctx, cmd)
}

var _ services.CheckoutService = (*stubCheckoutService)(nil)

func newCheckoutRouter(svc services.CheckoutService) http.Handler {
	r := chi.NewRouter()
	NewCheckoutHandlers(nil, svc).Routes(r)
	return r
}

func TestCheckoutCartReturnsInstructions(t *testing.T) {
	svc := &stubCheckoutService{
		checkoutFn: func(_ context.Context, cmd services.CheckoutCartCommand) (services.CheckoutResult, error) {
			if cmd.UserID != "user_1" || cmd.AddressID != "addr_1" {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			if cmd.PaymentMethod != "pm_va" || cmd.PaymentChannel != "bca" {
				t.Fatalf("unexpected payment selection: %s/%s", cmd.PaymentMethod, cmd.PaymentChannel)
			}
			if len(cmd.ItemIDs) != 1 || cmd.ItemIDs[0] != "ci_1" {
				t.Fatalf("unexpected item selection: %v", cmd.ItemIDs)
			}
			return services.CheckoutResult{
				Order: testOrder("LP-20260210-0001"),
				Payment: &payments.PaymentInstructions{
					Provider:    "midtrans",
					Reference:   "txn_1",
					PaymentType: "bank_transfer",
					VABank:      "BCA",
					VANumber:    "8808123456",
					GrossAmount: 1210,
				},
			}, nil
		},
	}

	body := strings.NewReader(`{"addressId":"addr_1","paymentMethodId":"pm_va","paymentChannel":"bca","itemIds":["ci_1"]}`)
	req := authenticatedRequest(t, http.MethodPost, "/", body, "user_1")
	rr := httptest.NewRecorder()
	newCheckoutRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp checkoutResponse
	decodeBody(t, rr, &resp)
	if resp.Order.OrderNumber != "LP-20260210-0001" {
		t.Fatalf("unexpected order number: %q", resp.Order.OrderNumber)
	}
	if resp.RedirectToSuccess {
		t.Fatal("expected redirect_to_success to be false for a gateway payment")
	}
	if resp.Payment == nil || resp.Payment.VANumber != "8808123456" || resp.Payment.GrossAmount != 1210 {
		t.Fatalf("unexpected payment instructions: %+v", resp.Payment)
	}
}

func TestCheckoutCartCODRedirects(t *testing.T) {
	svc := &stubCheckoutService{
		checkoutFn: func(context.Context, services.CheckoutCartCommand) (services.CheckoutResult, error) {
			order := testOrder("LP-20260210-0002")
			order.PaymentMethod = domain.PaymentMethodCOD
			return services.CheckoutResult{Order: order, RedirectToSuccess: true}, nil
		},
	}

	body := strings.NewReader(`{"addressId":"addr_1","paymentMethodId":"pm_cod"}`)
	req := authenticatedRequest(t, http.MethodPost, "/", body, "user_1")
	rr := httptest.NewRecorder()
	newCheckoutRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp checkoutResponse
	decodeBody(t, rr, &resp)
	if !resp.RedirectToSuccess {
		t.Fatal("expected redirect_to_success for COD")
	}
	if resp.Payment != nil {
		t.Fatalf("expected no payment instructions, got %+v", resp.Payment)
	}
}

func TestCheckoutCartRejectsEmptyBody(t *testing.T) {
	req := authenticatedRequest(t, http.MethodPost, "/", strings.NewReader(""), "user_1")
	rr := httptest.NewRecorder()
	newCheckoutRouter(&stubCheckoutService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCheckoutCartRequiresIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	newCheckoutRouter(&stubCheckoutService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCheckoutErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"address missing", services.ErrCheckoutAddressNotFound, http.StatusNotFound, "address_not_found"},
		{"method unavailable", services.ErrCheckoutMethodUnavailable, http.StatusBadRequest, "payment_method_unavailable"},
		{"channel required", services.ErrCheckoutChannelRequired, http.StatusBadRequest, "payment_channel_required"},
		{"no items", services.ErrCheckoutNoItems, http.StatusBadRequest, "no_items"},
		{"product unavailable", services.ErrCheckoutProductUnavailable, http.StatusConflict, "product_unavailable"},
		{"insufficient stock", services.ErrCheckoutInsufficientStock, http.StatusConflict, "insufficient_stock"},
		{"payment failed", services.ErrCheckoutPaymentFailed, http.StatusBadGateway, "payment_failed"},
		{"service down", services.ErrCheckoutUnavailable, http.StatusServiceUnavailable, "checkout_unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubCheckoutService{
				checkoutFn: func(context.Context, services.CheckoutCartCommand) (services.CheckoutResult, error) {
					return services.CheckoutResult{}, tc.err
				},
			}
			body := strings.NewReader(`{"addressId":"addr_1","paymentMethodId":"pm_va"}`)
			req := authenticatedRequest(t, http.MethodPost, "/", body, "user_1")
			rr := httptest.NewRecorder()
			newCheckoutRouter(svc).ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			var payload map[string]any
			decodeBody(t, rr, &payload)
			if payload["error"] != tc.wantCode {
				t.Fatalf("expected %q, got %v", tc.wantCode, payload["error"])
			}
		})
	}
}

func TestBuyNowForwardsProductSelection(t *testing.T) {
	svc := &stubCheckoutService{
		buyNowFn: func(_ context.Context, cmd services.BuyNowCommand) (services.CheckoutResult, error) {
			if cmd.ProductID != "prod_a" || cmd.Quantity != 2 || cmd.Color != "navy" {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			return services.CheckoutResult{Order: testOrder("LP-20260210-0003")}, nil
		},
	}

	body := strings.NewReader(`{"productId":"prod_a","quantity":2,"color":"navy","addressId":"addr_1","paymentMethodId":"pm_va","paymentChannel":"bca"}`)
	req := authenticatedRequest(t, http.MethodPost, "/buy-now", body, "user_1")
	rr := httptest.NewRecorder()
	newCheckoutRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}
