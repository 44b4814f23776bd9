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

func newOrderRouter(svc services.OrderService) http.Handler {
	r := chi.NewRouter()
	NewOrderHandlers(nil, svc).Routes(r)
	return r
}

func TestListOrdersAppliesFilters(t *testing.T) {
	var captured repositories.OrderListFilter
	svc := &stubOrderService{
		listFn: func(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			captured = filter
			return domain.CursorPage[domain.Order]{
				Items:         []domain.Order{testOrder("LP-20260210-0001")},
				NextPageToken: "cursor-2",
			}, nil
		},
	}

	req := authenticatedRequest(t, http.MethodGet, "/?status=pending,Processing&payment_status=paid&page_size=5&page_token=cursor-1", nil, "user_1")
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user_1" {
		t.Fatalf("expected filter scoped to user_1, got %q", captured.UserID)
	}
	if len(captured.Status) != 2 || captured.Status[0] != "pending" || captured.Status[1] != "processing" {
		t.Fatalf("unexpected status filter: %v", captured.Status)
	}
	if len(captured.PaymentStatus) != 1 || captured.PaymentStatus[0] != "paid" {
		t.Fatalf("unexpected payment status filter: %v", captured.PaymentStatus)
	}
	if captured.Pagination.PageSize != 5 || captured.Pagination.PageToken != "cursor-1" {
		t.Fatalf("unexpected pagination: %+v", captured.Pagination)
	}

	var resp orderListResponse
	decodeBody(t, rr, &resp)
	if len(resp.Items) != 1 {
		t.Fatalf("expected one order, got %d", len(resp.Items))
	}
	if resp.Items[0].OrderNumber != "LP-20260210-0001" {
		t.Fatalf("unexpected order number: %q", resp.Items[0].OrderNumber)
	}
	if resp.Items[0].Total != 1210 {
		t.Fatalf("expected total 1210, got %d", resp.Items[0].Total)
	}
	if resp.NextPageToken != "cursor-2" {
		t.Fatalf("unexpected next page token: %q", resp.NextPageToken)
	}
}

func TestListOrdersRejectsBadPageSize(t *testing.T) {
	req := authenticatedRequest(t, http.MethodGet, "/?page_size=abc", nil, "user_1")
	rr := httptest.NewRecorder()
	newOrderRouter(&stubOrderService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestGetOrderScopesToCaller(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(_ context.Context, orderNumber string, opts services.OrderReadOptions) (domain.Order, error) {
			if opts.ForUserID != "user_1" {
				t.Fatalf("expected read scoped to user_1, got %q", opts.ForUserID)
			}
			return testOrder(orderNumber), nil
		},
	}

	req := authenticatedRequest(t, http.MethodGet, "/LP-20260210-0001", nil, "user_1")
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp orderResponse
	decodeBody(t, rr, &resp)
	if resp.Order.OrderNumber != "LP-20260210-0001" {
		t.Fatalf("unexpected order number: %q", resp.Order.OrderNumber)
	}
	if resp.Order.Totals.Subtotal != 210 || resp.Order.Totals.Total != 1210 {
		t.Fatalf("unexpected totals: %+v", resp.Order.Totals)
	}
	if len(resp.Order.Items) != 1 || resp.Order.Items[0].Subtotal != 160 {
		t.Fatalf("unexpected items: %+v", resp.Order.Items)
	}
}

func TestGetOrderHidesForeignOrders(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(context.Context, string, services.OrderReadOptions) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderForbidden
		},
	}

	req := authenticatedRequest(t, http.MethodGet, "/LP-20260210-0002", nil, "user_2")
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	var payload map[string]any
	decodeBody(t, rr, &payload)
	if payload["error"] != "order_not_found" {
		t.Fatalf("expected order_not_found, got %v", payload["error"])
	}
}

func TestGetOrderRequiresIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/LP-20260210-0001", nil)
	rr := httptest.NewRecorder()
	newOrderRouter(&stubOrderService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestSyncPaymentReturnsUpdatedOrder(t *testing.T) {
	svc := &stubOrderService{
		syncFn: func(_ context.Context, cmd services.SyncPaymentCommand) (domain.Order, error) {
			if cmd.OrderNumber != "LP-20260210-0001" || cmd.UserID != "user_1" {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			order := testOrder(cmd.OrderNumber)
			order.PaymentStatus = domain.PaymentStatusPaid
			order.Status = domain.OrderStatusProcessing
			return order, nil
		},
	}

	req := authenticatedRequest(t, http.MethodPost, "/LP-20260210-0001/sync-payment", nil, "user_1")
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp orderResponse
	decodeBody(t, rr, &resp)
	if resp.Order.PaymentStatus != "paid" || resp.Order.Status != "processing" {
		t.Fatalf("unexpected statuses: %s/%s", resp.Order.Status, resp.Order.PaymentStatus)
	}
}

func TestSyncPaymentGatewayDown(t *testing.T) {
	svc := &stubOrderService{
		syncFn: func(context.Context, services.SyncPaymentCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderPaymentSyncUnavailable
		},
	}

	req := authenticatedRequest(t, http.MethodPost, "/LP-20260210-0001/sync-payment", nil, "user_1")
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	var payload map[string]any
	decodeBody(t, rr, &payload)
	if payload["error"] != "payment_sync_unavailable" {
		t.Fatalf("expected payment_sync_unavailable, got %v", payload["error"])
	}
}

func TestCancelOrderPassesReason(t *testing.T) {
	svc := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
			if cmd.Reason != "changed my mind" {
				t.Fatalf("unexpected reason: %q", cmd.Reason)
			}
			order := testOrder(cmd.OrderNumber)
			order.Status = domain.OrderStatusCancelled
			order.CancelReason = cmd.Reason
			return order, nil
		},
	}

	body := strings.NewReader(`{"reason":"changed my mind"}`)
	req := authenticatedRequest(t, http.MethodPut, "/LP-20260210-0001/cancel", body, "user_1")
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp orderResponse
	decodeBody(t, rr, &resp)
	if resp.Order.Status != "cancelled" || resp.Order.CancelReason != "changed my mind" {
		t.Fatalf("unexpected cancel payload: %+v", resp.Order)
	}
}

func TestCancelOrderAllowsEmptyBody(t *testing.T) {
	svc := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
			if cmd.Reason != "" {
				t.Fatalf("expected empty reason, got %q", cmd.Reason)
			}
			order := testOrder(cmd.OrderNumber)
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
	}

	req := authenticatedRequest(t, http.MethodPut, "/LP-20260210-0001/cancel", nil, "user_1")
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCancelOrderShippedConflict(t *testing.T) {
	svc := &stubOrderService{
		cancelFn: func(context.Context, services.CancelOrderCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderNotCancellable
		},
	}

	req := authenticatedRequest(t, http.MethodPut, "/LP-20260210-0001/cancel", nil, "user_1")
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var payload map[string]any
	decodeBody(t, rr, &payload)
	if payload["error"] != "order_not_cancellable" {
		t.Fatalf("expected order_not_cancellable, got %v", payload["error"])
	}
}
