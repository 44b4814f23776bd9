package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/lokapasar/api/internal/domain"
	"github.com/lokapasar/api/internal/payments"
	"github.com/lokapasar/api/internal/platform/auth"
	"github.com/lokapasar/api/internal/repositories"
	"github.com/lokapasar/api/internal/services"
)

func authenticatedRequest(t *testing.T, method, target string, body *strings.Reader, uid string, roles ...string) *http.Request {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	identity := &auth.Identity{UID: uid, Roles: roles}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func testOrder(orderNumber string) domain.Order {
	created := time.Date(2026, time.February, 10, 8, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:            "ord_1",
		OrderNumber:   orderNumber,
		UserID:        "user_1",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: domain.PaymentMethodVirtualAccount,
		PaymentLabel:  "BCA Virtual Account",
		Totals: domain.PriceBreakdown{
			Subtotal:   210,
			Discount:   40,
			ServiceFee: 1000,
			Total:      1210,
		},
		Items: []domain.OrderItem{
			{ID: "itm_1", ProductID: "prod_a", Name: "Batik Shirt", UnitPrice: 80, BasePrice: 100, Quantity: 2},
		},
		ShippingAddress: domain.Address{
			ID:        "addr_1",
			Recipient: "Sari",
			Street:    "Jl. Melati 1",
			City:      "Bandung",
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// stubOrderService implements services.OrderService with function fields.
type stubOrderService struct {
	createFn     func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error)
	listFn       func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	getFn        func(ctx context.Context, orderNumber string, opts services.OrderReadOptions) (domain.Order, error)
	transitionFn func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (domain.Order, error)
	cancelFn     func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error)
	syncFn       func(ctx context.Context, cmd services.SyncPaymentCommand) (domain.Order, error)
	notifyFn     func(ctx context.Context, orderNumber string, details payments.PaymentDetails) (domain.Order, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	if s.createFn == nil {
		return domain.Order{}, services.ErrOrderInvalidInput
	}
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Order]{}, nil
	}
	return s.listFn(ctx, filter)
}

func (s *stubOrderService) GetByNumber(ctx context.Context, orderNumber string, opts services.OrderReadOptions) (domain.Order, error) {
	if s.getFn == nil {
		return domain.Order{}, services.ErrOrderNotFound
	}
	return s.getFn(ctx, orderNumber, opts)
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (domain.Order, error) {
	if s.transitionFn == nil {
		return domain.Order{}, services.ErrOrderInvalidState
	}
	return s.transitionFn(ctx, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	if s.cancelFn == nil {
		return domain.Order{}, services.ErrOrderNotCancellable
	}
	return s.cancelFn(ctx, cmd)
}

func (s *stubOrderService) SyncPayment(ctx context.Context, cmd services.SyncPaymentCommand) (domain.Order, error) {
	if s.syncFn == nil {
		return domain.Order{}, services.ErrOrderPaymentSyncUnavailable
	}
	return s.syncFn(ctx, cmd)
}

func (s *stubOrderService) ApplyGatewayNotification(ctx context.Context, orderNumber string, details payments.PaymentDetails) (domain.Order, error) {
	if s.notifyFn == nil {
		return domain.Order{}, services.ErrOrderNotFound
	}
	return s.notifyFn(ctx, orderNumber, details)
}

func (s *stubOrderService) AttachTransaction(context.Context, string, payments.PaymentInstructions) (domain.Order, error) {
	return domain.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) Discard(context.Context, string) error { return nil }

var _ services.OrderService = (*stubOrderService)(nil)
