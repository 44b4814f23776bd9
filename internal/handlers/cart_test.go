package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/lokapasar/api/internal/domain"
	"github.com/lokapasar/api/internal/services"
)

type stubCartService struct {
	getFn    func(ctx context.Context, userID string) (domain.Cart, error)
	addFn    func(ctx context.Context, cmd services.UpsertCartItemCommand) (domain.Cart, error)
	updateFn func(ctx context.Context, cmd services.UpsertCartItemCommand) (domain.Cart, error)
	removeFn func(ctx context.Context, userID, itemID string) (domain.Cart, error)
	clearFn  func(ctx context.Context, userID string, itemIDs []string) error
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFn == nil {
		return domain.Cart{UserID: userID}, nil
	}
	return s.getFn(ctx, userID)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.UpsertCartItemCommand) (domain.Cart, error) {
	if s.addFn == nil {
		return domain.Cart{}, services.ErrCartInvalidInput
	}
	return s.addFn(ctx, cmd)
}

func (s *stubCartService) UpdateItem(ctx context.Context, cmd services.UpsertCartItemCommand) (domain.Cart, error) {
	if s.updateFn == nil {
		return domain.Cart{}, services.ErrCartItemNotFound
	}
	return s.updateFn(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, itemID string) (domain.Cart, error) {
	if s.removeFn == nil {
		return domain.Cart{}, services.ErrCartItemNotFound
	}
	return s.removeFn(ctx, userID, itemID)
}

func (s *stubCartService) ClearItems(ctx context.Context, userID string, itemIDs []string) error {
	if s.clearFn == nil {
		return nil
	}
	return s.clearFn(ctx, userID, itemIDs)
}

var _ services.CartService = (*stubCartService)(nil)

func newCartRouter(svc services.CartService) http.Handler {
	r := chi.NewRouter()
	NewCartHandlers(nil, svc).Routes(r)
	return r
}

func TestGetCartReturnsItems(t *testing.T) {
	svc := &stubCartService{
		getFn: func(_ context.Context, userID string) (domain.Cart, error) {
			if userID != "user_1" {
				t.Fatalf("expected user_1, got %q", userID)
			}
			return domain.Cart{
				UserID: userID,
				Items: []domain.CartItem{
					{ID: "ci_1", ProductID: "prod_a", Quantity: 2, Color: "navy", AddedAt: time.Date(2026, time.February, 1, 10, 0, 0, 0, time.UTC)},
				},
				UpdatedAt: time.Date(2026, time.February, 1, 10, 0, 0, 0, time.UTC),
			}, nil
		},
	}

	req := authenticatedRequest(t, http.MethodGet, "/", nil, "user_1")
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp cartResponse
	decodeBody(t, rr, &resp)
	if len(resp.Cart.Items) != 1 || resp.Cart.Items[0].ProductID != "prod_a" {
		t.Fatalf("unexpected cart payload: %+v", resp.Cart)
	}
}

func TestAddItemForwardsCommand(t *testing.T) {
	svc := &stubCartService{
		addFn: func(_ context.Context, cmd services.UpsertCartItemCommand) (domain.Cart, error) {
			if cmd.UserID != "user_1" || cmd.ProductID != "prod_a" || cmd.Quantity != 3 {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			return domain.Cart{UserID: cmd.UserID, Items: []domain.CartItem{{ID: "ci_1", ProductID: cmd.ProductID, Quantity: cmd.Quantity}}}, nil
		},
	}

	body := strings.NewReader(`{"productId":"prod_a","quantity":3}`)
	req := authenticatedRequest(t, http.MethodPost, "/items", body, "user_1")
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAddItemUnavailableProduct(t *testing.T) {
	svc := &stubCartService{
		addFn: func(context.Context, services.UpsertCartItemCommand) (domain.Cart, error) {
			return domain.Cart{}, services.ErrCartProductUnavailable
		},
	}

	body := strings.NewReader(`{"productId":"prod_gone","quantity":1}`)
	req := authenticatedRequest(t, http.MethodPost, "/items", body, "user_1")
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var payload map[string]any
	decodeBody(t, rr, &payload)
	if payload["error"] != "product_unavailable" {
		t.Fatalf("expected product_unavailable, got %v", payload["error"])
	}
}

func TestUpdateItemMissing(t *testing.T) {
	body := strings.NewReader(`{"quantity":5}`)
	req := authenticatedRequest(t, http.MethodPut, "/items/ci_404", body, "user_1")
	rr := httptest.NewRecorder()
	newCartRouter(&stubCartService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestRemoveItemReturnsRemainingCart(t *testing.T) {
	svc := &stubCartService{
		removeFn: func(_ context.Context, userID, itemID string) (domain.Cart, error) {
			if itemID != "ci_1" {
				t.Fatalf("expected ci_1, got %q", itemID)
			}
			return domain.Cart{UserID: userID}, nil
		},
	}

	req := authenticatedRequest(t, http.MethodDelete, "/items/ci_1", nil, "user_1")
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp cartResponse
	decodeBody(t, rr, &resp)
	if len(resp.Cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", resp.Cart.Items)
	}
}

func TestClearItemsAllowsEmptyBody(t *testing.T) {
	var clearedIDs []string
	svc := &stubCartService{
		clearFn: func(_ context.Context, _ string, itemIDs []string) error {
			clearedIDs = itemIDs
			return nil
		},
	}

	req := authenticatedRequest(t, http.MethodDelete, "/", nil, "user_1")
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if clearedIDs != nil {
		t.Fatalf("expected nil item selection, got %v", clearedIDs)
	}
}

func TestClearItemsSelective(t *testing.T) {
	var clearedIDs []string
	svc := &stubCartService{
		clearFn: func(_ context.Context, _ string, itemIDs []string) error {
			clearedIDs = itemIDs
			return nil
		},
	}

	body := strings.NewReader(`{"itemIds":["ci_1","ci_2"]}`)
	req := authenticatedRequest(t, http.MethodDelete, "/", body, "user_1")
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if len(clearedIDs) != 2 || clearedIDs[0] != "ci_1" {
		t.Fatalf("unexpected item selection: %v", clearedIDs)
	}
}

func TestCartRequiresIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	newCartRouter(&stubCartService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
