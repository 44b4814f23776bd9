package services

import (
	"context"

	domain "github.com/lokapasar/api/internal/domain"
	"github.com/lokapasar/api/internal/payments"
	"github.com/lokapasar/api/internal/repositories"
)

// CartService manages the shopper's staged selection prior to checkout.
type CartService interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	AddItem(ctx context.Context, cmd UpsertCartItemCommand) (domain.Cart, error)
	UpdateItem(ctx context.Context, cmd UpsertCartItemCommand) (domain.Cart, error)
	RemoveItem(ctx context.Context, userID string, itemID string) (domain.Cart, error)
	ClearItems(ctx context.Context, userID string, itemIDs []string) error
}

// CheckoutService turns carts or single products into priced, persisted orders.
type CheckoutService interface {
	CheckoutCart(ctx context.Context, cmd CheckoutCartCommand) (CheckoutResult, error)
	BuyNow(ctx context.Context, cmd BuyNowCommand) (CheckoutResult, error)
}

// OrderService encapsulates order reads, lifecycle transitions and payment
// state application.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	GetByNumber(ctx context.Context, orderNumber string, opts OrderReadOptions) (domain.Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (domain.Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error)
	SyncPayment(ctx context.Context, cmd SyncPaymentCommand) (domain.Order, error)
	ApplyGatewayNotification(ctx context.Context, orderNumber string, details payments.PaymentDetails) (domain.Order, error)
	AttachTransaction(ctx context.Context, orderNumber string, instructions payments.PaymentInstructions) (domain.Order, error)
	Discard(ctx context.Context, orderNumber string) error
}

// CatalogService exposes product reads for the storefront and upserts for admins.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	ListProducts(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error)
	UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (domain.Product, error)
}

// SettingsService owns the store-wide shipping policy and the payment method catalog.
type SettingsService interface {
	GetShippingSettings(ctx context.Context) (domain.GlobalShippingSettings, error)
	UpdateShippingSettings(ctx context.Context, cmd UpdateShippingSettingsCommand) (domain.GlobalShippingSettings, error)
	ListPaymentMethods(ctx context.Context, activeOnly bool) ([]domain.PaymentMethod, error)
	GetPaymentMethod(ctx context.Context, methodID string) (domain.PaymentMethod, error)
	UpsertPaymentMethod(ctx context.Context, cmd UpsertPaymentMethodCommand) (domain.PaymentMethod, error)
}

// SystemService aggregates dependency health for the ops endpoints.
type SystemService interface {
	Health(ctx context.Context) (domain.SystemHealthReport, error)
}

// Command DTOs ---------------------------------------------------------------

// UpsertCartItemCommand adds or updates a cart line.
type UpsertCartItemCommand struct {
	UserID    string
	ItemID    string
	ProductID string
	Quantity  int
	Color     string
	Size      string
	ImageURL  string
}

// CheckoutCartCommand checks out the caller's cart, optionally restricted to
// selected item IDs.
type CheckoutCartCommand struct {
	UserID         string
	AddressID      string
	PaymentMethod  string
	PaymentChannel string
	ItemIDs        []string
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
}

// BuyNowCommand checks out a single product without touching the cart.
type BuyNowCommand struct {
	UserID         string
	ProductID      string
	Quantity       int
	Color          string
	Size           string
	ImageURL       string
	AddressID      string
	PaymentMethod  string
	PaymentChannel string
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
}

// CheckoutResult is what the storefront needs to route the shopper next.
// RedirectToSuccess is true for COD where no payment step remains.
type CheckoutResult struct {
	Order             domain.Order
	RedirectToSuccess bool
	Payment           *payments.PaymentInstructions
}

// CreateOrderCommand carries a fully priced order into persistence.
type CreateOrderCommand struct {
	UserID          string
	Items           []domain.OrderLine
	Totals          domain.PriceBreakdown
	ShippingAddress domain.Address
	PaymentMethod   domain.PaymentMethodType
	PaymentLabel    string
	PaymentChannel  string
}

// OrderReadOptions scopes order reads; ForUserID enforces ownership.
type OrderReadOptions struct {
	ForUserID string
}

// OrderStatusTransitionCommand moves an order along the fulfilment axis.
type OrderStatusTransitionCommand struct {
	OrderNumber    string
	TargetStatus   domain.OrderStatus
	ExpectedStatus *domain.OrderStatus
	Reason         string
	ActorID        string
}

// CancelOrderCommand cancels an order; UserID restricts to the owner when set.
type CancelOrderCommand struct {
	OrderNumber string
	UserID      string
	Reason      string
	ActorID     string
}

// SyncPaymentCommand reconciles the order's payment state with the gateway.
type SyncPaymentCommand struct {
	OrderNumber string
	UserID      string
	ActorID     string
}

// UpsertProductCommand creates or updates a catalog product.
type UpsertProductCommand struct {
	ProductID   string
	Name        string
	SKU         string
	Description string
	Price       int64
	SalePrice   *int64
	Stock       int
	Colors      []string
	Sizes       []string
	ImageURLs   []string
	Shipping    domain.ShippingSettings
	IsActive    bool
	ActorID     string
}

// UpdateShippingSettingsCommand replaces the store-wide shipping policy.
type UpdateShippingSettingsCommand struct {
	FreeShippingThreshold int64
	DefaultShippingCost   int64
	ActorID               string
}

// UpsertPaymentMethodCommand creates or updates a payment method catalog entry.
type UpsertPaymentMethodCommand struct {
	MethodID    string
	Name        string
	Type        domain.PaymentMethodType
	Fee         int64
	Channels    []string
	Description string
	IsActive    bool
	ActorID     string
}
