package domain

import (
	"time"
)

// OrderStatus captures fulfilment lifecycle states for an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// PaymentStatus tracks the payment axis independently from fulfilment.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentMethodType enumerates the payment rails the storefront accepts.
type PaymentMethodType string

const (
	PaymentMethodCOD            PaymentMethodType = "COD"
	PaymentMethodVirtualAccount PaymentMethodType = "VIRTUAL_ACCOUNT"
	PaymentMethodQRIS           PaymentMethodType = "QRIS"
	PaymentMethodCreditCard     PaymentMethodType = "CREDIT_CARD"
)

// PaymentMethod is an admin-configured payment option offered at checkout.
// Fee is signed: positive values are surcharges, negative values promotional
// discounts. VIRTUAL_ACCOUNT methods carry the bank channels they support.
type PaymentMethod struct {
	ID          string
	Name        string
	Type        PaymentMethodType
	Fee         int64
	Channels    []string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RequiresChannel reports whether a channel selection is mandatory for the method.
func (m PaymentMethod) RequiresChannel() bool {
	return m.Type == PaymentMethodVirtualAccount
}

// SupportsChannel reports whether the given channel is configured for the method.
func (m PaymentMethod) SupportsChannel(channel string) bool {
	if len(m.Channels) == 0 {
		return channel == ""
	}
	for _, c := range m.Channels {
		if c == channel {
			return true
		}
	}
	return false
}

// Product is a sellable catalog entry. Shipping is the per-product policy
// source consulted by the shipping resolver; unset fields fall back to the
// store-wide settings.
type Product struct {
	ID          string
	Name        string
	SKU         string
	Description string
	Price       int64
	SalePrice   *int64
	Stock       int
	Colors      []string
	Sizes       []string
	ImageURLs   []string
	Shipping    ShippingSettings
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EffectivePrice returns the sale price when one is set below the base price.
func (p Product) EffectivePrice() int64 {
	if p.SalePrice != nil && *p.SalePrice > 0 && *p.SalePrice < p.Price {
		return *p.SalePrice
	}
	return p.Price
}

// Cart is a user's staged selection prior to checkout.
type Cart struct {
	UserID    string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem references a product plus the variant choices made by the shopper.
type CartItem struct {
	ID        string
	ProductID string
	Quantity  int
	Color     string
	Size      string
	ImageURL  string
	AddedAt   time.Time
}

// Address is a shipping destination stored per user.
type Address struct {
	ID         string
	Label      string
	Recipient  string
	Phone      string
	Street     string
	City       string
	Province   string
	PostalCode string
	IsDefault  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// GlobalShippingSettings is the store-wide fallback shipping policy.
type GlobalShippingSettings struct {
	FreeShippingThreshold int64
	DefaultShippingCost   int64
	UpdatedAt             time.Time
}

// Order is the persisted purchase record. Totals is always recomputed from its
// components before persistence; it is never patched field-by-field.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	PaymentMethod   PaymentMethodType
	PaymentLabel    string
	PaymentChannel  string
	Totals          PriceBreakdown
	Items           []OrderItem
	ShippingAddress Address
	Transactions    []PaymentTransaction
	CancelReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaidAt          *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	RefundedAt      *time.Time
}

// IsCOD reports whether the order settles on delivery.
func (o Order) IsCOD() bool {
	return o.PaymentMethod == PaymentMethodCOD
}

// PaymentTerminal reports whether the payment axis reached a final state.
func (o Order) PaymentTerminal() bool {
	return o.PaymentStatus != PaymentStatusPending
}

// LatestTransaction returns the most recent gateway transaction, if any.
func (o Order) LatestTransaction() (PaymentTransaction, bool) {
	if len(o.Transactions) == 0 {
		return PaymentTransaction{}, false
	}
	return o.Transactions[len(o.Transactions)-1], true
}

// OrderItem is an immutable snapshot of a product at purchase time. Later
// catalog edits never change what the customer sees on the order.
type OrderItem struct {
	ID        string
	ProductID string
	Name      string
	SKU       string
	UnitPrice int64
	BasePrice int64
	Quantity  int
	Color     string
	Size      string
	ImageURL  string
}

// PaymentTransaction records a charge created at the gateway for an order.
// At most one transaction is live at a time; the newest entry wins.
type PaymentTransaction struct {
	ID           string
	OrderID      string
	Provider     string
	Reference    string
	PaymentType  string
	VABank       string
	VANumber     string
	QRImageURL   string
	PaymentURL   string
	Instructions string
	Status       string
	GrossAmount  int64
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Pagination carries cursor paging inputs through repository queries.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage is a generic page of results plus the continuation token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderEvent describes a lifecycle change published to interested consumers.
type OrderEvent struct {
	Type            string
	OrderID         string
	OrderNumber     string
	PreviousStatus  string
	CurrentStatus   string
	PreviousPayment string
	CurrentPayment  string
	ActorID         string
	OccurredAt      time.Time
	Metadata        map[string]any
}

// SystemHealthReport aggregates dependency probes for the health endpoint.
type SystemHealthReport struct {
	Healthy    bool
	Components map[string]ComponentHealth
	CheckedAt  time.Time
}

// ComponentHealth is the status of a single downstream dependency.
type ComponentHealth struct {
	Healthy bool
	Detail  string
	Latency time.Duration
}
