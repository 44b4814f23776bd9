package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/lokapasar/api/internal/domain"
)

// Status normalises gateway-specific transaction states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
	StatusUnknown   Status = "unknown"
)

var (
	// ErrProviderNotConfigured indicates no provider is registered for the payment method.
	ErrProviderNotConfigured = errors.New("payments: provider not configured")
	// ErrPaymentNotFound indicates the gateway has no record of the charge.
	ErrPaymentNotFound = errors.New("payments: payment not found")
	// ErrChargeRejected indicates the gateway refused to create the charge.
	ErrChargeRejected = errors.New("payments: charge rejected")
	// ErrGatewayUnavailable indicates a transient transport or gateway failure.
	ErrGatewayUnavailable = errors.New("payments: gateway unavailable")
)

// ChargeRequest describes the charge to create at the gateway.
type ChargeRequest struct {
	OrderNumber string
	Method      domain.PaymentMethodType
	Channel     string
	GrossAmount int64
	Customer    Customer
	Items       []ChargeItem
	ExpireAfter time.Duration
}

// Customer identifies the paying shopper to the gateway.
type Customer struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// ChargeItem is a line forwarded to the gateway for statement detail.
type ChargeItem struct {
	ID       string
	Name     string
	Price    int64
	Quantity int
}

// PaymentInstructions tells the shopper how to complete a charge.
type PaymentInstructions struct {
	Provider     string
	Reference    string
	PaymentType  string
	VABank       string
	VANumber     string
	QRImageURL   string
	PaymentURL   string
	Instructions string
	GrossAmount  int64
	ExpiresAt    *time.Time
}

// LookupRequest identifies the charge to interrogate at the gateway.
type LookupRequest struct {
	OrderNumber string
	Method      domain.PaymentMethodType
	Reference   string
}

// PaymentDetails is the gateway's authoritative view of a charge.
type PaymentDetails struct {
	Provider    string
	Reference   string
	Status      Status
	GrossAmount int64
	SettledAt   *time.Time
	RawStatus   string
}

// Provider abstracts a payment gateway integration.
type Provider interface {
	Name() string
	CreateCharge(ctx context.Context, req ChargeRequest) (PaymentInstructions, error)
	LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error)
}

// Gateway is the surface services depend on; Manager implements it by
// routing per payment method type.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (PaymentInstructions, error)
	LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error)
}

// Manager routes gateway calls to the provider registered for each payment
// method type. COD never reaches the manager; the order lifecycle settles it.
type Manager struct {
	mu        sync.RWMutex
	providers map[domain.PaymentMethodType]Provider
}

// NewManager constructs an empty manager; register providers before use.
func NewManager() *Manager {
	return &Manager{providers: make(map[domain.PaymentMethodType]Provider)}
}

// Register binds a provider to one or more payment method types.
func (m *Manager) Register(provider Provider, methods ...domain.PaymentMethodType) error {
	if provider == nil {
		return errors.New("payments: provider is required")
	}
	if len(methods) == 0 {
		return errors.New("payments: at least one method type is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, method := range methods {
		m.providers[method] = provider
	}
	return nil
}

// CreateCharge dispatches the charge to the provider owning the method type.
func (m *Manager) CreateCharge(ctx context.Context, req ChargeRequest) (PaymentInstructions, error) {
	provider, err := m.resolve(req.Method)
	if err != nil {
		return PaymentInstructions{}, err
	}
	if strings.TrimSpace(req.OrderNumber) == "" {
		return PaymentInstructions{}, errors.New("payments: order number is required")
	}
	if req.GrossAmount <= 0 {
		return PaymentInstructions{}, fmt.Errorf("%w: non-positive amount", ErrChargeRejected)
	}
	return provider.CreateCharge(ctx, req)
}

// LookupPayment dispatches the status lookup to the owning provider.
func (m *Manager) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	provider, err := m.resolve(req.Method)
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.LookupPayment(ctx, req)
}

func (m *Manager) resolve(method domain.PaymentMethodType) (Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	provider, ok := m.providers[method]
	if !ok {
		return nil, fmt.Errorf("%w: method %q", ErrProviderNotConfigured, method)
	}
	return provider, nil
}

var _ Gateway = (*Manager)(nil)
