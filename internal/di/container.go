package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/lokapasar/api/internal/domain"
	"github.com/lokapasar/api/internal/payments"
	"github.com/lokapasar/api/internal/platform/config"
	"github.com/lokapasar/api/internal/repositories"
	"github.com/lokapasar/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Cart     services.CartService
	Checkout services.CheckoutService
	Orders   services.OrderService
	Catalog  services.CatalogService
	Settings services.SettingsService
	System   services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services

	// Gateway routes charges and lookups to the registered payment providers.
	Gateway *payments.Manager
	// Midtrans is exposed for webhook signature verification; nil when the
	// server key is not configured.
	Midtrans *payments.MidtransProvider
	// Reconciler polls pending gateway payments; nil when the feature is off.
	Reconciler *services.PaymentReconciler
}

type containerConfig struct {
	events services.OrderEventPublisher
	logger func(ctx context.Context, event string, fields map[string]any)
}

// ContainerOption customises optional container collaborators.
type ContainerOption func(*containerConfig)

// WithOrderEventPublisher wires the publisher used for order lifecycle events.
func WithOrderEventPublisher(events services.OrderEventPublisher) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.events = events
	}
}

// WithLogger wires the structured event logger threaded through the services.
func WithLogger(logger func(ctx context.Context, event string, fields map[string]any)) ContainerOption {
	return func(cfg *containerConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...ContainerOption) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	cc := containerConfig{
		logger: func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cc)
		}
	}

	c := &Container{
		Config:       cfg,
		Repositories: reg,
	}

	if err := c.buildGateway(cfg); err != nil {
		return nil, err
	}
	if err := c.buildServices(reg, cc); err != nil {
		return nil, err
	}
	if err := c.buildReconciler(cfg, cc); err != nil {
		return nil, err
	}

	return c, nil
}

// Close releases resources such as repository clients and background workers.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.Reconciler != nil {
		c.Reconciler.StopAll()
	}
	if c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func (c *Container) buildGateway(cfg config.Config) error {
	manager := payments.NewManager()

	if cfg.Payments.Midtrans.ServerKey != "" {
		midtrans, err := payments.NewMidtransProvider(payments.MidtransProviderConfig{
			ServerKey:  cfg.Payments.Midtrans.ServerKey,
			Production: cfg.Payments.Midtrans.Production,
			QRAcquirer: cfg.Payments.Midtrans.QRAcquirer,
		})
		if err != nil {
			return fmt.Errorf("build midtrans provider: %w", err)
		}
		if err := manager.Register(midtrans, domain.PaymentMethodVirtualAccount, domain.PaymentMethodQRIS); err != nil {
			return fmt.Errorf("register midtrans provider: %w", err)
		}
		c.Midtrans = midtrans
	}

	if cfg.Payments.Stripe.APIKey != "" {
		stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:     cfg.Payments.Stripe.APIKey,
			SuccessURL: cfg.Payments.Stripe.SuccessURL,
			CancelURL:  cfg.Payments.Stripe.CancelURL,
		})
		if err != nil {
			return fmt.Errorf("build stripe provider: %w", err)
		}
		if err := manager.Register(stripe, domain.PaymentMethodCreditCard); err != nil {
			return fmt.Errorf("register stripe provider: %w", err)
		}
	}

	c.Gateway = manager
	return nil
}

func (c *Container) buildServices(reg repositories.Registry, cc containerConfig) error {
	settingsSvc, err := services.NewSettingsService(services.SettingsServiceDeps{
		Settings:       reg.Settings(),
		PaymentMethods: reg.PaymentMethods(),
		Clock:          time.Now,
		Logger:         cc.logger,
	})
	if err != nil {
		return fmt.Errorf("build settings service: %w", err)
	}
	c.Services.Settings = settingsSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: reg.Products(),
		Clock:    time.Now,
	})
	if err != nil {
		return fmt.Errorf("build catalog service: %w", err)
	}
	c.Services.Catalog = catalogSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:    reg.Carts(),
		Products: reg.Products(),
		Clock:    time.Now,
	})
	if err != nil {
		return fmt.Errorf("build cart service: %w", err)
	}
	c.Services.Cart = cartSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Counters:   reg.Counters(),
		Gateway:    c.Gateway,
		UnitOfWork: reg,
		Clock:      time.Now,
		Events:     cc.events,
		Logger:     cc.logger,
	})
	if err != nil {
		return fmt.Errorf("build order service: %w", err)
	}
	c.Services.Orders = orderSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Products:  reg.Products(),
		Carts:     reg.Carts(),
		Addresses: reg.Addresses(),
		Settings:  settingsSvc,
		Orders:    orderSvc,
		Gateway:   c.Gateway,
		Engine:    services.NewPricingEngine(services.PricingEngineDeps{Logger: cc.logger}),
		Clock:     time.Now,
		Logger:    cc.logger,
	})
	if err != nil {
		return fmt.Errorf("build checkout service: %w", err)
	}
	c.Services.Checkout = checkoutSvc

	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		Health: reg.Health(),
		Clock:  time.Now,
	})
	if err != nil {
		return fmt.Errorf("build system service: %w", err)
	}
	c.Services.System = systemSvc

	return nil
}

func (c *Container) buildReconciler(cfg config.Config, cc containerConfig) error {
	if !cfg.Features.EnablePaymentReconciler {
		return nil
	}

	var syncer services.PaymentSyncer = c.Services.Orders
	if cfg.Reconciler.TickTimeout > 0 {
		syncer = timeoutSyncer{inner: syncer, timeout: cfg.Reconciler.TickTimeout}
	}

	reconciler, err := services.NewPaymentReconciler(services.PaymentReconcilerDeps{
		Syncer:   syncer,
		Interval: cfg.Reconciler.Interval,
		OnPaid:   c.paidNotifier(cc),
		Logger:   cc.logger,
	})
	if err != nil {
		return fmt.Errorf("build payment reconciler: %w", err)
	}
	c.Reconciler = reconciler

	// Successful checkouts with a pending gateway payment start polling
	// without the handlers knowing about the reconciler.
	c.Services.Checkout = reconcilingCheckout{
		inner:      c.Services.Checkout,
		reconciler: reconciler,
		logger:     cc.logger,
	}

	return nil
}

func (c *Container) paidNotifier(cc containerConfig) func(ctx context.Context, order domain.Order) {
	return func(ctx context.Context, order domain.Order) {
		cc.logger(ctx, "reconciler.payment_confirmed", map[string]any{
			"orderNumber": order.OrderNumber,
			"status":      string(order.Status),
		})
		if cc.events == nil {
			return
		}
		event := domain.OrderEvent{
			Type:           "order.payment_confirmed",
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			CurrentStatus:  string(order.Status),
			CurrentPayment: string(order.PaymentStatus),
			OccurredAt:     time.Now().UTC(),
		}
		if err := cc.events.PublishOrderEvent(ctx, event); err != nil {
			cc.logger(ctx, "reconciler.publish_failed", map[string]any{
				"orderNumber": order.OrderNumber,
				"error":       err.Error(),
			})
		}
	}
}

// timeoutSyncer bounds each reconciliation tick so one slow gateway call
// cannot stall the run past its interval budget.
type timeoutSyncer struct {
	inner   services.PaymentSyncer
	timeout time.Duration
}

func (s timeoutSyncer) SyncPayment(ctx context.Context, cmd services.SyncPaymentCommand) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.SyncPayment(ctx, cmd)
}

// reconcilingCheckout starts payment polling for orders that leave checkout
// with a pending gateway payment.
type reconcilingCheckout struct {
	inner      services.CheckoutService
	reconciler *services.PaymentReconciler
	logger     func(ctx context.Context, event string, fields map[string]any)
}

func (r reconcilingCheckout) CheckoutCart(ctx context.Context, cmd services.CheckoutCartCommand) (services.CheckoutResult, error) {
	result, err := r.inner.CheckoutCart(ctx, cmd)
	if err != nil {
		return result, err
	}
	r.startPolling(ctx, result.Order)
	return result, nil
}

func (r reconcilingCheckout) BuyNow(ctx context.Context, cmd services.BuyNowCommand) (services.CheckoutResult, error) {
	result, err := r.inner.BuyNow(ctx, cmd)
	if err != nil {
		return result, err
	}
	r.startPolling(ctx, result.Order)
	return result, nil
}

func (r reconcilingCheckout) startPolling(ctx context.Context, order domain.Order) {
	if order.IsCOD() || order.PaymentStatus != domain.PaymentStatusPending {
		return
	}
	// The run must outlive the request.
	if _, err := r.reconciler.Start(context.WithoutCancel(ctx), order); err != nil {
		r.logger(ctx, "checkout.reconcile_start_failed", map[string]any{
			"orderNumber": order.OrderNumber,
			"error":       err.Error(),
		})
	}
}

var _ services.CheckoutService = reconcilingCheckout{}
