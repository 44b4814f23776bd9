package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/lokapasar/api/internal/domain"
	"github.com/lokapasar/api/internal/payments"
	"github.com/lokapasar/api/internal/repositories"
)

var (
	// ErrCheckoutInvalidInput signals malformed or missing request data.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutAddressNotFound indicates the shipping address does not exist for the caller.
	ErrCheckoutAddressNotFound = errors.New("checkout: address not found")
	// ErrCheckoutMethodUnavailable indicates the payment method is unknown or disabled.
	ErrCheckoutMethodUnavailable = errors.New("checkout: payment method unavailable")
	// ErrCheckoutChannelRequired indicates a bank channel is missing or unsupported.
	ErrCheckoutChannelRequired = errors.New("checkout: payment channel required")
	// ErrCheckoutNoItems indicates the checkout resolved to an empty line set.
	ErrCheckoutNoItems = errors.New("checkout: no items")
	// ErrCheckoutProductUnavailable indicates a product is missing or inactive.
	ErrCheckoutProductUnavailable = errors.New("checkout: product unavailable")
	// ErrCheckoutInsufficientStock indicates the requested quantity exceeds stock.
	ErrCheckoutInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrCheckoutPaymentFailed indicates the gateway refused or failed the charge.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
	// ErrCheckoutUnavailable indicates a transient downstream failure.
	ErrCheckoutUnavailable = errors.New("checkout: temporarily unavailable")
)

// CheckoutServiceDeps bundles collaborators for the checkout service.
type CheckoutServiceDeps struct {
	Products  repositories.ProductRepository
	Carts     repositories.CartRepository
	Addresses repositories.AddressRepository
	Settings  SettingsService
	Orders    OrderService
	Gateway   payments.Gateway
	Engine    *PricingEngine
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	products  repositories.ProductRepository
	carts     repositories.CartRepository
	addresses repositories.AddressRepository
	settings  SettingsService
	orders    OrderService
	gateway   payments.Gateway
	engine    *PricingEngine
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewCheckoutService validates dependencies and returns the checkout implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Products == nil {
		return nil, errors.New("checkout service: product repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("checkout service: address repository is required")
	}
	if deps.Settings == nil {
		return nil, errors.New("checkout service: settings service is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order service is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("checkout service: pricing engine is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		products:  deps.Products,
		carts:     deps.Carts,
		addresses: deps.Addresses,
		settings:  deps.Settings,
		orders:    deps.Orders,
		gateway:   deps.Gateway,
		engine:    deps.Engine,
		clock:     clock,
		logger:    logger,
	}, nil
}

func (s *checkoutService) CheckoutCart(ctx context.Context, cmd CheckoutCartCommand) (CheckoutResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil && !isNotFound(err) {
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	selections, checkedOut := selectCartItems(cart, cmd.ItemIDs)
	if len(selections) == 0 {
		return CheckoutResult{}, fmt.Errorf("%w: cart has no matching items", ErrCheckoutNoItems)
	}

	result, err := s.placeOrder(ctx, placeOrderInput{
		UserID:         userID,
		AddressID:      cmd.AddressID,
		PaymentMethod:  cmd.PaymentMethod,
		PaymentChannel: cmd.PaymentChannel,
		Selections:     selections,
		CustomerName:   cmd.CustomerName,
		CustomerEmail:  cmd.CustomerEmail,
		CustomerPhone:  cmd.CustomerPhone,
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	s.removeCheckedOutItems(ctx, cart, checkedOut)
	return result, nil
}

func (s *checkoutService) BuyNow(ctx context.Context, cmd BuyNowCommand) (CheckoutResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: product id is required", ErrCheckoutInvalidInput)
	}
	quantity := cmd.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	return s.placeOrder(ctx, placeOrderInput{
		UserID:         userID,
		AddressID:      cmd.AddressID,
		PaymentMethod:  cmd.PaymentMethod,
		PaymentChannel: cmd.PaymentChannel,
		Selections: []LineSelection{{
			ProductID: productID,
			Quantity:  quantity,
			Color:     strings.TrimSpace(cmd.Color),
			Size:      strings.TrimSpace(cmd.Size),
			ImageURL:  strings.TrimSpace(cmd.ImageURL),
		}},
		CustomerName:  cmd.CustomerName,
		CustomerEmail: cmd.CustomerEmail,
		CustomerPhone: cmd.CustomerPhone,
	})
}

type placeOrderInput struct {
	UserID         string
	AddressID      string
	PaymentMethod  string
	PaymentChannel string
	Selections     []LineSelection
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
}

// placeOrder is the single pricing-and-persistence path shared by the cart
// and buy-now flows; both produce identical breakdowns for identical lines.
func (s *checkoutService) placeOrder(ctx context.Context, in placeOrderInput) (CheckoutResult, error) {
	addressID := strings.TrimSpace(in.AddressID)
	if addressID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: address id is required", ErrCheckoutInvalidInput)
	}

	address, err := s.addresses.Get(ctx, in.UserID, addressID)
	if err != nil {
		if isNotFound(err) {
			return CheckoutResult{}, fmt.Errorf("%w: %s", ErrCheckoutAddressNotFound, addressID)
		}
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	method, err := s.resolvePaymentMethod(ctx, in.PaymentMethod, in.PaymentChannel)
	if err != nil {
		return CheckoutResult{}, err
	}

	lines, err := s.loadLines(ctx, in.Selections)
	if err != nil {
		return CheckoutResult{}, err
	}

	global, err := s.loadShippingSettings(ctx)
	if err != nil {
		return CheckoutResult{}, err
	}

	shipping := s.engine.ResolveShipping(ctx, lines, global)
	fee := domain.FeeAdjustmentFromSigned(method.Fee)
	breakdown := s.engine.Compute(lines, shipping, fee)

	order, err := s.orders.Create(ctx, CreateOrderCommand{
		UserID:          in.UserID,
		Items:           lines,
		Totals:          breakdown,
		ShippingAddress: address,
		PaymentMethod:   method.Type,
		PaymentLabel:    method.Name,
		PaymentChannel:  strings.TrimSpace(in.PaymentChannel),
	})
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	s.decrementStock(ctx, lines)

	if method.Type == domain.PaymentMethodCOD {
		// COD needs no gateway step; the caller routes straight to the
		// success view and payment confirms at delivery.
		return CheckoutResult{Order: order, RedirectToSuccess: true}, nil
	}

	instructions, err := s.createCharge(ctx, order, method, in)
	if err != nil {
		// Checkout is all-or-nothing: a failed charge unwinds the order
		// and restores the decremented stock.
		s.restoreStock(ctx, lines)
		if discardErr := s.orders.Discard(ctx, order.OrderNumber); discardErr != nil {
			s.logger(ctx, "checkout.discard.failed", map[string]any{
				"order_number": order.OrderNumber,
				"error":        discardErr.Error(),
			})
		}
		return CheckoutResult{}, err
	}

	order, err = s.orders.AttachTransaction(ctx, order.OrderNumber, instructions)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	return CheckoutResult{Order: order, Payment: &instructions}, nil
}

func (s *checkoutService) resolvePaymentMethod(ctx context.Context, methodID, channel string) (domain.PaymentMethod, error) {
	id := strings.TrimSpace(methodID)
	if id == "" {
		return domain.PaymentMethod{}, fmt.Errorf("%w: payment method is required", ErrCheckoutInvalidInput)
	}

	methods, err := s.settings.ListPaymentMethods(ctx, true)
	if err != nil {
		return domain.PaymentMethod{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	for _, method := range methods {
		if method.ID != id {
			continue
		}
		channel = strings.TrimSpace(channel)
		if method.RequiresChannel() && channel == "" {
			return domain.PaymentMethod{}, fmt.Errorf("%w: method %s", ErrCheckoutChannelRequired, id)
		}
		if channel != "" && !method.SupportsChannel(channel) {
			return domain.PaymentMethod{}, fmt.Errorf("%w: channel %q not supported", ErrCheckoutChannelRequired, channel)
		}
		return method, nil
	}
	return domain.PaymentMethod{}, fmt.Errorf("%w: %s", ErrCheckoutMethodUnavailable, id)
}

func (s *checkoutService) loadLines(ctx context.Context, selections []LineSelection) ([]domain.OrderLine, error) {
	if len(selections) == 0 {
		return nil, fmt.Errorf("%w: nothing selected", ErrCheckoutNoItems)
	}

	products := make(map[string]domain.Product, len(selections))
	for _, sel := range selections {
		if _, seen := products[sel.ProductID]; seen {
			continue
		}
		product, err := s.products.FindByID(ctx, sel.ProductID)
		if err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("%w: %s", ErrCheckoutProductUnavailable, sel.ProductID)
			}
			return nil, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
		if !product.IsActive {
			return nil, fmt.Errorf("%w: %s", ErrCheckoutProductUnavailable, sel.ProductID)
		}
		products[sel.ProductID] = product
	}

	// Stock is checked against the summed quantity per product: the same
	// product can appear as several variant lines and each line alone may
	// fit the stock while the aggregate does not.
	requested := make(map[string]int, len(products))
	for _, sel := range selections {
		if sel.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", ErrCheckoutInvalidInput)
		}
		requested[sel.ProductID] += sel.Quantity
	}
	for productID, quantity := range requested {
		if product := products[productID]; quantity > product.Stock {
			return nil, fmt.Errorf("%w: product %s has %d left", ErrCheckoutInsufficientStock, productID, product.Stock)
		}
	}

	lines := LinesFromProducts(selections, products)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: nothing selected", ErrCheckoutNoItems)
	}
	return lines, nil
}

func (s *checkoutService) loadShippingSettings(ctx context.Context) (domain.GlobalShippingSettings, error) {
	settings, err := s.settings.GetShippingSettings(ctx)
	if err != nil {
		if isNotFound(err) {
			// No store-wide policy configured yet; per-line settings stand alone.
			return domain.GlobalShippingSettings{}, nil
		}
		return domain.GlobalShippingSettings{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	return settings, nil
}

func (s *checkoutService) createCharge(ctx context.Context, order domain.Order, method domain.PaymentMethod, in placeOrderInput) (payments.PaymentInstructions, error) {
	if s.gateway == nil {
		return payments.PaymentInstructions{}, fmt.Errorf("%w: no gateway configured", ErrCheckoutPaymentFailed)
	}

	items := make([]payments.ChargeItem, 0, len(order.Items)+1)
	for _, item := range order.Items {
		items = append(items, payments.ChargeItem{
			ID:       item.ProductID,
			Name:     item.Name,
			Price:    item.UnitPrice,
			Quantity: item.Quantity,
		})
	}
	// Gateways validate that item totals equal the gross amount, so shipping
	// and fees ride along as a synthetic line.
	if extra := order.Totals.Total - order.Totals.Subtotal; extra != 0 {
		items = append(items, payments.ChargeItem{
			ID:       "fees",
			Name:     "Shipping & fees",
			Price:    extra,
			Quantity: 1,
		})
	}

	instructions, err := s.gateway.CreateCharge(ctx, payments.ChargeRequest{
		OrderNumber: order.OrderNumber,
		Method:      method.Type,
		Channel:     strings.TrimSpace(in.PaymentChannel),
		GrossAmount: order.Totals.Total,
		Customer: payments.Customer{
			ID:    order.UserID,
			Name:  strings.TrimSpace(in.CustomerName),
			Email: strings.TrimSpace(in.CustomerEmail),
			Phone: strings.TrimSpace(in.CustomerPhone),
		},
		Items: items,
	})
	if err != nil {
		s.logger(ctx, "checkout.charge.failed", map[string]any{
			"order_number": order.OrderNumber,
			"method":       string(method.Type),
			"error":        err.Error(),
		})
		return payments.PaymentInstructions{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}
	return instructions, nil
}

func (s *checkoutService) decrementStock(ctx context.Context, lines []domain.OrderLine) {
	for _, line := range lines {
		if _, err := s.products.AdjustStock(ctx, line.ProductID, -line.Quantity); err != nil {
			s.logger(ctx, "checkout.stock.decrement.failed", map[string]any{
				"product_id": line.ProductID,
				"error":      err.Error(),
			})
		}
	}
}

func (s *checkoutService) restoreStock(ctx context.Context, lines []domain.OrderLine) {
	for _, line := range lines {
		if _, err := s.products.AdjustStock(ctx, line.ProductID, line.Quantity); err != nil {
			s.logger(ctx, "checkout.stock.restore.failed", map[string]any{
				"product_id": line.ProductID,
				"error":      err.Error(),
			})
		}
	}
}

func (s *checkoutService) removeCheckedOutItems(ctx context.Context, cart domain.Cart, checkedOut map[string]bool) {
	if len(checkedOut) == 0 {
		return
	}
	remaining := make([]domain.CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if !checkedOut[item.ID] {
			remaining = append(remaining, item)
		}
	}
	if _, err := s.carts.ReplaceItems(ctx, cart.UserID, remaining); err != nil {
		s.logger(ctx, "checkout.cart.cleanup.failed", map[string]any{
			"user_id": cart.UserID,
			"error":   err.Error(),
		})
	}
}

// selectCartItems narrows the cart to the requested item IDs; an empty filter
// selects the whole cart.
func selectCartItems(cart domain.Cart, itemIDs []string) ([]LineSelection, map[string]bool) {
	wanted := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			wanted[trimmed] = true
		}
	}

	selections := make([]LineSelection, 0, len(cart.Items))
	checkedOut := make(map[string]bool, len(cart.Items))
	for _, item := range cart.Items {
		if len(wanted) > 0 && !wanted[item.ID] {
			continue
		}
		selections = append(selections, LineSelection{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Color:     item.Color,
			Size:      item.Size,
			ImageURL:  item.ImageURL,
		})
		checkedOut[item.ID] = true
	}
	return selections, checkedOut
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrSettingsNotFound)
}
