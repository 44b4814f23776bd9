package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/lokapasar/api/internal/domain"
	"github.com/lokapasar/api/internal/payments"
	"github.com/lokapasar/api/internal/repositories"
)

const (
	orderEventCreated        = "order.created"
	orderEventStatusChanged  = "order.status.changed"
	orderEventPaymentChanged = "order.payment.changed"

	orderIDPrefix       = "ord_"
	transactionIDPrefix = "pay_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderNotCancellable indicates the order has progressed past the point of cancellation.
	ErrOrderNotCancellable = errors.New("order: not cancellable")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderPaymentSyncUnavailable indicates the payment gateway could not be reached.
	ErrOrderPaymentSyncUnavailable = errors.New("order: payment sync unavailable")
	// ErrOrderForbidden indicates the caller does not own the order.
	ErrOrderForbidden = errors.New("order: forbidden")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusRefunded},
	domain.OrderStatusDelivered:  {domain.OrderStatusRefunded},
	domain.OrderStatusCancelled:  {domain.OrderStatusRefunded},
}

var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusProcessing,
}

var paymentStateTransitions = map[domain.PaymentStatus][]domain.PaymentStatus{
	domain.PaymentStatusPending: {domain.PaymentStatusPaid, domain.PaymentStatusFailed},
	domain.PaymentStatusPaid:    {domain.PaymentStatusRefunded},
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Counters    repositories.CounterRepository
	Gateway     payments.Gateway
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	counters   repositories.CounterRepository
	gateway    payments.Gateway
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		counters:   deps.Counters,
		gateway:    deps.Gateway,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	if len(cmd.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if cmd.PaymentMethod == "" {
		return domain.Order{}, fmt.Errorf("%w: payment method is required", ErrOrderInvalidInput)
	}

	now := s.now()
	totals := cmd.Totals
	totals.Recalculate()

	order := domain.Order{
		ID:              s.nextOrderID(),
		UserID:          userID,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		PaymentMethod:   cmd.PaymentMethod,
		PaymentLabel:    strings.TrimSpace(cmd.PaymentLabel),
		PaymentChannel:  strings.TrimSpace(cmd.PaymentChannel),
		Totals:          totals,
		Items:           s.snapshotItems(cmd.Items),
		ShippingAddress: cmd.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return domain.Order{}, err
	}
	order.OrderNumber = number

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.publishEvent(ctx, domain.OrderEvent{
		Type:           orderEventCreated,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		CurrentStatus:  string(order.Status),
		CurrentPayment: string(order.PaymentStatus),
		ActorID:        userID,
		OccurredAt:     now,
		Metadata: map[string]any{
			"paymentMethod": string(order.PaymentMethod),
			"total":         order.Totals.Total,
		},
	})

	return order, nil
}

func (s *orderService) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) GetByNumber(ctx context.Context, orderNumber string, opts OrderReadOptions) (domain.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if err := authorizeOrderRead(order, opts); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (domain.Order, error) {
	orderNumber := strings.TrimSpace(cmd.OrderNumber)
	if orderNumber == "" {
		return domain.Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}
	if cmd.TargetStatus == "" {
		return domain.Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if cmd.ExpectedStatus != nil && order.Status != *cmd.ExpectedStatus {
		return domain.Order{}, fmt.Errorf("%w: expected status %q but was %q", ErrOrderConflict, *cmd.ExpectedStatus, order.Status)
	}

	now := s.now()
	prevStatus := order.Status
	prevPayment := order.PaymentStatus

	if err := s.applyStatusTransition(&order, cmd.TargetStatus, now); err != nil {
		return domain.Order{}, err
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	metadata := map[string]any{}
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		metadata["reason"] = reason
	}

	s.publishEvent(ctx, domain.OrderEvent{
		Type:            orderEventStatusChanged,
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		PreviousStatus:  string(prevStatus),
		CurrentStatus:   string(order.Status),
		PreviousPayment: string(prevPayment),
		CurrentPayment:  string(order.PaymentStatus),
		ActorID:         strings.TrimSpace(cmd.ActorID),
		OccurredAt:      now,
		Metadata:        metadata,
	})

	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error) {
	orderNumber := strings.TrimSpace(cmd.OrderNumber)
	if orderNumber == "" {
		return domain.Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if userID := strings.TrimSpace(cmd.UserID); userID != "" && order.UserID != userID {
		return domain.Order{}, fmt.Errorf("%w: order %s", ErrOrderForbidden, orderNumber)
	}

	if !slices.Contains(cancellableStatuses, order.Status) {
		return domain.Order{}, fmt.Errorf("%w: status %q", ErrOrderNotCancellable, order.Status)
	}

	now := s.now()
	prevStatus := order.Status

	order.CancelReason = strings.TrimSpace(cmd.Reason)
	order.CancelledAt = &now

	if err := s.applyStatusTransition(&order, domain.OrderStatusCancelled, now); err != nil {
		return domain.Order{}, err
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	metadata := map[string]any{}
	if order.CancelReason != "" {
		metadata["reason"] = order.CancelReason
	}

	s.publishEvent(ctx, domain.OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     now,
		Metadata:       metadata,
	})

	return order, nil
}

// SyncPayment asks the gateway for the authoritative state of the order's
// latest transaction and applies the result. Orders whose payment axis is
// already terminal return unchanged without a gateway round trip.
func (s *orderService) SyncPayment(ctx context.Context, cmd SyncPaymentCommand) (domain.Order, error) {
	orderNumber := strings.TrimSpace(cmd.OrderNumber)
	if orderNumber == "" {
		return domain.Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if userID := strings.TrimSpace(cmd.UserID); userID != "" && order.UserID != userID {
		return domain.Order{}, fmt.Errorf("%w: order %s", ErrOrderForbidden, orderNumber)
	}

	if order.PaymentTerminal() || order.IsCOD() {
		return order, nil
	}
	if s.gateway == nil {
		return domain.Order{}, fmt.Errorf("%w: no gateway configured", ErrOrderPaymentSyncUnavailable)
	}

	tx, _ := order.LatestTransaction()
	details, err := s.gateway.LookupPayment(ctx, payments.LookupRequest{
		OrderNumber: order.OrderNumber,
		Method:      order.PaymentMethod,
		Reference:   tx.Reference,
	})
	if err != nil {
		if errors.Is(err, payments.ErrPaymentNotFound) {
			// Charge not registered at the gateway yet; stay pending.
			return order, nil
		}
		return domain.Order{}, fmt.Errorf("%w: %v", ErrOrderPaymentSyncUnavailable, err)
	}

	return s.applyPaymentDetails(ctx, order, details, cmd.ActorID)
}

// ApplyGatewayNotification feeds a verified webhook payload through the same
// state application path the sync endpoint uses.
func (s *orderService) ApplyGatewayNotification(ctx context.Context, orderNumber string, details payments.PaymentDetails) (domain.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if order.PaymentTerminal() {
		return order, nil
	}
	return s.applyPaymentDetails(ctx, order, details, "gateway")
}

func (s *orderService) AttachTransaction(ctx context.Context, orderNumber string, instructions payments.PaymentInstructions) (domain.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	order.Transactions = append(order.Transactions, domain.PaymentTransaction{
		ID:           transactionIDPrefix + s.newID(),
		OrderID:      order.ID,
		Provider:     instructions.Provider,
		Reference:    instructions.Reference,
		PaymentType:  instructions.PaymentType,
		VABank:       instructions.VABank,
		VANumber:     instructions.VANumber,
		QRImageURL:   instructions.QRImageURL,
		PaymentURL:   instructions.PaymentURL,
		Instructions: instructions.Instructions,
		Status:       string(payments.StatusPending),
		GrossAmount:  instructions.GrossAmount,
		ExpiresAt:    instructions.ExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	order.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// Discard removes an order that never completed checkout, releasing its
// number. Only pending orders with a pending payment axis qualify.
func (s *orderService) Discard(ctx context.Context, orderNumber string) error {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatusPending {
		return fmt.Errorf("%w: order %s is not discardable", ErrOrderInvalidState, orderNumber)
	}
	if err := s.orders.Delete(ctx, order.ID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *orderService) applyPaymentDetails(ctx context.Context, order domain.Order, details payments.PaymentDetails, actorID string) (domain.Order, error) {
	target, ok := paymentStatusFromGateway(details.Status)
	if !ok {
		// Still pending or an in-between gateway state; nothing to persist.
		return order, nil
	}

	now := s.now()
	prevPayment := order.PaymentStatus

	if err := s.applyPaymentTransition(&order, target, now); err != nil {
		return domain.Order{}, err
	}

	if n := len(order.Transactions); n > 0 {
		order.Transactions[n-1].Status = string(details.Status)
		order.Transactions[n-1].UpdatedAt = now
		if details.Reference != "" {
			order.Transactions[n-1].Reference = details.Reference
		}
	}

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.publishEvent(ctx, domain.OrderEvent{
		Type:            orderEventPaymentChanged,
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		PreviousPayment: string(prevPayment),
		CurrentPayment:  string(order.PaymentStatus),
		CurrentStatus:   string(order.Status),
		ActorID:         strings.TrimSpace(actorID),
		OccurredAt:      now,
		Metadata: map[string]any{
			"provider":  details.Provider,
			"reference": details.Reference,
		},
	})

	return order, nil
}

func (s *orderService) applyStatusTransition(order *domain.Order, target domain.OrderStatus, now time.Time) error {
	current := order.Status
	if current == target {
		order.UpdatedAt = now
		return nil
	}

	if !canTransition(current, target) {
		return fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, current, target)
	}

	if target == domain.OrderStatusRefunded && order.PaymentStatus != domain.PaymentStatusPaid {
		return fmt.Errorf("%w: refund requires a paid order", ErrOrderInvalidState)
	}

	order.Status = target
	order.UpdatedAt = now
	s.updateTimestamps(order, target, now)

	// COD settles on handover; delivery is the payment confirmation moment.
	if target == domain.OrderStatusDelivered && order.IsCOD() && order.PaymentStatus == domain.PaymentStatusPending {
		if err := s.applyPaymentTransition(order, domain.PaymentStatusPaid, now); err != nil {
			return err
		}
	}
	if target == domain.OrderStatusRefunded {
		if err := s.applyPaymentTransition(order, domain.PaymentStatusRefunded, now); err != nil {
			return err
		}
	}

	return nil
}

func (s *orderService) applyPaymentTransition(order *domain.Order, target domain.PaymentStatus, now time.Time) error {
	current := order.PaymentStatus
	if current == target {
		return nil
	}
	allowed, ok := paymentStateTransitions[current]
	if !ok || !slices.Contains(allowed, target) {
		return fmt.Errorf("%w: payment %s to %s", ErrOrderInvalidState, current, target)
	}

	order.PaymentStatus = target
	order.UpdatedAt = now
	switch target {
	case domain.PaymentStatusPaid:
		order.PaidAt = &now
	case domain.PaymentStatusRefunded:
		order.RefundedAt = &now
	}
	return nil
}

func (s *orderService) updateTimestamps(order *domain.Order, status domain.OrderStatus, now time.Time) {
	switch status {
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		if order.CancelledAt == nil {
			order.CancelledAt = &now
		}
	case domain.OrderStatusRefunded:
		order.RefundedAt = &now
	}
}

func (s *orderService) snapshotItems(lines []domain.OrderLine) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.OrderItem{
			ID:        "itm_" + s.newID(),
			ProductID: line.ProductID,
			Name:      line.Name,
			SKU:       line.SKU,
			UnitPrice: line.UnitPrice,
			BasePrice: line.BasePrice,
			Quantity:  line.Quantity,
			Color:     line.Color,
			Size:      line.Size,
			ImageURL:  line.ImageURL,
		})
	}
	return items
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "orders", 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("LP-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event domain.OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func authorizeOrderRead(order domain.Order, opts OrderReadOptions) error {
	if opts.ForUserID == "" {
		return nil
	}
	if order.UserID != opts.ForUserID {
		return fmt.Errorf("%w: order %s", ErrOrderForbidden, order.OrderNumber)
	}
	return nil
}

func paymentStatusFromGateway(status payments.Status) (domain.PaymentStatus, bool) {
	switch status {
	case payments.StatusSucceeded:
		return domain.PaymentStatusPaid, true
	case payments.StatusFailed:
		return domain.PaymentStatusFailed, true
	case payments.StatusRefunded:
		return domain.PaymentStatusRefunded, true
	default:
		return "", false
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}
