package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/lokapasar/api/internal/domain"
)

const defaultReconcileInterval = 3 * time.Second

var (
	// ErrReconcileNotEligible indicates the order does not need gateway polling.
	ErrReconcileNotEligible = errors.New("reconcile: order not eligible")
)

// PaymentSyncer is the slice of the order service the reconciler drives.
type PaymentSyncer interface {
	SyncPayment(ctx context.Context, cmd SyncPaymentCommand) (domain.Order, error)
}

// PaymentReconcilerDeps bundles collaborators for the reconciler.
type PaymentReconcilerDeps struct {
	Syncer   PaymentSyncer
	Interval time.Duration
	// OnPaid fires exactly once per run when the order reaches paid.
	OnPaid func(ctx context.Context, order domain.Order)
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

// PaymentReconciler polls the gateway for orders awaiting payment. Each
// eligible order gets its own run: an immediate sync, then one sync per fixed
// interval until the payment axis goes terminal or the run is stopped. Ticks
// within a run execute sequentially on one goroutine, so they never overlap.
type PaymentReconciler struct {
	syncer   PaymentSyncer
	interval time.Duration
	onPaid   func(context.Context, domain.Order)
	logger   func(context.Context, string, map[string]any)

	mu   sync.Mutex
	runs map[string]*ReconcileHandle
}

// NewPaymentReconciler validates deps and builds the reconciler.
func NewPaymentReconciler(deps PaymentReconcilerDeps) (*PaymentReconciler, error) {
	if deps.Syncer == nil {
		return nil, errors.New("payment reconciler: syncer is required")
	}

	interval := deps.Interval
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PaymentReconciler{
		syncer:   deps.Syncer,
		interval: interval,
		onPaid:   deps.OnPaid,
		logger:   logger,
		runs:     make(map[string]*ReconcileHandle),
	}, nil
}

// Start begins polling for the order. Orders that are COD or already terminal
// are refused. Starting an order that is already being polled returns the
// existing handle.
func (r *PaymentReconciler) Start(ctx context.Context, order domain.Order) (*ReconcileHandle, error) {
	orderNumber := strings.TrimSpace(order.OrderNumber)
	if orderNumber == "" {
		return nil, errors.New("payment reconciler: order number is required")
	}
	if order.IsCOD() {
		return nil, fmt.Errorf("%w: %s is cash on delivery", ErrReconcileNotEligible, orderNumber)
	}
	if order.PaymentStatus != domain.PaymentStatusPending {
		return nil, fmt.Errorf("%w: %s payment status is %s", ErrReconcileNotEligible, orderNumber, order.PaymentStatus)
	}

	r.mu.Lock()
	if existing, ok := r.runs[orderNumber]; ok {
		r.mu.Unlock()
		return existing, nil
	}

	handle := &ReconcileHandle{
		orderNumber: orderNumber,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	r.runs[orderNumber] = handle
	r.mu.Unlock()

	go r.run(ctx, handle, order.UserID)
	return handle, nil
}

// StopAll tears down every active run and waits for them to finish.
func (r *PaymentReconciler) StopAll() {
	r.mu.Lock()
	handles := make([]*ReconcileHandle, 0, len(r.runs))
	for _, handle := range r.runs {
		handles = append(handles, handle)
	}
	r.mu.Unlock()

	for _, handle := range handles {
		handle.Stop()
		<-handle.Done()
	}
}

func (r *PaymentReconciler) run(ctx context.Context, handle *ReconcileHandle, userID string) {
	defer func() {
		r.mu.Lock()
		delete(r.runs, handle.orderNumber)
		r.mu.Unlock()
		close(handle.done)
	}()

	// First sync happens immediately; the ticker covers the rest.
	if r.tick(ctx, handle, userID) {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-handle.stop:
			return
		case <-ticker.C:
			if r.tick(ctx, handle, userID) {
				return
			}
		}
	}
}

// tick performs one sync and reports whether the run should end. A failed
// sync never ends the run; the next interval retries.
func (r *PaymentReconciler) tick(ctx context.Context, handle *ReconcileHandle, userID string) bool {
	select {
	case <-ctx.Done():
		return true
	case <-handle.stop:
		return true
	default:
	}

	order, err := r.syncer.SyncPayment(ctx, SyncPaymentCommand{
		OrderNumber: handle.orderNumber,
		UserID:      userID,
		ActorID:     "reconciler",
	})
	if err != nil {
		r.logger(ctx, "reconcile.tick.failed", map[string]any{
			"order_number": handle.orderNumber,
			"error":        err.Error(),
		})
		return false
	}

	switch order.PaymentStatus {
	case domain.PaymentStatusPaid:
		r.logger(ctx, "reconcile.paid", map[string]any{
			"order_number": handle.orderNumber,
		})
		if r.onPaid != nil {
			handle.notifyOnce.Do(func() {
				r.onPaid(ctx, order)
			})
		}
		return true
	case domain.PaymentStatusFailed, domain.PaymentStatusRefunded:
		r.logger(ctx, "reconcile.terminal", map[string]any{
			"order_number": handle.orderNumber,
			"status":       string(order.PaymentStatus),
		})
		return true
	default:
		return false
	}
}

// ReconcileHandle controls one polling run.
type ReconcileHandle struct {
	orderNumber string
	stop        chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
	notifyOnce  sync.Once
}

// Stop requests teardown. Calling it any number of times, before or after the
// run ends, is safe.
func (h *ReconcileHandle) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}

// Done is closed once the run's goroutine has fully exited.
func (h *ReconcileHandle) Done() <-chan struct{} {
	return h.done
}

// OrderNumber identifies the order this run polls.
func (h *ReconcileHandle) OrderNumber() string {
	return h.orderNumber
}
