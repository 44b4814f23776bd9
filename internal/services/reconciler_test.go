package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/lokapasar/api/internal/domain"
)

type stubSyncer struct {
	mu      sync.Mutex
	calls   int
	syncFn  func(call int, cmd SyncPaymentCommand) (domain.Order, error)
	history []SyncPaymentCommand
}

func (s *stubSyncer) SyncPayment(ctx context.Context, cmd SyncPaymentCommand) (domain.Order, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.history = append(s.history, cmd)
	s.mu.Unlock()
	return s.syncFn(call, cmd)
}

func (s *stubSyncer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func awaitingOrder(orderNumber string) domain.Order {
	return domain.Order{
		OrderNumber:   orderNumber,
		UserID:        "user_1",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: domain.PaymentMethodVirtualAccount,
	}
}

func waitDone(t *testing.T, handle *ReconcileHandle) {
	t.Helper()
	select {
	case <-handle.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("run for %s did not finish", handle.OrderNumber())
	}
}

func TestReconcilerFirstTickIsImmediate(t *testing.T) {
	syncer := &stubSyncer{
		syncFn: func(_ int, cmd SyncPaymentCommand) (domain.Order, error) {
			order := awaitingOrder(cmd.OrderNumber)
			order.PaymentStatus = domain.PaymentStatusPaid
			return order, nil
		},
	}
	// A long interval proves the first sync does not wait for the ticker.
	rec, err := NewPaymentReconciler(PaymentReconcilerDeps{Syncer: syncer, Interval: time.Hour})
	if err != nil {
		t.Fatalf("NewPaymentReconciler: %v", err)
	}

	handle, err := rec.Start(context.Background(), awaitingOrder("LP-2026-000001"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, handle)

	if got := syncer.callCount(); got != 1 {
		t.Fatalf("expected exactly one immediate sync, got %d", got)
	}
	if syncer.history[0].ActorID != "reconciler" {
		t.Fatalf("sync must be attributed to the reconciler, got %q", syncer.history[0].ActorID)
	}
}

func TestReconcilerStopsAndNotifiesOnceWhenPaid(t *testing.T) {
	syncer := &stubSyncer{
		syncFn: func(call int, cmd SyncPaymentCommand) (domain.Order, error) {
			order := awaitingOrder(cmd.OrderNumber)
			if call >= 3 {
				order.PaymentStatus = domain.PaymentStatusPaid
			}
			return order, nil
		},
	}

	var mu sync.Mutex
	notified := 0
	rec, err := NewPaymentReconciler(PaymentReconcilerDeps{
		Syncer:   syncer,
		Interval: 5 * time.Millisecond,
		OnPaid: func(_ context.Context, order domain.Order) {
			mu.Lock()
			notified++
			mu.Unlock()
			if order.PaymentStatus != domain.PaymentStatusPaid {
				t.Errorf("OnPaid must see a paid order, got %s", order.PaymentStatus)
			}
		},
	})
	if err != nil {
		t.Fatalf("NewPaymentReconciler: %v", err)
	}

	handle, err := rec.Start(context.Background(), awaitingOrder("LP-2026-000002"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, handle)

	if got := syncer.callCount(); got != 3 {
		t.Fatalf("expected polling to stop at the paid tick, got %d calls", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if notified != 1 {
		t.Fatalf("OnPaid must fire exactly once, fired %d times", notified)
	}
}

func TestReconcilerRetriesFailedTicks(t *testing.T) {
	syncer := &stubSyncer{
		syncFn: func(call int, cmd SyncPaymentCommand) (domain.Order, error) {
			if call < 3 {
				return domain.Order{}, errors.New("gateway timeout")
			}
			order := awaitingOrder(cmd.OrderNumber)
			order.PaymentStatus = domain.PaymentStatusPaid
			return order, nil
		},
	}
	rec, err := NewPaymentReconciler(PaymentReconcilerDeps{Syncer: syncer, Interval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewPaymentReconciler: %v", err)
	}

	handle, err := rec.Start(context.Background(), awaitingOrder("LP-2026-000003"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, handle)

	if got := syncer.callCount(); got != 3 {
		t.Fatalf("expected two failures then success, got %d calls", got)
	}
}

func TestReconcilerStopsOnFailedPayment(t *testing.T) {
	syncer := &stubSyncer{
		syncFn: func(_ int, cmd SyncPaymentCommand) (domain.Order, error) {
			order := awaitingOrder(cmd.OrderNumber)
			order.PaymentStatus = domain.PaymentStatusFailed
			return order, nil
		},
	}
	notified := false
	rec, err := NewPaymentReconciler(PaymentReconcilerDeps{
		Syncer:   syncer,
		Interval: 5 * time.Millisecond,
		OnPaid:   func(context.Context, domain.Order) { notified = true },
	})
	if err != nil {
		t.Fatalf("NewPaymentReconciler: %v", err)
	}

	handle, err := rec.Start(context.Background(), awaitingOrder("LP-2026-000004"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, handle)

	if syncer.callCount() != 1 {
		t.Fatalf("failed payment must end the run, got %d calls", syncer.callCount())
	}
	if notified {
		t.Fatal("OnPaid must not fire for a failed payment")
	}
}

func TestReconcilerStopIsIdempotent(t *testing.T) {
	release := make(chan struct{})
	syncer := &stubSyncer{
		syncFn: func(call int, cmd SyncPaymentCommand) (domain.Order, error) {
			if call == 1 {
				<-release
			}
			return awaitingOrder(cmd.OrderNumber), nil
		},
	}
	rec, err := NewPaymentReconciler(PaymentReconcilerDeps{Syncer: syncer, Interval: time.Millisecond})
	if err != nil {
		t.Fatalf("NewPaymentReconciler: %v", err)
	}

	handle, err := rec.Start(context.Background(), awaitingOrder("LP-2026-000005"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	handle.Stop()
	handle.Stop()
	close(release)
	waitDone(t, handle)
	handle.Stop()
}

func TestReconcilerRefusesIneligibleOrders(t *testing.T) {
	rec, err := NewPaymentReconciler(PaymentReconcilerDeps{
		Syncer: &stubSyncer{syncFn: func(_ int, cmd SyncPaymentCommand) (domain.Order, error) {
			return awaitingOrder(cmd.OrderNumber), nil
		}},
	})
	if err != nil {
		t.Fatalf("NewPaymentReconciler: %v", err)
	}

	cod := awaitingOrder("LP-2026-000006")
	cod.PaymentMethod = domain.PaymentMethodCOD
	if _, err := rec.Start(context.Background(), cod); !errors.Is(err, ErrReconcileNotEligible) {
		t.Fatalf("COD order: expected ErrReconcileNotEligible, got %v", err)
	}

	paid := awaitingOrder("LP-2026-000007")
	paid.PaymentStatus = domain.PaymentStatusPaid
	if _, err := rec.Start(context.Background(), paid); !errors.Is(err, ErrReconcileNotEligible) {
		t.Fatalf("paid order: expected ErrReconcileNotEligible, got %v", err)
	}
}

func TestReconcilerDeduplicatesRuns(t *testing.T) {
	release := make(chan struct{})
	syncer := &stubSyncer{
		syncFn: func(_ int, cmd SyncPaymentCommand) (domain.Order, error) {
			<-release
			order := awaitingOrder(cmd.OrderNumber)
			order.PaymentStatus = domain.PaymentStatusPaid
			return order, nil
		},
	}
	rec, err := NewPaymentReconciler(PaymentReconcilerDeps{Syncer: syncer, Interval: time.Hour})
	if err != nil {
		t.Fatalf("NewPaymentReconciler: %v", err)
	}

	order := awaitingOrder("LP-2026-000008")
	first, err := rec.Start(context.Background(), order)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	second, err := rec.Start(context.Background(), order)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if first != second {
		t.Fatal("starting an active order must return the existing handle")
	}

	close(release)
	waitDone(t, first)
}

func TestReconcilerStopAllWaitsForRuns(t *testing.T) {
	syncer := &stubSyncer{
		syncFn: func(_ int, cmd SyncPaymentCommand) (domain.Order, error) {
			return awaitingOrder(cmd.OrderNumber), nil
		},
	}
	rec, err := NewPaymentReconciler(PaymentReconcilerDeps{Syncer: syncer, Interval: time.Millisecond})
	if err != nil {
		t.Fatalf("NewPaymentReconciler: %v", err)
	}

	handles := make([]*ReconcileHandle, 0, 3)
	for i := range 3 {
		handle, err := rec.Start(context.Background(), awaitingOrder("LP-2026-00002"+string(rune('0'+i))))
		if err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
		handles = append(handles, handle)
	}

	rec.StopAll()
	for _, handle := range handles {
		select {
		case <-handle.Done():
		default:
			t.Fatalf("StopAll returned before %s finished", handle.OrderNumber())
		}
	}
}
