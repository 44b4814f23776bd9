package payments

import (
	"context"
	"errors"
	"testing"

	domain "github.com/lokapasar/api/internal/domain"
)

type stubProvider struct {
	name     string
	chargeFn func(ctx context.Context, req ChargeRequest) (PaymentInstructions, error)
	lookupFn func(ctx context.Context, req LookupRequest) (PaymentDetails, error)
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) CreateCharge(ctx context.Context, req ChargeRequest) (PaymentInstructions, error) {
	if s.chargeFn == nil {
		return PaymentInstructions{Provider: s.name}, nil
	}
	return s.chargeFn(ctx, req)
}

func (s *stubProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if s.lookupFn == nil {
		return PaymentDetails{Provider: s.name}, nil
	}
	return s.lookupFn(ctx, req)
}

func TestManagerRoutesByMethodType(t *testing.T) {
	manager := NewManager()
	midtrans := &stubProvider{name: "midtrans"}
	stripe := &stubProvider{name: "stripe"}

	if err := manager.Register(midtrans, domain.PaymentMethodVirtualAccount, domain.PaymentMethodQRIS); err != nil {
		t.Fatalf("Register midtrans: %v", err)
	}
	if err := manager.Register(stripe, domain.PaymentMethodCreditCard); err != nil {
		t.Fatalf("Register stripe: %v", err)
	}

	instructions, err := manager.CreateCharge(context.Background(), ChargeRequest{
		OrderNumber: "LP-2026-000001",
		Method:      domain.PaymentMethodQRIS,
		GrossAmount: 10000,
	})
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	if instructions.Provider != "midtrans" {
		t.Fatalf("expected midtrans to own QRIS, got %q", instructions.Provider)
	}

	details, err := manager.LookupPayment(context.Background(), LookupRequest{
		OrderNumber: "LP-2026-000001",
		Method:      domain.PaymentMethodCreditCard,
		Reference:   "cs_test_1",
	})
	if err != nil {
		t.Fatalf("LookupPayment: %v", err)
	}
	if details.Provider != "stripe" {
		t.Fatalf("expected stripe to own cards, got %q", details.Provider)
	}
}

func TestManagerUnconfiguredMethod(t *testing.T) {
	manager := NewManager()

	_, err := manager.CreateCharge(context.Background(), ChargeRequest{
		OrderNumber: "LP-2026-000002",
		Method:      domain.PaymentMethodVirtualAccount,
		GrossAmount: 5000,
	})
	if !errors.Is(err, ErrProviderNotConfigured) {
		t.Fatalf("expected ErrProviderNotConfigured, got %v", err)
	}
}

func TestManagerRejectsNonPositiveAmounts(t *testing.T) {
	manager := NewManager()
	if err := manager.Register(&stubProvider{name: "midtrans"}, domain.PaymentMethodQRIS); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := manager.CreateCharge(context.Background(), ChargeRequest{
		OrderNumber: "LP-2026-000003",
		Method:      domain.PaymentMethodQRIS,
		GrossAmount: 0,
	})
	if !errors.Is(err, ErrChargeRejected) {
		t.Fatalf("expected ErrChargeRejected, got %v", err)
	}
}
