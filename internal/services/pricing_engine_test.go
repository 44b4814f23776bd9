package services

import (
	"context"
	"math/rand"
	"testing"

	domain "github.com/lokapasar/api/internal/domain"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func testLine(unit, base int64, qty int, shipping domain.ShippingSettings) domain.OrderLine {
	return domain.OrderLine{
		ProductID: "prod_test",
		Name:      "test product",
		Quantity:  qty,
		UnitPrice: unit,
		BasePrice: base,
		Shipping:  shipping,
	}
}

func TestResolveShippingEmptyLines(t *testing.T) {
	engine := NewPricingEngine(PricingEngineDeps{})

	result := engine.ResolveShipping(context.Background(), nil, domain.GlobalShippingSettings{
		FreeShippingThreshold: 100,
		DefaultShippingCost:   25,
	})

	if result.ShippingCost != 0 || result.ServiceFee != 0 {
		t.Fatalf("expected zero costs for empty order, got %+v", result)
	}
	if result.Reason != "no items" {
		t.Fatalf("expected reason %q, got %q", "no items", result.Reason)
	}
}

func TestResolveShippingFreeWhenThresholdMet(t *testing.T) {
	engine := NewPricingEngine(PricingEngineDeps{})

	lines := []domain.OrderLine{
		testLine(80, 100, 2, domain.ShippingSettings{
			FreeShippingThreshold: int64Ptr(150),
			DefaultShippingCost:   int64Ptr(10),
		}),
		testLine(50, 50, 1, domain.ShippingSettings{
			DefaultShippingCost: int64Ptr(5),
			ServiceFee:          int64Ptr(1000),
		}),
	}
	lines[0].ProductID = "prod_a"
	lines[1].ProductID = "prod_b"

	result := engine.ResolveShipping(context.Background(), lines, domain.GlobalShippingSettings{})

	if result.ShippingCost != 0 {
		t.Fatalf("expected free shipping, got cost %d", result.ShippingCost)
	}
	if result.ServiceFee != 1000 {
		t.Fatalf("expected service fee 1000, got %d", result.ServiceFee)
	}
	if result.Reason != "free shipping threshold met by product prod_a (product policy)" {
		t.Fatalf("unexpected reason %q", result.Reason)
	}
}

func TestResolveShippingMaxAcrossLinesNotSum(t *testing.T) {
	engine := NewPricingEngine(PricingEngineDeps{})

	lines := []domain.OrderLine{
		testLine(80, 100, 2, domain.ShippingSettings{
			DefaultShippingCost: int64Ptr(10),
		}),
		testLine(50, 50, 1, domain.ShippingSettings{
			DefaultShippingCost: int64Ptr(5),
			ServiceFee:          int64Ptr(1000),
		}),
	}
	lines[0].ProductID = "prod_a"
	lines[1].ProductID = "prod_b"

	result := engine.ResolveShipping(context.Background(), lines, domain.GlobalShippingSettings{})

	if result.ShippingCost != 10 {
		t.Fatalf("expected max shipping cost 10, got %d", result.ShippingCost)
	}
	if result.ServiceFee != 1000 {
		t.Fatalf("expected additive service fee 1000, got %d", result.ServiceFee)
	}
	if result.Reason != "standard shipping priced by product prod_a (product policy)" {
		t.Fatalf("unexpected reason %q", result.Reason)
	}
}

func TestResolveShippingGlobalFallback(t *testing.T) {
	engine := NewPricingEngine(PricingEngineDeps{})
	global := domain.GlobalShippingSettings{
		FreeShippingThreshold: 500,
		DefaultShippingCost:   20,
	}

	below := []domain.OrderLine{testLine(100, 100, 1, domain.ShippingSettings{})}
	result := engine.ResolveShipping(context.Background(), below, global)
	if result.ShippingCost != 20 {
		t.Fatalf("expected global default cost 20, got %d", result.ShippingCost)
	}
	if result.Reason != "standard shipping priced by product prod_test (global fallback)" {
		t.Fatalf("unexpected reason %q", result.Reason)
	}

	atThreshold := []domain.OrderLine{testLine(100, 100, 5, domain.ShippingSettings{})}
	result = engine.ResolveShipping(context.Background(), atThreshold, global)
	if result.ShippingCost != 0 {
		t.Fatalf("expected free shipping at global threshold, got %d", result.ShippingCost)
	}
	if result.Reason != "free shipping threshold met by product prod_test (global fallback)" {
		t.Fatalf("unexpected reason %q", result.Reason)
	}
}

func TestResolveShippingZeroThresholdNeverFree(t *testing.T) {
	engine := NewPricingEngine(PricingEngineDeps{})

	lines := []domain.OrderLine{
		testLine(1000, 1000, 10, domain.ShippingSettings{
			FreeShippingThreshold: int64Ptr(0),
			DefaultShippingCost:   int64Ptr(15),
		}),
	}

	result := engine.ResolveShipping(context.Background(), lines, domain.GlobalShippingSettings{})
	if result.ShippingCost != 15 {
		t.Fatalf("threshold of zero must not grant free shipping, got cost %d", result.ShippingCost)
	}
}

func TestComputeBreakdownWorkedExample(t *testing.T) {
	engine := NewPricingEngine(PricingEngineDeps{})

	lines := []domain.OrderLine{
		testLine(80, 100, 2, domain.ShippingSettings{
			FreeShippingThreshold: int64Ptr(150),
			DefaultShippingCost:   int64Ptr(10),
		}),
		testLine(50, 50, 1, domain.ShippingSettings{
			DefaultShippingCost: int64Ptr(5),
			ServiceFee:          int64Ptr(1000),
		}),
	}

	shipping := engine.ResolveShipping(context.Background(), lines, domain.GlobalShippingSettings{})
	breakdown := engine.Compute(lines, shipping, domain.FeeAdjustment{Kind: domain.FeeSurcharge})

	if breakdown.Subtotal != 210 {
		t.Fatalf("expected subtotal 210, got %d", breakdown.Subtotal)
	}
	if breakdown.Discount != 40 {
		t.Fatalf("expected discount 40, got %d", breakdown.Discount)
	}
	if breakdown.ShippingCost != 0 {
		t.Fatalf("expected free shipping, got %d", breakdown.ShippingCost)
	}
	if breakdown.ServiceFee != 1000 {
		t.Fatalf("expected service fee 1000, got %d", breakdown.ServiceFee)
	}
	if breakdown.Total != 1210 {
		t.Fatalf("expected total 1210, got %d", breakdown.Total)
	}
}

func TestComputeBreakdownWithoutThreshold(t *testing.T) {
	engine := NewPricingEngine(PricingEngineDeps{})

	lines := []domain.OrderLine{
		testLine(80, 100, 2, domain.ShippingSettings{
			DefaultShippingCost: int64Ptr(10),
		}),
		testLine(50, 50, 1, domain.ShippingSettings{
			DefaultShippingCost: int64Ptr(5),
			ServiceFee:          int64Ptr(1000),
		}),
	}

	shipping := engine.ResolveShipping(context.Background(), lines, domain.GlobalShippingSettings{})
	breakdown := engine.Compute(lines, shipping, domain.FeeAdjustment{Kind: domain.FeeSurcharge})

	if breakdown.ShippingCost != 10 {
		t.Fatalf("expected shipping 10 (max of 10 and 5), got %d", breakdown.ShippingCost)
	}
	if breakdown.Total != 1220 {
		t.Fatalf("expected total 1220, got %d", breakdown.Total)
	}
}

func TestComputeBreakdownDiscountNeverNegative(t *testing.T) {
	engine := NewPricingEngine(PricingEngineDeps{})

	// Unit price above base price must not produce a negative discount.
	lines := []domain.OrderLine{testLine(120, 100, 3, domain.ShippingSettings{})}
	breakdown := engine.Compute(lines, domain.ShippingResult{}, domain.FeeAdjustment{Kind: domain.FeeSurcharge})

	if breakdown.Discount != 0 {
		t.Fatalf("expected zero discount, got %d", breakdown.Discount)
	}
	if breakdown.Subtotal != 360 {
		t.Fatalf("expected subtotal 360, got %d", breakdown.Subtotal)
	}
}

func TestComputeBreakdownPaymentFeeDiscount(t *testing.T) {
	engine := NewPricingEngine(PricingEngineDeps{})

	lines := []domain.OrderLine{testLine(100, 100, 1, domain.ShippingSettings{})}
	fee := domain.FeeAdjustmentFromSigned(-2500)

	breakdown := engine.Compute(lines, domain.ShippingResult{ShippingCost: 5000}, fee)

	if breakdown.PaymentFee != -2500 {
		t.Fatalf("expected payment fee -2500, got %d", breakdown.PaymentFee)
	}
	if breakdown.Total != 100+5000-2500 {
		t.Fatalf("unexpected total %d", breakdown.Total)
	}
}

func TestComputeBreakdownTotalIdentity(t *testing.T) {
	engine := NewPricingEngine(PricingEngineDeps{})
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		count := rng.Intn(6)
		lines := make([]domain.OrderLine, 0, count)
		for j := 0; j < count; j++ {
			base := rng.Int63n(100000) + 1
			unit := base
			if rng.Intn(2) == 0 {
				unit = rng.Int63n(base) + 1
			}
			lines = append(lines, testLine(unit, base, rng.Intn(5)+1, domain.ShippingSettings{
				DefaultShippingCost: int64Ptr(rng.Int63n(20000)),
				ServiceFee:          int64Ptr(rng.Int63n(3000)),
			}))
		}

		shipping := engine.ResolveShipping(context.Background(), lines, domain.GlobalShippingSettings{
			FreeShippingThreshold: rng.Int63n(200000),
			DefaultShippingCost:   rng.Int63n(20000),
		})
		fee := domain.FeeAdjustmentFromSigned(rng.Int63n(10000) - 5000)
		breakdown := engine.Compute(lines, shipping, fee)

		want := breakdown.Subtotal + breakdown.ShippingCost + breakdown.ServiceFee +
			breakdown.PaymentFee - breakdown.ShippingDiscount - breakdown.VoucherDiscount
		if breakdown.Total != want {
			t.Fatalf("iteration %d: total %d does not match components %d", i, breakdown.Total, want)
		}
		if breakdown.Discount < 0 {
			t.Fatalf("iteration %d: negative discount %d", i, breakdown.Discount)
		}
	}
}

func TestResolvePaymentFee(t *testing.T) {
	methods := []domain.PaymentMethod{
		{ID: "pm_va", Name: "Bank Transfer", Type: domain.PaymentMethodVirtualAccount, Channels: []string{"bca", "bni"}, Fee: 4000, IsActive: true},
		{ID: "pm_qris", Name: "QRIS Promo", Type: domain.PaymentMethodQRIS, Fee: -1500, IsActive: true},
		{ID: "pm_off", Name: "Disabled", Type: domain.PaymentMethodCOD, Fee: 9999, IsActive: false},
	}

	fee, label := ResolvePaymentFee(methods, "pm_va", "bca")
	if fee.Kind != domain.FeeSurcharge || fee.Amount != 4000 || label != "Bank Transfer" {
		t.Fatalf("unexpected surcharge resolution: %+v %q", fee, label)
	}

	fee, label = ResolvePaymentFee(methods, "pm_qris", "")
	if fee.Kind != domain.FeeDiscount || fee.Amount != 1500 {
		t.Fatalf("expected discount of 1500, got %+v", fee)
	}
	if fee.Signed() != -1500 {
		t.Fatalf("expected signed fee -1500, got %d", fee.Signed())
	}
	if label != "QRIS Promo" {
		t.Fatalf("unexpected label %q", label)
	}

	fee, label = ResolvePaymentFee(methods, "pm_off", "")
	if fee.Amount != 0 || label != "unknown" {
		t.Fatalf("inactive method must price as zero, got %+v %q", fee, label)
	}

	fee, _ = ResolvePaymentFee(methods, "pm_missing", "")
	if fee.Amount != 0 {
		t.Fatalf("unknown method must price as zero, got %+v", fee)
	}
}

func TestResolvePaymentFeeChannelValidation(t *testing.T) {
	methods := []domain.PaymentMethod{
		{ID: "pm_va", Name: "Bank Transfer", Type: domain.PaymentMethodVirtualAccount, Channels: []string{"bca", "bni"}, Fee: 4000, IsActive: true},
		{ID: "pm_qris", Name: "QRIS Promo", Type: domain.PaymentMethodQRIS, Fee: -1500, IsActive: true},
	}

	// Virtual accounts price only with a channel the method carries.
	fee, label := ResolvePaymentFee(methods, "pm_va", "bni")
	if fee.Amount != 4000 || label != "Bank Transfer" {
		t.Fatalf("expected configured channel to resolve, got %+v %q", fee, label)
	}

	fee, label = ResolvePaymentFee(methods, "pm_va", "")
	if fee.Amount != 0 || label != "unknown" {
		t.Fatalf("missing channel on a channelled method must price as zero, got %+v %q", fee, label)
	}

	fee, label = ResolvePaymentFee(methods, "pm_va", "mandiri")
	if fee.Amount != 0 || label != "unknown" {
		t.Fatalf("unsupported channel must price as zero, got %+v %q", fee, label)
	}

	// A channel on a method that has none configured does not resolve.
	fee, label = ResolvePaymentFee(methods, "pm_qris", "bca")
	if fee.Amount != 0 || label != "unknown" {
		t.Fatalf("channel on a channel-less method must price as zero, got %+v %q", fee, label)
	}
}

func TestLinesFromProducts(t *testing.T) {
	sale := int64(75)
	products := map[string]domain.Product{
		"prod_1": {
			ID:        "prod_1",
			Name:      "Batik Shirt",
			SKU:       "BTK-001",
			Price:     100,
			SalePrice: &sale,
			ImageURLs: []string{"https://cdn.example/batik.jpg"},
			Shipping:  domain.ShippingSettings{DefaultShippingCost: int64Ptr(12)},
		},
	}

	lines := LinesFromProducts([]LineSelection{
		{ProductID: "prod_1", Quantity: 2, Color: "indigo"},
		{ProductID: "prod_missing", Quantity: 1},
	}, products)

	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}
	line := lines[0]
	if line.UnitPrice != 75 || line.BasePrice != 100 {
		t.Fatalf("unexpected pricing snapshot: %+v", line)
	}
	if line.ImageURL != "https://cdn.example/batik.jpg" {
		t.Fatalf("expected fallback image url, got %q", line.ImageURL)
	}
	if line.Shipping.DefaultShippingCost == nil || *line.Shipping.DefaultShippingCost != 12 {
		t.Fatalf("shipping settings not carried onto line: %+v", line.Shipping)
	}
}
