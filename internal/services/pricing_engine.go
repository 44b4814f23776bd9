package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/lokapasar/api/internal/domain"
)

// shippingReasonNoItems is surfaced for empty orders. All other reasons name
// the deciding line and its policy source; the storefront renders them
// verbatim next to the shipping row and they back up audits of disputed
// totals.
const shippingReasonNoItems = "no items"

func shippingPolicySource(lineOverride bool) string {
	if lineOverride {
		return "product policy"
	}
	return "global fallback"
}

// ErrPricingNoLines indicates the engine was asked to price an empty order.
var ErrPricingNoLines = errors.New("pricing: order has no lines")

// PricingEngine derives shipping costs and price breakdowns for an order's
// lines. It performs no I/O; every input is passed in by the caller.
type PricingEngine struct {
	logger func(ctx context.Context, event string, fields map[string]any)
}

// PricingEngineDeps carries optional collaborators for the engine.
type PricingEngineDeps struct {
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// NewPricingEngine constructs the engine with defaults for omitted deps.
func NewPricingEngine(deps PricingEngineDeps) *PricingEngine {
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PricingEngine{logger: logger}
}

// ResolveShipping applies the shipping policy to a set of lines.
//
// Each line resolves its threshold, default cost and service fee from its own
// settings, falling back to the store-wide values. If any line's effective
// threshold is positive and the order subtotal meets it, shipping is free for
// the whole order; the first qualifying line decides. Otherwise the shipping
// cost is the maximum effective default cost across lines, not the sum: the
// order ships as one parcel and the most expensive policy prices it. Service
// fees are additive either way.
func (e *PricingEngine) ResolveShipping(ctx context.Context, lines []domain.OrderLine, global domain.GlobalShippingSettings) domain.ShippingResult {
	if len(lines) == 0 {
		return domain.ShippingResult{Reason: shippingReasonNoItems}
	}

	subtotal := int64(0)
	for _, line := range lines {
		subtotal += line.LineSubtotal()
	}

	serviceFee := int64(0)
	for _, line := range lines {
		if line.Shipping.ServiceFee != nil {
			serviceFee += *line.Shipping.ServiceFee
		}
	}

	for _, line := range lines {
		threshold := global.FreeShippingThreshold
		override := line.Shipping.FreeShippingThreshold != nil
		if override {
			threshold = *line.Shipping.FreeShippingThreshold
		}
		if threshold > 0 && subtotal >= threshold {
			e.logger(ctx, "pricing.free_shipping", map[string]any{
				"product_id": line.ProductID,
				"threshold":  threshold,
				"subtotal":   subtotal,
			})
			return domain.ShippingResult{
				ShippingCost: 0,
				ServiceFee:   serviceFee,
				Reason: fmt.Sprintf("free shipping threshold met by product %s (%s)",
					line.ProductID, shippingPolicySource(override)),
			}
		}
	}

	maxCost := int64(-1)
	var decidingID string
	var decidingOverride bool
	for _, line := range lines {
		cost := global.DefaultShippingCost
		override := line.Shipping.DefaultShippingCost != nil
		if override {
			cost = *line.Shipping.DefaultShippingCost
		}
		if cost > maxCost {
			maxCost = cost
			decidingID = line.ProductID
			decidingOverride = override
		}
	}

	return domain.ShippingResult{
		ShippingCost: maxCost,
		ServiceFee:   serviceFee,
		Reason: fmt.Sprintf("standard shipping priced by product %s (%s)",
			decidingID, shippingPolicySource(decidingOverride)),
	}
}

// Compute builds the full price breakdown for an order. It never fails on
// missing optionals; absent values price as zero. The caller decides whether
// an empty line set is an error (checkout rejects it, display paths do not).
func (e *PricingEngine) Compute(lines []domain.OrderLine, shipping domain.ShippingResult, paymentFee domain.FeeAdjustment) domain.PriceBreakdown {
	breakdown := domain.PriceBreakdown{
		ShippingCost: shipping.ShippingCost,
		ServiceFee:   shipping.ServiceFee,
		PaymentFee:   paymentFee.Signed(),
	}

	for _, line := range lines {
		qty := int64(line.Quantity)
		breakdown.Subtotal += line.UnitPrice * qty
		if diff := line.BasePrice - line.UnitPrice; diff > 0 {
			breakdown.Discount += diff * qty
		}
	}

	breakdown.Recalculate()
	return breakdown
}

// ResolvePaymentFee looks up the fee adjustment for the selected method and
// channel. An unknown or inactive method, or a channel the method does not
// carry, prices as a zero-amount surcharge with a neutral label; checkout
// validates method and channel separately, so display paths never blow up on
// stale references.
func ResolvePaymentFee(methods []domain.PaymentMethod, methodID, channel string) (domain.FeeAdjustment, string) {
	id := strings.TrimSpace(methodID)
	channel = strings.TrimSpace(channel)
	if id == "" {
		return domain.FeeAdjustment{Kind: domain.FeeSurcharge}, "unknown"
	}
	for _, method := range methods {
		if method.ID != id || !method.IsActive {
			continue
		}
		if method.RequiresChannel() && channel == "" {
			break
		}
		if channel != "" && !method.SupportsChannel(channel) {
			break
		}
		return domain.FeeAdjustmentFromSigned(method.Fee), method.Name
	}
	return domain.FeeAdjustment{Kind: domain.FeeSurcharge}, "unknown"
}

// LinesFromProducts snapshots catalog products into priced order lines. The
// quantity and variant selections come from the request; everything priced
// comes from the product document at this instant.
func LinesFromProducts(selections []LineSelection, products map[string]domain.Product) []domain.OrderLine {
	lines := make([]domain.OrderLine, 0, len(selections))
	for _, sel := range selections {
		product, ok := products[sel.ProductID]
		if !ok {
			continue
		}
		line := domain.OrderLine{
			ProductID: product.ID,
			Name:      product.Name,
			SKU:       product.SKU,
			Quantity:  sel.Quantity,
			UnitPrice: product.EffectivePrice(),
			BasePrice: product.Price,
			Color:     sel.Color,
			Size:      sel.Size,
			ImageURL:  sel.ImageURL,
			Shipping:  product.Shipping,
		}
		if line.ImageURL == "" && len(product.ImageURLs) > 0 {
			line.ImageURL = product.ImageURLs[0]
		}
		lines = append(lines, line)
	}
	return lines
}

// LineSelection is a requested quantity of a product plus variant choices.
type LineSelection struct {
	ProductID string
	Quantity  int
	Color     string
	Size      string
	ImageURL  string
}
