package domain

// ShippingSettings is a per-line shipping policy source. Nil fields mean "use
// the store-wide default"; a pointer to zero is an explicit zero.
type ShippingSettings struct {
	FreeShippingThreshold *int64
	DefaultShippingCost   *int64
	ServiceFee            *int64
}

// OrderLine is a priced quantity of a product as it enters the pricing engine.
// UnitPrice is the effective (sale-aware) price; BasePrice the undiscounted one.
type OrderLine struct {
	ProductID string
	Name      string
	SKU       string
	Quantity  int
	UnitPrice int64
	BasePrice int64
	Color     string
	Size      string
	ImageURL  string
	Shipping  ShippingSettings
}

// LineSubtotal returns quantity times effective unit price.
func (l OrderLine) LineSubtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// ShippingResult is the outcome of resolving the shipping policy for an order.
// Reason is a human-readable explanation surfaced to the storefront.
type ShippingResult struct {
	ShippingCost int64
	ServiceFee   int64
	Reason       string
}

// FeeKind tags a FeeAdjustment as either a surcharge or a discount.
type FeeKind string

const (
	FeeSurcharge FeeKind = "surcharge"
	FeeDiscount  FeeKind = "discount"
)

// FeeAdjustment is the internal representation of a payment method's signed
// fee. Amount is always non-negative; Kind carries the sign.
type FeeAdjustment struct {
	Kind   FeeKind
	Amount int64
}

// FeeAdjustmentFromSigned normalises a signed fee into the tagged form.
func FeeAdjustmentFromSigned(fee int64) FeeAdjustment {
	if fee < 0 {
		return FeeAdjustment{Kind: FeeDiscount, Amount: -fee}
	}
	return FeeAdjustment{Kind: FeeSurcharge, Amount: fee}
}

// Signed collapses the adjustment back to a signed amount for arithmetic.
func (f FeeAdjustment) Signed() int64 {
	if f.Kind == FeeDiscount {
		return -f.Amount
	}
	return f.Amount
}

// PriceBreakdown itemises everything that contributes to an order total.
// ShippingDiscount and VoucherDiscount are reserved promotion hooks and stay
// zero until those features ship; they still participate in the identity so
// the persisted shape never changes.
type PriceBreakdown struct {
	Subtotal         int64
	Discount         int64
	ShippingCost     int64
	ServiceFee       int64
	PaymentFee       int64
	ShippingDiscount int64
	VoucherDiscount  int64
	Total            int64
}

// Recalculate derives Total from the components. Every write path goes through
// this so a stored total can never drift from its parts.
func (b *PriceBreakdown) Recalculate() {
	b.Total = b.Subtotal + b.ShippingCost + b.ServiceFee + b.PaymentFee - b.ShippingDiscount - b.VoucherDiscount
}
