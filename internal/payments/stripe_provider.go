package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v78"
	checkoutsession "github.com/stripe/stripe-go/v78/checkout/session"

	domain "github.com/lokapasar/api/internal/domain"
)

const stripeProviderName = "stripe"

// stripeSessionAPI narrows the Stripe checkout session client for testability.
type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeProviderConfig parameterises the hosted card checkout integration.
type StripeProviderConfig struct {
	APIKey     string
	Currency   string
	SuccessURL string
	CancelURL  string

	// sessions overrides the SDK client in tests.
	sessions stripeSessionAPI
}

// StripeProvider handles CREDIT_CARD payments via Stripe hosted checkout.
type StripeProvider struct {
	sessions   stripeSessionAPI
	currency   string
	successURL string
	cancelURL  string
}

// NewStripeProvider builds the provider and its API clients.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.sessions == nil {
		return nil, errors.New("stripe provider: api key is required")
	}
	if strings.TrimSpace(cfg.SuccessURL) == "" || strings.TrimSpace(cfg.CancelURL) == "" {
		return nil, errors.New("stripe provider: success and cancel urls are required")
	}

	sessions := cfg.sessions
	if sessions == nil {
		sessions = &checkoutsession.Client{
			B:   stripe.GetBackend(stripe.APIBackend),
			Key: apiKey,
		}
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "idr"
	}

	return &StripeProvider{
		sessions:   sessions,
		currency:   currency,
		successURL: strings.TrimSpace(cfg.SuccessURL),
		cancelURL:  strings.TrimSpace(cfg.CancelURL),
	}, nil
}

// Name identifies the provider on persisted transactions.
func (p *StripeProvider) Name() string {
	return stripeProviderName
}

// CreateCharge opens a hosted checkout session and returns its redirect URL.
func (p *StripeProvider) CreateCharge(ctx context.Context, req ChargeRequest) (PaymentInstructions, error) {
	if err := ctx.Err(); err != nil {
		return PaymentInstructions{}, err
	}
	if req.Method != domain.PaymentMethodCreditCard {
		return PaymentInstructions{}, fmt.Errorf("%w: method %q", ErrProviderNotConfigured, req.Method)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.successURL),
		CancelURL:         stripe.String(p.cancelURL),
		ClientReferenceID: stripe.String(req.OrderNumber),
	}
	params.Context = ctx
	params.AddMetadata("order_number", req.OrderNumber)
	if req.Customer.Email != "" {
		params.CustomerEmail = stripe.String(req.Customer.Email)
	}
	if req.ExpireAfter > 0 {
		params.ExpiresAt = stripe.Int64(time.Now().Add(req.ExpireAfter).Unix())
	}

	for _, item := range req.Items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(item.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(p.currency),
				UnitAmount: stripe.Int64(item.Price),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		})
	}
	if len(params.LineItems) == 0 {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(p.currency),
				UnitAmount: stripe.Int64(req.GrossAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Order " + req.OrderNumber),
				},
			},
		})
	}

	session, err := p.sessions.New(params)
	if err != nil {
		return PaymentInstructions{}, translateStripeError(err)
	}

	instructions := PaymentInstructions{
		Provider:     stripeProviderName,
		Reference:    session.ID,
		PaymentType:  "card",
		PaymentURL:   session.URL,
		Instructions: "Complete the card payment on the secure checkout page",
		GrossAmount:  req.GrossAmount,
	}
	if session.ExpiresAt > 0 {
		expiry := time.Unix(session.ExpiresAt, 0).UTC()
		instructions.ExpiresAt = &expiry
	}
	return instructions, nil
}

// LookupPayment reads the checkout session back and normalises its state.
func (p *StripeProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if err := ctx.Err(); err != nil {
		return PaymentDetails{}, err
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return PaymentDetails{}, fmt.Errorf("%w: order %s has no session reference", ErrPaymentNotFound, req.OrderNumber)
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	session, err := p.sessions.Get(reference, params)
	if err != nil {
		return PaymentDetails{}, translateStripeError(err)
	}

	details := PaymentDetails{
		Provider:  stripeProviderName,
		Reference: session.ID,
		Status:    mapStripeSessionStatus(session),
		RawStatus: string(session.PaymentStatus),
	}
	return details, nil
}

func mapStripeSessionStatus(session *stripe.CheckoutSession) Status {
	if session == nil {
		return StatusUnknown
	}
	if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		return StatusSucceeded
	}
	if session.Status == stripe.CheckoutSessionStatusExpired {
		return StatusFailed
	}
	return StatusPending
}

func translateStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
			if stripeErr.HTTPStatusCode == 404 {
				return fmt.Errorf("%w: %s", ErrPaymentNotFound, stripeErr.Msg)
			}
			return fmt.Errorf("%w: %s", ErrChargeRejected, stripeErr.Msg)
		}
	}
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
}

var _ Provider = (*StripeProvider)(nil)
