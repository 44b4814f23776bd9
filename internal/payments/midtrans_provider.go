package payments

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"

	domain "github.com/lokapasar/api/internal/domain"
)

const midtransProviderName = "midtrans"

// midtransCoreAPI is the subset of the Midtrans Core API client the provider
// uses; narrowing it keeps tests free of real HTTP calls.
type midtransCoreAPI interface {
	ChargeTransaction(req *coreapi.ChargeReq) (*coreapi.ChargeResponse, *midtrans.Error)
	CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
}

// MidtransProviderConfig parameterises the Midtrans integration.
type MidtransProviderConfig struct {
	ServerKey   string
	Production  bool
	QRAcquirer  string
	ExpireAfter time.Duration

	// client overrides the SDK client in tests.
	client midtransCoreAPI
}

// MidtransProvider charges virtual account and QRIS payments through the
// Midtrans Core API.
type MidtransProvider struct {
	client      midtransCoreAPI
	serverKey   string
	qrAcquirer  string
	expireAfter time.Duration
}

// NewMidtransProvider initialises the Core API client from config.
func NewMidtransProvider(cfg MidtransProviderConfig) (*MidtransProvider, error) {
	serverKey := strings.TrimSpace(cfg.ServerKey)
	if serverKey == "" && cfg.client == nil {
		return nil, errors.New("midtrans provider: server key is required")
	}

	client := cfg.client
	if client == nil {
		env := midtrans.Sandbox
		if cfg.Production {
			env = midtrans.Production
		}
		core := coreapi.Client{}
		core.New(serverKey, env)
		client = &core
	}

	acquirer := strings.TrimSpace(cfg.QRAcquirer)
	if acquirer == "" {
		acquirer = "gopay"
	}

	expire := cfg.ExpireAfter
	if expire <= 0 {
		expire = 24 * time.Hour
	}

	return &MidtransProvider{
		client:      client,
		serverKey:   serverKey,
		qrAcquirer:  acquirer,
		expireAfter: expire,
	}, nil
}

// Name identifies the provider on persisted transactions.
func (p *MidtransProvider) Name() string {
	return midtransProviderName
}

// CreateCharge registers the charge with Midtrans and translates the response
// into shopper-facing payment instructions.
func (p *MidtransProvider) CreateCharge(ctx context.Context, req ChargeRequest) (PaymentInstructions, error) {
	if err := ctx.Err(); err != nil {
		return PaymentInstructions{}, err
	}

	chargeReq := &coreapi.ChargeReq{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderNumber,
			GrossAmt: req.GrossAmount,
		},
	}

	if len(req.Items) > 0 {
		items := make([]midtrans.ItemDetails, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, midtrans.ItemDetails{
				ID:    item.ID,
				Name:  truncateItemName(item.Name),
				Price: item.Price,
				Qty:   int32(item.Quantity),
			})
		}
		chargeReq.Items = &items
	}

	if req.Customer.Name != "" || req.Customer.Email != "" {
		chargeReq.CustomerDetails = &midtrans.CustomerDetails{
			FName: req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		}
	}

	expire := req.ExpireAfter
	if expire <= 0 {
		expire = p.expireAfter
	}
	chargeReq.CustomExpiry = &coreapi.CustomExpiry{
		ExpiryDuration: int(expire.Minutes()),
		Unit:           "minute",
	}

	switch req.Method {
	case domain.PaymentMethodVirtualAccount:
		channel := strings.ToLower(strings.TrimSpace(req.Channel))
		if channel == "" {
			return PaymentInstructions{}, fmt.Errorf("%w: virtual account requires a bank channel", ErrChargeRejected)
		}
		chargeReq.PaymentType = coreapi.PaymentTypeBankTransfer
		chargeReq.BankTransfer = &coreapi.BankTransferDetails{Bank: midtrans.Bank(channel)}
	case domain.PaymentMethodQRIS:
		chargeReq.PaymentType = coreapi.PaymentTypeQris
		chargeReq.Qris = &coreapi.QrisDetails{Acquirer: p.qrAcquirer}
	default:
		return PaymentInstructions{}, fmt.Errorf("%w: method %q", ErrProviderNotConfigured, req.Method)
	}

	resp, chargeErr := p.client.ChargeTransaction(chargeReq)
	if chargeErr != nil {
		return PaymentInstructions{}, fmt.Errorf("%w: %s", ErrGatewayUnavailable, chargeErr.Message)
	}
	if resp == nil {
		return PaymentInstructions{}, fmt.Errorf("%w: empty charge response", ErrGatewayUnavailable)
	}
	if status := mapMidtransStatus(resp.TransactionStatus, resp.FraudStatus); status == StatusFailed {
		return PaymentInstructions{}, fmt.Errorf("%w: gateway status %q", ErrChargeRejected, resp.TransactionStatus)
	}

	instructions := PaymentInstructions{
		Provider:    midtransProviderName,
		Reference:   resp.TransactionID,
		PaymentType: resp.PaymentType,
		GrossAmount: req.GrossAmount,
	}

	if expiry := parseMidtransTime(resp.ExpiryTime); expiry != nil {
		instructions.ExpiresAt = expiry
	}

	switch req.Method {
	case domain.PaymentMethodVirtualAccount:
		if len(resp.VaNumbers) > 0 {
			instructions.VABank = strings.ToUpper(resp.VaNumbers[0].Bank)
			instructions.VANumber = resp.VaNumbers[0].VANumber
		} else if resp.PermataVaNumber != "" {
			instructions.VABank = "PERMATA"
			instructions.VANumber = resp.PermataVaNumber
		}
		instructions.Instructions = fmt.Sprintf("Transfer the exact amount to %s virtual account %s", instructions.VABank, instructions.VANumber)
	case domain.PaymentMethodQRIS:
		for _, action := range resp.Actions {
			if action.Name == "generate-qr-code" {
				instructions.QRImageURL = action.URL
				break
			}
		}
		instructions.Instructions = "Scan the QR code with any QRIS-enabled app"
	}

	return instructions, nil
}

// LookupPayment asks Midtrans for the current state of the order's charge.
// Midtrans keys transactions by our order number.
func (p *MidtransProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if err := ctx.Err(); err != nil {
		return PaymentDetails{}, err
	}

	resp, checkErr := p.client.CheckTransaction(req.OrderNumber)
	if checkErr != nil {
		if checkErr.StatusCode == 404 {
			return PaymentDetails{}, fmt.Errorf("%w: order %s", ErrPaymentNotFound, req.OrderNumber)
		}
		return PaymentDetails{}, fmt.Errorf("%w: %s", ErrGatewayUnavailable, checkErr.Message)
	}
	if resp == nil || resp.TransactionStatus == "" {
		return PaymentDetails{}, fmt.Errorf("%w: order %s", ErrPaymentNotFound, req.OrderNumber)
	}

	details := PaymentDetails{
		Provider:  midtransProviderName,
		Reference: resp.TransactionID,
		Status:    mapMidtransStatus(resp.TransactionStatus, resp.FraudStatus),
		RawStatus: resp.TransactionStatus,
	}
	if settled := parseMidtransTime(resp.SettlementTime); settled != nil {
		details.SettledAt = settled
	}
	return details, nil
}

// VerifyNotificationSignature checks the SHA-512 signature Midtrans attaches
// to HTTP notifications: sha512(order_id + status_code + gross_amount + server key).
func (p *MidtransProvider) VerifyNotificationSignature(orderID, statusCode, grossAmount, signature string) bool {
	if p == nil || p.serverKey == "" || signature == "" {
		return false
	}
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + p.serverKey))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signature))) == 1
}

// MapMidtransNotificationStatus exposes the status mapping for webhook payloads.
func MapMidtransNotificationStatus(transactionStatus, fraudStatus string) Status {
	return mapMidtransStatus(transactionStatus, fraudStatus)
}

// ParseMidtransNotificationTime parses the wall-clock timestamps Midtrans puts
// in webhook payloads into UTC.
func ParseMidtransNotificationTime(value string) *time.Time {
	return parseMidtransTime(value)
}

func mapMidtransStatus(transactionStatus, fraudStatus string) Status {
	switch strings.ToLower(strings.TrimSpace(transactionStatus)) {
	case "capture":
		if strings.EqualFold(fraudStatus, "challenge") {
			return StatusPending
		}
		return StatusSucceeded
	case "settlement":
		return StatusSucceeded
	case "pending":
		return StatusPending
	case "deny", "cancel", "expire", "failure":
		return StatusFailed
	case "refund", "partial_refund", "chargeback":
		return StatusRefunded
	default:
		return StatusUnknown
	}
}

func parseMidtransTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	// Midtrans timestamps are WIB wall-clock strings.
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		loc = time.FixedZone("WIB", 7*3600)
	}
	parsed, err := time.ParseInLocation("2006-01-02 15:04:05", value, loc)
	if err != nil {
		return nil
	}
	utc := parsed.UTC()
	return &utc
}

func truncateItemName(name string) string {
	// Midtrans caps item names at 50 characters.
	if len(name) <= 50 {
		return name
	}
	return name[:50]
}

var _ Provider = (*MidtransProvider)(nil)
