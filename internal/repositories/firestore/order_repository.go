package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/lokapasar/api/internal/domain"
	pfirestore "github.com/lokapasar/api/internal/platform/firestore"
	"github.com/lokapasar/api/internal/platform/pagination"
	"github.com/lokapasar/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists order documents in Firestore. Documents are keyed
// by the internal order ID; the human-facing order number is an indexed field.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert creates the order document, failing when the ID already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, orderDocumentFromDomain(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the full order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	if _, err := r.base.Set(ctx, id, orderDocumentFromDomain(order)); err != nil {
		return err
	}
	return nil
}

// Delete removes the order document.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("orders.delete", err)
	}
	return nil
}

// FindByID loads an order by its internal ID.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByNumber loads an order by its human-facing order number.
func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	number := strings.TrimSpace(orderNumber)
	if number == "" {
		return domain.Order{}, errors.New("order repository: order number is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("orderNumber", "==", number).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.findByNumber",
			status.Error(codes.NotFound, fmt.Sprintf("order %s not found", number)))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// List returns orders newest first, filtered by owner, status, and payment status.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			query = query.Where("userId", "==", userID)
		}
		if len(filter.Status) == 1 {
			query = query.Where("status", "==", filter.Status[0])
		} else if len(filter.Status) > 1 {
			query = query.Where("status", "in", filter.Status)
		}
		if len(filter.PaymentStatus) == 1 {
			query = query.Where("paymentStatus", "==", filter.PaymentStatus[0])
		} else if len(filter.PaymentStatus) > 1 {
			query = query.Where("paymentStatus", "in", filter.PaymentStatus)
		}
		if filter.CreatedAfter != nil {
			query = query.Where("createdAt", ">=", filter.CreatedAfter.UTC())
		}
		if filter.CreatedBefore != nil {
			query = query.Where("createdAt", "<", filter.CreatedBefore.UTC())
		}
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc)
		if len(cursor.StartAfter) > 0 {
			query = query.StartAfter(cursor.StartAfter...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	for i, doc := range docs {
		if i == pageSize {
			last := docs[pageSize-1]
			token, err := pagination.EncodeToken(pagination.Cursor{
				StartAfter: []any{last.Data.CreatedAt, last.ID},
			})
			if err != nil {
				return domain.CursorPage[domain.Order]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

type orderDocument struct {
	OrderNumber     string                     `firestore:"orderNumber"`
	UserID          string                     `firestore:"userId"`
	Status          string                     `firestore:"status"`
	PaymentStatus   string                     `firestore:"paymentStatus"`
	PaymentMethod   string                     `firestore:"paymentMethod"`
	PaymentLabel    string                     `firestore:"paymentLabel,omitempty"`
	PaymentChannel  string                     `firestore:"paymentChannel,omitempty"`
	Totals          priceBreakdownDocument     `firestore:"totals"`
	Items           []orderItemDocument        `firestore:"items"`
	ShippingAddress orderAddressDocument       `firestore:"shippingAddress"`
	Transactions    []orderTransactionDocument `firestore:"transactions,omitempty"`
	CancelReason    string                     `firestore:"cancelReason,omitempty"`
	CreatedAt       time.Time                  `firestore:"createdAt"`
	UpdatedAt       time.Time                  `firestore:"updatedAt"`
	PaidAt          *time.Time                 `firestore:"paidAt,omitempty"`
	ShippedAt       *time.Time                 `firestore:"shippedAt,omitempty"`
	DeliveredAt     *time.Time                 `firestore:"deliveredAt,omitempty"`
	CancelledAt     *time.Time                 `firestore:"cancelledAt,omitempty"`
	RefundedAt      *time.Time                 `firestore:"refundedAt,omitempty"`
}

type priceBreakdownDocument struct {
	Subtotal         int64 `firestore:"subtotal"`
	Discount         int64 `firestore:"discount"`
	ShippingCost     int64 `firestore:"shippingCost"`
	ServiceFee       int64 `firestore:"serviceFee"`
	PaymentFee       int64 `firestore:"paymentFee"`
	ShippingDiscount int64 `firestore:"shippingDiscount"`
	VoucherDiscount  int64 `firestore:"voucherDiscount"`
	Total            int64 `firestore:"total"`
}

type orderItemDocument struct {
	ID        string `firestore:"id"`
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	SKU       string `firestore:"sku,omitempty"`
	UnitPrice int64  `firestore:"unitPrice"`
	BasePrice int64  `firestore:"basePrice"`
	Quantity  int    `firestore:"quantity"`
	Color     string `firestore:"color,omitempty"`
	Size      string `firestore:"size,omitempty"`
	ImageURL  string `firestore:"imageUrl,omitempty"`
}

type orderAddressDocument struct {
	ID         string `firestore:"id,omitempty"`
	Label      string `firestore:"label,omitempty"`
	Recipient  string `firestore:"recipient"`
	Phone      string `firestore:"phone,omitempty"`
	Street     string `firestore:"street"`
	City       string `firestore:"city"`
	Province   string `firestore:"province,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
}

type orderTransactionDocument struct {
	ID           string     `firestore:"id"`
	OrderID      string     `firestore:"orderId,omitempty"`
	Provider     string     `firestore:"provider"`
	Reference    string     `firestore:"reference,omitempty"`
	PaymentType  string     `firestore:"paymentType,omitempty"`
	VABank       string     `firestore:"vaBank,omitempty"`
	VANumber     string     `firestore:"vaNumber,omitempty"`
	QRImageURL   string     `firestore:"qrImageUrl,omitempty"`
	PaymentURL   string     `firestore:"paymentUrl,omitempty"`
	Instructions string     `firestore:"instructions,omitempty"`
	Status       string     `firestore:"status"`
	GrossAmount  int64      `firestore:"grossAmount"`
	ExpiresAt    *time.Time `firestore:"expiresAt,omitempty"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	UpdatedAt    time.Time  `firestore:"updatedAt"`
}

func orderDocumentFromDomain(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:    strings.TrimSpace(order.OrderNumber),
		UserID:         strings.TrimSpace(order.UserID),
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		PaymentMethod:  string(order.PaymentMethod),
		PaymentLabel:   strings.TrimSpace(order.PaymentLabel),
		PaymentChannel: strings.TrimSpace(order.PaymentChannel),
		Totals: priceBreakdownDocument{
			Subtotal:         order.Totals.Subtotal,
			Discount:         order.Totals.Discount,
			ShippingCost:     order.Totals.ShippingCost,
			ServiceFee:       order.Totals.ServiceFee,
			PaymentFee:       order.Totals.PaymentFee,
			ShippingDiscount: order.Totals.ShippingDiscount,
			VoucherDiscount:  order.Totals.VoucherDiscount,
			Total:            order.Totals.Total,
		},
		ShippingAddress: orderAddressDocument{
			ID:         order.ShippingAddress.ID,
			Label:      order.ShippingAddress.Label,
			Recipient:  order.ShippingAddress.Recipient,
			Phone:      order.ShippingAddress.Phone,
			Street:     order.ShippingAddress.Street,
			City:       order.ShippingAddress.City,
			Province:   order.ShippingAddress.Province,
			PostalCode: order.ShippingAddress.PostalCode,
		},
		CancelReason: strings.TrimSpace(order.CancelReason),
		CreatedAt:    order.CreatedAt.UTC(),
		UpdatedAt:    order.UpdatedAt.UTC(),
		PaidAt:       cloneTime(order.PaidAt),
		ShippedAt:    cloneTime(order.ShippedAt),
		DeliveredAt:  cloneTime(order.DeliveredAt),
		CancelledAt:  cloneTime(order.CancelledAt),
		RefundedAt:   cloneTime(order.RefundedAt),
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			SKU:       item.SKU,
			UnitPrice: item.UnitPrice,
			BasePrice: item.BasePrice,
			Quantity:  item.Quantity,
			Color:     item.Color,
			Size:      item.Size,
			ImageURL:  item.ImageURL,
		})
	}
	for _, txn := range order.Transactions {
		doc.Transactions = append(doc.Transactions, orderTransactionDocument{
			ID:           txn.ID,
			OrderID:      txn.OrderID,
			Provider:     txn.Provider,
			Reference:    txn.Reference,
			PaymentType:  txn.PaymentType,
			VABank:       txn.VABank,
			VANumber:     txn.VANumber,
			QRImageURL:   txn.QRImageURL,
			PaymentURL:   txn.PaymentURL,
			Instructions: txn.Instructions,
			Status:       txn.Status,
			GrossAmount:  txn.GrossAmount,
			ExpiresAt:    cloneTime(txn.ExpiresAt),
			CreatedAt:    txn.CreatedAt.UTC(),
			UpdatedAt:    txn.UpdatedAt.UTC(),
		})
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:             id,
		OrderNumber:    d.OrderNumber,
		UserID:         d.UserID,
		Status:         domain.OrderStatus(d.Status),
		PaymentStatus:  domain.PaymentStatus(d.PaymentStatus),
		PaymentMethod:  domain.PaymentMethodType(d.PaymentMethod),
		PaymentLabel:   d.PaymentLabel,
		PaymentChannel: d.PaymentChannel,
		Totals: domain.PriceBreakdown{
			Subtotal:         d.Totals.Subtotal,
			Discount:         d.Totals.Discount,
			ShippingCost:     d.Totals.ShippingCost,
			ServiceFee:       d.Totals.ServiceFee,
			PaymentFee:       d.Totals.PaymentFee,
			ShippingDiscount: d.Totals.ShippingDiscount,
			VoucherDiscount:  d.Totals.VoucherDiscount,
			Total:            d.Totals.Total,
		},
		ShippingAddress: domain.Address{
			ID:         d.ShippingAddress.ID,
			Label:      d.ShippingAddress.Label,
			Recipient:  d.ShippingAddress.Recipient,
			Phone:      d.ShippingAddress.Phone,
			Street:     d.ShippingAddress.Street,
			City:       d.ShippingAddress.City,
			Province:   d.ShippingAddress.Province,
			PostalCode: d.ShippingAddress.PostalCode,
		},
		CancelReason: d.CancelReason,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		PaidAt:       cloneTime(d.PaidAt),
		ShippedAt:    cloneTime(d.ShippedAt),
		DeliveredAt:  cloneTime(d.DeliveredAt),
		CancelledAt:  cloneTime(d.CancelledAt),
		RefundedAt:   cloneTime(d.RefundedAt),
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			SKU:       item.SKU,
			UnitPrice: item.UnitPrice,
			BasePrice: item.BasePrice,
			Quantity:  item.Quantity,
			Color:     item.Color,
			Size:      item.Size,
			ImageURL:  item.ImageURL,
		})
	}
	for _, txn := range d.Transactions {
		order.Transactions = append(order.Transactions, domain.PaymentTransaction{
			ID:           txn.ID,
			OrderID:      txn.OrderID,
			Provider:     txn.Provider,
			Reference:    txn.Reference,
			PaymentType:  txn.PaymentType,
			VABank:       txn.VABank,
			VANumber:     txn.VANumber,
			QRImageURL:   txn.QRImageURL,
			PaymentURL:   txn.PaymentURL,
			Instructions: txn.Instructions,
			Status:       txn.Status,
			GrossAmount:  txn.GrossAmount,
			ExpiresAt:    cloneTime(txn.ExpiresAt),
			CreatedAt:    txn.CreatedAt,
			UpdatedAt:    txn.UpdatedAt,
		})
	}
	return order
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	cloned := value.UTC()
	return &cloned
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
