package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/lokapasar/api/internal/domain"
	pfirestore "github.com/lokapasar/api/internal/platform/firestore"
	"github.com/lokapasar/api/internal/repositories"
)

const paymentMethodsCollection = "paymentMethods"

// PaymentMethodRepository persists the admin-configured payment method
// catalog in Firestore.
type PaymentMethodRepository struct {
	base *pfirestore.BaseRepository[paymentMethodDocument]
}

// NewPaymentMethodRepository constructs a Firestore-backed payment method repository.
func NewPaymentMethodRepository(provider *pfirestore.Provider) (*PaymentMethodRepository, error) {
	if provider == nil {
		return nil, errors.New("payment method repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[paymentMethodDocument](provider, paymentMethodsCollection, nil, nil)
	return &PaymentMethodRepository{base: base}, nil
}

// List returns the payment method catalog ordered by creation time.
func (r *PaymentMethodRepository) List(ctx context.Context, activeOnly bool) ([]domain.PaymentMethod, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("payment method repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if activeOnly {
			query = query.Where("isActive", "==", true)
		}
		return query.OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	methods := make([]domain.PaymentMethod, 0, len(docs))
	for _, doc := range docs {
		methods = append(methods, doc.Data.toDomain(doc.ID))
	}
	return methods, nil
}

// Get loads a single payment method by ID.
func (r *PaymentMethodRepository) Get(ctx context.Context, methodID string) (domain.PaymentMethod, error) {
	if r == nil || r.base == nil {
		return domain.PaymentMethod{}, errors.New("payment method repository not initialised")
	}
	id := strings.TrimSpace(methodID)
	if id == "" {
		return domain.PaymentMethod{}, errors.New("payment method repository: method id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.PaymentMethod{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Upsert writes the full payment method document keyed by its ID.
func (r *PaymentMethodRepository) Upsert(ctx context.Context, method domain.PaymentMethod) (domain.PaymentMethod, error) {
	if r == nil || r.base == nil {
		return domain.PaymentMethod{}, errors.New("payment method repository not initialised")
	}
	id := strings.TrimSpace(method.ID)
	if id == "" {
		return domain.PaymentMethod{}, errors.New("payment method repository: method id is required")
	}

	now := time.Now().UTC()
	doc := paymentMethodDocument{
		Name:        strings.TrimSpace(method.Name),
		Type:        string(method.Type),
		Fee:         method.Fee,
		Channels:    method.Channels,
		Description: strings.TrimSpace(method.Description),
		IsActive:    method.IsActive,
		CreatedAt:   method.CreatedAt.UTC(),
		UpdatedAt:   method.UpdatedAt.UTC(),
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}

	result, err := r.base.Set(ctx, id, doc)
	if err != nil {
		return domain.PaymentMethod{}, err
	}

	saved := doc.toDomain(id)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// Delete removes the payment method from the catalog.
func (r *PaymentMethodRepository) Delete(ctx context.Context, methodID string) error {
	if r == nil || r.base == nil {
		return errors.New("payment method repository not initialised")
	}
	id := strings.TrimSpace(methodID)
	if id == "" {
		return errors.New("payment method repository: method id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("payment_methods.delete", err)
	}
	return nil
}

type paymentMethodDocument struct {
	Name        string    `firestore:"name"`
	Type        string    `firestore:"type"`
	Fee         int64     `firestore:"fee"`
	Channels    []string  `firestore:"channels,omitempty"`
	Description string    `firestore:"description,omitempty"`
	IsActive    bool      `firestore:"isActive"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func (d paymentMethodDocument) toDomain(id string) domain.PaymentMethod {
	return domain.PaymentMethod{
		ID:          id,
		Name:        d.Name,
		Type:        domain.PaymentMethodType(d.Type),
		Fee:         d.Fee,
		Channels:    d.Channels,
		Description: d.Description,
		IsActive:    d.IsActive,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

var _ repositories.PaymentMethodRepository = (*PaymentMethodRepository)(nil)
