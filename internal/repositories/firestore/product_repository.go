package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/lokapasar/api/internal/domain"
	pfirestore "github.com/lokapasar/api/internal/platform/firestore"
	"github.com/lokapasar/api/internal/platform/pagination"
	"github.com/lokapasar/api/internal/repositories"
)

const productsCollection = "products"

// ProductRepository persists catalog products in Firestore.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{base: base, provider: provider}, nil
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Upsert writes the full product document keyed by its ID.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	doc := productDocumentFromDomain(product)
	result, err := r.base.Set(ctx, id, doc)
	if err != nil {
		return domain.Product{}, err
	}

	saved := doc.toDomain(id)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// List returns catalog products ordered by creation time descending.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			query = query.Where("isActive", "==", true)
		}
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc)
		if len(cursor.StartAfter) > 0 {
			query = query.StartAfter(cursor.StartAfter...)
		}
		// Fetch one extra row to detect whether another page exists.
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	page := domain.CursorPage[domain.Product]{}
	for i, doc := range docs {
		if i == pageSize {
			last := docs[pageSize-1]
			token, err := pagination.EncodeToken(pagination.Cursor{
				StartAfter: []any{last.Data.CreatedAt, last.ID},
			})
			if err != nil {
				return domain.CursorPage[domain.Product]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// AdjustStock applies a delta to the product's stock inside a transaction.
// The resulting stock never drops below zero.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, delta int) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	var saved domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}

		stock := doc.Stock + delta
		if stock < 0 {
			stock = 0
		}
		now := time.Now().UTC()
		if err := tx.Update(ref, []firestore.Update{
			{Path: "stock", Value: stock},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}

		doc.Stock = stock
		doc.UpdatedAt = now
		saved = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.adjustStock", err)
	}
	return saved, nil
}

type productDocument struct {
	Name        string                   `firestore:"name"`
	SKU         string                   `firestore:"sku,omitempty"`
	Description string                   `firestore:"description,omitempty"`
	Price       int64                    `firestore:"price"`
	SalePrice   *int64                   `firestore:"salePrice,omitempty"`
	Stock       int                      `firestore:"stock"`
	Colors      []string                 `firestore:"colors,omitempty"`
	Sizes       []string                 `firestore:"sizes,omitempty"`
	ImageURLs   []string                 `firestore:"imageUrls,omitempty"`
	Shipping    shippingSettingsDocument `firestore:"shipping"`
	IsActive    bool                     `firestore:"isActive"`
	CreatedAt   time.Time                `firestore:"createdAt"`
	UpdatedAt   time.Time                `firestore:"updatedAt"`
}

type shippingSettingsDocument struct {
	FreeShippingThreshold *int64 `firestore:"freeShippingThreshold,omitempty"`
	DefaultShippingCost   *int64 `firestore:"defaultShippingCost,omitempty"`
	ServiceFee            *int64 `firestore:"serviceFee,omitempty"`
}

func productDocumentFromDomain(product domain.Product) productDocument {
	createdAt := product.CreatedAt.UTC()
	if product.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := product.UpdatedAt.UTC()
	if product.UpdatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	return productDocument{
		Name:        strings.TrimSpace(product.Name),
		SKU:         strings.TrimSpace(product.SKU),
		Description: strings.TrimSpace(product.Description),
		Price:       product.Price,
		SalePrice:   cloneInt64(product.SalePrice),
		Stock:       product.Stock,
		Colors:      product.Colors,
		Sizes:       product.Sizes,
		ImageURLs:   product.ImageURLs,
		Shipping: shippingSettingsDocument{
			FreeShippingThreshold: cloneInt64(product.Shipping.FreeShippingThreshold),
			DefaultShippingCost:   cloneInt64(product.Shipping.DefaultShippingCost),
			ServiceFee:            cloneInt64(product.Shipping.ServiceFee),
		},
		IsActive:  product.IsActive,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:          id,
		Name:        d.Name,
		SKU:         d.SKU,
		Description: d.Description,
		Price:       d.Price,
		SalePrice:   cloneInt64(d.SalePrice),
		Stock:       d.Stock,
		Colors:      d.Colors,
		Sizes:       d.Sizes,
		ImageURLs:   d.ImageURLs,
		Shipping: domain.ShippingSettings{
			FreeShippingThreshold: cloneInt64(d.Shipping.FreeShippingThreshold),
			DefaultShippingCost:   cloneInt64(d.Shipping.DefaultShippingCost),
			ServiceFee:            cloneInt64(d.Shipping.ServiceFee),
		},
		IsActive:  d.IsActive,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func cloneInt64(value *int64) *int64 {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
