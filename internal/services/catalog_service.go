package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/lokapasar/api/internal/domain"
	"github.com/lokapasar/api/internal/repositories"
)

const productIDPrefix = "prod_"

var (
	// ErrCatalogInvalidInput signals malformed product data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the product does not exist.
	ErrCatalogNotFound = errors.New("catalog: product not found")
)

// CatalogServiceDeps bundles collaborators for the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type catalogService struct {
	products  repositories.ProductRepository
	clock     func() time.Time
	newID     func() string
	sanitizer *bluemonday.Policy
}

// NewCatalogService wires the product catalog service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	return &catalogService{
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return domain.Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (domain.Product, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if cmd.Price <= 0 {
		return domain.Product{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	}
	if cmd.SalePrice != nil && *cmd.SalePrice < 0 {
		return domain.Product{}, fmt.Errorf("%w: sale price must not be negative", ErrCatalogInvalidInput)
	}
	if cmd.Stock < 0 {
		return domain.Product{}, fmt.Errorf("%w: stock must not be negative", ErrCatalogInvalidInput)
	}
	if err := validateShippingSettings(cmd.Shipping); err != nil {
		return domain.Product{}, err
	}

	now := s.clock()
	product := domain.Product{
		ID:          strings.TrimSpace(cmd.ProductID),
		Name:        name,
		SKU:         strings.TrimSpace(cmd.SKU),
		Description: s.sanitizer.Sanitize(strings.TrimSpace(cmd.Description)),
		Price:       cmd.Price,
		SalePrice:   cmd.SalePrice,
		Stock:       cmd.Stock,
		Colors:      cmd.Colors,
		Sizes:       cmd.Sizes,
		ImageURLs:   cmd.ImageURLs,
		Shipping:    cmd.Shipping,
		IsActive:    cmd.IsActive,
		UpdatedAt:   now,
	}
	if product.ID == "" {
		product.ID = productIDPrefix + s.newID()
		product.CreatedAt = now
	}

	saved, err := s.products.Upsert(ctx, product)
	if err != nil {
		return domain.Product{}, s.mapRepositoryError(err)
	}
	return saved, nil
}

func validateShippingSettings(settings domain.ShippingSettings) error {
	if settings.FreeShippingThreshold != nil && *settings.FreeShippingThreshold < 0 {
		return fmt.Errorf("%w: free shipping threshold must not be negative", ErrCatalogInvalidInput)
	}
	if settings.DefaultShippingCost != nil && *settings.DefaultShippingCost < 0 {
		return fmt.Errorf("%w: default shipping cost must not be negative", ErrCatalogInvalidInput)
	}
	if settings.ServiceFee != nil && *settings.ServiceFee < 0 {
		return fmt.Errorf("%w: service fee must not be negative", ErrCatalogInvalidInput)
	}
	return nil
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
	}
	return err
}
