package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/lokapasar/api/internal/domain"
)

func newTestCatalogService(t *testing.T, products *fakeProductRepo) CatalogService {
	t.Helper()
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products: products,
		Clock: func() time.Time {
			return time.Date(2026, time.February, 10, 8, 0, 0, 0, time.UTC)
		},
		IDGenerator: sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return svc
}

func TestGetProductRequiresID(t *testing.T) {
	svc := newTestCatalogService(t, &fakeProductRepo{products: map[string]domain.Product{}})

	if _, err := svc.GetProduct(context.Background(), "  "); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
	}
}

func TestGetProductMapsNotFound(t *testing.T) {
	svc := newTestCatalogService(t, &fakeProductRepo{products: map[string]domain.Product{}})

	if _, err := svc.GetProduct(context.Background(), "prod_missing"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound, got %v", err)
	}
}

func TestUpsertProductGeneratesID(t *testing.T) {
	repo := &fakeProductRepo{products: map[string]domain.Product{}}
	svc := newTestCatalogService(t, repo)

	saved, err := svc.UpsertProduct(context.Background(), UpsertProductCommand{
		Name:        "Batik Shirt",
		Description: "Soft <b>batik</b> cotton",
		Price:       100,
		Stock:       10,
		IsActive:    true,
	})
	if err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}
	if saved.ID != "prod_TESTID0001" {
		t.Fatalf("expected generated id prod_TESTID0001, got %q", saved.ID)
	}
	if saved.CreatedAt.IsZero() || saved.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps to be set, got %#v", saved)
	}
	if saved.Description != "Soft batik cotton" {
		t.Fatalf("expected markup stripped from description, got %q", saved.Description)
	}
	if _, ok := repo.products["prod_TESTID0001"]; !ok {
		t.Fatal("expected product persisted under generated id")
	}
}

func TestUpsertProductKeepsExplicitID(t *testing.T) {
	repo := &fakeProductRepo{products: map[string]domain.Product{}}
	svc := newTestCatalogService(t, repo)

	saved, err := svc.UpsertProduct(context.Background(), UpsertProductCommand{
		ProductID: "prod_1",
		Name:      "Batik Shirt",
		Price:     100,
		Stock:     5,
		IsActive:  true,
	})
	if err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}
	if saved.ID != "prod_1" {
		t.Fatalf("expected id prod_1, got %q", saved.ID)
	}
	if !saved.CreatedAt.IsZero() {
		t.Fatalf("expected CreatedAt untouched for existing id, got %v", saved.CreatedAt)
	}
}

func TestUpsertProductValidation(t *testing.T) {
	negative := int64(-1)
	cases := []struct {
		name string
		cmd  UpsertProductCommand
	}{
		{name: "missing name", cmd: UpsertProductCommand{Price: 100}},
		{name: "zero price", cmd: UpsertProductCommand{Name: "Batik Shirt"}},
		{name: "negative sale price", cmd: UpsertProductCommand{Name: "Batik Shirt", Price: 100, SalePrice: &negative}},
		{name: "negative stock", cmd: UpsertProductCommand{Name: "Batik Shirt", Price: 100, Stock: -1}},
		{name: "negative threshold", cmd: UpsertProductCommand{
			Name:     "Batik Shirt",
			Price:    100,
			Shipping: domain.ShippingSettings{FreeShippingThreshold: &negative},
		}},
		{name: "negative service fee", cmd: UpsertProductCommand{
			Name:     "Batik Shirt",
			Price:    100,
			Shipping: domain.ShippingSettings{ServiceFee: &negative},
		}},
	}

	svc := newTestCatalogService(t, &fakeProductRepo{products: map[string]domain.Product{}})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.UpsertProduct(context.Background(), tc.cmd); !errors.Is(err, ErrCatalogInvalidInput) {
				t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
			}
		})
	}
}
