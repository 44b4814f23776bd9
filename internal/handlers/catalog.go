package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lokapasar/api/internal/domain"
	"github.com/lokapasar/api/internal/platform/httpx"
	"github.com/lokapasar/api/internal/repositories"
	"github.com/lokapasar/api/internal/services"
)

const (
	defaultProductPageSize = 24
	maxProductPageSize     = 100
)

// CatalogHandlers exposes the public product catalog.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs the catalog handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers the /products endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultProductPageSize, maxProductPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := repositories.ProductListFilter{
		ActiveOnly: true,
		Pagination: domain.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}

	writeJSONResponse(w, http.StatusOK, productListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productPayload struct {
	ID             string                   `json:"id"`
	Name           string                   `json:"name"`
	SKU            string                   `json:"sku,omitempty"`
	Description    string                   `json:"description,omitempty"`
	Price          int64                    `json:"price"`
	SalePrice      *int64                   `json:"sale_price,omitempty"`
	EffectivePrice int64                    `json:"effective_price"`
	Stock          int                      `json:"stock"`
	Colors         []string                 `json:"colors,omitempty"`
	Sizes          []string                 `json:"sizes,omitempty"`
	ImageURLs      []string                 `json:"image_urls,omitempty"`
	Shipping       *productShippingPayload  `json:"shipping,omitempty"`
	IsActive       bool                     `json:"is_active"`
	CreatedAt      string                   `json:"created_at,omitempty"`
	UpdatedAt      string                   `json:"updated_at,omitempty"`
}

type productShippingPayload struct {
	FreeShippingThreshold *int64 `json:"free_shipping_threshold,omitempty"`
	DefaultShippingCost   *int64 `json:"default_shipping_cost,omitempty"`
	ServiceFee            *int64 `json:"service_fee,omitempty"`
}

func buildProductPayload(product domain.Product) productPayload {
	payload := productPayload{
		ID:             strings.TrimSpace(product.ID),
		Name:           strings.TrimSpace(product.Name),
		SKU:            strings.TrimSpace(product.SKU),
		Description:    strings.TrimSpace(product.Description),
		Price:          product.Price,
		SalePrice:      product.SalePrice,
		EffectivePrice: product.EffectivePrice(),
		Stock:          product.Stock,
		Colors:         product.Colors,
		Sizes:          product.Sizes,
		ImageURLs:      product.ImageURLs,
		IsActive:       product.IsActive,
		CreatedAt:      formatTime(product.CreatedAt),
		UpdatedAt:      formatTime(product.UpdatedAt),
	}
	shipping := product.Shipping
	if shipping.FreeShippingThreshold != nil || shipping.DefaultShippingCost != nil || shipping.ServiceFee != nil {
		payload.Shipping = &productShippingPayload{
			FreeShippingThreshold: shipping.FreeShippingThreshold,
			DefaultShippingCost:   shipping.DefaultShippingCost,
			ServiceFee:            shipping.ServiceFee,
		}
	}
	return payload
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
