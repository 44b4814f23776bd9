package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/lokapasar/api/internal/domain"
	"github.com/lokapasar/api/internal/repositories"
)

const cartItemIDPrefix = "ci_"

var (
	// ErrCartInvalidInput signals malformed cart mutations.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemNotFound indicates the referenced cart line does not exist.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartProductUnavailable indicates the product cannot be added.
	ErrCartProductUnavailable = errors.New("cart: product unavailable")
)

// CartServiceDeps bundles collaborators for the cart service.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	clock    func() time.Time
	newID    func() string
}

// NewCartService wires the cart service.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
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

	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return domain.Cart{UserID: userID}, nil
		}
		return domain.Cart{}, err
	}
	return cart, nil
}

func (s *cartService) AddItem(ctx context.Context, cmd UpsertCartItemCommand) (domain.Cart, error) {
	if err := validateCartItemCommand(cmd); err != nil {
		return domain.Cart{}, err
	}

	product, err := s.products.FindByID(ctx, cmd.ProductID)
	if err != nil {
		if isNotFound(err) {
			return domain.Cart{}, fmt.Errorf("%w: %s", ErrCartProductUnavailable, cmd.ProductID)
		}
		return domain.Cart{}, err
	}
	if !product.IsActive || product.Stock <= 0 {
		return domain.Cart{}, fmt.Errorf("%w: %s", ErrCartProductUnavailable, cmd.ProductID)
	}

	cart, err := s.GetCart(ctx, cmd.UserID)
	if err != nil {
		return domain.Cart{}, err
	}

	now := s.clock()
	merged := false
	for i, item := range cart.Items {
		if item.ProductID == cmd.ProductID && item.Color == cmd.Color && item.Size == cmd.Size {
			cart.Items[i].Quantity += cmd.Quantity
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        cartItemIDPrefix + s.newID(),
			ProductID: cmd.ProductID,
			Quantity:  cmd.Quantity,
			Color:     strings.TrimSpace(cmd.Color),
			Size:      strings.TrimSpace(cmd.Size),
			ImageURL:  strings.TrimSpace(cmd.ImageURL),
			AddedAt:   now,
		})
	}
	cart.UserID = strings.TrimSpace(cmd.UserID)
	cart.UpdatedAt = now

	return s.carts.UpsertCart(ctx, cart)
}

func (s *cartService) UpdateItem(ctx context.Context, cmd UpsertCartItemCommand) (domain.Cart, error) {
	itemID := strings.TrimSpace(cmd.ItemID)
	if itemID == "" {
		return domain.Cart{}, fmt.Errorf("%w: item id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return domain.Cart{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}

	cart, err := s.GetCart(ctx, cmd.UserID)
	if err != nil {
		return domain.Cart{}, err
	}

	for i, item := range cart.Items {
		if item.ID != itemID {
			continue
		}
		cart.Items[i].Quantity = cmd.Quantity
		if cmd.Color != "" {
			cart.Items[i].Color = strings.TrimSpace(cmd.Color)
		}
		if cmd.Size != "" {
			cart.Items[i].Size = strings.TrimSpace(cmd.Size)
		}
		cart.UpdatedAt = s.clock()
		return s.carts.UpsertCart(ctx, cart)
	}
	return domain.Cart{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
}

func (s *cartService) RemoveItem(ctx context.Context, userID string, itemID string) (domain.Cart, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.Cart{}, fmt.Errorf("%w: item id is required", ErrCartInvalidInput)
	}

	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}

	remaining := make([]domain.CartItem, 0, len(cart.Items))
	found := false
	for _, item := range cart.Items {
		if item.ID == itemID {
			found = true
			continue
		}
		remaining = append(remaining, item)
	}
	if !found {
		return domain.Cart{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
	}
	return s.carts.ReplaceItems(ctx, cart.UserID, remaining)
}

func (s *cartService) ClearItems(ctx context.Context, userID string, itemIDs []string) error {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return err
	}
	if len(itemIDs) == 0 {
		_, err = s.carts.ReplaceItems(ctx, cart.UserID, nil)
		return err
	}

	drop := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		drop[strings.TrimSpace(id)] = true
	}
	remaining := make([]domain.CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if !drop[item.ID] {
			remaining = append(remaining, item)
		}
	}
	_, err = s.carts.ReplaceItems(ctx, cart.UserID, remaining)
	return err
}

func validateCartItemCommand(cmd UpsertCartItemCommand) error {
	if strings.TrimSpace(cmd.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if strings.TrimSpace(cmd.ProductID) == "" {
		return fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}
	return nil
}
