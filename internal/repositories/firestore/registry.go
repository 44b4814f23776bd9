package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/lokapasar/api/internal/platform/firestore"
	"github.com/lokapasar/api/internal/repositories"
)

// Registry bundles every Firestore-backed repository behind the
// repositories.Registry interface for dependency injection.
type Registry struct {
	provider *pfirestore.Provider

	products       *ProductRepository
	carts          *CartRepository
	orders         *OrderRepository
	addresses      *AddressRepository
	settings       *SettingsRepository
	paymentMethods *PaymentMethodRepository
	counters       *CounterRepository
	health         repositories.HealthRepository
}

// NewRegistry wires all repositories against the shared provider. The health
// repository defaults to a Firestore reachability probe when none is supplied.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	registry := &Registry{provider: provider, health: health}

	var err error
	if registry.products, err = NewProductRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if registry.carts, err = NewCartRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if registry.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if registry.addresses, err = NewAddressRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if registry.settings, err = NewSettingsRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if registry.paymentMethods, err = NewPaymentMethodRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if registry.counters, err = NewCounterRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	if registry.health == nil {
		registry.health, err = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
			{
				Name: "firestore",
				Check: func(ctx context.Context) error {
					_, err := provider.Client(ctx)
					return err
				},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
	}

	return registry, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Products() repositories.ProductRepository             { return r.products }
func (r *Registry) Carts() repositories.CartRepository                   { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository                 { return r.orders }
func (r *Registry) Addresses() repositories.AddressRepository            { return r.addresses }
func (r *Registry) Settings() repositories.SettingsRepository            { return r.settings }
func (r *Registry) PaymentMethods() repositories.PaymentMethodRepository { return r.paymentMethods }
func (r *Registry) Counters() repositories.CounterRepository             { return r.counters }
func (r *Registry) Health() repositories.HealthRepository                { return r.health }

// RunInTx executes fn inside a Firestore transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

var _ repositories.Registry = (*Registry)(nil)
