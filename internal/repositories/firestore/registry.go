package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/shopstream/api/internal/platform/firestore"
	"github.com/shopstream/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider  *pfirestore.Provider
	orders    *OrderRepository
	inventory *InventoryRepository
	products  *ProductRepository
	counters  *CounterRepository
}

// NewRegistry constructs every Firestore repository over a shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	inventory, err := NewInventoryRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build inventory repository: %w", err)
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build product repository: %w", err)
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build counter repository: %w", err)
	}

	return &Registry{
		provider:  provider,
		orders:    orders,
		inventory: inventory,
		products:  products,
		counters:  counters,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository         { return r.orders }
func (r *Registry) Inventory() repositories.InventoryRepository  { return r.inventory }
func (r *Registry) Products() repositories.ProductRepository     { return r.products }
func (r *Registry) Counters() repositories.CounterRepository     { return r.counters }

// RunInTx executes fn directly. Every repository operation above is already
// transactional on its own, so there is no outer transaction to join.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}
