package memory

import (
	"context"

	"github.com/shopstream/api/internal/repositories"
)

// Registry bundles the in-memory repositories. It backs local development
// without Firestore credentials as well as service-level tests.
type Registry struct {
	orders    *OrderRepository
	inventory *InventoryRepository
	products  *ProductRepository
	counters  *CounterRepository
}

func NewRegistry() *Registry {
	inventory := NewInventoryRepository()
	return &Registry{
		orders:    NewOrderRepository(),
		inventory: inventory,
		products:  NewProductRepository(inventory),
		counters:  NewCounterRepository(),
	}
}

func (r *Registry) Close(ctx context.Context) error {
	_ = ctx
	return nil
}

func (r *Registry) Orders() repositories.OrderRepository        { return r.orders }
func (r *Registry) Inventory() repositories.InventoryRepository { return r.inventory }
func (r *Registry) Products() repositories.ProductRepository    { return r.products }
func (r *Registry) Counters() repositories.CounterRepository    { return r.counters }

// SeedInventory returns the concrete inventory store for installing catalog fixtures.
func (r *Registry) SeedInventory() *InventoryRepository { return r.inventory }

func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}
