package memory

import (
	"context"

	domain "github.com/shopstream/api/internal/domain"
)

// ProductRepository serves catalog reads from the shared inventory store so
// stock levels and product lookups never drift apart.
type ProductRepository struct {
	inventory *InventoryRepository
}

func NewProductRepository(inventory *InventoryRepository) *ProductRepository {
	return &ProductRepository{inventory: inventory}
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	_ = ctx
	if r == nil || r.inventory == nil {
		return domain.Product{}, notFoundError("products.get", "product %s not found", productID)
	}
	product, ok := r.inventory.Product(productID)
	if !ok {
		return domain.Product{}, notFoundError("products.get", "product %s not found", productID)
	}
	return product, nil
}
