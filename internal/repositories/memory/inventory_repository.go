package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	domain "github.com/shopstream/api/internal/domain"
	"github.com/shopstream/api/internal/repositories"
)

// InventoryRepository tracks product stock in memory under a single mutex, so
// a reserve is atomic across its whole line set the same way the Firestore
// backend's transaction is.
type InventoryRepository struct {
	mu       sync.Mutex
	products map[string]domain.Product
	updated  map[string]time.Time
}

func NewInventoryRepository() *InventoryRepository {
	return &InventoryRepository{
		products: make(map[string]domain.Product),
		updated:  make(map[string]time.Time),
	}
}

// Seed installs or replaces a product record. Intended for tests and local bootstrapping.
func (r *InventoryRepository) Seed(product domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[product.ID] = product
	r.updated[product.ID] = time.Now().UTC()
}

// Product returns the current product record, for sharing with a ProductRepository.
func (r *InventoryRepository) Product(productID string) (domain.Product, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	product, ok := r.products[productID]
	return product, ok
}

func (r *InventoryRepository) Reserve(ctx context.Context, req repositories.InventoryReserveRequest) (repositories.InventoryReserveResult, error) {
	_ = ctx
	if len(req.Lines) == 0 {
		return repositories.InventoryReserveResult{}, repositories.NewInventoryError(repositories.InventoryErrorUnknown, "", "at least one line is required", nil)
	}
	now := req.Now.UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Validate every line before mutating any stock.
	for _, line := range req.Lines {
		product, ok := r.products[strings.TrimSpace(line.ProductID)]
		if !ok {
			return repositories.InventoryReserveResult{}, repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, line.ProductID, "product "+line.ProductID+" not found", nil)
		}
		if !product.IsActive {
			return repositories.InventoryReserveResult{}, repositories.NewInventoryError(repositories.InventoryErrorProductInactive, line.ProductID, "product "+line.ProductID+" is not active", nil)
		}
		if line.Quantity <= 0 {
			return repositories.InventoryReserveResult{}, repositories.NewInventoryError(repositories.InventoryErrorUnknown, line.ProductID, "quantity for product "+line.ProductID+" must be > 0", nil)
		}
		if product.Stock < line.Quantity {
			return repositories.InventoryReserveResult{}, repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, line.ProductID, "insufficient stock for product "+line.ProductID, nil)
		}
	}

	stocks := make(map[string]repositories.StockSnapshot, len(req.Lines))
	for _, line := range req.Lines {
		id := strings.TrimSpace(line.ProductID)
		product := r.products[id]
		product.Stock -= line.Quantity
		r.products[id] = product
		r.updated[id] = now
		stocks[id] = repositories.StockSnapshot{ProductID: id, Stock: product.Stock, UpdatedAt: now}
	}
	return repositories.InventoryReserveResult{Stocks: stocks}, nil
}

func (r *InventoryRepository) Release(ctx context.Context, req repositories.InventoryReleaseRequest) (repositories.InventoryReleaseResult, error) {
	_ = ctx
	if len(req.Lines) == 0 {
		return repositories.InventoryReleaseResult{}, repositories.NewInventoryError(repositories.InventoryErrorUnknown, "", "at least one line is required", nil)
	}
	now := req.Now.UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, line := range req.Lines {
		if _, ok := r.products[strings.TrimSpace(line.ProductID)]; !ok {
			return repositories.InventoryReleaseResult{}, repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, line.ProductID, "product "+line.ProductID+" not found", nil)
		}
	}

	stocks := make(map[string]repositories.StockSnapshot, len(req.Lines))
	for _, line := range req.Lines {
		id := strings.TrimSpace(line.ProductID)
		product := r.products[id]
		product.Stock += line.Quantity
		r.products[id] = product
		r.updated[id] = now
		stocks[id] = repositories.StockSnapshot{ProductID: id, Stock: product.Stock, UpdatedAt: now}
	}
	return repositories.InventoryReleaseResult{Stocks: stocks}, nil
}

func (r *InventoryRepository) Availability(ctx context.Context, productID string) (repositories.StockSnapshot, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[productID]
	if !ok {
		return repositories.StockSnapshot{}, repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, productID, "product "+productID+" not found", nil)
	}
	return repositories.StockSnapshot{
		ProductID: productID,
		Stock:     product.Stock,
		UpdatedAt: r.updated[productID],
	}, nil
}
