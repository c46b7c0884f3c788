package repositories

import (
	"context"
	"time"

	domain "github.com/shopstream/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Inventory() InventoryRepository
	Products() ProductRepository
	Counters() CounterRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderSortField enumerates the sortable order listing columns.
type OrderSortField string

const (
	OrderSortCreatedAt   OrderSortField = "createdAt"
	OrderSortOrderNumber OrderSortField = "orderNumber"
	OrderSortTotal       OrderSortField = "pricing.total"
)

// SortDirection controls listing order.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// OrderListFilter narrows and paginates order listings.
type OrderListFilter struct {
	UserID        string
	Status        []domain.OrderStatus
	PaymentStatus []domain.PaymentStatus
	DateRange     domain.DateRange
	SortBy        OrderSortField
	SortDirection SortDirection
	Page          int
	PageSize      int
}

// OrderRepository persists order aggregates. Insert enforces uniqueness of
// both the order id and the human-readable order number at the storage
// boundary; Update applies an optimistic version check and fails with a
// conflict when the stored version differs from the submitted one.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
	Statistics(ctx context.Context, dateRange domain.DateRange) (domain.OrderStatistics, error)
}

// StockSnapshot reports a product's stock level after a ledger mutation.
type StockSnapshot struct {
	ProductID string
	Stock     int
	UpdatedAt time.Time
}

// InventoryReserveRequest decrements stock for every line or none at all.
type InventoryReserveRequest struct {
	Lines   []domain.ReservationLine
	OrderID string
	Now     time.Time
}

// InventoryReserveResult returns post-reservation stock levels per product.
type InventoryReserveResult struct {
	Stocks map[string]StockSnapshot
}

// InventoryReleaseRequest restores previously reserved stock.
type InventoryReleaseRequest struct {
	Lines   []domain.ReservationLine
	OrderID string
	Reason  string
	Now     time.Time
}

// InventoryReleaseResult returns post-release stock levels per product.
type InventoryReleaseResult struct {
	Stocks map[string]StockSnapshot
}

// InventoryRepository is the authoritative stock ledger. Reserve performs the
// availability check and the decrement as a single atomic step for the whole
// line set; no other component may write product stock.
type InventoryRepository interface {
	Reserve(ctx context.Context, req InventoryReserveRequest) (InventoryReserveResult, error)
	Release(ctx context.Context, req InventoryReleaseRequest) (InventoryReleaseResult, error)
	Availability(ctx context.Context, productID string) (StockSnapshot, error)
}

// ProductRepository reads the catalog collaborator's product records.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
}

// CounterRepository hands out monotonically increasing sequence values.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}
