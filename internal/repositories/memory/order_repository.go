package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	domain "github.com/shopstream/api/internal/domain"
	"github.com/shopstream/api/internal/repositories"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// OrderRepository keeps order aggregates in process memory. It mirrors the
// Firestore backend's contract, including order number uniqueness and the
// optimistic version check on updates.
type OrderRepository struct {
	mu      sync.RWMutex
	orders  map[string]domain.Order
	numbers map[string]string
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:  make(map[string]domain.Order),
		numbers: make(map[string]string),
	}
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	_ = ctx
	if strings.TrimSpace(order.ID) == "" {
		return conflictError("orders.insert", "order id is required")
	}
	if strings.TrimSpace(order.OrderNumber) == "" {
		return conflictError("orders.insert", "order number is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return conflictError("orders.insert", "order %s already exists", order.ID)
	}
	if _, exists := r.numbers[order.OrderNumber]; exists {
		return conflictError("orders.insert", "order number %s already claimed", order.OrderNumber)
	}

	r.orders[order.ID] = order.Clone()
	r.numbers[order.OrderNumber] = order.ID
	return nil
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.orders[order.ID]
	if !exists {
		return domain.Order{}, notFoundError("orders.update", "order %s not found", order.ID)
	}
	if stored.Version != order.Version {
		return domain.Order{}, conflictError("orders.update", "order %s version mismatch: stored %d, submitted %d", order.ID, stored.Version, order.Version)
	}

	next := order.Clone()
	next.Version++
	r.orders[order.ID] = next
	return next.Clone(), nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundError("orders.get", "order %s not found", orderID)
	}
	return order.Clone(), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	_ = ctx

	r.mu.RLock()
	matched := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if orderMatches(order, filter) {
			matched = append(matched, order.Clone())
		}
	}
	r.mu.RUnlock()

	sortOrders(matched, filter.SortBy, filter.SortDirection)

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return domain.Page[domain.Order]{Items: []domain.Order{}, TotalCount: total}, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return domain.Page[domain.Order]{Items: matched[start:end], TotalCount: total}, nil
}

func (r *OrderRepository) Statistics(ctx context.Context, dateRange domain.DateRange) (domain.OrderStatistics, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.OrderStatistics{CountsByStatus: make(map[domain.OrderStatus]int64)}
	for _, order := range r.orders {
		if !inDateRange(order, dateRange) {
			continue
		}
		stats.TotalOrders++
		stats.TotalRevenue += order.Pricing.Total
		stats.CountsByStatus[order.Status]++
	}
	if stats.TotalOrders > 0 {
		stats.AverageOrderValue = float64(stats.TotalRevenue) / float64(stats.TotalOrders)
	}
	return stats, nil
}

func orderMatches(order domain.Order, filter repositories.OrderListFilter) bool {
	if userID := strings.TrimSpace(filter.UserID); userID != "" && order.UserID != userID {
		return false
	}
	if len(filter.Status) > 0 && !containsStatus(filter.Status, order.Status) {
		return false
	}
	if len(filter.PaymentStatus) > 0 && !containsPaymentStatus(filter.PaymentStatus, order.Payment.Status) {
		return false
	}
	return inDateRange(order, filter.DateRange)
}

func inDateRange(order domain.Order, dateRange domain.DateRange) bool {
	if dateRange.From != nil && order.CreatedAt.Before(*dateRange.From) {
		return false
	}
	if dateRange.To != nil && order.CreatedAt.After(*dateRange.To) {
		return false
	}
	return true
}

func containsStatus(statuses []domain.OrderStatus, status domain.OrderStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func containsPaymentStatus(statuses []domain.PaymentStatus, status domain.PaymentStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func sortOrders(orders []domain.Order, field repositories.OrderSortField, dir repositories.SortDirection) {
	asc := dir == repositories.SortAsc
	sort.SliceStable(orders, func(i, j int) bool {
		var cmp int
		switch field {
		case repositories.OrderSortOrderNumber:
			cmp = strings.Compare(orders[i].OrderNumber, orders[j].OrderNumber)
		case repositories.OrderSortTotal:
			switch {
			case orders[i].Pricing.Total < orders[j].Pricing.Total:
				cmp = -1
			case orders[i].Pricing.Total > orders[j].Pricing.Total:
				cmp = 1
			}
		default:
			cmp = orders[i].CreatedAt.Compare(orders[j].CreatedAt)
		}
		if asc {
			return cmp < 0
		}
		return cmp > 0
	})
}
