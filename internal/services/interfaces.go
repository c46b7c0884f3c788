package services

import (
	"context"
	"time"

	domain "github.com/shopstream/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order           = domain.Order
	OrderStatus     = domain.OrderStatus
	LineItem        = domain.LineItem
	Address         = domain.Address
	OrderPayment    = domain.OrderPayment
	OrderPricing    = domain.OrderPricing
	OrderTracking   = domain.OrderTracking
	OrderNotes      = domain.OrderNotes
	GiftInfo        = domain.GiftInfo
	Coupon          = domain.Coupon
	PaymentMethod   = domain.PaymentMethod
	PaymentStatus   = domain.PaymentStatus
	OrderSource     = domain.OrderSource
	Product         = domain.Product
	ReservationLine = domain.ReservationLine
	OrderStatistics = domain.OrderStatistics
	DateRange       = domain.DateRange
	Metadata        = domain.Metadata
)

// OrderService orchestrates order creation, lifecycle transitions, tracking,
// refunds, and reporting over the inventory ledger and order storage.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) (domain.Page[Order], error)
	UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	AddTracking(ctx context.Context, cmd AddTrackingCommand) (Order, error)
	MarkPaymentCompleted(ctx context.Context, cmd MarkPaymentCompletedCommand) (Order, error)
	ProcessRefund(ctx context.Context, cmd ProcessRefundCommand) (Order, error)
	GetStatistics(ctx context.Context, dateRange DateRange) (OrderStatistics, error)
}

// InventoryService fronts the stock ledger for availability checks and
// atomic reserve/release batches.
type InventoryService interface {
	CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error)
	Reserve(ctx context.Context, cmd InventoryReserveCommand) (InventoryAdjustment, error)
	Release(ctx context.Context, cmd InventoryReleaseCommand) (InventoryAdjustment, error)
}

// CreateOrderItem names a product and the quantity to order.
type CreateOrderItem struct {
	ProductID string
	Quantity  int
}

// CreateOrderCommand carries everything needed to place an order.
type CreateOrderCommand struct {
	UserID        string
	Items         []CreateOrderItem
	Shipping      Address
	Billing       Address
	PaymentMethod PaymentMethod
	CustomerNotes string
	Gift          GiftInfo
	Coupon        *Coupon
	Source        OrderSource
	Metadata      Metadata
}

// ListOrdersQuery narrows, sorts, and paginates an order listing.
type ListOrdersQuery struct {
	UserID        string
	Status        []OrderStatus
	PaymentStatus []PaymentStatus
	DateRange     DateRange
	SortBy        string
	SortDesc      bool
	Page          int
	PageSize      int
}

// UpdateOrderStatusCommand moves an order along the lifecycle table.
type UpdateOrderStatusCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	InternalNote string
	ActorID      string
}

// AddTrackingCommand records carrier hand-off and forces the shipped status.
type AddTrackingCommand struct {
	OrderID        string
	Carrier        string
	TrackingNumber string
	TrackingURL    string
	ActorID        string
}

// MarkPaymentCompletedCommand settles the payment sub-record.
type MarkPaymentCompletedCommand struct {
	OrderID       string
	TransactionID string
	ActorID       string
}

// ProcessRefundCommand refunds part or all of a completed payment.
type ProcessRefundCommand struct {
	OrderID string
	Amount  int64
	Reason  string
	ActorID string
}

// InventoryReserveCommand decrements stock for the whole line set atomically.
type InventoryReserveCommand struct {
	OrderID string
	Lines   []ReservationLine
}

// InventoryReleaseCommand restores previously reserved stock.
type InventoryReleaseCommand struct {
	OrderID string
	Lines   []ReservationLine
	Reason  string
}

// InventoryAdjustment reports post-mutation stock per product.
type InventoryAdjustment struct {
	Stocks map[string]StockLevel
}

// StockLevel is one product's stock after a ledger mutation.
type StockLevel struct {
	ProductID string
	Stock     int
	UpdatedAt time.Time
}

// InventoryStockEvent notifies downstream consumers of a stock mutation.
type InventoryStockEvent struct {
	Type       string
	OrderID    string
	ProductID  string
	Delta      int
	Stock      int
	Reason     string
	OccurredAt time.Time
}

// InventoryEventPublisher accepts inventory stock change notifications for downstream processing.
type InventoryEventPublisher interface {
	PublishInventoryEvent(ctx context.Context, event InventoryStockEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}
