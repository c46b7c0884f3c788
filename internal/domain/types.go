package domain

import "time"

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed but not yet confirmed.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the order was accepted for fulfilment.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being picked and packed.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to a carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the carrier reported delivery.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before shipment.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusReturned indicates the customer returned the order.
	OrderStatusReturned OrderStatus = "returned"
)

// PaymentStatus enumerates payment sub-record states.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// PaymentMethod enumerates accepted tender types.
type PaymentMethod string

const (
	PaymentMethodCreditCard     PaymentMethod = "credit_card"
	PaymentMethodDebitCard      PaymentMethod = "debit_card"
	PaymentMethodPayPal         PaymentMethod = "paypal"
	PaymentMethodStripe         PaymentMethod = "stripe"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// OrderSource identifies the channel an order was placed through.
type OrderSource string

const (
	OrderSourceWeb    OrderSource = "web"
	OrderSourceMobile OrderSource = "mobile"
	OrderSourceAPI    OrderSource = "api"
	OrderSourceAdmin  OrderSource = "admin"
)

// Order is the aggregate root: header, line items, payment, pricing, and
// tracking sub-records persisted as one unit of consistency.
type Order struct {
	ID          string
	OrderNumber string
	UserID      string
	Status      OrderStatus
	Items       []LineItem
	Shipping    Address
	Billing     Address
	Payment     OrderPayment
	Pricing     OrderPricing
	Tracking    OrderTracking
	Notes       OrderNotes
	Gift        GiftInfo
	Coupon      *Coupon
	Source      OrderSource
	Metadata    Metadata
	// Version guards aggregate updates with an optimistic concurrency check.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineItem is one product-and-quantity entry carrying a snapshot of the
// product taken at order time so later catalog edits never alter history.
type LineItem struct {
	ProductID    string
	ProductName  string
	ProductImage string
	Quantity     int
	UnitPrice    int64
	Total        int64
}

// Address stores a shipping or billing address block.
type Address struct {
	FirstName  string
	LastName   string
	Company    string
	Address1   string
	Address2   string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// OrderPayment records the payment state attached to an order.
type OrderPayment struct {
	Method        PaymentMethod
	Status        PaymentStatus
	TransactionID string
	RefundAmount  int64
	PaidAt        *time.Time
	RefundedAt    *time.Time
}

// OrderPricing holds rolled-up monetary fields in the smallest currency unit.
type OrderPricing struct {
	Subtotal int64
	Tax      int64
	Shipping int64
	Discount int64
	Total    int64
}

// OrderTracking stores carrier hand-off details and delivery timestamps.
type OrderTracking struct {
	Carrier        string
	TrackingNumber string
	TrackingURL    string
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
}

// OrderNotes separates customer-visible notes from internal annotations.
type OrderNotes struct {
	Customer string
	Internal string
}

// GiftInfo flags an order as a gift and carries the optional message.
type GiftInfo struct {
	IsGift  bool
	Message string
}

// Coupon snapshots an applied coupon code and the discount it granted.
type Coupon struct {
	Code     string
	Discount int64
}

// Product is the catalog collaborator's view consumed by the core.
type Product struct {
	ID              string
	Name            string
	UnitPrice       int64
	Stock           int
	IsActive        bool
	PrimaryImageURL string
}

// ReservationLine pairs a product with the quantity to reserve or release.
type ReservationLine struct {
	ProductID string
	Quantity  int
}

// OrderStatistics aggregates revenue and status counts over a date range.
type OrderStatistics struct {
	TotalOrders       int64
	TotalRevenue      int64
	AverageOrderValue float64
	CountsByStatus    map[OrderStatus]int64
}

// DateRange bounds a statistics or listing query; either side may be nil.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Page wraps an offset-paginated result set together with the total match count.
type Page[T any] struct {
	Items      []T
	TotalCount int64
}

// AllOrderStatuses lists every lifecycle state in display order.
func AllOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned,
	}
}

// ValidPaymentMethod reports whether the supplied tender type is accepted.
func ValidPaymentMethod(method PaymentMethod) bool {
	switch method {
	case PaymentMethodCreditCard, PaymentMethodDebitCard, PaymentMethodPayPal,
		PaymentMethodStripe, PaymentMethodBankTransfer, PaymentMethodCashOnDelivery:
		return true
	}
	return false
}

// ValidOrderStatus reports whether the supplied status is a known lifecycle state.
func ValidOrderStatus(status OrderStatus) bool {
	switch status {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned:
		return true
	}
	return false
}

// ValidPaymentStatus reports whether the supplied payment status is known.
func ValidPaymentStatus(status PaymentStatus) bool {
	switch status {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted,
		PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusCancelled:
		return true
	}
	return false
}

// ReservationLines derives the ledger lines for the order's items.
func (o Order) ReservationLines() []ReservationLine {
	lines := make([]ReservationLine, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, ReservationLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

// Clone returns a deep copy of the order safe for concurrent readers.
func (o Order) Clone() Order {
	clone := o
	clone.Items = CloneItems(o.Items)
	clone.Metadata = o.Metadata.Clone()
	if o.Coupon != nil {
		coupon := *o.Coupon
		clone.Coupon = &coupon
	}
	clone.Payment.PaidAt = cloneTime(o.Payment.PaidAt)
	clone.Payment.RefundedAt = cloneTime(o.Payment.RefundedAt)
	clone.Tracking.ShippedAt = cloneTime(o.Tracking.ShippedAt)
	clone.Tracking.DeliveredAt = cloneTime(o.Tracking.DeliveredAt)
	return clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}

// CloneItems returns a defensive copy of the order's line items.
func CloneItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	cloned := make([]LineItem, len(items))
	copy(cloned, items)
	return cloned
}
