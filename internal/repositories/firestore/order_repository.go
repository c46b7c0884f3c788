package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/shopstream/api/internal/domain"
	pfirestore "github.com/shopstream/api/internal/platform/firestore"
	"github.com/shopstream/api/internal/repositories"
)

const (
	ordersCollection       = "orders"
	orderNumbersCollection = "orderNumbers"

	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

// OrderRepository persists order aggregates. Order numbers are claimed with a
// guard document in a second collection so a duplicate number fails the whole
// insert transaction.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	numbers  *pfirestore.BaseRepository[orderNumberDocument]
}

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	orders := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	numbers := pfirestore.NewBaseRepository[orderNumberDocument](provider, orderNumbersCollection, nil, nil)
	return &OrderRepository{provider: provider, orders: orders, numbers: numbers}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order insert: id is required")
	}
	if strings.TrimSpace(order.OrderNumber) == "" {
		return errors.New("order insert: order number is required")
	}

	doc := newOrderDocument(order)
	guard := orderNumberDocument{OrderID: order.ID, CreatedAt: order.CreatedAt.UTC()}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		numberRef, err := r.numbers.DocumentRef(ctx, order.OrderNumber)
		if err != nil {
			return err
		}
		if err := tx.Create(orderRef, doc); err != nil {
			return err
		}
		return tx.Create(numberRef, guard)
	})
	return pfirestore.WrapError("orders.insert", err)
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("order update: id is required")
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var stored orderDocument
		if err := snap.DataTo(&stored); err != nil {
			return fmt.Errorf("decode order %s: %w", order.ID, err)
		}
		if stored.Version != order.Version {
			return status.Errorf(codes.FailedPrecondition, "order %s version mismatch: stored %d, submitted %d", order.ID, stored.Version, order.Version)
		}

		next := order
		next.Version++
		doc := newOrderDocument(next)
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(order.ID)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.update", err)
	}
	return updated, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if r == nil || r.orders == nil {
		return domain.Page[domain.Order]{}, errors.New("order repository not initialised")
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultOrderPageSize
	}
	if pageSize > maxOrderPageSize {
		pageSize = maxOrderPageSize
	}

	narrow := orderFilterBuilder(filter)

	total, err := r.orders.Count(ctx, narrow)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = narrow(q)
		q = q.OrderBy(orderSortPath(filter.SortBy), sortDirection(filter.SortDirection))
		return q.Offset((page - 1) * pageSize).Limit(pageSize)
	})
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return domain.Page[domain.Order]{Items: orders, TotalCount: total}, nil
}

func (r *OrderRepository) Statistics(ctx context.Context, dateRange domain.DateRange) (domain.OrderStatistics, error) {
	if r == nil || r.provider == nil {
		return domain.OrderStatistics{}, errors.New("order repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.OrderStatistics{}, pfirestore.WrapError("orders.statistics", err)
	}

	base := dateRangeQuery(client.Collection(ordersCollection).Query, dateRange)

	results, err := base.NewAggregationQuery().
		WithCount("totalOrders").
		WithSum("pricing.total", "totalRevenue").
		WithAvg("pricing.total", "averageOrderValue").
		Get(ctx)
	if err != nil {
		return domain.OrderStatistics{}, pfirestore.WrapError("orders.statistics", err)
	}

	stats := domain.OrderStatistics{
		CountsByStatus: make(map[domain.OrderStatus]int64),
	}
	if stats.TotalOrders, err = pfirestore.AggregationInt(results, "totalOrders"); err != nil {
		return domain.OrderStatistics{}, err
	}
	if stats.TotalRevenue, err = pfirestore.AggregationInt(results, "totalRevenue"); err != nil {
		return domain.OrderStatistics{}, err
	}
	if stats.TotalOrders > 0 {
		if stats.AverageOrderValue, err = pfirestore.AggregationFloat(results, "averageOrderValue"); err != nil {
			return domain.OrderStatistics{}, err
		}
	}

	for _, statusValue := range domain.AllOrderStatuses() {
		query := dateRangeQuery(client.Collection(ordersCollection).Query, dateRange).
			Where("status", "==", string(statusValue))
		counts, err := query.NewAggregationQuery().WithCount("count").Get(ctx)
		if err != nil {
			return domain.OrderStatistics{}, pfirestore.WrapError("orders.statistics", err)
		}
		count, err := pfirestore.AggregationInt(counts, "count")
		if err != nil {
			return domain.OrderStatistics{}, err
		}
		if count > 0 {
			stats.CountsByStatus[statusValue] = count
		}
	}
	return stats, nil
}

func orderFilterBuilder(filter repositories.OrderListFilter) pfirestore.QueryBuilder {
	return func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("userId", "==", userID)
		}
		if len(filter.Status) > 0 {
			q = q.Where("status", "in", stringValues(filter.Status))
		}
		if len(filter.PaymentStatus) > 0 {
			q = q.Where("payment.status", "in", stringValues(filter.PaymentStatus))
		}
		return dateRangeQuery(q, filter.DateRange)
	}
}

func dateRangeQuery(q firestore.Query, dateRange domain.DateRange) firestore.Query {
	if dateRange.From != nil {
		q = q.Where("createdAt", ">=", dateRange.From.UTC())
	}
	if dateRange.To != nil {
		q = q.Where("createdAt", "<=", dateRange.To.UTC())
	}
	return q
}

func orderSortPath(field repositories.OrderSortField) string {
	switch field {
	case repositories.OrderSortOrderNumber:
		return "orderNumber"
	case repositories.OrderSortTotal:
		return "pricing.total"
	default:
		return "createdAt"
	}
}

func sortDirection(dir repositories.SortDirection) firestore.Direction {
	if dir == repositories.SortAsc {
		return firestore.Asc
	}
	return firestore.Desc
}

func stringValues[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// Document mapping ----------------------------------------------------------

type orderDocument struct {
	OrderNumber string              `firestore:"orderNumber"`
	UserID      string              `firestore:"userId"`
	Status      string              `firestore:"status"`
	Items       []lineItemDocument  `firestore:"items"`
	Shipping    addressDocument     `firestore:"shippingAddress"`
	Billing     addressDocument     `firestore:"billingAddress"`
	Payment     paymentDocument     `firestore:"payment"`
	Pricing     pricingDocument     `firestore:"pricing"`
	Tracking    trackingDocument    `firestore:"tracking"`
	Notes       notesDocument       `firestore:"notes"`
	Gift        giftDocument        `firestore:"gift"`
	Coupon      *couponDocument     `firestore:"coupon,omitempty"`
	Source      string              `firestore:"source"`
	Metadata    map[string]string   `firestore:"metadata,omitempty"`
	Version     int64               `firestore:"version"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	UpdatedAt   time.Time           `firestore:"updatedAt"`
}

type lineItemDocument struct {
	ProductID    string `firestore:"productId"`
	ProductName  string `firestore:"productName"`
	ProductImage string `firestore:"productImage,omitempty"`
	Quantity     int    `firestore:"quantity"`
	UnitPrice    int64  `firestore:"unitPrice"`
	Total        int64  `firestore:"total"`
}

type addressDocument struct {
	FirstName  string `firestore:"firstName"`
	LastName   string `firestore:"lastName"`
	Company    string `firestore:"company,omitempty"`
	Address1   string `firestore:"address1"`
	Address2   string `firestore:"address2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
	Phone      string `firestore:"phone,omitempty"`
}

type paymentDocument struct {
	Method        string     `firestore:"method"`
	Status        string     `firestore:"status"`
	TransactionID string     `firestore:"transactionId,omitempty"`
	RefundAmount  int64      `firestore:"refundAmount"`
	PaidAt        *time.Time `firestore:"paidAt,omitempty"`
	RefundedAt    *time.Time `firestore:"refundedAt,omitempty"`
}

type pricingDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Tax      int64 `firestore:"tax"`
	Shipping int64 `firestore:"shipping"`
	Discount int64 `firestore:"discount"`
	Total    int64 `firestore:"total"`
}

type trackingDocument struct {
	Carrier        string     `firestore:"carrier,omitempty"`
	TrackingNumber string     `firestore:"trackingNumber,omitempty"`
	TrackingURL    string     `firestore:"trackingUrl,omitempty"`
	ShippedAt      *time.Time `firestore:"shippedAt,omitempty"`
	DeliveredAt    *time.Time `firestore:"deliveredAt,omitempty"`
}

type notesDocument struct {
	Customer string `firestore:"customer,omitempty"`
	Internal string `firestore:"internal,omitempty"`
}

type giftDocument struct {
	IsGift  bool   `firestore:"isGift"`
	Message string `firestore:"message,omitempty"`
}

type couponDocument struct {
	Code     string `firestore:"code"`
	Discount int64  `firestore:"discount"`
}

type orderNumberDocument struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]lineItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = lineItemDocument{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductImage: item.ProductImage,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			Total:        item.Total,
		}
	}

	var coupon *couponDocument
	if order.Coupon != nil {
		coupon = &couponDocument{Code: order.Coupon.Code, Discount: order.Coupon.Discount}
	}

	var metadata map[string]string
	if len(order.Metadata) > 0 {
		metadata = make(map[string]string, len(order.Metadata))
		for key, value := range order.Metadata {
			metadata[string(key)] = value
		}
	}

	return orderDocument{
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		Items:       items,
		Shipping:    newAddressDocument(order.Shipping),
		Billing:     newAddressDocument(order.Billing),
		Payment: paymentDocument{
			Method:        string(order.Payment.Method),
			Status:        string(order.Payment.Status),
			TransactionID: order.Payment.TransactionID,
			RefundAmount:  order.Payment.RefundAmount,
			PaidAt:        utcPtr(order.Payment.PaidAt),
			RefundedAt:    utcPtr(order.Payment.RefundedAt),
		},
		Pricing: pricingDocument{
			Subtotal: order.Pricing.Subtotal,
			Tax:      order.Pricing.Tax,
			Shipping: order.Pricing.Shipping,
			Discount: order.Pricing.Discount,
			Total:    order.Pricing.Total,
		},
		Tracking: trackingDocument{
			Carrier:        order.Tracking.Carrier,
			TrackingNumber: order.Tracking.TrackingNumber,
			TrackingURL:    order.Tracking.TrackingURL,
			ShippedAt:      utcPtr(order.Tracking.ShippedAt),
			DeliveredAt:    utcPtr(order.Tracking.DeliveredAt),
		},
		Notes:     notesDocument{Customer: order.Notes.Customer, Internal: order.Notes.Internal},
		Gift:      giftDocument{IsGift: order.Gift.IsGift, Message: order.Gift.Message},
		Coupon:    coupon,
		Source:    string(order.Source),
		Metadata:  metadata,
		Version:   order.Version,
		CreatedAt: order.CreatedAt.UTC(),
		UpdatedAt: order.UpdatedAt.UTC(),
	}
}

func newAddressDocument(addr domain.Address) addressDocument {
	return addressDocument{
		FirstName:  addr.FirstName,
		LastName:   addr.LastName,
		Company:    addr.Company,
		Address1:   addr.Address1,
		Address2:   addr.Address2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.LineItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.LineItem{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductImage: item.ProductImage,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			Total:        item.Total,
		}
	}

	var coupon *domain.Coupon
	if d.Coupon != nil {
		coupon = &domain.Coupon{Code: d.Coupon.Code, Discount: d.Coupon.Discount}
	}

	var metadata domain.Metadata
	if len(d.Metadata) > 0 {
		metadata = make(domain.Metadata, len(d.Metadata))
		for key, value := range d.Metadata {
			metadata[domain.MetadataKey(key)] = value
		}
	}

	return domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		UserID:      d.UserID,
		Status:      domain.OrderStatus(d.Status),
		Items:       items,
		Shipping:    d.Shipping.toDomain(),
		Billing:     d.Billing.toDomain(),
		Payment: domain.OrderPayment{
			Method:        domain.PaymentMethod(d.Payment.Method),
			Status:        domain.PaymentStatus(d.Payment.Status),
			TransactionID: d.Payment.TransactionID,
			RefundAmount:  d.Payment.RefundAmount,
			PaidAt:        d.Payment.PaidAt,
			RefundedAt:    d.Payment.RefundedAt,
		},
		Pricing: domain.OrderPricing{
			Subtotal: d.Pricing.Subtotal,
			Tax:      d.Pricing.Tax,
			Shipping: d.Pricing.Shipping,
			Discount: d.Pricing.Discount,
			Total:    d.Pricing.Total,
		},
		Tracking: domain.OrderTracking{
			Carrier:        d.Tracking.Carrier,
			TrackingNumber: d.Tracking.TrackingNumber,
			TrackingURL:    d.Tracking.TrackingURL,
			ShippedAt:      d.Tracking.ShippedAt,
			DeliveredAt:    d.Tracking.DeliveredAt,
		},
		Notes:     domain.OrderNotes{Customer: d.Notes.Customer, Internal: d.Notes.Internal},
		Gift:      domain.GiftInfo{IsGift: d.Gift.IsGift, Message: d.Gift.Message},
		Coupon:    coupon,
		Source:    domain.OrderSource(d.Source),
		Metadata:  metadata,
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (d addressDocument) toDomain() domain.Address {
	return domain.Address{
		FirstName:  d.FirstName,
		LastName:   d.LastName,
		Company:    d.Company,
		Address1:   d.Address1,
		Address2:   d.Address2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
		Phone:      d.Phone,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
