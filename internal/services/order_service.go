package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/shopstream/api/internal/domain"
	"github.com/shopstream/api/internal/repositories"
)

const (
	orderEventCreated          = "order.created"
	orderEventStatusChanged    = "order.status.changed"
	orderEventTrackingAdded    = "order.tracking.added"
	orderEventPaymentCompleted = "order.payment.completed"
	orderEventRefunded         = "order.refunded"

	orderIDPrefix = "ord_"

	orderNumberCounter = "orders"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderPersistence indicates storage failed after inventory was already reserved.
	ErrOrderPersistence = errors.New("order: persistence failure")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Counters    repositories.CounterRepository
	Inventory   InventoryService
	Pricing     *PricingEngine
	Refunds     *RefundProcessor
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	counters   repositories.CounterRepository
	inventory  InventoryService
	pricing    *PricingEngine
	refunds    *RefundProcessor
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory service is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing engine is required")
	}

	refunds := deps.Refunds
	if refunds == nil {
		refunds = NewRefundProcessor(RefundPolicy{})
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		products:   deps.Products,
		counters:   deps.Counters,
		inventory:  deps.Inventory,
		pricing:    deps.Pricing,
		refunds:    refunds,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if err := validateCreateOrder(cmd); err != nil {
		return Order{}, err
	}

	// Resolve products and build line item snapshots before any stock is touched.
	items, err := s.resolveLineItems(ctx, cmd.Items)
	if err != nil {
		return Order{}, err
	}

	var discount int64
	coupon := cmd.Coupon
	if coupon != nil {
		if strings.TrimSpace(coupon.Code) == "" {
			return Order{}, fmt.Errorf("%w: coupon code is required", ErrOrderInvalidInput)
		}
		if coupon.Discount < 0 {
			return Order{}, fmt.Errorf("%w: coupon discount must be >= 0", ErrOrderInvalidInput)
		}
		c := *coupon
		coupon = &c
		discount = coupon.Discount
	}

	pricing, err := s.pricing.Quote(items, discount)
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	order := Order{
		ID:       orderIDPrefix + s.newID(),
		UserID:   strings.TrimSpace(cmd.UserID),
		Status:   domain.OrderStatusPending,
		Items:    items,
		Shipping: cmd.Shipping,
		Billing:  cmd.Billing,
		Payment: OrderPayment{
			Method: cmd.PaymentMethod,
			Status: domain.PaymentStatusPending,
		},
		Pricing:   pricing,
		Notes:     OrderNotes{Customer: strings.TrimSpace(cmd.CustomerNotes)},
		Gift:      cmd.Gift,
		Coupon:    coupon,
		Source:    orderSourceOrDefault(cmd.Source),
		Metadata:  cmd.Metadata.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}
	order.OrderNumber = number

	lines := order.ReservationLines()
	if _, err := s.inventory.Reserve(ctx, InventoryReserveCommand{
		OrderID: order.ID,
		Lines:   lines,
	}); err != nil {
		return Order{}, err
	}

	// From here on the reservation is held; any failure to persist, including
	// a caller that abandoned the request, must give the stock back.
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := txCtx.Err(); err != nil {
			return err
		}
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		s.compensateReservation(order.ID, lines, err)
		if errors.Is(err, ErrOrderConflict) {
			return Order{}, err
		}
		return Order{}, fmt.Errorf("%w: %v", ErrOrderPersistence, err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		ActorID:       order.UserID,
		OccurredAt:    now,
		Metadata:      metadataToAny(order.Metadata),
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) (domain.Page[Order], error) {
	filter := repositories.OrderListFilter{
		UserID:        strings.TrimSpace(query.UserID),
		Status:        query.Status,
		PaymentStatus: query.PaymentStatus,
		DateRange:     query.DateRange,
		Page:          query.Page,
		PageSize:      query.PageSize,
	}

	for _, status := range query.Status {
		if !domain.ValidOrderStatus(status) {
			return domain.Page[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}
	for _, status := range query.PaymentStatus {
		if !domain.ValidPaymentStatus(status) {
			return domain.Page[Order]{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, status)
		}
	}

	switch strings.TrimSpace(query.SortBy) {
	case "", "createdAt":
		filter.SortBy = repositories.OrderSortCreatedAt
	case "orderNumber":
		filter.SortBy = repositories.OrderSortOrderNumber
	case "total":
		filter.SortBy = repositories.OrderSortTotal
	default:
		return domain.Page[Order]{}, fmt.Errorf("%w: unknown sort field %q", ErrOrderInvalidInput, query.SortBy)
	}
	if query.SortDesc {
		filter.SortDirection = repositories.SortDesc
	} else {
		filter.SortDirection = repositories.SortAsc
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !domain.ValidOrderStatus(cmd.TargetStatus) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	prevStatus := order.Status

	if err := domain.ApplyStatus(&order, cmd.TargetStatus, now); err != nil {
		if errors.Is(err, domain.ErrInvalidStatusTransition) {
			return Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidState, err)
		}
		return Order{}, err
	}
	appendInternalNote(&order, cmd.InternalNote)

	updated, err := s.persistUpdate(ctx, order)
	if err != nil {
		return Order{}, err
	}

	// Cancellation frees the reserved stock; returns keep it out of the
	// sellable pool pending a manual restock decision.
	if cmd.TargetStatus == domain.OrderStatusCancelled {
		if _, err := s.inventory.Release(ctx, InventoryReleaseCommand{
			OrderID: updated.ID,
			Lines:   updated.ReservationLines(),
			Reason:  "order cancelled",
		}); err != nil {
			s.logger(ctx, "order_cancel_restock_failed", map[string]any{
				"order": updated.ID,
				"error": err.Error(),
			})
		}
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		UserID:         updated.UserID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(updated.Status),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     now,
	})

	return updated, nil
}

func (s *orderService) AddTracking(ctx context.Context, cmd AddTrackingCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	carrier := strings.TrimSpace(cmd.Carrier)
	trackingNumber := strings.TrimSpace(cmd.TrackingNumber)

	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if carrier == "" {
		return Order{}, fmt.Errorf("%w: carrier is required", ErrOrderInvalidInput)
	}
	if trackingNumber == "" {
		return Order{}, fmt.Errorf("%w: tracking number is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	prevStatus := order.Status

	// Tracking forces the shipped status; stamping converges with the plain
	// status path because both run through ApplyStatus.
	if order.Status != domain.OrderStatusShipped {
		if err := domain.ApplyStatus(&order, domain.OrderStatusShipped, now); err != nil {
			if errors.Is(err, domain.ErrInvalidStatusTransition) {
				return Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidState, err)
			}
			return Order{}, err
		}
	}

	order.Tracking.Carrier = carrier
	order.Tracking.TrackingNumber = trackingNumber
	order.Tracking.TrackingURL = strings.TrimSpace(cmd.TrackingURL)
	order.UpdatedAt = now

	updated, err := s.persistUpdate(ctx, order)
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventTrackingAdded,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		UserID:         updated.UserID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(updated.Status),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     now,
		Metadata: map[string]any{
			"carrier":        carrier,
			"trackingNumber": trackingNumber,
		},
	})

	return updated, nil
}

func (s *orderService) MarkPaymentCompleted(ctx context.Context, cmd MarkPaymentCompletedCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	switch order.Payment.Status {
	case domain.PaymentStatusPending, domain.PaymentStatusProcessing:
		// settleable
	case domain.PaymentStatusCompleted:
		return Order{}, fmt.Errorf("%w: payment already completed", ErrOrderConflict)
	default:
		return Order{}, fmt.Errorf("%w: payment status is %q", ErrOrderConflict, order.Payment.Status)
	}

	now := s.now()
	order.Payment.Status = domain.PaymentStatusCompleted
	order.Payment.TransactionID = strings.TrimSpace(cmd.TransactionID)
	order.Payment.PaidAt = &now
	order.UpdatedAt = now

	// A settled payment confirms a pending order.
	prevStatus := order.Status
	if order.Status == domain.OrderStatusPending {
		if err := domain.ApplyStatus(&order, domain.OrderStatusConfirmed, now); err != nil {
			return Order{}, err
		}
	}

	updated, err := s.persistUpdate(ctx, order)
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventPaymentCompleted,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		UserID:         updated.UserID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(updated.Status),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     now,
	})

	return updated, nil
}

func (s *orderService) ProcessRefund(ctx context.Context, cmd ProcessRefundCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	if err := s.refunds.Apply(&order, cmd.Amount, cmd.Reason, now); err != nil {
		return Order{}, err
	}

	updated, err := s.persistUpdate(ctx, order)
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventRefunded,
		OrderID:       updated.ID,
		OrderNumber:   updated.OrderNumber,
		UserID:        updated.UserID,
		CurrentStatus: string(updated.Status),
		ActorID:       strings.TrimSpace(cmd.ActorID),
		OccurredAt:    now,
		Metadata: map[string]any{
			"refundAmount": cmd.Amount,
		},
	})

	return updated, nil
}

func (s *orderService) GetStatistics(ctx context.Context, dateRange DateRange) (OrderStatistics, error) {
	if dateRange.From != nil && dateRange.To != nil && dateRange.To.Before(*dateRange.From) {
		return OrderStatistics{}, fmt.Errorf("%w: date range end precedes start", ErrOrderInvalidInput)
	}

	stats, err := s.orders.Statistics(ctx, dateRange)
	if err != nil {
		return OrderStatistics{}, s.mapRepositoryError(err)
	}
	return stats, nil
}

// resolveLineItems loads each product and snapshots name, image, and price
// into the order so later catalog edits never alter history.
func (s *orderService) resolveLineItems(ctx context.Context, items []CreateOrderItem) ([]LineItem, error) {
	resolved := make([]LineItem, 0, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		product, err := s.products.FindByID(ctx, productID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return nil, fmt.Errorf("%w: %s", ErrInventoryProductNotFound, productID)
			}
			return nil, s.mapRepositoryError(err)
		}
		if !product.IsActive {
			return nil, fmt.Errorf("%w: %s", ErrInventoryProductInactive, productID)
		}

		resolved = append(resolved, LineItem{
			ProductID:    product.ID,
			ProductName:  product.Name,
			ProductImage: product.PrimaryImageURL,
			Quantity:     item.Quantity,
			UnitPrice:    product.UnitPrice,
			Total:        product.UnitPrice * int64(item.Quantity),
		})
	}
	return resolved, nil
}

// compensateReservation gives reserved stock back after a failed persist. It
// runs on a detached context so a cancelled request cannot also cancel the
// compensation.
func (s *orderService) compensateReservation(orderID string, lines []ReservationLine, cause error) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(context.Background()), 10*time.Second)
	defer cancel()

	if _, err := s.inventory.Release(releaseCtx, InventoryReleaseCommand{
		OrderID: orderID,
		Lines:   lines,
		Reason:  "order persistence failed",
	}); err != nil {
		s.logger(releaseCtx, "order_compensation_failed", map[string]any{
			"order": orderID,
			"cause": cause.Error(),
			"error": err.Error(),
		})
		return
	}
	s.logger(releaseCtx, "order_reservation_compensated", map[string]any{
		"order": orderID,
		"cause": cause.Error(),
	})
}

func (s *orderService) persistUpdate(ctx context.Context, order Order) (Order, error) {
	var updated Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		result, err := s.orders.Update(txCtx, order)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		updated = result
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return updated, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

// generateOrderNumber combines the creation timestamp with a counter-derived
// suffix. Uniqueness is still enforced at the storage boundary on insert.
func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%d-%04d", now.UnixMilli(), seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order_event_publish_failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func validateCreateOrder(cmd CreateOrderCommand) error {
	if strings.TrimSpace(cmd.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	for i, item := range cmd.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("%w: item %d product id is required", ErrOrderInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be > 0", ErrOrderInvalidInput, i)
		}
	}
	if err := validateAddress("shipping", cmd.Shipping); err != nil {
		return err
	}
	if err := validateAddress("billing", cmd.Billing); err != nil {
		return err
	}
	if !domain.ValidPaymentMethod(cmd.PaymentMethod) {
		return fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}
	if cmd.Source != "" {
		switch cmd.Source {
		case domain.OrderSourceWeb, domain.OrderSourceMobile, domain.OrderSourceAPI, domain.OrderSourceAdmin:
		default:
			return fmt.Errorf("%w: unknown order source %q", ErrOrderInvalidInput, cmd.Source)
		}
	}
	if err := cmd.Metadata.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	return nil
}

func validateAddress(block string, addr Address) error {
	switch {
	case strings.TrimSpace(addr.FirstName) == "":
		return fmt.Errorf("%w: %s address first name is required", ErrOrderInvalidInput, block)
	case strings.TrimSpace(addr.LastName) == "":
		return fmt.Errorf("%w: %s address last name is required", ErrOrderInvalidInput, block)
	case strings.TrimSpace(addr.Address1) == "":
		return fmt.Errorf("%w: %s address line 1 is required", ErrOrderInvalidInput, block)
	case strings.TrimSpace(addr.City) == "":
		return fmt.Errorf("%w: %s address city is required", ErrOrderInvalidInput, block)
	case strings.TrimSpace(addr.PostalCode) == "":
		return fmt.Errorf("%w: %s address postal code is required", ErrOrderInvalidInput, block)
	case strings.TrimSpace(addr.Country) == "":
		return fmt.Errorf("%w: %s address country is required", ErrOrderInvalidInput, block)
	}
	return nil
}

func orderSourceOrDefault(source OrderSource) OrderSource {
	if source == "" {
		return domain.OrderSourceWeb
	}
	return source
}

func appendInternalNote(order *Order, note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if order.Notes.Internal != "" {
		note = order.Notes.Internal + "\n" + note
	}
	order.Notes.Internal = note
}

func metadataToAny(metadata Metadata) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		out[string(key)] = value
	}
	return out
}
