package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/shopstream/api/internal/domain"
	"github.com/shopstream/api/internal/repositories"
	"github.com/shopstream/api/internal/repositories/memory"
)

type capturingOrderPublisher struct {
	events []OrderEvent
	err    error
}

func (p *capturingOrderPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func (p *capturingOrderPublisher) last(t *testing.T) OrderEvent {
	t.Helper()
	if len(p.events) == 0 {
		t.Fatal("no order events published")
	}
	return p.events[len(p.events)-1]
}

// failingOrderRepository delegates everything except Insert, which fails.
type failingOrderRepository struct {
	repositories.OrderRepository
}

func (failingOrderRepository) Insert(context.Context, domain.Order) error {
	return errors.New("simulated storage outage")
}

type orderServiceFixture struct {
	service   OrderService
	registry  *memory.Registry
	publisher *capturingOrderPublisher
	now       *time.Time
}

func (f *orderServiceFixture) stock(t *testing.T, productID string) int {
	t.Helper()
	product, ok := f.registry.SeedInventory().Product(productID)
	if !ok {
		t.Fatalf("product %s not seeded", productID)
	}
	return product.Stock
}

func newOrderServiceFixture(t *testing.T, mutate func(deps *OrderServiceDeps)) *orderServiceFixture {
	t.Helper()

	registry := memory.NewRegistry()
	registry.SeedInventory().Seed(domain.Product{
		ID:              "prod_a",
		Name:            "Walnut Desk Organizer",
		UnitPrice:       10000,
		Stock:           5,
		IsActive:        true,
		PrimaryImageURL: "https://cdn.example.com/prod_a.jpg",
	})
	registry.SeedInventory().Seed(domain.Product{
		ID:        "prod_b",
		Name:      "Brass Pen Holder",
		UnitPrice: 5000,
		Stock:     1,
		IsActive:  true,
	})
	registry.SeedInventory().Seed(domain.Product{
		ID:        "prod_retired",
		Name:      "Discontinued Lamp",
		UnitPrice: 2000,
		Stock:     10,
		IsActive:  false,
	})

	inventory, err := NewInventoryService(InventoryServiceDeps{Inventory: registry.Inventory()})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}

	pricing, err := NewPricingEngine(PricingPolicy{
		TaxRate:               0.1,
		FreeShippingThreshold: 10000,
		FlatShippingFee:       1000,
	})
	if err != nil {
		t.Fatalf("NewPricingEngine: %v", err)
	}

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	publisher := &capturingOrderPublisher{}

	var seq int
	deps := OrderServiceDeps{
		Orders:    registry.Orders(),
		Products:  registry.Products(),
		Counters:  registry.Counters(),
		Inventory: inventory,
		Pricing:   pricing,
		Clock:     func() time.Time { return now },
		IDGenerator: func() string {
			seq++
			return fmt.Sprintf("test%08d", seq)
		},
		Events: publisher,
	}
	if mutate != nil {
		mutate(&deps)
	}

	service, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	return &orderServiceFixture{
		service:   service,
		registry:  registry,
		publisher: publisher,
		now:       &now,
	}
}

func baseCreateCommand() CreateOrderCommand {
	addr := Address{
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Address1:   "12 Analytical Way",
		City:       "London",
		PostalCode: "EC1A 1AA",
		Country:    "GB",
	}
	return CreateOrderCommand{
		UserID: "user_1",
		Items: []CreateOrderItem{
			{ProductID: "prod_a", Quantity: 2},
			{ProductID: "prod_b", Quantity: 1},
		},
		Shipping:      addr,
		Billing:       addr,
		PaymentMethod: domain.PaymentMethodCreditCard,
	}
}

func TestCreateOrder(t *testing.T) {
	f := newOrderServiceFixture(t, nil)

	order, err := f.service.CreateOrder(context.Background(), baseCreateCommand())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if order.Pricing.Subtotal != 25000 {
		t.Errorf("subtotal = %d, want 25000", order.Pricing.Subtotal)
	}
	if order.Pricing.Tax != 2500 {
		t.Errorf("tax = %d, want 2500", order.Pricing.Tax)
	}
	if order.Pricing.Shipping != 0 {
		t.Errorf("shipping = %d, want 0", order.Pricing.Shipping)
	}
	if order.Pricing.Total != 27500 {
		t.Errorf("total = %d, want 27500", order.Pricing.Total)
	}

	if got := f.stock(t, "prod_a"); got != 3 {
		t.Errorf("prod_a stock = %d, want 3", got)
	}
	if got := f.stock(t, "prod_b"); got != 0 {
		t.Errorf("prod_b stock = %d, want 0", got)
	}

	if order.Status != domain.OrderStatusPending {
		t.Errorf("status = %q, want pending", order.Status)
	}
	if order.Payment.Status != domain.PaymentStatusPending {
		t.Errorf("payment status = %q, want pending", order.Payment.Status)
	}
	if !strings.HasPrefix(order.OrderNumber, "ORD-") {
		t.Errorf("order number = %q, want ORD- prefix", order.OrderNumber)
	}
	if !strings.HasPrefix(order.ID, "ord_") {
		t.Errorf("order id = %q, want ord_ prefix", order.ID)
	}

	// Line items snapshot the catalog at order time.
	if len(order.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(order.Items))
	}
	first := order.Items[0]
	if first.ProductName != "Walnut Desk Organizer" || first.ProductImage != "https://cdn.example.com/prod_a.jpg" {
		t.Errorf("item snapshot = %+v", first)
	}
	if first.UnitPrice != 10000 || first.Total != 20000 {
		t.Errorf("item pricing = unit %d total %d", first.UnitPrice, first.Total)
	}

	stored, err := f.service.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if stored.OrderNumber != order.OrderNumber {
		t.Errorf("stored number = %q, want %q", stored.OrderNumber, order.OrderNumber)
	}

	event := f.publisher.last(t)
	if event.Type != "order.created" || event.OrderID != order.ID {
		t.Errorf("event = %+v", event)
	}
}

func TestCreateOrderInsufficientStockLeavesNoTrace(t *testing.T) {
	f := newOrderServiceFixture(t, nil)

	cmd := baseCreateCommand()
	cmd.Items = []CreateOrderItem{
		{ProductID: "prod_a", Quantity: 1},
		{ProductID: "prod_b", Quantity: 2},
	}

	_, err := f.service.CreateOrder(context.Background(), cmd)
	if !errors.Is(err, ErrInventoryInsufficientStock) {
		t.Fatalf("error = %v, want ErrInventoryInsufficientStock", err)
	}

	// All-or-nothing: the satisfiable line must not be decremented either.
	if got := f.stock(t, "prod_a"); got != 5 {
		t.Errorf("prod_a stock = %d, want untouched 5", got)
	}
	if got := f.stock(t, "prod_b"); got != 1 {
		t.Errorf("prod_b stock = %d, want untouched 1", got)
	}

	page, err := f.service.ListOrders(context.Background(), ListOrdersQuery{UserID: "user_1"})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if page.TotalCount != 0 {
		t.Errorf("orders persisted = %d, want 0", page.TotalCount)
	}
}

func TestCreateOrderRejectsInactiveAndMissingProducts(t *testing.T) {
	f := newOrderServiceFixture(t, nil)

	cmd := baseCreateCommand()
	cmd.Items = []CreateOrderItem{{ProductID: "prod_retired", Quantity: 1}}
	if _, err := f.service.CreateOrder(context.Background(), cmd); !errors.Is(err, ErrInventoryProductInactive) {
		t.Errorf("error = %v, want ErrInventoryProductInactive", err)
	}

	cmd.Items = []CreateOrderItem{{ProductID: "prod_ghost", Quantity: 1}}
	if _, err := f.service.CreateOrder(context.Background(), cmd); !errors.Is(err, ErrInventoryProductNotFound) {
		t.Errorf("error = %v, want ErrInventoryProductNotFound", err)
	}

	// Rejection happens before the ledger is touched.
	if got := f.stock(t, "prod_retired"); got != 10 {
		t.Errorf("prod_retired stock = %d, want 10", got)
	}
}

func TestCreateOrderCompensatesReservationOnInsertFailure(t *testing.T) {
	var released bool
	f := newOrderServiceFixture(t, func(deps *OrderServiceDeps) {
		deps.Orders = failingOrderRepository{OrderRepository: deps.Orders}
		deps.Logger = func(_ context.Context, event string, _ map[string]any) {
			if event == "order_reservation_compensated" {
				released = true
			}
		}
	})

	_, err := f.service.CreateOrder(context.Background(), baseCreateCommand())
	if !errors.Is(err, ErrOrderPersistence) {
		t.Fatalf("error = %v, want ErrOrderPersistence", err)
	}

	if !released {
		t.Error("compensating release was not logged")
	}
	if got := f.stock(t, "prod_a"); got != 5 {
		t.Errorf("prod_a stock = %d, want restored 5", got)
	}
	if got := f.stock(t, "prod_b"); got != 1 {
		t.Errorf("prod_b stock = %d, want restored 1", got)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	f := newOrderServiceFixture(t, nil)

	cases := []struct {
		name   string
		mutate func(cmd *CreateOrderCommand)
	}{
		{name: "missing user", mutate: func(cmd *CreateOrderCommand) { cmd.UserID = " " }},
		{name: "no items", mutate: func(cmd *CreateOrderCommand) { cmd.Items = nil }},
		{name: "zero quantity", mutate: func(cmd *CreateOrderCommand) { cmd.Items[0].Quantity = 0 }},
		{name: "missing shipping city", mutate: func(cmd *CreateOrderCommand) { cmd.Shipping.City = "" }},
		{name: "missing billing country", mutate: func(cmd *CreateOrderCommand) { cmd.Billing.Country = "" }},
		{name: "bad payment method", mutate: func(cmd *CreateOrderCommand) { cmd.PaymentMethod = "barter" }},
		{name: "bad source", mutate: func(cmd *CreateOrderCommand) { cmd.Source = "fax" }},
		{name: "blank coupon code", mutate: func(cmd *CreateOrderCommand) { cmd.Coupon = &Coupon{Discount: 100} }},
		{name: "negative coupon discount", mutate: func(cmd *CreateOrderCommand) { cmd.Coupon = &Coupon{Code: "OFF", Discount: -1} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := baseCreateCommand()
			tc.mutate(&cmd)
			if _, err := f.service.CreateOrder(context.Background(), cmd); !errors.Is(err, ErrOrderInvalidInput) {
				t.Errorf("error = %v, want ErrOrderInvalidInput", err)
			}
		})
	}
}

func TestCreateOrderNumbersStayDistinctBeyondFourDigits(t *testing.T) {
	f := newOrderServiceFixture(t, nil)

	// Same millisecond, sequences 10000 apart. A four-digit truncation of the
	// counter would make both numbers collide and the storage guard would
	// reject the second order.
	if _, err := f.registry.Counters().Next(context.Background(), orderNumberCounter, 9999); err != nil {
		t.Fatalf("advance counter: %v", err)
	}

	cmd := baseCreateCommand()
	cmd.Items = []CreateOrderItem{{ProductID: "prod_a", Quantity: 1}}

	first, err := f.service.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder #1: %v", err)
	}

	if _, err := f.registry.Counters().Next(context.Background(), orderNumberCounter, 9999); err != nil {
		t.Fatalf("advance counter: %v", err)
	}

	second, err := f.service.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder #2: %v", err)
	}

	if first.OrderNumber == second.OrderNumber {
		t.Fatalf("order numbers collided: %q", first.OrderNumber)
	}
	if !strings.HasSuffix(first.OrderNumber, "-10000") {
		t.Errorf("first number = %q, want -10000 suffix", first.OrderNumber)
	}
	if !strings.HasSuffix(second.OrderNumber, "-20000") {
		t.Errorf("second number = %q, want -20000 suffix", second.OrderNumber)
	}
}

func TestCreateOrderAppliesCouponDiscount(t *testing.T) {
	f := newOrderServiceFixture(t, nil)

	cmd := baseCreateCommand()
	cmd.Coupon = &Coupon{Code: "SPRING", Discount: 2500}

	order, err := f.service.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Pricing.Discount != 2500 {
		t.Errorf("discount = %d, want 2500", order.Pricing.Discount)
	}
	if order.Pricing.Total != 25000 {
		t.Errorf("total = %d, want 25000", order.Pricing.Total)
	}
	if order.Coupon == nil || order.Coupon.Code != "SPRING" {
		t.Errorf("coupon = %+v, want SPRING retained", order.Coupon)
	}
}

func TestUpdateOrderStatusLifecycle(t *testing.T) {
	f := newOrderServiceFixture(t, nil)

	order, err := f.service.CreateOrder(context.Background(), baseCreateCommand())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	confirmed, err := f.service.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusConfirmed,
		InternalNote: "payment verified manually",
		ActorID:      "admin_1",
	})
	if err != nil {
		t.Fatalf("UpdateOrderStatus: %v", err)
	}
	if confirmed.Status != domain.OrderStatusConfirmed {
		t.Errorf("status = %q, want confirmed", confirmed.Status)
	}
	if confirmed.Notes.Internal != "payment verified manually" {
		t.Errorf("internal notes = %q", confirmed.Notes.Internal)
	}
	if confirmed.Version != order.Version+1 {
		t.Errorf("version = %d, want %d", confirmed.Version, order.Version+1)
	}

	event := f.publisher.last(t)
	if event.Type != "order.status.changed" || event.PreviousStatus != "pending" || event.CurrentStatus != "confirmed" {
		t.Errorf("event = %+v", event)
	}

	// Skipping levels is rejected and the stored order is untouched.
	if _, err := f.service.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusDelivered,
	}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("error = %v, want ErrOrderInvalidState", err)
	}
	current, err := f.service.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if current.Status != domain.OrderStatusConfirmed {
		t.Errorf("status after rejected transition = %q, want confirmed", current.Status)
	}
}

func TestUpdateOrderStatusCancellationReleasesStock(t *testing.T) {
	f := newOrderServiceFixture(t, nil)

	order, err := f.service.CreateOrder(context.Background(), baseCreateCommand())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if got := f.stock(t, "prod_a"); got != 3 {
		t.Fatalf("prod_a stock = %d, want 3 after reserve", got)
	}

	cancelled, err := f.service.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusCancelled,
	})
	if err != nil {
		t.Fatalf("UpdateOrderStatus: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %q, want cancelled", cancelled.Status)
	}

	if got := f.stock(t, "prod_a"); got != 5 {
		t.Errorf("prod_a stock = %d, want restored 5", got)
	}
	if got := f.stock(t, "prod_b"); got != 1 {
		t.Errorf("prod_b stock = %d, want restored 1", got)
	}

	// Cancelled is terminal.
	if _, err := f.service.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusConfirmed,
	}); !errors.Is(err, ErrOrderInvalidState) {
		t.Errorf("error = %v, want ErrOrderInvalidState from terminal status", err)
	}
}

func TestReturnDoesNotRestock(t *testing.T) {
	f := newOrderServiceFixture(t, nil)

	order, err := f.service.CreateOrder(context.Background(), baseCreateCommand())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	for _, status := range []OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusReturned,
	} {
		if _, err := f.service.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{
			OrderID:      order.ID,
			TargetStatus: status,
		}); err != nil {
			t.Fatalf("UpdateOrderStatus(%s): %v", status, err)
		}
	}

	// Returned goods wait for a manual restock decision.
	if got := f.stock(t, "prod_a"); got != 3 {
		t.Errorf("prod_a stock = %d, want 3 after return", got)
	}
}

func TestAddTrackingForcesShippedAndStampsOnce(t *testing.T) {
	f := newOrderServiceFixture(t, nil)

	order, err := f.service.CreateOrder(context.Background(), baseCreateCommand())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	for _, status := range []OrderStatus{domain.OrderStatusConfirmed, domain.OrderStatusProcessing} {
		if _, err := f.service.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{
			OrderID:      order.ID,
			TargetStatus: status,
		}); err != nil {
			t.Fatalf("UpdateOrderStatus(%s): %v", status, err)
		}
	}

	firstStamp := *f.now
	shipped, err := f.service.AddTracking(context.Background(), AddTrackingCommand{
		OrderID:        order.ID,
		Carrier:        "UPS",
		TrackingNumber: "1Z999",
		TrackingURL:    "https://track.example.com/1Z999",
	})
	if err != nil {
		t.Fatalf("AddTracking: %v", err)
	}
	if shipped.Status != domain.OrderStatusShipped {
		t.Errorf("status = %q, want shipped", shipped.Status)
	}
	if shipped.Tracking.Carrier != "UPS" || shipped.Tracking.TrackingNumber != "1Z999" {
		t.Errorf("tracking = %+v", shipped.Tracking)
	}
	if shipped.Tracking.ShippedAt == nil || !shipped.Tracking.ShippedAt.Equal(firstStamp) {
		t.Errorf("shippedAt = %v, want %v", shipped.Tracking.ShippedAt, firstStamp)
	}

	// Correcting the tracking number later keeps the original ship time.
	*f.now = f.now.Add(48 * time.Hour)
	corrected, err := f.service.AddTracking(context.Background(), AddTrackingCommand{
		OrderID:        order.ID,
		Carrier:        "FedEx",
		TrackingNumber: "FX123",
	})
	if err != nil {
		t.Fatalf("AddTracking update: %v", err)
	}
	if corrected.Tracking.Carrier != "FedEx" || corrected.Tracking.TrackingNumber != "FX123" {
		t.Errorf("tracking = %+v", corrected.Tracking)
	}
	if corrected.Tracking.ShippedAt == nil || !corrected.Tracking.ShippedAt.Equal(firstStamp) {
		t.Errorf("shippedAt = %v, want first stamp %v preserved", corrected.Tracking.ShippedAt, firstStamp)
	}
}

func TestAddTrackingRejectsPendingOrder(t *testing.T) {
	f := newOrderServiceFixture(t, nil)

	order, err := f.service.CreateOrder(context.Background(), baseCreateCommand())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if _, err := f.service.AddTracking(context.Background(), AddTrackingCommand{
		OrderID:        order.ID,
		Carrier:        "UPS",
		TrackingNumber: "1Z999",
	}); !errors.Is(err, ErrOrderInvalidState) {
		t.Errorf("error = %v, want ErrOrderInvalidState", err)
	}
}

func TestMarkPaymentCompleted(t *testing.T) {
	f := newOrderServiceFixture(t, nil)

	order, err := f.service.CreateOrder(context.Background(), baseCreateCommand())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	paid, err := f.service.MarkPaymentCompleted(context.Background(), MarkPaymentCompletedCommand{
		OrderID:       order.ID,
		TransactionID: "txn_42",
	})
	if err != nil {
		t.Fatalf("MarkPaymentCompleted: %v", err)
	}
	if paid.Payment.Status != domain.PaymentStatusCompleted {
		t.Errorf("payment status = %q, want completed", paid.Payment.Status)
	}
	if paid.Payment.TransactionID != "txn_42" {
		t.Errorf("transaction id = %q", paid.Payment.TransactionID)
	}
	if paid.Payment.PaidAt == nil {
		t.Error("paidAt not stamped")
	}
	if paid.Status != domain.OrderStatusConfirmed {
		t.Errorf("status = %q, want confirmed after settlement", paid.Status)
	}

	if _, err := f.service.MarkPaymentCompleted(context.Background(), MarkPaymentCompletedCommand{
		OrderID: order.ID,
	}); !errors.Is(err, ErrOrderConflict) {
		t.Errorf("error = %v, want ErrOrderConflict on double settle", err)
	}
}

func TestProcessRefund(t *testing.T) {
	f := newOrderServiceFixture(t, nil)

	order, err := f.service.CreateOrder(context.Background(), baseCreateCommand())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	// Refund requires a completed payment.
	if _, err := f.service.ProcessRefund(context.Background(), ProcessRefundCommand{
		OrderID: order.ID,
		Amount:  1000,
	}); !errors.Is(err, ErrRefundNotAllowed) {
		t.Fatalf("error = %v, want ErrRefundNotAllowed before settlement", err)
	}

	if _, err := f.service.MarkPaymentCompleted(context.Background(), MarkPaymentCompletedCommand{
		OrderID: order.ID,
	}); err != nil {
		t.Fatalf("MarkPaymentCompleted: %v", err)
	}

	if _, err := f.service.ProcessRefund(context.Background(), ProcessRefundCommand{
		OrderID: order.ID,
		Amount:  27501,
	}); !errors.Is(err, ErrRefundNotAllowed) {
		t.Fatalf("error = %v, want ErrRefundNotAllowed above total", err)
	}

	refunded, err := f.service.ProcessRefund(context.Background(), ProcessRefundCommand{
		OrderID: order.ID,
		Amount:  27500,
		Reason:  "customer request",
	})
	if err != nil {
		t.Fatalf("ProcessRefund: %v", err)
	}
	if refunded.Payment.Status != domain.PaymentStatusRefunded {
		t.Errorf("payment status = %q, want refunded", refunded.Payment.Status)
	}
	if refunded.Payment.RefundAmount != 27500 {
		t.Errorf("refund amount = %d", refunded.Payment.RefundAmount)
	}
	if refunded.Payment.RefundedAt == nil {
		t.Error("refundedAt not stamped")
	}
	// Refunds do not change fulfillment status or restock by themselves.
	if refunded.Status != domain.OrderStatusConfirmed {
		t.Errorf("status = %q, want confirmed", refunded.Status)
	}
	if got := f.stock(t, "prod_a"); got != 3 {
		t.Errorf("prod_a stock = %d, want 3", got)
	}

	event := f.publisher.last(t)
	if event.Type != "order.refunded" {
		t.Errorf("event type = %q", event.Type)
	}

	persisted, err := f.service.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if persisted.Payment.Status != domain.PaymentStatusRefunded {
		t.Errorf("persisted payment status = %q, want refunded", persisted.Payment.Status)
	}
}

func TestListOrdersFiltersAndRejectsBadInput(t *testing.T) {
	f := newOrderServiceFixture(t, nil)

	for range 3 {
		if _, err := f.service.CreateOrder(context.Background(), baseCreateCommand()); err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
		// Restock so every iteration can reserve.
		if _, err := f.registry.Inventory().Release(context.Background(), repositories.InventoryReleaseRequest{
			Lines:   []ReservationLine{{ProductID: "prod_a", Quantity: 2}, {ProductID: "prod_b", Quantity: 1}},
			OrderID: "restock",
			Now:     *f.now,
		}); err != nil {
			t.Fatalf("restock: %v", err)
		}
	}

	page, err := f.service.ListOrders(context.Background(), ListOrdersQuery{
		UserID:   "user_1",
		Status:   []OrderStatus{domain.OrderStatusPending},
		Page:     1,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if page.TotalCount != 3 {
		t.Errorf("total = %d, want 3", page.TotalCount)
	}
	if len(page.Items) != 2 {
		t.Errorf("items = %d, want page size 2", len(page.Items))
	}

	if _, err := f.service.ListOrders(context.Background(), ListOrdersQuery{SortBy: "subtotal"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Errorf("error = %v, want ErrOrderInvalidInput for unknown sort", err)
	}
	if _, err := f.service.ListOrders(context.Background(), ListOrdersQuery{Status: []OrderStatus{"archived"}}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Errorf("error = %v, want ErrOrderInvalidInput for unknown status", err)
	}
}

func TestGetStatistics(t *testing.T) {
	f := newOrderServiceFixture(t, nil)

	order, err := f.service.CreateOrder(context.Background(), baseCreateCommand())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	stats, err := f.service.GetStatistics(context.Background(), DateRange{})
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if stats.TotalOrders != 1 {
		t.Errorf("total orders = %d, want 1", stats.TotalOrders)
	}
	if stats.TotalRevenue != order.Pricing.Total {
		t.Errorf("revenue = %d, want %d", stats.TotalRevenue, order.Pricing.Total)
	}
	if stats.CountsByStatus[domain.OrderStatusPending] != 1 {
		t.Errorf("pending count = %d, want 1", stats.CountsByStatus[domain.OrderStatusPending])
	}

	from := f.now.Add(time.Hour)
	to := f.now.Add(-time.Hour)
	if _, err := f.service.GetStatistics(context.Background(), DateRange{From: &from, To: &to}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Errorf("error = %v, want ErrOrderInvalidInput for inverted range", err)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	f := newOrderServiceFixture(t, nil)

	if _, err := f.service.GetOrder(context.Background(), "ord_missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("error = %v, want ErrOrderNotFound", err)
	}
	if _, err := f.service.GetOrder(context.Background(), " "); !errors.Is(err, ErrOrderInvalidInput) {
		t.Errorf("error = %v, want ErrOrderInvalidInput", err)
	}
}
