package services

import (
	"errors"
	"testing"
	"time"

	domain "github.com/shopstream/api/internal/domain"
)

func refundableOrder() Order {
	paidAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return Order{
		ID:          "ord_refund",
		OrderNumber: "ORD-1-0001",
		UserID:      "user_1",
		Status:      domain.OrderStatusDelivered,
		Payment: OrderPayment{
			Method: domain.PaymentMethodCreditCard,
			Status: domain.PaymentStatusCompleted,
			PaidAt: &paidAt,
		},
		Pricing: OrderPricing{Subtotal: 10000, Tax: 1000, Total: 11000},
	}
}

func TestRefundProcessorApply(t *testing.T) {
	processor := NewRefundProcessor(RefundPolicy{})
	order := refundableOrder()
	now := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

	if err := processor.Apply(&order, 11000, "damaged in transit", now); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if order.Payment.Status != domain.PaymentStatusRefunded {
		t.Errorf("payment status = %q, want refunded", order.Payment.Status)
	}
	if order.Payment.RefundAmount != 11000 {
		t.Errorf("refund amount = %d, want 11000", order.Payment.RefundAmount)
	}
	if order.Payment.RefundedAt == nil || !order.Payment.RefundedAt.Equal(now) {
		t.Errorf("refundedAt = %v, want %v", order.Payment.RefundedAt, now)
	}
	if order.Notes.Internal != "refund: damaged in transit" {
		t.Errorf("internal notes = %q", order.Notes.Internal)
	}
	// Refunding by itself leaves the order status alone.
	if order.Status != domain.OrderStatusDelivered {
		t.Errorf("status = %q, want delivered untouched", order.Status)
	}
}

func TestRefundProcessorPartialRefund(t *testing.T) {
	processor := NewRefundProcessor(RefundPolicy{})
	order := refundableOrder()
	now := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

	if err := processor.Apply(&order, 3000, "", now); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if order.Payment.RefundAmount != 3000 {
		t.Errorf("refund amount = %d, want 3000", order.Payment.RefundAmount)
	}
	if order.Notes.Internal != "" {
		t.Errorf("internal notes = %q, want empty without a reason", order.Notes.Internal)
	}
}

func TestRefundProcessorPreconditions(t *testing.T) {
	processor := NewRefundProcessor(RefundPolicy{})
	now := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

	pendingPayment := refundableOrder()
	pendingPayment.Payment.Status = domain.PaymentStatusPending

	alreadyRefunded := refundableOrder()
	alreadyRefunded.Payment.Status = domain.PaymentStatusRefunded

	cases := []struct {
		name   string
		order  Order
		amount int64
	}{
		{name: "payment not completed", order: pendingPayment, amount: 1000},
		{name: "already refunded", order: alreadyRefunded, amount: 1000},
		{name: "zero amount", order: refundableOrder(), amount: 0},
		{name: "negative amount", order: refundableOrder(), amount: -500},
		{name: "amount exceeds total", order: refundableOrder(), amount: 11001},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := tc.order
			before := order
			err := processor.Apply(&order, tc.amount, "x", now)
			if !errors.Is(err, ErrRefundNotAllowed) {
				t.Fatalf("Apply error = %v, want ErrRefundNotAllowed", err)
			}
			if order.Payment.Status != before.Payment.Status || order.Payment.RefundAmount != before.Payment.RefundAmount {
				t.Error("rejected refund mutated the order")
			}
		})
	}
}

func TestRefundProcessorCascadeToReturned(t *testing.T) {
	processor := NewRefundProcessor(RefundPolicy{CascadeToReturned: true})
	order := refundableOrder()
	now := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

	if err := processor.Apply(&order, 11000, "return received", now); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if order.Status != domain.OrderStatusReturned {
		t.Errorf("status = %q, want returned with cascade enabled", order.Status)
	}
}

func TestRefundProcessorCascadeSkipsInvalidTransition(t *testing.T) {
	processor := NewRefundProcessor(RefundPolicy{CascadeToReturned: true})
	order := refundableOrder()
	order.Status = domain.OrderStatusConfirmed
	now := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

	// Confirmed cannot move to returned; the refund still lands and the
	// status stays where it was.
	if err := processor.Apply(&order, 11000, "", now); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Errorf("status = %q, want confirmed", order.Status)
	}
	if order.Payment.Status != domain.PaymentStatusRefunded {
		t.Errorf("payment status = %q, want refunded", order.Payment.Status)
	}
}
