package domain

import (
	"errors"
	"testing"
	"time"
)

var allStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusReturned,
}

func TestCanTransitionTable(t *testing.T) {
	allowed := map[OrderStatus][]OrderStatus{
		OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
		OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
		OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
		OrderStatusShipped:    {OrderStatusDelivered, OrderStatusReturned},
		OrderStatusDelivered:  {OrderStatusReturned},
		OrderStatusCancelled:  {},
		OrderStatusReturned:   {},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestApplyStatusRejectsInvalidEdgeAndLeavesOrderUnchanged(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	order := &Order{Status: OrderStatusCancelled, UpdatedAt: now.Add(-time.Hour)}

	err := ApplyStatus(order, OrderStatusConfirmed, now)
	if !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
	if order.Status != OrderStatusCancelled {
		t.Fatalf("status mutated to %s on invalid transition", order.Status)
	}
	if !order.UpdatedAt.Equal(now.Add(-time.Hour)) {
		t.Fatalf("updatedAt mutated on invalid transition")
	}
}

func TestApplyStatusRejectsUnknownStatus(t *testing.T) {
	order := &Order{Status: OrderStatusPending}
	if err := ApplyStatus(order, OrderStatus("archived"), time.Now()); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition for unknown status, got %v", err)
	}
}

func TestApplyStatusStampsShippedAtOnce(t *testing.T) {
	first := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	later := first.Add(2 * time.Hour)

	order := &Order{Status: OrderStatusProcessing}
	if err := ApplyStatus(order, OrderStatusShipped, first); err != nil {
		t.Fatalf("processing -> shipped: %v", err)
	}
	if order.Tracking.ShippedAt == nil || !order.Tracking.ShippedAt.Equal(first) {
		t.Fatalf("shippedAt = %v, want %v", order.Tracking.ShippedAt, first)
	}

	if err := ApplyStatus(order, OrderStatusDelivered, later); err != nil {
		t.Fatalf("shipped -> delivered: %v", err)
	}
	if !order.Tracking.ShippedAt.Equal(first) {
		t.Fatalf("shippedAt rewritten to %v", order.Tracking.ShippedAt)
	}
	if order.Tracking.DeliveredAt == nil || !order.Tracking.DeliveredAt.Equal(later) {
		t.Fatalf("deliveredAt = %v, want %v", order.Tracking.DeliveredAt, later)
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, status := range allStatuses {
		terminal := status == OrderStatusCancelled || status == OrderStatusReturned
		if got := IsTerminalStatus(status); got != terminal {
			t.Errorf("IsTerminalStatus(%s) = %v, want %v", status, got, terminal)
		}
	}
}

func TestMetadataValidate(t *testing.T) {
	valid := Metadata{MetadataKeyCampaign: "spring", MetadataKeyWarehouse: "east-1"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid metadata rejected: %v", err)
	}

	invalid := Metadata{MetadataKey("color"): "red"}
	if err := invalid.Validate(); !errors.Is(err, ErrMetadataKeyUnknown) {
		t.Fatalf("expected ErrMetadataKeyUnknown, got %v", err)
	}
}
