package domain

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrInvalidStatusTransition indicates a status change outside the transition table.
var ErrInvalidStatusTransition = errors.New("order: invalid status transition")

// orderStatusTransitions is the authoritative lifecycle table. Cancelled and
// returned carry no outgoing edges and are therefore terminal.
var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusReturned},
	OrderStatusDelivered:  {OrderStatusReturned},
	OrderStatusCancelled:  {},
	OrderStatusReturned:   {},
}

// CanTransition reports whether the lifecycle table contains the edge from -> to.
func CanTransition(from, to OrderStatus) bool {
	next, ok := orderStatusTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(next, to)
}

// IsTerminalStatus reports whether the status has no outgoing edges.
func IsTerminalStatus(status OrderStatus) bool {
	next, ok := orderStatusTransitions[status]
	return ok && len(next) == 0
}

// TransitionsFrom returns the statuses reachable in one step from the given status.
func TransitionsFrom(status OrderStatus) []OrderStatus {
	next, ok := orderStatusTransitions[status]
	if !ok {
		return nil
	}
	return slices.Clone(next)
}

// ApplyStatus moves the order along a lifecycle edge, stamping tracking
// timestamps for shipped/delivered. The stamps are first-write-wins so that
// UpdateStatus and AddTracking converge on the same value. The order is left
// unchanged when the edge is absent from the table.
func ApplyStatus(o *Order, target OrderStatus, now time.Time) error {
	if o == nil {
		return errors.New("order: nil order")
	}
	if !ValidOrderStatus(target) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidStatusTransition, target)
	}
	if !CanTransition(o.Status, target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, o.Status, target)
	}

	o.Status = target
	o.UpdatedAt = now

	switch target {
	case OrderStatusShipped:
		if o.Tracking.ShippedAt == nil {
			stamp := now
			o.Tracking.ShippedAt = &stamp
		}
	case OrderStatusDelivered:
		if o.Tracking.DeliveredAt == nil {
			stamp := now
			o.Tracking.DeliveredAt = &stamp
		}
	}

	return nil
}
