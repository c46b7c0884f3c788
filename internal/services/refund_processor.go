package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/shopstream/api/internal/domain"
)

// ErrRefundNotAllowed indicates the refund violates payment-state preconditions.
var ErrRefundNotAllowed = errors.New("refund: not allowed")

// RefundPolicy controls optional behaviour layered on top of the refund rules.
// Refunds are a payment-state fact; moving the order itself to returned is a
// separate, explicitly opted-in policy.
type RefundPolicy struct {
	CascadeToReturned bool
}

// RefundProcessor validates and applies refunds against an order's payment state.
type RefundProcessor struct {
	policy RefundPolicy
}

// NewRefundProcessor builds a processor with the supplied policy.
func NewRefundProcessor(policy RefundPolicy) *RefundProcessor {
	return &RefundProcessor{policy: policy}
}

// Apply validates the refund and mutates the order's payment sub-record.
// Preconditions: the payment is completed and 0 < amount <= pricing.total.
// The order is left untouched when any precondition fails.
func (p *RefundProcessor) Apply(order *Order, amount int64, reason string, now time.Time) error {
	if order == nil {
		return fmt.Errorf("%w: order is required", ErrRefundNotAllowed)
	}
	if order.Payment.Status != domain.PaymentStatusCompleted {
		return fmt.Errorf("%w: payment status is %q, expected %q", ErrRefundNotAllowed, order.Payment.Status, domain.PaymentStatusCompleted)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be > 0", ErrRefundNotAllowed)
	}
	if amount > order.Pricing.Total {
		return fmt.Errorf("%w: amount %d exceeds order total %d", ErrRefundNotAllowed, amount, order.Pricing.Total)
	}

	stamped := now.UTC()
	order.Payment.Status = domain.PaymentStatusRefunded
	order.Payment.RefundAmount = amount
	order.Payment.RefundedAt = &stamped
	order.UpdatedAt = stamped

	if reason = strings.TrimSpace(reason); reason != "" {
		note := "refund: " + reason
		if order.Notes.Internal != "" {
			note = order.Notes.Internal + "\n" + note
		}
		order.Notes.Internal = note
	}

	if p.policy.CascadeToReturned && domain.CanTransition(order.Status, domain.OrderStatusReturned) {
		if err := domain.ApplyStatus(order, domain.OrderStatusReturned, stamped); err != nil {
			return err
		}
	}
	return nil
}
