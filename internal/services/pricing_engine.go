package services

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrPricingInvalidInput signals bad pricing inputs such as negative prices or quantities.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
)

// PricingPolicy carries the configurable parameters of the pricing formula.
// Monetary fields are in the smallest currency unit.
type PricingPolicy struct {
	TaxRate               float64
	FreeShippingThreshold int64
	FlatShippingFee       int64
}

// Validate rejects policies that would produce nonsensical quotes.
func (p PricingPolicy) Validate() error {
	if p.TaxRate < 0 || math.IsNaN(p.TaxRate) || math.IsInf(p.TaxRate, 0) {
		return fmt.Errorf("%w: tax rate must be a finite non-negative number", ErrPricingInvalidInput)
	}
	if p.FreeShippingThreshold < 0 {
		return fmt.Errorf("%w: free shipping threshold must be >= 0", ErrPricingInvalidInput)
	}
	if p.FlatShippingFee < 0 {
		return fmt.Errorf("%w: flat shipping fee must be >= 0", ErrPricingInvalidInput)
	}
	return nil
}

// PricingEngine computes order pricing from line items and a policy. It is a
// pure calculator: no I/O, no mutation of its inputs.
type PricingEngine struct {
	policy PricingPolicy
}

// NewPricingEngine validates the policy and returns a ready engine.
func NewPricingEngine(policy PricingPolicy) (*PricingEngine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &PricingEngine{policy: policy}, nil
}

// Policy returns the configured pricing parameters.
func (e *PricingEngine) Policy() PricingPolicy {
	return e.policy
}

// Quote rolls up subtotal, tax, shipping, and discount into a total. A
// discount larger than the pre-discount sum clamps the total to zero.
func (e *PricingEngine) Quote(items []LineItem, discount int64) (OrderPricing, error) {
	if len(items) == 0 {
		return OrderPricing{}, fmt.Errorf("%w: at least one line item is required", ErrPricingInvalidInput)
	}
	if discount < 0 {
		return OrderPricing{}, fmt.Errorf("%w: discount must be >= 0", ErrPricingInvalidInput)
	}

	var subtotal int64
	for i, item := range items {
		if item.Quantity <= 0 {
			return OrderPricing{}, fmt.Errorf("%w: item %d quantity must be > 0", ErrPricingInvalidInput, i)
		}
		if item.UnitPrice < 0 {
			return OrderPricing{}, fmt.Errorf("%w: item %d unit price must be >= 0", ErrPricingInvalidInput, i)
		}
		expected := item.UnitPrice * int64(item.Quantity)
		if item.Total != 0 && item.Total != expected {
			return OrderPricing{}, fmt.Errorf("%w: item %d total %d does not match %d x %d", ErrPricingInvalidInput, i, item.Total, item.UnitPrice, item.Quantity)
		}
		subtotal += expected
	}

	tax := int64(math.Round(float64(subtotal) * e.policy.TaxRate))

	var shipping int64
	if subtotal < e.policy.FreeShippingThreshold {
		shipping = e.policy.FlatShippingFee
	}

	total := subtotal + tax + shipping - discount
	if total < 0 {
		total = 0
	}

	return OrderPricing{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Discount: discount,
		Total:    total,
	}, nil
}
