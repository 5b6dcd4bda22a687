package rewards

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/salonhub/internal/model"
)

var hundred = decimal.NewFromInt(100)

// ApplyDiscounts последовательно применяет скидки к сумме заказа.
// Каждая скидка считается от остатка после предыдущих, итог не опускается ниже нуля.
func ApplyDiscounts(subtotal decimal.Decimal, discounts []model.Discount) model.Quote {
	if subtotal.IsNegative() {
		subtotal = decimal.Zero
	}
	subtotal = subtotal.Round(2)

	remaining := subtotal
	applied := make([]model.AppliedDiscount, 0, len(discounts))

	for _, d := range discounts {
		amount := discountAmount(remaining, d)
		remaining = remaining.Sub(amount)
		applied = append(applied, model.AppliedDiscount{Discount: d, Amount: amount})
	}

	return model.Quote{
		Subtotal:      subtotal,
		TotalDiscount: subtotal.Sub(remaining),
		Total:         remaining,
		Applied:       applied,
		Rejected:      []model.RejectedDiscount{},
	}
}

func discountAmount(remaining decimal.Decimal, d model.Discount) decimal.Decimal {
	value := d.Value
	if value.IsNegative() {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch d.Type {
	case model.DiscountTypePercentage:
		if value.GreaterThan(hundred) {
			value = hundred
		}
		amount = remaining.Mul(value).Div(hundred).Round(2)
	case model.DiscountTypeFixed:
		amount = value.Round(2)
	default:
		return decimal.Zero
	}

	if amount.GreaterThan(remaining) {
		return remaining
	}
	return amount
}
