package domain

import "github.com/shopspring/decimal"

// DeriveStatus applies the payment state machine: fully paid is PAID, any
// positive payment short of the final amount is PARTIAL, otherwise the
// current status stands.
func DeriveStatus(final, paid decimal.Decimal, current Status) Status {
	switch {
	case paid.GreaterThanOrEqual(final):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	default:
		return current
	}
}
