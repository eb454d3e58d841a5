// Package feepolicy turns registered credits and a tuition policy into the
// amounts printed on an invoice. It has no state and performs no I/O.
package feepolicy

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

type Mode string

const (
	ModePerCredit   Mode = "PER_CREDIT"
	ModeFlat        Mode = "FLAT"
	ModePerResource Mode = "PER_RESOURCE"
)

var (
	ErrInvalidMode     = errors.New("invalid_billing_mode")
	ErrInvalidDiscount = errors.New("invalid_discount_percentage")
	ErrInvalidRate     = errors.New("invalid_rate")
	ErrInvalidCredits  = errors.New("invalid_credits")
)

var hundred = decimal.NewFromInt(100)

// ParseMode accepts the mode names case-insensitively.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(raw))) {
	case ModePerCredit:
		return ModePerCredit, nil
	case ModeFlat:
		return ModeFlat, nil
	case ModePerResource:
		return ModePerResource, nil
	default:
		return "", ErrInvalidMode
	}
}

type Input struct {
	Mode               Mode
	Credits            int
	AmountPerCredit    decimal.Decimal
	SemesterFee        decimal.Decimal
	ResourcePrice      decimal.Decimal
	DiscountPercentage decimal.Decimal
}

type Quote struct {
	Base     decimal.Decimal
	Discount decimal.Decimal
}

// Compute returns the base amount and discount for in.
func Compute(in Input) (Quote, error) {
	if err := ValidateDiscount(in.DiscountPercentage); err != nil {
		return Quote{}, err
	}
	if in.Credits < 0 {
		return Quote{}, ErrInvalidCredits
	}

	var base decimal.Decimal
	switch in.Mode {
	case ModePerCredit:
		if in.AmountPerCredit.IsNegative() {
			return Quote{}, ErrInvalidRate
		}
		base = in.AmountPerCredit.Mul(decimal.NewFromInt(int64(in.Credits)))
	case ModeFlat:
		if in.SemesterFee.IsNegative() {
			return Quote{}, ErrInvalidRate
		}
		base = in.SemesterFee
	case ModePerResource:
		if in.ResourcePrice.IsNegative() {
			return Quote{}, ErrInvalidRate
		}
		base = in.ResourcePrice
	default:
		return Quote{}, ErrInvalidMode
	}

	base = base.Round(2)
	discount := base.Mul(in.DiscountPercentage).Div(hundred).Round(2)
	return Quote{Base: base, Discount: discount}, nil
}

// ValidateDiscount accepts percentages in 0..100 inclusive.
func ValidateDiscount(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return ErrInvalidDiscount
	}
	return nil
}

// Final is the amount owed: base less discount plus the carried balance.
func Final(q Quote, carried decimal.Decimal) decimal.Decimal {
	return q.Base.Sub(q.Discount).Add(carried)
}
