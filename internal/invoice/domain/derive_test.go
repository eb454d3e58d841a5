package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	final := decimal.NewFromInt(5000000)
	cases := []struct {
		name    string
		paid    int64
		current Status
		want    Status
	}{
		{"nothing paid keeps unpaid", 0, StatusUnpaid, StatusUnpaid},
		{"nothing paid keeps overdue", 0, StatusOverdue, StatusOverdue},
		{"partial", 3000000, StatusUnpaid, StatusPartial},
		{"exact", 5000000, StatusPartial, StatusPaid},
		{"overpaid", 6000000, StatusOverdue, StatusPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveStatus(final, decimal.NewFromInt(tc.paid), tc.current))
		})
	}
}

func TestZeroFinalIsPaid(t *testing.T) {
	assert.Equal(t, StatusPaid, DeriveStatus(decimal.Zero, decimal.Zero, StatusUnpaid))
}

func TestRemainingNeverNegative(t *testing.T) {
	assert.True(t, Remaining(decimal.NewFromInt(10), decimal.NewFromInt(12)).IsZero())
	assert.True(t, decimal.NewFromInt(4).Equal(Remaining(decimal.NewFromInt(10), decimal.NewFromInt(6))))
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusPaid.Settled())
	assert.True(t, StatusWaived.Settled())
	assert.False(t, StatusOverdue.Settled())
	assert.True(t, StatusPartial.Unresolved())
	assert.False(t, StatusOverdue.Unresolved())

	_, err := ParseStatus("nope")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	s, err := ParseStatus(" partial ")
	assert.NoError(t, err)
	assert.Equal(t, StatusPartial, s)
}
