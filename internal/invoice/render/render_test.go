package render

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bursar/internal/feepolicy"
	"github.com/smallbiznis/bursar/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	cases := map[string]string{
		"0":          "0.00",
		"999":        "999.00",
		"1000":       "1,000.00",
		"9180000":    "9,180,000.00",
		"1234567.5":  "1,234,567.50",
		"-2000000.1": "-2,000,000.10",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatAmount(decimal.RequireFromString(in)), in)
	}
}

func TestRenderStatement(t *testing.T) {
	issued := time.Date(2024, 8, 20, 0, 0, 0, 0, time.UTC)
	view := domain.InvoiceView{
		Invoice: domain.Invoice{
			ID:                 1820000000000000001,
			BillingMode:        feepolicy.ModePerCredit,
			CreditsRegistered:  12,
			AmountPerCredit:    decimal.NewFromInt(850000),
			BaseAmount:         decimal.NewFromInt(10200000),
			DiscountPercentage: decimal.NewFromInt(10),
			DiscountAmount:     decimal.NewFromInt(1020000),
			FinalAmount:        decimal.NewFromInt(9180000),
			DueDate:            issued.AddDate(0, 1, 0),
			Status:             domain.StatusPartial,
			CreatedAt:          issued,
		},
		StudentCode:     "S-001",
		StudentName:     "Ana Lima",
		PaidAmount:      decimal.NewFromInt(4180000),
		RemainingAmount: decimal.NewFromInt(5000000),
	}

	out, err := NewPDFRenderer().Render(context.Background(), Statement{
		InstitutionName: "State University",
		SemesterCode:    "2024-1",
		Invoice:         view,
		Payments: []PaymentLine{{
			Date:      issued.AddDate(0, 0, 5),
			Method:    "BANK_TRANSFER",
			Reference: "TRX-0001-9876",
			Status:    "COMPLETED",
			Amount:    decimal.NewFromInt(4180000),
		}},
		IssuedAt: issued,
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRejectsEmptyInvoice(t *testing.T) {
	_, err := NewPDFRenderer().Render(context.Background(), Statement{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFormatInvoiceNumber(t *testing.T) {
	assert.Equal(t, "TUI-20240820-42", FormatInvoiceNumber(42, time.Date(2024, 8, 20, 23, 0, 0, 0, time.UTC)))
}
