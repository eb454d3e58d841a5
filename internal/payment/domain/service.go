package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
)

type RecordPaymentRequest struct {
	InvoiceID snowflake.ID
	Amount    decimal.Decimal
	Method    string
	Reference string
	// PaymentDate nil means now.
	PaymentDate *time.Time
	Notes       string
}

type RecordPaymentResult struct {
	Payment         Payment              `json:"payment"`
	InvoiceStatus   invoicedomain.Status `json:"invoice_status"`
	PaidAmount      decimal.Decimal      `json:"paid_amount"`
	RemainingAmount decimal.Decimal      `json:"remaining_amount"`
	TuitionSettled  bool                 `json:"tuition_settled"`
}

type Service interface {
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (RecordPaymentResult, error)
	// RecordFailedAttempt keeps a declined attempt for audit. It never moves
	// the invoice status.
	RecordFailedAttempt(ctx context.Context, req RecordPaymentRequest) (Payment, error)
	ListPayments(ctx context.Context, invoiceID snowflake.ID) ([]Payment, error)
}

var (
	ErrInvalidMethod      = errors.New("invalid_payment_method")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidPaymentDate = errors.New("invalid_payment_date")
	// ErrAmountExceedsRemaining is an ErrInvalidAmount.
	ErrAmountExceedsRemaining = fmt.Errorf("%w: amount_exceeds_remaining", ErrInvalidAmount)
)
