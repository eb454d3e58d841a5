package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

const (
	ReasonTuitionSettled  = "tuition_settled"
	ReasonFree            = "free"
	ReasonResourcePaid    = "resource_paid"
	ReasonPaymentRequired = "payment_required"
)

type Decision struct {
	StudentID  snowflake.ID `json:"student_id"`
	ResourceID snowflake.ID `json:"resource_id"`
	Allowed    bool         `json:"allowed"`
	Reason     string       `json:"reason"`
	// Price is set only on denial so the caller can prompt for payment.
	Price *decimal.Decimal `json:"price,omitempty"`
}

type Service interface {
	CheckAccess(ctx context.Context, studentID, resourceID snowflake.ID) (Decision, error)
}

var (
	ErrInvalidStudent  = errors.New("invalid_student_id")
	ErrInvalidResource = errors.New("invalid_resource_id")
)
