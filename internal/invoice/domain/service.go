package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bursar/internal/feepolicy"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
)

const (
	SkipNoCourses       = "no courses registered"
	SkipDuplicate       = "duplicate invoice"
	SkipStudentNotFound = "student not found"
)

// PolicyConfig is the tuition policy for one generation run. Nil fields fall
// back to the configured billing defaults.
type PolicyConfig struct {
	Mode                  string           `json:"mode"`
	AmountPerCredit       *decimal.Decimal `json:"amount_per_credit,omitempty"`
	SemesterFee           *decimal.Decimal `json:"semester_fee,omitempty"`
	DiscountPercentage    *decimal.Decimal `json:"discount_percentage,omitempty"`
	DueDate               *time.Time       `json:"due_date,omitempty"`
	IncludeCarriedBalance *bool            `json:"include_carried_balance,omitempty"`
}

type GenerateRequest struct {
	SemesterID snowflake.ID
	// StudentIDs empty means every student registered in the semester.
	StudentIDs []snowflake.ID
	Policy     PolicyConfig
}

type StudentOutcome struct {
	StudentID   snowflake.ID     `json:"student_id"`
	InvoiceID   *snowflake.ID    `json:"invoice_id,omitempty"`
	FinalAmount *decimal.Decimal `json:"final_amount,omitempty"`
	SkipReason  string           `json:"skip_reason,omitempty"`
}

type GenerateResult struct {
	SemesterID snowflake.ID     `json:"semester_id"`
	Mode       feepolicy.Mode   `json:"mode"`
	Created    int              `json:"created"`
	Skipped    int              `json:"skipped"`
	Results    []StudentOutcome `json:"results"`
}

type ResourceInvoiceRequest struct {
	StudentID  snowflake.ID
	ResourceID snowflake.ID
	// SemesterID zero bills against the current semester.
	SemesterID         snowflake.ID
	DiscountPercentage decimal.Decimal
	DueDate            *time.Time
}

// StatusReset restores the payment-derived status after an override.
const StatusReset = "RESET"

type OverrideRequest struct {
	InvoiceID snowflake.ID
	Status    string
	Reason    string
}

type ListInvoiceRequest struct {
	pagination.Pagination
	StudentSearch string       `form:"student_search"`
	StudentID     snowflake.ID `form:"-"`
	SemesterID    snowflake.ID `form:"-"`
	Status        string       `form:"status"`
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []InvoiceView `json:"invoices"`
}

type Service interface {
	GetInvoice(ctx context.Context, id snowflake.ID) (InvoiceView, error)
	ListInvoices(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	// CarriedBalance sums what the student still owes on unresolved invoices
	// outside excludeSemesterID.
	CarriedBalance(ctx context.Context, studentID, excludeSemesterID snowflake.ID) (decimal.Decimal, error)
	GenerateInvoices(ctx context.Context, req GenerateRequest) (GenerateResult, error)
	GenerateResourceInvoice(ctx context.Context, req ResourceInvoiceRequest) (Invoice, error)
	OverrideStatus(ctx context.Context, req OverrideRequest) (InvoiceView, error)
}

var (
	ErrInvalidID            = errors.New("invalid_invoice_id")
	ErrInvalidStudent       = errors.New("invalid_student_id")
	ErrInvalidResource      = errors.New("invalid_resource_id")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidDueDate       = errors.New("invalid_due_date")
	ErrResourceNotBillable  = errors.New("resource_not_billable")
	ErrNotFound             = errors.New("invoice_not_found")
	ErrDuplicateInvoice     = errors.New("duplicate_invoice")
	ErrAlreadySettled       = errors.New("already_settled")
	ErrConcurrentUpdate     = errors.New("concurrent_update")
	ErrGenerationInProgress = errors.New("generation_in_progress")
)
