package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Summary struct {
	InvoiceCount     int64           `json:"invoice_count"`
	TotalBilled      decimal.Decimal `json:"total_billed"`
	TotalCollected   decimal.Decimal `json:"total_collected"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	// CollectionRate is collected over billed, in percent.
	CollectionRate decimal.Decimal `json:"collection_rate"`
}

type StatusTotal struct {
	Status      string          `json:"status"`
	Count       int64           `json:"count"`
	FinalAmount decimal.Decimal `json:"final_amount"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
}

type MethodTotal struct {
	Method string          `json:"method"`
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type ProgramTotal struct {
	Program     string          `json:"program"`
	Students    int64           `json:"students"`
	Invoices    int64           `json:"invoices"`
	Billed      decimal.Decimal `json:"billed"`
	Collected   decimal.Decimal `json:"collected"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

type MonthBucket struct {
	Month  string          `json:"month"`
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type Statistics struct {
	SemesterID *snowflake.ID  `json:"semester_id,omitempty"`
	Summary    Summary        `json:"summary"`
	ByStatus   []StatusTotal  `json:"by_status"`
	ByMethod   []MethodTotal  `json:"by_method"`
	ByProgram  []ProgramTotal `json:"by_program"`
	Monthly    []MonthBucket  `json:"monthly"`
}

// CompletedPayment is the projection the monthly timeline is built from.
type CompletedPayment struct {
	PaymentDate time.Time
	Amount      decimal.Decimal
}

// Repository aggregates invoices and payments. A zero semesterID spans all
// semesters.
type Repository interface {
	StatusTotals(ctx context.Context, db *gorm.DB, semesterID snowflake.ID) ([]StatusTotal, error)
	MethodTotals(ctx context.Context, db *gorm.DB, semesterID snowflake.ID) ([]MethodTotal, error)
	ProgramTotals(ctx context.Context, db *gorm.DB, semesterID snowflake.ID) ([]ProgramTotal, error)
	CompletedPayments(ctx context.Context, db *gorm.DB, semesterID snowflake.ID) ([]CompletedPayment, error)
}

type Service interface {
	GetStatistics(ctx context.Context, semesterID snowflake.ID) (Statistics, error)
}
