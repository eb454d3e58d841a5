package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bursar/internal/feepolicy"
)

// Invoice is one tuition obligation. Amounts are frozen at creation; only
// Status, StatusReason and Version move afterwards.
type Invoice struct {
	ID                 snowflake.ID    `gorm:"primaryKey" json:"id"`
	StudentID          snowflake.ID    `gorm:"not null" json:"student_id"`
	SemesterID         snowflake.ID    `gorm:"not null" json:"semester_id"`
	BillingMode        feepolicy.Mode  `gorm:"not null" json:"billing_mode"`
	ResourceID         snowflake.ID    `gorm:"not null" json:"resource_id,omitempty"`
	CreditsRegistered  int             `json:"credits_registered"`
	AmountPerCredit    decimal.Decimal `gorm:"type:numeric(12,2)" json:"amount_per_credit"`
	SemesterFee        decimal.Decimal `gorm:"type:numeric(12,2)" json:"semester_fee"`
	BaseAmount         decimal.Decimal `gorm:"type:numeric(12,2)" json:"base_amount"`
	DiscountPercentage decimal.Decimal `gorm:"type:numeric(5,2)" json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `gorm:"type:numeric(12,2)" json:"discount_amount"`
	CarriedBalance     decimal.Decimal `gorm:"type:numeric(12,2)" json:"carried_balance"`
	FinalAmount        decimal.Decimal `gorm:"type:numeric(12,2)" json:"final_amount"`
	DueDate            time.Time       `json:"due_date"`
	Status             Status          `gorm:"not null" json:"status"`
	StatusReason       string          `json:"status_reason,omitempty"`
	Version            int64           `gorm:"not null" json:"-"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (Invoice) TableName() string { return "tuitions" }

// InvoiceView is an invoice with its payment totals and student identity.
type InvoiceView struct {
	Invoice
	StudentCode     string          `json:"student_code"`
	StudentName     string          `json:"student_name"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
}

// Remaining is the amount still owed, never negative.
func Remaining(final, paid decimal.Decimal) decimal.Decimal {
	remaining := final.Sub(paid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}
