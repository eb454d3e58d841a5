package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodCash         Method = "CASH"
	MethodBankTransfer Method = "BANK_TRANSFER"
	MethodCard         Method = "CARD"
	MethodEWallet      Method = "E_WALLET"
	MethodOther        Method = "OTHER"
)

func ParseMethod(raw string) (Method, error) {
	switch method := Method(strings.ToUpper(strings.TrimSpace(raw))); method {
	case MethodCash, MethodBankTransfer, MethodCard, MethodEWallet, MethodOther:
		return method, nil
	default:
		return "", ErrInvalidMethod
	}
}

type Status string

const (
	// StatusCompleted payments count toward the invoice balance.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed rows are kept for audit and never counted.
	StatusFailed Status = "FAILED"
)

// Payment is append-only; rows are never updated once written.
type Payment struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID    `gorm:"column:tuition_id;not null" json:"invoice_id"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2)" json:"amount"`
	Method      Method          `gorm:"not null" json:"method"`
	Reference   string          `json:"reference,omitempty"`
	PaymentDate time.Time       `json:"payment_date"`
	Status      Status          `gorm:"not null" json:"status"`
	Notes       string          `json:"notes,omitempty"`
	ProcessedBy string          `json:"processed_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (Payment) TableName() string { return "tuition_payments" }
