package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActionInvoiceGenerated       = "invoice.generated"
	ActionInvoicesGenerated      = "invoice.batch_generated"
	ActionInvoiceStatusOverriden = "invoice.status_overridden"
	ActionPaymentRecorded        = "payment.recorded"
	ActionPaymentFailed          = "payment.failed"
	ActionSemesterCurrentSet     = "semester.current_set"

	TargetInvoice  = "invoice"
	TargetPayment  = "payment"
	TargetSemester = "semester"

	ActorSystem = "system"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType  string            `json:"actor_type"`
	ActorID    *string           `json:"actor_id,omitempty"`
	Action     string            `json:"action"`
	TargetType string            `json:"target_type"`
	TargetID   *string           `json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	RequestID  *string           `json:"request_id,omitempty"`
	IPAddress  *string           `json:"ip_address,omitempty"`
	UserAgent  *string           `json:"user_agent,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
