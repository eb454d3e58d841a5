package authorization

import (
	"context"
	"errors"
)

const (
	RoleAdmin   = "admin"
	RoleBursar  = "bursar"
	RoleStudent = "student"
)

const (
	ObjectInvoice    = "invoice"
	ObjectPayment    = "payment"
	ObjectAccess     = "access"
	ObjectStatistics = "statistics"
	ObjectSemester   = "semester"
	ObjectAuditLog   = "audit_log"
)

const (
	ActionInvoiceView     = "invoice.view"
	ActionInvoiceGenerate = "invoice.generate"
	ActionInvoiceOverride = "invoice.override"

	ActionPaymentView         = "payment.view"
	ActionPaymentRecord       = "payment.record"
	ActionPaymentRecordFailed = "payment.record_failed"

	ActionAccessCheck = "access.check"

	ActionStatisticsView = "statistics.view"

	ActionSemesterView       = "semester.view"
	ActionSemesterSetCurrent = "semester.set_current"

	ActionAuditLogView = "audit_log.view"
)

type Service interface {
	// Authorize returns nil when role may perform action on object.
	Authorize(ctx context.Context, role string, object string, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
