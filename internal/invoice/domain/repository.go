package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bursar/internal/feepolicy"
	"gorm.io/gorm"
)

type ListFilter struct {
	StudentSearch string
	StudentID     snowflake.ID
	SemesterID    snowflake.ID
	Status        Status
	AfterID       snowflake.ID
	Limit         int
}

// Repository is the invoice store. Every method runs on the given handle so
// callers can compose them inside one transaction.
type Repository interface {
	// Insert returns false when an invoice already holds the
	// (student, semester, mode, resource) key.
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) (bool, error)
	Exists(ctx context.Context, db *gorm.DB, studentID, semesterID snowflake.ID, mode feepolicy.Mode, resourceID snowflake.ID) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindView(ctx context.Context, db *gorm.DB, id snowflake.ID) (*InvoiceView, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]InvoiceView, error)
	PaidAmount(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (decimal.Decimal, error)
	UnresolvedBalance(ctx context.Context, db *gorm.DB, studentID, excludeSemesterID snowflake.ID) (decimal.Decimal, error)
	// UpdateStatus is a compare-and-swap on version; false means the row moved.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, expectedVersion int64, status Status, reason string, now time.Time) (bool, error)
	HasPaidResourceInvoice(ctx context.Context, db *gorm.DB, studentID, resourceID snowflake.ID) (bool, error)
}
