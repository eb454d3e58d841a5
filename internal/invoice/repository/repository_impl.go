package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bursar/internal/feepolicy"
	"github.com/smallbiznis/bursar/internal/invoice/domain"
	pkgdb "github.com/smallbiznis/bursar/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Mirrors the payment status stored by the payment processor.
const paymentCompleted = "COMPLETED"

const paidSubquery = `SELECT tuition_id, SUM(amount) AS paid
	FROM tuition_payments
	WHERE status = '` + paymentCompleted + `'
	GROUP BY tuition_id`

const viewSelect = `SELECT t.*, s.student_code AS student_code, s.full_name AS student_name,
	COALESCE(p.paid, 0) AS paid_amount
	FROM tuitions t
	JOIN students s ON s.id = t.student_id
	LEFT JOIN (` + paidSubquery + `) p ON p.tuition_id = t.id`

var invoiceKey = []clause.Column{
	{Name: "student_id"},
	{Name: "semester_id"},
	{Name: "billing_mode"},
	{Name: "resource_id"},
}

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: invoiceKey, DoNothing: true}).
		Create(invoice)
	if result.Error != nil {
		if pkgdb.IsDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Exists(ctx context.Context, db *gorm.DB, studentID, semesterID snowflake.ID, mode feepolicy.Mode, resourceID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM tuitions
		 WHERE student_id = ? AND semester_id = ? AND billing_mode = ? AND resource_id = ?`,
		studentID,
		semesterID,
		mode,
		resourceID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Raw(`SELECT * FROM tuitions WHERE id = ?`, id).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := pkgdb.ForUpdate(db.WithContext(ctx)).
		Where("id = ?", id).
		Take(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) FindView(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.InvoiceView, error) {
	var view domain.InvoiceView
	err := db.WithContext(ctx).Raw(viewSelect+` WHERE t.id = ?`, id).Scan(&view).Error
	if err != nil {
		return nil, err
	}
	if view.ID == 0 {
		return nil, nil
	}
	finishView(&view)
	return &view, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.InvoiceView, error) {
	var (
		where []string
		args  []any
	)
	if filter.StudentID != 0 {
		where = append(where, "t.student_id = ?")
		args = append(args, filter.StudentID)
	}
	if filter.SemesterID != 0 {
		where = append(where, "t.semester_id = ?")
		args = append(args, filter.SemesterID)
	}
	if filter.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, filter.Status)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.StudentSearch)); search != "" {
		pattern := "%" + search + "%"
		where = append(where, "(LOWER(s.student_code) LIKE ? OR LOWER(s.full_name) LIKE ?)")
		args = append(args, pattern, pattern)
	}
	if filter.AfterID != 0 {
		where = append(where, "t.id < ?")
		args = append(args, filter.AfterID)
	}

	query := viewSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY t.id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var views []domain.InvoiceView
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&views).Error; err != nil {
		return nil, err
	}
	for i := range views {
		finishView(&views[i])
	}
	return views, nil
}

func (r *repo) PaidAmount(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) AS total
		 FROM tuition_payments
		 WHERE tuition_id = ? AND status = ?`,
		invoiceID,
		paymentCompleted,
	).Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total.Round(2), nil
}

func (r *repo) UnresolvedBalance(ctx context.Context, db *gorm.DB, studentID, excludeSemesterID snowflake.ID) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(t.final_amount - COALESCE(p.paid, 0)), 0) AS total
		 FROM tuitions t
		 LEFT JOIN (`+paidSubquery+`) p ON p.tuition_id = t.id
		 WHERE t.student_id = ? AND t.semester_id <> ? AND t.status IN (?, ?)`,
		studentID,
		excludeSemesterID,
		domain.StatusUnpaid,
		domain.StatusPartial,
	).Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total.Round(2), nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, expectedVersion int64, status domain.Status, reason string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE tuitions
		 SET status = ?, status_reason = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		status,
		reason,
		now,
		id,
		expectedVersion,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) HasPaidResourceInvoice(ctx context.Context, db *gorm.DB, studentID, resourceID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM tuitions
		 WHERE student_id = ? AND resource_id = ? AND billing_mode = ? AND status IN (?, ?)`,
		studentID,
		resourceID,
		feepolicy.ModePerResource,
		domain.StatusPaid,
		domain.StatusWaived,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func finishView(view *domain.InvoiceView) {
	view.PaidAmount = view.PaidAmount.Round(2)
	view.RemainingAmount = domain.Remaining(view.FinalAmount, view.PaidAmount)
}
