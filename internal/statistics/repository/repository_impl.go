package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/statistics/domain"
	"gorm.io/gorm"
)

const paidSubquery = `SELECT tuition_id, SUM(amount) AS paid
	FROM tuition_payments
	WHERE status = 'COMPLETED'
	GROUP BY tuition_id`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func semesterFilter(semesterID snowflake.ID) (string, []any) {
	if semesterID == 0 {
		return "", nil
	}
	return " WHERE t.semester_id = ?", []any{semesterID}
}

func (r *repo) StatusTotals(ctx context.Context, db *gorm.DB, semesterID snowflake.ID) ([]domain.StatusTotal, error) {
	where, args := semesterFilter(semesterID)
	var rows []domain.StatusTotal
	err := db.WithContext(ctx).Raw(
		`SELECT t.status AS status,
			COUNT(1) AS count,
			COALESCE(SUM(t.final_amount), 0) AS final_amount,
			COALESCE(SUM(COALESCE(p.paid, 0)), 0) AS paid_amount
		 FROM tuitions t
		 LEFT JOIN (`+paidSubquery+`) p ON p.tuition_id = t.id`+where+`
		 GROUP BY t.status
		 ORDER BY t.status`,
		args...,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].FinalAmount = rows[i].FinalAmount.Round(2)
		rows[i].PaidAmount = rows[i].PaidAmount.Round(2)
	}
	return rows, nil
}

func (r *repo) MethodTotals(ctx context.Context, db *gorm.DB, semesterID snowflake.ID) ([]domain.MethodTotal, error) {
	query := `SELECT tp.method AS method, COUNT(1) AS count, COALESCE(SUM(tp.amount), 0) AS amount
		 FROM tuition_payments tp
		 JOIN tuitions t ON t.id = tp.tuition_id
		 WHERE tp.status = 'COMPLETED'`
	var args []any
	if semesterID != 0 {
		query += ` AND t.semester_id = ?`
		args = append(args, semesterID)
	}
	query += ` GROUP BY tp.method ORDER BY tp.method`

	var rows []domain.MethodTotal
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Amount = rows[i].Amount.Round(2)
	}
	return rows, nil
}

func (r *repo) ProgramTotals(ctx context.Context, db *gorm.DB, semesterID snowflake.ID) ([]domain.ProgramTotal, error) {
	where, args := semesterFilter(semesterID)
	var rows []domain.ProgramTotal
	err := db.WithContext(ctx).Raw(
		`SELECT s.program AS program,
			COUNT(DISTINCT t.student_id) AS students,
			COUNT(1) AS invoices,
			COALESCE(SUM(t.final_amount), 0) AS billed,
			COALESCE(SUM(COALESCE(p.paid, 0)), 0) AS collected,
			COALESCE(SUM(CASE WHEN t.status IN ('UNPAID', 'PARTIAL', 'OVERDUE')
				THEN t.final_amount - COALESCE(p.paid, 0) ELSE 0 END), 0) AS outstanding
		 FROM tuitions t
		 JOIN students s ON s.id = t.student_id
		 LEFT JOIN (`+paidSubquery+`) p ON p.tuition_id = t.id`+where+`
		 GROUP BY s.program
		 ORDER BY s.program`,
		args...,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Billed = rows[i].Billed.Round(2)
		rows[i].Collected = rows[i].Collected.Round(2)
		rows[i].Outstanding = rows[i].Outstanding.Round(2)
	}
	return rows, nil
}

func (r *repo) CompletedPayments(ctx context.Context, db *gorm.DB, semesterID snowflake.ID) ([]domain.CompletedPayment, error) {
	query := `SELECT tp.payment_date AS payment_date, tp.amount AS amount
		 FROM tuition_payments tp
		 JOIN tuitions t ON t.id = tp.tuition_id
		 WHERE tp.status = 'COMPLETED'`
	var args []any
	if semesterID != 0 {
		query += ` AND t.semester_id = ?`
		args = append(args, semesterID)
	}
	query += ` ORDER BY tp.payment_date`

	var rows []domain.CompletedPayment
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
