// Package dbtest opens throwaway SQLite databases carrying the billing schema.
package dbtest

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bursar/internal/migration"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a private in-memory database. A single pooled connection keeps
// the memory database alive for the whole test.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.ApplySchema(db, "sqlite"); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

// Fixture seeds collaborator rows owned by other subsystems.
type Fixture struct {
	t   *testing.T
	db  *gorm.DB
	gen *snowflake.Node
}

func NewFixture(t *testing.T, db *gorm.DB, gen *snowflake.Node) *Fixture {
	return &Fixture{t: t, db: db, gen: gen}
}

func (f *Fixture) exec(sql string, args ...any) {
	f.t.Helper()
	if err := f.db.Exec(sql, args...).Error; err != nil {
		f.t.Fatalf("seed: %v", err)
	}
}

func (f *Fixture) Student(code, name, program string) snowflake.ID {
	f.t.Helper()
	id := f.gen.Generate()
	f.exec(`INSERT INTO students (id, student_code, full_name, email, program, tuition_settled) VALUES (?, ?, ?, ?, ?, ?)`,
		id, code, name, code+"@uni.test", program, false)
	return id
}

func (f *Fixture) Semester(code string, start time.Time, current bool) snowflake.ID {
	f.t.Helper()
	id := f.gen.Generate()
	f.exec(`INSERT INTO semesters (id, code, name, start_date, end_date, registration_start, registration_end, is_current) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, code, "Semester "+code, start, start.AddDate(0, 4, 0), start.AddDate(0, 0, -14), start, current)
	return id
}

func (f *Fixture) Subject(code string, credits int) snowflake.ID {
	f.t.Helper()
	id := f.gen.Generate()
	f.exec(`INSERT INTO subjects (id, code, name, credits) VALUES (?, ?, ?, ?)`, id, code, "Subject "+code, credits)
	return id
}

func (f *Fixture) Register(studentID, semesterID, subjectID snowflake.ID, status string) {
	f.t.Helper()
	f.exec(`INSERT INTO course_registrations (id, student_id, semester_id, subject_id, status) VALUES (?, ?, ?, ?, ?)`,
		f.gen.Generate(), studentID, semesterID, subjectID, status)
}

func (f *Fixture) Course(code string, price decimal.Decimal) snowflake.ID {
	f.t.Helper()
	id := f.gen.Generate()
	f.exec(`INSERT INTO courses (id, code, title, price) VALUES (?, ?, ?, ?)`, id, code, "Course "+code, price)
	return id
}

func (f *Fixture) SetSettled(studentID snowflake.ID, settled bool) {
	f.t.Helper()
	f.exec(`UPDATE students SET tuition_settled = ? WHERE id = ?`, settled, studentID)
}

func (f *Fixture) Settled(studentID snowflake.ID) bool {
	f.t.Helper()
	var row struct{ TuitionSettled bool }
	if err := f.db.Raw(`SELECT tuition_settled FROM students WHERE id = ?`, studentID).Scan(&row).Error; err != nil {
		f.t.Fatalf("read student: %v", err)
	}
	return row.TuitionSettled
}

// Count returns the number of rows in table matching the optional where clause.
func (f *Fixture) Count(table, where string, args ...any) int64 {
	f.t.Helper()
	var count int64
	q := f.db.Table(table)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&count).Error; err != nil {
		f.t.Fatalf("count %s: %v", table, err)
	}
	return count
}

// Payment inserts a payment row against an invoice and returns its id.
func (f *Fixture) Payment(invoiceID snowflake.ID, amount decimal.Decimal, method, status string, at time.Time) snowflake.ID {
	f.t.Helper()
	id := f.gen.Generate()
	f.exec(`INSERT INTO tuition_payments (id, tuition_id, amount, method, reference, payment_date, status, notes, processed_by, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, invoiceID, amount, method, "", at, status, "", "", at)
	return id
}

// SetInvoiceStatus forces an invoice status, bypassing the state machine.
func (f *Fixture) SetInvoiceStatus(invoiceID snowflake.ID, status string) {
	f.t.Helper()
	f.exec(`UPDATE tuitions SET status = ? WHERE id = ?`, status, invoiceID)
}
