package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Student is owned by the student-information subsystem. Billing reads it
// and writes only TuitionSettled, inside the payment transaction.
type Student struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	StudentCode    string       `json:"student_code"`
	FullName       string       `json:"full_name"`
	Email          string       `json:"email"`
	Program        string       `json:"program"`
	TuitionSettled bool         `json:"tuition_settled"`
}

func (Student) TableName() string { return "students" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Student, error)
	MarkTuitionSettled(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}

var ErrNotFound = errors.New("student_not_found")
