package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Course is a priced catalog resource. A zero price means free access.
type Course struct {
	ID    snowflake.ID    `gorm:"primaryKey" json:"id"`
	Code  string          `json:"code"`
	Title string          `json:"title"`
	Price decimal.Decimal `gorm:"type:numeric(12,2)" json:"price"`
}

func (Course) TableName() string { return "courses" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Course, error)
}

var ErrNotFound = errors.New("resource_not_found")
