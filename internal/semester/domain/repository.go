package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Semester, error)
	FindCurrent(ctx context.Context, db *gorm.DB) (*Semester, error)
	List(ctx context.Context, db *gorm.DB) ([]Semester, error)
	ClearCurrent(ctx context.Context, db *gorm.DB) error
	MarkCurrent(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
