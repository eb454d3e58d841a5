package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (Semester, error)
	GetCurrent(ctx context.Context) (Semester, error)
	List(ctx context.Context) ([]Semester, error)
	// SetCurrent moves the current marker to id atomically.
	SetCurrent(ctx context.Context, id snowflake.ID) (Semester, error)
}

var (
	ErrInvalidID = errors.New("invalid_semester_id")
	ErrNotFound  = errors.New("semester_not_found")
	ErrNoCurrent = errors.New("current_semester_not_set")
)
