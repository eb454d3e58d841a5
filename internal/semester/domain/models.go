package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Semester is created by academic administration; billing only reads it,
// apart from moving the current-semester marker.
type Semester struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	Code              string       `json:"code"`
	Name              string       `json:"name"`
	StartDate         time.Time    `json:"start_date"`
	EndDate           time.Time    `json:"end_date"`
	RegistrationStart *time.Time   `json:"registration_start,omitempty"`
	RegistrationEnd   *time.Time   `json:"registration_end,omitempty"`
	IsCurrent         bool         `json:"is_current"`
}

func (Semester) TableName() string { return "semesters" }
