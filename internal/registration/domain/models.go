package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// StatusApproved is the only registration status that counts toward billing.
const StatusApproved = "APPROVED"

type Subject struct {
	ID      snowflake.ID `gorm:"primaryKey" json:"id"`
	Code    string       `json:"code"`
	Name    string       `json:"name"`
	Credits int          `json:"credits"`
}

func (Subject) TableName() string { return "subjects" }

type CourseRegistration struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	StudentID  snowflake.ID `json:"student_id"`
	SemesterID snowflake.ID `json:"semester_id"`
	SubjectID  snowflake.ID `json:"subject_id"`
	Status     string       `json:"status"`
}

func (CourseRegistration) TableName() string { return "course_registrations" }

// Repository reads the registration subsystem's tables.
type Repository interface {
	ApprovedCredits(ctx context.Context, db *gorm.DB, studentID, semesterID snowflake.ID) (int, error)
	RegisteredStudents(ctx context.Context, db *gorm.DB, semesterID snowflake.ID) ([]snowflake.ID, error)
}
