package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/registration/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ApprovedCredits(ctx context.Context, db *gorm.DB, studentID, semesterID snowflake.ID) (int, error) {
	var row struct {
		Credits int
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(s.credits), 0) AS credits
		 FROM course_registrations cr
		 JOIN subjects s ON s.id = cr.subject_id
		 WHERE cr.student_id = ? AND cr.semester_id = ? AND cr.status = ?`,
		studentID,
		semesterID,
		domain.StatusApproved,
	).Scan(&row).Error
	if err != nil {
		return 0, err
	}
	return row.Credits, nil
}

func (r *repo) RegisteredStudents(ctx context.Context, db *gorm.DB, semesterID snowflake.ID) ([]snowflake.ID, error) {
	var raw []int64
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT student_id
		 FROM course_registrations
		 WHERE semester_id = ?
		 ORDER BY student_id`,
		semesterID,
	).Scan(&raw).Error
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, snowflake.ID(id))
	}
	return ids, nil
}
