package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/semester/domain"
	"gorm.io/gorm"
)

const semesterColumns = `id, code, name, start_date, end_date, registration_start, registration_end, is_current`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Semester, error) {
	var semester domain.Semester
	err := db.WithContext(ctx).Raw(
		`SELECT `+semesterColumns+` FROM semesters WHERE id = ?`,
		id,
	).Scan(&semester).Error
	if err != nil {
		return nil, err
	}
	if semester.ID == 0 {
		return nil, nil
	}
	return &semester, nil
}

func (r *repo) FindCurrent(ctx context.Context, db *gorm.DB) (*domain.Semester, error) {
	var semester domain.Semester
	err := db.WithContext(ctx).Raw(
		`SELECT `+semesterColumns+` FROM semesters WHERE is_current = ? LIMIT 1`,
		true,
	).Scan(&semester).Error
	if err != nil {
		return nil, err
	}
	if semester.ID == 0 {
		return nil, nil
	}
	return &semester, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Semester, error) {
	var semesters []domain.Semester
	err := db.WithContext(ctx).
		Model(&domain.Semester{}).
		Order("start_date desc, id desc").
		Find(&semesters).Error
	if err != nil {
		return nil, err
	}
	return semesters, nil
}

func (r *repo) ClearCurrent(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Exec(
		`UPDATE semesters SET is_current = ? WHERE is_current = ?`,
		false,
		true,
	).Error
}

func (r *repo) MarkCurrent(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE semesters SET is_current = ? WHERE id = ?`,
		true,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
