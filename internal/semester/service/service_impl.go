package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/bursar/internal/audit/domain"
	"github.com/smallbiznis/bursar/internal/semester/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("semester.service"),
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Semester, error) {
	if id <= 0 {
		return domain.Semester{}, domain.ErrInvalidID
	}
	semester, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Semester{}, err
	}
	if semester == nil {
		return domain.Semester{}, domain.ErrNotFound
	}
	return *semester, nil
}

func (s *Service) GetCurrent(ctx context.Context) (domain.Semester, error) {
	semester, err := s.repo.FindCurrent(ctx, s.db)
	if err != nil {
		return domain.Semester{}, err
	}
	if semester == nil {
		return domain.Semester{}, domain.ErrNoCurrent
	}
	return *semester, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Semester, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) SetCurrent(ctx context.Context, id snowflake.ID) (domain.Semester, error) {
	if id <= 0 {
		return domain.Semester{}, domain.ErrInvalidID
	}

	var updated domain.Semester
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.ClearCurrent(ctx, tx); err != nil {
			return err
		}
		ok, err := s.repo.MarkCurrent(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotFound
		}
		semester, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if semester == nil {
			return domain.ErrNotFound
		}
		updated = *semester
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Error("set current semester failed", zap.String("semester_id", id.String()), zap.Error(err))
		}
		return domain.Semester{}, err
	}

	if s.auditSvc != nil {
		targetID := id.String()
		if err := s.auditSvc.AuditLog(ctx, auditdomain.ActionSemesterCurrentSet, auditdomain.TargetSemester, &targetID, map[string]any{
			"code": updated.Code,
		}); err != nil {
			s.log.Warn("audit log failed", zap.String("action", auditdomain.ActionSemesterCurrentSet), zap.Error(err))
		}
	}
	return updated, nil
}
