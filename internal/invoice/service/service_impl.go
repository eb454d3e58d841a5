package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/bursar/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/bursar/internal/catalog/domain"
	"github.com/smallbiznis/bursar/internal/clock"
	"github.com/smallbiznis/bursar/internal/config"
	"github.com/smallbiznis/bursar/internal/invoice/domain"
	"github.com/smallbiznis/bursar/internal/lock"
	"github.com/smallbiznis/bursar/internal/observability/metrics"
	"github.com/smallbiznis/bursar/internal/observability/tracing"
	registrationdomain "github.com/smallbiznis/bursar/internal/registration/domain"
	semesterdomain "github.com/smallbiznis/bursar/internal/semester/domain"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Repo             domain.Repository
	StudentRepo      studentdomain.Repository
	RegistrationRepo registrationdomain.Repository
	SemesterRepo     semesterdomain.Repository
	CatalogRepo      catalogdomain.Repository
	Billing          *config.BillingConfigHolder `optional:"true"`
	Locker           *lock.Locker                `optional:"true"`
	Metrics          *metrics.BillingMetrics     `optional:"true"`
	AuditSvc         auditdomain.Service         `optional:"true"`
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	repo             domain.Repository
	studentRepo      studentdomain.Repository
	registrationRepo registrationdomain.Repository
	semesterRepo     semesterdomain.Repository
	catalogRepo      catalogdomain.Repository
	billing          *config.BillingConfigHolder
	locker           *lock.Locker
	metrics          *metrics.BillingMetrics
	auditSvc         auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("invoice.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		studentRepo:      p.StudentRepo,
		registrationRepo: p.RegistrationRepo,
		semesterRepo:     p.SemesterRepo,
		catalogRepo:      p.CatalogRepo,
		billing:          p.Billing,
		locker:           p.Locker,
		metrics:          p.Metrics,
		auditSvc:         p.AuditSvc,
	}
}

func (s *Service) GetInvoice(ctx context.Context, id snowflake.ID) (domain.InvoiceView, error) {
	if id <= 0 {
		return domain.InvoiceView{}, domain.ErrInvalidID
	}
	view, err := s.repo.FindView(ctx, s.db, id)
	if err != nil {
		return domain.InvoiceView{}, err
	}
	if view == nil {
		return domain.InvoiceView{}, domain.ErrNotFound
	}
	return *view, nil
}

func (s *Service) ListInvoices(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	filter := domain.ListFilter{
		StudentSearch: strings.TrimSpace(req.StudentSearch),
		StudentID:     req.StudentID,
		SemesterID:    req.SemesterID,
		Limit:         req.Limit() + 1,
	}
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			return domain.ListInvoiceResponse{}, err
		}
		filter.Status = status
	}
	afterID, err := req.AfterID()
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}
	filter.AfterID = afterID

	views, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}
	items, pageInfo := pagination.Page(views, req.Limit(), func(v domain.InvoiceView) snowflake.ID { return v.ID })
	return domain.ListInvoiceResponse{PageInfo: pageInfo, Invoices: items}, nil
}

func (s *Service) CarriedBalance(ctx context.Context, studentID, excludeSemesterID snowflake.ID) (decimal.Decimal, error) {
	if studentID <= 0 {
		return decimal.Zero, domain.ErrInvalidStudent
	}
	return s.repo.UnresolvedBalance(ctx, s.db, studentID, excludeSemesterID)
}

func (s *Service) OverrideStatus(ctx context.Context, req domain.OverrideRequest) (domain.InvoiceView, error) {
	if req.InvoiceID <= 0 {
		return domain.InvoiceView{}, domain.ErrInvalidID
	}
	target := strings.ToUpper(strings.TrimSpace(req.Status))
	switch target {
	case string(domain.StatusOverdue), string(domain.StatusWaived), domain.StatusReset:
	default:
		return domain.InvoiceView{}, domain.ErrInvalidStatus
	}

	ctx, span := tracing.Start(ctx, "invoice.override_status",
		attribute.String("invoice_id", req.InvoiceID.String()),
		attribute.String("target", target),
	)
	var (
		from domain.Status
		next domain.Status
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByIDForUpdate(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return domain.ErrNotFound
		}
		if invoice.Status == domain.StatusPaid {
			return domain.ErrAlreadySettled
		}
		from = invoice.Status

		next = domain.Status(target)
		if target == domain.StatusReset {
			paid, err := s.repo.PaidAmount(ctx, tx, invoice.ID)
			if err != nil {
				return err
			}
			next = domain.DeriveStatus(invoice.FinalAmount, paid, domain.StatusUnpaid)
		}

		ok, err := s.repo.UpdateStatus(ctx, tx, invoice.ID, invoice.Version, next, strings.TrimSpace(req.Reason), s.clock.Now())
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentUpdate
		}
		return nil
	})
	tracing.End(span, err)
	if err != nil {
		if !isExpected(err) {
			s.log.Error("override invoice status failed", zap.String("invoice_id", req.InvoiceID.String()), zap.Error(err))
		}
		return domain.InvoiceView{}, err
	}

	s.audit(ctx, auditdomain.ActionInvoiceStatusOverriden, auditdomain.TargetInvoice, req.InvoiceID, map[string]any{
		"from":   string(from),
		"to":     string(next),
		"reason": strings.TrimSpace(req.Reason),
	})
	return s.GetInvoice(ctx, req.InvoiceID)
}

func (s *Service) audit(ctx context.Context, action, targetType string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	id := targetID.String()
	if err := s.auditSvc.AuditLog(ctx, action, targetType, &id, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func isExpected(err error) bool {
	for _, target := range []error{
		domain.ErrNotFound,
		domain.ErrAlreadySettled,
		domain.ErrDuplicateInvoice,
		domain.ErrConcurrentUpdate,
		domain.ErrGenerationInProgress,
		semesterdomain.ErrNotFound,
		semesterdomain.ErrNoCurrent,
		studentdomain.ErrNotFound,
		catalogdomain.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
