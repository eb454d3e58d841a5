package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/access/domain"
	catalogdomain "github.com/smallbiznis/bursar/internal/catalog/domain"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	"github.com/smallbiznis/bursar/internal/observability/metrics"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	StudentRepo studentdomain.Repository
	CatalogRepo catalogdomain.Repository
	InvoiceRepo invoicedomain.Repository
	Metrics     *metrics.BillingMetrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	studentRepo studentdomain.Repository
	catalogRepo catalogdomain.Repository
	invoiceRepo invoicedomain.Repository
	metrics     *metrics.BillingMetrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("access.service"),
		studentRepo: p.StudentRepo,
		catalogRepo: p.CatalogRepo,
		invoiceRepo: p.InvoiceRepo,
		metrics:     p.Metrics,
	}
}

// CheckAccess is read-only. The first matching rule wins: settled tuition,
// free resource, paid per-resource invoice, else deny with the price.
func (s *Service) CheckAccess(ctx context.Context, studentID, resourceID snowflake.ID) (domain.Decision, error) {
	if studentID <= 0 {
		return domain.Decision{}, domain.ErrInvalidStudent
	}
	if resourceID <= 0 {
		return domain.Decision{}, domain.ErrInvalidResource
	}

	student, err := s.studentRepo.FindByID(ctx, s.db, studentID)
	if err != nil {
		return domain.Decision{}, err
	}
	if student == nil {
		return domain.Decision{}, studentdomain.ErrNotFound
	}
	course, err := s.catalogRepo.FindByID(ctx, s.db, resourceID)
	if err != nil {
		return domain.Decision{}, err
	}
	if course == nil {
		return domain.Decision{}, catalogdomain.ErrNotFound
	}

	decision := domain.Decision{StudentID: studentID, ResourceID: resourceID, Allowed: true}
	switch {
	case student.TuitionSettled:
		decision.Reason = domain.ReasonTuitionSettled
	case !course.Price.IsPositive():
		decision.Reason = domain.ReasonFree
	default:
		paid, err := s.invoiceRepo.HasPaidResourceInvoice(ctx, s.db, studentID, resourceID)
		if err != nil {
			return domain.Decision{}, err
		}
		if paid {
			decision.Reason = domain.ReasonResourcePaid
		} else {
			price := course.Price
			decision.Allowed = false
			decision.Reason = domain.ReasonPaymentRequired
			decision.Price = &price
		}
	}

	s.metrics.AccessDecided(decision.Allowed, decision.Reason)
	s.log.Debug("access decided",
		zap.String("student_id", studentID.String()),
		zap.String("resource_id", resourceID.String()),
		zap.Bool("allowed", decision.Allowed),
		zap.String("reason", decision.Reason),
	)
	return decision, nil
}
