package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/bursar/internal/audit/domain"
	"github.com/smallbiznis/bursar/internal/audit/masking"
	"github.com/smallbiznis/bursar/internal/clock"
	"github.com/smallbiznis/bursar/internal/feepolicy"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	obscontext "github.com/smallbiznis/bursar/internal/observability/context"
	"github.com/smallbiznis/bursar/internal/observability/metrics"
	"github.com/smallbiznis/bursar/internal/observability/tracing"
	"github.com/smallbiznis/bursar/internal/payment/domain"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxNotesLength = 1000

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	InvoiceRepo invoicedomain.Repository
	StudentRepo studentdomain.Repository
	Metrics     *metrics.BillingMetrics `optional:"true"`
	AuditSvc    auditdomain.Service     `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	invoiceRepo invoicedomain.Repository
	studentRepo studentdomain.Repository
	metrics     *metrics.BillingMetrics
	auditSvc    auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		studentRepo: p.StudentRepo,
		metrics:     p.Metrics,
		auditSvc:    p.AuditSvc,
	}
}

type normalizedPayment struct {
	method      domain.Method
	reference   string
	notes       string
	paymentDate time.Time
}

// normalize validates the request shape. Amount checks run later, against
// the locked invoice, so existence and settlement are reported first.
func (s *Service) normalize(req domain.RecordPaymentRequest) (normalizedPayment, error) {
	if req.InvoiceID <= 0 {
		return normalizedPayment{}, invoicedomain.ErrInvalidID
	}
	method, err := domain.ParseMethod(req.Method)
	if err != nil {
		return normalizedPayment{}, err
	}
	notes := truncateNotes(strings.TrimSpace(req.Notes))

	now := s.clock.Now()
	paymentDate := now
	if req.PaymentDate != nil {
		if req.PaymentDate.IsZero() || req.PaymentDate.After(now) {
			return normalizedPayment{}, domain.ErrInvalidPaymentDate
		}
		paymentDate = req.PaymentDate.UTC()
	}

	return normalizedPayment{
		method:      method,
		reference:   strings.TrimSpace(req.Reference),
		notes:       notes,
		paymentDate: paymentDate,
	}, nil
}

// truncateNotes caps notes at maxNotesLength characters, never splitting one.
func truncateNotes(notes string) string {
	if utf8.RuneCountInString(notes) <= maxNotesLength {
		return notes
	}
	return string([]rune(notes)[:maxNotesLength])
}

// settlesTuition reports whether paying an invoice of this mode settles the
// student's semester tuition. Resource invoices only unlock their resource.
func settlesTuition(mode feepolicy.Mode) bool {
	return mode == feepolicy.ModePerCredit || mode == feepolicy.ModeFlat
}

func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}

func (s *Service) RecordPayment(ctx context.Context, req domain.RecordPaymentRequest) (result domain.RecordPaymentResult, err error) {
	ctx, span := tracing.Start(ctx, "payment.record",
		attribute.String("invoice_id", req.InvoiceID.String()),
		attribute.String("method", req.Method),
	)
	defer func() {
		if err != nil {
			s.metrics.PaymentRejected(metricReason(err))
		}
		tracing.End(span, err)
	}()

	in, err := s.normalize(req)
	if err != nil {
		return domain.RecordPaymentResult{}, err
	}
	_, actorID := obscontext.ActorFromContext(ctx)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.invoiceRepo.FindByIDForUpdate(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrNotFound
		}
		if invoice.Status.Settled() {
			return invoicedomain.ErrAlreadySettled
		}
		if !validAmount(req.Amount) {
			return domain.ErrInvalidAmount
		}

		paid, err := s.invoiceRepo.PaidAmount(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}
		remaining := invoicedomain.Remaining(invoice.FinalAmount, paid)
		if req.Amount.GreaterThan(remaining) {
			return domain.ErrAmountExceedsRemaining
		}

		now := s.clock.Now()
		payment := domain.Payment{
			ID:          s.genID.Generate(),
			InvoiceID:   invoice.ID,
			Amount:      req.Amount,
			Method:      in.method,
			Reference:   in.reference,
			PaymentDate: in.paymentDate,
			Status:      domain.StatusCompleted,
			Notes:       in.notes,
			ProcessedBy: actorID,
			CreatedAt:   now,
		}
		if err := s.repo.Insert(ctx, tx, &payment); err != nil {
			return err
		}

		paidSoFar := paid.Add(req.Amount)
		next := invoicedomain.DeriveStatus(invoice.FinalAmount, paidSoFar, invoice.Status)
		reason := invoice.StatusReason
		if next != invoice.Status {
			reason = ""
		}
		ok, err := s.invoiceRepo.UpdateStatus(ctx, tx, invoice.ID, invoice.Version, next, reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return invoicedomain.ErrConcurrentUpdate
		}

		settled := next == invoicedomain.StatusPaid && settlesTuition(invoice.BillingMode)
		if settled {
			if err := s.studentRepo.MarkTuitionSettled(ctx, tx, invoice.StudentID); err != nil {
				return err
			}
		}

		result = domain.RecordPaymentResult{
			Payment:         payment,
			InvoiceStatus:   next,
			PaidAmount:      paidSoFar,
			RemainingAmount: invoicedomain.Remaining(invoice.FinalAmount, paidSoFar),
			TuitionSettled:  settled,
		}
		return nil
	})
	if err != nil {
		if !isRejection(err) {
			s.log.Error("record payment failed", zap.String("invoice_id", req.InvoiceID.String()), zap.Error(err))
		}
		return domain.RecordPaymentResult{}, err
	}

	amount, _ := result.Payment.Amount.Float64()
	s.metrics.PaymentRecorded(string(result.Payment.Method), string(result.Payment.Status), amount)
	s.log.Info("payment recorded",
		zap.String("invoice_id", req.InvoiceID.String()),
		zap.String("payment_id", result.Payment.ID.String()),
		zap.String("status", string(result.InvoiceStatus)),
	)
	s.audit(ctx, auditdomain.ActionPaymentRecorded, result.Payment, map[string]any{
		"invoice_status": string(result.InvoiceStatus),
	})
	return result, nil
}

func (s *Service) RecordFailedAttempt(ctx context.Context, req domain.RecordPaymentRequest) (domain.Payment, error) {
	in, err := s.normalize(req)
	if err != nil {
		return domain.Payment{}, err
	}
	if !validAmount(req.Amount) {
		return domain.Payment{}, domain.ErrInvalidAmount
	}
	_, actorID := obscontext.ActorFromContext(ctx)

	var payment domain.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.invoiceRepo.FindByID(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrNotFound
		}
		payment = domain.Payment{
			ID:          s.genID.Generate(),
			InvoiceID:   invoice.ID,
			Amount:      req.Amount,
			Method:      in.method,
			Reference:   in.reference,
			PaymentDate: in.paymentDate,
			Status:      domain.StatusFailed,
			Notes:       in.notes,
			ProcessedBy: actorID,
			CreatedAt:   s.clock.Now(),
		}
		return s.repo.Insert(ctx, tx, &payment)
	})
	if err != nil {
		if !isRejection(err) {
			s.log.Error("record failed payment attempt", zap.String("invoice_id", req.InvoiceID.String()), zap.Error(err))
		}
		return domain.Payment{}, err
	}

	s.metrics.PaymentRecorded(string(payment.Method), string(payment.Status), 0)
	s.audit(ctx, auditdomain.ActionPaymentFailed, payment, nil)
	return payment, nil
}

func (s *Service) ListPayments(ctx context.Context, invoiceID snowflake.ID) ([]domain.Payment, error) {
	if invoiceID <= 0 {
		return nil, invoicedomain.ErrInvalidID
	}
	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	return s.repo.ListByInvoice(ctx, s.db, invoiceID)
}

func (s *Service) audit(ctx context.Context, action string, payment domain.Payment, extra map[string]any) {
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{
		"invoice_id": payment.InvoiceID.String(),
		"amount":     payment.Amount.String(),
		"method":     string(payment.Method),
		"reference":  masking.MaskReference(payment.Reference),
	}
	for k, v := range extra {
		metadata[k] = v
	}
	targetID := payment.ID.String()
	if err := s.auditSvc.AuditLog(ctx, action, auditdomain.TargetPayment, &targetID, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

var rejections = []error{
	invoicedomain.ErrInvalidID,
	invoicedomain.ErrNotFound,
	invoicedomain.ErrAlreadySettled,
	invoicedomain.ErrConcurrentUpdate,
	domain.ErrAmountExceedsRemaining,
	domain.ErrInvalidAmount,
	domain.ErrInvalidMethod,
	domain.ErrInvalidPaymentDate,
}

func isRejection(err error) bool {
	return rejectReason(err) != ""
}

// rejectReason returns the sentinel code for caller errors, or "" for
// system failures.
func rejectReason(err error) string {
	for _, target := range rejections {
		if errors.Is(err, target) {
			if target == domain.ErrAmountExceedsRemaining {
				return "amount_exceeds_remaining"
			}
			return target.Error()
		}
	}
	return ""
}

func metricReason(err error) string {
	if reason := rejectReason(err); reason != "" {
		return reason
	}
	return metrics.ClassifyFailure(err)
}
