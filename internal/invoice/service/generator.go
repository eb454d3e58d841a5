package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/bursar/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/bursar/internal/catalog/domain"
	"github.com/smallbiznis/bursar/internal/feepolicy"
	"github.com/smallbiznis/bursar/internal/invoice/domain"
	"github.com/smallbiznis/bursar/internal/lock"
	"github.com/smallbiznis/bursar/internal/observability/tracing"
	semesterdomain "github.com/smallbiznis/bursar/internal/semester/domain"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	pkgdb "github.com/smallbiznis/bursar/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type policy struct {
	Mode                  feepolicy.Mode
	AmountPerCredit       decimal.Decimal
	SemesterFee           decimal.Decimal
	DiscountPercentage    decimal.Decimal
	DueDate               *time.Time
	DueDays               int
	IncludeCarriedBalance bool
}

// resolvePolicy fills empty request fields from the billing defaults.
func (s *Service) resolvePolicy(cfg domain.PolicyConfig) (policy, error) {
	defaults := s.billing.Get()

	rawMode := cfg.Mode
	if rawMode == "" {
		rawMode = defaults.DefaultMode
	}
	mode, err := feepolicy.ParseMode(rawMode)
	if err != nil {
		return policy{}, err
	}
	if mode == feepolicy.ModePerResource {
		return policy{}, feepolicy.ErrInvalidMode
	}

	p := policy{
		Mode:                  mode,
		AmountPerCredit:       defaults.AmountPerCreditValue(),
		SemesterFee:           defaults.SemesterFeeValue(),
		DiscountPercentage:    defaults.DiscountPercentageValue(),
		DueDate:               cfg.DueDate,
		DueDays:               defaults.DefaultDueDays,
		IncludeCarriedBalance: defaults.IncludeCarriedBalance,
	}
	if cfg.AmountPerCredit != nil {
		p.AmountPerCredit = *cfg.AmountPerCredit
	}
	if cfg.SemesterFee != nil {
		p.SemesterFee = *cfg.SemesterFee
	}
	if cfg.DiscountPercentage != nil {
		p.DiscountPercentage = *cfg.DiscountPercentage
	}
	if cfg.IncludeCarriedBalance != nil {
		p.IncludeCarriedBalance = *cfg.IncludeCarriedBalance
	}

	switch mode {
	case feepolicy.ModePerCredit:
		if !p.AmountPerCredit.IsPositive() {
			return policy{}, feepolicy.ErrInvalidRate
		}
		p.SemesterFee = decimal.Zero
	case feepolicy.ModeFlat:
		if !p.SemesterFee.IsPositive() {
			return policy{}, feepolicy.ErrInvalidRate
		}
		p.AmountPerCredit = decimal.Zero
	}
	if err := feepolicy.ValidateDiscount(p.DiscountPercentage); err != nil {
		return policy{}, err
	}
	if p.DueDate != nil && p.DueDate.IsZero() {
		return policy{}, domain.ErrInvalidDueDate
	}
	return p, nil
}

func (p policy) dueDate(semester semesterdomain.Semester) time.Time {
	if p.DueDate != nil {
		return p.DueDate.UTC()
	}
	return semester.StartDate.AddDate(0, 0, p.DueDays).UTC()
}

func (s *Service) GenerateInvoices(ctx context.Context, req domain.GenerateRequest) (result domain.GenerateResult, err error) {
	started := time.Now()
	ctx, span := tracing.Start(ctx, "invoice.generate",
		attribute.String("semester_id", req.SemesterID.String()),
		attribute.Int("requested_students", len(req.StudentIDs)),
	)
	defer func() {
		s.metrics.GenerationFinished(started, err)
		tracing.End(span, err)
	}()

	if req.SemesterID <= 0 {
		return domain.GenerateResult{}, semesterdomain.ErrInvalidID
	}
	for _, id := range req.StudentIDs {
		if id <= 0 {
			return domain.GenerateResult{}, domain.ErrInvalidStudent
		}
	}
	p, err := s.resolvePolicy(req.Policy)
	if err != nil {
		return domain.GenerateResult{}, err
	}

	semester, err := s.semesterRepo.FindByID(ctx, s.db, req.SemesterID)
	if err != nil {
		return domain.GenerateResult{}, err
	}
	if semester == nil {
		return domain.GenerateResult{}, semesterdomain.ErrNotFound
	}

	release, err := s.acquireGenerationLock(ctx, semester.ID, p.Mode)
	if err != nil {
		return domain.GenerateResult{}, err
	}
	defer release()

	log := s.log.With(
		zap.String("semester_id", semester.ID.String()),
		zap.String("mode", string(p.Mode)),
	)
	dueDate := p.dueDate(*semester)
	now := s.clock.Now()

	var created []domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		studentIDs := dedupe(req.StudentIDs)
		if len(studentIDs) == 0 {
			registered, err := s.registrationRepo.RegisteredStudents(ctx, tx, semester.ID)
			if err != nil {
				return err
			}
			studentIDs = registered
		}

		result = domain.GenerateResult{
			SemesterID: semester.ID,
			Mode:       p.Mode,
			Results:    make([]domain.StudentOutcome, 0, len(studentIDs)),
		}
		created = created[:0]
		for _, studentID := range studentIDs {
			outcome, invoice, err := s.generateForStudent(ctx, tx, *semester, studentID, p, dueDate, now)
			if err != nil {
				log.Error("invoice generation aborted", zap.String("student_id", studentID.String()), zap.Error(err))
				return err
			}
			result.Results = append(result.Results, outcome)
			if invoice != nil {
				created = append(created, *invoice)
				result.Created++
			} else {
				result.Skipped++
			}
		}
		return nil
	}, pkgdb.ReadCommitted(s.db))
	if err != nil {
		return domain.GenerateResult{}, err
	}

	for _, invoice := range created {
		s.metrics.InvoiceGenerated(string(invoice.BillingMode))
	}
	for _, outcome := range result.Results {
		if outcome.SkipReason != "" {
			s.metrics.InvoiceSkipped(outcome.SkipReason)
		}
	}
	log.Info("invoice generation committed",
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
	)
	s.audit(ctx, auditdomain.ActionInvoicesGenerated, auditdomain.TargetSemester, semester.ID, map[string]any{
		"mode":                    string(p.Mode),
		"created":                 result.Created,
		"skipped":                 result.Skipped,
		"discount_percentage":     p.DiscountPercentage.String(),
		"include_carried_balance": p.IncludeCarriedBalance,
	})
	return result, nil
}

// generateForStudent bills one student. A nil invoice with a nil error means
// the student was skipped and outcome carries the reason.
func (s *Service) generateForStudent(
	ctx context.Context,
	tx *gorm.DB,
	semester semesterdomain.Semester,
	studentID snowflake.ID,
	p policy,
	dueDate time.Time,
	now time.Time,
) (domain.StudentOutcome, *domain.Invoice, error) {
	outcome := domain.StudentOutcome{StudentID: studentID}

	student, err := s.studentRepo.FindByID(ctx, tx, studentID)
	if err != nil {
		return outcome, nil, err
	}
	if student == nil {
		outcome.SkipReason = domain.SkipStudentNotFound
		return outcome, nil, nil
	}

	credits, err := s.registrationRepo.ApprovedCredits(ctx, tx, studentID, semester.ID)
	if err != nil {
		return outcome, nil, err
	}
	if credits == 0 {
		outcome.SkipReason = domain.SkipNoCourses
		return outcome, nil, nil
	}

	exists, err := s.repo.Exists(ctx, tx, studentID, semester.ID, p.Mode, 0)
	if err != nil {
		return outcome, nil, err
	}
	if exists {
		outcome.SkipReason = domain.SkipDuplicate
		return outcome, nil, nil
	}

	quote, err := feepolicy.Compute(feepolicy.Input{
		Mode:               p.Mode,
		Credits:            credits,
		AmountPerCredit:    p.AmountPerCredit,
		SemesterFee:        p.SemesterFee,
		DiscountPercentage: p.DiscountPercentage,
	})
	if err != nil {
		return outcome, nil, err
	}

	carried := decimal.Zero
	if p.IncludeCarriedBalance {
		carried, err = s.repo.UnresolvedBalance(ctx, tx, studentID, semester.ID)
		if err != nil {
			return outcome, nil, err
		}
	}

	invoice := &domain.Invoice{
		ID:                 s.genID.Generate(),
		StudentID:          studentID,
		SemesterID:         semester.ID,
		BillingMode:        p.Mode,
		CreditsRegistered:  credits,
		AmountPerCredit:    p.AmountPerCredit,
		SemesterFee:        p.SemesterFee,
		BaseAmount:         quote.Base,
		DiscountPercentage: p.DiscountPercentage,
		DiscountAmount:     quote.Discount,
		CarriedBalance:     carried,
		FinalAmount:        feepolicy.Final(quote, carried),
		DueDate:            dueDate,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	invoice.Status = initialStatus(invoice.FinalAmount)

	inserted, err := s.repo.Insert(ctx, tx, invoice)
	if err != nil {
		return outcome, nil, err
	}
	if !inserted {
		outcome.SkipReason = domain.SkipDuplicate
		return outcome, nil, nil
	}

	id := invoice.ID
	final := invoice.FinalAmount
	outcome.InvoiceID = &id
	outcome.FinalAmount = &final
	return outcome, invoice, nil
}

func (s *Service) GenerateResourceInvoice(ctx context.Context, req domain.ResourceInvoiceRequest) (domain.Invoice, error) {
	if req.StudentID <= 0 {
		return domain.Invoice{}, domain.ErrInvalidStudent
	}
	if req.ResourceID <= 0 {
		return domain.Invoice{}, domain.ErrInvalidResource
	}
	if err := feepolicy.ValidateDiscount(req.DiscountPercentage); err != nil {
		return domain.Invoice{}, err
	}
	if req.DueDate != nil && req.DueDate.IsZero() {
		return domain.Invoice{}, domain.ErrInvalidDueDate
	}

	ctx, span := tracing.Start(ctx, "invoice.generate_resource",
		attribute.String("student_id", req.StudentID.String()),
		attribute.String("resource_id", req.ResourceID.String()),
	)

	var invoice domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		semester, err := s.findSemester(ctx, tx, req.SemesterID)
		if err != nil {
			return err
		}
		student, err := s.studentRepo.FindByID(ctx, tx, req.StudentID)
		if err != nil {
			return err
		}
		if student == nil {
			return studentdomain.ErrNotFound
		}
		course, err := s.catalogRepo.FindByID(ctx, tx, req.ResourceID)
		if err != nil {
			return err
		}
		if course == nil {
			return catalogdomain.ErrNotFound
		}
		if !course.Price.IsPositive() {
			return domain.ErrResourceNotBillable
		}

		quote, err := feepolicy.Compute(feepolicy.Input{
			Mode:               feepolicy.ModePerResource,
			ResourcePrice:      course.Price,
			DiscountPercentage: req.DiscountPercentage,
		})
		if err != nil {
			return err
		}

		dueDate := semester.StartDate.AddDate(0, 0, s.billing.Get().DefaultDueDays).UTC()
		if req.DueDate != nil {
			dueDate = req.DueDate.UTC()
		}
		now := s.clock.Now()
		invoice = domain.Invoice{
			ID:                 s.genID.Generate(),
			StudentID:          student.ID,
			SemesterID:         semester.ID,
			BillingMode:        feepolicy.ModePerResource,
			ResourceID:         course.ID,
			BaseAmount:         quote.Base,
			DiscountPercentage: req.DiscountPercentage,
			DiscountAmount:     quote.Discount,
			CarriedBalance:     decimal.Zero,
			FinalAmount:        feepolicy.Final(quote, decimal.Zero),
			DueDate:            dueDate,
			Version:            1,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		invoice.Status = initialStatus(invoice.FinalAmount)

		inserted, err := s.repo.Insert(ctx, tx, &invoice)
		if err != nil {
			return err
		}
		if !inserted {
			return domain.ErrDuplicateInvoice
		}
		return nil
	})
	tracing.End(span, err)
	if err != nil {
		if !isExpected(err) {
			s.log.Error("resource invoice generation failed",
				zap.String("student_id", req.StudentID.String()),
				zap.String("resource_id", req.ResourceID.String()),
				zap.Error(err),
			)
		}
		return domain.Invoice{}, err
	}

	s.metrics.InvoiceGenerated(string(feepolicy.ModePerResource))
	s.audit(ctx, auditdomain.ActionInvoiceGenerated, auditdomain.TargetInvoice, invoice.ID, map[string]any{
		"student_id":   invoice.StudentID.String(),
		"semester_id":  invoice.SemesterID.String(),
		"resource_id":  invoice.ResourceID.String(),
		"final_amount": invoice.FinalAmount.String(),
	})
	return invoice, nil
}

func (s *Service) findSemester(ctx context.Context, db *gorm.DB, id snowflake.ID) (*semesterdomain.Semester, error) {
	if id == 0 {
		semester, err := s.semesterRepo.FindCurrent(ctx, db)
		if err != nil {
			return nil, err
		}
		if semester == nil {
			return nil, semesterdomain.ErrNoCurrent
		}
		return semester, nil
	}
	if id < 0 {
		return nil, semesterdomain.ErrInvalidID
	}
	semester, err := s.semesterRepo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if semester == nil {
		return nil, semesterdomain.ErrNotFound
	}
	return semester, nil
}

// acquireGenerationLock serialises batches for the same semester and mode
// across replicas. Redis failures degrade to the unique-key guard.
func (s *Service) acquireGenerationLock(ctx context.Context, semesterID snowflake.ID, mode feepolicy.Mode) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}

	key := lock.GenerationKey(semesterID.String(), string(mode))
	token, ok, err := s.locker.TryLock(ctx, key, s.billing.Get().LockTTL())
	if err != nil {
		s.log.Warn("generation lock unavailable", zap.String("key", key), zap.Error(err))
		return noop, nil
	}
	if !ok {
		return noop, domain.ErrGenerationInProgress
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("release generation lock failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// A fully discounted invoice has nothing to collect.
func initialStatus(final decimal.Decimal) domain.Status {
	if final.IsPositive() {
		return domain.StatusUnpaid
	}
	return domain.StatusPaid
}

func dedupe(ids []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
