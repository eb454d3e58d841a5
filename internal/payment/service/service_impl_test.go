package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accessdomain "github.com/smallbiznis/bursar/internal/access/domain"
	accessservice "github.com/smallbiznis/bursar/internal/access/service"
	catalogrepo "github.com/smallbiznis/bursar/internal/catalog/repository"
	"github.com/smallbiznis/bursar/internal/clock"
	"github.com/smallbiznis/bursar/internal/dbtest"
	"github.com/smallbiznis/bursar/internal/feepolicy"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/bursar/internal/invoice/repository"
	obscontext "github.com/smallbiznis/bursar/internal/observability/context"
	"github.com/smallbiznis/bursar/internal/payment/domain"
	"github.com/smallbiznis/bursar/internal/payment/repository"
	studentrepo "github.com/smallbiznis/bursar/internal/student/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var now = time.Date(2024, 10, 1, 10, 0, 0, 0, time.UTC)

type harness struct {
	db       *gorm.DB
	node     *snowflake.Node
	fixture  *dbtest.Fixture
	invoices invoicedomain.Repository
	svc      domain.Service
	student  snowflake.ID
	semester snowflake.ID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fixture := dbtest.NewFixture(t, db, node)
	invoices := invoicerepo.Provide()

	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clock.NewFakeClock(now),
		Repo:        repository.Provide(),
		InvoiceRepo: invoices,
		StudentRepo: studentrepo.Provide(),
	})
	return &harness{
		db:       db,
		node:     node,
		fixture:  fixture,
		invoices: invoices,
		svc:      svc,
		student:  fixture.Student("S-001", "Ana Lima", "CS"),
		semester: fixture.Semester("2024-1", time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC), true),
	}
}

func (h *harness) invoice(t *testing.T, final string) snowflake.ID {
	t.Helper()
	return h.invoiceFor(t, feepolicy.ModeFlat, 0, final)
}

func (h *harness) invoiceFor(t *testing.T, mode feepolicy.Mode, resourceID snowflake.ID, final string) snowflake.ID {
	t.Helper()
	amount := decimal.RequireFromString(final)
	invoice := &invoicedomain.Invoice{
		ID:          h.node.Generate(),
		StudentID:   h.student,
		SemesterID:  h.semester,
		BillingMode: mode,
		ResourceID:  resourceID,
		SemesterFee: amount,
		BaseAmount:  amount,
		FinalAmount: amount,
		DueDate:     now.AddDate(0, 1, 0),
		Status:      invoicedomain.StatusUnpaid,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	ok, err := h.invoices.Insert(context.Background(), h.db, invoice)
	require.NoError(t, err)
	require.True(t, ok)
	return invoice.ID
}

func pay(id snowflake.ID, amount string) domain.RecordPaymentRequest {
	return domain.RecordPaymentRequest{
		InvoiceID: id,
		Amount:    decimal.RequireFromString(amount),
		Method:    "bank_transfer",
		Reference: "TRX-20241001-0042",
	}
}

func TestRecordPaymentPartialThenPaid(t *testing.T) {
	h := newHarness(t)
	id := h.invoice(t, "9180000")
	ctx := obscontext.WithActor(context.Background(), obscontext.Actor{ID: "bursar-7", Role: "bursar"})

	first, err := h.svc.RecordPayment(ctx, pay(id, "4180000"))
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPartial, first.InvoiceStatus)
	assert.True(t, decimal.RequireFromString("5000000").Equal(first.RemainingAmount), first.RemainingAmount.String())
	assert.False(t, first.TuitionSettled)
	assert.Equal(t, domain.MethodBankTransfer, first.Payment.Method)
	assert.Equal(t, "bursar-7", first.Payment.ProcessedBy)
	assert.False(t, h.fixture.Settled(h.student))

	second, err := h.svc.RecordPayment(ctx, pay(id, "5000000"))
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, second.InvoiceStatus)
	assert.True(t, second.RemainingAmount.IsZero())
	assert.True(t, second.TuitionSettled)
	assert.True(t, h.fixture.Settled(h.student))

	invoice, err := h.invoices.FindByID(context.Background(), h.db, id)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, invoice.Status)
	assert.Equal(t, int64(3), invoice.Version)

	_, err = h.svc.RecordPayment(ctx, pay(id, "1"))
	assert.ErrorIs(t, err, invoicedomain.ErrAlreadySettled)
}

func TestPayingResourceInvoiceDoesNotSettleTuition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cheap := h.fixture.Course("CHEAP", decimal.NewFromInt(100))
	pricey := h.fixture.Course("PRICEY", decimal.NewFromInt(9000000))
	id := h.invoiceFor(t, feepolicy.ModePerResource, cheap, "100")

	result, err := h.svc.RecordPayment(ctx, pay(id, "100"))
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, result.InvoiceStatus)
	assert.False(t, result.TuitionSettled)
	assert.False(t, h.fixture.Settled(h.student))

	gate := accessservice.NewService(accessservice.Params{
		DB:          h.db,
		Log:         zap.NewNop(),
		StudentRepo: studentrepo.Provide(),
		CatalogRepo: catalogrepo.Provide(),
		InvoiceRepo: h.invoices,
	})

	decision, err := gate.CheckAccess(ctx, h.student, cheap)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, accessdomain.ReasonResourcePaid, decision.Reason)

	decision, err = gate.CheckAccess(ctx, h.student, pricey)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, accessdomain.ReasonPaymentRequired, decision.Reason)
}

func TestPayingPerCreditInvoiceSettlesTuition(t *testing.T) {
	h := newHarness(t)
	id := h.invoiceFor(t, feepolicy.ModePerCredit, 0, "1000000")

	result, err := h.svc.RecordPayment(context.Background(), pay(id, "1000000"))
	require.NoError(t, err)
	assert.True(t, result.TuitionSettled)
	assert.True(t, h.fixture.Settled(h.student))
}

func TestRecordPaymentTruncatesNotesOnCharacterBoundary(t *testing.T) {
	h := newHarness(t)
	id := h.invoice(t, "1000000")

	req := pay(id, "1000")
	req.Notes = "a" + strings.Repeat("đ", 1200)
	result, err := h.svc.RecordPayment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, maxNotesLength, utf8.RuneCountInString(result.Payment.Notes))

	payments, err := h.svc.ListPayments(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, utf8.ValidString(payments[0].Notes))
	assert.Equal(t, "a"+strings.Repeat("đ", maxNotesLength-1), payments[0].Notes)
}

func TestUpdateStatusRejectsStaleVersion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.invoice(t, "1000000")

	ok, err := h.invoices.UpdateStatus(ctx, h.db, id, 0, invoicedomain.StatusPaid, "", now)
	require.NoError(t, err)
	assert.False(t, ok)

	invoice, err := h.invoices.FindByID(ctx, h.db, id)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusUnpaid, invoice.Status)
	assert.Equal(t, int64(1), invoice.Version)
}

// staleInvoices hands out a snapshot one version behind the stored row, as if
// another writer committed between the read and the status update.
type staleInvoices struct {
	invoicedomain.Repository
}

func (r staleInvoices) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := r.Repository.FindByIDForUpdate(ctx, db, id)
	if invoice != nil {
		invoice.Version--
	}
	return invoice, err
}

func TestRecordPaymentRollsBackOnConcurrentUpdate(t *testing.T) {
	h := newHarness(t)
	id := h.invoice(t, "1000000")

	svc := NewService(Params{
		DB:          h.db,
		Log:         zap.NewNop(),
		GenID:       h.node,
		Clock:       clock.NewFakeClock(now),
		Repo:        repository.Provide(),
		InvoiceRepo: staleInvoices{Repository: h.invoices},
		StudentRepo: studentrepo.Provide(),
	})

	_, err := svc.RecordPayment(context.Background(), pay(id, "1000000"))
	require.ErrorIs(t, err, invoicedomain.ErrConcurrentUpdate)
	assert.Equal(t, int64(0), h.fixture.Count("tuition_payments", ""))
	assert.False(t, h.fixture.Settled(h.student))

	invoice, err := h.invoices.FindByID(context.Background(), h.db, id)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusUnpaid, invoice.Status)
	assert.Equal(t, int64(1), invoice.Version)
}

func TestConcurrentPaymentsNeverOverpay(t *testing.T) {
	h := newHarness(t)
	id := h.invoice(t, "1000")

	const workers = 4
	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		errs     = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.svc.RecordPayment(context.Background(), pay(id, "600")); err != nil {
				errs <- err
				return
			}
			accepted.Add(1)
		}()
	}
	wg.Wait()
	close(errs)

	assert.Equal(t, int32(1), accepted.Load())
	for err := range errs {
		assert.True(t, errors.Is(err, domain.ErrAmountExceedsRemaining) || errors.Is(err, invoicedomain.ErrConcurrentUpdate), err.Error())
	}

	paid, err := h.invoices.PaidAmount(context.Background(), h.db, id)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(600).Equal(paid), paid.String())
	assert.Equal(t, int64(1), h.fixture.Count("tuition_payments", ""))
}

func TestRecordPaymentRejectsOverpayment(t *testing.T) {
	h := newHarness(t)
	id := h.invoice(t, "9180000")

	_, err := h.svc.RecordPayment(context.Background(), pay(id, "9180000.01"))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	require.ErrorIs(t, err, domain.ErrAmountExceedsRemaining)
	assert.Equal(t, int64(0), h.fixture.Count("tuition_payments", ""))

	invoice, err := h.invoices.FindByID(context.Background(), h.db, id)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusUnpaid, invoice.Status)
}

func TestRecordPaymentValidationOrder(t *testing.T) {
	h := newHarness(t)
	open := h.invoice(t, "1000000")
	waived := h.invoice(t, "2000000")
	h.fixture.SetInvoiceStatus(waived, string(invoicedomain.StatusWaived))
	future := now.Add(48 * time.Hour)

	cases := []struct {
		name string
		req  domain.RecordPaymentRequest
		want error
	}{
		{"missing invoice beats bad amount", pay(h.node.Generate(), "0"), invoicedomain.ErrNotFound},
		{"settled beats bad amount", pay(waived, "0"), invoicedomain.ErrAlreadySettled},
		{"zero amount", pay(open, "0"), domain.ErrInvalidAmount},
		{"negative amount", pay(open, "-5"), domain.ErrInvalidAmount},
		{"sub-cent amount", pay(open, "10.001"), domain.ErrInvalidAmount},
		{"unknown method", domain.RecordPaymentRequest{InvoiceID: open, Amount: decimal.NewFromInt(1), Method: "CHEQUE"}, domain.ErrInvalidMethod},
		{"future date", domain.RecordPaymentRequest{InvoiceID: open, Amount: decimal.NewFromInt(1), Method: "CASH", PaymentDate: &future}, domain.ErrInvalidPaymentDate},
		{"no invoice id", pay(0, "1"), invoicedomain.ErrInvalidID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.RecordPayment(context.Background(), tc.req)
			require.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, int64(0), h.fixture.Count("tuition_payments", ""))
}

func TestFailedAttemptsAreKeptButNotCounted(t *testing.T) {
	h := newHarness(t)
	id := h.invoice(t, "1000000")
	ctx := context.Background()

	failed, err := h.svc.RecordFailedAttempt(ctx, pay(id, "1000000"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, failed.Status)

	invoice, err := h.invoices.FindByID(ctx, h.db, id)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusUnpaid, invoice.Status)

	result, err := h.svc.RecordPayment(ctx, pay(id, "1000000"))
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, result.InvoiceStatus)

	payments, err := h.svc.ListPayments(ctx, id)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, failed.ID, payments[0].ID)

	_, err = h.svc.ListPayments(ctx, h.node.Generate())
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)
}

func TestSumOfCompletedPaymentsNeverExceedsFinal(t *testing.T) {
	h := newHarness(t)
	id := h.invoice(t, "100")
	ctx := context.Background()

	amounts := []string{"30", "30", "50", "40", "1", "0.5"}
	accepted := decimal.Zero
	for _, a := range amounts {
		result, err := h.svc.RecordPayment(ctx, pay(id, a))
		if err == nil {
			accepted = accepted.Add(result.Payment.Amount)
		}
		assert.True(t, accepted.LessThanOrEqual(decimal.NewFromInt(100)))
	}

	paid, err := h.invoices.PaidAmount(ctx, h.db, id)
	require.NoError(t, err)
	assert.True(t, accepted.Equal(paid), paid.String())
	assert.True(t, decimal.NewFromInt(100).Equal(paid))
}
