package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditrepo "github.com/smallbiznis/bursar/internal/audit/repository"
	auditservice "github.com/smallbiznis/bursar/internal/audit/service"
	catalogrepo "github.com/smallbiznis/bursar/internal/catalog/repository"
	"github.com/smallbiznis/bursar/internal/clock"
	"github.com/smallbiznis/bursar/internal/config"
	"github.com/smallbiznis/bursar/internal/dbtest"
	"github.com/smallbiznis/bursar/internal/feepolicy"
	"github.com/smallbiznis/bursar/internal/invoice/domain"
	"github.com/smallbiznis/bursar/internal/invoice/repository"
	registrationdomain "github.com/smallbiznis/bursar/internal/registration/domain"
	registrationrepo "github.com/smallbiznis/bursar/internal/registration/repository"
	semesterdomain "github.com/smallbiznis/bursar/internal/semester/domain"
	semesterrepo "github.com/smallbiznis/bursar/internal/semester/repository"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	studentrepo "github.com/smallbiznis/bursar/internal/student/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var fallStart = time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)

type harness struct {
	db      *gorm.DB
	node    *snowflake.Node
	fixture *dbtest.Fixture
	svc     domain.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 8, 20, 9, 0, 0, 0, time.UTC))

	billing := config.DefaultBillingConfig()
	billing.AmountPerCredit = "850000"
	billing.SemesterFee = "8000000"

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  auditrepo.Provide(),
	})

	svc := NewService(Params{
		DB:               db,
		Log:              zap.NewNop(),
		GenID:            node,
		Clock:            clk,
		Repo:             repository.Provide(),
		StudentRepo:      studentrepo.Provide(),
		RegistrationRepo: registrationrepo.Provide(),
		SemesterRepo:     semesterrepo.Provide(),
		CatalogRepo:      catalogrepo.Provide(),
		Billing:          config.NewStaticBillingConfigHolder(billing),
		AuditSvc:         auditSvc,
	})
	return &harness{db: db, node: node, fixture: dbtest.NewFixture(t, db, node), svc: svc}
}

// enroll registers the student for subjects summing to credits.
func (h *harness) enroll(studentID, semesterID snowflake.ID, credits ...int) {
	for i, c := range credits {
		subject := h.fixture.Subject(studentID.String()+"-"+semesterID.String()+"-"+string(rune('A'+i)), c)
		h.fixture.Register(studentID, semesterID, subject, registrationdomain.StatusApproved)
	}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func boolPtr(v bool) *bool { return &v }

func TestGenerateInvoicesPerCreditWithDiscount(t *testing.T) {
	h := newHarness(t)
	semester := h.fixture.Semester("2024-1", fallStart, true)
	student := h.fixture.Student("S-001", "Ana Lima", "CS")
	h.enroll(student, semester, 3, 3, 3, 3)

	result, err := h.svc.GenerateInvoices(context.Background(), domain.GenerateRequest{
		SemesterID: semester,
		Policy: domain.PolicyConfig{
			Mode:               "PER_CREDIT",
			DiscountPercentage: decPtr("10"),
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
	require.Equal(t, 0, result.Skipped)
	require.NotNil(t, result.Results[0].InvoiceID)

	view, err := h.svc.GetInvoice(context.Background(), *result.Results[0].InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, 12, view.CreditsRegistered)
	assert.True(t, dec("10200000").Equal(view.BaseAmount), view.BaseAmount.String())
	assert.True(t, dec("1020000").Equal(view.DiscountAmount), view.DiscountAmount.String())
	assert.True(t, view.CarriedBalance.IsZero())
	assert.True(t, dec("9180000").Equal(view.FinalAmount), view.FinalAmount.String())
	assert.True(t, dec("9180000").Equal(view.RemainingAmount))
	assert.Equal(t, domain.StatusUnpaid, view.Status)
	assert.Equal(t, feepolicy.ModePerCredit, view.BillingMode)
	assert.Equal(t, "S-001", view.StudentCode)
	assert.True(t, fallStart.AddDate(0, 0, 30).Equal(view.DueDate))

	assert.Equal(t, int64(1), h.fixture.Count("audit_logs", "action = ?", "invoice.batch_generated"))
}

func TestGenerateInvoicesIsIdempotent(t *testing.T) {
	h := newHarness(t)
	semester := h.fixture.Semester("2024-1", fallStart, true)
	student := h.fixture.Student("S-001", "Ana Lima", "CS")
	h.enroll(student, semester, 4)

	req := domain.GenerateRequest{SemesterID: semester}
	first, err := h.svc.GenerateInvoices(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, first.Created)

	second, err := h.svc.GenerateInvoices(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	require.Len(t, second.Results, 1)
	assert.Equal(t, domain.SkipDuplicate, second.Results[0].SkipReason)
	assert.Equal(t, int64(1), h.fixture.Count("tuitions", ""))
}

func TestGenerateInvoicesSkipsStudents(t *testing.T) {
	h := newHarness(t)
	semester := h.fixture.Semester("2024-1", fallStart, true)
	enrolled := h.fixture.Student("S-001", "Ana Lima", "CS")
	pending := h.fixture.Student("S-002", "Bruno Sá", "CS")
	h.enroll(enrolled, semester, 3)
	subject := h.fixture.Subject("PEND-1", 3)
	h.fixture.Register(pending, semester, subject, "PENDING")
	missing := h.node.Generate()

	result, err := h.svc.GenerateInvoices(context.Background(), domain.GenerateRequest{
		SemesterID: semester,
		StudentIDs: []snowflake.ID{enrolled, pending, missing, enrolled},
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 3)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 2, result.Skipped)

	reasons := map[snowflake.ID]string{}
	for _, r := range result.Results {
		reasons[r.StudentID] = r.SkipReason
	}
	assert.Empty(t, reasons[enrolled])
	assert.Equal(t, domain.SkipNoCourses, reasons[pending])
	assert.Equal(t, domain.SkipStudentNotFound, reasons[missing])
}

func TestGenerateInvoicesFoldsCarriedBalance(t *testing.T) {
	h := newHarness(t)
	prior := h.fixture.Semester("2023-2", fallStart.AddDate(0, -6, 0), false)
	current := h.fixture.Semester("2024-1", fallStart, true)
	student := h.fixture.Student("S-001", "Ana Lima", "CS")
	h.enroll(student, prior, 3)
	h.enroll(student, current, 3)

	old, err := h.svc.GenerateInvoices(context.Background(), domain.GenerateRequest{
		SemesterID: prior,
		Policy: domain.PolicyConfig{
			Mode:                  "FLAT",
			SemesterFee:           decPtr("5000000"),
			IncludeCarriedBalance: boolPtr(false),
		},
	})
	require.NoError(t, err)
	oldID := *old.Results[0].InvoiceID
	h.fixture.Payment(oldID, dec("3000000"), "CASH", "COMPLETED", fallStart.AddDate(0, -5, 0))
	h.fixture.Payment(oldID, dec("1000000"), "CARD", "FAILED", fallStart.AddDate(0, -5, 0))
	h.fixture.SetInvoiceStatus(oldID, string(domain.StatusPartial))

	carried, err := h.svc.CarriedBalance(context.Background(), student, current)
	require.NoError(t, err)
	assert.True(t, dec("2000000").Equal(carried), carried.String())

	result, err := h.svc.GenerateInvoices(context.Background(), domain.GenerateRequest{
		SemesterID: current,
		Policy:     domain.PolicyConfig{Mode: "FLAT"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)

	view, err := h.svc.GetInvoice(context.Background(), *result.Results[0].InvoiceID)
	require.NoError(t, err)
	assert.True(t, dec("8000000").Equal(view.BaseAmount))
	assert.True(t, dec("2000000").Equal(view.CarriedBalance), view.CarriedBalance.String())
	assert.True(t, dec("10000000").Equal(view.FinalAmount), view.FinalAmount.String())
}

func TestGenerateInvoicesFullDiscountIsPaid(t *testing.T) {
	h := newHarness(t)
	semester := h.fixture.Semester("2024-1", fallStart, true)
	student := h.fixture.Student("S-001", "Ana Lima", "CS")
	h.enroll(student, semester, 6)

	result, err := h.svc.GenerateInvoices(context.Background(), domain.GenerateRequest{
		SemesterID: semester,
		Policy:     domain.PolicyConfig{DiscountPercentage: decPtr("100")},
	})
	require.NoError(t, err)

	view, err := h.svc.GetInvoice(context.Background(), *result.Results[0].InvoiceID)
	require.NoError(t, err)
	assert.True(t, view.FinalAmount.IsZero())
	assert.Equal(t, domain.StatusPaid, view.Status)
}

func TestGenerateInvoicesRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	semester := h.fixture.Semester("2024-1", fallStart, true)
	student := h.fixture.Student("S-001", "Ana Lima", "CS")
	h.enroll(student, semester, 3)

	cases := []struct {
		name string
		req  domain.GenerateRequest
		want error
	}{
		{"discount above 100", domain.GenerateRequest{SemesterID: semester, Policy: domain.PolicyConfig{DiscountPercentage: decPtr("150")}}, feepolicy.ErrInvalidDiscount},
		{"negative discount", domain.GenerateRequest{SemesterID: semester, Policy: domain.PolicyConfig{DiscountPercentage: decPtr("-1")}}, feepolicy.ErrInvalidDiscount},
		{"per resource batch", domain.GenerateRequest{SemesterID: semester, Policy: domain.PolicyConfig{Mode: "PER_RESOURCE"}}, feepolicy.ErrInvalidMode},
		{"unknown mode", domain.GenerateRequest{SemesterID: semester, Policy: domain.PolicyConfig{Mode: "HOURLY"}}, feepolicy.ErrInvalidMode},
		{"zero rate", domain.GenerateRequest{SemesterID: semester, Policy: domain.PolicyConfig{AmountPerCredit: decPtr("0")}}, feepolicy.ErrInvalidRate},
		{"missing semester id", domain.GenerateRequest{}, semesterdomain.ErrInvalidID},
		{"unknown semester", domain.GenerateRequest{SemesterID: h.node.Generate()}, semesterdomain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.GenerateInvoices(context.Background(), tc.req)
			require.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, int64(0), h.fixture.Count("tuitions", ""))
}

func TestGenerateResourceInvoice(t *testing.T) {
	h := newHarness(t)
	h.fixture.Semester("2024-1", fallStart, true)
	student := h.fixture.Student("S-001", "Ana Lima", "CS")
	paid := h.fixture.Course("ML-101", dec("1500000"))
	free := h.fixture.Course("INTRO", decimal.Zero)
	ctx := context.Background()

	invoice, err := h.svc.GenerateResourceInvoice(ctx, domain.ResourceInvoiceRequest{
		StudentID:          student,
		ResourceID:         paid,
		DiscountPercentage: dec("20"),
	})
	require.NoError(t, err)
	assert.Equal(t, feepolicy.ModePerResource, invoice.BillingMode)
	assert.Equal(t, paid, invoice.ResourceID)
	assert.True(t, dec("1200000").Equal(invoice.FinalAmount), invoice.FinalAmount.String())
	assert.Equal(t, domain.StatusUnpaid, invoice.Status)

	_, err = h.svc.GenerateResourceInvoice(ctx, domain.ResourceInvoiceRequest{StudentID: student, ResourceID: paid})
	assert.ErrorIs(t, err, domain.ErrDuplicateInvoice)

	_, err = h.svc.GenerateResourceInvoice(ctx, domain.ResourceInvoiceRequest{StudentID: student, ResourceID: free})
	assert.ErrorIs(t, err, domain.ErrResourceNotBillable)

	_, err = h.svc.GenerateResourceInvoice(ctx, domain.ResourceInvoiceRequest{StudentID: h.node.Generate(), ResourceID: paid})
	assert.ErrorIs(t, err, studentdomain.ErrNotFound)

	_, err = h.svc.GenerateResourceInvoice(ctx, domain.ResourceInvoiceRequest{StudentID: student, ResourceID: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidResource)
}

func TestGenerateResourceInvoiceNeedsCurrentSemester(t *testing.T) {
	h := newHarness(t)
	h.fixture.Semester("2024-1", fallStart, false)
	student := h.fixture.Student("S-001", "Ana Lima", "CS")
	course := h.fixture.Course("ML-101", dec("1500000"))

	_, err := h.svc.GenerateResourceInvoice(context.Background(), domain.ResourceInvoiceRequest{
		StudentID:  student,
		ResourceID: course,
	})
	assert.ErrorIs(t, err, semesterdomain.ErrNoCurrent)
}

func TestOverrideStatus(t *testing.T) {
	h := newHarness(t)
	semester := h.fixture.Semester("2024-1", fallStart, true)
	student := h.fixture.Student("S-001", "Ana Lima", "CS")
	h.enroll(student, semester, 2)
	result, err := h.svc.GenerateInvoices(context.Background(), domain.GenerateRequest{SemesterID: semester})
	require.NoError(t, err)
	id := *result.Results[0].InvoiceID
	ctx := context.Background()

	view, err := h.svc.OverrideStatus(ctx, domain.OverrideRequest{InvoiceID: id, Status: "overdue", Reason: "past due"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOverdue, view.Status)
	assert.Equal(t, "past due", view.StatusReason)

	h.fixture.Payment(id, dec("100000"), "CASH", "COMPLETED", fallStart)
	view, err = h.svc.OverrideStatus(ctx, domain.OverrideRequest{InvoiceID: id, Status: domain.StatusReset})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartial, view.Status)

	view, err = h.svc.OverrideStatus(ctx, domain.OverrideRequest{InvoiceID: id, Status: "WAIVED", Reason: "scholarship"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaived, view.Status)

	_, err = h.svc.OverrideStatus(ctx, domain.OverrideRequest{InvoiceID: id, Status: "PAID"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	h.fixture.SetInvoiceStatus(id, string(domain.StatusPaid))
	_, err = h.svc.OverrideStatus(ctx, domain.OverrideRequest{InvoiceID: id, Status: "OVERDUE"})
	assert.ErrorIs(t, err, domain.ErrAlreadySettled)

	_, err = h.svc.OverrideStatus(ctx, domain.OverrideRequest{InvoiceID: h.node.Generate(), Status: "OVERDUE"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, int64(3), h.fixture.Count("audit_logs", "action = ?", "invoice.status_overridden"))
}

func TestListInvoicesFiltersAndPaginates(t *testing.T) {
	h := newHarness(t)
	semester := h.fixture.Semester("2024-1", fallStart, true)
	ana := h.fixture.Student("S-001", "Ana Lima", "CS")
	bruno := h.fixture.Student("S-002", "Bruno Sá", "CS")
	carla := h.fixture.Student("S-003", "Carla Dias", "EE")
	for _, s := range []snowflake.ID{ana, bruno, carla} {
		h.enroll(s, semester, 3)
	}
	_, err := h.svc.GenerateInvoices(context.Background(), domain.GenerateRequest{SemesterID: semester})
	require.NoError(t, err)
	ctx := context.Background()

	req := domain.ListInvoiceRequest{SemesterID: semester}
	req.PageSize = 2
	page, err := h.svc.ListInvoices(ctx, req)
	require.NoError(t, err)
	require.Len(t, page.Invoices, 2)
	require.True(t, page.HasMore)
	require.NotEmpty(t, page.NextPageToken)

	req.PageToken = page.NextPageToken
	next, err := h.svc.ListInvoices(ctx, req)
	require.NoError(t, err)
	require.Len(t, next.Invoices, 1)
	assert.False(t, next.HasMore)

	found, err := h.svc.ListInvoices(ctx, domain.ListInvoiceRequest{StudentSearch: "carla"})
	require.NoError(t, err)
	require.Len(t, found.Invoices, 1)
	assert.Equal(t, carla, found.Invoices[0].StudentID)

	found, err = h.svc.ListInvoices(ctx, domain.ListInvoiceRequest{StudentID: bruno, Status: "unpaid"})
	require.NoError(t, err)
	require.Len(t, found.Invoices, 1)

	found, err = h.svc.ListInvoices(ctx, domain.ListInvoiceRequest{Status: "PAID"})
	require.NoError(t, err)
	assert.Empty(t, found.Invoices)

	_, err = h.svc.ListInvoices(ctx, domain.ListInvoiceRequest{Status: "LOST"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
