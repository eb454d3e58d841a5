package render

import (
	"context"
	"fmt"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bursar/internal/audit/masking"
	"github.com/smallbiznis/bursar/internal/feepolicy"
	"github.com/smallbiznis/bursar/internal/invoice/domain"
)

type PaymentLine struct {
	Date      time.Time
	Method    string
	Reference string
	Status    string
	Amount    decimal.Decimal
}

// Statement is everything printed on a tuition statement.
type Statement struct {
	InstitutionName string
	SemesterCode    string
	Invoice         domain.InvoiceView
	Payments        []PaymentLine
	IssuedAt        time.Time
}

type Renderer interface {
	Render(ctx context.Context, statement Statement) ([]byte, error)
}

type PDFRenderer struct{}

func NewPDFRenderer() Renderer {
	return &PDFRenderer{}
}

var (
	headerText = props.Text{Style: fontstyle.Bold, Size: 9}
	cellText   = props.Text{Size: 9}
	rightText  = props.Text{Size: 9, Align: align.Right}
	rightBold  = props.Text{Size: 9, Align: align.Right, Style: fontstyle.Bold}
)

func (r *PDFRenderer) Render(ctx context.Context, st Statement) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inv := st.Invoice
	if inv.ID == 0 {
		return nil, domain.ErrNotFound
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, st.InstitutionName, props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Left}),
		text.NewCol(4, "Tuition statement", props.Text{Size: 12, Align: align.Right, Top: 2}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Invoice number: "+FormatInvoiceNumber(inv.ID, inv.CreatedAt), props.Text{Top: 0}),
			text.New("Date of issue: "+formatDate(inv.CreatedAt), props.Text{Top: 5}),
			text.New("Date due: "+formatDate(inv.DueDate), props.Text{Top: 10}),
			text.New("Semester: "+st.SemesterCode, props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(inv.StudentName, props.Text{Top: 5}),
			text.New("Student code: "+inv.StudentCode, props.Text{Top: 10}),
			text.New("Status: "+string(inv.Status), props.Text{Top: 15}),
		),
	)

	m.AddRow(14,
		text.NewCol(12, FormatAmount(inv.RemainingAmount)+" due "+formatDate(inv.DueDate), props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   4,
		}),
	)

	m.AddRow(8,
		text.NewCol(6, "Description", headerText),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, line := range chargeLines(inv) {
		m.AddRow(8,
			text.NewCol(6, line.description, cellText),
			text.NewCol(2, line.qty, rightText),
			text.NewCol(2, line.unit, rightText),
			text.NewCol(2, line.amount, rightText),
		)
	}

	totals := []struct {
		label string
		value decimal.Decimal
		bold  bool
	}{
		{"Total", inv.FinalAmount, false},
		{"Paid", inv.PaidAmount, false},
		{"Amount due", inv.RemainingAmount, true},
	}
	for _, t := range totals {
		style := rightText
		if t.bold {
			style = rightBold
		}
		m.AddRow(7,
			col.New(8),
			text.NewCol(2, t.label, cellText),
			text.NewCol(2, FormatAmount(t.value), style),
		)
	}

	if len(st.Payments) > 0 {
		m.AddRow(12, text.NewCol(12, "Payments", props.Text{Size: 11, Style: fontstyle.Bold, Top: 5}))
		m.AddRow(8,
			text.NewCol(3, "Date", headerText),
			text.NewCol(3, "Method", headerText),
			text.NewCol(2, "Reference", headerText),
			text.NewCol(2, "Status", headerText),
			text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		)
		for _, p := range st.Payments {
			m.AddRow(7,
				text.NewCol(3, formatDate(p.Date), cellText),
				text.NewCol(3, p.Method, cellText),
				text.NewCol(2, masking.MaskReference(p.Reference), cellText),
				text.NewCol(2, p.Status, cellText),
				text.NewCol(2, FormatAmount(p.Amount), rightText),
			)
		}
	}

	if !st.IssuedAt.IsZero() {
		m.AddRow(10, text.NewCol(12, "Generated "+st.IssuedAt.UTC().Format(time.RFC3339), props.Text{Size: 7, Top: 4}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("render statement: %w", err)
	}
	return doc.GetBytes(), nil
}

type chargeLine struct {
	description string
	qty         string
	unit        string
	amount      string
}

func chargeLines(inv domain.InvoiceView) []chargeLine {
	var lines []chargeLine
	switch inv.BillingMode {
	case feepolicy.ModePerCredit:
		lines = append(lines, chargeLine{
			description: "Tuition per credit",
			qty:         fmt.Sprintf("%d", inv.CreditsRegistered),
			unit:        FormatAmount(inv.AmountPerCredit),
			amount:      FormatAmount(inv.BaseAmount),
		})
	case feepolicy.ModeFlat:
		lines = append(lines, chargeLine{
			description: fmt.Sprintf("Semester fee (%d credits)", inv.CreditsRegistered),
			qty:         "1",
			unit:        FormatAmount(inv.SemesterFee),
			amount:      FormatAmount(inv.BaseAmount),
		})
	default:
		lines = append(lines, chargeLine{
			description: "Course access " + inv.ResourceID.String(),
			qty:         "1",
			unit:        FormatAmount(inv.BaseAmount),
			amount:      FormatAmount(inv.BaseAmount),
		})
	}
	if inv.DiscountAmount.IsPositive() {
		lines = append(lines, chargeLine{
			description: "Discount " + inv.DiscountPercentage.String() + "%",
			qty:         "",
			unit:        "",
			amount:      "-" + FormatAmount(inv.DiscountAmount),
		})
	}
	if !inv.CarriedBalance.IsZero() {
		lines = append(lines, chargeLine{
			description: "Balance carried from prior semesters",
			qty:         "",
			unit:        "",
			amount:      FormatAmount(inv.CarriedBalance),
		})
	}
	return lines
}
