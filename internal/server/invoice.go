package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	"github.com/smallbiznis/bursar/internal/invoice/render"
	"github.com/smallbiznis/bursar/internal/observability/tracing"
)

type generateInvoicesRequest struct {
	StudentIDs            []string         `json:"student_ids"`
	Mode                  string           `json:"mode"`
	AmountPerCredit       *decimal.Decimal `json:"amount_per_credit"`
	SemesterFee           *decimal.Decimal `json:"semester_fee"`
	DiscountPercentage    *decimal.Decimal `json:"discount_percentage"`
	DueDate               string           `json:"due_date"`
	IncludeCarriedBalance *bool            `json:"include_carried_balance"`
}

// GenerateInvoices bills a semester. Per-student skips are reported in the
// results array; only a failure of the whole batch answers an error.
func (s *Server) GenerateInvoices(c *gin.Context) {
	semesterID, err := idParam(c.Param("id"), "semester_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req generateInvoicesRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	studentIDs := make([]snowflake.ID, 0, len(req.StudentIDs))
	for _, raw := range req.StudentIDs {
		id, err := parseSnowflakeID(raw)
		if err != nil {
			AbortWithError(c, newValidationError("student_ids", "invalid_student_id", "invalid student id"))
			return
		}
		studentIDs = append(studentIDs, id)
	}

	dueDate, err := parseOptionalTime(req.DueDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("due_date", "invalid_due_date", "invalid due_date"))
		return
	}

	result, err := s.invoiceSvc.GenerateInvoices(c.Request.Context(), invoicedomain.GenerateRequest{
		SemesterID: semesterID,
		StudentIDs: studentIDs,
		Policy: invoicedomain.PolicyConfig{
			Mode:                  strings.TrimSpace(req.Mode),
			AmountPerCredit:       req.AmountPerCredit,
			SemesterFee:           req.SemesterFee,
			DiscountPercentage:    req.DiscountPercentage,
			DueDate:               dueDate,
			IncludeCarriedBalance: req.IncludeCarriedBalance,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

type resourceInvoiceRequest struct {
	StudentID          string           `json:"student_id"`
	ResourceID         string           `json:"resource_id"`
	SemesterID         string           `json:"semester_id"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage"`
	DueDate            string           `json:"due_date"`
}

func (s *Server) GenerateResourceInvoice(c *gin.Context) {
	var req resourceInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	studentID, err := idParam(req.StudentID, "student_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	resourceID, err := idParam(req.ResourceID, "resource_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	semesterID, err := parseOptionalSnowflakeID(req.SemesterID)
	if err != nil {
		AbortWithError(c, newValidationError("semester_id", "invalid_semester_id", "invalid semester_id"))
		return
	}
	dueDate, err := parseOptionalTime(req.DueDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("due_date", "invalid_due_date", "invalid due_date"))
		return
	}

	in := invoicedomain.ResourceInvoiceRequest{
		StudentID:  studentID,
		ResourceID: resourceID,
		DueDate:    dueDate,
	}
	if semesterID != nil {
		in.SemesterID = *semesterID
	}
	if req.DiscountPercentage != nil {
		in.DiscountPercentage = *req.DiscountPercentage
	}

	item, err := s.invoiceSvc.GenerateResourceInvoice(c.Request.Context(), in)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

type listInvoicesQuery struct {
	invoicedomain.ListInvoiceRequest
	StudentID  string `form:"student_id"`
	SemesterID string `form:"semester_id"`
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query listInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := query.ListInvoiceRequest
	semesterID, err := parseOptionalSnowflakeID(query.SemesterID)
	if err != nil {
		AbortWithError(c, newValidationError("semester_id", "invalid_semester_id", "invalid semester_id"))
		return
	}
	if semesterID != nil {
		req.SemesterID = *semesterID
	}
	studentID, err := parseOptionalSnowflakeID(query.StudentID)
	if err != nil {
		AbortWithError(c, newValidationError("student_id", "invalid_student_id", "invalid student_id"))
		return
	}
	if studentID != nil {
		req.StudentID = *studentID
	}

	// Students only ever see their own invoices.
	if actor, ok := actorFromContext(c); ok && actor.isStudent() {
		own, err := actor.studentID()
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if req.StudentID != 0 && req.StudentID != own {
			AbortWithError(c, ErrForbidden)
			return
		}
		req.StudentID = own
		req.StudentSearch = ""
	}

	resp, err := s.invoiceSvc.ListInvoices(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) GetInvoice(c *gin.Context) {
	item, ok := s.loadInvoice(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

// loadInvoice resolves the :id invoice and applies the student scope. It
// aborts the request and returns false on any failure.
func (s *Server) loadInvoice(c *gin.Context) (invoicedomain.InvoiceView, bool) {
	id, err := idParam(c.Param("id"), "invoice_id")
	if err != nil {
		AbortWithError(c, err)
		return invoicedomain.InvoiceView{}, false
	}

	item, err := s.invoiceSvc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return invoicedomain.InvoiceView{}, false
	}
	if err := ensureStudentScope(c, item.StudentID); err != nil {
		AbortWithError(c, err)
		return invoicedomain.InvoiceView{}, false
	}
	return item, true
}

type overrideStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (s *Server) OverrideInvoiceStatus(c *gin.Context) {
	id, err := idParam(c.Param("id"), "invoice_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req overrideStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.invoiceSvc.OverrideStatus(c.Request.Context(), invoicedomain.OverrideRequest{
		InvoiceID: id,
		Status:    strings.TrimSpace(req.Status),
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

// DownloadInvoicePDF renders the invoice with its payment history.
func (s *Server) DownloadInvoicePDF(c *gin.Context) {
	ctx, span := tracing.Start(c.Request.Context(), "invoice.render_pdf")
	defer span.End()

	item, ok := s.loadInvoice(c)
	if !ok {
		return
	}

	sem, err := s.semesterSvc.Get(ctx, item.SemesterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	payments, err := s.paymentSvc.ListPayments(ctx, item.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	lines := make([]render.PaymentLine, 0, len(payments))
	for _, p := range payments {
		lines = append(lines, render.PaymentLine{
			Date:      p.PaymentDate,
			Method:    string(p.Method),
			Reference: p.Reference,
			Status:    string(p.Status),
			Amount:    p.Amount,
		})
	}

	issuedAt := s.clock.Now()
	body, err := s.renderer.Render(ctx, render.Statement{
		InstitutionName: s.cfg.InstitutionName,
		SemesterCode:    sem.Code,
		Invoice:         item,
		Payments:        lines,
		IssuedAt:        issuedAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := render.FormatInvoiceNumber(item.ID, item.CreatedAt)
	if name := slug.Make(item.StudentName); name != "" {
		filename += "-" + name
	}
	filename += ".pdf"
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", body)
}
