package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/bursar/internal/payment/domain"
)

type recordPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	Reference   string          `json:"reference"`
	PaymentDate string          `json:"payment_date"`
	Notes       string          `json:"notes"`
}

func (s *Server) RecordPayment(c *gin.Context) {
	req, ok := s.bindPayment(c)
	if !ok {
		return
	}

	result, err := s.paymentSvc.RecordPayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

// RecordFailedPayment stores a declined attempt without touching the invoice.
func (s *Server) RecordFailedPayment(c *gin.Context) {
	req, ok := s.bindPayment(c)
	if !ok {
		return
	}

	item, err := s.paymentSvc.RecordFailedAttempt(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ListPayments(c *gin.Context) {
	item, ok := s.loadInvoice(c)
	if !ok {
		return
	}

	payments, err := s.paymentSvc.ListPayments(c.Request.Context(), item.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payments})
}

// bindPayment parses the request body for the :id invoice. Students may
// only pay their own invoices.
func (s *Server) bindPayment(c *gin.Context) (paymentdomain.RecordPaymentRequest, bool) {
	id, err := idParam(c.Param("id"), "invoice_id")
	if err != nil {
		AbortWithError(c, err)
		return paymentdomain.RecordPaymentRequest{}, false
	}

	var body recordPaymentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return paymentdomain.RecordPaymentRequest{}, false
	}

	paymentDate, err := parseOptionalTime(body.PaymentDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("payment_date", "invalid_payment_date", "invalid payment_date"))
		return paymentdomain.RecordPaymentRequest{}, false
	}

	if actor, ok := actorFromContext(c); ok && actor.isStudent() {
		item, err := s.invoiceSvc.GetInvoice(c.Request.Context(), id)
		if err != nil {
			AbortWithError(c, err)
			return paymentdomain.RecordPaymentRequest{}, false
		}
		if err := ensureStudentScope(c, item.StudentID); err != nil {
			AbortWithError(c, err)
			return paymentdomain.RecordPaymentRequest{}, false
		}
	}

	return paymentdomain.RecordPaymentRequest{
		InvoiceID:   id,
		Amount:      body.Amount,
		Method:      strings.TrimSpace(body.Method),
		Reference:   strings.TrimSpace(body.Reference),
		PaymentDate: paymentDate,
		Notes:       strings.TrimSpace(body.Notes),
	}, true
}
