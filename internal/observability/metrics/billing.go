package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics tracks invoice generation, payments and access decisions.
type BillingMetrics struct {
	invoicesGenerated  *prometheus.CounterVec
	invoicesSkipped    *prometheus.CounterVec
	generationRuns     *prometheus.CounterVec
	generationDuration prometheus.Histogram
	paymentsRecorded   *prometheus.CounterVec
	paymentAmount      *prometheus.CounterVec
	paymentsRejected   *prometheus.CounterVec
	accessDecisions    *prometheus.CounterVec
}

func NewBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := cfg.constLabels()

	return &BillingMetrics{
		invoicesGenerated: registerOrExisting(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bursar_invoices_generated_total",
			Help:        "Invoices created by billing mode.",
			ConstLabels: labels,
		}, []string{"mode"})),
		invoicesSkipped: registerOrExisting(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bursar_invoices_skipped_total",
			Help:        "Students skipped during generation by reason.",
			ConstLabels: labels,
		}, []string{"reason"})),
		generationRuns: registerOrExisting(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bursar_generation_runs_total",
			Help:        "Invoice generation batches by outcome.",
			ConstLabels: labels,
		}, []string{"outcome", "reason"})),
		generationDuration: registerOrExisting(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "bursar_generation_duration_seconds",
			Help:        "Wall time of an invoice generation batch.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			ConstLabels: labels,
		})),
		paymentsRecorded: registerOrExisting(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bursar_payments_recorded_total",
			Help:        "Payments persisted by method and status.",
			ConstLabels: labels,
		}, []string{"method", "status"})),
		paymentAmount: registerOrExisting(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bursar_payment_amount_total",
			Help:        "Sum of completed payment amounts by method.",
			ConstLabels: labels,
		}, []string{"method"})),
		paymentsRejected: registerOrExisting(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bursar_payments_rejected_total",
			Help:        "Payment requests rejected before anything was written.",
			ConstLabels: labels,
		}, []string{"reason"})),
		accessDecisions: registerOrExisting(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bursar_access_decisions_total",
			Help:        "Course access checks by outcome.",
			ConstLabels: labels,
		}, []string{"allowed", "reason"})),
	}
}

func (m *BillingMetrics) InvoiceGenerated(mode string) {
	if m == nil {
		return
	}
	m.invoicesGenerated.WithLabelValues(normalize(mode)).Inc()
}

func (m *BillingMetrics) InvoiceSkipped(reason string) {
	if m == nil {
		return
	}
	m.invoicesSkipped.WithLabelValues(normalize(reason)).Inc()
}

// GenerationFinished records a batch outcome; err is nil for committed batches.
func (m *BillingMetrics) GenerationFinished(started time.Time, err error) {
	if m == nil {
		return
	}
	m.generationDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		m.generationRuns.WithLabelValues("failed", ClassifyFailure(err)).Inc()
		return
	}
	m.generationRuns.WithLabelValues("committed", "").Inc()
}

func (m *BillingMetrics) PaymentRecorded(method, status string, amount float64) {
	if m == nil {
		return
	}
	method = normalize(method)
	m.paymentsRecorded.WithLabelValues(method, normalize(status)).Inc()
	if strings.EqualFold(status, "COMPLETED") && amount > 0 {
		m.paymentAmount.WithLabelValues(method).Add(amount)
	}
}

func (m *BillingMetrics) PaymentRejected(reason string) {
	if m == nil {
		return
	}
	m.paymentsRejected.WithLabelValues(normalize(reason)).Inc()
}

func (m *BillingMetrics) AccessDecided(allowed bool, reason string) {
	if m == nil {
		return
	}
	label := "false"
	if allowed {
		label = "true"
	}
	m.accessDecisions.WithLabelValues(label, normalize(reason)).Inc()
}

func normalize(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return v
}
