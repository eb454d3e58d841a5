package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/bursar/internal/access"
	accessdomain "github.com/smallbiznis/bursar/internal/access/domain"
	"github.com/smallbiznis/bursar/internal/audit"
	auditdomain "github.com/smallbiznis/bursar/internal/audit/domain"
	"github.com/smallbiznis/bursar/internal/authorization"
	"github.com/smallbiznis/bursar/internal/catalog"
	"github.com/smallbiznis/bursar/internal/clock"
	"github.com/smallbiznis/bursar/internal/config"
	"github.com/smallbiznis/bursar/internal/invoice"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	"github.com/smallbiznis/bursar/internal/invoice/render"
	"github.com/smallbiznis/bursar/internal/lock"
	"github.com/smallbiznis/bursar/internal/observability"
	obsmiddleware "github.com/smallbiznis/bursar/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/bursar/internal/observability/metrics"
	obstracing "github.com/smallbiznis/bursar/internal/observability/tracing"
	"github.com/smallbiznis/bursar/internal/payment"
	paymentdomain "github.com/smallbiznis/bursar/internal/payment/domain"
	"github.com/smallbiznis/bursar/internal/registration"
	"github.com/smallbiznis/bursar/internal/semester"
	semesterdomain "github.com/smallbiznis/bursar/internal/semester/domain"
	"github.com/smallbiznis/bursar/internal/statistics"
	statisticsdomain "github.com/smallbiznis/bursar/internal/statistics/domain"
	"github.com/smallbiznis/bursar/internal/student"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(render.NewPDFRenderer),
	lock.Module,
	authorization.Module,
	audit.Module,
	student.Module,
	registration.Module,
	catalog.Module,
	semester.Module,
	invoice.Module,
	payment.Module,
	access.Module,
	statistics.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	clock         clock.Clock
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	invoiceSvc    invoicedomain.Service
	paymentSvc    paymentdomain.Service
	accessSvc     accessdomain.Service
	statisticsSvc statisticsdomain.Service
	semesterSvc   semesterdomain.Service
	renderer      render.Renderer
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Clock         clock.Clock
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	InvoiceSvc    invoicedomain.Service
	PaymentSvc    paymentdomain.Service
	AccessSvc     accessdomain.Service
	StatisticsSvc statisticsdomain.Service
	SemesterSvc   semesterdomain.Service
	Renderer      render.Renderer
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		clock:         p.Clock,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		invoiceSvc:    p.InvoiceSvc,
		paymentSvc:    p.PaymentSvc,
		accessSvc:     p.AccessSvc,
		statisticsSvc: p.StatisticsSvc,
		semesterSvc:   p.SemesterSvc,
		renderer:      p.Renderer,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Invoices --------
	api.GET("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoices)
	api.GET("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoice)
	api.GET("/invoices/:id/pdf", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.DownloadInvoicePDF)

	// -------- Payments --------
	api.GET("/invoices/:id/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListPayments)
	api.POST("/invoices/:id/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentRecord), s.RecordPayment)
	api.POST("/invoices/:id/payments/failed", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentRecordFailed), s.RecordFailedPayment)

	// -------- Access --------
	api.GET("/access", s.authorize(authorization.ObjectAccess, authorization.ActionAccessCheck), s.CheckAccess)

	// -------- Semesters --------
	api.GET("/semesters", s.authorize(authorization.ObjectSemester, authorization.ActionSemesterView), s.ListSemesters)
	api.GET("/semesters/current", s.authorize(authorization.ObjectSemester, authorization.ActionSemesterView), s.GetCurrentSemester)
	api.GET("/semesters/:id", s.authorize(authorization.ObjectSemester, authorization.ActionSemesterView), s.GetSemester)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.POST("/semesters/:id/invoices/generate", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceGenerate), s.GenerateInvoices)
	admin.POST("/semesters/:id/current", s.authorize(authorization.ObjectSemester, authorization.ActionSemesterSetCurrent), s.SetCurrentSemester)
	admin.POST("/invoices/resource", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceGenerate), s.GenerateResourceInvoice)
	admin.PATCH("/invoices/:id/status", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceOverride), s.OverrideInvoiceStatus)

	admin.GET("/statistics", s.authorize(authorization.ObjectStatistics, authorization.ActionStatisticsView), s.GetStatistics)
	admin.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
