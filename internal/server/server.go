package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lukasmk87/basketmanager/internal/audit"
	auditdomain "github.com/lukasmk87/basketmanager/internal/audit/domain"
	"github.com/lukasmk87/basketmanager/internal/authorization"
	"github.com/lukasmk87/basketmanager/internal/club"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	"github.com/lukasmk87/basketmanager/internal/config"
	"github.com/lukasmk87/basketmanager/internal/dunning"
	"github.com/lukasmk87/basketmanager/internal/invoice"
	invoicedomain "github.com/lukasmk87/basketmanager/internal/invoice/domain"
	"github.com/lukasmk87/basketmanager/internal/notification"
	"github.com/lukasmk87/basketmanager/internal/observability"
	obslogger "github.com/lukasmk87/basketmanager/internal/observability/logger"
	obsmetrics "github.com/lukasmk87/basketmanager/internal/observability/metrics"
	obstracing "github.com/lukasmk87/basketmanager/internal/observability/tracing"
	"github.com/lukasmk87/basketmanager/internal/ratelimit"
	"github.com/lukasmk87/basketmanager/internal/tax"
	taxdomain "github.com/lukasmk87/basketmanager/internal/tax/domain"
	"github.com/lukasmk87/basketmanager/internal/tenant"
	tenantdomain "github.com/lukasmk87/basketmanager/internal/tenant/domain"
	"github.com/lukasmk87/basketmanager/internal/voucher"
	voucherdomain "github.com/lukasmk87/basketmanager/internal/voucher/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	tenant.Module,
	club.Module,
	tax.Module,
	voucher.Module,
	notification.Module,
	invoice.Module,
	dunning.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
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
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	authzSvc       authorization.Service
	auditSvc       auditdomain.Service
	tenantSvc      tenantdomain.Service
	clubSvc        clubdomain.Service
	voucherSvc     voucherdomain.Service
	invoiceSvc     invoicedomain.Service
	taxSvc         taxdomain.Service
	dunning        *dunning.Processor
	voucherLimiter *ratelimit.VoucherLimiter
	obsMetrics     *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	AuthzSvc       authorization.Service
	AuditSvc       auditdomain.Service
	TenantSvc      tenantdomain.Service
	ClubSvc        clubdomain.Service
	VoucherSvc     voucherdomain.Service
	InvoiceSvc     invoicedomain.Service
	TaxSvc         taxdomain.Service         `optional:"true"`
	Dunning        *dunning.Processor        `optional:"true"`
	VoucherLimiter *ratelimit.VoucherLimiter `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		authzSvc:       p.AuthzSvc,
		auditSvc:       p.AuditSvc,
		tenantSvc:      p.TenantSvc,
		clubSvc:        p.ClubSvc,
		voucherSvc:     p.VoucherSvc,
		invoiceSvc:     p.InvoiceSvc,
		taxSvc:         p.TaxSvc,
		dunning:        p.Dunning,
		voucherLimiter: p.VoucherLimiter,
		obsMetrics:     p.ObsMetrics,
	}

	svc.registerRoutes()
	return svc
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api/v1", s.RequestContext())

	s.registerAdminRoutes(api.Group("/admin"))
	s.registerTenantRoutes(api.Group("", s.TenantScope()))
}

// registerAdminRoutes holds the routes that act across tenants. Authorization
// runs in the global domain, so only super admins pass.
func (s *Server) registerAdminRoutes(admin *gin.RouterGroup) {
	tenants := admin.Group("/tenants")
	{
		tenants.GET("", s.authorize(authorization.ObjectTenant, authorization.ActionTenantView), s.ListTenants)
		tenants.POST("", s.authorize(authorization.ObjectTenant, authorization.ActionTenantManage), s.CreateTenant)
		tenants.GET("/:id", s.authorize(authorization.ObjectTenant, authorization.ActionTenantView), s.GetTenant)
		tenants.PATCH("/:id/billing", s.authorize(authorization.ObjectTenant, authorization.ActionTenantManage), s.UpdateTenantBilling)
		tenants.POST("/:id/suspend", s.authorize(authorization.ObjectTenant, authorization.ActionTenantSuspend), s.SuspendTenant)
		tenants.POST("/:id/reactivate", s.authorize(authorization.ObjectTenant, authorization.ActionTenantSuspend), s.ReactivateTenant)
		tenants.POST("/:id/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceManage), s.CreateTenantInvoice)
	}

	vouchers := admin.Group("/vouchers")
	{
		vouchers.GET("", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherView), s.ListVouchers)
		vouchers.POST("", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherManageSystem), s.CreateVoucher)
		vouchers.GET("/statistics", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherViewStatistic), s.VoucherOverallStatistics)
		vouchers.GET("/:id", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherView), s.GetVoucher)
		vouchers.PATCH("/:id", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherManageSystem), s.UpdateVoucher)
		vouchers.POST("/:id/activate", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherManageSystem), s.ActivateVoucher)
		vouchers.POST("/:id/deactivate", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherManageSystem), s.DeactivateVoucher)
		vouchers.GET("/:id/statistics", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherViewStatistic), s.VoucherStatistics)
	}

	invoices := admin.Group("/invoices")
	{
		invoices.GET("", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoices)
		invoices.GET("/statistics", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.InvoiceStatistics)
	}

	admin.POST("/dunning/run", s.authorize(authorization.ObjectDunning, authorization.ActionDunningRun), s.RunDunning)
	admin.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerTenantRoutes(api *gin.RouterGroup) {
	api.GET("/tenant", s.authorize(authorization.ObjectTenant, authorization.ActionTenantView), s.GetCurrentTenant)

	plans := api.Group("/plans")
	{
		plans.GET("", s.authorize(authorization.ObjectPlan, authorization.ActionPlanView), s.ListPlans)
		plans.POST("", s.authorize(authorization.ObjectPlan, authorization.ActionPlanManage), s.CreatePlan)
		plans.GET("/:id", s.authorize(authorization.ObjectPlan, authorization.ActionPlanView), s.GetPlan)
	}

	clubs := api.Group("/clubs")
	{
		clubs.GET("", s.authorize(authorization.ObjectClub, authorization.ActionClubView), s.ListClubs)
		clubs.POST("", s.authorize(authorization.ObjectClub, authorization.ActionClubManage), s.CreateClub)
		clubs.GET("/:id", s.authorize(authorization.ObjectClub, authorization.ActionClubView), s.GetClub)
		clubs.GET("/:id/events", s.authorize(authorization.ObjectClub, authorization.ActionClubView), s.ListClubEvents)

		clubs.POST("/:id/vouchers/validate", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherValidate), s.VoucherRateLimit(), s.ValidateVoucher)
		clubs.POST("/:id/vouchers/redeem", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherRedeem), s.VoucherRateLimit(), s.RedeemVoucher)
		clubs.GET("/:id/vouchers/available", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherValidate), s.AvailableVouchers)
		clubs.GET("/:id/vouchers/history", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherValidate), s.VoucherHistory)

		clubs.POST("/:id/discounts/calculate", s.authorize(authorization.ObjectDiscount, authorization.ActionDiscountCalculate), s.CalculateDiscount)
		clubs.POST("/:id/discounts/preview", s.authorize(authorization.ObjectDiscount, authorization.ActionDiscountCalculate), s.PreviewDiscount)

		clubs.POST("/:id/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceManage), s.CreateSubscriptionInvoice)
		clubs.POST("/:id/invoice-requests", s.authorize(authorization.ObjectInvoiceRequest, authorization.ActionInvoiceRequestCreate), s.SubmitInvoiceRequest)
	}

	vouchers := api.Group("/vouchers")
	{
		vouchers.GET("", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherView), s.ListVouchers)
		vouchers.POST("", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherManage), s.CreateVoucher)
		vouchers.POST("/generate-code", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherManage), s.GenerateVoucherCode)
		vouchers.GET("/statistics", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherViewStatistic), s.VoucherOverallStatistics)
		vouchers.GET("/:id", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherView), s.GetVoucher)
		vouchers.PATCH("/:id", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherManage), s.UpdateVoucher)
		vouchers.POST("/:id/activate", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherManage), s.ActivateVoucher)
		vouchers.POST("/:id/deactivate", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherManage), s.DeactivateVoucher)
		vouchers.GET("/:id/statistics", s.authorize(authorization.ObjectVoucher, authorization.ActionVoucherViewStatistic), s.VoucherStatistics)
	}

	invoices := api.Group("/invoices")
	{
		invoices.GET("", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoices)
		invoices.POST("", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceManage), s.CreateInvoice)
		invoices.GET("/statistics", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.InvoiceStatistics)
		invoices.GET("/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoice)
		invoices.GET("/:id/html", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.RenderInvoice)
		invoices.PATCH("/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceManage), s.UpdateInvoice)
		invoices.DELETE("/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceManage), s.DeleteInvoice)
		invoices.POST("/:id/send", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceManage), s.SendInvoice)
		invoices.POST("/:id/pay", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceMarkPaid), s.MarkInvoicePaid)
		invoices.POST("/:id/overdue", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceManage), s.MarkInvoiceOverdue)
		invoices.POST("/:id/cancel", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceCancel), s.CancelInvoice)
		invoices.POST("/:id/remind", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceRemind), s.SendInvoiceReminder)
	}

	requests := api.Group("/invoice-requests")
	{
		requests.GET("", s.authorize(authorization.ObjectInvoiceRequest, authorization.ActionInvoiceRequestView), s.ListInvoiceRequests)
		requests.GET("/:id", s.authorize(authorization.ObjectInvoiceRequest, authorization.ActionInvoiceRequestView), s.GetInvoiceRequest)
		requests.POST("/:id/approve", s.authorize(authorization.ObjectInvoiceRequest, authorization.ActionInvoiceRequestProcess), s.ApproveInvoiceRequest)
		requests.POST("/:id/reject", s.authorize(authorization.ObjectInvoiceRequest, authorization.ActionInvoiceRequestProcess), s.RejectInvoiceRequest)
	}

	taxRates := api.Group("/tax-rates")
	{
		taxRates.GET("", s.authorize(authorization.ObjectTaxRate, authorization.ActionTaxRateView), s.ListTaxRates)
		taxRates.POST("", s.authorize(authorization.ObjectTaxRate, authorization.ActionTaxRateManage), s.CreateTaxRate)
		taxRates.PATCH("/:id", s.authorize(authorization.ObjectTaxRate, authorization.ActionTaxRateManage), s.UpdateTaxRate)
		taxRates.POST("/:id/disable", s.authorize(authorization.ObjectTaxRate, authorization.ActionTaxRateManage), s.DisableTaxRate)
	}

	api.POST("/dunning/run", s.authorize(authorization.ObjectDunning, authorization.ActionDunningRun), s.RunDunning)
	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
