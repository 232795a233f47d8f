package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	billingcycledomain "github.com/smallbiznis/portbilling/internal/billingcycle/domain"
	"github.com/smallbiznis/portbilling/internal/clock"
	"github.com/smallbiznis/portbilling/internal/config"
	exchangeratedomain "github.com/smallbiznis/portbilling/internal/exchangerate/domain"
	invoicedomain "github.com/smallbiznis/portbilling/internal/invoice/domain"
	"github.com/smallbiznis/portbilling/internal/observability"
	obsmiddleware "github.com/smallbiznis/portbilling/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/portbilling/internal/observability/metrics"
	obstracing "github.com/smallbiznis/portbilling/internal/observability/tracing"
	"github.com/smallbiznis/portbilling/internal/scheduler"
	tariffdomain "github.com/smallbiznis/portbilling/internal/tariff/domain"
	taxdomain "github.com/smallbiznis/portbilling/internal/tax/domain"
	usagedomain "github.com/smallbiznis/portbilling/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
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
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine     *gin.Engine
	clock      clock.Clock
	calendars  billingcycledomain.Service
	usageSvc   usagedomain.Service
	tariffSvc  tariffdomain.Service
	vatSvc     taxdomain.Service
	rates      exchangeratedomain.Resolver
	rateSvc    exchangeratedomain.Service
	invoiceSvc invoicedomain.Service
	scheduler  *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Clock      clock.Clock
	Calendars  billingcycledomain.Service
	UsageSvc   usagedomain.Service
	TariffSvc  tariffdomain.Service
	VatSvc     taxdomain.Service
	Rates      exchangeratedomain.Resolver
	RateSvc    exchangeratedomain.Service
	InvoiceSvc invoicedomain.Service
	Scheduler  *scheduler.Scheduler
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		clock:      p.Clock,
		calendars:  p.Calendars,
		usageSvc:   p.UsageSvc,
		tariffSvc:  p.TariffSvc,
		vatSvc:     p.VatSvc,
		rates:      p.Rates,
		rateSvc:    p.RateSvc,
		invoiceSvc: p.InvoiceSvc,
		scheduler:  p.Scheduler,
	}

	svc.registerBillingRoutes()
	svc.registerCatalogRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerBillingRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Calendar --------
	v1.GET("/billing-periods", s.GetBillingPeriods)

	// -------- Runs --------
	v1.POST("/billing-runs", s.CreateBillingRun)
	v1.POST("/customers/:code/invoices", s.BillCustomer)
	v1.POST("/outbox/relay", s.RelayOutbox)

	// -------- Invoices --------
	v1.GET("/invoices", s.ListInvoices)
	v1.GET("/invoices/:number", s.GetInvoice)
	v1.POST("/invoices/:number/issue", s.IssueInvoice)
	v1.POST("/invoices/:number/status", s.AdvanceInvoice)

	// -------- Conflicts --------
	v1.GET("/invoice-conflicts", s.ListInvoiceConflicts)
	v1.POST("/invoice-conflicts/:id/resolve", s.ResolveInvoiceConflict)
}

func (s *Server) registerCatalogRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Voyages --------
	v1.POST("/voyages", s.RecordDeparture)
	v1.POST("/voyages/:id/return", s.RecordReturn)

	// -------- Tariffs --------
	v1.GET("/tariffs", s.ListTariffs)
	v1.POST("/tariffs", s.CreateTariff)
	v1.POST("/tariff-assignments", s.AssignTariff)

	// -------- VAT --------
	v1.GET("/vat-codes", s.ListVatCodes)
	v1.PUT("/vat-codes", s.UpsertVatCode)

	// -------- Rates --------
	v1.GET("/rates", s.GetRate)
	v1.GET("/rates/history", s.ListRates)
	v1.POST("/rates", s.PublishRate)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
