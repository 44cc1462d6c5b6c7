package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vidra-ai/vidra/internal/account"
	accountdomain "github.com/vidra-ai/vidra/internal/account/domain"
	"github.com/vidra-ai/vidra/internal/catalog"
	catalogdomain "github.com/vidra-ai/vidra/internal/catalog/domain"
	"github.com/vidra-ai/vidra/internal/config"
	"github.com/vidra-ai/vidra/internal/generation"
	generationdomain "github.com/vidra-ai/vidra/internal/generation/domain"
	"github.com/vidra-ai/vidra/internal/idempotency"
	"github.com/vidra-ai/vidra/internal/job"
	jobdomain "github.com/vidra-ai/vidra/internal/job/domain"
	"github.com/vidra-ai/vidra/internal/observability"
	obsmiddleware "github.com/vidra-ai/vidra/internal/observability/logger"
	obsmetrics "github.com/vidra-ai/vidra/internal/observability/metrics"
	obstracing "github.com/vidra-ai/vidra/internal/observability/tracing"
	"github.com/vidra-ai/vidra/internal/providers"
	"github.com/vidra-ai/vidra/internal/providers/playbilling"
	"github.com/vidra-ai/vidra/internal/ratelimit"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	account.Module,
	job.Module,
	catalog.Module,
	generation.Module,
	idempotency.Module,
	ratelimit.Module,
	providers.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
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
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	db            *gorm.DB
	genID         *snowflake.Node
	accountSvc    accountdomain.Service
	jobSvc        jobdomain.Service
	catalogSvc    catalogdomain.Service
	generationSvc generationdomain.Service
	reconciler    generationdomain.Reconciler
	billingSvc    playbilling.Provider
	limiter       *ratelimit.SubmissionLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	AccountSvc    accountdomain.Service
	JobSvc        jobdomain.Service
	CatalogSvc    catalogdomain.Service
	GenerationSvc generationdomain.Service
	Reconciler    generationdomain.Reconciler
	BillingSvc    playbilling.Provider
	Limiter       *ratelimit.SubmissionLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics          `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		accountSvc:    p.AccountSvc,
		jobSvc:        p.JobSvc,
		catalogSvc:    p.CatalogSvc,
		generationSvc: p.GenerationSvc,
		reconciler:    p.Reconciler,
		billingSvc:    p.BillingSvc,
		limiter:       p.Limiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.GET("/models", s.ListModels)

	v1.POST("/generations", s.AuthRequired(), s.SubmitRateLimit(), s.CreateGeneration)
	v1.POST("/effects", s.AuthRequired(), s.SubmitRateLimit(), s.CreateEffect)

	v1.GET("/jobs", s.AuthRequired(), s.ListJobs)
	v1.GET("/jobs/:id", s.AuthRequired(), s.GetJob)

	v1.GET("/credits", s.AuthRequired(), s.GetCredits)
	v1.POST("/credits/grant", s.AuthRequired(), s.GrantCredits)
	v1.POST("/purchases", s.AuthRequired(), s.CreatePurchase)
}

func (s *Server) registerWebhookRoutes() {
	// No auth: the provider calls this endpoint directly.
	s.engine.POST("/webhooks/replicate", s.ReplicateWebhook)
}
