package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	checkpointdomain "github.com/smallbiznis/purchasesync/internal/checkpoint/domain"
	"github.com/smallbiznis/purchasesync/internal/config"
	etldomain "github.com/smallbiznis/purchasesync/internal/etl/domain"
	"github.com/smallbiznis/purchasesync/internal/etl/service"
	obslogger "github.com/smallbiznis/purchasesync/internal/observability/logger"
	obstracing "github.com/smallbiznis/purchasesync/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(New),
	fx.Invoke(Register),
	fx.Invoke(run),
)

// FeedRunner runs a single feed on demand.
type FeedRunner interface {
	Run(ctx context.Context, feed string) (*etldomain.Run, error)
}

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware())
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.OpsAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("ops server stopped", zap.Error(err))
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

type Params struct {
	fx.In

	Log         *zap.Logger
	Holder      *config.SyncConfigHolder
	Checkpoints checkpointdomain.Store
	Runs        etldomain.RunRepository `optional:"true"`
	Runner      *service.Runner         `optional:"true"`
}

type Server struct {
	log         *zap.Logger
	holder      *config.SyncConfigHolder
	checkpoints checkpointdomain.Store
	runs        etldomain.RunRepository
	runner      FeedRunner
}

func New(p Params) *Server {
	s := &Server{
		log:         p.Log.Named("server"),
		holder:      p.Holder,
		checkpoints: p.Checkpoints,
		runs:        p.Runs,
	}
	if p.Runner != nil {
		s.runner = p.Runner
	}
	return s
}

// Register mounts the ops API on r.
func Register(r *gin.Engine, s *Server) {
	feeds := r.Group("/feeds/:feed")
	feeds.GET("/checkpoint", s.GetCheckpoint)
	feeds.DELETE("/checkpoint", s.ResetCheckpoint)
	feeds.POST("/runs", s.TriggerRun)

	r.GET("/runs", s.ListRuns)
	r.GET("/runs/:id", s.GetRun)
}
