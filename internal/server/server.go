package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	bookingdomain "github.com/smallbiznis/guesthouse/internal/booking/domain"
	"github.com/smallbiznis/guesthouse/internal/config"
	creditdomain "github.com/smallbiznis/guesthouse/internal/credit/domain"
	"github.com/smallbiznis/guesthouse/internal/editlock"
	"github.com/smallbiznis/guesthouse/internal/events"
	"github.com/smallbiznis/guesthouse/internal/observability"
	obsmiddleware "github.com/smallbiznis/guesthouse/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/guesthouse/internal/observability/metrics"
	obstracing "github.com/smallbiznis/guesthouse/internal/observability/tracing"
	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
	undodomain "github.com/smallbiznis/guesthouse/internal/undo/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(obsmetrics.GinMiddleware(httpMetrics))
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	cfg        config.Config
	bookingSvc bookingdomain.Service
	ledger     creditdomain.Ledger
	txlog      txlogdomain.Logger
	undo       undodomain.Executor
	locker     *editlock.Locker
	hub        *events.Hub
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	BookingSvc bookingdomain.Service
	Ledger     creditdomain.Ledger
	TxLog      txlogdomain.Logger
	Undo       undodomain.Executor
	Locker     *editlock.Locker `optional:"true"`
	Hub        *events.Hub      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		bookingSvc: p.BookingSvc,
		ledger:     p.Ledger,
		txlog:      p.TxLog,
		undo:       p.Undo,
		locker:     p.Locker,
		hub:        p.Hub,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.POST("/availability/check", s.CheckAvailability)
	api.POST("/pricing/quote", s.QuotePrice)

	api.POST("/bookings", s.CreateBooking)
	api.GET("/bookings/:id", s.GetBooking)
	api.PATCH("/bookings/:id", s.UpdateBooking)
	api.POST("/bookings/:id/cancel", s.CancelBooking)
	api.DELETE("/bookings/:id", s.DeleteBooking)
	api.POST("/bookings/:id/line-items", s.AddLineItem)
	api.DELETE("/line-items/:id", s.RemoveLineItem)

	api.POST("/bookings/:id/lock", s.AcquireEditLock)
	api.DELETE("/bookings/:id/lock", s.ReleaseEditLock)

	api.POST("/credits/apply", s.ApplyCredit)
	api.POST("/credits/top-up", s.TopUpCredit)
	api.GET("/guests/:id/credit", s.GetGuestCredit)

	api.GET("/transactions/recent", s.ListRecentTransactions)
	api.GET("/transactions", s.ListTransactions)
	api.POST("/transactions/:id/undo", s.UndoTransaction)

	api.GET("/events", s.StreamChanges)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
