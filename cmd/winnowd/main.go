// winnowd is the policy backend: it ingests pattern stats from samplers,
// analyzes each service's traffic, and serves freshly generated sampling
// policies over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/winnow/internal/config"
	"github.com/crimson-sun/winnow/internal/engine"
	"github.com/crimson-sun/winnow/internal/engine/anomaly"
	"github.com/crimson-sun/winnow/internal/engine/policy"
	"github.com/crimson-sun/winnow/internal/logging"
	"github.com/crimson-sun/winnow/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	strategy, err := buildStrategy(cfg.Strategy)
	if err != nil {
		slog.Error("strategy setup failed", "strategy", cfg.Strategy.Name, "error", err)
		os.Exit(1)
	}

	detector := anomaly.New(anomaly.Options{
		SpikeMultiplier:      cfg.Detector.SpikeMultiplier,
		ErrorSurgeMultiplier: cfg.Detector.ErrorSurgeMultiplier,
		ZThreshold:           cfg.Detector.ZThreshold,
		MinHistory:           cfg.Detector.MinHistory,
	})
	analyzer := engine.NewAnalyzer(detector, policy.NewGenerator(strategy))

	store := server.NewStore(
		server.WithMaxPatterns(cfg.Analysis.MaxPatterns),
		server.WithHistorySize(cfg.Analysis.HistorySize),
	)
	metrics := server.NewMetrics()
	sched := server.NewScheduler(store, analyzer, metrics,
		server.WithDebounce(cfg.Analysis.Debounce),
		server.WithSweepInterval(cfg.Analysis.SweepInterval),
	)

	gin.SetMode(gin.ReleaseMode)
	httpSrv := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.NewServer(store, sched, metrics).Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("winnowd starting",
		"version", config.Version,
		"listen", cfg.Listen,
		"strategy", strategy.Name(),
		"sweep_interval", cfg.Analysis.SweepInterval,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("winnowd exited", "error", err)
		os.Exit(1)
	}
	slog.Info("winnowd stopped")
}

func buildStrategy(sc config.StrategyConfig) (policy.Strategy, error) {
	ctor, err := policy.Get(sc.Name)
	if err != nil {
		return nil, err
	}
	return ctor(policy.Settings{
		APIKey:      sc.APIKey,
		BaseURL:     sc.BaseURL,
		Model:       sc.Model,
		TokenBudget: sc.TokenBudget,
	})
}
