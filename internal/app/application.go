package app

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/llmgram/llmgram/internal/app/di"
	"github.com/llmgram/llmgram/internal/config"
	"github.com/llmgram/llmgram/internal/logger"
)

type Application struct {
	Logger logger.Logger
	cfg    *config.Config
	di     *di.Container
	ctx    context.Context
	cancel context.CancelFunc
}

func New() (*Application, error) {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	cfg, err := config.Load()
	if err != nil {
		cancel()
		return nil, err
	}

	di, err := di.NewContainer(cfg)
	if err != nil {
		cancel()
		return nil, err
	}
	di.Logger.Info("DI Container created")

	app := &Application{
		cfg:    cfg,
		di:     di,
		Logger: di.Logger,
		ctx:    ctx,
		cancel: cancel,
	}

	return app, nil
}

func (a *Application) Start() error {
	a.Logger.WithField("tiers", a.di.Descriptors.Tiers()).Info("Starting application")
	a.StartStatsReporter()

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		<-signals
		a.Logger.Info("Shutdown signal received")
		a.cancel()
	}()

	return nil
}

func (a *Application) WaitForShutdown() {
	<-a.ctx.Done()
	if err := a.di.DB.Close(); err != nil {
		a.Logger.WithError(err).Error("Failed to close database")
	}
	a.Logger.Info("Application stopped")
}

// StartStatsReporter periodically logs per-provider usage counters.
func (a *Application) StartStatsReporter() {
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-a.ctx.Done():
				return
			case <-ticker.C:
				for id, stats := range a.di.Stats.Snapshot() {
					a.Logger.WithFields(logger.Fields{
						"provider":    id,
						"attempts":    stats.Attempts,
						"successes":   stats.Successes,
						"avg_latency": stats.AvgLatency.String(),
					}).Info("Provider usage")
				}
			}
		}
	}()
}
