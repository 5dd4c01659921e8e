package cmd

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/grafana/dskit/services"

	"github.com/hashmap-kz/pgswitch/config"
	"github.com/hashmap-kz/pgswitch/internal/fo"
	"github.com/hashmap-kz/pgswitch/internal/httpsrv"
	"github.com/hashmap-kz/pgswitch/internal/monitor"
	"github.com/hashmap-kz/pgswitch/internal/pg"
)

func RunMonitorMode(cfg *config.Config) {
	// setup context
	ctx, cancel := context.WithCancel(context.Background())
	ctx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	prober := fo.NewProber(&pg.Connector{ConnectTimeout: cfg.ProbeTimeout()})
	pipeline := monitor.NewPipeline(prober, &monitor.Opts{
		MasterURL:         cfg.Cluster.MasterURL,
		StandbyURL:        cfg.Cluster.StandbyURL,
		CronSpec:          cfg.Monitor.Cron,
		LagThresholdBytes: cfg.Cluster.LagThresholdBytes,
		AlertBufferSize:   cfg.Monitor.AlertBufferSize,
	})

	if err := services.StartAndAwaitRunning(ctx, pipeline); err != nil {
		//nolint:gocritic
		log.Fatal(err)
	}

	// Use WaitGroup to wait for all goroutines to finish
	var wg sync.WaitGroup

	// HTTP server
	// It shouldn't cancel() the probe pipeline even on error.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("http server panicked",
					slog.Any("panic", r),
					slog.String("goroutine", "http-server"),
				)
			}
		}()

		handlers := httpsrv.InitHandlers(&httpsrv.HandlersOpts{
			Snapshotter: pipeline,
			Token:       cfg.Monitor.HTTPToken,
			Verbose:     cfg.Log.Level == "debug" || cfg.Log.Level == "trace",
		})
		if err := httpsrv.NewSrv(cfg.Main.ListenPort, handlers).Run(ctx); err != nil {
			slog.Error("http server failed", slog.Any("err", err))
			cancel()
		}
	}()

	// Wait for signal (context cancellation)
	<-ctx.Done()
	slog.Info("shutting down, waiting for goroutines...")

	if err := services.StopAndAwaitTerminated(context.Background(), pipeline); err != nil {
		slog.Error("pipeline shutdown error", slog.Any("err", err))
	}

	// Wait for all goroutines to finish
	wg.Wait()
	slog.Info("all components shut down cleanly")
}
