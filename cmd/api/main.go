package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"

	"fleetroute/internal/api"
	"fleetroute/internal/config"
	"fleetroute/internal/events"
	"fleetroute/internal/logs"
	"fleetroute/internal/metrics"
	"fleetroute/internal/sinks"
	"fleetroute/internal/store"
	"fleetroute/internal/webhooks"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fleetroute: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}
	log, err := logs.New(os.Stdout, cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return err
	}
	metrics.RegisterDefault()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	broker, closeBroker := openBroker(ctx, cfg, log)
	defer closeBroker()

	dispatcher := &sinks.Dispatcher{
		Store:    st,
		Broker:   broker,
		Webhooks: webhooks.NewPublisher(st, log),
		Runs:     metrics.NewRuns(),
		Timeout:  cfg.Sinks.Timeout,
		Log:      log.With("component", "sinks"),
	}
	if cfg.AMQP.URL != "" {
		ex, err := events.NewAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, log.With("component", "amqp"))
		if err != nil {
			// Results are still stored and pushed through the other sinks.
			log.Warn("amqp disabled", "error", err)
		} else {
			defer func() { _ = ex.Close() }()
			dispatcher.AMQP = ex
		}
	}

	srv := api.NewServer(cfg, st, broker, dispatcher, dispatcher.Runs, log)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	worker := webhooks.NewWorker(st, cfg.Webhooks.MaxAttempts, cfg.Webhooks.PollInterval, log.With("component", "webhooks"))
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(workerCtx)
	}()

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("API listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		stopWorker()
		<-workerDone
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	dispatcher.Wait()
	stopWorker()
	<-workerDone
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.Store, func(), error) {
	if strings.TrimSpace(cfg.Database.URL) == "" {
		log.Info("using in-memory store")
		return store.NewMemory(), func() {}, nil
	}
	sq, err := store.NewSQL(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	log.Info("using sql store", "driver", cfg.Database.Driver)
	return sq, func() { _ = sq.Close() }, nil
}

// openBroker prefers Redis when configured and falls back to the in-process
// broker, which only reaches websocket clients of this instance.
func openBroker(ctx context.Context, cfg *config.Config, log *slog.Logger) (events.Broker, func()) {
	if cfg.Redis.URL != "" {
		rb, err := events.NewRedis(ctx, cfg.Redis.URL, log.With("component", "redis"))
		if err == nil {
			return rb, func() { _ = rb.Close() }
		}
		log.Warn("redis unavailable, using in-memory broker", "error", err)
	}
	return events.NewMemory(), func() {}
}
