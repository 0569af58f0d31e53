package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Run собирает зависимости и запускает платформу: HTTP API, сервер метрик
// и фоновые воркеры. Блокирует до отмены контекста или ошибки сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := BuildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(logger)

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, deps.Health)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	go deps.Cleanup.Run(workerCtx)
	if deps.OutboxWorker != nil {
		go deps.OutboxWorker.Run(workerCtx)
	}
	if deps.StockRelease != nil {
		if err := deps.StockRelease.Start(workerCtx); err != nil {
			return err
		}
		defer func() {
			if err := deps.StockRelease.Stop(); err != nil {
				logger.WithError(err).Warn("failed to stop stock release consumer")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- deps.Server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		cancelWorkers()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := deps.Server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("graceful shutdown превысил таймаут")
		}
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		cancelWorkers()
		shutdownHTTP(metricsSrv, logger)
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
