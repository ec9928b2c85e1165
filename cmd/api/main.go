package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"telepost/internal/awsutil"
	"telepost/internal/config"
	"telepost/internal/httpapi"
	"telepost/internal/httpserver"
	"telepost/internal/logging"
	"telepost/internal/observability"
	"telepost/internal/providers/telegram"
	sqsqueue "telepost/internal/queue/sqs"
	"telepost/internal/service"
	"telepost/internal/store/pg"
	"telepost/internal/userbot"
	"telepost/internal/util"
)

func main() {
	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:          cfg.Pool.MaxConns,
		MinConns:          cfg.Pool.MinConns,
		MaxConnLifetime:   cfg.Pool.MaxConnLifetime,
		MaxConnIdleTime:   cfg.Pool.MaxConnIdleTime,
		HealthCheckPeriod: cfg.Pool.HealthCheckPeriod,
	})
	if err != nil {
		slog.Error("api db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion)
	if err != nil {
		slog.Error("api sqs client init failed", "err", err)
		os.Exit(1)
	}

	store := pg.New(db)
	if err := store.Migrate(ctx); err != nil {
		slog.Error("db migrate failed", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	producer := &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.SQSQueueURL}
	botAPI := &telegram.Client{
		BaseURL: cfg.BotAPIBaseURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}

	api := &httpserver.API{
		Publish:  &service.PublishService{Store: store, Queue: producer},
		Channels: &service.ChannelService{Store: store, API: botAPI, DefaultToken: cfg.DefaultBotToken},
		Auth:     userbot.NewManager(cfg.TelegramAppID, cfg.TelegramAppHash, store),
		Puller:   &userbot.Puller{AppID: cfg.TelegramAppID, AppHash: cfg.TelegramAppHash, Store: store},
		IDGen:    util.NewJobID,
	}

	router := mux.NewRouter()
	api.Register(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpapi.Logging(router),
	}

	healthMux := httpapi.New().Mux
	healthMux.HandleFunc("/healthz", httpapi.Healthz())
	healthMux.HandleFunc("/readyz", httpapi.Readyz(2*time.Second,
		func(c context.Context) error { return db.Ping(c) },
	))
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: healthMux}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("api listening", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()
	go func() {
		slog.Info("api metrics listening", "port", cfg.MetricsPort)
		errCh <- metricsSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("api server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("api shutdown", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}
