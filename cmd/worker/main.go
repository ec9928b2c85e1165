package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"telepost/internal/awsutil"
	"telepost/internal/config"
	"telepost/internal/httpapi"
	"telepost/internal/logging"
	"telepost/internal/observability"
	"telepost/internal/providers/telegram"
	sqsqueue "telepost/internal/queue/sqs"
	"telepost/internal/store/pg"
	workerproc "telepost/internal/worker"
)

func main() {
	cfg := config.LoadWorker()
	logging.Init("worker", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:          cfg.Pool.MaxConns,
		MinConns:          cfg.Pool.MinConns,
		MaxConnLifetime:   cfg.Pool.MaxConnLifetime,
		MaxConnIdleTime:   cfg.Pool.MaxConnIdleTime,
		HealthCheckPeriod: cfg.Pool.HealthCheckPeriod,
	})
	if err != nil {
		slog.Error("worker db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	store := pg.New(db)

	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion)
	if err != nil {
		slog.Error("worker sqs client init failed", "err", err)
		os.Exit(1)
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()

	if err := db.Ping(startupCtx); err != nil {
		slog.Error("db not reachable", "err", err)
		os.Exit(1)
	}
	if err := store.Migrate(startupCtx); err != nil {
		slog.Error("db migrate failed", "err", err)
		os.Exit(1)
	}
	if _, err := sqsClient.GetQueueAttributes(startupCtx, &sqs.GetQueueAttributesInput{
		QueueUrl:       &cfg.SQSQueueURL,
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	}); err != nil {
		slog.Error("sqs not reachable", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	consumer := &sqsqueue.Consumer{
		SQS: sqsClient, QueueURL: cfg.SQSQueueURL,
		WaitTimeSeconds:   cfg.SQSWaitTime,
		MaxMessages:       cfg.SQSMaxMsgs,
		VisibilityTimeout: cfg.SQSVizTimeout,
	}

	healthMux := httpapi.New().Mux
	healthMux.HandleFunc("/healthz", httpapi.Healthz())
	healthMux.HandleFunc("/readyz", httpapi.Readyz(2*time.Second,
		func(c context.Context) error { return db.Ping(c) },
		func(c context.Context) error {
			_, err := sqsClient.GetQueueAttributes(c, &sqs.GetQueueAttributesInput{
				QueueUrl:       &cfg.SQSQueueURL,
				AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
			})
			return err
		},
	))

	healthSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpapi.Logging(healthMux),
	}

	healthErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker health listening", "port", cfg.Port)
		healthErrCh <- healthSrv.ListenAndServe()
	}()

	fanoutPause, err := time.ParseDuration(cfg.FanoutPause)
	if err != nil {
		slog.Error("invalid FANOUT_PAUSE", "value", cfg.FanoutPause, "err", err)
		os.Exit(1)
	}

	tg := &telegram.Client{
		BaseURL: cfg.BotAPIBaseURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.BotAPIRPS), cfg.BotAPIBurst)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "telegram-bot-api",
		MaxRequests: 3,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
	})
	processor := &workerproc.Processor{
		Store:        store,
		Sender:       tg,
		DefaultToken: cfg.DefaultBotToken,
		Limiter:      limiter,
		Breaker:      cb,
		PaceEvery:    cfg.FanoutPaceEvery,
		Pause:        fanoutPause,
	}

	pollErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker starting poll", "queue_url", cfg.SQSQueueURL, "concurrency", cfg.WorkerConcurrency)
		pollErrCh <- consumer.PollConcurrent(ctx, cfg.WorkerConcurrency, func(ctx context.Context, job sqsqueue.PublishJob) (fatal bool, err error) {
			start := time.Now()
			slog.Info("job start", "job_id", job.JobID, "post_id", job.PostID, "bot_id", job.BotID)
			defer func() {
				status := "ok"
				if err != nil {
					status = "error"
				}
				slog.Info("job finish",
					"job_id", job.JobID,
					"status", status,
					"fatal", fatal,
					"duration", time.Since(start),
					"err", err,
				)
			}()
			return processor.Process(ctx, job)
		})
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-pollErrCh:
		if err != nil && err != context.Canceled {
			slog.Error("worker poll failed", "err", err)
			os.Exit(1)
		}
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("worker health server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("worker shutdown", "signal", sig.String())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	select {
	case <-pollErrCh:
	case <-time.After(10 * time.Second):
		slog.Info("worker shutdown timeout waiting for poll loop")
	}
}
