package config

import "github.com/kelseyhightower/envconfig"

type PoolConfig struct {
	MaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	MinConns          int32  `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	MaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME"`
	MaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME"`
	HealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD"`
}

type APIConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Pool        PoolConfig
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	// AWS / SQS
	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	SQSQueueURL        string `envconfig:"SQS_QUEUE_URL" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`

	// Telegram Bot API
	BotAPIBaseURL string `envconfig:"BOT_API_BASE_URL" default:"https://api.telegram.org"`
	// Single-tenant legacy fallback token, used when a bot row has no
	// credential of its own.
	DefaultBotToken string `envconfig:"DEFAULT_BOT_TOKEN"`

	// Telegram MTProto (personal account sessions)
	TelegramAppID   int    `envconfig:"TELEGRAM_APP_ID"`
	TelegramAppHash string `envconfig:"TELEGRAM_APP_HASH"`
}

type WorkerConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Pool        PoolConfig
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	// AWS / SQS
	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	SQSQueueURL        string `envconfig:"SQS_QUEUE_URL" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
	SQSWaitTime        int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs         int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout      int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"120"`

	// One dispatcher per destination is enough; raising this is safe
	// because the queue groups jobs per bot.
	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"1"`

	// Telegram Bot API
	BotAPIBaseURL   string  `envconfig:"BOT_API_BASE_URL" default:"https://api.telegram.org"`
	DefaultBotToken string  `envconfig:"DEFAULT_BOT_TOKEN"`
	BotAPIRPS       float64 `envconfig:"BOT_API_RPS" default:"25"`
	BotAPIBurst     int     `envconfig:"BOT_API_BURST" default:"5"`

	// Fan-out pacing: pause after every N successful sends to stay under
	// the platform's per-bot send ceiling.
	FanoutPaceEvery int    `envconfig:"FANOUT_PACE_EVERY" default:"20"`
	FanoutPause     string `envconfig:"FANOUT_PAUSE" default:"1s"`
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWorker() WorkerConfig {
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
