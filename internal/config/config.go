package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration for the delivery worker.
type Config struct {
	App       AppConfig
	Kafka     KafkaConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Worker    WorkerConfig
	RateLimit RateLimitConfig
	Billing   BillingConfig
	Gateway   GatewayConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

// KafkaConfig defines broker information and the topics the worker touches.
type KafkaConfig struct {
	Brokers       []string
	JobsTopic     string
	DLQTopic      string
	ConsumerGroup string
}

// DatabaseConfig holds the Postgres connection target.
type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MigrationsPath string
}

// DSN renders the configuration as a Postgres connection URL.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User), url.QueryEscape(d.Password), d.Host, d.Port, d.Name, d.SSLMode)
}

// RedisConfig controls the optional Redis-backed rate limiter. When disabled
// the worker uses the in-process fixed-window limiter.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// WorkerConfig controls orchestration, retry and backoff behaviour.
type WorkerConfig struct {
	Concurrency         int
	MaxAttempts         int
	BaseBackoff         time.Duration
	MaxBackoff          time.Duration
	GlobalRatePerSecond int
	JobMaxBytes         int
}

// RateLimitConfig holds the per-sender fixed-window settings.
type RateLimitConfig struct {
	SenderLimit  int
	SenderWindow time.Duration
}

// BillingConfig holds usage attribution settings.
type BillingConfig struct {
	CostCentsPerMessage int
}

// GatewayConfig points the client at the WhatsApp Cloud API.
type GatewayConfig struct {
	BaseURL      string
	GraphVersion string
	Timeout      time.Duration
}

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.Port = ldr.getInt("APP_PORT", 8081, false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", true)
	cfg.Kafka.JobsTopic = ldr.getString("KAFKA_JOBS_TOPIC", "whatsapp.messages.jobs", false)
	cfg.Kafka.DLQTopic = ldr.getString("KAFKA_DLQ_TOPIC", "whatsapp.messages.dlq", false)
	cfg.Kafka.ConsumerGroup = ldr.getString("KAFKA_CONSUMER_GROUP", "delivery-worker", false)

	cfg.Database.Host = ldr.getString("DATABASE_HOST", "", true)
	cfg.Database.Port = ldr.getInt("DATABASE_PORT", 5432, false)
	cfg.Database.User = ldr.getString("DATABASE_USER", "", true)
	cfg.Database.Password = ldr.getString("DATABASE_PASSWORD", "", true)
	cfg.Database.Name = ldr.getString("DATABASE_NAME", "", true)
	cfg.Database.SSLMode = ldr.getString("DATABASE_SSLMODE", "disable", false)
	cfg.Database.MaxOpenConns = ldr.getInt("DATABASE_MAX_OPEN_CONNS", 10, false)
	cfg.Database.MigrationsPath = ldr.getString("DATABASE_MIGRATIONS_PATH", "internal/store/migrations", false)

	cfg.Redis.Enabled = ldr.getBool("REDIS_RATE_LIMIT_ENABLED", false, false)
	cfg.Redis.Addr = ldr.getString("REDIS_ADDR", "localhost:6379", false)
	cfg.Redis.Password = ldr.getString("REDIS_PASSWORD", "", false)
	cfg.Redis.DB = ldr.getInt("REDIS_DB", 0, false)

	cfg.Worker.Concurrency = ldr.getInt("WORKER_CONCURRENCY", 10, false)
	cfg.Worker.MaxAttempts = ldr.getInt("MAX_ATTEMPTS", 5, false)
	cfg.Worker.BaseBackoff = ldr.getDuration("BASE_BACKOFF", time.Second, false)
	cfg.Worker.MaxBackoff = ldr.getDuration("MAX_BACKOFF", time.Minute, false)
	cfg.Worker.GlobalRatePerSecond = ldr.getInt("GLOBAL_RATE_PER_SECOND", 80, false)
	cfg.Worker.JobMaxBytes = ldr.getInt("JOB_MAX_BYTES", 200000, false)

	cfg.RateLimit.SenderLimit = ldr.getInt("SENDER_RATE_LIMIT", 80, false)
	cfg.RateLimit.SenderWindow = ldr.getDuration("SENDER_RATE_WINDOW", time.Second, false)

	cfg.Billing.CostCentsPerMessage = ldr.getInt("COST_CENTS_PER_MESSAGE", 12, false)

	cfg.Gateway.BaseURL = ldr.getString("WHATSAPP_API_BASE_URL", "https://graph.facebook.com", false)
	cfg.Gateway.GraphVersion = ldr.getString("WHATSAPP_GRAPH_VERSION", "v18.0", false)
	cfg.Gateway.Timeout = ldr.getDuration("WHATSAPP_API_TIMEOUT", 30*time.Second, false)

	if cfg.Worker.Concurrency < 1 {
		ldr.addError("WORKER_CONCURRENCY must be >= 1")
	}
	if cfg.Worker.MaxAttempts < 1 {
		ldr.addError("MAX_ATTEMPTS must be >= 1")
	}
	if cfg.RateLimit.SenderLimit < 1 {
		ldr.addError("SENDER_RATE_LIMIT must be >= 1")
	}
	if cfg.Billing.CostCentsPerMessage < 0 {
		ldr.addError("COST_CENTS_PER_MESSAGE cannot be negative")
	}

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	raw := l.getString(key, "", required)
	if raw == "" {
		return def
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid integer", key))
		return def
	}
	return i
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	raw := l.getString(key, "", required)
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid boolean", key))
		return def
	}
	return parsed
}

func (l *envLoader) getDuration(key string, def time.Duration, required bool) time.Duration {
	raw := l.getString(key, "", required)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid duration", key))
		return def
	}
	return d
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
