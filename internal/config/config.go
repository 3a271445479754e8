package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// DB stores Postgres connection settings.
type DB struct {
	Host string
	Port string
	User string
	Pass string
	Name string
}

// DSN renders a pgx connection string.
func (d DB) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Pass),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Redis stores key-value store settings.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Broadcast stores dispatch settings. Timeout applies to every request shape.
type Broadcast struct {
	Timeout          time.Duration
	MarkerBuffer     time.Duration
	CreateLockTTL    time.Duration
	CreateLockWait   time.Duration
	MaxTrucks        int
	TxMaxAttempts    int
	TxBaseDelay      time.Duration
	TxMaxDelay       time.Duration
	OperationTimeout time.Duration
}

// MarkerTTL is the lifetime of per-broadcast cache markers.
func (b Broadcast) MarkerTTL() time.Duration { return b.Timeout + b.MarkerBuffer }

// Timer stores distributed timer settings.
type Timer struct {
	Enabled           bool
	PollInterval      time.Duration
	BatchSize         int
	FireLockTTL       time.Duration
	ReconcileInterval time.Duration
}

// Kafka stores lifecycle event stream settings. Empty Brokers disables Kafka.
type Kafka struct {
	Brokers []string
	Topic   string
	GroupID string
}

// RateLimit stores per-caller request limits.
type RateLimit struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

// Pprof stores debug server settings. Empty Addr disables it.
type Pprof struct {
	Addr string
	User string
	Pass string
}

// Config stores service settings.
type Config struct {
	Port      int
	LogLevel  string
	DB        DB
	Redis     Redis
	Broadcast Broadcast
	Timer     Timer
	Kafka     Kafka
	RateLimit RateLimit
	Pprof     Pprof
}

// Load reads configuration in order: .env (if present) → environment → flags from os.Args.
func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs is Load with explicit command-line arguments.
func LoadArgs(args []string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: .env not loaded: %v", err)
	}

	cfg := &Config{
		Port:      defaultPort,
		LogLevel:  "info",
		DB:        defaultDB,
		Redis:     defaultRedis,
		Broadcast: defaultBroadcast,
		Timer:     defaultTimer,
		Kafka:     defaultKafka,
		RateLimit: defaultRateLimit,
	}

	var err error
	env := envReader{}
	cfg.Port = env.int("PORT", cfg.Port)
	cfg.LogLevel = env.str("LOG_LEVEL", cfg.LogLevel)

	cfg.DB.Host = env.str("POSTGRES_HOST", cfg.DB.Host)
	cfg.DB.Port = env.str("POSTGRES_PORT", cfg.DB.Port)
	cfg.DB.User = env.str("POSTGRES_USER", cfg.DB.User)
	cfg.DB.Pass = env.str("POSTGRES_PASSWORD", cfg.DB.Pass)
	cfg.DB.Name = env.str("POSTGRES_DB", cfg.DB.Name)

	cfg.Redis.Addr = env.str("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = env.str("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = env.int("REDIS_DB", cfg.Redis.DB)

	cfg.Broadcast.Timeout = env.duration("BROADCAST_TIMEOUT", cfg.Broadcast.Timeout)
	cfg.Broadcast.MarkerBuffer = env.duration("BROADCAST_MARKER_BUFFER", cfg.Broadcast.MarkerBuffer)
	cfg.Broadcast.MaxTrucks = env.int("BROADCAST_MAX_TRUCKS", cfg.Broadcast.MaxTrucks)
	cfg.Broadcast.TxMaxAttempts = env.int("TX_MAX_ATTEMPTS", cfg.Broadcast.TxMaxAttempts)

	cfg.Timer.Enabled = env.bool("TIMER_ENABLED", cfg.Timer.Enabled)
	cfg.Timer.PollInterval = env.duration("TIMER_POLL_INTERVAL", cfg.Timer.PollInterval)
	cfg.Timer.BatchSize = env.int("TIMER_BATCH_SIZE", cfg.Timer.BatchSize)
	cfg.Timer.FireLockTTL = env.duration("TIMER_FIRE_LOCK_TTL", cfg.Timer.FireLockTTL)
	cfg.Timer.ReconcileInterval = env.duration("TIMER_RECONCILE_INTERVAL", cfg.Timer.ReconcileInterval)

	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	cfg.Kafka.Topic = env.str("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Kafka.GroupID = env.str("KAFKA_GROUP_ID", cfg.Kafka.GroupID)

	cfg.RateLimit.Enabled = env.bool("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.Limit = env.int("RATE_LIMIT_LIMIT", cfg.RateLimit.Limit)
	cfg.RateLimit.Window = env.duration("RATE_LIMIT_WINDOW", cfg.RateLimit.Window)

	cfg.Pprof.Addr = env.str("PPROF_ADDR", cfg.Pprof.Addr)
	cfg.Pprof.User = env.str("PPROF_USER", cfg.Pprof.User)
	cfg.Pprof.Pass = env.str("PPROF_PASS", cfg.Pprof.Pass)

	if env.err != nil {
		return nil, env.err
	}

	fs := pflag.NewFlagSet("dispatch", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.DurationVar(&cfg.Broadcast.Timeout, "broadcast-timeout", cfg.Broadcast.Timeout, "time a broadcast waits for transporters")
	fs.BoolVar(&cfg.Timer.Enabled, "timer", cfg.Timer.Enabled, "run the distributed expiry poller in this process")
	if err = fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if _, err := strconv.Atoi(c.DB.Port); err != nil {
		return fmt.Errorf("invalid POSTGRES_PORT %q: %w", c.DB.Port, err)
	}
	if c.Broadcast.Timeout <= 0 {
		return fmt.Errorf("invalid broadcast timeout: %s", c.Broadcast.Timeout)
	}
	if c.Broadcast.MaxTrucks <= 0 {
		return fmt.Errorf("invalid max trucks: %d", c.Broadcast.MaxTrucks)
	}
	if c.Broadcast.TxMaxAttempts <= 0 {
		return fmt.Errorf("invalid tx max attempts: %d", c.Broadcast.TxMaxAttempts)
	}
	if c.Timer.PollInterval <= 0 {
		return fmt.Errorf("invalid timer poll interval: %s", c.Timer.PollInterval)
	}
	if c.Timer.BatchSize <= 0 {
		return fmt.Errorf("invalid timer batch size: %d", c.Timer.BatchSize)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("invalid rate limit: %d per %s", c.RateLimit.Limit, c.RateLimit.Window)
	}
	return nil
}

// envReader reads typed environment values and keeps the first parse error.
type envReader struct{ err error }

func (r *envReader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *envReader) int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(fmt.Errorf("invalid %s %q: %w", key, v, err))
		return def
	}
	return n
}

func (r *envReader) bool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(fmt.Errorf("invalid %s %q: %w", key, v, err))
		return def
	}
	return b
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(fmt.Errorf("invalid %s %q: %w", key, v, err))
		return def
	}
	return d
}

func (r *envReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
