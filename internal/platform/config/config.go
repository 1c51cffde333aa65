package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	liststrings "billtrack/pkg/platform/strings"
)

// Config is the complete runtime configuration for billtrack.
type Config struct {
	Server    Server    `mapstructure:"server"`
	Log       Log       `mapstructure:"log"`
	Database  Database  `mapstructure:"database"`
	Redis     Redis     `mapstructure:"redis"`
	Kafka     Kafka     `mapstructure:"kafka"`
	Delivery  Delivery  `mapstructure:"delivery"`
	Reconcile Reconcile `mapstructure:"reconcile"`
	Email     Email     `mapstructure:"email"`
	SMS       Gateway   `mapstructure:"sms"`
	Post      Gateway   `mapstructure:"post"`
	Auth      Auth      `mapstructure:"auth"`
	Callbacks Callbacks `mapstructure:"callbacks"`
	Poller    Poller    `mapstructure:"poller"`
	Outbox    Outbox    `mapstructure:"outbox"`
	Tracing   Tracing   `mapstructure:"tracing"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	Timezone       string        `mapstructure:"timezone"`
}

// Location is the zone used for document numbers and report dates.
func (s Server) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Database selects the persistence backend. An empty URL keeps every store in memory.
type Database struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

func (d Database) Enabled() bool { return d.URL != "" }

type Redis struct {
	URL          string        `mapstructure:"url"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (r Redis) Enabled() bool { return r.URL != "" }

// Kafka configures the callback consumer and the outbox relay.
type Kafka struct {
	Brokers             []string `mapstructure:"brokers"`
	ConsumerGroup       string   `mapstructure:"consumer_group"`
	DeliveryEventsTopic string   `mapstructure:"delivery_events_topic"`
	PaymentEventsTopic  string   `mapstructure:"payment_events_topic"`
	AuditTopic          string   `mapstructure:"audit_topic"`
	Partitions          int32    `mapstructure:"partitions"`
	ReplicationFactor   int16    `mapstructure:"replication_factor"`
}

func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

// Delivery holds dispatch retry and circuit breaker settings.
type Delivery struct {
	MaxAttempts      int           `mapstructure:"max_attempts"`
	InitialBackoff   time.Duration `mapstructure:"initial_backoff"`
	AttemptTimeout   time.Duration `mapstructure:"attempt_timeout"`
	BreakerFailures  int           `mapstructure:"breaker_failures"`
	BreakerSuccesses int           `mapstructure:"breaker_successes"`
}

type Reconcile struct {
	OrphanRetryDelay time.Duration `mapstructure:"orphan_retry_delay"`
	RetryInterval    time.Duration `mapstructure:"retry_interval"`
	RetryBatch       int           `mapstructure:"retry_batch"`
}

// Email configures the SES email channel. An empty sender disables it.
type Email struct {
	From   string `mapstructure:"from"`
	Region string `mapstructure:"region"`
}

// Gateway configures an HTTP delivery collaborator (SMS gateway, postal API).
type Gateway struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func (g Gateway) Enabled() bool { return g.BaseURL != "" }

type Auth struct {
	JWTSigningKey     string        `mapstructure:"jwt_signing_key"`
	Issuer            string        `mapstructure:"issuer"`
	TokenTTL          time.Duration `mapstructure:"token_ttl"`
	SeedAdminUsername string        `mapstructure:"seed_admin_username"`
	SeedAdminPassword string        `mapstructure:"seed_admin_password"`
}

type Callbacks struct {
	Token string `mapstructure:"token"`
}

type Poller struct {
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
	BatchSize   int           `mapstructure:"batch_size"`
}

type Outbox struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type Tracing struct {
	ServiceName string `mapstructure:"service_name"`
}

const envPrefix = "BILLTRACK"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.timezone", "Asia/Bangkok")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.key_prefix", "billtrack")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("kafka.consumer_group", "billtrack")
	v.SetDefault("kafka.delivery_events_topic", "billing.delivery-events")
	v.SetDefault("kafka.payment_events_topic", "billing.payment-events")
	v.SetDefault("kafka.audit_topic", "billing.audit")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication_factor", 1)

	v.SetDefault("delivery.max_attempts", 3)
	v.SetDefault("delivery.initial_backoff", time.Second)
	v.SetDefault("delivery.attempt_timeout", 10*time.Second)
	v.SetDefault("delivery.breaker_failures", 5)
	v.SetDefault("delivery.breaker_successes", 2)

	v.SetDefault("reconcile.orphan_retry_delay", 2*time.Second)
	v.SetDefault("reconcile.retry_interval", 500*time.Millisecond)
	v.SetDefault("reconcile.retry_batch", 100)

	v.SetDefault("email.region", "ap-southeast-1")
	v.SetDefault("sms.timeout", 10*time.Second)
	v.SetDefault("post.timeout", 10*time.Second)

	v.SetDefault("auth.issuer", "billtrack")
	v.SetDefault("auth.token_ttl", 8*time.Hour)
	v.SetDefault("auth.seed_admin_username", "admin")

	v.SetDefault("poller.interval", 15*time.Minute)
	v.SetDefault("poller.concurrency", 4)
	v.SetDefault("poller.batch_size", 200)

	v.SetDefault("outbox.poll_interval", time.Second)
	v.SetDefault("outbox.batch_size", 100)

	v.SetDefault("tracing.service_name", "billtrack")
}

// Load builds the configuration from defaults, an optional YAML file and
// BILLTRACK_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Server.AllowedOrigins = liststrings.SplitList(cfg.Server.AllowedOrigins)
	cfg.Kafka.Brokers = liststrings.SplitList(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindEnv registers keys without defaults so AutomaticEnv can see them
// during Unmarshal.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"database.url",
		"redis.url",
		"kafka.brokers",
		"email.from",
		"sms.base_url", "sms.api_key",
		"post.base_url", "post.api_key",
		"auth.jwt_signing_key",
		"auth.seed_admin_password",
		"callbacks.token",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("auth.jwt_signing_key is required"))
	}
	if c.Delivery.MaxAttempts < 1 {
		errs = append(errs, errors.New("delivery.max_attempts must be at least 1"))
	}
	if c.Reconcile.OrphanRetryDelay <= 0 {
		errs = append(errs, errors.New("reconcile.orphan_retry_delay must be positive"))
	}
	if _, err := c.Server.Location(); err != nil {
		errs = append(errs, fmt.Errorf("server.timezone: %w", err))
	}
	if c.Poller.Concurrency < 1 {
		errs = append(errs, errors.New("poller.concurrency must be at least 1"))
	}
	if c.Kafka.DeliveryEventsTopic == c.Kafka.PaymentEventsTopic {
		errs = append(errs, errors.New("kafka delivery and payment topics must differ"))
	}
	return errors.Join(errs...)
}
