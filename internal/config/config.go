package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Broker         BrokerConfig
	Logging        LoggingConfig
	Ingestion      IngestionConfig
	Tokenizer      TokenizerConfig
	Generator      GeneratorConfig
	Helpdesk       HelpdeskConfig
	CircuitBreaker CircuitBreakerConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig
	Redis         RedisConfig
	MongoDB       MongoDBConfig
	RunMigrations bool `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers         []string    `mapstructure:"brokers"`
	GroupID         string      `mapstructure:"group_id"`
	IngestionTopic  string      `mapstructure:"ingestion_topic"`
	CartTopic       string      `mapstructure:"cart_topic"`
	GenerationTopic string      `mapstructure:"generation_topic"`
	PoisonTopic     string      `mapstructure:"poison_topic"`
	Retry           RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// IngestionConfig holds the eligibility knobs for turning payment events
// into receipts.
type IngestionConfig struct {
	// AuthenticatedChannels lists the origin channels whose payer data is
	// trusted, comma separated.
	AuthenticatedChannels string `mapstructure:"authenticated_channels"`
	// UnwantedRemittanceInfo lists remittance prefixes that must never
	// appear as a receipt subject, comma separated.
	UnwantedRemittanceInfo string `mapstructure:"unwanted_remittance_info"`
	// ECommerceFilterEnabled discards e-commerce events without an
	// authenticated user when set.
	ECommerceFilterEnabled bool `mapstructure:"ecommerce_filter_enabled"`
	// ListenCartEvents enables the cart topic consumer.
	ListenCartEvents bool `mapstructure:"listen_cart_events"`
	DedupTTLSeconds  int  `mapstructure:"dedup_ttl_seconds"`
}

type TokenizerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	TimeoutSeconds time.Duration `mapstructure:"timeout_seconds"`
	Retry          RetryConfig   `mapstructure:"retry"`
}

type GeneratorConfig struct {
	EngineURL      string        `mapstructure:"engine_url"`
	EngineAPIKey   string        `mapstructure:"engine_api_key"`
	TimeoutSeconds time.Duration `mapstructure:"timeout_seconds"`
	// MaxRetries is the per-receipt attempt budget before the receipt is
	// parked as failed.
	MaxRetries int `mapstructure:"max_retries"`
}

type HelpdeskConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

// JobsConfig controls the background sweeps hosted by the helpdesk
// service. Each job can be disabled independently.
type JobsConfig struct {
	FailedRecoveryEnabled      bool          `mapstructure:"failed_recovery_enabled"`
	NotNotifiedRecoveryEnabled bool          `mapstructure:"not_notified_recovery_enabled"`
	ReviewedPoisonEnabled      bool          `mapstructure:"reviewed_poison_enabled"`
	Interval                   time.Duration `mapstructure:"interval"`
	LookbackDays               int           `mapstructure:"lookback_days"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
