package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func bindEnvVariables() {
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.ingestion_topic", "BROKER_KAFKA_INGESTION_TOPIC")
	viper.BindEnv("broker.kafka.cart_topic", "BROKER_KAFKA_CART_TOPIC")
	viper.BindEnv("broker.kafka.generation_topic", "BROKER_KAFKA_GENERATION_TOPIC")
	viper.BindEnv("broker.kafka.poison_topic", "BROKER_KAFKA_POISON_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("ingestion.authenticated_channels", "INGESTION_AUTHENTICATED_CHANNELS")
	viper.BindEnv("ingestion.unwanted_remittance_info", "INGESTION_UNWANTED_REMITTANCE_INFO")
	viper.BindEnv("ingestion.ecommerce_filter_enabled", "INGESTION_ECOMMERCE_FILTER_ENABLED")
	viper.BindEnv("ingestion.listen_cart_events", "INGESTION_LISTEN_CART_EVENTS")

	viper.BindEnv("tokenizer.base_url", "TOKENIZER_BASE_URL")
	viper.BindEnv("tokenizer.api_key", "TOKENIZER_API_KEY")

	viper.BindEnv("generator.engine_url", "GENERATOR_ENGINE_URL")
	viper.BindEnv("generator.engine_api_key", "GENERATOR_ENGINE_API_KEY")
	viper.BindEnv("generator.max_retries", "GENERATOR_MAX_RETRIES")

	viper.BindEnv("helpdesk.jobs.failed_recovery_enabled", "HELPDESK_JOBS_FAILED_RECOVERY_ENABLED")
	viper.BindEnv("helpdesk.jobs.not_notified_recovery_enabled", "HELPDESK_JOBS_NOT_NOTIFIED_RECOVERY_ENABLED")
	viper.BindEnv("helpdesk.jobs.reviewed_poison_enabled", "HELPDESK_JOBS_REVIEWED_POISON_ENABLED")
	viper.BindEnv("helpdesk.jobs.lookback_days", "HELPDESK_JOBS_LOOKBACK_DAYS")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	return nil
}
