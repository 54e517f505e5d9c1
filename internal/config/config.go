package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	KafkaBootstrapServers string
	KafkaTopic            string
	KafkaGroupID          string
	KafkaOffsetReset      string
	KafkaPollTimeout      time.Duration
	KafkaMaxPollRecords   int
	// KafkaMaxMessages of 0 consumes until shutdown.
	KafkaMaxMessages    int
	ConsumerMetricsAddr string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	RejectedArchiveBucket string
	AWSRegion             string
	AWSAccessKeyID        string
	AWSSecretAccessKey    string
	AWSEndpointOverride   string

	AdminJWTSecret     string
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		KafkaBootstrapServers: getEnv("KAFKA_BOOTSTRAP_SERVERS", "kafka:19092"),
		KafkaTopic:            getEnv("KAFKA_TOPIC_APPOINTMENTS_CREATED", "appointments.created"),
		KafkaGroupID:          getEnv("KAFKA_CONSUMER_GROUP", "portfolio-bff"),
		KafkaOffsetReset:      strings.ToLower(getEnv("KAFKA_AUTO_OFFSET_RESET", "latest")),
		KafkaPollTimeout:      getEnvAsMillis("KAFKA_POLL_TIMEOUT_MS", time.Second),
		KafkaMaxPollRecords:   getEnvAsInt("KAFKA_MAX_POLL_RECORDS", 10),
		KafkaMaxMessages:      getEnvAsInt("KAFKA_MAX_MESSAGES", 0),
		ConsumerMetricsAddr:   getEnv("CONSUMER_METRICS_ADDR", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		RejectedArchiveBucket: getEnv("REJECTED_ARCHIVE_BUCKET", ""),
		AWSRegion:             getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:        getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:   getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

// KafkaBrokers splits the comma-separated bootstrap server list.
func (c *Config) KafkaBrokers() []string {
	return splitList(c.KafkaBootstrapServers)
}

// ParseConsumerFlags applies command-line overrides for the consumer on top of cfg.
// Flags not present on the command line keep the environment value.
func ParseConsumerFlags(cfg *Config, args []string, output io.Writer) error {
	fs := pflag.NewFlagSet("appointments-consumer", pflag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}

	fs.StringVar(&cfg.KafkaBootstrapServers, "bootstrap-servers", cfg.KafkaBootstrapServers, "comma-separated Kafka bootstrap servers")
	fs.StringVar(&cfg.KafkaTopic, "topic", cfg.KafkaTopic, "topic carrying appointment-created events")
	fs.StringVar(&cfg.KafkaGroupID, "group-id", cfg.KafkaGroupID, "consumer group id")
	fs.StringVar(&cfg.KafkaOffsetReset, "offset-reset", cfg.KafkaOffsetReset, "where to start without a committed offset (earliest or latest)")
	fromBeginning := fs.Bool("from-beginning", false, "shorthand for --offset-reset=earliest")
	pollMS := fs.Int("poll-timeout-ms", int(cfg.KafkaPollTimeout/time.Millisecond), "poll timeout in milliseconds")
	fs.IntVar(&cfg.KafkaMaxPollRecords, "max-poll-records", cfg.KafkaMaxPollRecords, "records returned per poll")
	fs.IntVar(&cfg.KafkaMaxMessages, "max-messages", cfg.KafkaMaxMessages, "stop after this many stored events (0 runs until interrupted)")
	fs.StringVar(&cfg.ConsumerMetricsAddr, "metrics-addr", cfg.ConsumerMetricsAddr, "listen address for /metrics (empty disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("config: parse flags: %w", err)
	}
	if *fromBeginning {
		cfg.KafkaOffsetReset = "earliest"
	}
	cfg.KafkaOffsetReset = strings.ToLower(strings.TrimSpace(cfg.KafkaOffsetReset))
	cfg.KafkaPollTimeout = time.Duration(*pollMS) * time.Millisecond
	return nil
}

// ValidateConsumer reports every consumer setting that cannot be used.
func (c *Config) ValidateConsumer() error {
	var errs []error
	if len(c.KafkaBrokers()) == 0 {
		errs = append(errs, errors.New("KAFKA_BOOTSTRAP_SERVERS is required"))
	}
	if strings.TrimSpace(c.KafkaTopic) == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC_APPOINTMENTS_CREATED is required"))
	}
	if strings.TrimSpace(c.KafkaGroupID) == "" {
		errs = append(errs, errors.New("KAFKA_CONSUMER_GROUP is required"))
	}
	if c.KafkaOffsetReset != "earliest" && c.KafkaOffsetReset != "latest" {
		errs = append(errs, fmt.Errorf("KAFKA_AUTO_OFFSET_RESET must be earliest or latest, got %q", c.KafkaOffsetReset))
	}
	if c.KafkaPollTimeout <= 0 {
		errs = append(errs, errors.New("KAFKA_POLL_TIMEOUT_MS must be positive"))
	}
	if c.KafkaMaxPollRecords <= 0 {
		errs = append(errs, errors.New("KAFKA_MAX_POLL_RECORDS must be positive"))
	}
	if c.KafkaMaxMessages < 0 {
		errs = append(errs, errors.New("KAFKA_MAX_MESSAGES must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid consumer settings: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsMillis reads an integer millisecond count, as the Kafka client settings are expressed.
func getEnvAsMillis(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
