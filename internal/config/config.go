// Package config loads the service configuration from flags, environment,
// an optional config file and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/alejoacosta74/cardbatch/internal/card"
	"github.com/alejoacosta74/cardbatch/internal/kafka"
	"github.com/alejoacosta74/cardbatch/internal/routing"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. CARDBATCH_BATCH_SIZE.
const EnvPrefix = "CARDBATCH"

// Config is the validated service configuration.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	GracePeriod   time.Duration

	Kafka   KafkaConfig
	HTTP    HTTPConfig
	Metrics MetricsConfig
	Log     LogConfig
	System  SystemConfig
}

// KafkaConfig groups the broker, producer and topic settings.
type KafkaConfig struct {
	Driver            string
	Brokers           []string
	ClientID          string
	RequiredAcks      string
	Compression       string
	MaxAttempts       int
	Linger            time.Duration
	Topics            map[card.Brand]string
	TopicPartitions   int32
	ReplicationFactor int16
	EnsureTopics      bool
	ProbeTimeout      time.Duration
	ProbeRetries      int
	BreakerThreshold  int
	BreakerTimeout    time.Duration
}

type HTTPConfig struct {
	Addr string
}

type MetricsConfig struct {
	Addr          string
	StatsInterval time.Duration
	Pprof         bool
}

type LogConfig struct {
	Level  string
	Format string
}

// SystemConfig holds Go runtime tuning. Zero values keep the runtime defaults.
type SystemConfig struct {
	MaxProcs    int
	GCPercent   int
	MaxThreads  int
	MemoryLimit int // MB
}

// NewViper returns a viper instance reading CARDBATCH_* variables with every
// default set.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("batch.size", 1000)
	v.SetDefault("batch.flush_interval_ms", 500)
	v.SetDefault("shutdown.grace_period_seconds", 60)

	v.SetDefault("kafka.driver", kafka.DriverSarama)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.client_id", "cardbatch")
	v.SetDefault("kafka.required_acks", "one")
	v.SetDefault("kafka.compression", "none")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("kafka.linger_ms", 0)
	for _, r := range routing.DefaultRoutes() {
		v.SetDefault(topicKey(r.Brand), r.Topic)
	}
	v.SetDefault(topicKey(card.BrandOther), "")
	v.SetDefault("kafka.topic_partitions", 3)
	v.SetDefault("kafka.replication_factor", 1)
	v.SetDefault("kafka.ensure_topics", false)
	v.SetDefault("kafka.probe_timeout_ms", 5000)
	v.SetDefault("kafka.probe_retries", 5)
	v.SetDefault("kafka.breaker.threshold", 0)
	v.SetDefault("kafka.breaker.timeout_ms", 10000)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("metrics.addr", ":2112")
	v.SetDefault("metrics.stats_interval_seconds", 30)
	v.SetDefault("metrics.pprof", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("system.maxprocs", 0)
	v.SetDefault("system.gcpercent", 0)
	v.SetDefault("system.maxthreads", 0)
	v.SetDefault("system.memorylimit", 0)
}

func topicKey(b card.Brand) string {
	return "kafka.topics." + strings.ToLower(b.String())
}

// LoadDotEnv loads path into the process environment without overriding
// variables already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads every key from v and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		BatchSize:     v.GetInt("batch.size"),
		FlushInterval: time.Duration(v.GetInt64("batch.flush_interval_ms")) * time.Millisecond,
		GracePeriod:   time.Duration(v.GetInt64("shutdown.grace_period_seconds")) * time.Second,
		Kafka: KafkaConfig{
			Driver:            strings.ToLower(v.GetString("kafka.driver")),
			Brokers:           splitList(v.GetString("kafka.brokers")),
			ClientID:          v.GetString("kafka.client_id"),
			RequiredAcks:      v.GetString("kafka.required_acks"),
			Compression:       v.GetString("kafka.compression"),
			MaxAttempts:       v.GetInt("kafka.max_attempts"),
			Linger:            time.Duration(v.GetInt64("kafka.linger_ms")) * time.Millisecond,
			Topics:            make(map[card.Brand]string),
			TopicPartitions:   v.GetInt32("kafka.topic_partitions"),
			ReplicationFactor: int16(v.GetInt("kafka.replication_factor")),
			EnsureTopics:      v.GetBool("kafka.ensure_topics"),
			ProbeTimeout:      time.Duration(v.GetInt64("kafka.probe_timeout_ms")) * time.Millisecond,
			ProbeRetries:      v.GetInt("kafka.probe_retries"),
			BreakerThreshold:  v.GetInt("kafka.breaker.threshold"),
			BreakerTimeout:    time.Duration(v.GetInt64("kafka.breaker.timeout_ms")) * time.Millisecond,
		},
		HTTP: HTTPConfig{
			Addr: v.GetString("http.addr"),
		},
		Metrics: MetricsConfig{
			Addr:          v.GetString("metrics.addr"),
			StatsInterval: time.Duration(v.GetInt64("metrics.stats_interval_seconds")) * time.Second,
			Pprof:         v.GetBool("metrics.pprof"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		System: SystemConfig{
			MaxProcs:    v.GetInt("system.maxprocs"),
			GCPercent:   v.GetInt("system.gcpercent"),
			MaxThreads:  v.GetInt("system.maxthreads"),
			MemoryLimit: v.GetInt("system.memorylimit"),
		},
	}
	for _, b := range card.Brands() {
		if topic := strings.TrimSpace(v.GetString(topicKey(b))); topic != "" {
			cfg.Kafka.Topics[b] = topic
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList accepts "a,b" as well as the "[a b]" form viper produces for
// slice defaults overridden by a flag.
func splitList(s string) []string {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.BatchSize < 1 {
		result = multierror.Append(result, fmt.Errorf("batch.size must be at least 1, got %d", c.BatchSize))
	}
	if c.FlushInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("batch.flush_interval_ms must be positive"))
	}
	if c.GracePeriod <= 0 {
		result = multierror.Append(result, fmt.Errorf("shutdown.grace_period_seconds must be positive"))
	}
	if err := c.ProducerConfig().Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Kafka.TopicPartitions < 1 {
		result = multierror.Append(result, fmt.Errorf("kafka.topic_partitions must be at least 1"))
	}
	if c.Kafka.ReplicationFactor < 1 {
		result = multierror.Append(result, fmt.Errorf("kafka.replication_factor must be at least 1"))
	}
	if c.Kafka.ProbeTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("kafka.probe_timeout_ms must be positive"))
	}
	if c.Kafka.ProbeRetries < 0 {
		result = multierror.Append(result, fmt.Errorf("kafka.probe_retries must not be negative"))
	}
	if c.Kafka.BreakerThreshold < 0 {
		result = multierror.Append(result, fmt.Errorf("kafka.breaker.threshold must not be negative"))
	}
	if c.Kafka.BreakerThreshold > 0 && c.Kafka.BreakerTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("kafka.breaker.timeout_ms must be positive when the breaker is enabled"))
	}
	if c.HTTP.Addr == "" {
		result = multierror.Append(result, fmt.Errorf("http.addr is required"))
	}
	if c.Metrics.StatsInterval < 0 {
		result = multierror.Append(result, fmt.Errorf("metrics.stats_interval_seconds must not be negative"))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		result = multierror.Append(result, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return result.ErrorOrNil()
}

// Routes returns the configured brand routes in brand order.
func (c *Config) Routes() []routing.Route {
	routes := make([]routing.Route, 0, len(c.Kafka.Topics))
	for _, b := range card.Brands() {
		if topic, ok := c.Kafka.Topics[b]; ok {
			routes = append(routes, routing.Route{Brand: b, Topic: topic})
		}
	}
	return routes
}

// ProducerConfig returns the settings for kafka.NewProducer.
func (c *Config) ProducerConfig() kafka.Config {
	return kafka.Config{
		Driver:       c.Kafka.Driver,
		Brokers:      c.Kafka.Brokers,
		ClientID:     c.Kafka.ClientID,
		RequiredAcks: c.Kafka.RequiredAcks,
		Compression:  c.Kafka.Compression,
		MaxAttempts:  c.Kafka.MaxAttempts,
		Linger:       c.Kafka.Linger,
	}
}

// ConfigureLogger applies the log level and format to the standard logrus logger.
func (c *Config) ConfigureLogger() {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if c.Log.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
