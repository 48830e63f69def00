package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/hashicorp/go-multierror"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Supported drivers.
const (
	DriverSarama  = "sarama"
	DriverKafkaGo = "kafka-go"
	DriverFranz   = "franz"
)

// Config holds the producer settings shared by every driver.
type Config struct {
	Driver       string        // one of DriverSarama, DriverKafkaGo, DriverFranz
	Brokers      []string      // List of Kafka brokers (i.e. ["localhost:9092"])
	ClientID     string        // client id reported to the brokers
	RequiredAcks string        // none, one or all
	Compression  string        // none, gzip, snappy, lz4 or zstd
	MaxAttempts  int           // total delivery attempts per message made by the driver
	Linger       time.Duration // how long a driver may hold a partial batch
}

// Validate reports every invalid field of cfg.
func (cfg Config) Validate() error {
	var result *multierror.Error
	if len(cfg.Brokers) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one broker is required"))
	}
	switch strings.ToLower(cfg.Driver) {
	case "", DriverSarama, DriverKafkaGo, DriverFranz:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown kafka driver %q", cfg.Driver))
	}
	if _, err := normalizeAcks(cfg.RequiredAcks); err != nil {
		result = multierror.Append(result, err)
	}
	if _, err := normalizeCompression(cfg.Compression); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.MaxAttempts < 0 {
		result = multierror.Append(result, fmt.Errorf("max attempts must not be negative"))
	}
	if cfg.Linger < 0 {
		result = multierror.Append(result, fmt.Errorf("linger must not be negative"))
	}
	return result.ErrorOrNil()
}

// NewProducer builds the Producer selected by cfg.Driver.
func NewProducer(cfg Config) (Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	switch strings.ToLower(cfg.Driver) {
	case "", DriverSarama:
		return newSaramaProducer(cfg)
	case DriverKafkaGo:
		return newKafkaGoProducer(cfg)
	case DriverFranz:
		return newFranzProducer(cfg)
	default:
		return nil, fmt.Errorf("unknown kafka driver %q", cfg.Driver)
	}
}

func normalizeAcks(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "0":
		return "none", nil
	case "", "one", "1", "leader":
		return "one", nil
	case "all", "-1":
		return "all", nil
	default:
		return "", fmt.Errorf("invalid required acks %q", s)
	}
}

func normalizeCompression(s string) (string, error) {
	switch c := strings.ToLower(strings.TrimSpace(s)); c {
	case "", "none", "off":
		return "none", nil
	case "gzip", "snappy", "lz4", "zstd":
		return c, nil
	default:
		return "", fmt.Errorf("invalid compression %q", s)
	}
}

func saramaAcks(s string) (sarama.RequiredAcks, error) {
	acks, err := normalizeAcks(s)
	if err != nil {
		return 0, err
	}
	switch acks {
	case "none":
		return sarama.NoResponse, nil
	case "all":
		return sarama.WaitForAll, nil
	default:
		return sarama.WaitForLocal, nil
	}
}

func saramaCompression(s string) (sarama.CompressionCodec, error) {
	c, err := normalizeCompression(s)
	if err != nil {
		return sarama.CompressionNone, err
	}
	switch c {
	case "gzip":
		return sarama.CompressionGZIP, nil
	case "snappy":
		return sarama.CompressionSnappy, nil
	case "lz4":
		return sarama.CompressionLZ4, nil
	case "zstd":
		return sarama.CompressionZSTD, nil
	default:
		return sarama.CompressionNone, nil
	}
}

func kafkaGoAcks(s string) (kafkago.RequiredAcks, error) {
	acks, err := normalizeAcks(s)
	if err != nil {
		return kafkago.RequireOne, err
	}
	switch acks {
	case "none":
		return kafkago.RequireNone, nil
	case "all":
		return kafkago.RequireAll, nil
	default:
		return kafkago.RequireOne, nil
	}
}

func kafkaGoCompression(s string) (kafkago.Compression, error) {
	c, err := normalizeCompression(s)
	if err != nil {
		return kafkago.Compression(0), err
	}
	switch c {
	case "gzip":
		return kafkago.Gzip, nil
	case "snappy":
		return kafkago.Snappy, nil
	case "lz4":
		return kafkago.Lz4, nil
	case "zstd":
		return kafkago.Zstd, nil
	default:
		return kafkago.Compression(0), nil
	}
}

func franzAcks(s string) (kgo.Acks, error) {
	acks, err := normalizeAcks(s)
	if err != nil {
		return kgo.LeaderAck(), err
	}
	switch acks {
	case "none":
		return kgo.NoAck(), nil
	case "all":
		return kgo.AllISRAcks(), nil
	default:
		return kgo.LeaderAck(), nil
	}
}

func franzCompression(s string) (kgo.CompressionCodec, error) {
	c, err := normalizeCompression(s)
	if err != nil {
		return kgo.NoCompression(), err
	}
	switch c {
	case "gzip":
		return kgo.GzipCompression(), nil
	case "snappy":
		return kgo.SnappyCompression(), nil
	case "lz4":
		return kgo.Lz4Compression(), nil
	case "zstd":
		return kgo.ZstdCompression(), nil
	default:
		return kgo.NoCompression(), nil
	}
}
