package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// checkCluster is swapped in tests.
var checkCluster = CheckClusterAvailability

// CheckClusterAvailability verifies if the Kafka cluster is available and responsive
func CheckClusterAvailability(brokers []string, timeout time.Duration) error {
	// Create Sarama config with timeout
	config := sarama.NewConfig()
	config.Net.DialTimeout = timeout
	config.Net.ReadTimeout = timeout
	config.Net.WriteTimeout = timeout

	logrus.Tracef("Checking Kafka cluster availability with brokers: %v", brokers)
	client, err := sarama.NewClient(brokers, config)
	if err != nil {
		return fmt.Errorf("failed to create kafka client: %w", err)
	}
	defer client.Close()

	availableBrokers := client.Brokers()
	if len(availableBrokers) == 0 {
		return fmt.Errorf("no brokers available in the cluster")
	}
	logrus.Tracef("Kafka brokers available: %v", len(availableBrokers))

	for _, broker := range availableBrokers {
		if err := broker.Open(config); err != nil && err != sarama.ErrAlreadyConnected {
			return fmt.Errorf("failed to connect to broker %s: %w", broker.Addr(), err)
		}
		connected, err := broker.Connected()
		if err != nil {
			return fmt.Errorf("failed to check connection to broker %s: %w", broker.Addr(), err)
		}
		if !connected {
			return fmt.Errorf("broker %s is not connected", broker.Addr())
		}
		broker.Close()
	}

	return nil
}

// WaitForCluster polls the cluster with exponential backoff until it answers,
// retries is exhausted, or ctx is done.
func WaitForCluster(ctx context.Context, brokers []string, timeout time.Duration, retries int) error {
	log := logrus.WithField("component", "kafka_tools")

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx)

	err := backoff.RetryNotify(func() error {
		return checkCluster(brokers, timeout)
	}, b, func(err error, next time.Duration) {
		log.WithError(err).Warnf("Kafka cluster not ready, retrying in %s", next)
	})
	if err != nil {
		return fmt.Errorf("kafka cluster unavailable: %w", err)
	}
	log.Info("Kafka cluster is available")
	return nil
}

// topicAdmin is the part of sarama.ClusterAdmin used to provision topics.
type topicAdmin interface {
	ListTopics() (map[string]sarama.TopicDetail, error)
	CreateTopic(topic string, detail *sarama.TopicDetail, validateOnly bool) error
	Close() error
}

// TopicSpec describes how missing topics are created.
type TopicSpec struct {
	Partitions        int32
	ReplicationFactor int16
}

// EnsureTopics creates every topic in names that does not exist yet and
// returns the ones it created.
func EnsureTopics(brokers []string, names []string, spec TopicSpec) ([]string, error) {
	admin, err := sarama.NewClusterAdmin(brokers, sarama.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster admin: %w", err)
	}
	defer admin.Close()
	return ensureTopics(admin, names, spec)
}

func ensureTopics(admin topicAdmin, names []string, spec TopicSpec) ([]string, error) {
	log := logrus.WithField("component", "kafka_tools")

	existing, err := admin.ListTopics()
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	if spec.Partitions < 1 {
		spec.Partitions = 1
	}
	if spec.ReplicationFactor < 1 {
		spec.ReplicationFactor = 1
	}

	var created []string
	for _, name := range names {
		if _, ok := existing[name]; ok {
			log.WithField("topic", name).Debug("Topic already exists")
			continue
		}
		err := admin.CreateTopic(name, &sarama.TopicDetail{
			NumPartitions:     spec.Partitions,
			ReplicationFactor: spec.ReplicationFactor,
		}, false)
		if err != nil {
			return created, fmt.Errorf("failed to create topic %s: %w", name, err)
		}
		log.WithField("topic", name).Info("Topic created")
		created = append(created, name)
	}
	return created, nil
}
