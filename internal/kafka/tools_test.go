package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdmin struct {
	existing  map[string]sarama.TopicDetail
	listErr   error
	createErr map[string]error
	created   map[string]*sarama.TopicDetail
}

func (f *fakeAdmin) ListTopics() (map[string]sarama.TopicDetail, error) {
	return f.existing, f.listErr
}

func (f *fakeAdmin) CreateTopic(topic string, detail *sarama.TopicDetail, _ bool) error {
	if err := f.createErr[topic]; err != nil {
		return err
	}
	if f.created == nil {
		f.created = make(map[string]*sarama.TopicDetail)
	}
	f.created[topic] = detail
	return nil
}

func (f *fakeAdmin) Close() error { return nil }

func TestEnsureTopics(t *testing.T) {
	tests := []struct {
		name        string
		admin       *fakeAdmin
		spec        TopicSpec
		wantCreated []string
		wantErr     bool
	}{
		{
			name:        "creates only missing topics",
			admin:       &fakeAdmin{existing: map[string]sarama.TopicDetail{"cartoes-visa": {}}},
			spec:        TopicSpec{Partitions: 3, ReplicationFactor: 1},
			wantCreated: []string{"cartoes-amex", "cartoes-outros"},
		},
		{
			name:  "nothing to do",
			admin: &fakeAdmin{existing: map[string]sarama.TopicDetail{"cartoes-visa": {}, "cartoes-amex": {}, "cartoes-outros": {}}},
		},
		{
			name:    "list failure",
			admin:   &fakeAdmin{listErr: errors.New("unreachable")},
			wantErr: true,
		},
		{
			name: "create failure",
			admin: &fakeAdmin{
				existing:  map[string]sarama.TopicDetail{},
				createErr: map[string]error{"cartoes-amex": sarama.ErrTopicAuthorizationFailed},
			},
			wantCreated: []string{"cartoes-visa"},
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created, err := ensureTopics(tt.admin, []string{"cartoes-visa", "cartoes-amex", "cartoes-outros"}, tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCreated, created)
			for _, name := range created {
				detail := tt.admin.created[name]
				require.NotNil(t, detail)
				assert.GreaterOrEqual(t, detail.NumPartitions, int32(1))
				assert.GreaterOrEqual(t, detail.ReplicationFactor, int16(1))
			}
		})
	}
}

func TestWaitForCluster(t *testing.T) {
	orig := checkCluster
	defer func() { checkCluster = orig }()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		checkCluster = func([]string, time.Duration) error {
			calls++
			if calls < 3 {
				return errors.New("not yet")
			}
			return nil
		}
		err := WaitForCluster(context.Background(), []string{"localhost:9092"}, time.Second, 5)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after retries", func(t *testing.T) {
		calls := 0
		checkCluster = func([]string, time.Duration) error {
			calls++
			return errors.New("down")
		}
		err := WaitForCluster(context.Background(), []string{"localhost:9092"}, time.Second, 1)
		assert.ErrorContains(t, err, "kafka cluster unavailable")
		assert.Equal(t, 2, calls)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		checkCluster = func([]string, time.Duration) error { return errors.New("down") }
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WaitForCluster(ctx, []string{"localhost:9092"}, time.Second, 100)
		assert.Error(t, err)
	})
}
