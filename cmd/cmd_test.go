package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/alejoacosta74/cardbatch/internal/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["topics"])
}

func TestInitConfig_Flags(t *testing.T) {
	require.NoError(t, serveCmd.Flags().Set("batch-size", "7"))
	require.NoError(t, serveCmd.Flags().Set("flush-interval-ms", "20"))
	require.NoError(t, rootCmd.PersistentFlags().Set("kafka-driver", "kafka-go"))
	require.NoError(t, rootCmd.PersistentFlags().Set("brokers", "a:9092,b:9092"))

	require.NoError(t, initConfig(serveCmd, nil))

	assert.Equal(t, 7, cfg.BatchSize)
	assert.Equal(t, 20*time.Millisecond, cfg.FlushInterval)
	assert.Equal(t, kafka.DriverKafkaGo, cfg.Kafka.Driver)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestInitConfig_MissingConfigFile(t *testing.T) {
	cfgFile = t.TempDir() + "/missing.yaml"
	defer func() { cfgFile = "" }()

	assert.Error(t, initConfig(serveCmd, nil))
}

func TestHandleSignals_ReturnsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		handleSignals(ctx, func() {})
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handleSignals did not return")
	}
}
