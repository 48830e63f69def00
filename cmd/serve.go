package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/alejoacosta74/cardbatch/internal/api"
	"github.com/alejoacosta74/cardbatch/internal/buffer"
	"github.com/alejoacosta74/cardbatch/internal/card"
	"github.com/alejoacosta74/cardbatch/internal/circuitbreaker"
	"github.com/alejoacosta74/cardbatch/internal/coordinator"
	"github.com/alejoacosta74/cardbatch/internal/dispatcher"
	"github.com/alejoacosta74/cardbatch/internal/events"
	"github.com/alejoacosta74/cardbatch/internal/kafka"
	"github.com/alejoacosta74/cardbatch/internal/metrics"
	"github.com/alejoacosta74/cardbatch/internal/routing"
	"github.com/alejoacosta74/cardbatch/internal/system"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	cpuProfile string
	memProfile string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the registration API and the batch pipeline",
	Long: `Run the registration API and the batch pipeline until SIGINT or SIGTERM.
On shutdown every buffered card is flushed and in-flight sends are given the
configured grace period to complete.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.String("http-addr", ":8080", "address of the registration API")
	f.String("metrics-addr", ":2112", "address of the metrics server")
	f.Int("batch-size", 1000, "maximum cards per batch")
	f.Int("flush-interval-ms", 500, "periodic flush interval in milliseconds")
	f.Int("grace-period-seconds", 60, "bound on the shutdown drain in seconds")
	f.Bool("ensure-topics", false, "create missing routed topics before serving")
	f.Bool("pprof", false, "serve net/http/pprof on the metrics server")
	f.StringVar(&cpuProfile, "cpuprofile", "", "write a CPU profile to this file")
	f.StringVar(&memProfile, "memprofile", "", "write a heap profile to this file on exit")

	bindFlags(serveCmd, map[string]string{
		"http.addr":                     "http-addr",
		"metrics.addr":                  "metrics-addr",
		"batch.size":                    "batch-size",
		"batch.flush_interval_ms":       "flush-interval-ms",
		"shutdown.grace_period_seconds": "grace-period-seconds",
		"kafka.ensure_topics":           "ensure-topics",
		"metrics.pprof":                 "pprof",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logrus.WithField("component", "serve")

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Capture system signals for graceful shutdown
	go handleSignals(ctx, cancel)

	stopProfile, err := system.StartCPUProfile(cpuProfile)
	if err != nil {
		return err
	}
	defer func() {
		if err := stopProfile(); err != nil {
			log.WithError(err).Error("Failed to stop CPU profile")
		}
		if err := system.WriteHeapProfile(memProfile); err != nil {
			log.WithError(err).Error("Failed to write heap profile")
		}
	}()
	system.FromConfig(cfg.System).Apply()

	if err := kafka.WaitForCluster(ctx, cfg.Kafka.Brokers, cfg.Kafka.ProbeTimeout, cfg.Kafka.ProbeRetries); err != nil {
		return err
	}

	router := routing.NewRouter(cfg.Routes())
	if cfg.Kafka.EnsureTopics {
		if err := ensureRoutedTopics(router); err != nil {
			return err
		}
	}

	producer, err := newProducer()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewSystemCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewRecorder(reg)
	eventBus := events.NewEventBus()

	buf := buffer.New(card.Brands())
	d := dispatcher.New(dispatcher.Config{BatchSize: cfg.BatchSize}, buf, router, producer, eventBus, recorder)
	co := coordinator.New(coordinator.Config{
		FlushInterval: cfg.FlushInterval,
		GracePeriod:   cfg.GracePeriod,
	}, buf, d, eventBus, recorder)

	var serverOpts []metrics.ServerOption
	if cfg.Metrics.Pprof {
		serverOpts = append(serverOpts, metrics.WithProfiling())
	}
	apiServer := api.NewServer(cfg.HTTP.Addr, co, recorder, eventBus)
	metricsServer := metrics.NewMetricsServer(cfg.Metrics.Addr, reg, serverOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return apiServer.Start(gctx) })
	g.Go(func() error { return metricsServer.Start(gctx) })
	co.Start(gctx)
	recorder.Start(gctx, cfg.Metrics.StatsInterval)

	log.WithFields(logrus.Fields{
		"driver":     cfg.Kafka.Driver,
		"brokers":    cfg.Kafka.Brokers,
		"batch_size": cfg.BatchSize,
		"interval":   cfg.FlushInterval,
	}).Info("Service started")

	<-gctx.Done()
	log.Info("Shutting down")

	shutdownErr := co.Shutdown(context.Background())
	if errors.Is(shutdownErr, coordinator.ErrShutdownTimeout) {
		log.WithError(shutdownErr).Warn("Some sends were abandoned")
	}
	if err := producer.Close(); err != nil {
		log.WithError(err).Error("Failed to close producer")
	}
	eventBus.Shutdown()

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Service stopped")
	return shutdownErr
}

func newProducer() (kafka.Producer, error) {
	producer, err := kafka.NewProducer(cfg.ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	if cfg.Kafka.BreakerThreshold > 0 {
		cb := circuitbreaker.NewCircuitBreaker(cfg.Kafka.BreakerThreshold, cfg.Kafka.BreakerTimeout)
		producer = kafka.WithCircuitBreaker(producer, cb)
	}
	return producer, nil
}

func ensureRoutedTopics(router *routing.Router) error {
	created, err := kafka.EnsureTopics(cfg.Kafka.Brokers, router.Topics(), kafka.TopicSpec{
		Partitions:        cfg.Kafka.TopicPartitions,
		ReplicationFactor: cfg.Kafka.ReplicationFactor,
	})
	if err != nil {
		return err
	}
	logrus.WithField("created", created).Info("Routed topics ready")
	return nil
}
