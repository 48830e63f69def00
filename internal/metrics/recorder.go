package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"
)

const namespace = "cardbatch"

// Send outcomes used as the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder owns every pipeline metric. All methods are safe for concurrent use.
type Recorder struct {
	registration struct {
		accepted *prometheus.CounterVec
		rejected *prometheus.CounterVec
		pending  *prometheus.GaugeVec
	}
	batch struct {
		completed *prometheus.CounterVec
		size      prometheus.Histogram
		duration  prometheus.Histogram
	}
	send struct {
		total   *prometheus.CounterVec
		latency prometheus.Histogram
	}
	flushFailures *prometheus.CounterVec
	shutdowns     *prometheus.CounterVec

	logger *logrus.Entry
}

// NewRecorder registers the pipeline metrics with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		logger: logrus.WithField("component", "metrics_recorder"),
	}
	factory := promauto.With(reg)

	r.registration.accepted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Cards accepted into a brand buffer",
	}, []string{"brand"})

	r.registration.rejected = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_rejected_total",
		Help:      "Registrations refused before reaching a buffer",
	}, []string{"reason"})

	r.registration.pending = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "buffer_pending",
		Help:      "Cards waiting in each brand buffer",
	}, []string{"brand"})

	r.batch.completed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_total",
		Help:      "Batches whose every send has an outcome, by final status",
	}, []string{"brand", "status"})

	r.batch.size = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_size",
		Help:      "Number of cards per dispatched batch",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512
	})

	r.batch.duration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Time from batch dispatch to its last send outcome",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	r.send.total = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sends_total",
		Help:      "Per-card send outcomes",
	}, []string{"brand", "topic", "outcome"})

	r.send.latency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "send_latency_seconds",
		Help:      "Time from send to broker acknowledgement",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	r.flushFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flush_task_failures_total",
		Help:      "Flush tasks that failed or panicked",
	}, []string{"brand"})

	r.shutdowns = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "shutdowns_total",
		Help:      "Coordinator shutdowns by result",
	}, []string{"result"})

	r.logger.Debug("Metrics recorder initialized")
	return r
}

func (r *Recorder) CardRegistered(brand string) {
	r.registration.accepted.WithLabelValues(brand).Inc()
}

func (r *Recorder) RegistrationRejected(reason string) {
	r.registration.rejected.WithLabelValues(reason).Inc()
}

func (r *Recorder) SetPending(brand string, n int) {
	r.registration.pending.WithLabelValues(brand).Set(float64(n))
}

// BatchCompleted records a finished batch.
func (r *Recorder) BatchCompleted(brand, status string, size int, took time.Duration) {
	r.batch.completed.WithLabelValues(brand, status).Inc()
	r.batch.size.Observe(float64(size))
	r.batch.duration.Observe(took.Seconds())
}

// SendCompleted records one per-card outcome.
func (r *Recorder) SendCompleted(brand, topic string, ok bool, latency time.Duration) {
	outcome := OutcomeSuccess
	if !ok {
		outcome = OutcomeFailure
	}
	r.send.total.WithLabelValues(brand, topic, outcome).Inc()
	if ok {
		r.send.latency.Observe(latency.Seconds())
	}
}

func (r *Recorder) FlushTaskFailed(brand string) {
	r.flushFailures.WithLabelValues(brand).Inc()
}

func (r *Recorder) ShutdownFinished(result string) {
	r.shutdowns.WithLabelValues(result).Inc()
}

// Snapshot is a point-in-time summary of the main counters.
type Snapshot struct {
	Registered     float64 `json:"registered"`
	Rejected       float64 `json:"rejected"`
	Pending        float64 `json:"pending"`
	Batches        float64 `json:"batches"`
	SendsSucceeded float64 `json:"sendsSucceeded"`
	SendsFailed    float64 `json:"sendsFailed"`
	FlushFailures  float64 `json:"flushFailures"`
}

// Snapshot reads the current metric values.
func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		Registered:     sum(r.registration.accepted, nil),
		Rejected:       sum(r.registration.rejected, nil),
		Pending:        sum(r.registration.pending, nil),
		Batches:        sum(r.batch.completed, nil),
		SendsSucceeded: sum(r.send.total, map[string]string{"outcome": OutcomeSuccess}),
		SendsFailed:    sum(r.send.total, map[string]string{"outcome": OutcomeFailure}),
		FlushFailures:  sum(r.flushFailures, nil),
	}
}

// Start logs a snapshot every interval until ctx is done.
func (r *Recorder) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	r.logger.Debug("Starting metrics reporter")

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Debug("Context cancelled, stopping metrics reporter")
				return
			case <-ticker.C:
				s := r.Snapshot()
				r.logger.WithFields(logrus.Fields{
					"registered":      s.Registered,
					"pending":         s.Pending,
					"batches":         s.Batches,
					"sends_succeeded": s.SendsSucceeded,
					"sends_failed":    s.SendsFailed,
				}).Info("Pipeline metrics")
			}
		}
	}()
}

// sum adds up every counter or gauge child of c whose labels include match.
func sum(c prometheus.Collector, match map[string]string) float64 {
	ch := make(chan prometheus.Metric, 32)
	go func() {
		c.Collect(ch)
		close(ch)
	}()

	var total float64
	for m := range ch {
		pb := &dto.Metric{}
		if err := m.Write(pb); err != nil {
			continue
		}
		if !labelsMatch(pb.GetLabel(), match) {
			continue
		}
		switch {
		case pb.Counter != nil:
			total += pb.Counter.GetValue()
		case pb.Gauge != nil:
			total += pb.Gauge.GetValue()
		}
	}
	return total
}

func labelsMatch(pairs []*dto.LabelPair, match map[string]string) bool {
	for name, want := range match {
		found := false
		for _, p := range pairs {
			if p.GetName() == name && p.GetValue() == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
