package metrics

import (
	"runtime"
	"runtime/pprof"

	"github.com/prometheus/client_golang/prometheus"
)

// SystemCollector exposes Go runtime memory, GC and concurrency figures. It
// reads them on every scrape, so it needs no background goroutine.
type SystemCollector struct {
	memory     *prometheus.Desc
	gc         *prometheus.Desc
	goroutines *prometheus.Desc
	threads    *prometheus.Desc
}

// NewSystemCollector returns a collector to register on the metrics registry.
func NewSystemCollector() *SystemCollector {
	return &SystemCollector{
		memory: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "system", "memory_bytes"),
			"Memory statistics in bytes.",
			[]string{"type"}, nil,
		),
		gc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "system", "gc_stats"),
			"Garbage collector statistics.",
			[]string{"type"}, nil,
		),
		goroutines: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "system", "goroutines"),
			"Number of running goroutines.",
			nil, nil,
		),
		threads: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "system", "threads"),
			"Number of OS threads created.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *SystemCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.memory
	ch <- c.gc
	ch <- c.goroutines
	ch <- c.threads
}

// Collect implements prometheus.Collector.
func (c *SystemCollector) Collect(ch chan<- prometheus.Metric) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	for label, v := range map[string]uint64{
		"alloc":       m.Alloc,
		"total_alloc": m.TotalAlloc,
		"sys":         m.Sys,
		"heap_alloc":  m.HeapAlloc,
		"heap_sys":    m.HeapSys,
		"heap_idle":   m.HeapIdle,
		"heap_inuse":  m.HeapInuse,
	} {
		ch <- prometheus.MustNewConstMetric(c.memory, prometheus.GaugeValue, float64(v), label)
	}

	ch <- prometheus.MustNewConstMetric(c.gc, prometheus.GaugeValue, float64(m.NumGC), "num_gc")
	ch <- prometheus.MustNewConstMetric(c.gc, prometheus.GaugeValue, float64(m.PauseTotalNs), "pause_total_ns")

	ch <- prometheus.MustNewConstMetric(c.goroutines, prometheus.GaugeValue, float64(runtime.NumGoroutine()))
	ch <- prometheus.MustNewConstMetric(c.threads, prometheus.GaugeValue, float64(pprof.Lookup("threadcreate").Count()))
}
