package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "moonstone"

// Metrics holds the collectors of one server instance on a private registry.
// Every method is safe on a nil receiver, so components can run without metrics
type Metrics struct {
	registry *prometheus.Registry

	commands         *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	connections      prometheus.Gauge
	rejected         prometheus.Counter
	snapshots        *prometheus.CounterVec
	snapshotDuration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands executed, by command and reply status.",
		}, []string{"command", "status"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent executing a command.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"command"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Client connections currently open.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Connections refused because max_connections was reached.",
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshot attempts, by result.",
		}, []string{"result"}),
		snapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_duration_seconds",
			Help:      "Time spent writing a snapshot.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.commands,
		m.commandDuration,
		m.connections,
		m.rejected,
		m.snapshots,
		m.snapshotDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry served on /metrics
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RegisterKeys exposes the keyspace size as a gauge evaluated at scrape time
func (m *Metrics) RegisterKeys(count func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "keys",
		Help:      "Keys currently stored.",
	}, func() float64 { return float64(count()) }))
}

// ObserveCommand records one executed command
func (m *Metrics) ObserveCommand(name string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.commands.WithLabelValues(name, status).Inc()
	m.commandDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) ConnRejected() {
	if m != nil {
		m.rejected.Inc()
	}
}

// ObserveSnapshot records one snapshot attempt
func (m *Metrics) ObserveSnapshot(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.snapshots.WithLabelValues(result).Inc()
	m.snapshotDuration.Observe(d.Seconds())
}
