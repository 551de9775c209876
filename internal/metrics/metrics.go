package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smartcrop/sensor-node/internal/model"
)

const metricPrefix = "sensor_node_"

// Metrics is the Prometheus view of the acquisition loop.
type Metrics struct {
	cycles         prometheus.Counter
	cycleDuration  prometheus.Histogram
	sensorFailures *prometheus.CounterVec
	sinkFailures   *prometheus.CounterVec
	readings       prometheus.Gauge
	lastCycle      prometheus.Gauge
	values         *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "cycles_total",
			Help: "Acquisition cycles that published a snapshot.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "cycle_duration_seconds",
			Help:    "Wall time of one acquisition cycle including delivery.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
		sensorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "sensor_failures_total",
			Help: "Sensor faults by kind and stage.",
		}, []string{"sensor", "stage"}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "sink_failures_total",
			Help: "Snapshot and image deliveries that failed, by sink.",
		}, []string{"sink"}),
		readings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "snapshot_readings",
			Help: "Number of readings in the latest snapshot.",
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "last_snapshot_timestamp_seconds",
			Help: "Unix time of the latest snapshot.",
		}),
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricPrefix + "reading_value",
			Help: "Latest reduced scalar value per sensor attribute.",
		}, []string{"sensor", "attribute"}),
	}
	reg.MustRegister(m.cycles, m.cycleDuration, m.sensorFailures, m.sinkFailures, m.readings, m.lastCycle, m.values)
	return m
}

func (m *Metrics) CycleCompleted(d time.Duration, snap *model.Snapshot) {
	m.cycles.Inc()
	m.cycleDuration.Observe(d.Seconds())
	m.readings.Set(float64(len(snap.Readings)))
	m.lastCycle.Set(float64(snap.Timestamp.Unix()))
	for kind, r := range snap.Readings {
		for attr, v := range r.Values {
			if v.IsTuple() {
				continue
			}
			m.values.WithLabelValues(string(kind), attr).Set(v.Float())
		}
	}
}

func (m *Metrics) SensorFailed(kind model.Kind, stage string) {
	m.sensorFailures.WithLabelValues(string(kind), stage).Inc()
}

func (m *Metrics) SinkFailed(sink string) {
	m.sinkFailures.WithLabelValues(sink).Inc()
}
