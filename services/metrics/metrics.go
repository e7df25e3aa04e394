// Package metrics counts node activity for the diagnostics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles node metrics.
type Metrics struct {
	LinkPolls     prometheus.Counter
	OTAChecks     *prometheus.CounterVec
	Cycles        prometheus.Counter
	CycleDuration prometheus.Histogram
	SensorReads   *prometheus.CounterVec
	Reports       *prometheus.CounterVec
}

// New constructs metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LinkPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensornode_link_polls_total",
			Help: "Waits for the wireless link to come up",
		}),
		OTAChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sensornode_ota_checks_total",
				Help: "OTA checks by final state",
			},
			[]string{"state"},
		),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensornode_cycles_total",
			Help: "Completed telemetry cycles",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sensornode_cycle_duration_seconds",
			Help:    "Time spent reading and reporting in one cycle, sleep excluded",
			Buckets: prometheus.DefBuckets,
		}),
		SensorReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sensornode_sensor_reads_total",
				Help: "Sensor reads by sensor and result code",
			},
			[]string{"sensor", "result"},
		),
		Reports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sensornode_reports_total",
				Help: "Report posts by result code",
			},
			[]string{"result"},
		),
	}
	reg.MustRegister(
		m.LinkPolls,
		m.OTAChecks,
		m.Cycles,
		m.CycleDuration,
		m.SensorReads,
		m.Reports,
	)
	return m
}

func (m *Metrics) LinkPoll()             { m.LinkPolls.Inc() }
func (m *Metrics) OTACheck(state string) { m.OTAChecks.WithLabelValues(state).Inc() }

func (m *Metrics) Cycle(d time.Duration) {
	m.Cycles.Inc()
	m.CycleDuration.Observe(d.Seconds())
}

func (m *Metrics) SensorRead(sensor, result string) {
	m.SensorReads.WithLabelValues(sensor, result).Inc()
}

func (m *Metrics) Report(result string) { m.Reports.WithLabelValues(result).Inc() }
