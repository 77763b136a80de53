// Package metrics exposes gardend's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the daemon's Prometheus collectors.
type Metrics struct {
	PollErrors      prometheus.Counter
	RunsStarted     prometheus.Counter
	RunsCompleted   prometheus.Counter
	TriggersFired   *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
	HardwareOnline  prometheus.Gauge
	QueueLength     prometheus.Gauge
	RunLiters       prometheus.Counter
	ImmediateReject prometheus.Counter
	ConfigReloads   *prometheus.CounterVec
}

// New registers all collectors on reg and returns them. Pass
// prometheus.NewRegistry() in tests to keep registrations isolated.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hardware_poll_errors_total",
			Help:      "Consecutive-capped logged and silent hardware poll failures",
		}),
		RunsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Watering runs programmed into hardware",
		}),
		RunsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Watering runs finalized",
		}),
		TriggersFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_fired_total",
			Help:      "Scheduled cycle triggers by effect",
		}, []string{"effect"}), // enqueued, suspended
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification batches by outcome",
		}, []string{"outcome"}), // sent, deferred
		HardwareOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hardware_online",
			Help:      "1 when the last hardware poll succeeded",
		}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "immediate_queue_length",
			Help:      "Pending immediate watering requests",
		}),
		RunLiters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "water_used_liters_total",
			Help:      "Water accounted to finalized runs",
		}),
		ImmediateReject: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "immediate_rejected_total",
			Help:      "Immediate requests rejected as empty",
		}),
		ConfigReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Program document reload attempts by result",
		}, []string{"result"}), // applied, rejected
	}

	reg.MustRegister(
		m.PollErrors, m.RunsStarted, m.RunsCompleted, m.TriggersFired,
		m.Notifications, m.HardwareOnline, m.QueueLength, m.RunLiters,
		m.ImmediateReject, m.ConfigReloads,
	)
	return m
}
