// Package metrics exposes the scheduler and shutter state to Prometheus.
package metrics

import (
	"github.com/jkaflik/shuttercontrol/internal/scheduler"
	"github.com/jkaflik/shuttercontrol/internal/shutter"
	"github.com/prometheus/client_golang/prometheus"
)

var shutterStates = []shutter.State{
	shutter.ShutterOpenState,
	shutter.ShutterClosedState,
	shutter.ShutterUnknownState,
}

// Metrics bundles shuttercontrol metrics.
type Metrics struct {
	NextEventTimestamp  *prometheus.GaugeVec
	ActuationsTotal     *prometheus.CounterVec
	ScheduleErrorsTotal prometheus.Counter
	ShutterState        *prometheus.GaugeVec
}

// New constructs metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NextEventTimestamp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shuttercontrol_next_event_timestamp_seconds",
				Help: "Unix time of the next scheduled event by action",
			},
			[]string{"action"},
		),
		ActuationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shuttercontrol_actuations_total",
				Help: "Total shutter actuations by action and trigger",
			},
			[]string{"action", "trigger"},
		),
		ScheduleErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttercontrol_schedule_errors_total",
			Help: "Total failed next event computations",
		}),
		ShutterState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shuttercontrol_shutter_state",
				Help: "Last known shutter state, 1 for the current state",
			},
			[]string{"state"},
		),
	}
	reg.MustRegister(
		m.NextEventTimestamp,
		m.ActuationsTotal,
		m.ScheduleErrorsTotal,
		m.ShutterState,
	)
	m.ObserveShutter(shutter.ShutterUnknownState)
	return m
}

// ObserveScheduler is a scheduler.UpdateHandler.
func (m *Metrics) ObserveScheduler(u scheduler.Update) {
	if u.Fired != nil {
		m.ActuationsTotal.WithLabelValues(string(u.Fired.Action), string(u.Trigger)).Inc()
	}
	if u.Err != nil {
		m.ScheduleErrorsTotal.Inc()
	}

	m.NextEventTimestamp.Reset()
	if u.Next != nil {
		m.NextEventTimestamp.WithLabelValues(string(u.Next.Action)).Set(float64(u.Next.At.Unix()))
	}
}

// ObserveShutter is a shutter.ShutterUpdateHandler.
func (m *Metrics) ObserveShutter(state shutter.State) {
	for _, s := range shutterStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ShutterState.WithLabelValues(string(s)).Set(v)
	}
}
