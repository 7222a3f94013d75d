package monitor

import (
	"strconv"

	"github.com/KevinKickass/OpenPoolCore/internal/controller"
	"github.com/KevinKickass/OpenPoolCore/internal/procon"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "procon"

// Metrics exports controller state as Prometheus series. It is a
// controller.Listener and is registered with every controller by the manager.
type Metrics struct {
	measurement *prometheus.GaugeVec
	relayState  *prometheus.GaugeVec
	cpuUptime   *prometheus.GaugeVec
	polls       *prometheus.CounterVec
	commands    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		measurement: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "measurement_value",
			Help:      "Scaled value of a status feed column.",
		}, []string{"controller", "column", "category", "name"}),
		relayState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_state",
			Help:      "Relay state: 0 auto off, 1 auto on, 2 manual off, 3 manual on.",
		}, []string{"controller", "relay", "name"}),
		cpuUptime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_uptime_seconds",
			Help:      "CPU time reported by the controller.",
		}, []string{"controller"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Status feed fetches by result.",
		}, []string{"controller", "result"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands sent to controllers by kind and result.",
		}, []string{"controller", "kind", "result"}),
	}

	for _, c := range []prometheus.Collector{m.measurement, m.relayState, m.cpuUptime, m.polls, m.commands} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) SnapshotUpdated(c *controller.Controller, s *procon.Snapshot) {
	m.polls.WithLabelValues(c.Name, "success").Inc()
	m.cpuUptime.WithLabelValues(c.Name).Set(float64(s.CPUTime()))

	for _, meas := range s.Measurements() {
		// Relais und Uhrzeit werden separat bzw. gar nicht exportiert
		if meas.Category == procon.CategoryTime || meas.IsRelay() {
			continue
		}
		// Namen sind nicht eindeutig ("n.a."), daher zählt die Spalte
		m.measurement.WithLabelValues(c.Name, strconv.Itoa(meas.Column), string(meas.Category), meas.Name).Set(meas.Value)
	}

	for _, r := range s.AggregatedRelays() {
		m.relayState.WithLabelValues(c.Name, strconv.Itoa(r.ID()), r.Name).Set(float64(r.State()))
	}
}

func (m *Metrics) RefreshFailed(c *controller.Controller, err error) {
	m.polls.WithLabelValues(c.Name, "error").Inc()
}

func (m *Metrics) CommandExecuted(c *controller.Controller, ev controller.CommandEvent) {
	result := "success"
	if !ev.Succeeded() {
		result = "error"
	}
	m.commands.WithLabelValues(c.Name, string(ev.Kind), result).Inc()
}
