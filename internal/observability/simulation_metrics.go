package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SimulationCollector exposes step-loop metrics for broadcast runs.
type SimulationCollector struct {
	gatherer prometheus.Gatherer

	StepsTotal        prometheus.Counter
	MessagesInFlight  prometheus.Gauge
	MessagesDelivered prometheus.Counter
	EdgesAdded        prometheus.Counter
	EdgesRemoved      prometheus.Counter
	Connected         prometheus.Gauge
	Relays            *prometheus.CounterVec
	Runs              *prometheus.CounterVec
	RunDuration       *prometheus.HistogramVec
}

// NewSimulationCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimulationCollector(reg prometheus.Registerer) (*SimulationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	steps, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "manet_steps_total",
		Help: "Total number of simulation steps executed.",
	}), "manet_steps_total")
	if err != nil {
		return nil, err
	}
	inFlight, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "manet_messages_in_flight",
		Help: "Messages travelling on links after the last step.",
	}), "manet_messages_in_flight")
	if err != nil {
		return nil, err
	}
	delivered, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "manet_messages_delivered_total",
		Help: "Total number of messages delivered to their destination.",
	}), "manet_messages_delivered_total")
	if err != nil {
		return nil, err
	}
	added, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "manet_edges_added_total",
		Help: "Links formed as nodes moved into communication range.",
	}), "manet_edges_added_total")
	if err != nil {
		return nil, err
	}
	removed, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "manet_edges_removed_total",
		Help: "Links lost as nodes moved out of communication range.",
	}), "manet_edges_removed_total")
	if err != nil {
		return nil, err
	}
	connected, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "manet_network_connected",
		Help: "1 when the network formed a single component at the last step, 0 otherwise.",
	}), "manet_network_connected")
	if err != nil {
		return nil, err
	}
	relays, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "manet_relays_total",
		Help: "Relay broadcasts performed, labeled by strategy.",
	}, []string{"strategy"}), "manet_relays_total")
	if err != nil {
		return nil, err
	}
	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "manet_runs_total",
		Help: "Finished runs, labeled by strategy and outcome.",
	}, []string{"strategy", "outcome"}), "manet_runs_total")
	if err != nil {
		return nil, err
	}
	duration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "manet_run_duration_seconds",
		Help:    "Wall-clock duration of simulation runs.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"strategy"}), "manet_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &SimulationCollector{
		gatherer:          gatherer,
		StepsTotal:        steps,
		MessagesInFlight:  inFlight,
		MessagesDelivered: delivered,
		EdgesAdded:        added,
		EdgesRemoved:      removed,
		Connected:         connected,
		Relays:            relays,
		Runs:              runs,
		RunDuration:       duration,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimulationCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveStep records the outcome of one engine step.
func (c *SimulationCollector) ObserveStep(delivered, inFlight, edgesAdded, edgesRemoved int, connected bool) {
	if c == nil {
		return
	}
	c.StepsTotal.Inc()
	c.MessagesDelivered.Add(float64(delivered))
	c.MessagesInFlight.Set(float64(inFlight))
	c.EdgesAdded.Add(float64(edgesAdded))
	c.EdgesRemoved.Add(float64(edgesRemoved))
	if connected {
		c.Connected.Set(1)
	} else {
		c.Connected.Set(0)
	}
}

// IncRelays counts one relay broadcast for the strategy.
func (c *SimulationCollector) IncRelays(strategy string) {
	if c == nil || c.Relays == nil {
		return
	}
	c.Relays.WithLabelValues(strategy).Inc()
}

// ObserveRun records a finished run and its wall-clock duration.
func (c *SimulationCollector) ObserveRun(strategy, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if c.Runs != nil {
		c.Runs.WithLabelValues(strategy, outcome).Inc()
	}
	if c.RunDuration != nil {
		c.RunDuration.WithLabelValues(strategy).Observe(d.Seconds())
	}
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
