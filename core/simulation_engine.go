package core

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/manet-simulator/timectrl"
)

// StepStats summarises what happened during one engine step.
type StepStats struct {
	T            int
	Delivered    int
	InFlight     int
	EdgesAdded   int
	EdgesRemoved int
	Connected    bool
}

// SimulationEngine advances a graph, and optionally the field it lives in,
// one discrete step at a time. Every node is visited each step.
type SimulationEngine struct {
	Graph *Graph
	Field *Field

	tickListeners []func(StepStats)
}

// NewSimulationEngine builds an engine over a field's graph. A nil field
// yields an engine over an empty static graph.
func NewSimulationEngine(f *Field) *SimulationEngine {
	se := &SimulationEngine{Field: f}
	if f != nil {
		se.Graph = f.Graph
	} else {
		se.Graph = NewGraph(Undirected)
	}
	return se
}

// NewStaticEngine builds an engine over a bare graph with no field.
func NewStaticEngine(g *Graph) *SimulationEngine {
	return &SimulationEngine{Graph: g}
}

// RegisterTickListener adds a callback invoked after every step.
func (se *SimulationEngine) RegisterTickListener(fn func(StepStats)) {
	se.tickListeners = append(se.tickListeners, fn)
}

// Step runs step t: the field is updated, every non-clashed node runs its
// per-step logic, and then the messages that were in flight before the
// node updates advance. Messages injected during step t start counting
// down at t+1, so a link of weight w delivers w steps after injection.
// Any pending message whose life has reached zero is removed from its
// sender and delivered.
func (se *SimulationEngine) Step(t int) error {
	stats := StepStats{T: t, Connected: true}

	if se.Field != nil {
		if err := se.Field.Update(t); err != nil {
			return fmt.Errorf("field update at step %d: %w", t, err)
		}
		stats.EdgesAdded = len(se.Field.Added())
		stats.EdgesRemoved = len(se.Field.Removed())
		stats.Connected = se.Field.Connected()
	}

	inFlight := se.Graph.Messages()
	for _, n := range se.Graph.Nodes() {
		n.Update(t)
	}

	stats.Delivered = se.updateMessages(t, inFlight)
	stats.InFlight = se.Graph.InFlight()

	for _, fn := range se.tickListeners {
		fn(stats)
	}
	return nil
}

func (se *SimulationEngine) updateMessages(t int, inFlight []*Message) int {
	for _, m := range inFlight {
		m.Update(t)
	}

	type arrival struct {
		from    NodeID
		arrived []*Message
	}
	var arrivals []arrival
	for _, n := range se.Graph.Nodes() {
		var arrived []*Message
		for _, m := range se.Graph.Sending(n.ID) {
			if m.Arrive() {
				arrived = append(arrived, m)
			}
		}
		if len(arrived) > 0 {
			arrivals = append(arrivals, arrival{from: n.ID, arrived: arrived})
		}
	}

	delivered := 0
	for _, a := range arrivals {
		se.Graph.RemoveMessages(a.from, a.arrived)
		for _, m := range a.arrived {
			if to := se.Graph.Node(m.To); to != nil {
				to.Receive(m.From, m.Payload)
			}
			delivered++
		}
	}
	return delivered
}

// Run steps the engine under the controller's policy.
func (se *SimulationEngine) Run(ctx context.Context, sc *timectrl.StepController) (int, error) {
	return sc.Run(ctx, se.Step)
}
