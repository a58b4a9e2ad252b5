package broadcast

import (
	"slices"

	"github.com/signalsfoundry/manet-simulator/model"
)

// Convergence reports whether every node has relayed exactly when it has
// received; nodes that never received must not have relayed either.
func (s *Simulator) Convergence() bool {
	for _, b := range s.behaviors {
		if b.Sent() != b.Received() {
			return false
		}
	}
	return true
}

// Success reports whether every node received the message.
func (s *Simulator) Success() bool {
	for _, b := range s.behaviors {
		if !b.Received() {
			return false
		}
	}
	return true
}

// Failed reports a converged run that did not reach every node.
func (s *Simulator) Failed() bool { return s.Convergence() && !s.Success() }

// Connectivity reports whether the network was connected at every recorded
// step.
func (s *Simulator) Connectivity() bool {
	return !slices.Contains(s.field.Record.Connectivity, false)
}

// ConvergenceFrame returns the latest step any node received a message at.
func (s *Simulator) ConvergenceFrame() int {
	frame := 0
	for _, b := range s.behaviors {
		frame = max(frame, b.Record.LastReceivedFrame())
	}
	return frame
}

// SentMessages counts every message injected by a relay.
func (s *Simulator) SentMessages() int {
	n := 0
	for _, b := range s.behaviors {
		n += b.Record.NumberOfSent
	}
	return n
}

// SentNodes counts the nodes that sent at least one message.
func (s *Simulator) SentNodes() int {
	n := 0
	for _, b := range s.behaviors {
		if b.Record.NumberOfSent > 0 {
			n++
		}
	}
	return n
}

// ReceivedMessages counts every delivered message.
func (s *Simulator) ReceivedMessages() int {
	n := 0
	for _, b := range s.behaviors {
		n += b.Record.NumberOfReceived
	}
	return n
}

// ReceivedNodes counts the nodes that received at least one message. The
// root's self-delivery does not count.
func (s *Simulator) ReceivedNodes() int {
	n := 0
	for _, b := range s.behaviors {
		if b.Record.NumberOfReceived > 0 {
			n++
		}
	}
	return n
}

// SentNodesRate is SentNodes over the node count.
func (s *Simulator) SentNodesRate() float64 {
	return rate(s.SentNodes(), len(s.behaviors))
}

// ReceivedNodesRate is ReceivedNodes over the node count.
func (s *Simulator) ReceivedNodesRate() float64 {
	return rate(s.ReceivedNodes(), len(s.behaviors))
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// Summary returns the whole-run outcome.
func (s *Simulator) Summary() model.RunSummary {
	return model.RunSummary{
		RunID:             s.runID,
		Algorithm:         string(s.strategy),
		Nodes:             len(s.behaviors),
		Frames:            s.field.Record.Frame,
		Delay:             s.cfg.Delay,
		SentMessages:      s.SentMessages(),
		ReceivedMessages:  s.ReceivedMessages(),
		SentNodes:         s.SentNodes(),
		SentNodesRate:     s.SentNodesRate(),
		ReceivedNodes:     s.ReceivedNodes(),
		ReceivedNodesRate: s.ReceivedNodesRate(),
		Connectivity:      s.Connectivity(),
		Convergence:       s.Convergence(),
		ConvergenceFrame:  s.ConvergenceFrame(),
		Success:           s.Success(),
	}
}

// Result returns the summary together with copies of the field and node
// records.
func (s *Simulator) Result() model.RunResult {
	field := *s.field.Record
	field.Connectivity = slices.Clone(field.Connectivity)
	field.Pos = slices.Clone(field.Pos)

	nodes := make([]model.NodeRecord, len(s.behaviors))
	for i, b := range s.behaviors {
		nodes[i] = *b.Record
		nodes[i].Sent = slices.Clone(b.Record.Sent)
		nodes[i].Received = slices.Clone(b.Record.Received)
	}
	return model.RunResult{
		Whole: s.Summary(),
		Field: field,
		Nodes: nodes,
	}
}
