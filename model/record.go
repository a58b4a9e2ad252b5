// Package model holds the plain records produced by a simulation run.
package model

// Point is a recorded position in the simulation plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MessageRecord logs one message a node sent or received.
type MessageRecord struct {
	Frame   int    `json:"frame"`
	Peer    string `json:"peer"`
	Payload any    `json:"message"`
}

// NodeRecord is the per-node log of a broadcast run.
type NodeRecord struct {
	ID       string          `json:"id"`
	Frame    int             `json:"frame"`
	Sent     []MessageRecord `json:"sent_log"`
	Received []MessageRecord `json:"received_log"`

	// BroadcastedFrame is the step the node relayed at, or -1.
	BroadcastedFrame int `json:"broadcasted_frame"`
	NumberOfSent     int `json:"number_of_sent"`
	// NumberOfReceived excludes the root's self-delivery.
	NumberOfReceived int `json:"number_of_received"`
}

// NewNodeRecord returns an empty record for id.
func NewNodeRecord(id string) *NodeRecord {
	return &NodeRecord{
		ID:               id,
		Sent:             []MessageRecord{},
		Received:         []MessageRecord{},
		BroadcastedFrame: -1,
	}
}

// LastReceivedFrame returns the latest frame a message was received at,
// or 0 when nothing was received.
func (r *NodeRecord) LastReceivedFrame() int {
	last := 0
	for _, m := range r.Received {
		if m.Frame > last {
			last = m.Frame
		}
	}
	return last
}

// FieldRecord is the per-step log of the field.
type FieldRecord struct {
	// Frame is the last step the field was updated at.
	Frame        int       `json:"frame"`
	FirstEdges   int       `json:"first_edge"`
	AddedEdges   int       `json:"edge_added"`
	RemovedEdges int       `json:"edge_removed"`
	Connectivity []bool    `json:"connectivity"`
	Pos          [][]Point `json:"pos"`
}

// RunSummary is the whole-run outcome of a broadcast simulation.
type RunSummary struct {
	RunID             string  `json:"run_id,omitempty"`
	Algorithm         string  `json:"algorithm"`
	Nodes             int     `json:"nodes"`
	Frames            int     `json:"frames"`
	Delay             int     `json:"delay"`
	SentMessages      int     `json:"sent"`
	ReceivedMessages  int     `json:"received"`
	SentNodes         int     `json:"sentnodes"`
	SentNodesRate     float64 `json:"sentnodesrate"`
	ReceivedNodes     int     `json:"receivednodes"`
	ReceivedNodesRate float64 `json:"receivednodesrate"`
	Connectivity      bool    `json:"connectivity"`
	Convergence       bool    `json:"convergence"`
	ConvergenceFrame  int     `json:"convergenceframe"`
	Success           bool    `json:"success"`
}

// RunResult bundles every record of a finished run.
type RunResult struct {
	Whole RunSummary   `json:"whole"`
	Field FieldRecord  `json:"field"`
	Nodes []NodeRecord `json:"nodes"`
}
