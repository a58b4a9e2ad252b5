package broadcast

import (
	"github.com/signalsfoundry/manet-simulator/core"
	"github.com/signalsfoundry/manet-simulator/model"
)

// Colours pushed onto the node state for renderers.
const (
	RootColor        = "#e31a1c"
	BroadcastedColor = "#33a02c"
)

// Payload is the message the root broadcasts.
const Payload = "msg"

// Behavior is the node logic shared by every strategy. A node arms on the
// first message it receives and, Delay steps later, relays that message
// once to the live neighbors found in its relay set.
type Behavior struct {
	core.BaseBehavior

	Root   bool
	Delay  int
	Relays IDSet
	Record *model.NodeRecord
	// OnRelay, when set, observes every relay with its recipients.
	OnRelay func(n *core.Node, to []core.NodeID)

	received bool
	sent     bool
	sendAt   int
	held     any
	err      error
}

// NewBehavior returns an unarmed behavior for the node id.
func NewBehavior(id core.NodeID, delay int) *Behavior {
	return &Behavior{
		Delay:  delay,
		Relays: IDSet{},
		Record: model.NewNodeRecord(string(id)),
		sendAt: -1,
	}
}

// Received reports whether the node has the message.
func (b *Behavior) Received() bool { return b.received }

// Sent reports whether the node has relayed.
func (b *Behavior) Sent() bool { return b.sent }

// SendAt returns the step the node relays at, or -1 while unarmed.
func (b *Behavior) SendAt() int { return b.sendAt }

// Err returns the first relay failure, if any.
func (b *Behavior) Err() error { return b.err }

func (b *Behavior) Update(n *core.Node, t int) {
	b.Record.Frame = t
	if t == 0 && b.Root && !b.received {
		// The root delivers to itself; this is not a received message.
		b.arm(Payload, t)
		b.received = true
		n.SetState(core.NodeState{Color: RootColor})
	}
	if b.received && !b.sent && t >= b.sendAt {
		b.relay(n, t)
	}
}

func (b *Behavior) OnInject(_ *core.Node, to core.NodeID, payload any) {
	b.Record.Sent = append(b.Record.Sent, model.MessageRecord{
		Frame:   b.Record.Frame,
		Peer:    string(to),
		Payload: payload,
	})
}

func (b *Behavior) OnReceive(n *core.Node, from core.NodeID, payload any) {
	b.Record.Received = append(b.Record.Received, model.MessageRecord{
		Frame:   b.Record.Frame,
		Peer:    string(from),
		Payload: payload,
	})
	b.Record.NumberOfReceived++
	if !b.received {
		b.received = true
		b.arm(payload, b.Record.Frame)
		if !b.Root {
			n.SetState(core.NodeState{Color: BroadcastedColor})
		}
	}
}

func (b *Behavior) arm(payload any, frame int) {
	b.held = payload
	b.sendAt = frame + b.Delay
}

func (b *Behavior) relay(n *core.Node, t int) {
	var to []core.NodeID
	for _, id := range n.Neighbors() {
		if b.Relays.Has(id) {
			to = append(to, id)
		}
	}
	if err := n.BroadcastTo(b.held, to); err != nil && b.err == nil {
		b.err = err
	}
	b.sent = true
	b.Record.BroadcastedFrame = t
	b.Record.NumberOfSent += len(to)
	if b.OnRelay != nil {
		b.OnRelay(n, to)
	}
}
