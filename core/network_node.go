package core

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrNotNeighbor is returned when a node addresses a peer it has no link to.
	ErrNotNeighbor = errors.New("not a neighbor")
	// ErrUnknownNode is returned when an ID is not present in the graph.
	ErrUnknownNode = errors.New("unknown node")
)

// NodeID identifies a node within a graph.
type NodeID string

// IntNodeID renders an integer identifier as a NodeID.
func IntNodeID(i int) NodeID { return NodeID(strconv.Itoa(i)) }

// Default node colours carried on the state stack for renderers.
const (
	NodeColor        = "#1f78b4"
	ClashedNodeColor = "#888888"
)

// NodeState is the presentation state of a node. Renderers read the top of
// the stack; clashing pushes a state and recovery pops it.
type NodeState struct {
	Color string `json:"color"`
}

// NodeBehavior receives a node's lifecycle callbacks. Update is invoked once
// per step while the node is not clashed.
type NodeBehavior interface {
	Update(n *Node, t int)
	OnInject(n *Node, to NodeID, payload any)
	OnReceive(n *Node, from NodeID, payload any)
	OnCrash(n *Node)
	OnRecover(n *Node)
}

// BaseBehavior implements NodeBehavior with no-ops. Embed it to override
// only the hooks you need.
type BaseBehavior struct{}

func (BaseBehavior) Update(*Node, int)            {}
func (BaseBehavior) OnInject(*Node, NodeID, any)  {}
func (BaseBehavior) OnReceive(*Node, NodeID, any) {}
func (BaseBehavior) OnCrash(*Node)                {}
func (BaseBehavior) OnRecover(*Node)              {}

// Node is a participant in the network. Nodes are owned by a Graph and find
// their peers through it by ID.
type Node struct {
	ID       NodeID
	Behavior NodeBehavior

	graph   *Graph
	clashed bool
	states  []NodeState
}

// NewNode constructs a detached node. A nil behavior is replaced with
// BaseBehavior.
func NewNode(id NodeID, behavior NodeBehavior) *Node {
	if behavior == nil {
		behavior = BaseBehavior{}
	}
	return &Node{
		ID:       id,
		Behavior: behavior,
		states:   []NodeState{{Color: NodeColor}},
	}
}

func (n *Node) String() string {
	return fmt.Sprintf("{node: {id: %s, clashed: %t}}", n.ID, n.clashed)
}

// Clashed reports whether the node is currently crashed.
func (n *Node) Clashed() bool { return n.clashed }

// State returns the current presentation state.
func (n *Node) State() NodeState { return n.states[len(n.states)-1] }

// SetState replaces the current presentation state.
func (n *Node) SetState(s NodeState) { n.states[len(n.states)-1] = s }

// Graph returns the owning graph, or nil for a detached node.
func (n *Node) Graph() *Graph { return n.graph }

// Neighbors returns the IDs of adjacent nodes in graph insertion order.
func (n *Node) Neighbors() []NodeID {
	if n.graph == nil {
		return nil
	}
	return n.graph.Neighbors(n.ID)
}

// NeighborsByID returns adjacent nodes keyed by ID.
func (n *Node) NeighborsByID() map[NodeID]*Node {
	out := make(map[NodeID]*Node)
	if n.graph == nil {
		return out
	}
	for _, id := range n.graph.Neighbors(n.ID) {
		out[id] = n.graph.Node(id)
	}
	return out
}

// Degree returns the number of adjacent nodes.
func (n *Node) Degree() int { return len(n.Neighbors()) }

// Sending returns the messages this node has in flight.
func (n *Node) Sending() []*Message {
	if n.graph == nil {
		return nil
	}
	return n.graph.Sending(n.ID)
}

// Inject places a message on the link to the given neighbor. A clashed node
// silently sends nothing.
func (n *Node) Inject(to NodeID, payload any) error {
	if n.clashed {
		return nil
	}
	if n.graph == nil {
		return fmt.Errorf("%w: node %s is detached", ErrUnknownNode, n.ID)
	}
	link, ok := n.graph.Link(n.ID, to)
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrNotNeighbor, n.ID, to)
	}
	n.graph.AddMessage(NewMessage(payload, n.ID, to, link.Weight))
	n.Behavior.OnInject(n, to, payload)
	return nil
}

// Receive delivers a payload to the node. Clashed nodes drop it.
func (n *Node) Receive(from NodeID, payload any) {
	if n.clashed {
		return
	}
	n.Behavior.OnReceive(n, from, payload)
}

// Send injects a payload to a single neighbor by ID.
func (n *Node) Send(to NodeID, payload any) error {
	return n.Inject(to, payload)
}

// Flood injects the payload to every neighbor.
func (n *Node) Flood(payload any) error {
	return n.Broadcast(payload)
}

// Broadcast injects the payload to every neighbor except those listed.
// IDs in without that are not neighbors are ignored.
func (n *Node) Broadcast(payload any, without ...NodeID) error {
	skip := make(map[NodeID]struct{}, len(without))
	for _, id := range without {
		skip[id] = struct{}{}
	}
	for _, id := range n.Neighbors() {
		if _, ok := skip[id]; ok {
			continue
		}
		if err := n.Inject(id, payload); err != nil {
			return err
		}
	}
	return nil
}

// BroadcastTo injects the payload to each listed neighbor.
func (n *Node) BroadcastTo(payload any, targets []NodeID) error {
	for _, id := range targets {
		if err := n.Inject(id, payload); err != nil {
			return err
		}
	}
	return nil
}

// BroadcastToFunc injects a per-recipient payload produced by gen.
func (n *Node) BroadcastToFunc(gen func(to NodeID) any, targets []NodeID) error {
	for _, id := range targets {
		if err := n.Inject(id, gen(id)); err != nil {
			return err
		}
	}
	return nil
}

// Clash crashes the node. Repeated calls have no further effect.
func (n *Node) Clash() {
	if n.clashed {
		return
	}
	n.clashed = true
	n.states = append(n.states, NodeState{Color: ClashedNodeColor})
	n.Behavior.OnCrash(n)
}

// Recover brings a clashed node back and restores its prior state.
// Repeated calls have no further effect.
func (n *Node) Recover() {
	if !n.clashed {
		return
	}
	n.clashed = false
	n.states = n.states[:len(n.states)-1]
	n.Behavior.OnRecover(n)
}

// Update runs the behavior's per-step logic unless the node is clashed.
func (n *Node) Update(t int) {
	if n.clashed {
		return
	}
	n.Behavior.Update(n, t)
}
