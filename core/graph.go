package core

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrDuplicateNode is returned when adding a node whose ID is taken.
	ErrDuplicateNode = errors.New("duplicate node")
	// ErrSelfLink is returned when a link would connect a node to itself.
	ErrSelfLink = errors.New("self link")
)

// Graph owns the nodes, the links between them, and the messages each node
// has in flight. Node order is insertion order and is used for every
// deterministic iteration.
type Graph struct {
	Kind GraphKind

	nodes   []*Node
	index   map[NodeID]int
	links   map[linkKey][]*Link
	adj     map[NodeID]map[NodeID]int
	pending map[NodeID][]*Message
}

// NewGraph returns an empty graph of the given kind.
func NewGraph(kind GraphKind) *Graph {
	return &Graph{
		Kind:    kind,
		index:   make(map[NodeID]int),
		links:   make(map[linkKey][]*Link),
		adj:     make(map[NodeID]map[NodeID]int),
		pending: make(map[NodeID][]*Message),
	}
}

// AddNode takes ownership of n.
func (g *Graph) AddNode(n *Node) error {
	if _, ok := g.index[n.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	n.graph = g
	g.index[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.adj[n.ID] = make(map[NodeID]int)
	return nil
}

// Node returns the node with the given ID, or nil.
func (g *Graph) Node(id NodeID) *Node {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.nodes[i]
}

// Index returns the insertion index of id.
func (g *Graph) Index(id NodeID) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	return slices.Clone(g.nodes)
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// AddLink connects l.A and l.B. In a simple graph an existing link between
// the same endpoints is replaced; a multigraph keeps both.
func (g *Graph) AddLink(l *Link) error {
	if l.A == l.B {
		return fmt.Errorf("%w: %s", ErrSelfLink, l.A)
	}
	for _, id := range []NodeID{l.A, l.B} {
		if _, ok := g.index[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, id)
		}
	}
	k := g.Kind.key(l.A, l.B)
	if g.Kind.Multi || len(g.links[k]) == 0 {
		g.links[k] = append(g.links[k], l)
		g.connect(l.A, l.B, 1)
		return nil
	}
	g.links[k][0] = l
	return nil
}

// RemoveLink removes every link between a and b and reports whether any
// existed. Messages already in flight on the link are unaffected.
func (g *Graph) RemoveLink(a, b NodeID) bool {
	k := g.Kind.key(a, b)
	ls, ok := g.links[k]
	if !ok {
		return false
	}
	delete(g.links, k)
	g.connect(k.a, k.b, -len(ls))
	return true
}

func (g *Graph) connect(a, b NodeID, delta int) {
	bump := func(from, to NodeID) {
		c := g.adj[from][to] + delta
		if c <= 0 {
			delete(g.adj[from], to)
			return
		}
		g.adj[from][to] = c
	}
	bump(a, b)
	if !g.Kind.Directed {
		bump(b, a)
	}
}

// Link returns the first link from a to b.
func (g *Graph) Link(a, b NodeID) (*Link, bool) {
	ls := g.links[g.Kind.key(a, b)]
	if len(ls) == 0 {
		return nil, false
	}
	return ls[0], true
}

// HasLink reports whether a link from a to b exists.
func (g *Graph) HasLink(a, b NodeID) bool {
	_, ok := g.Link(a, b)
	return ok
}

// Links returns every link ordered by endpoint insertion index.
func (g *Graph) Links() []*Link {
	keys := make([]linkKey, 0, len(g.links))
	for k := range g.links {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(x, y linkKey) int {
		if c := g.index[x.a] - g.index[y.a]; c != 0 {
			return c
		}
		return g.index[x.b] - g.index[y.b]
	})
	var out []*Link
	for _, k := range keys {
		out = append(out, g.links[k]...)
	}
	return out
}

// Neighbors returns the IDs reachable over one link from id, ordered by
// insertion index. For a directed graph only outgoing links count.
func (g *Graph) Neighbors(id NodeID) []NodeID {
	out := make([]NodeID, 0, len(g.adj[id]))
	for nei := range g.adj[id] {
		out = append(out, nei)
	}
	slices.SortFunc(out, func(a, b NodeID) int { return g.index[a] - g.index[b] })
	return out
}

// Messages returns every in-flight message, grouped by sender in node order.
func (g *Graph) Messages() []*Message {
	var out []*Message
	for _, n := range g.nodes {
		out = append(out, g.pending[n.ID]...)
	}
	return out
}

// InFlight returns the number of in-flight messages.
func (g *Graph) InFlight() int {
	total := 0
	for _, ms := range g.pending {
		total += len(ms)
	}
	return total
}

// Sending returns the in-flight messages injected by from.
func (g *Graph) Sending(from NodeID) []*Message {
	return slices.Clone(g.pending[from])
}

// AddMessage registers m in its sender's pending set.
func (g *Graph) AddMessage(m *Message) {
	g.pending[m.From] = append(g.pending[m.From], m)
}

// RemoveMessages drops the given messages from the sender's pending set.
func (g *Graph) RemoveMessages(from NodeID, msgs []*Message) {
	if len(msgs) == 0 {
		return
	}
	drop := make(map[*Message]struct{}, len(msgs))
	for _, m := range msgs {
		drop[m] = struct{}{}
	}
	kept := g.pending[from][:0]
	for _, m := range g.pending[from] {
		if _, ok := drop[m]; !ok {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		delete(g.pending, from)
		return
	}
	g.pending[from] = kept
}
