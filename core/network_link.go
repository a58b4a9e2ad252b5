package core

// DefaultLinkWeight is the transit time, in steps, of a newly formed link.
const DefaultLinkWeight = 1

// Link connects two nodes. Links appear and disappear as nodes move in and
// out of communication range; a message injected on a link inherits its
// weight as its transit time.
type Link struct {
	A      NodeID `json:"a"`
	B      NodeID `json:"b"`
	Weight int    `json:"weight"`
}

// NewLink returns a link with DefaultLinkWeight.
func NewLink(a, b NodeID) *Link {
	return &Link{A: a, B: b, Weight: DefaultLinkWeight}
}

// Other returns the endpoint opposite id.
func (l *Link) Other(id NodeID) NodeID {
	if l.A == id {
		return l.B
	}
	return l.A
}

// GraphKind selects the directedness and multiplicity of a Graph.
type GraphKind struct {
	Directed bool
	Multi    bool
}

var (
	Undirected      = GraphKind{}
	Directed        = GraphKind{Directed: true}
	UndirectedMulti = GraphKind{Multi: true}
	DirectedMulti   = GraphKind{Directed: true, Multi: true}
)

type linkKey struct {
	a, b NodeID
}

func (k GraphKind) key(a, b NodeID) linkKey {
	if !k.Directed && b < a {
		a, b = b, a
	}
	return linkKey{a: a, b: b}
}
