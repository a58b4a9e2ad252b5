package broadcast

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
	"gonum.org/v1/gonum/mat"

	"github.com/signalsfoundry/manet-simulator/core"
)

// Snapshot is the frozen topology oracles compute relay sets from. All
// slices and matrices are indexed like the field's node list.
type Snapshot struct {
	IDs       []core.NodeID
	Pos       []core.Vec2
	Adjacency *mat.Dense
	Dist      *mat.SymDense
	Root      int
	// ComRadius is the root's communication radius.
	ComRadius float64
}

// NewSnapshot copies the current positions and links of f.
func NewSnapshot(f *core.Field, root core.NodeID) (*Snapshot, error) {
	ids := f.IDs()
	r := slices.Index(ids, root)
	if r < 0 {
		return nil, fmt.Errorf("%w: root %s", core.ErrUnknownNode, root)
	}
	s := &Snapshot{
		IDs:       ids,
		Pos:       f.Positions(),
		Root:      r,
		ComRadius: f.Colliders.ComRadius[r],
	}
	if adj := f.Adjacency(); adj != nil {
		s.Adjacency = mat.DenseCopyOf(adj)
	}
	s.Dist = core.Distance(s.Pos)
	return s, nil
}

// Len returns the number of nodes in the snapshot.
func (s *Snapshot) Len() int { return len(s.IDs) }

func (s *Snapshot) topology() *simple.UndirectedMatrix {
	return core.TopologyFromAdjacency(s.Adjacency)
}

func (s *Snapshot) weightedTopology() *simple.UndirectedMatrix {
	return core.WeightedTopology(s.Adjacency, s.Dist)
}

func (s *Snapshot) rootDistance(i int) float64 {
	if s.Dist == nil {
		return 0
	}
	return s.Dist.At(s.Root, i)
}

// bfsTree walks g breadth first from root and returns each node's tree
// parent and hop count. Unreached nodes have parent and hop -1.
func bfsTree(g traverse.Graph, n, root int) (parent, hop []int) {
	parent = make([]int, n)
	hop = make([]int, n)
	for i := range parent {
		parent[i], hop[i] = -1, -1
	}
	if n == 0 || g == nil {
		return parent, hop
	}

	var via graph.Edge
	bf := traverse.BreadthFirst{
		Traverse: func(e graph.Edge) bool {
			via = e
			return true
		},
		Visit: func(v graph.Node) {
			if via != nil {
				parent[v.ID()] = int(via.From().ID())
			}
		},
	}
	bf.Walk(g, simple.Node(root), func(v graph.Node, depth int) bool {
		hop[v.ID()] = depth
		return false
	})
	return parent, hop
}

// hopOrInf maps unreached nodes to the largest hop count.
func hopOrInf(h int) int {
	if h < 0 {
		return math.MaxInt
	}
	return h
}
