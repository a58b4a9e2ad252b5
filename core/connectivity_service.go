package core

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/mat"
)

// ConnectivityService answers whole-network reachability questions over an
// adjacency matrix. A pair counts as linked when either direction is
// non-zero.
type ConnectivityService struct{}

func NewConnectivityService() *ConnectivityService {
	return &ConnectivityService{}
}

// Components returns the connected components as sorted index lists, in
// order of their smallest member.
func (cs *ConnectivityService) Components(adj mat.Matrix) [][]int {
	g := TopologyFromAdjacency(adj)
	if g == nil {
		return nil
	}
	var out [][]int
	for _, comp := range topo.ConnectedComponents(g) {
		ids := make([]int, len(comp))
		for i, n := range comp {
			ids[i] = int(n.ID())
		}
		slices.Sort(ids)
		out = append(out, ids)
	}
	slices.SortFunc(out, func(a, b []int) int { return a[0] - b[0] })
	return out
}

// IsConnected reports whether every node can reach every other node. An
// empty or single-node network is connected.
func (cs *ConnectivityService) IsConnected(adj mat.Matrix) bool {
	return len(cs.Components(adj)) <= 1
}

// TopologyFromAdjacency converts an adjacency matrix into an unweighted
// undirected graph whose node IDs are matrix indices. It returns nil for an
// empty or nil matrix.
func TopologyFromAdjacency(adj mat.Matrix) *simple.UndirectedMatrix {
	if adj == nil {
		return nil
	}
	n, _ := adj.Dims()
	if n == 0 {
		return nil
	}
	g := simple.NewUndirectedMatrix(n, 0, 0, 0)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if adj.At(i, j) != 0 || adj.At(j, i) != 0 {
				g.SetEdge(simple.Edge{F: simple.Node(i), T: simple.Node(j)})
			}
		}
	}
	return g
}

// WeightedTopology is TopologyFromAdjacency with each edge weighted by the
// pair distance. Absent edges weigh +Inf so zero-length links survive.
func WeightedTopology(adj mat.Matrix, dist mat.Matrix) *simple.UndirectedMatrix {
	if adj == nil || dist == nil {
		return nil
	}
	n, _ := adj.Dims()
	if n == 0 {
		return nil
	}
	inf := math.Inf(1)
	g := simple.NewUndirectedMatrix(n, inf, 0, inf)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if adj.At(i, j) != 0 || adj.At(j, i) != 0 {
				g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(i), T: simple.Node(j), W: dist.At(i, j)})
			}
		}
	}
	return g
}
