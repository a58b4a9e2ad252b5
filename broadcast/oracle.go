package broadcast

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/signalsfoundry/manet-simulator/core"
)

// IDSet is a set of node IDs.
type IDSet map[core.NodeID]struct{}

// NewIDSet returns a set holding ids.
func NewIDSet(ids ...core.NodeID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Add(id core.NodeID) { s[id] = struct{}{} }

func (s IDSet) Has(id core.NodeID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in lexical order.
func (s IDSet) Sorted() []core.NodeID {
	out := make([]core.NodeID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// RelaySets maps every node to the peers it may forward to.
type RelaySets map[core.NodeID]IDSet

func newRelaySets(s *Snapshot) RelaySets {
	sets := make(RelaySets, s.Len())
	for _, id := range s.IDs {
		sets[id] = IDSet{}
	}
	return sets
}

// Union merges several relay sets per node.
func Union(all ...RelaySets) RelaySets {
	out := RelaySets{}
	for _, sets := range all {
		for id, set := range sets {
			dst, ok := out[id]
			if !ok {
				dst = IDSet{}
				out[id] = dst
			}
			for peer := range set {
				dst.Add(peer)
			}
		}
	}
	return out
}

// Provider computes relay sets from a topology snapshot.
type Provider func(s *Snapshot) (RelaySets, error)

// Flooding lets every node forward to every other node.
func Flooding(s *Snapshot) (RelaySets, error) {
	sets := newRelaySets(s)
	for _, u := range s.IDs {
		for _, v := range s.IDs {
			if u != v {
				sets[u].Add(v)
			}
		}
	}
	return sets, nil
}

// BFSTree lets each node forward to its children in a breadth-first tree
// rooted at the root.
func BFSTree(s *Snapshot) (RelaySets, error) {
	sets := newRelaySets(s)
	top := s.topology()
	if top == nil {
		return sets, nil
	}
	parent, _ := bfsTree(top, s.Len(), s.Root)
	addChildren(sets, s.IDs, parent)
	return sets, nil
}

// MST lets each node forward to its children in a minimum spanning tree of
// the snapshot links weighted by distance, rooted at the root. A
// disconnected snapshot yields a spanning forest; only the root's tree has
// relays.
func MST(s *Snapshot) (RelaySets, error) {
	sets := newRelaySets(s)
	top := s.weightedTopology()
	if top == nil {
		return sets, nil
	}
	tree := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	path.Prim(tree, top)
	parent, _ := bfsTree(tree, s.Len(), s.Root)
	addChildren(sets, s.IDs, parent)
	return sets, nil
}

// BFTMST is the union of BFSTree and MST.
func BFTMST(s *Snapshot) (RelaySets, error) {
	bft, err := BFSTree(s)
	if err != nil {
		return nil, err
	}
	mst, err := MST(s)
	if err != nil {
		return nil, err
	}
	return Union(bft, mst), nil
}

// Hop lets u forward to v when u is no more hops from the root than v.
// Nodes the root cannot reach count as infinitely far.
func Hop(s *Snapshot) (RelaySets, error) {
	hops := make([]int, s.Len())
	if top := s.topology(); top != nil {
		_, hop := bfsTree(top, s.Len(), s.Root)
		for i, h := range hop {
			hops[i] = hopOrInf(h)
		}
	}
	return pairwise(s, func(u, v int) bool { return hops[u] <= hops[v] }), nil
}

// GTHop is Hop with the hop count estimated geometrically as
// ceil(distance to root / communication radius), forwarding only to
// strictly farther nodes.
func GTHop(s *Snapshot) (RelaySets, error) {
	if s.ComRadius <= 0 {
		return nil, fmt.Errorf("%w: communication radius %v", core.ErrDegenerateGeometry, s.ComRadius)
	}
	hops := make([]float64, s.Len())
	for i := range hops {
		hops[i] = math.Ceil(s.rootDistance(i) / s.ComRadius)
	}
	return pairwise(s, func(u, v int) bool { return hops[u] < hops[v] }), nil
}

// Far lets u forward to v when u is strictly closer to the root than v.
func Far(s *Snapshot) (RelaySets, error) {
	return pairwise(s, func(u, v int) bool { return s.rootDistance(u) < s.rootDistance(v) }), nil
}

// Area splits the plane for every non-root node u along the line through
// u perpendicular to the root-u direction. u may forward to the nodes on
// the far side from the root. The root may forward to everyone.
//
// Peers lying exactly on a dividing line are on neither side and are left
// out. A node on the root's position puts the root on its own dividing
// line and fails with core.ErrDegenerateGeometry.
func Area(s *Snapshot) (RelaySets, error) {
	sets := newRelaySets(s)
	root := s.Pos[s.Root]
	for u, id := range s.IDs {
		if u == s.Root {
			for v, other := range s.IDs {
				if v != s.Root {
					sets[id].Add(other)
				}
			}
			continue
		}
		base := s.Pos[u]
		d := root.Sub(base)
		// Quarter turn of root about u, exact in floating point.
		rotated := base.Add(core.Vec2{X: -d.Y, Y: d.X})
		side, err := core.JudgeRegionFrom(s.Pos, rotated, base, root)
		if err != nil {
			return nil, fmt.Errorf("area partition at node %s: %w", id, err)
		}
		for v, sv := range side {
			if v != u && sv < 0 {
				sets[id].Add(s.IDs[v])
			}
		}
	}
	return sets, nil
}

func addChildren(sets RelaySets, ids []core.NodeID, parent []int) {
	for child, p := range parent {
		if p >= 0 {
			sets[ids[p]].Add(ids[child])
		}
	}
}

func pairwise(s *Snapshot, allow func(u, v int) bool) RelaySets {
	sets := newRelaySets(s)
	for u, id := range s.IDs {
		for v, other := range s.IDs {
			if u != v && allow(u, v) {
				sets[id].Add(other)
			}
		}
	}
	return sets
}
