package core

import (
	"gonum.org/v1/gonum/mat"
)

// IndexEdge is an ordered pair of collider indices.
type IndexEdge struct {
	U, V int
}

// WeightedIndexEdge is an IndexEdge annotated with the pair's distance.
type WeightedIndexEdge struct {
	U, V   int
	Weight float64
}

// ColliderSet holds the physical state of every node, index-aligned with
// the field's node list. Size is the collision radius used against walls
// and ComRadius the communication range.
type ColliderSet struct {
	Size      []float64
	ComRadius []float64
	Pos       []Vec2
	Vel       []Vec2
}

// NewColliderSet builds a set where every node shares the same size and
// communication radius.
func NewColliderSet(size, comRadius float64, pos, vel []Vec2) *ColliderSet {
	n := len(pos)
	cs := &ColliderSet{
		Size:      make([]float64, n),
		ComRadius: make([]float64, n),
		Pos:       append([]Vec2(nil), pos...),
		Vel:       make([]Vec2, n),
	}
	copy(cs.Vel, vel)
	for i := 0; i < n; i++ {
		cs.Size[i] = size
		cs.ComRadius[i] = comRadius
	}
	return cs
}

// Len returns the number of colliders.
func (cs *ColliderSet) Len() int { return len(cs.Pos) }

// adjacent reports whether j is within i's communication radius.
func (cs *ColliderSet) adjacent(d *mat.SymDense, i, j int) bool {
	return i != j && d.At(i, j) < cs.ComRadius[i]
}

// AdjacencyMatrix returns an n×n matrix with 1 where two distinct nodes are
// within communication range and 0 elsewhere. It returns nil when empty.
func (cs *ColliderSet) AdjacencyMatrix() *mat.Dense {
	return cs.adjacency(false)
}

// WeightedAdjacency is AdjacencyMatrix with the pair distance in place of 1.
func (cs *ColliderSet) WeightedAdjacency() *mat.Dense {
	return cs.adjacency(true)
}

func (cs *ColliderSet) adjacency(weighted bool) *mat.Dense {
	n := cs.Len()
	if n == 0 {
		return nil
	}
	d := Distance(cs.Pos)
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if !cs.adjacent(d, i, j) {
				continue
			}
			if weighted {
				out.Set(i, j, d.At(i, j))
			} else {
				out.Set(i, j, 1)
			}
		}
	}
	return out
}

// AdjacencyList returns, for each index, the indices within range.
func (cs *ColliderSet) AdjacencyList() [][]int {
	n := cs.Len()
	out := make([][]int, n)
	if n == 0 {
		return out
	}
	d := Distance(cs.Pos)
	for i := 0; i < n; i++ {
		out[i] = []int{}
		for j := 0; j < n; j++ {
			if cs.adjacent(d, i, j) {
				out[i] = append(out[i], j)
			}
		}
	}
	return out
}

// EdgeList returns every ordered in-range pair.
func (cs *ColliderSet) EdgeList() []IndexEdge {
	var out []IndexEdge
	for _, e := range cs.WeightedEdgeList() {
		out = append(out, IndexEdge{U: e.U, V: e.V})
	}
	return out
}

// WeightedEdgeList returns every ordered in-range pair with its distance.
func (cs *ColliderSet) WeightedEdgeList() []WeightedIndexEdge {
	n := cs.Len()
	if n == 0 {
		return nil
	}
	d := Distance(cs.Pos)
	var out []WeightedIndexEdge
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if cs.adjacent(d, i, j) {
				out = append(out, WeightedIndexEdge{U: i, V: j, Weight: d.At(i, j)})
			}
		}
	}
	return out
}

// Update advances the colliders one step under the given motion model.
func (cs *ColliderSet) Update(t int, model MotionModel) {
	if model == nil {
		return
	}
	model.Step(t, cs)
}
