package core

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func staticField(t *testing.T, pos []Vec2, comRadius float64) *Field {
	t.Helper()
	g := NewGraph(Undirected)
	nodes := make([]*Node, len(pos))
	for i := range pos {
		nodes[i] = NewNode(IntNodeID(i), nil)
		if err := g.AddNode(nodes[i]); err != nil {
			t.Fatalf("AddNode: %v", err)
		}
	}
	f, err := NewField(g, nodes, NewColliderSet(0, comRadius, pos, make([]Vec2, len(pos))), 1000, 1000)
	if err != nil {
		t.Fatalf("NewField: %v", err)
	}
	return f
}

func TestNewField_InitialLinks(t *testing.T) {
	f := staticField(t, []Vec2{{0, 0}, {100, 0}, {500, 0}}, 250)

	if !f.Graph.HasLink("0", "1") || f.Graph.HasLink("1", "2") {
		t.Fatalf("unexpected initial links %v", f.Graph.Links())
	}
	if f.Record.FirstEdges != 1 {
		t.Fatalf("expected first edge count 1, got %d", f.Record.FirstEdges)
	}
	if f.Record.AddedEdges != 0 {
		t.Fatalf("construction must not count as added edges, got %d", f.Record.AddedEdges)
	}
	if f.Connected() {
		t.Fatalf("node 2 is out of range, field must be disconnected")
	}
}

func TestNewField_Validation(t *testing.T) {
	g := NewGraph(Undirected)
	n := NewNode("a", nil)
	_ = g.AddNode(n)
	cs := NewColliderSet(1, 1, []Vec2{{0, 0}}, []Vec2{{0, 0}})

	if _, err := NewField(g, []*Node{n}, cs, 0, 10); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField for zero width, got %v", err)
	}
	if _, err := NewField(g, nil, cs, 10, 10); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField for misaligned nodes, got %v", err)
	}
	stray := NewNode("b", nil)
	if _, err := NewField(g, []*Node{stray}, cs, 10, 10); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
}

func TestField_UpdateEdgesKeepsInFlightMessages(t *testing.T) {
	f := staticField(t, []Vec2{{0, 0}, {100, 0}}, 250)
	if err := f.Nodes[0].Inject("1", "x"); err != nil {
		t.Fatalf("Inject: %v", err)
	}

	f.Colliders.Pos[1] = Vec2{900, 0}
	f.UpdateEdges(3)

	if f.Graph.HasLink("0", "1") {
		t.Fatalf("link should be removed once out of range")
	}
	if len(f.Removed()) != 1 || f.Record.RemovedEdges != 1 {
		t.Fatalf("expected one removed edge, got %v / %d", f.Removed(), f.Record.RemovedEdges)
	}
	if len(f.Graph.Sending("0")) != 1 {
		t.Fatalf("in-flight message must survive link removal")
	}
}

func TestField_EdgeDeltaProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("added and removed edges are exactly the adjacency difference", prop.ForAll(
		func(seed uint64, n int) bool {
			rng := rand.New(rand.NewPCG(seed, 7))
			place := func() []Vec2 {
				pos := make([]Vec2, n)
				for i := range pos {
					pos[i] = Vec2{X: rng.Float64() * 800, Y: rng.Float64() * 800}
				}
				return pos
			}
			f := staticField(t, place(), 250)
			before := f.Colliders.AdjacencyMatrix()

			f.Colliders.Pos = place()
			f.UpdateEdges(0)
			after := f.Colliders.AdjacencyMatrix()

			added, removed := map[IndexEdge]bool{}, map[IndexEdge]bool{}
			for _, e := range f.Added() {
				added[e] = true
			}
			for _, e := range f.Removed() {
				removed[e] = true
			}
			for i := 0; i < n; i++ {
				for j := i + 1; j < n; j++ {
					was, is := before.At(i, j) != 0, after.At(i, j) != 0
					e := IndexEdge{U: i, V: j}
					if added[e] != (is && !was) || removed[e] != (was && !is) {
						return false
					}
					if f.Graph.HasLink(IntNodeID(i), IntNodeID(j)) != is {
						return false
					}
				}
			}
			return true
		},
		gen.UInt64(),
		gen.IntRange(1, 15),
	))

	properties.TestingRun(t)
}

func TestField_IndexAlignment(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	f, err := InitRandom(rng, 12, 1600, 1000, 100, 250, -3, 3, nil, WithMotionModel(DefaultMolecularMotionModel()))
	if err != nil {
		t.Fatalf("InitRandom: %v", err)
	}
	for step := 0; step < 20; step++ {
		if err := f.Update(step); err != nil {
			t.Fatalf("Update: %v", err)
		}
		for i, n := range f.Nodes {
			pos, ok := f.PositionOf(n.ID)
			if !ok || pos != f.Colliders.Pos[i] {
				t.Fatalf("node %s not aligned with collider %d", n.ID, i)
			}
			if f.Graph.Nodes()[i] != n {
				t.Fatalf("graph order diverged from field order at %d", i)
			}
		}
		adj := f.Adjacency()
		for i := range f.Nodes {
			for j := range f.Nodes {
				if i == j {
					continue
				}
				linked := f.Graph.HasLink(f.Nodes[i].ID, f.Nodes[j].ID)
				if linked != (adj.At(i, j) != 0 || adj.At(j, i) != 0) {
					t.Fatalf("step %d: link %d-%d disagrees with adjacency", step, i, j)
				}
			}
		}
	}
	if len(f.Record.Pos) != 20 || len(f.Record.Connectivity) != 20 {
		t.Fatalf("expected 20 recorded steps, got %d / %d", len(f.Record.Pos), len(f.Record.Connectivity))
	}
}

func TestField_ForceInFieldReflects(t *testing.T) {
	f := staticField(t, []Vec2{{995, 500}, {-20, -20}}, 1)
	f.Colliders.Size = []float64{10, 10}
	f.Colliders.Vel = []Vec2{{4, 1}, {-1, -2}}

	f.ForceInField(true)

	if f.Colliders.Pos[0] != (Vec2{990, 500}) || f.Colliders.Vel[0] != (Vec2{-4, 1}) {
		t.Fatalf("east wall: got pos %v vel %v", f.Colliders.Pos[0], f.Colliders.Vel[0])
	}
	if f.Colliders.Pos[1] != (Vec2{10, 10}) || f.Colliders.Vel[1] != (Vec2{1, 2}) {
		t.Fatalf("south-west corner: got pos %v vel %v", f.Colliders.Pos[1], f.Colliders.Vel[1])
	}
}

func TestField_ClampVelocity(t *testing.T) {
	f := staticField(t, []Vec2{{0, 0}, {1, 1}, {2, 2}}, 1)
	f.Colliders.Vel = []Vec2{{30, 40}, {0, 0}, {0.3, 0.4}}

	f.ClampVelocity(1, 10)

	if !approx(f.Colliders.Vel[0].Norm(), 10) || !approx(f.Colliders.Vel[0].X, 6) {
		t.Fatalf("expected speed clamped to 10, got %v", f.Colliders.Vel[0])
	}
	if f.Colliders.Vel[1] != (Vec2{}) {
		t.Fatalf("stationary node must stay stationary, got %v", f.Colliders.Vel[1])
	}
	if !approx(f.Colliders.Vel[2].Norm(), 1) {
		t.Fatalf("expected speed raised to 1, got %v", f.Colliders.Vel[2])
	}
}

func TestField_WallRepulsionPointsInward(t *testing.T) {
	f := staticField(t, []Vec2{{100, 500}}, 1)
	push, err := f.WallRepulsion(1, 0.5)
	if err != nil {
		t.Fatalf("WallRepulsion: %v", err)
	}
	// West wall is nearest, so the net push is towards +x.
	if push[0].X <= 0 || math.Abs(push[0].Y) > eps {
		t.Fatalf("expected net push away from west wall, got %v", push[0])
	}
}

func TestMolecularMotionModel_Step(t *testing.T) {
	cs := NewColliderSet(0, 1, []Vec2{{0, 0}, {10, 0}}, []Vec2{{1, 0}, {0, 0}})
	m := &MolecularMotionModel{AttractionCoefficient: 1, AttractionPower: 1}
	cs.Update(0, m)

	if cs.Pos[0] != (Vec2{1, 0}) {
		t.Fatalf("position must advance by velocity first, got %v", cs.Pos[0])
	}
	// Distance 9 after the move, attraction 1/9 towards the other node.
	if !approx(cs.Vel[0].X, 1+1.0/9) || !approx(cs.Vel[1].X, -1.0/9) {
		t.Fatalf("unexpected velocities %v", cs.Vel)
	}

	before := append([]Vec2(nil), cs.Pos...)
	cs.Update(1, StaticMotionModel{})
	if cs.Pos[0] != before[0] || cs.Pos[1] != before[1] {
		t.Fatalf("static model must not move nodes")
	}
}

func TestColliderSet_Adjacency(t *testing.T) {
	cs := NewColliderSet(0, 5, []Vec2{{0, 0}, {3, 4}, {20, 0}}, make([]Vec2, 3))

	list := cs.AdjacencyList()
	if len(list[0]) != 0 || len(list[1]) != 0 {
		// distance 5 is not strictly within radius 5
		t.Fatalf("expected no neighbors at exactly the radius, got %v", list)
	}

	cs.ComRadius = []float64{6, 6, 6}
	w := cs.WeightedAdjacency()
	if w.At(0, 1) != 5 || w.At(0, 0) != 0 || w.At(0, 2) != 0 {
		t.Fatalf("unexpected weighted adjacency row %v %v %v", w.At(0, 0), w.At(0, 1), w.At(0, 2))
	}
	edges := cs.EdgeList()
	if len(edges) != 2 || edges[0] != (IndexEdge{0, 1}) || edges[1] != (IndexEdge{1, 0}) {
		t.Fatalf("unexpected edge list %v", edges)
	}
}

func TestConnectivityService_Components(t *testing.T) {
	cs := NewColliderSet(0, 150, []Vec2{{0, 0}, {100, 0}, {1000, 0}, {1100, 0}}, make([]Vec2, 4))
	svc := NewConnectivityService()

	comps := svc.Components(cs.AdjacencyMatrix())
	if len(comps) != 2 || comps[0][0] != 0 || comps[1][0] != 2 {
		t.Fatalf("unexpected components %v", comps)
	}
	if svc.IsConnected(cs.AdjacencyMatrix()) {
		t.Fatalf("two clusters must not be connected")
	}
	cs.Pos[2] = Vec2{200, 0}
	cs.Pos[3] = Vec2{300, 0}
	if !svc.IsConnected(cs.AdjacencyMatrix()) {
		t.Fatalf("chain should be connected")
	}
}

func TestColliderSet_WeightedEdgeList(t *testing.T) {
	cs := NewColliderSet(0, 6, []Vec2{{0, 0}, {3, 4}, {20, 0}}, make([]Vec2, 3))
	edges := cs.WeightedEdgeList()
	if len(edges) != 2 {
		t.Fatalf("expected both orientations of the single pair, got %v", edges)
	}
	for _, e := range edges {
		if e.Weight != 5 {
			t.Fatalf("edge %v should carry distance 5", e)
		}
	}
	if NewColliderSet(0, 1, nil, nil).WeightedEdgeList() != nil {
		t.Fatalf("empty set has no edges")
	}
}
