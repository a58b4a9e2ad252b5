package core

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/signalsfoundry/manet-simulator/model"
)

// ErrInvalidField is returned when a field cannot be constructed from the
// given dimensions or collider state.
var ErrInvalidField = errors.New("invalid field")

// Physics holds the boundary and speed limits applied to mobile nodes each
// step.
type Physics struct {
	WallCoefficient float64
	WallPower       float64
	WallReflection  bool
	MinSpeed        float64
	MaxSpeed        float64
}

// DefaultPhysics returns the boundary settings used by the random MANET
// field.
func DefaultPhysics() Physics {
	return Physics{
		WallCoefficient: 1.0,
		WallPower:       0.5,
		WallReflection:  true,
		MinSpeed:        0,
		MaxSpeed:        10,
	}
}

// Field is a bounded rectangle holding nodes whose links follow their
// positions. Nodes, colliders and the graph are index-aligned: Nodes[i]
// sits at Colliders.Pos[i].
type Field struct {
	Origin Vec2
	Width  float64
	Height float64

	Graph     *Graph
	Nodes     []*Node
	Colliders *ColliderSet
	Motion    MotionModel
	Physics   Physics
	Record    *model.FieldRecord

	connectivity *ConnectivityService
	linkWeight   int
	edges        *mat.Dense
	added        []IndexEdge
	removed      []IndexEdge
	connected    bool
}

// FieldOption configures a Field.
type FieldOption func(*Field)

// WithOrigin places the south-west corner of the field.
func WithOrigin(origin Vec2) FieldOption {
	return func(f *Field) { f.Origin = origin }
}

// WithMotionModel enables mobility. A field without a motion model keeps
// every node in place.
func WithMotionModel(m MotionModel) FieldOption {
	return func(f *Field) { f.Motion = m }
}

// WithPhysics overrides the boundary and speed limits.
func WithPhysics(p Physics) FieldOption {
	return func(f *Field) { f.Physics = p }
}

// WithLinkWeight sets the transit time of links formed by the field.
func WithLinkWeight(w int) FieldOption {
	return func(f *Field) {
		if w > 0 {
			f.linkWeight = w
		}
	}
}

// NewField builds a field over nodes already added to g and derives the
// initial links from the collider positions.
func NewField(g *Graph, nodes []*Node, colliders *ColliderSet, width, height float64, opts ...FieldOption) (*Field, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: dimensions %vx%v", ErrInvalidField, width, height)
	}
	if colliders == nil || len(nodes) != colliders.Len() {
		return nil, fmt.Errorf("%w: %d nodes for %d colliders", ErrInvalidField, len(nodes), colliderLen(colliders))
	}
	if len(colliders.Vel) != colliders.Len() || len(colliders.Size) != colliders.Len() || len(colliders.ComRadius) != colliders.Len() {
		return nil, fmt.Errorf("%w: collider slices are not aligned", ErrInvalidField)
	}
	for _, n := range nodes {
		if g.Node(n.ID) != n {
			return nil, fmt.Errorf("%w: node %s", ErrUnknownNode, n.ID)
		}
	}

	f := &Field{
		Width:        width,
		Height:       height,
		Graph:        g,
		Nodes:        nodes,
		Colliders:    colliders,
		Physics:      DefaultPhysics(),
		Record:       &model.FieldRecord{Connectivity: []bool{}, Pos: [][]model.Point{}},
		connectivity: NewConnectivityService(),
		linkWeight:   DefaultLinkWeight,
	}
	for _, opt := range opts {
		opt(f)
	}

	f.UpdateEdges(-1)
	f.Record.FirstEdges = len(f.added)
	f.connected = f.isConnected()
	return f, nil
}

func colliderLen(cs *ColliderSet) int {
	if cs == nil {
		return 0
	}
	return cs.Len()
}

// InitRandom places n nodes uniformly in a width×height field with random
// velocities in [velMin, velMax] per axis. newBehavior supplies each node's
// behavior; it may be nil.
func InitRandom(rng *rand.Rand, n int, width, height, size, comRadius, velMin, velMax float64, newBehavior func(id NodeID) NodeBehavior, opts ...FieldOption) (*Field, error) {
	probe := &Field{}
	for _, opt := range opts {
		opt(probe)
	}
	g := NewGraph(Undirected)
	nodes := make([]*Node, n)
	pos := make([]Vec2, n)
	vel := make([]Vec2, n)
	for i := 0; i < n; i++ {
		id := IntNodeID(i)
		var b NodeBehavior
		if newBehavior != nil {
			b = newBehavior(id)
		}
		nodes[i] = NewNode(id, b)
		if err := g.AddNode(nodes[i]); err != nil {
			return nil, err
		}
		pos[i] = probe.Origin.Add(Vec2{X: rng.Float64() * width, Y: rng.Float64() * height})
		vel[i] = Vec2{
			X: velMin + (velMax-velMin)*rng.Float64(),
			Y: velMin + (velMax-velMin)*rng.Float64(),
		}
	}
	return NewField(g, nodes, NewColliderSet(size, comRadius, pos, vel), width, height, opts...)
}

func (f *Field) North() float64 { return f.Origin.Y + f.Height }
func (f *Field) South() float64 { return f.Origin.Y }
func (f *Field) West() float64  { return f.Origin.X }
func (f *Field) East() float64  { return f.Origin.X + f.Width }

func (f *Field) NorthWest() Vec2 { return Vec2{X: f.West(), Y: f.North()} }
func (f *Field) NorthEast() Vec2 { return Vec2{X: f.East(), Y: f.North()} }
func (f *Field) SouthWest() Vec2 { return Vec2{X: f.West(), Y: f.South()} }
func (f *Field) SouthEast() Vec2 { return Vec2{X: f.East(), Y: f.South()} }

// Mobile reports whether nodes move.
func (f *Field) Mobile() bool { return f.Motion != nil }

// Connected reports whether the current link set forms a single component.
func (f *Field) Connected() bool { return f.connected }

func (f *Field) isConnected() bool {
	if f.edges == nil {
		return true
	}
	return f.connectivity.IsConnected(f.edges)
}

// Added returns the index pairs linked by the last UpdateEdges call.
func (f *Field) Added() []IndexEdge { return f.added }

// Removed returns the index pairs unlinked by the last UpdateEdges call.
func (f *Field) Removed() []IndexEdge { return f.removed }

// Adjacency returns the adjacency matrix of the current link set.
func (f *Field) Adjacency() *mat.Dense { return f.edges }

// Positions returns a copy of the current positions.
func (f *Field) Positions() []Vec2 {
	return append([]Vec2(nil), f.Colliders.Pos...)
}

// PositionOf returns the position of the node with the given ID.
func (f *Field) PositionOf(id NodeID) (Vec2, bool) {
	i, ok := f.Graph.Index(id)
	if !ok || i >= len(f.Colliders.Pos) {
		return Vec2{}, false
	}
	return f.Colliders.Pos[i], true
}

// IDs returns node IDs in collider order.
func (f *Field) IDs() []NodeID {
	ids := make([]NodeID, len(f.Nodes))
	for i, n := range f.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// UpdateEdges diffs the stored adjacency against the current positions.
// Newly in-range pairs get a fresh link; out-of-range pairs lose theirs.
// Messages already on a removed link keep travelling.
func (f *Field) UpdateEdges(t int) {
	next := f.Colliders.AdjacencyMatrix()
	f.added, f.removed = nil, nil
	n := len(f.Nodes)
	linked := func(m *mat.Dense, i, j int) bool {
		return m != nil && (m.At(i, j) != 0 || m.At(j, i) != 0)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			was, is := linked(f.edges, i, j), linked(next, i, j)
			switch {
			case is && !was:
				f.added = append(f.added, IndexEdge{U: i, V: j})
				// Endpoints are known to the graph, so AddLink cannot fail.
				_ = f.Graph.AddLink(&Link{A: f.Nodes[i].ID, B: f.Nodes[j].ID, Weight: f.linkWeight})
			case was && !is:
				f.removed = append(f.removed, IndexEdge{U: i, V: j})
				f.Graph.RemoveLink(f.Nodes[i].ID, f.Nodes[j].ID)
			}
		}
	}
	f.edges = next
	if t >= 0 {
		f.Record.AddedEdges += len(f.added)
		f.Record.RemovedEdges += len(f.removed)
	}
}

// WallRepulsion returns the push each node receives away from the four
// walls.
func (f *Field) WallRepulsion(coefficient, power float64) ([]Vec2, error) {
	total := make([]Vec2, f.Colliders.Len())
	walls := [][2]Vec2{
		{f.NorthWest(), f.NorthEast()},
		{f.SouthWest(), f.SouthEast()},
		{f.NorthWest(), f.SouthWest()},
		{f.NorthEast(), f.SouthEast()},
	}
	for _, w := range walls {
		pull, err := GravityFromLine(f.Colliders.Pos, w[0], w[1], coefficient, power)
		if err != nil {
			return nil, err
		}
		for i := range total {
			total[i] = total[i].Sub(pull[i])
		}
	}
	return total, nil
}

// ForceInField pulls every node's collision shape back inside the walls.
// With reflect set the velocity component normal to the crossed wall is
// reversed.
func (f *Field) ForceInField(reflect bool) {
	cs := f.Colliders
	north, south, west, east := f.North(), f.South(), f.West(), f.East()
	for i := range cs.Pos {
		size, p, v := cs.Size[i], cs.Pos[i], cs.Vel[i]
		northOut := p.Y+size > north
		southOut := p.Y-size < south
		westOut := p.X-size < west
		eastOut := p.X+size > east
		if reflect {
			if northOut || southOut {
				v.Y = -v.Y
			}
			if westOut || eastOut {
				v.X = -v.X
			}
		}
		if northOut {
			p.Y = north - size
		}
		if southOut {
			p.Y = south + size
		}
		if westOut {
			p.X = west + size
		}
		if eastOut {
			p.X = east - size
		}
		cs.Pos[i], cs.Vel[i] = p, v
	}
}

// ClampVelocity rescales each velocity so its magnitude lies in
// [minSpeed, maxSpeed]. A stationary node stays stationary.
func (f *Field) ClampVelocity(minSpeed, maxSpeed float64) {
	for i, v := range f.Colliders.Vel {
		speed := v.Norm()
		if speed == 0 {
			continue
		}
		clamped := math.Min(math.Max(speed, minSpeed), maxSpeed)
		f.Colliders.Vel[i] = v.Scale(clamped / speed)
	}
}

// Update advances the field by one step: the link delta is applied, the
// connectivity and positions the nodes will observe this step are recorded,
// and then mobile nodes are moved.
func (f *Field) Update(t int) error {
	f.UpdateEdges(t)
	f.connected = f.isConnected()

	f.Record.Frame = t
	f.Record.Connectivity = append(f.Record.Connectivity, f.connected)
	pos := make([]model.Point, len(f.Colliders.Pos))
	for i, p := range f.Colliders.Pos {
		pos[i] = model.Point{X: p.X, Y: p.Y}
	}
	f.Record.Pos = append(f.Record.Pos, pos)

	if !f.Mobile() {
		return nil
	}
	push, err := f.WallRepulsion(f.Physics.WallCoefficient, f.Physics.WallPower)
	if err != nil {
		return err
	}
	for i := range f.Colliders.Vel {
		f.Colliders.Vel[i] = f.Colliders.Vel[i].Add(push[i])
	}
	f.ForceInField(f.Physics.WallReflection)
	f.ClampVelocity(f.Physics.MinSpeed, f.Physics.MaxSpeed)
	f.Colliders.Update(t, f.Motion)
	return nil
}
