package core

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateGeometry is returned when a geometric construction has no
// well-defined answer, e.g. a line through two identical points or a
// reference point lying exactly on a partition line.
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// Vec2 is a point or displacement in the simulation plane.
type Vec2 struct {
	X, Y float64
}

// Add returns v + other.
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// Sub returns v - other.
func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{X: v.X - other.X, Y: v.Y - other.Y}
}

// Scale returns v multiplied by k.
func (v Vec2) Scale(k float64) Vec2 {
	return Vec2{X: v.X * k, Y: v.Y * k}
}

// Dot returns the dot product of two vectors.
func (v Vec2) Dot(other Vec2) float64 {
	return v.X*other.X + v.Y*other.Y
}

// Cross returns the z component of the 3-D cross product v × other.
func (v Vec2) Cross(other Vec2) float64 {
	return v.X*other.Y - v.Y*other.X
}

// Norm returns the Euclidean norm of the vector.
func (v Vec2) Norm() float64 {
	return math.Hypot(v.X, v.Y)
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec2) DistanceTo(other Vec2) float64 {
	return v.Sub(other).Norm()
}

// Distance returns the symmetric all-pairs Euclidean distance matrix for
// pos. It returns nil for an empty input.
func Distance(pos []Vec2) *mat.SymDense {
	n := len(pos)
	if n == 0 {
		return nil
	}
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d.SetSym(i, j, pos[i].DistanceTo(pos[j]))
		}
	}
	return d
}

// Gravity returns the pairwise inverse-power attraction between every pair of
// points: force[i][j] = coefficient·(pos_j−pos_i)/|pos_j−pos_i|^(power+1).
// Coincident pairs, including i == j, contribute a zero vector.
func Gravity(pos []Vec2, coefficient, power float64) [][]Vec2 {
	n := len(pos)
	force := make([][]Vec2, n)
	for i := range force {
		force[i] = make([]Vec2, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			diff := pos[j].Sub(pos[i])
			dist := diff.Norm()
			if dist == 0 {
				continue
			}
			f := diff.Scale(coefficient / math.Pow(dist, power+1))
			force[i][j] = f
			force[j][i] = f.Scale(-1)
		}
	}
	return force
}

// SumForces returns the total force acting on each point.
func SumForces(force [][]Vec2) []Vec2 {
	total := make([]Vec2, len(force))
	for i, row := range force {
		for _, f := range row {
			total[i] = total[i].Add(f)
		}
	}
	return total
}

// GravityFromLine returns, for each point, the attraction towards the
// infinite line through p1 and p2. The force points from the point to the
// foot of its perpendicular and has magnitude coefficient/dist^power. Callers
// negate the result for repulsion. Points exactly on the line get zero.
func GravityFromLine(pos []Vec2, p1, p2 Vec2, coefficient, power float64) ([]Vec2, error) {
	dir := p2.Sub(p1)
	length := dir.Norm()
	if length == 0 {
		return nil, fmt.Errorf("%w: line through identical points %v", ErrDegenerateGeometry, p1)
	}
	unit := dir.Scale(1 / length)

	out := make([]Vec2, len(pos))
	for i, p := range pos {
		foot := p1.Add(unit.Scale(p.Sub(p1).Dot(unit)))
		towards := foot.Sub(p)
		dist := towards.Norm()
		if dist == 0 {
			continue
		}
		out[i] = towards.Scale(coefficient / math.Pow(dist, power+1))
	}
	return out, nil
}

// Rotation2D rotates p by rad radians counter-clockwise around origin.
func Rotation2D(p Vec2, rad float64, origin Vec2) Vec2 {
	sin, cos := math.Sincos(rad)
	d := p.Sub(origin)
	return Vec2{
		X: origin.X + d.X*cos - d.Y*sin,
		Y: origin.Y + d.X*sin + d.Y*cos,
	}
}

// JudgeRegion returns the signed side of each point relative to the directed
// line p1→p2. Positive values lie to the left, negative to the right, and
// zero exactly on the line.
func JudgeRegion(pos []Vec2, p1, p2 Vec2) []float64 {
	dir := p2.Sub(p1)
	out := make([]float64, len(pos))
	for i, p := range pos {
		out[i] = dir.Cross(p.Sub(p1))
	}
	return out
}

// JudgeRegionFrom is JudgeRegion normalised so that positive values lie on
// the same side of the line as base. A base on the line has no side and
// yields ErrDegenerateGeometry.
func JudgeRegionFrom(pos []Vec2, p1, p2, base Vec2) ([]float64, error) {
	ref := p2.Sub(p1).Cross(base.Sub(p1))
	if ref == 0 {
		return nil, fmt.Errorf("%w: base %v lies on line %v-%v", ErrDegenerateGeometry, base, p1, p2)
	}
	out := JudgeRegion(pos, p1, p2)
	if ref < 0 {
		for i := range out {
			out[i] = -out[i]
		}
	}
	return out, nil
}
