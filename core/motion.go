package core

// MotionModel advances collider positions and velocities by one step.
type MotionModel interface {
	Step(t int, cs *ColliderSet)
}

// StaticMotionModel leaves positions and velocities unchanged.
type StaticMotionModel struct{}

// Step for static motion does nothing.
func (StaticMotionModel) Step(int, *ColliderSet) {
	// no-op
}

// MolecularMotionModel moves each node by its velocity, then adjusts the
// velocity by a weak long-range pull towards every other node and a strong
// short-range push away from it. The net effect keeps nodes spread out
// without drifting apart.
type MolecularMotionModel struct {
	AttractionCoefficient float64
	AttractionPower       float64
	RepulsionCoefficient  float64
	RepulsionPower        float64
}

// DefaultMolecularMotionModel returns the coefficients used by the random
// MANET field.
func DefaultMolecularMotionModel() *MolecularMotionModel {
	return &MolecularMotionModel{
		AttractionCoefficient: 0.5,
		AttractionPower:       1,
		RepulsionCoefficient:  250,
		RepulsionPower:        2,
	}
}

// Step applies pos += vel, then vel += Σattraction − Σrepulsion computed at
// the new positions.
func (m *MolecularMotionModel) Step(_ int, cs *ColliderSet) {
	for i := range cs.Pos {
		cs.Pos[i] = cs.Pos[i].Add(cs.Vel[i])
	}
	attraction := SumForces(Gravity(cs.Pos, m.AttractionCoefficient, m.AttractionPower))
	repulsion := SumForces(Gravity(cs.Pos, m.RepulsionCoefficient, m.RepulsionPower))
	for i := range cs.Vel {
		cs.Vel[i] = cs.Vel[i].Add(attraction[i]).Sub(repulsion[i])
	}
}
