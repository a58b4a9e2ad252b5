// Package config loads and validates the settings of a broadcast run.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/manet-simulator/timectrl"
)

// ErrInvalidConfig is returned when a run configuration fails validation.
var ErrInvalidConfig = errors.New("invalid run config")

var validate = validator.New()

// Point is a 2-D coordinate in config files.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Termination bounds the step loop. Nil bounds are unset.
type Termination struct {
	UntilTime *int `yaml:"until_time" validate:"omitempty,min=0"`
	Timeout   *int `yaml:"timeout" validate:"omitempty,min=0"`
	// StopOnConvergence ends the run once every node has converged or the
	// network has lost connectivity.
	StopOnConvergence bool `yaml:"stop_on_convergence"`
}

// ForceLaw is an inverse-power force setting.
type ForceLaw struct {
	Coefficient float64 `yaml:"coefficient" validate:"min=0"`
	Power       float64 `yaml:"power" validate:"min=0"`
}

// Mobility configures node placement and movement.
type Mobility struct {
	Enabled     bool     `yaml:"enabled"`
	NodeSize    float64  `yaml:"node_size" validate:"min=0"`
	ComRadius   float64  `yaml:"com_radius" validate:"gt=0"`
	VelocityMin float64  `yaml:"velocity_min"`
	VelocityMax float64  `yaml:"velocity_max"`
	MinSpeed    float64  `yaml:"min_speed" validate:"min=0"`
	MaxSpeed    float64  `yaml:"max_speed" validate:"min=0"`
	Attraction  ForceLaw `yaml:"attraction"`
	Repulsion   ForceLaw `yaml:"repulsion"`
	Wall        ForceLaw `yaml:"wall"`
	Reflection  bool     `yaml:"reflection"`
}

// RunConfig is everything a single broadcast run needs.
type RunConfig struct {
	Algorithm   string      `yaml:"algorithm" validate:"required"`
	Nodes       int         `yaml:"nodes" validate:"min=1"`
	Width       float64     `yaml:"width" validate:"gt=0"`
	Height      float64     `yaml:"height" validate:"gt=0"`
	Origin      Point       `yaml:"origin"`
	Delay       int         `yaml:"delay" validate:"min=0"`
	LinkWeight  int         `yaml:"link_weight" validate:"min=1"`
	Seed        uint64      `yaml:"seed"`
	Termination Termination `yaml:"termination"`
	Mobility    Mobility    `yaml:"mobility"`
	// ConnectedOnly skips exporting runs that lost connectivity.
	ConnectedOnly bool `yaml:"connected_only"`
}

// Default returns a configuration for a 1600×1000 mobile field. The caller
// still has to choose an algorithm and a termination bound.
func Default() RunConfig {
	return RunConfig{
		Nodes:      20,
		Width:      1600,
		Height:     1000,
		Delay:      5,
		LinkWeight: 1,
		Mobility: Mobility{
			Enabled:     true,
			NodeSize:    100,
			ComRadius:   250,
			VelocityMin: -3,
			VelocityMax: 3,
			MinSpeed:    0,
			MaxSpeed:    10,
			Attraction:  ForceLaw{Coefficient: 0.5, Power: 1},
			Repulsion:   ForceLaw{Coefficient: 250, Power: 2},
			Wall:        ForceLaw{Coefficient: 1.0, Power: 0.5},
			Reflection:  true,
		},
	}
}

// Load reads a YAML run configuration from path.
func Load(path string) (RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("reading run config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (RunConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("%w: parsing yaml: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and that the run can terminate.
func (c RunConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if c.Mobility.VelocityMin > c.Mobility.VelocityMax {
		return fmt.Errorf("%w: velocity range [%v, %v] is empty", ErrInvalidConfig, c.Mobility.VelocityMin, c.Mobility.VelocityMax)
	}
	if c.Mobility.MinSpeed > c.Mobility.MaxSpeed {
		return fmt.Errorf("%w: speed range [%v, %v] is empty", ErrInvalidConfig, c.Mobility.MinSpeed, c.Mobility.MaxSpeed)
	}
	if !c.Policy(nil).Bounded() && !c.Termination.StopOnConvergence {
		return timectrl.ErrNoTermination
	}
	return nil
}

// Policy converts the termination settings into a step-loop policy using
// condition as the stopping predicate when StopOnConvergence is set.
func (c RunConfig) Policy(condition func() bool) timectrl.Policy {
	p := timectrl.Policy{}
	if c.Termination.UntilTime != nil {
		p.UntilTime = timectrl.Steps(*c.Termination.UntilTime)
	}
	if c.Termination.Timeout != nil {
		p.Timeout = timectrl.Steps(*c.Termination.Timeout)
	}
	if c.Termination.StopOnConvergence {
		p.Condition = condition
	}
	return p
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for _, e := range verrs {
		switch e.Tag() {
		case "required":
			return fmt.Errorf("%w: %s is required", ErrInvalidConfig, e.Namespace())
		case "min":
			return fmt.Errorf("%w: %s must be at least %s", ErrInvalidConfig, e.Namespace(), e.Param())
		case "gt":
			return fmt.Errorf("%w: %s must be greater than %s", ErrInvalidConfig, e.Namespace(), e.Param())
		default:
			return fmt.Errorf("%w: %s failed %s", ErrInvalidConfig, e.Namespace(), e.Tag())
		}
	}
	return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
}
