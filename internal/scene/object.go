package scene

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pixil98/go-arena/internal/game"
	"github.com/pixil98/go-arena/internal/physics"
	"github.com/pixil98/go-errors"
)

const (
	defaultRestitution    = 1
	defaultDensity        = 1
	defaultLinearDamping  = 1
	defaultAdditionalMass = 1
)

var defaultSensorImpulse = mgl32.Vec3{0, 99999, 0}

type ShapeSpec struct {
	Kind        string       `json:"kind"`
	Radius      float32      `json:"radius,omitempty"`
	HalfExtents [3]float32   `json:"half_extents,omitempty"`
	Points      [][3]float32 `json:"points,omitempty"`
}

func (s *ShapeSpec) Validate() error {
	el := errors.NewErrorList()

	switch s.Kind {
	case physics.ShapeSphere.String():
		if !(s.Radius > 0) {
			el.Add(fmt.Errorf("sphere radius must be positive"))
		}
	case physics.ShapeCuboid.String():
		for i, h := range s.HalfExtents {
			if !(h > 0) {
				el.Add(fmt.Errorf("cuboid half_extents[%d] must be positive", i))
			}
		}
	case physics.ShapeConvexHull.String():
		if len(s.Points) < 4 {
			el.Add(fmt.Errorf("convex_hull needs at least 4 points, got %d", len(s.Points)))
		}
	default:
		el.Add(fmt.Errorf("unknown shape kind %q", s.Kind))
	}

	return el.Err()
}

// Build turns the description into physics geometry. Degenerate hulls only
// fail here, once the points are examined together.
func (s *ShapeSpec) Build() (physics.Shape, error) {
	switch s.Kind {
	case physics.ShapeSphere.String():
		return physics.NewSphere(s.Radius)
	case physics.ShapeCuboid.String():
		return physics.NewCuboid(s.HalfExtents[0], s.HalfExtents[1], s.HalfExtents[2])
	case physics.ShapeConvexHull.String():
		pts := make([]mgl32.Vec3, len(s.Points))
		for i, p := range s.Points {
			pts[i] = p
		}
		return physics.NewConvexHull(pts)
	default:
		return physics.Shape{}, fmt.Errorf("unknown shape kind %q", s.Kind)
	}
}

// radius is the bounding radius used when an object has no explicit one.
func (s *ShapeSpec) radius() float32 {
	switch s.Kind {
	case physics.ShapeSphere.String():
		return s.Radius
	case physics.ShapeCuboid.String():
		return max(s.HalfExtents[0], s.HalfExtents[1], s.HalfExtents[2])
	default:
		var r float32
		for _, p := range s.Points {
			r = max(r, mgl32.Vec3(p).Len())
		}
		return r
	}
}

type BodyType string

const (
	BodyFixed             BodyType = "fixed"
	BodyDynamic           BodyType = "dynamic"
	BodyKinematicPosition BodyType = "kinematic_position"
	BodyKinematicVelocity BodyType = "kinematic_velocity"
)

func (b BodyType) Kind() (physics.BodyKind, error) {
	switch b {
	case BodyFixed, "":
		return physics.BodyFixed, nil
	case BodyDynamic:
		return physics.BodyDynamic, nil
	case BodyKinematicPosition:
		return physics.BodyKinematicPosition, nil
	case BodyKinematicVelocity:
		return physics.BodyKinematicVelocity, nil
	default:
		return 0, fmt.Errorf("unknown body type %q", string(b))
	}
}

// ObjectSpec is one scene entry as stored on disk. The asset id names the
// object; "Player" and "Ball" are treated specially when the scene loads.
// Unset material values fall back to restitution, density, linear damping
// and additional mass of 1.
type ObjectSpec struct {
	Shape    ShapeSpec  `json:"shape"`
	Body     BodyType   `json:"body"`
	Position [3]float32 `json:"position"`
	// Quaternion as x, y, z, w. All zeros means no rotation.
	Rotation [4]float32 `json:"rotation"`

	Restitution    *float32 `json:"restitution,omitempty"`
	Density        *float32 `json:"density,omitempty"`
	LinearDamping  *float32 `json:"linear_damping,omitempty"`
	AdditionalMass *float32 `json:"additional_mass,omitempty"`

	Radius float32 `json:"radius,omitempty"`
	Speed  float32 `json:"speed,omitempty"`
	Mass   float32 `json:"mass,omitempty"`

	// Sensor objects collide with nothing and kick every object entering
	// them with Impulse.
	Sensor  bool        `json:"sensor,omitempty"`
	Impulse *[3]float32 `json:"impulse,omitempty"`
}

func (o *ObjectSpec) Validate() error {
	el := errors.NewErrorList()

	if err := o.Shape.Validate(); err != nil {
		el.Add(fmt.Errorf("shape: %w", err))
	}

	if _, err := o.Body.Kind(); err != nil {
		el.Add(err)
	}

	for i, v := range o.Position {
		if !finite(v) {
			el.Add(fmt.Errorf("position[%d] must be finite", i))
		}
	}
	for i, v := range o.Rotation {
		if !finite(v) {
			el.Add(fmt.Errorf("rotation[%d] must be finite", i))
		}
	}

	for name, v := range map[string]*float32{
		"restitution":     o.Restitution,
		"density":         o.Density,
		"linear_damping":  o.LinearDamping,
		"additional_mass": o.AdditionalMass,
	} {
		if v != nil && (!finite(*v) || *v < 0) {
			el.Add(fmt.Errorf("%s must be a non-negative number", name))
		}
	}

	if o.Radius < 0 || o.Speed < 0 || o.Mass < 0 {
		el.Add(fmt.Errorf("radius, speed and mass must not be negative"))
	}

	if o.Impulse != nil {
		if !o.Sensor {
			el.Add(fmt.Errorf("impulse is only valid for sensors"))
		}
		for i, v := range o.Impulse {
			if !finite(v) {
				el.Add(fmt.Errorf("impulse[%d] must be finite", i))
			}
		}
	}

	return el.Err()
}

// SceneObject converts the asset for placement in a world.
func (o *ObjectSpec) SceneObject(name string) (game.SceneObject, error) {
	shape, err := o.Shape.Build()
	if err != nil {
		return game.SceneObject{}, &game.SceneError{Object: name, Err: err}
	}
	kind, err := o.Body.Kind()
	if err != nil {
		return game.SceneObject{}, &game.SceneError{Object: name, Err: err}
	}

	rot := mgl32.Quat{W: o.Rotation[3], V: mgl32.Vec3{o.Rotation[0], o.Rotation[1], o.Rotation[2]}}
	if rot == (mgl32.Quat{}) {
		rot = mgl32.QuatIdent()
	} else {
		rot = rot.Normalize()
	}

	radius := o.Radius
	if radius == 0 {
		radius = o.Shape.radius()
	}

	var impulse mgl32.Vec3
	if o.Sensor {
		impulse = defaultSensorImpulse
		if o.Impulse != nil {
			impulse = mgl32.Vec3(*o.Impulse)
		}
	}

	return game.SceneObject{
		Name:     name,
		Shape:    shape,
		Body:     kind,
		Position: o.Position,
		Rotation: rot,
		Material: physics.Material{
			Restitution: orDefault(o.Restitution, defaultRestitution),
			Density:     orDefault(o.Density, defaultDensity),
		},
		LinearDamping:  orDefault(o.LinearDamping, defaultLinearDamping),
		AdditionalMass: orDefault(o.AdditionalMass, defaultAdditionalMass),
		Radius:         radius,
		Speed:          o.Speed,
		Mass:           o.Mass,
		Sensor:         o.Sensor,
		Impulse:        impulse,
	}, nil
}

func orDefault(v *float32, def float32) float32 {
	if v == nil {
		return def
	}
	return *v
}

func finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}
