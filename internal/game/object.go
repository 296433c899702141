package game

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pixil98/go-arena/internal/physics"
	"github.com/pixil98/go-arena/internal/wire"
)

// SceneObject describes one entry of a scene before it is placed in a world.
type SceneObject struct {
	Name     string
	Shape    physics.Shape
	Body     physics.BodyKind
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Material physics.Material

	LinearDamping  float32
	AdditionalMass float32

	// Bounding radius. Ball objects collide as a sphere of this radius and
	// the Player object sets the avatar radius from it.
	Radius float32

	// Avatar tuning, read only from the Player object.
	Speed float32
	Mass  float32

	// A sensor collides with nothing. Each object that starts overlapping
	// it receives Impulse.
	Sensor  bool
	Impulse mgl32.Vec3
}

// Object is a simulated entity every client sees.
type Object struct {
	Id       string
	Position mgl32.Vec3
	Rotation mgl32.Quat

	collider physics.ColliderHandle
	body     physics.BodyHandle
	sensor   bool
	impulse  mgl32.Vec3
}

func (o *Object) Collider() physics.ColliderHandle { return o.collider }
func (o *Object) Body() physics.BodyHandle         { return o.body }

func (o *Object) network() wire.NetworkObject {
	return wire.NetworkObject{
		Position: o.Position,
		Rotation: [4]float32{o.Rotation.V[0], o.Rotation.V[1], o.Rotation.V[2], o.Rotation.W},
		Id:       []byte(o.Id),
	}
}
