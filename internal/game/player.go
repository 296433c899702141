package game

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pixil98/go-arena/internal/physics"
	"github.com/pixil98/go-arena/internal/wire"
)

const (
	lookSensitivity = 500
	maxPitch        = 1.5

	cameraHeight   = 5
	cameraDistance = 5
	cameraRadius   = 0.25
)

// PlayerTemplate is the avatar every new player is cloned from.
type PlayerTemplate struct {
	Position mgl32.Vec3
	Radius   float32
	// Speed is stored with the avatar. Movement intents are applied as
	// given and never scaled by it.
	Speed float32
	Mass  float32
}

func DefaultPlayerTemplate() PlayerTemplate {
	return PlayerTemplate{
		Radius: 2,
		Speed:  1,
		Mass:   100,
	}
}

// Player is a connected participant's avatar.
type Player struct {
	Id uint64

	Position     mgl32.Vec3
	Fwd          mgl32.Vec3
	Right        mgl32.Vec3
	CameraPos    mgl32.Vec3
	CameraTarget mgl32.Vec3

	Yaw   float32
	Pitch float32

	Speed  float32
	Mass   float32
	Radius float32

	collider physics.ColliderHandle
}

func newPlayer(id uint64, t PlayerTemplate) *Player {
	p := &Player{
		Id:       id,
		Position: t.Position,
		Speed:    t.Speed,
		Mass:     t.Mass,
		Radius:   t.Radius,
	}
	p.look(mgl32.Vec2{})
	p.CameraPos = p.cameraAnchor()
	p.CameraTarget = p.CameraPos.Add(p.Fwd)
	return p
}

func (p *Player) Collider() physics.ColliderHandle { return p.collider }

// look turns the view by a mouse delta and recomputes the facing vectors.
func (p *Player) look(delta mgl32.Vec2) {
	p.Yaw += delta[0] / lookSensitivity
	p.Pitch = mgl32.Clamp(p.Pitch+delta[1]/lookSensitivity, -maxPitch, maxPitch)

	sy, cy := sincos(p.Yaw)
	sp, cp := sincos(p.Pitch)
	p.Fwd = mgl32.Vec3{cp * sy, -sp, cp * cy}
	p.Right = mgl32.Vec3{-p.Fwd[2], 0, p.Fwd[0]}
}

// cameraAnchor is where the camera wants to be: above and behind the avatar.
func (p *Player) cameraAnchor() mgl32.Vec3 {
	return p.Position.Add(mgl32.Vec3{0, cameraHeight, 0}).Sub(p.Fwd.Mul(cameraDistance))
}

func (p *Player) signal() wire.ResponseSignal {
	return wire.ResponseSignal{
		Translation:  p.Position,
		CameraPos:    p.CameraPos,
		CameraTarget: p.CameraTarget,
		Fwd:          p.Fwd,
		Right:        p.Right,
	}
}

func sincos(a float32) (float32, float32) {
	s, c := math.Sincos(float64(a))
	return float32(s), float32(c)
}
