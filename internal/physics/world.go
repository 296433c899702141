package physics

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

type BodyKind int

const (
	BodyFixed BodyKind = iota
	BodyDynamic
	BodyKinematicPosition
	BodyKinematicVelocity
)

func (k BodyKind) String() string {
	switch k {
	case BodyFixed:
		return "fixed"
	case BodyDynamic:
		return "dynamic"
	case BodyKinematicPosition:
		return "kinematic_position"
	case BodyKinematicVelocity:
		return "kinematic_velocity"
	default:
		return fmt.Sprintf("body(%d)", int(k))
	}
}

type Material struct {
	Restitution float32
	Density     float32
}

type BodyDesc struct {
	Kind           BodyKind
	Position       mgl32.Vec3
	Rotation       mgl32.Quat
	LinearDamping  float32
	AdditionalMass float32
	Velocity       mgl32.Vec3
}

// ColliderDesc describes a collider. Position and Rotation are world space
// for free colliders and body-relative for attached ones.
type ColliderDesc struct {
	Shape    Shape
	Material Material
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Sensor   bool
}

// SensorEvent reports a collider that started overlapping a sensor.
type SensorEvent struct {
	Sensor ColliderHandle
	Other  ColliderHandle
}

type sensorPair struct {
	sensor ColliderHandle
	other  ColliderHandle
}

type Pose struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
}

type body struct {
	desc      BodyDesc
	pos       mgl32.Vec3
	rot       mgl32.Quat
	vel       mgl32.Vec3
	mass      float32
	colliders []ColliderHandle
}

type collider struct {
	desc   ColliderDesc
	parent BodyHandle
}

// World owns every body and collider of one simulation. It is not safe for
// concurrent use; a single goroutine drives it.
type World struct {
	id      uint32
	closed  bool
	gravity mgl32.Vec3

	bodies    arena[body]
	colliders arena[collider]

	overlaps map[sensorPair]struct{}
	events   []SensorEvent
}

type WorldOpt func(*World)

func WithGravity(g mgl32.Vec3) WorldOpt {
	return func(w *World) {
		w.gravity = g
	}
}

func NewWorld(opts ...WorldOpt) *World {
	w := &World{
		id:      worldIds.Add(1),
		gravity: mgl32.Vec3{0, -9.81, 0},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Close invalidates every handle this world has issued.
func (w *World) Close() {
	w.closed = true
	w.bodies = arena[body]{}
	w.colliders = arena[collider]{}
	w.overlaps = nil
	w.events = nil
}

func (w *World) Gravity() mgl32.Vec3 {
	return w.gravity
}

func (w *World) BodyCount() int     { return w.bodies.len() }
func (w *World) ColliderCount() int { return w.colliders.len() }

func (w *World) InsertBody(d BodyDesc) (BodyHandle, error) {
	if w.closed {
		return BodyHandle{}, ErrWorldClosed
	}
	rot := d.Rotation
	if rot == (mgl32.Quat{}) {
		rot = mgl32.QuatIdent()
	}
	idx, gen := w.bodies.insert(body{
		desc: d,
		pos:  d.Position,
		rot:  rot,
		vel:  d.Velocity,
		mass: d.AdditionalMass,
	})
	return BodyHandle{world: w.id, index: idx, gen: gen}, nil
}

// InsertCollider adds a collider that belongs to no body. Free colliders are
// static obstacles that only move when explicitly repositioned.
func (w *World) InsertCollider(d ColliderDesc) (ColliderHandle, error) {
	if w.closed {
		return ColliderHandle{}, ErrWorldClosed
	}
	if d.Rotation == (mgl32.Quat{}) {
		d.Rotation = mgl32.QuatIdent()
	}
	idx, gen := w.colliders.insert(collider{desc: d})
	return ColliderHandle{world: w.id, index: idx, gen: gen}, nil
}

func (w *World) InsertColliderWithParent(d ColliderDesc, parent BodyHandle) (ColliderHandle, error) {
	b, err := w.body(parent)
	if err != nil {
		return ColliderHandle{}, err
	}
	if d.Rotation == (mgl32.Quat{}) {
		d.Rotation = mgl32.QuatIdent()
	}
	idx, gen := w.colliders.insert(collider{desc: d, parent: parent})
	h := ColliderHandle{world: w.id, index: idx, gen: gen}
	b.colliders = append(b.colliders, h)
	b.mass += d.Shape.volume() * d.Material.Density
	return h, nil
}

// RemoveCollider detaches and deletes a collider. The parent body, if any,
// stays in the world.
func (w *World) RemoveCollider(h ColliderHandle) error {
	c, err := w.collider(h)
	if err != nil {
		return err
	}
	if !c.parent.IsZero() {
		if b, err := w.body(c.parent); err == nil {
			for i, ch := range b.colliders {
				if ch == h {
					b.colliders = append(b.colliders[:i], b.colliders[i+1:]...)
					break
				}
			}
			b.mass -= c.desc.Shape.volume() * c.desc.Material.Density
		}
	}
	w.colliders.remove(h.index, h.gen)
	return nil
}

func (w *World) ColliderPose(h ColliderHandle) (Pose, error) {
	c, err := w.collider(h)
	if err != nil {
		return Pose{}, err
	}
	return w.pose(c), nil
}

// SetColliderTranslation moves a collider, or its parent body if attached.
func (w *World) SetColliderTranslation(h ColliderHandle, pos mgl32.Vec3) error {
	c, err := w.collider(h)
	if err != nil {
		return err
	}
	if c.parent.IsZero() {
		c.desc.Position = pos
		return nil
	}
	b, err := w.body(c.parent)
	if err != nil {
		return err
	}
	b.pos = pos.Sub(b.rot.Rotate(c.desc.Position))
	return nil
}

func (w *World) BodyVelocity(h BodyHandle) (mgl32.Vec3, error) {
	b, err := w.body(h)
	if err != nil {
		return mgl32.Vec3{}, err
	}
	return b.vel, nil
}

// ApplyImpulse changes a dynamic body's velocity by impulse / mass. Other
// body kinds ignore impulses.
func (w *World) ApplyImpulse(h BodyHandle, impulse mgl32.Vec3) error {
	b, err := w.body(h)
	if err != nil {
		return err
	}
	if b.desc.Kind != BodyDynamic {
		return nil
	}
	b.vel = b.vel.Add(impulse.Mul(1 / max(b.mass, minMass)))
	return nil
}

const minMass = 1e-3

// Step integrates dynamic and velocity-driven bodies over dt, pushes
// dynamic bodies out of anything they overlap and records the sensor
// overlaps that began.
func (w *World) Step(dt float32) error {
	if w.closed {
		return ErrWorldClosed
	}
	if !(dt > 0) {
		return fmt.Errorf("invalid step %v", dt)
	}

	w.bodies.each(func(_, _ uint32, b *body) {
		switch b.desc.Kind {
		case BodyDynamic:
			b.vel = b.vel.Add(w.gravity.Mul(dt))
			if b.desc.LinearDamping > 0 {
				b.vel = b.vel.Mul(1 / (1 + dt*b.desc.LinearDamping))
			}
			b.pos = b.pos.Add(b.vel.Mul(dt))
		case BodyKinematicVelocity:
			b.pos = b.pos.Add(b.vel.Mul(dt))
		}
	})

	w.bodies.each(func(index, gen uint32, b *body) {
		if b.desc.Kind != BodyDynamic {
			return
		}
		self := BodyHandle{world: w.id, index: index, gen: gen}
		for _, ch := range b.colliders {
			w.resolve(self, b, ch)
		}
	})

	w.detectSensors()
	return nil
}

// SensorEvents returns the overlaps that began during the last Step. A
// collider resting inside a sensor is reported once.
func (w *World) SensorEvents() []SensorEvent {
	return w.events
}

func (w *World) detectSensors() {
	touching := map[sensorPair]struct{}{}
	var events []SensorEvent

	w.colliders.each(func(si, sg uint32, s *collider) {
		if !s.desc.Sensor {
			return
		}
		sp := w.pose(s)
		g := s.desc.Shape.place(sp.Position, sp.Rotation)
		sh := ColliderHandle{world: w.id, index: si, gen: sg}

		w.colliders.each(func(oi, og uint32, o *collider) {
			if o.desc.Sensor || (!s.parent.IsZero() && o.parent == s.parent) {
				return
			}
			op := w.pose(o)
			if _, depth := contact(g, o.desc.Shape.place(op.Position, op.Rotation)); depth <= 0 {
				return
			}
			pair := sensorPair{sensor: sh, other: ColliderHandle{world: w.id, index: oi, gen: og}}
			touching[pair] = struct{}{}
			if _, ok := w.overlaps[pair]; !ok {
				events = append(events, SensorEvent{Sensor: pair.sensor, Other: pair.other})
			}
		})
	})

	w.overlaps = touching
	w.events = events
}

func (w *World) resolve(self BodyHandle, b *body, ch ColliderHandle) {
	c, ok := w.colliders.get(ch.index, ch.gen)
	if !ok || c.desc.Sensor {
		return
	}
	w.colliders.each(func(index, gen uint32, other *collider) {
		if other.desc.Sensor || other.parent == self {
			return
		}
		g := c.desc.Shape.place(w.pose(c).Position, w.pose(c).Rotation)
		op := w.pose(other)
		n, depth := contact(g, other.desc.Shape.place(op.Position, op.Rotation))
		if depth <= 0 {
			return
		}

		push := depth
		var ob *body
		if !other.parent.IsZero() {
			if p, ok := w.bodies.get(other.parent.index, other.parent.gen); ok && p.desc.Kind == BodyDynamic {
				ob = p
				push = depth / 2
			}
		}
		b.pos = b.pos.Add(n.Mul(push))
		restitution := (c.desc.Material.Restitution + other.desc.Material.Restitution) / 2
		if vn := b.vel.Dot(n); vn < 0 {
			b.vel = b.vel.Sub(n.Mul(vn * (1 + restitution)))
		}
		if ob != nil {
			ob.pos = ob.pos.Sub(n.Mul(push))
			if vn := ob.vel.Dot(n); vn > 0 {
				ob.vel = ob.vel.Sub(n.Mul(vn * (1 + restitution)))
			}
		}
	})
}

func (w *World) pose(c *collider) Pose {
	if c.parent.IsZero() {
		return Pose{Position: c.desc.Position, Rotation: c.desc.Rotation}
	}
	b, ok := w.bodies.get(c.parent.index, c.parent.gen)
	if !ok {
		return Pose{Position: c.desc.Position, Rotation: c.desc.Rotation}
	}
	return Pose{
		Position: b.pos.Add(b.rot.Rotate(c.desc.Position)),
		Rotation: b.rot.Mul(c.desc.Rotation),
	}
}

func (w *World) body(h BodyHandle) (*body, error) {
	if w.closed {
		return nil, ErrWorldClosed
	}
	if h.world != w.id {
		return nil, fmt.Errorf("%w: %s", ErrForeignHandle, h)
	}
	b, ok := w.bodies.get(h.index, h.gen)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	return b, nil
}

func (w *World) collider(h ColliderHandle) (*collider, error) {
	if w.closed {
		return nil, ErrWorldClosed
	}
	if h.world != w.id {
		return nil, fmt.Errorf("%w: %s", ErrForeignHandle, h)
	}
	c, ok := w.colliders.get(h.index, h.gen)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	return c, nil
}
