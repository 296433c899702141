package game

import (
	"fmt"
	"maps"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pixil98/go-arena/internal/physics"
	"github.com/pixil98/go-arena/internal/wire"
)

const (
	PlayerObjectName = "Player"
	BallObjectName   = "Ball"
)

// Physics is the simulation a WorldState drives. *physics.World implements it.
type Physics interface {
	InsertBody(physics.BodyDesc) (physics.BodyHandle, error)
	InsertCollider(physics.ColliderDesc) (physics.ColliderHandle, error)
	InsertColliderWithParent(physics.ColliderDesc, physics.BodyHandle) (physics.ColliderHandle, error)
	RemoveCollider(physics.ColliderHandle) error
	ColliderPose(physics.ColliderHandle) (physics.Pose, error)
	SetColliderTranslation(physics.ColliderHandle, mgl32.Vec3) error
	Step(dt float32) error
	SensorEvents() []physics.SensorEvent
	ApplyImpulse(physics.BodyHandle, mgl32.Vec3) error
	MoveShape(radius float32, from, desired mgl32.Vec3, exclude physics.ColliderHandle) (physics.Movement, error)
	SolveImpulses(mass float32, collisions []physics.Collision, dt float32) error
	Close()
}

// WorldState is the authoritative simulation of one session. It is owned by
// a single goroutine and is not safe for concurrent use.
type WorldState struct {
	phys    Physics
	gravity mgl32.Vec3

	template PlayerTemplate
	objects  []*Object
	players  map[uint64]*Player
	lastId   uint64
}

type WorldOpt func(*WorldState)

// WithGravity sets the acceleration applied to player movement.
func WithGravity(g mgl32.Vec3) WorldOpt {
	return func(w *WorldState) {
		w.gravity = g
	}
}

func WithPlayerTemplate(t PlayerTemplate) WorldOpt {
	return func(w *WorldState) {
		w.template = t
	}
}

func NewWorldState(phys Physics, opts ...WorldOpt) *WorldState {
	w := &WorldState{
		phys:     phys,
		gravity:  mgl32.Vec3{0, -9.81, 0},
		template: DefaultPlayerTemplate(),
		players:  map[uint64]*Player{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// AddObject inserts a body and its collider and registers the matching
// network object.
func (w *WorldState) AddObject(o SceneObject) (*Object, error) {
	body, err := w.phys.InsertBody(physics.BodyDesc{
		Kind:           o.Body,
		Position:       o.Position,
		Rotation:       o.Rotation,
		LinearDamping:  o.LinearDamping,
		AdditionalMass: o.AdditionalMass,
	})
	if err != nil {
		return nil, &SceneError{Object: o.Name, Err: err}
	}

	collider, err := w.phys.InsertColliderWithParent(physics.ColliderDesc{
		Shape:    o.Shape,
		Material: o.Material,
		Sensor:   o.Sensor,
	}, body)
	if err != nil {
		return nil, &SceneError{Object: o.Name, Err: err}
	}

	obj := &Object{
		Id:       o.Name,
		Position: o.Position,
		Rotation: o.Rotation,
		collider: collider,
		body:     body,
		sensor:   o.Sensor,
		impulse:  o.Impulse,
	}
	if obj.Rotation == (mgl32.Quat{}) {
		obj.Rotation = mgl32.QuatIdent()
	}
	w.objects = append(w.objects, obj)
	return obj, nil
}

// InitScene populates the world. The Player object becomes the avatar
// template instead of a world object and Ball objects collide as spheres.
func (w *WorldState) InitScene(objects []SceneObject) error {
	for _, o := range objects {
		switch o.Name {
		case PlayerObjectName:
			t := DefaultPlayerTemplate()
			t.Position = o.Position
			if o.Radius > 0 {
				t.Radius = o.Radius
			}
			if o.Speed > 0 {
				t.Speed = o.Speed
			}
			if o.Mass > 0 {
				t.Mass = o.Mass
			}
			w.template = t
			continue
		case BallObjectName:
			s, err := physics.NewSphere(o.Radius)
			if err != nil {
				return &SceneError{Object: o.Name, Err: err}
			}
			o.Shape = s
		}

		if _, err := w.AddObject(o); err != nil {
			return err
		}
	}
	return nil
}

func (w *WorldState) Template() PlayerTemplate {
	return w.template
}

// NewPlayer clones the avatar template under a fresh id and adds it to the
// roster. Ids increase monotonically and are never handed out twice.
func (w *WorldState) NewPlayer() (*Player, error) {
	w.lastId++
	p := newPlayer(w.lastId, w.template)
	if err := w.insertPlayer(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (w *WorldState) insertPlayer(p *Player) error {
	if _, ok := w.players[p.Id]; ok {
		return fmt.Errorf("%w: %d", ErrPlayerExists, p.Id)
	}
	shape, err := physics.NewSphere(p.Radius)
	if err != nil {
		return fmt.Errorf("player %d collider: %w", p.Id, err)
	}
	h, err := w.phys.InsertCollider(physics.ColliderDesc{Shape: shape, Position: p.Position})
	if err != nil {
		return fmt.Errorf("player %d collider: %w", p.Id, err)
	}
	p.collider = h
	w.players[p.Id] = p
	return nil
}

// Adopt moves players from a world being replaced into this one, giving each
// a fresh collider at its last position. Ids keep increasing past the
// highest adopted id.
func (w *WorldState) Adopt(players []Player) error {
	for _, p := range players {
		p.collider = physics.ColliderHandle{}
		if err := w.insertPlayer(&p); err != nil {
			return err
		}
		w.lastId = max(w.lastId, p.Id)
	}
	return nil
}

func (w *WorldState) RemovePlayer(id uint64) error {
	p, ok := w.players[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPlayerNotFound, id)
	}
	delete(w.players, id)
	if err := w.phys.RemoveCollider(p.collider); err != nil {
		return fmt.Errorf("removing collider of player %d: %w", id, err)
	}
	return nil
}

// Step advances the physics by dt, kicks objects that entered a sensor and
// refreshes every object's pose.
func (w *WorldState) Step(dt float32) error {
	if err := w.phys.Step(dt); err != nil {
		return err
	}
	if err := w.triggerSensors(); err != nil {
		return err
	}
	for _, o := range w.objects {
		pose, err := w.phys.ColliderPose(o.collider)
		if err != nil {
			return fmt.Errorf("object %q: %w", o.Id, err)
		}
		o.Position = pose.Position
		o.Rotation = pose.Rotation
	}
	return nil
}

// triggerSensors applies a sensor's impulse to every object that started
// overlapping it. Players are swept kinematically and are never kicked.
func (w *WorldState) triggerSensors() error {
	for _, ev := range w.phys.SensorEvents() {
		sensor := w.objectByCollider(ev.Sensor)
		other := w.objectByCollider(ev.Other)
		if sensor == nil || other == nil || !sensor.sensor {
			continue
		}
		if err := w.phys.ApplyImpulse(other.body, sensor.impulse); err != nil {
			return fmt.Errorf("sensor %q: %w", sensor.Id, err)
		}
	}
	return nil
}

func (w *WorldState) objectByCollider(h physics.ColliderHandle) *Object {
	for _, o := range w.objects {
		if o.collider == h {
			return o
		}
	}
	return nil
}

// ApplyMovement sweeps a player toward its desired translation plus gravity,
// pushes whatever it hits, and then moves the camera after it.
func (w *WorldState) ApplyMovement(id uint64, sig wire.PlayerSignal) (Player, error) {
	p, ok := w.players[id]
	if !ok {
		return Player{}, fmt.Errorf("%w: %d", ErrPlayerNotFound, id)
	}
	if !sig.Valid() {
		return *p, ErrInvalidIntent
	}

	p.look(sig.DesiredRot)

	desired := mgl32.Vec3(sig.DesiredMov).Add(w.gravity.Mul(sig.DT))
	mv, err := w.phys.MoveShape(p.Radius, p.Position, desired, p.collider)
	if err != nil {
		return *p, err
	}
	if err := w.phys.SolveImpulses(p.Mass, mv.Collisions, sig.DT); err != nil {
		return *p, err
	}
	p.Position = p.Position.Add(mv.Translation)
	if err := w.phys.SetColliderTranslation(p.collider, p.Position); err != nil {
		return *p, err
	}

	cam, err := w.phys.MoveShape(cameraRadius, p.CameraPos, p.cameraAnchor().Sub(p.CameraPos), p.collider)
	if err != nil {
		return *p, err
	}
	p.CameraPos = p.CameraPos.Add(cam.Translation)
	p.CameraTarget = p.CameraPos.Add(p.Fwd)

	return *p, nil
}

// Snapshot builds the authoritative signal for one player: its own pose plus
// every player and object in the world.
func (w *WorldState) Snapshot(id uint64) (wire.ResponseSignal, error) {
	p, ok := w.players[id]
	if !ok {
		return wire.ResponseSignal{}, fmt.Errorf("%w: %d", ErrPlayerNotFound, id)
	}

	sig := p.signal()
	for _, pid := range w.PlayerIds() {
		sig.Players = append(sig.Players, w.players[pid].signal())
	}
	for _, o := range w.objects {
		sig.Objects = append(sig.Objects, o.network())
	}
	sig.Update()
	return sig, nil
}

func (w *WorldState) Player(id uint64) (Player, bool) {
	p, ok := w.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Players returns copies of every player ordered by id.
func (w *WorldState) Players() []Player {
	out := make([]Player, 0, len(w.players))
	for _, id := range w.PlayerIds() {
		out = append(out, *w.players[id])
	}
	return out
}

func (w *WorldState) PlayerIds() []uint64 {
	return slices.Sorted(maps.Keys(w.players))
}

func (w *WorldState) PlayerCount() int {
	return len(w.players)
}

func (w *WorldState) Objects() []Object {
	out := make([]Object, len(w.objects))
	for i, o := range w.objects {
		out[i] = *o
	}
	return out
}

// Close releases the physics world. Handles held by objects and players are
// invalid afterwards.
func (w *WorldState) Close() {
	w.phys.Close()
	w.objects = nil
	w.players = map[uint64]*Player{}
}
