package game

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pixil98/go-arena/internal/physics"
	"github.com/pixil98/go-arena/internal/wire"
	"github.com/pixil98/go-testutil"
)

func assertNear(t *testing.T, name string, got, exp mgl32.Vec3, tol float32) {
	t.Helper()
	for i := range got {
		if math.Abs(float64(got[i]-exp[i])) > float64(tol) {
			t.Errorf("%s = %v, expected %v (±%v)", name, got, exp, tol)
			return
		}
	}
}

func newTestWorld(opts ...WorldOpt) *WorldState {
	return NewWorldState(physics.NewWorld(physics.WithGravity(mgl32.Vec3{})), opts...)
}

func cuboid(t *testing.T, hx, hy, hz float32) physics.Shape {
	t.Helper()
	s, err := physics.NewCuboid(hx, hy, hz)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func TestWorldState_NewPlayer(t *testing.T) {
	w := newTestWorld()

	seen := map[uint64]bool{}
	for i := 0; i < 10; i++ {
		p, err := w.NewPlayer()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[p.Id] {
			t.Fatalf("duplicate id %d", p.Id)
		}
		seen[p.Id] = true
	}
	testutil.AssertEqual(t, "player count", w.PlayerCount(), 10)
	testutil.AssertEqual(t, "ids", w.PlayerIds(), []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

	// Removed ids are not handed out again.
	if err := w.RemovePlayer(10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := w.NewPlayer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "next id", p.Id, uint64(11))
}

func TestWorldState_RemovePlayer(t *testing.T) {
	tests := map[string]struct {
		remove uint64
		expErr error
		expIds []uint64
	}{
		"known player":   {remove: 1, expIds: []uint64{2}},
		"unknown player": {remove: 42, expErr: ErrPlayerNotFound, expIds: []uint64{1, 2}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := newTestWorld()
			_, _ = w.NewPlayer()
			_, _ = w.NewPlayer()

			err := w.RemovePlayer(tt.remove)
			if !errors.Is(err, tt.expErr) {
				t.Errorf("error = %v, expected %v", err, tt.expErr)
			}
			testutil.AssertEqual(t, "ids", w.PlayerIds(), tt.expIds)
		})
	}
}

func TestWorldState_ApplyMovement(t *testing.T) {
	tests := map[string]struct {
		scene  []SceneObject
		sig    wire.PlayerSignal
		expPos mgl32.Vec3
		expErr error
	}{
		"open space": {
			sig:    wire.PlayerSignal{DesiredMov: [3]float32{1, 0, 0}, DT: 0.016},
			expPos: mgl32.Vec3{1, -9.81 * 0.016, 0},
		},
		"standing on the floor": {
			scene: []SceneObject{{
				Name:     "floor",
				Body:     physics.BodyFixed,
				Position: mgl32.Vec3{0, -2.5, 0},
			}},
			sig:    wire.PlayerSignal{DesiredMov: [3]float32{1, 0, 0}, DT: 0.016},
			expPos: mgl32.Vec3{1, 0, 0},
		},
		"template speed leaves movement unscaled": {
			scene: []SceneObject{{
				Name:  PlayerObjectName,
				Speed: 3,
			}},
			sig:    wire.PlayerSignal{DesiredMov: [3]float32{1, 0, 0}, DT: 0.016},
			expPos: mgl32.Vec3{1, -9.81 * 0.016, 0},
		},
		"blocked by a wall": {
			scene: []SceneObject{{
				Name:     "wall",
				Body:     physics.BodyFixed,
				Position: mgl32.Vec3{5, 0, 0},
			}},
			sig:    wire.PlayerSignal{DesiredMov: [3]float32{10, 0, 0}, DT: 0.016},
			expPos: mgl32.Vec3{2.5, -9.81 * 0.016, 0},
		},
		"invalid dt": {
			sig:    wire.PlayerSignal{DesiredMov: [3]float32{1, 0, 0}},
			expErr: ErrInvalidIntent,
		},
		"non-finite movement": {
			sig:    wire.PlayerSignal{DesiredMov: [3]float32{float32(math.Inf(1)), 0, 0}, DT: 0.016},
			expErr: ErrInvalidIntent,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := newTestWorld()
			for i := range tt.scene {
				tt.scene[i].Shape = cuboid(t, 0.5, 0.5, 0.5)
				if tt.scene[i].Name == "floor" {
					tt.scene[i].Shape = cuboid(t, 50, 0.5, 50)
				}
			}
			if err := w.InitScene(tt.scene); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			p, err := w.NewPlayer()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got, err := w.ApplyMovement(p.Id, tt.sig)
			if tt.expErr != nil {
				if !errors.Is(err, tt.expErr) {
					t.Errorf("error = %v, expected %v", err, tt.expErr)
				}
				testutil.AssertEqual(t, "position unchanged", got.Position, p.Position)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assertNear(t, "position", got.Position, tt.expPos, 0.03)

			stored, _ := w.Player(p.Id)
			testutil.AssertEqual(t, "stored position", stored.Position, got.Position)
		})
	}
}

func TestWorldState_ApplyMovementUnknownPlayer(t *testing.T) {
	w := newTestWorld()
	_, err := w.ApplyMovement(7, wire.PlayerSignal{DT: 0.016})
	if !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("error = %v, expected %v", err, ErrPlayerNotFound)
	}
}

func TestWorldState_Look(t *testing.T) {
	tests := map[string]struct {
		rot      [2]float32
		expFwd   mgl32.Vec3
		expRight mgl32.Vec3
		expPitch float32
	}{
		"no rotation": {
			expFwd:   mgl32.Vec3{0, 0, 1},
			expRight: mgl32.Vec3{-1, 0, 0},
		},
		"quarter turn": {
			rot:      [2]float32{500 * math.Pi / 2, 0},
			expFwd:   mgl32.Vec3{1, 0, 0},
			expRight: mgl32.Vec3{0, 0, 1},
		},
		"pitch clamps": {
			rot:      [2]float32{0, 100000},
			expFwd:   mgl32.Vec3{0, -float32(math.Sin(1.5)), float32(math.Cos(1.5))},
			expRight: mgl32.Vec3{-float32(math.Cos(1.5)), 0, 0},
			expPitch: 1.5,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := newTestWorld(WithGravity(mgl32.Vec3{}))
			p, _ := w.NewPlayer()

			got, err := w.ApplyMovement(p.Id, wire.PlayerSignal{DesiredRot: tt.rot, DT: 0.016})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assertNear(t, "fwd", got.Fwd, tt.expFwd, 1e-4)
			assertNear(t, "right", got.Right, tt.expRight, 1e-4)
			testutil.AssertEqual(t, "pitch", got.Pitch, tt.expPitch)

			anchor := got.Position.Add(mgl32.Vec3{0, 5, 0}).Sub(got.Fwd.Mul(5))
			assertNear(t, "camera", got.CameraPos, anchor, 1e-3)
			assertNear(t, "camera target", got.CameraTarget, got.CameraPos.Add(got.Fwd), 1e-5)
		})
	}
}

// With no intents and no joins, stepping never moves players.
func TestWorldState_StepLeavesPlayersInPlace(t *testing.T) {
	w := NewWorldState(physics.NewWorld())
	a, _ := w.NewPlayer()
	b, _ := w.NewPlayer()

	for i := 0; i < 10; i++ {
		if err := w.Step(0.016); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	for _, p := range []*Player{a, b} {
		got, ok := w.Player(p.Id)
		if !ok {
			t.Fatalf("player %d missing", p.Id)
		}
		testutil.AssertEqual(t, "position", got.Position, p.Position)
	}
}

func TestWorldState_StepRefreshesObjects(t *testing.T) {
	w := NewWorldState(physics.NewWorld())
	obj, err := w.AddObject(SceneObject{
		Name:     "crate",
		Shape:    cuboid(t, 0.5, 0.5, 0.5),
		Body:     physics.BodyDynamic,
		Position: mgl32.Vec3{0, 10, 0},
		Material: physics.Material{Density: 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := w.Step(0.1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj.Position.Y() >= 10 {
		t.Errorf("object y = %v, expected it to fall", obj.Position.Y())
	}
	testutil.AssertEqual(t, "object count", len(w.Objects()), 1)
}

func TestWorldState_PushesDynamicObjects(t *testing.T) {
	w := newTestWorld(WithGravity(mgl32.Vec3{}))
	if err := w.InitScene([]SceneObject{{
		Name:     BallObjectName,
		Body:     physics.BodyDynamic,
		Position: mgl32.Vec3{5, 0, 0},
		Radius:   1,
		Material: physics.Material{Density: 1},
	}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ := w.NewPlayer()

	if _, err := w.ApplyMovement(p.Id, wire.PlayerSignal{DesiredMov: [3]float32{10, 0, 0}, DT: 0.016}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Step(0.016); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ball := w.Objects()[0]
	if ball.Position.X() <= 5 {
		t.Errorf("ball x = %v, expected it to be pushed", ball.Position.X())
	}
}

func TestWorldState_InitScene(t *testing.T) {
	tetra, err := physics.NewConvexHull([]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := map[string]struct {
		scene       []SceneObject
		expObjects  []string
		expTemplate PlayerTemplate
		expErr      string
	}{
		"player becomes template": {
			scene: []SceneObject{
				{Name: PlayerObjectName, Position: mgl32.Vec3{0, 3, 0}, Speed: 2},
				{Name: "rock", Shape: tetra},
			},
			expObjects:  []string{"rock"},
			expTemplate: PlayerTemplate{Position: mgl32.Vec3{0, 3, 0}, Radius: 2, Speed: 2, Mass: 100},
		},
		"ball uses radius": {
			scene:       []SceneObject{{Name: BallObjectName, Radius: 0.5, Shape: tetra}},
			expObjects:  []string{BallObjectName},
			expTemplate: DefaultPlayerTemplate(),
		},
		"ball without radius": {
			scene:  []SceneObject{{Name: BallObjectName}},
			expErr: `scene object "Ball"`,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := newTestWorld()
			err := w.InitScene(tt.scene)
			if tt.expErr != "" {
				testutil.AssertErrorContains(t, err, tt.expErr)
				var se *SceneError
				if !errors.As(err, &se) {
					t.Errorf("expected a SceneError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var ids []string
			for _, o := range w.Objects() {
				ids = append(ids, o.Id)
			}
			testutil.AssertEqual(t, "objects", ids, tt.expObjects)
			testutil.AssertEqual(t, "template", w.Template(), tt.expTemplate)
		})
	}
}

func TestWorldState_Snapshot(t *testing.T) {
	w := newTestWorld()
	if _, err := w.AddObject(SceneObject{Name: "floor", Shape: cuboid(t, 5, 0.5, 5), Position: mgl32.Vec3{0, -10, 0}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, _ := w.NewPlayer()
	_, _ = w.NewPlayer()

	sig, err := w.Snapshot(a.Id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "player count", sig.PlayerCount, uint32(2))
	testutil.AssertEqual(t, "object count", sig.ObjectCount, uint32(1))
	testutil.AssertEqual(t, "translation", sig.Translation, [3]float32(a.Position))
	testutil.AssertEqual(t, "object id", string(sig.Objects[0].Id), "floor")
	testutil.AssertEqual(t, "object rotation", sig.Objects[0].Rotation, [4]float32{0, 0, 0, 1})

	if _, err := sig.MarshalBinary(); err != nil {
		t.Errorf("snapshot does not encode: %v", err)
	}

	_, err = w.Snapshot(99)
	if !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("error = %v, expected %v", err, ErrPlayerNotFound)
	}
}

func TestWorldState_Adopt(t *testing.T) {
	old := newTestWorld()
	for i := 0; i < 3; i++ {
		_, _ = old.NewPlayer()
	}
	_ = old.RemovePlayer(2)
	players := old.Players()
	old.Close()

	w := newTestWorld()
	if err := w.Adopt(players); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "ids", w.PlayerIds(), []uint64{1, 3})

	p, err := w.NewPlayer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "next id", p.Id, uint64(4))

	// Adopted players get colliders in the new world.
	if _, err := w.ApplyMovement(1, wire.PlayerSignal{DT: 0.016}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := w.Adopt(players[:1]); !errors.Is(err, ErrPlayerExists) {
		t.Errorf("error = %v, expected %v", err, ErrPlayerExists)
	}
}

func TestWorldState_SensorKicksEnteringObjects(t *testing.T) {
	tests := map[string]struct {
		impulse mgl32.Vec3
		expRise bool
	}{
		"kicks entering object": {impulse: mgl32.Vec3{0, 10, 0}, expRise: true},
		"zero impulse":          {impulse: mgl32.Vec3{}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := newTestWorld(WithPlayerTemplate(PlayerTemplate{Position: mgl32.Vec3{0.7, 0, 0.7}, Radius: 0.25, Speed: 1, Mass: 100}))
			err := w.InitScene([]SceneObject{
				{
					Name:    "pad",
					Shape:   cuboid(t, 1, 0.25, 1),
					Body:    physics.BodyFixed,
					Sensor:  true,
					Impulse: tt.impulse,
				},
				{
					Name:     BallObjectName,
					Body:     physics.BodyDynamic,
					Position: mgl32.Vec3{0, 0.5, 0},
					Radius:   0.5,
					Material: physics.Material{Density: 1},
				},
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			// A player standing in the sensor is not an object and is left alone.
			if _, err := w.NewPlayer(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			for i := 0; i < 2; i++ {
				if err := w.Step(0.016); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}

			ball := w.Objects()[1]
			testutil.AssertEqual(t, "ball", ball.Id, BallObjectName)
			testutil.AssertEqual(t, "rose", ball.Position.Y() > 0.5, tt.expRise)
			if !tt.expRise {
				testutil.AssertEqual(t, "resting y", ball.Position.Y(), float32(0.5))
			}
		})
	}
}
