package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// Penetration tolerated before a contact blocks motion.
	skin = 0.01

	maxSlides      = 4
	searchSteps    = 10
	minTranslation = 1e-5
)

// Collision is a collider touched by a sweep, with the contact normal facing
// the moving shape and the part of the motion the collider absorbed.
type Collision struct {
	Collider  ColliderHandle
	Normal    mgl32.Vec3
	Remaining mgl32.Vec3
}

type Movement struct {
	Translation mgl32.Vec3
	Collisions  []Collision
}

type blocker struct {
	handle ColliderHandle
	normal mgl32.Vec3
}

// MoveShape sweeps a sphere from a position toward a desired translation and
// returns the largest translation that does not push it into any collider.
// Blocked motion slides along the blocking surface. The excluded collider,
// typically the mover's own, is ignored.
func (w *World) MoveShape(radius float32, from, desired mgl32.Vec3, exclude ColliderHandle) (Movement, error) {
	if w.closed {
		return Movement{}, ErrWorldClosed
	}

	var mv Movement
	pos := from
	remaining := desired
	for i := 0; i < maxSlides && remaining.Len() > minTranslation; i++ {
		t, hit, ok := w.castSphere(radius, pos, remaining, exclude)
		if !ok {
			pos = pos.Add(remaining)
			break
		}

		pos = pos.Add(remaining.Mul(t))
		left := remaining.Mul(1 - t)
		mv.Collisions = append(mv.Collisions, Collision{
			Collider:  hit.handle,
			Normal:    hit.normal,
			Remaining: left,
		})
		remaining = left.Sub(hit.normal.Mul(left.Dot(hit.normal)))
	}
	mv.Translation = pos.Sub(from)
	return mv, nil
}

// castSphere finds the fraction of motion that can be travelled before the
// sphere is blocked. The motion is sampled at most half a radius apart and the
// first blocked sample is refined by bisection.
func (w *World) castSphere(radius float32, from, motion mgl32.Vec3, exclude ColliderHandle) (float32, blocker, bool) {
	samples := int(math.Ceil(float64(motion.Len() / (radius / 2))))
	samples = max(samples, 1)

	var lo float32
	for k := 1; k <= samples; k++ {
		hi := float32(k) / float32(samples)
		b, blocked := w.blocking(radius, from.Add(motion.Mul(hi)), motion, exclude)
		if !blocked {
			lo = hi
			continue
		}
		for range searchSteps {
			mid := (lo + hi) / 2
			if nb, blocked := w.blocking(radius, from.Add(motion.Mul(mid)), motion, exclude); blocked {
				hi = mid
				b = nb
			} else {
				lo = mid
			}
		}
		return lo, b, true
	}
	return 1, blocker{}, false
}

// blocking reports the deepest contact at pos that the motion drives further
// into.
func (w *World) blocking(radius float32, pos, motion mgl32.Vec3, exclude ColliderHandle) (blocker, bool) {
	ball := geom{sphere: true, center: pos, radius: radius}

	var best blocker
	var bestDepth float32
	w.colliders.each(func(index, gen uint32, c *collider) {
		h := ColliderHandle{world: w.id, index: index, gen: gen}
		if c.desc.Sensor || h == exclude {
			return
		}
		p := w.pose(c)
		n, depth := contact(ball, c.desc.Shape.place(p.Position, p.Rotation))
		if depth <= skin || motion.Dot(n) >= 0 {
			return
		}
		if depth > bestDepth {
			bestDepth = depth
			best = blocker{handle: h, normal: n}
		}
	})
	return best, bestDepth > 0
}

// SolveImpulses pushes dynamic bodies hit during a sweep. Each one receives
// the momentum of the blocked motion of a mover of the given mass.
func (w *World) SolveImpulses(mass float32, collisions []Collision, dt float32) error {
	if w.closed {
		return ErrWorldClosed
	}
	if !(dt > 0) {
		return nil
	}
	for _, col := range collisions {
		c, err := w.collider(col.Collider)
		if err != nil {
			return err
		}
		if c.parent.IsZero() {
			continue
		}
		into := -col.Remaining.Dot(col.Normal)
		if into <= 0 {
			continue
		}
		impulse := col.Normal.Mul(-into / dt * mass)
		if err := w.ApplyImpulse(c.parent, impulse); err != nil {
			return err
		}
	}
	return nil
}
