package physics

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

var ErrDegenerateShape = errors.New("degenerate shape")

type ShapeKind int

const (
	ShapeSphere ShapeKind = iota
	ShapeCuboid
	ShapeConvexHull
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeSphere:
		return "sphere"
	case ShapeCuboid:
		return "cuboid"
	case ShapeConvexHull:
		return "convex_hull"
	default:
		return fmt.Sprintf("shape(%d)", int(k))
	}
}

// Shape is collision geometry in collider-local space. Cuboids and hulls
// collide as axis-aligned boxes; orientation is reported but not simulated.
type Shape struct {
	Kind        ShapeKind
	Radius      float32
	HalfExtents mgl32.Vec3
	Points      []mgl32.Vec3

	// local bounding box of a hull
	center mgl32.Vec3
}

func NewSphere(radius float32) (Shape, error) {
	if !(radius > 0) {
		return Shape{}, fmt.Errorf("%w: sphere radius %v", ErrDegenerateShape, radius)
	}
	return Shape{Kind: ShapeSphere, Radius: radius}, nil
}

func NewCuboid(hx, hy, hz float32) (Shape, error) {
	if !(hx > 0 && hy > 0 && hz > 0) {
		return Shape{}, fmt.Errorf("%w: cuboid half extents %v %v %v", ErrDegenerateShape, hx, hy, hz)
	}
	return Shape{Kind: ShapeCuboid, HalfExtents: mgl32.Vec3{hx, hy, hz}}, nil
}

// NewConvexHull accepts a point cloud that spans a volume: at least four
// points, not all on one plane.
func NewConvexHull(points []mgl32.Vec3) (Shape, error) {
	if !spansVolume(points) {
		return Shape{}, fmt.Errorf("%w: convex hull of %d points has no volume", ErrDegenerateShape, len(points))
	}

	lo, hi := points[0], points[0]
	for _, p := range points[1:] {
		for i := 0; i < 3; i++ {
			lo[i] = min(lo[i], p[i])
			hi[i] = max(hi[i], p[i])
		}
	}

	pts := make([]mgl32.Vec3, len(points))
	copy(pts, points)
	return Shape{
		Kind:        ShapeConvexHull,
		Points:      pts,
		HalfExtents: hi.Sub(lo).Mul(0.5),
		center:      lo.Add(hi).Mul(0.5),
	}, nil
}

const volumeEpsilon = 1e-6

func spansVolume(points []mgl32.Vec3) bool {
	if len(points) < 4 {
		return false
	}
	p0 := points[0]

	var p1 mgl32.Vec3
	i := 1
	for ; i < len(points); i++ {
		if points[i].Sub(p0).Len() > volumeEpsilon {
			p1 = points[i]
			break
		}
	}
	if i == len(points) {
		return false
	}

	var n mgl32.Vec3
	for i++; i < len(points); i++ {
		n = p1.Sub(p0).Cross(points[i].Sub(p0))
		if n.Len() > volumeEpsilon {
			break
		}
	}
	if i >= len(points) {
		return false
	}

	for i++; i < len(points); i++ {
		if float32(math.Abs(float64(n.Dot(points[i].Sub(p0))))) > volumeEpsilon {
			return true
		}
	}
	return false
}

func (s Shape) volume() float32 {
	switch s.Kind {
	case ShapeSphere:
		return 4.0 / 3.0 * math.Pi * s.Radius * s.Radius * s.Radius
	default:
		return 8 * s.HalfExtents[0] * s.HalfExtents[1] * s.HalfExtents[2]
	}
}

// geom is a shape placed in world space.
type geom struct {
	sphere bool
	center mgl32.Vec3
	radius float32
	half   mgl32.Vec3
}

func (s Shape) place(pos mgl32.Vec3, rot mgl32.Quat) geom {
	switch s.Kind {
	case ShapeSphere:
		return geom{sphere: true, center: pos, radius: s.Radius}
	default:
		return geom{center: pos.Add(rot.Rotate(s.center)), half: s.HalfExtents}
	}
}

// contact returns the direction to push a out of b and the depth of the
// overlap. A non-positive depth means the shapes are apart.
func contact(a, b geom) (mgl32.Vec3, float32) {
	switch {
	case a.sphere && b.sphere:
		d := a.center.Sub(b.center)
		dist := d.Len()
		if dist < volumeEpsilon {
			return mgl32.Vec3{0, 1, 0}, a.radius + b.radius
		}
		return d.Mul(1 / dist), a.radius + b.radius - dist
	case a.sphere:
		return sphereBox(a, b)
	case b.sphere:
		n, depth := sphereBox(b, a)
		return n.Mul(-1), depth
	default:
		return boxBox(a, b)
	}
}

func sphereBox(s, b geom) (mgl32.Vec3, float32) {
	lo := b.center.Sub(b.half)
	hi := b.center.Add(b.half)
	var q mgl32.Vec3
	for i := 0; i < 3; i++ {
		q[i] = mgl32.Clamp(s.center[i], lo[i], hi[i])
	}
	d := s.center.Sub(q)
	dist := d.Len()
	if dist > volumeEpsilon {
		return d.Mul(1 / dist), s.radius - dist
	}

	// Center inside the box: leave through the nearest face.
	best := float32(math.MaxFloat32)
	var n mgl32.Vec3
	for i := 0; i < 3; i++ {
		if toHi := hi[i] - s.center[i]; toHi < best {
			best = toHi
			n = mgl32.Vec3{}
			n[i] = 1
		}
		if toLo := s.center[i] - lo[i]; toLo < best {
			best = toLo
			n = mgl32.Vec3{}
			n[i] = -1
		}
	}
	return n, s.radius + best
}

func boxBox(a, b geom) (mgl32.Vec3, float32) {
	d := a.center.Sub(b.center)
	best := float32(math.MaxFloat32)
	var n mgl32.Vec3
	for i := 0; i < 3; i++ {
		overlap := a.half[i] + b.half[i] - float32(math.Abs(float64(d[i])))
		if overlap < best {
			best = overlap
			n = mgl32.Vec3{}
			if d[i] < 0 {
				n[i] = -1
			} else {
				n[i] = 1
			}
		}
	}
	return n, best
}
