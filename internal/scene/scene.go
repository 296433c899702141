package scene

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pixil98/go-arena/internal/game"
	"github.com/pixil98/go-arena/internal/physics"
	"github.com/pixil98/go-arena/internal/storage"
)

var ErrUnknownObject = errors.New("unknown scene object")

type Entry struct {
	Name string
	Spec ObjectSpec
}

// Scene is the base description every session world is built from.
type Scene struct {
	Entries []Entry
}

// Load reads every object asset below path. Entries are ordered by name so
// worlds built from the same directory are identical.
func Load(path string) (*Scene, error) {
	store, err := storage.NewFileStore[*ObjectSpec](path)
	if err != nil {
		return nil, fmt.Errorf("loading scene %s: %w", path, err)
	}
	return FromStore(store), nil
}

func FromStore(st storage.Storer[*ObjectSpec]) *Scene {
	s := &Scene{}
	for _, id := range st.Ids() {
		s.Entries = append(s.Entries, Entry{Name: id, Spec: *st.Get(id)})
	}
	return s
}

func (s *Scene) Objects() ([]game.SceneObject, error) {
	objs := make([]game.SceneObject, 0, len(s.Entries))
	for _, e := range s.Entries {
		o, err := e.Spec.SceneObject(e.Name)
		if err != nil {
			return nil, err
		}
		objs = append(objs, o)
	}
	return objs, nil
}

// Build creates a fresh physics world and populates a world state from the
// scene. Any object the physics engine rejects aborts the build.
func (s *Scene) Build(gravity mgl32.Vec3) (*game.WorldState, error) {
	objs, err := s.Objects()
	if err != nil {
		return nil, err
	}

	phys := physics.NewWorld(physics.WithGravity(gravity))
	w := game.NewWorldState(phys, game.WithGravity(gravity))
	if err := w.InitScene(objs); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// Place moves the named entry. Worlds already built from the scene keep
// their objects where they were.
func (s *Scene) Place(name string, pos [3]float32) error {
	for i, v := range pos {
		if !finite(v) {
			return fmt.Errorf("position[%d] must be finite", i)
		}
	}
	for i := range s.Entries {
		if s.Entries[i].Name == name {
			s.Entries[i].Spec.Position = pos
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownObject, name)
}
