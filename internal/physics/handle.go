package physics

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	ErrWorldClosed   = errors.New("physics world closed")
	ErrForeignHandle = errors.New("handle belongs to another physics world")
	ErrStaleHandle   = errors.New("handle no longer refers to a live entry")
)

var worldIds atomic.Uint32

// BodyHandle and ColliderHandle are arena indices stamped with the id of the
// world that issued them. The zero value is never valid.
type BodyHandle struct {
	world uint32
	index uint32
	gen   uint32
}

type ColliderHandle struct {
	world uint32
	index uint32
	gen   uint32
}

func (h BodyHandle) IsZero() bool     { return h.world == 0 }
func (h ColliderHandle) IsZero() bool { return h.world == 0 }

func (h BodyHandle) String() string {
	return fmt.Sprintf("body(%d:%d.%d)", h.world, h.index, h.gen)
}

func (h ColliderHandle) String() string {
	return fmt.Sprintf("collider(%d:%d.%d)", h.world, h.index, h.gen)
}

type slot[T any] struct {
	gen  uint32
	live bool
	val  T
}

// arena stores values in reusable slots. Reusing a slot bumps its generation
// so handles to the old occupant stop resolving.
type arena[T any] struct {
	slots []slot[T]
	free  []uint32
}

func (a *arena[T]) insert(v T) (index, gen uint32) {
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[index]
		s.gen++
		s.live = true
		s.val = v
		return index, s.gen
	}
	a.slots = append(a.slots, slot[T]{gen: 1, live: true, val: v})
	return uint32(len(a.slots) - 1), 1
}

func (a *arena[T]) get(index, gen uint32) (*T, bool) {
	if int(index) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[index]
	if !s.live || s.gen != gen {
		return nil, false
	}
	return &s.val, true
}

func (a *arena[T]) remove(index, gen uint32) bool {
	if _, ok := a.get(index, gen); !ok {
		return false
	}
	s := &a.slots[index]
	s.live = false
	var zero T
	s.val = zero
	a.free = append(a.free, index)
	return true
}

func (a *arena[T]) each(fn func(index, gen uint32, v *T)) {
	for i := range a.slots {
		s := &a.slots[i]
		if s.live {
			fn(uint32(i), s.gen, &s.val)
		}
	}
}

func (a *arena[T]) len() int {
	return len(a.slots) - len(a.free)
}
