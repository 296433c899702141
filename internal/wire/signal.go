package wire

import (
	"fmt"
	"math"
)

const (
	playerSignalSize   = 6 * 4
	networkObjectSize  = 7*4 + 4
	responseHeaderSize = 2*4 + 5*3*4
)

// PlayerSignal is one tick of client intent.
type PlayerSignal struct {
	DesiredMov [3]float32
	DesiredRot [2]float32
	DT         float32
}

// Valid reports whether every component is finite and dt is a usable step.
func (s PlayerSignal) Valid() bool {
	for _, v := range s.DesiredMov {
		if !finite(v) {
			return false
		}
	}
	for _, v := range s.DesiredRot {
		if !finite(v) {
			return false
		}
	}
	return finite(s.DT) && s.DT > 0 && s.DT <= 1
}

func (s PlayerSignal) MarshalBinary() ([]byte, error) {
	e := &encoder{buf: make([]byte, 0, playerSignalSize)}
	e.floats(s.DesiredMov[:]...)
	e.floats(s.DesiredRot[:]...)
	e.f32(s.DT)
	return e.buf, nil
}

func (s *PlayerSignal) UnmarshalBinary(b []byte) error {
	d := &decoder{buf: b}
	s.DesiredMov = d.vec3()
	s.DesiredRot = [2]float32{d.f32(), d.f32()}
	s.DT = d.f32()
	if err := d.finish(); err != nil {
		return fmt.Errorf("decoding player signal: %w", err)
	}
	return nil
}

// NetworkObject is a client-visible simulated entity.
type NetworkObject struct {
	Position [3]float32
	Rotation [4]float32
	Id       []byte
}

func (o NetworkObject) encode(e *encoder) {
	e.floats(o.Position[:]...)
	e.floats(o.Rotation[:]...)
	e.bytes(o.Id)
}

func (o *NetworkObject) decode(d *decoder) {
	o.Position = d.vec3()
	o.Rotation = [4]float32{d.f32(), d.f32(), d.f32(), d.f32()}
	o.Id = d.bytes()
}

// ResponseSignal is the authoritative per-tick snapshot for one player. The
// Players entries carry only the pose fields of the other avatars.
type ResponseSignal struct {
	PlayerCount  uint32
	ObjectCount  uint32
	Translation  [3]float32
	CameraPos    [3]float32
	CameraTarget [3]float32
	Fwd          [3]float32
	Right        [3]float32
	Players      []ResponseSignal
	Objects      []NetworkObject
}

// Update sets the redundant counts from the sequence lengths.
func (r *ResponseSignal) Update() {
	r.PlayerCount = uint32(len(r.Players))
	r.ObjectCount = uint32(len(r.Objects))
}

func (r ResponseSignal) MarshalBinary() ([]byte, error) {
	e := &encoder{buf: make([]byte, 0, responseHeaderSize+len(r.Objects)*networkObjectSize)}
	if err := r.encode(e); err != nil {
		return nil, err
	}
	return e.buf, nil
}

func (r *ResponseSignal) UnmarshalBinary(b []byte) error {
	d := &decoder{buf: b}
	r.decode(d, 0)
	if err := d.finish(); err != nil {
		return fmt.Errorf("decoding response signal: %w", err)
	}
	return nil
}

func (r ResponseSignal) encode(e *encoder) error {
	if int(r.PlayerCount) != len(r.Players) || int(r.ObjectCount) != len(r.Objects) {
		return fmt.Errorf("%w: players %d/%d objects %d/%d", ErrCountMismatch,
			r.PlayerCount, len(r.Players), r.ObjectCount, len(r.Objects))
	}
	e.u32(r.PlayerCount)
	e.u32(r.ObjectCount)
	e.floats(r.Translation[:]...)
	e.floats(r.CameraPos[:]...)
	e.floats(r.CameraTarget[:]...)
	e.floats(r.Fwd[:]...)
	e.floats(r.Right[:]...)
	for _, p := range r.Players {
		if err := p.encode(e); err != nil {
			return err
		}
	}
	for _, o := range r.Objects {
		o.encode(e)
	}
	return nil
}

func (r *ResponseSignal) decode(d *decoder, depth int) {
	if depth > maxNesting {
		if d.err == nil {
			d.err = ErrTooDeep
		}
		return
	}
	r.PlayerCount = d.u32()
	r.ObjectCount = d.u32()
	r.Translation = d.vec3()
	r.CameraPos = d.vec3()
	r.CameraTarget = d.vec3()
	r.Fwd = d.vec3()
	r.Right = d.vec3()
	if d.err != nil {
		return
	}

	// The counts were already consumed above; re-validate them against the
	// remaining input before allocating.
	if uint64(r.PlayerCount)*responseHeaderSize+uint64(r.ObjectCount)*networkObjectSize > uint64(len(d.buf)-d.off) {
		d.err = fmt.Errorf("%w: %d players, %d objects declared", ErrShortBuffer, r.PlayerCount, r.ObjectCount)
		return
	}

	r.Players = nil
	if r.PlayerCount > 0 {
		r.Players = make([]ResponseSignal, r.PlayerCount)
		for i := range r.Players {
			r.Players[i].decode(d, depth+1)
		}
	}
	r.Objects = nil
	if r.ObjectCount > 0 {
		r.Objects = make([]NetworkObject, r.ObjectCount)
		for i := range r.Objects {
			r.Objects[i].decode(d)
		}
	}
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
