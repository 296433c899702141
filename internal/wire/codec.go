package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrShortBuffer   = errors.New("message truncated")
	ErrTrailingBytes = errors.New("trailing bytes after message")
	ErrCountMismatch = errors.New("sequence count does not match its length")
	ErrUnknownTag    = errors.New("unknown message tag")
	ErrTooDeep       = errors.New("nested signal depth exceeded")
)

// maxNesting bounds how deep ResponseSignal.Players may recurse on decode.
const maxNesting = 4

var byteOrder = binary.LittleEndian

type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) u32(v uint32) {
	e.buf = byteOrder.AppendUint32(e.buf, v)
}

func (e *encoder) f32(v float32) {
	e.u32(math.Float32bits(v))
}

func (e *encoder) floats(vs ...float32) {
	for _, v := range vs {
		e.f32(v)
	}
}

func (e *encoder) bytes(b []byte) {
	e.u32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// decoder reads sequentially from buf. The first failure sticks; callers
// check err once after reading a whole message.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || len(d.buf)-d.off < n {
		d.err = ErrShortBuffer
		return false
	}
	return true
}

func (d *decoder) u8() uint8 {
	if !d.need(1) {
		return 0
	}
	v := d.buf[d.off]
	d.off++
	return v
}

func (d *decoder) u32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := byteOrder.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

func (d *decoder) f32() float32 {
	return math.Float32frombits(d.u32())
}

func (d *decoder) vec3() [3]float32 {
	return [3]float32{d.f32(), d.f32(), d.f32()}
}

// bytes reads a length-prefixed field. An empty field decodes as an empty,
// non-nil slice.
func (d *decoder) bytes() []byte {
	n := d.u32()
	if !d.need(int(n)) {
		return nil
	}
	b := make([]byte, n)
	copy(b, d.buf[d.off:])
	d.off += int(n)
	return b
}

func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.buf) {
		return fmt.Errorf("%w: %d", ErrTrailingBytes, len(d.buf)-d.off)
	}
	return nil
}
