package wire

import (
	"bufio"
	"encoding"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MaxFrameSize caps a single framed message.
const MaxFrameSize = 1 << 20

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// FrameConn carries whole messages. Stream transports prefix each frame with
// its length; message transports map one frame to one message.
type FrameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame([]byte) error
	Close() error
	RemoteAddr() string
}

// ReadFrame reads one u32 length header and then exactly that many bytes.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := byteOrder.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// WriteFrame writes p behind its length header in a single Write call.
func WriteFrame(w io.Writer, p []byte) error {
	if len(p) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(p))
	}
	buf := make([]byte, 4, 4+len(p))
	byteOrder.PutUint32(buf, uint32(len(p)))
	buf = append(buf, p...)
	_, err := w.Write(buf)
	return err
}

// StreamConn frames messages over a byte stream such as a TCP connection.
type StreamConn struct {
	rwc  io.ReadWriteCloser
	r    *bufio.Reader
	addr string

	wmu sync.Mutex
}

func NewStreamConn(rwc io.ReadWriteCloser, addr string) *StreamConn {
	return &StreamConn{
		rwc:  rwc,
		r:    bufio.NewReader(rwc),
		addr: addr,
	}
}

func (c *StreamConn) ReadFrame() ([]byte, error) {
	return ReadFrame(c.r)
}

func (c *StreamConn) WriteFrame(p []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteFrame(c.rwc, p)
}

func (c *StreamConn) Close() error {
	return c.rwc.Close()
}

func (c *StreamConn) RemoteAddr() string {
	return c.addr
}

// WriteMessage marshals m and writes it as one frame.
func WriteMessage(c FrameConn, m encoding.BinaryMarshaler) error {
	b, err := m.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return c.WriteFrame(b)
}

// ReadMessage reads one frame and decodes it into m.
func ReadMessage(c FrameConn, m encoding.BinaryUnmarshaler) error {
	b, err := c.ReadFrame()
	if err != nil {
		return err
	}
	return m.UnmarshalBinary(b)
}
