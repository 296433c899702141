package listener

import (
	"context"

	"github.com/pixil98/go-arena/internal/logging"
	"github.com/pixil98/go-arena/internal/wire"
)

// Handler serves one framed connection until it is done with it.
type Handler interface {
	HandleConnection(ctx context.Context, conn wire.FrameConn) error
}

type ConnectionManager struct {
	handler Handler
}

func NewConnectionManager(h Handler) *ConnectionManager {
	return &ConnectionManager{
		handler: h,
	}
}

// AcceptConnection hands conn to the handler and closes it afterwards, or
// as soon as ctx ends since frame reads do not observe ctx.
func (m *ConnectionManager) AcceptConnection(ctx context.Context, conn wire.FrameConn) {
	defer conn.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := m.handler.HandleConnection(ctx, conn); err != nil {
		logging.FromContext(ctx).Warnw("connection ended", "remote", conn.RemoteAddr(), "error", err)
	}
}
