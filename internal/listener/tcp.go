package listener

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pixil98/go-arena/internal/logging"
	"github.com/pixil98/go-arena/internal/wire"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// TCPListener accepts length-prefixed framed connections.
type TCPListener struct {
	address string
	cm      *ConnectionManager

	addr  net.Addr
	ready chan struct{}
}

func NewTCPListener(address string, cm *ConnectionManager) *TCPListener {
	return &TCPListener{
		address: address,
		cm:      cm,
		ready:   make(chan struct{}),
	}
}

func (l *TCPListener) Start(ctx context.Context) error {
	log := logging.FromContext(ctx)

	listener, err := net.Listen("tcp", l.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", l.address, err)
	}
	l.addr = listener.Addr()
	close(l.ready)

	log.Infow("listening for tcp", "address", l.addr.String())
	return l.serve(ctx, listener)
}

func (l *TCPListener) serve(ctx context.Context, listener net.Listener) error {
	log := logging.FromContext(ctx)
	connCtx, cancelConns := context.WithCancel(context.WithoutCancel(ctx))
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	var delay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				cancelConns()
				wg.Wait()
				return nil
			default:
			}
			delay = acceptDelay(delay)
			log.Errorw("accepting tcp connection", "error", err, "retry_in", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		delay = 0

		wg.Add(1)
		go func() {
			defer wg.Done()
			l.cm.AcceptConnection(connCtx, wire.NewStreamConn(conn, conn.RemoteAddr().String()))
		}()
	}
}

// WaitReady blocks until the listener is bound.
func (l *TCPListener) WaitReady(ctx context.Context) error {
	select {
	case <-l.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr is the bound address. It is only set once WaitReady has returned.
func (l *TCPListener) Addr() net.Addr {
	return l.addr
}

// acceptDelay doubles the wait after each consecutive accept failure.
func acceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptDelay
	}
	return min(prev*2, maxAcceptDelay)
}
