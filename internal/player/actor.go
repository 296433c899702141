package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"github.com/pixil98/go-arena/internal/logging"
	"github.com/pixil98/go-arena/internal/session"
	"github.com/pixil98/go-arena/internal/wire"
)

// Member is the actor's view of its seat in a session.
type Member interface {
	Submit(ctx context.Context, sig wire.PlayerSignal) error
	Await(ctx context.Context) (wire.ResponseSignal, error)
	Leave()
}

type State int32

const (
	StateAwaitInput State = iota
	StateSubmit
	StateAwait
	StateEmit
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateAwaitInput:
		return "await_input"
	case StateSubmit:
		return "submit"
	case StateAwait:
		return "await"
	case StateEmit:
		return "emit"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Actor relays one client's intents to its session and writes back the
// authoritative snapshot for each, never more than one in flight.
type Actor struct {
	id     uint64
	conn   wire.FrameConn
	member Member
	state  atomic.Int32
}

func NewActor(id uint64, conn wire.FrameConn, m Member) *Actor {
	return &Actor{
		id:     id,
		conn:   conn,
		member: m,
	}
}

func (a *Actor) State() State { return State(a.state.Load()) }

// Run drives the actor until the client goes away, the session ends, or ctx
// is cancelled. Those count as a clean disconnect and return nil. The player
// always leaves the session and the connection is always closed.
func (a *Actor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	log := logging.FromContext(ctx).With("player", a.id, "remote", a.conn.RemoteAddr())

	// Reads don't observe ctx. Closing the connection unblocks them.
	go func() {
		<-ctx.Done()
		_ = a.conn.Close()
	}()

	var (
		sig  wire.PlayerSignal
		resp wire.ResponseSignal
		err  error
	)
	for {
		switch a.State() {
		case StateAwaitInput:
			if err = wire.ReadMessage(a.conn, &sig); err != nil {
				a.set(StateDisconnecting)
				continue
			}
			a.set(StateSubmit)

		case StateSubmit:
			if err = a.member.Submit(ctx, sig); err != nil {
				a.set(StateDisconnecting)
				continue
			}
			a.set(StateAwait)

		case StateAwait:
			if resp, err = a.member.Await(ctx); err != nil {
				a.set(StateDisconnecting)
				continue
			}
			a.set(StateEmit)

		case StateEmit:
			if err = wire.WriteMessage(a.conn, resp); err != nil {
				err = fmt.Errorf("writing response: %w", err)
				a.set(StateDisconnecting)
				continue
			}
			a.set(StateAwaitInput)

		case StateDisconnecting:
			a.member.Leave()
			_ = a.conn.Close()
			if clean(ctx, err) {
				log.Infow("player disconnected")
				return nil
			}
			log.Warnw("player dropped", "error", err)
			return err
		}
	}
}

func (a *Actor) set(s State) {
	a.state.Store(int32(s))
}

func clean(ctx context.Context, err error) bool {
	return err == nil ||
		ctx.Err() != nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, session.ErrSessionClosed)
}
