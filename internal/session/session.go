package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pixil98/go-arena/internal/game"
	"github.com/pixil98/go-arena/internal/logging"
	"github.com/pixil98/go-arena/internal/messaging"
	"github.com/pixil98/go-arena/internal/wire"
	"go.uber.org/zap"
)

const (
	DefaultTickInterval  = 16 * time.Millisecond
	DefaultJoinQueueSize = 16
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrAlreadyStarted = errors.New("session already started")
)

type State int32

const (
	StateCreated State = iota
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Config struct {
	Id          string
	Password    []byte
	PlayerLimit int

	TickInterval  time.Duration
	IdleTimeout   time.Duration
	JoinQueueSize int
}

type joinRequest struct {
	password []byte
	reply    chan Admission
}

type intent struct {
	player uint64
	signal wire.PlayerSignal
}

// Admission is the outcome of a join. Member is nil when Reason is set.
type Admission struct {
	Member   *Member
	Snapshot wire.ResponseSignal
	Reason   wire.Reason
}

// Session is one room. Its World State is touched only by the goroutine
// running Start; everything else talks to it through bounded mailboxes.
type Session struct {
	cfg       Config
	publisher messaging.Publisher
	onClose   func(*Session)

	state   atomic.Int32
	metrics Metrics

	joins   chan joinRequest
	leaves  chan uint64
	intents chan intent
	replace chan *game.WorldState

	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	termOnce  sync.Once

	// Owned by the tick goroutine.
	world      *game.WorldState
	members    map[uint64]*Member
	carry      []intent
	emptySince time.Time
	log        *zap.SugaredLogger
}

type Opt func(*Session)

func WithPublisher(p messaging.Publisher) Opt {
	return func(s *Session) {
		s.publisher = p
	}
}

// WithOnClose registers a callback run once the session has terminated.
func WithOnClose(fn func(*Session)) Opt {
	return func(s *Session) {
		s.onClose = fn
	}
}

func New(cfg Config, world *game.WorldState, opts ...Opt) *Session {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.JoinQueueSize <= 0 {
		cfg.JoinQueueSize = DefaultJoinQueueSize
	}
	limit := max(cfg.PlayerLimit, 1)

	s := &Session{
		cfg:       cfg,
		publisher: messaging.NopPublisher{},
		joins:     make(chan joinRequest, cfg.JoinQueueSize),
		leaves:    make(chan uint64, limit),
		intents:   make(chan intent, limit),
		replace:   make(chan *game.WorldState, 1),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
		world:     world,
		members:   map[uint64]*Member{},
		log:       zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Id() string { return s.cfg.Id }

func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session has terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Metrics() map[string]int64 { return s.metrics.Snapshot() }

type Info struct {
	Id          string           `json:"id"`
	State       string           `json:"state"`
	Players     int64            `json:"players"`
	PlayerLimit int              `json:"player_limit"`
	Metrics     map[string]int64 `json:"metrics"`
}

func (s *Session) Info() Info {
	return Info{
		Id:          s.cfg.Id,
		State:       s.State().String(),
		Players:     s.metrics.players.Load(),
		PlayerLimit: s.cfg.PlayerLimit,
		Metrics:     s.metrics.Snapshot(),
	}
}

// Start runs the tick loop until ctx ends, Close is called, or the room has
// been empty for the idle timeout.
func (s *Session) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	ctx = logging.With(ctx, "session", s.cfg.Id)
	s.log = logging.FromContext(ctx)
	defer s.terminate(ctx)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.log.Infow("session running", "player_limit", s.cfg.PlayerLimit, "tick_interval", s.cfg.TickInterval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.closing:
			return nil
		case now := <-ticker.C:
			if s.tick(ctx, now) {
				s.log.Infow("reaping idle session", "idle_timeout", s.cfg.IdleTimeout)
				return nil
			}
		}
	}
}

// Close asks the tick loop to stop. A session that never started terminates
// immediately.
func (s *Session) Close() {
	if s.state.CompareAndSwap(int32(StateCreated), int32(StateTerminated)) {
		s.terminate(context.Background())
		return
	}
	s.closeOnce.Do(func() { close(s.closing) })
}

// Join queues a join request and waits for the tick that decides it. A full
// join queue is answered with SessionFull straight away.
func (s *Session) Join(ctx context.Context, password []byte) (Admission, error) {
	select {
	case <-s.done:
		return Admission{}, ErrSessionClosed
	default:
	}

	req := joinRequest{password: password, reply: make(chan Admission, 1)}
	select {
	case s.joins <- req:
	default:
		s.metrics.joinsRejected.Add(1)
		return Admission{Reason: wire.ReasonSessionFull}, nil
	}

	select {
	case a := <-req.reply:
		return a, nil
	case <-s.done:
		return Admission{}, ErrSessionClosed
	case <-ctx.Done():
		// Nobody will run an avatar admitted from here on.
		go func() {
			select {
			case a := <-req.reply:
				if a.Member != nil {
					a.Member.Leave()
				}
			case <-s.done:
			}
		}()
		return Admission{}, ctx.Err()
	}
}

// ReplaceWorld hands the tick loop a new world. Current players are moved
// into it at the start of the next tick and the old world is closed.
func (s *Session) ReplaceWorld(ctx context.Context, w *game.WorldState) error {
	select {
	case s.replace <- w:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tick runs one simulation step and reports whether the session should be
// reaped.
func (s *Session) tick(ctx context.Context, now time.Time) bool {
	start := time.Now()

	s.applyReplacement()
	admitted := s.drainJoins(ctx)
	s.drainLeaves(ctx)
	batch := s.dequeueIntents()

	if err := s.world.Step(float32(s.cfg.TickInterval.Seconds())); err != nil {
		s.log.Errorw("stepping world", "error", err)
	}

	for _, in := range batch {
		_, err := s.world.ApplyMovement(in.player, in.signal)
		switch {
		case err == nil:
			s.metrics.intentsApplied.Add(1)
		case errors.Is(err, game.ErrInvalidIntent):
			s.metrics.intentsDropped.Add(1)
			s.log.Warnw("dropping intent", "player", in.player, "error", err)
		default:
			s.metrics.intentsDropped.Add(1)
			s.log.Errorw("applying movement", "player", in.player, "error", err)
		}
	}

	for _, in := range batch {
		s.respond(s.members[in.player])
	}
	for _, a := range admitted {
		s.admit(a)
	}

	s.metrics.players.Store(int64(len(s.members)))
	s.metrics.addTick(time.Since(start))

	return s.idle(now)
}

func (s *Session) applyReplacement() {
	select {
	case w := <-s.replace:
		if err := w.Adopt(s.world.Players()); err != nil {
			s.log.Errorw("adopting players into replacement world", "error", err)
			w.Close()
			return
		}
		s.world.Close()
		s.world = w
		s.log.Infow("world replaced", "players", w.PlayerCount())
	default:
	}
}

type pendingJoin struct {
	member *Member
	reply  chan Admission
}

func (s *Session) drainJoins(ctx context.Context) []pendingJoin {
	var admitted []pendingJoin
	for {
		select {
		case req := <-s.joins:
			if subtle.ConstantTimeCompare(req.password, s.cfg.Password) != 1 {
				s.metrics.joinsRejected.Add(1)
				s.log.Warnw("join rejected", "reason", wire.ReasonWrongPassword)
				req.reply <- Admission{Reason: wire.ReasonWrongPassword}
				continue
			}
			if s.cfg.PlayerLimit > 0 && len(s.members) >= s.cfg.PlayerLimit {
				s.metrics.joinsRejected.Add(1)
				s.log.Warnw("join rejected", "reason", wire.ReasonSessionFull)
				req.reply <- Admission{Reason: wire.ReasonSessionFull}
				continue
			}

			p, err := s.world.NewPlayer()
			if err != nil {
				s.metrics.joinsRejected.Add(1)
				s.log.Errorw("creating player", "error", err)
				req.reply <- Admission{Reason: wire.ReasonSessionFull}
				continue
			}

			m := &Member{Id: p.Id, s: s, replies: make(chan wire.ResponseSignal, 1)}
			s.members[p.Id] = m
			s.metrics.joinsAccepted.Add(1)
			s.log.Infow("player joined", "player", p.Id, "players", len(s.members))
			s.publish(ctx, messaging.EventPlayerJoined, p.Id)
			admitted = append(admitted, pendingJoin{member: m, reply: req.reply})
		default:
			return admitted
		}
	}
}

func (s *Session) drainLeaves(ctx context.Context) {
	for {
		select {
		case id := <-s.leaves:
			if _, ok := s.members[id]; !ok {
				s.log.Errorw("leave from unknown player", "player", id)
				continue
			}
			delete(s.members, id)
			if err := s.world.RemovePlayer(id); err != nil {
				s.log.Errorw("removing player", "player", id, "error", err)
			}
			s.log.Infow("player left", "player", id, "players", len(s.members))
			s.publish(ctx, messaging.EventPlayerLeft, id)
		default:
			return
		}
	}
}

// dequeueIntents takes at most one intent per player. Extra intents carry
// over to later ticks in arrival order.
func (s *Session) dequeueIntents() []intent {
	pending := s.carry
	s.carry = nil
	for more := true; more; {
		select {
		case in := <-s.intents:
			pending = append(pending, in)
		default:
			more = false
		}
	}

	var batch []intent
	seen := map[uint64]bool{}
	for _, in := range pending {
		if _, ok := s.members[in.player]; !ok {
			continue
		}
		if seen[in.player] {
			s.carry = append(s.carry, in)
			continue
		}
		seen[in.player] = true
		batch = append(batch, in)
	}
	return batch
}

func (s *Session) respond(m *Member) {
	sig, err := s.world.Snapshot(m.Id)
	if err != nil {
		s.log.Errorw("building snapshot", "player", m.Id, "error", err)
		return
	}
	select {
	case m.replies <- sig:
	default:
		s.log.Errorw("reply mailbox full", "player", m.Id)
	}
}

func (s *Session) admit(p pendingJoin) {
	sig, err := s.world.Snapshot(p.member.Id)
	if err != nil {
		s.log.Errorw("building snapshot", "player", p.member.Id, "error", err)
	}
	p.reply <- Admission{Member: p.member, Snapshot: sig}
}

func (s *Session) idle(now time.Time) bool {
	if len(s.members) > 0 || s.cfg.IdleTimeout <= 0 {
		s.emptySince = time.Time{}
		return false
	}
	if s.emptySince.IsZero() {
		s.emptySince = now
		return false
	}
	return now.Sub(s.emptySince) >= s.cfg.IdleTimeout
}

func (s *Session) terminate(ctx context.Context) {
	s.termOnce.Do(func() {
		s.state.Store(int32(StateTerminated))
		close(s.done)

		select {
		case w := <-s.replace:
			w.Close()
		default:
		}
		s.world.Close()
		s.members = nil
		s.metrics.players.Store(0)

		s.log.Infow("session terminated")
		s.publish(ctx, messaging.EventTerminated, 0)
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

func (s *Session) publish(ctx context.Context, kind messaging.EventKind, player uint64) {
	ev := messaging.NewEvent(kind, s.cfg.Id)
	ev.PlayerId = player
	ev.Players = len(s.members)
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warnw("publishing event", "kind", kind, "error", err)
	}
}

// Member is an admitted player's handle on the session.
type Member struct {
	Id      uint64
	s       *Session
	replies chan wire.ResponseSignal
}

// Submit hands one intent to the tick loop. Callers keep at most one intent
// in flight and wait for its reply with Await.
func (m *Member) Submit(ctx context.Context, sig wire.PlayerSignal) error {
	select {
	case m.s.intents <- intent{player: m.Id, signal: sig}:
		return nil
	case <-m.s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Await blocks until the tick that consumed the last intent has answered.
func (m *Member) Await(ctx context.Context) (wire.ResponseSignal, error) {
	select {
	case sig := <-m.replies:
		return sig, nil
	case <-m.s.done:
		return wire.ResponseSignal{}, ErrSessionClosed
	case <-ctx.Done():
		return wire.ResponseSignal{}, ctx.Err()
	}
}

// Leave asks the tick loop to drop the player. It never blocks on a
// terminated session.
func (m *Member) Leave() {
	select {
	case m.s.leaves <- m.Id:
	case <-m.s.done:
	}
}
