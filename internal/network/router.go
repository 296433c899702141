package network

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/brunoga/deep"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/pixil98/go-arena/internal/game"
	"github.com/pixil98/go-arena/internal/logging"
	"github.com/pixil98/go-arena/internal/messaging"
	"github.com/pixil98/go-arena/internal/player"
	"github.com/pixil98/go-arena/internal/scene"
	"github.com/pixil98/go-arena/internal/session"
	"github.com/pixil98/go-arena/internal/wire"
	"github.com/sasha-s/go-deadlock"
)

const (
	MaxIdLength       = 64
	MaxPasswordLength = 64

	DefaultHandshakeTimeout = 10 * time.Second
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrRouterClosed   = errors.New("router closed")

	idPattern = regexp.MustCompile(fmt.Sprintf(`^[a-zA-Z0-9_-]{1,%d}$`, MaxIdLength))
)

type Config struct {
	// HandshakeTimeout bounds the wait for a connection's control message.
	HandshakeTimeout time.Duration

	TickInterval   time.Duration
	IdleTimeout    time.Duration
	JoinQueueSize  int
	MaxPlayerLimit int
	Gravity        mgl32.Vec3
}

// Router owns the routing table from room id to running session and turns
// each new connection's control message into a session and a player actor.
type Router struct {
	scene     *scene.Scene
	cfg       Config
	publisher messaging.Publisher

	mu     deadlock.RWMutex
	rooms  map[string]*room
	closed bool
	wg     sync.WaitGroup
}

// room is a routing table entry. Each session owns a private copy of the
// base scene that admin placements edit and resets rebuild from.
type room struct {
	session *session.Session
	scene   *scene.Scene
}

func NewRouter(sc *scene.Scene, cfg Config, opts ...RouterOpt) *Router {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	r := &Router{
		scene:     sc,
		cfg:       cfg,
		publisher: messaging.NopPublisher{},
		rooms:     map[string]*room{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start blocks until ctx is done and then shuts every session down.
func (r *Router) Start(ctx context.Context) error {
	<-ctx.Done()

	r.mu.Lock()
	r.closed = true
	open := make([]*session.Session, 0, len(r.rooms))
	for _, rm := range r.rooms {
		open = append(open, rm.session)
	}
	r.mu.Unlock()

	for _, s := range open {
		s.Close()
	}
	r.wg.Wait()
	return nil
}

// HandleConnection reads the control message that opens every connection
// and serves it. Protocol rejections are answered on the connection and are
// not errors.
func (r *Router) HandleConnection(ctx context.Context, conn wire.FrameConn) error {
	defer conn.Close()
	// Sessions outlive the connection that created them.
	sessCtx := context.WithoutCancel(ctx)
	ctx = logging.With(ctx, "conn", uuid.NewString(), "remote", conn.RemoteAddr())
	log := logging.FromContext(ctx)

	// A client that never sends its control message loses the connection.
	timer := time.AfterFunc(r.cfg.HandshakeTimeout, func() { _ = conn.Close() })
	var req wire.ServerRequest
	err := wire.ReadMessage(conn, &req)
	if !timer.Stop() {
		log.Warnw("control message timed out", "timeout", r.cfg.HandshakeTimeout)
		return nil
	}
	if err != nil {
		log.Warnw("rejecting control message", "error", err)
		return reply(conn, wire.ServerResponse{Reason: wire.ReasonInvalidRequestFormat})
	}

	switch {
	case req.NewSession != nil:
		return r.newSession(ctx, sessCtx, conn, *req.NewSession)
	case req.JoinSession != nil:
		return r.joinSession(ctx, conn, *req.JoinSession)
	default:
		return reply(conn, wire.ServerResponse{Reason: wire.ReasonInvalidRequestFormat})
	}
}

func (r *Router) newSession(ctx, sessCtx context.Context, conn wire.FrameConn, req wire.NewSessionRequest) error {
	id := string(req.Id)
	log := logging.FromContext(ctx).With("session", id)

	if reason := r.validateNew(req); reason != wire.ReasonNone {
		log.Warnw("rejecting new session", "reason", reason)
		return reply(conn, wire.ServerResponse{Reason: reason})
	}
	if r.lookup(id) != nil {
		log.Warnw("rejecting new session", "reason", wire.ReasonIdInUse)
		return reply(conn, wire.ServerResponse{Reason: wire.ReasonIdInUse})
	}

	sc, err := deep.Copy(r.scene)
	if err != nil {
		log.Errorw("copying base scene", "error", err)
		_ = reply(conn, wire.ServerResponse{Reason: wire.ReasonInvalidRequestFormat})
		return fmt.Errorf("copying base scene: %w", err)
	}
	w, err := sc.Build(r.cfg.Gravity)
	if err != nil {
		log.Errorw("building world", "error", err)
		_ = reply(conn, wire.ServerResponse{Reason: wire.ReasonInvalidRequestFormat})
		return err
	}

	s := session.New(session.Config{
		Id:            id,
		Password:      req.Password,
		PlayerLimit:   int(req.PlayerLimit),
		TickInterval:  r.cfg.TickInterval,
		IdleTimeout:   r.cfg.IdleTimeout,
		JoinQueueSize: r.cfg.JoinQueueSize,
	}, w, session.WithPublisher(r.publisher), session.WithOnClose(r.unregister))

	if err := r.register(s, sc); err != nil {
		w.Close()
		if errors.Is(err, ErrRouterClosed) {
			return err
		}
		log.Warnw("rejecting new session", "reason", wire.ReasonIdInUse)
		return reply(conn, wire.ServerResponse{Reason: wire.ReasonIdInUse})
	}

	go func() {
		defer r.wg.Done()
		if err := s.Start(sessCtx); err != nil {
			log.Errorw("session stopped", "error", err)
		}
	}()
	log.Infow("session created", "player_limit", req.PlayerLimit)
	if err := r.publisher.Publish(ctx, messaging.NewEvent(messaging.EventCreated, id)); err != nil {
		log.Warnw("publishing event", "kind", messaging.EventCreated, "error", err)
	}

	adm, err := s.Join(ctx, req.Password)
	if err != nil {
		return fmt.Errorf("joining creator to %s: %w", id, err)
	}
	if adm.Member == nil {
		return reply(conn, wire.ServerResponse{Reason: adm.Reason})
	}

	if err := reply(conn, wire.ServerResponse{Ok: &adm.Snapshot}); err != nil {
		adm.Member.Leave()
		return err
	}
	return player.NewActor(adm.Member.Id, conn, adm.Member).Run(ctx)
}

func (r *Router) joinSession(ctx context.Context, conn wire.FrameConn, req wire.JoinSessionRequest) error {
	id := string(req.Id)
	log := logging.FromContext(ctx).With("session", id)

	if !idPattern.MatchString(id) {
		log.Warnw("rejecting join", "reason", wire.ReasonInvalidIdFormat)
		return reply(conn, wire.JoinResponse{Reason: wire.ReasonInvalidIdFormat})
	}

	s := r.lookup(id)
	if s == nil {
		log.Warnw("rejecting join", "reason", wire.ReasonIdDoesntExist)
		return reply(conn, wire.JoinResponse{Reason: wire.ReasonIdDoesntExist})
	}

	adm, err := s.Join(ctx, req.Password)
	switch {
	case errors.Is(err, session.ErrSessionClosed):
		log.Warnw("rejecting join", "reason", wire.ReasonIdDoesntExist)
		return reply(conn, wire.JoinResponse{Reason: wire.ReasonIdDoesntExist})
	case err != nil:
		return fmt.Errorf("joining %s: %w", id, err)
	case adm.Member == nil:
		return reply(conn, wire.JoinResponse{Reason: adm.Reason})
	}

	if err := reply(conn, wire.JoinResponse{}); err != nil {
		adm.Member.Leave()
		return err
	}
	return player.NewActor(adm.Member.Id, conn, adm.Member).Run(ctx)
}

func (r *Router) validateNew(req wire.NewSessionRequest) wire.Reason {
	switch {
	case !idPattern.MatchString(string(req.Id)):
		return wire.ReasonInvalidIdFormat
	case len(req.Password) > MaxPasswordLength || !utf8.Valid(req.Password):
		return wire.ReasonInvalidPassword
	case req.PlayerLimit == 0:
		return wire.ReasonInvalidRequestFormat
	case r.cfg.MaxPlayerLimit > 0 && int(req.PlayerLimit) > r.cfg.MaxPlayerLimit:
		return wire.ReasonInvalidRequestFormat
	}
	return wire.ReasonNone
}

func (r *Router) lookup(id string) *session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rm, ok := r.rooms[id]; ok {
		return rm.session
	}
	return nil
}

// register adds s and its scene to the routing table and counts it toward
// shutdown.
func (r *Router) register(s *session.Session, sc *scene.Scene) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRouterClosed
	}
	if _, ok := r.rooms[s.Id()]; ok {
		return wire.ReasonIdInUse
	}
	r.rooms[s.Id()] = &room{session: s, scene: sc}
	r.wg.Add(1)
	return nil
}

func (r *Router) unregister(s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[s.Id()]; ok && rm.session == s {
		delete(r.rooms, s.Id())
	}
}

// CloseSession terminates a running session. Its players are disconnected
// at their next read.
func (r *Router) CloseSession(ctx context.Context, id string) error {
	s := r.lookup(id)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	logging.FromContext(ctx).Infow("closing session", "session", id)
	s.Close()
	return nil
}

// ResetSession rebuilds a session's world from its scene. Connected players
// carry over into the new world.
func (r *Router) ResetSession(ctx context.Context, id string) error {
	r.mu.RLock()
	rm, ok := r.rooms[id]
	var w *game.WorldState
	var err error
	if ok {
		w, err = rm.scene.Build(r.cfg.Gravity)
	}
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if err != nil {
		return fmt.Errorf("resetting %s: %w", id, err)
	}
	if err := rm.session.ReplaceWorld(ctx, w); err != nil {
		w.Close()
		return fmt.Errorf("resetting %s: %w", id, err)
	}
	logging.FromContext(ctx).Infow("session reset queued", "session", id)
	return nil
}

// PlaceObject moves an object in one session's scene and resets that
// session so the move takes effect. The base scene and every other session
// are left alone.
func (r *Router) PlaceObject(ctx context.Context, id, object string, pos [3]float32) error {
	r.mu.Lock()
	rm, ok := r.rooms[id]
	var err error
	if ok {
		err = rm.scene.Place(object, pos)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if err != nil {
		return fmt.Errorf("placing %s in %s: %w", object, id, err)
	}
	return r.ResetSession(ctx, id)
}

// Sessions lists the routing table ordered by id.
func (r *Router) Sessions() []session.Info {
	r.mu.RLock()
	infos := make([]session.Info, 0, len(r.rooms))
	for _, rm := range r.rooms {
		infos = append(infos, rm.session.Info())
	}
	r.mu.RUnlock()

	slices.SortFunc(infos, func(a, b session.Info) int {
		return strings.Compare(a.Id, b.Id)
	})
	return infos
}

// Tick logs and publishes a metrics report for every session.
func (r *Router) Tick(ctx context.Context) error {
	log := logging.FromContext(ctx)
	for _, info := range r.Sessions() {
		log.Infow("session report", "session", info.Id, "state", info.State, "players", info.Players, "metrics", info.Metrics)

		ev := messaging.NewEvent(messaging.EventReport, info.Id)
		ev.Players = int(info.Players)
		ev.Metrics = info.Metrics
		if err := r.publisher.Publish(ctx, ev); err != nil {
			log.Warnw("publishing report", "session", info.Id, "error", err)
		}
	}
	return nil
}

func reply(conn wire.FrameConn, m encoding.BinaryMarshaler) error {
	if err := wire.WriteMessage(conn, m); err != nil {
		return fmt.Errorf("writing reply: %w", err)
	}
	return nil
}
