package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pixil98/go-arena/internal/logging"
	"github.com/pixil98/go-arena/internal/session"
	"github.com/pixil98/go-arena/internal/wire"
)

const (
	DefaultWebSocketPath = "/ws"

	shutdownTimeout = 5 * time.Second
)

var ErrTextMessage = errors.New("text messages are not supported")

type SessionLister interface {
	Sessions() []session.Info
}

// WebSocketListener serves game connections as binary websocket messages,
// one frame per message, next to a health check and a session listing.
type WebSocketListener struct {
	address string
	path    string
	cm      *ConnectionManager
	lister  SessionLister

	upgrader websocket.Upgrader
	wg       sync.WaitGroup

	addr  net.Addr
	ready chan struct{}
}

func NewWebSocketListener(address, path string, cm *ConnectionManager, lister SessionLister) *WebSocketListener {
	if path == "" {
		path = DefaultWebSocketPath
	}
	return &WebSocketListener{
		address: address,
		path:    path,
		cm:      cm,
		lister:  lister,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ready: make(chan struct{}),
	}
}

func (l *WebSocketListener) Start(ctx context.Context) error {
	log := logging.FromContext(ctx)

	listener, err := net.Listen("tcp", l.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", l.address, err)
	}
	l.addr = listener.Addr()
	close(l.ready)

	connCtx, cancelConns := context.WithCancel(context.WithoutCancel(ctx))
	srv := &http.Server{
		Handler:           l.routes(connCtx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Infow("listening for websocket", "address", l.addr.String(), "path", l.path)

	errs := make(chan error, 1)
	go func() { errs <- srv.Serve(listener) }()

	select {
	case err := <-errs:
		cancelConns()
		l.wg.Wait()
		return fmt.Errorf("serving websocket: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("shutting down websocket server", "error", err)
	}
	// Hijacked connections are not tracked by the http server.
	cancelConns()
	l.wg.Wait()
	return nil
}

func (l *WebSocketListener) WaitReady(ctx context.Context) error {
	select {
	case <-l.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *WebSocketListener) Addr() net.Addr {
	return l.addr
}

func (l *WebSocketListener) routes(ctx context.Context) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/sessions", l.listSessions).Methods(http.MethodGet)
	r.HandleFunc(l.path, func(w http.ResponseWriter, req *http.Request) {
		l.serveGame(ctx, w, req)
	}).Methods(http.MethodGet)
	return r
}

func (l *WebSocketListener) listSessions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(l.lister.Sessions()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (l *WebSocketListener) serveGame(ctx context.Context, w http.ResponseWriter, req *http.Request) {
	// Counted before the upgrade so Shutdown cannot miss it.
	l.wg.Add(1)
	defer l.wg.Done()

	ws, err := l.upgrader.Upgrade(w, req, nil)
	if err != nil {
		logging.FromContext(ctx).Warnw("websocket upgrade", "remote", req.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(wire.MaxFrameSize)

	l.cm.AcceptConnection(ctx, newWSConn(ws))
}

// wsConn maps one binary websocket message to one frame.
type wsConn struct {
	ws  *websocket.Conn
	wmu sync.Mutex
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	kind, p, err := c.ws.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	if kind != websocket.BinaryMessage {
		return nil, ErrTextMessage
	}
	return p, nil
}

func (c *wsConn) WriteFrame(p []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, p)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
