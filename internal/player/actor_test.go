package player

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pixil98/go-arena/internal/game"
	"github.com/pixil98/go-arena/internal/physics"
	"github.com/pixil98/go-arena/internal/session"
	"github.com/pixil98/go-arena/internal/wire"
	"github.com/pixil98/go-testutil"
)

// echoMember answers every intent with its desired movement as translation.
type echoMember struct {
	pending   chan wire.PlayerSignal
	submitErr error

	leaveOnce sync.Once
	left      chan struct{}
}

func newEchoMember() *echoMember {
	return &echoMember{
		pending: make(chan wire.PlayerSignal, 1),
		left:    make(chan struct{}),
	}
}

func (m *echoMember) Submit(_ context.Context, sig wire.PlayerSignal) error {
	if m.submitErr != nil {
		return m.submitErr
	}
	m.pending <- sig
	return nil
}

func (m *echoMember) Await(ctx context.Context) (wire.ResponseSignal, error) {
	select {
	case sig := <-m.pending:
		return wire.ResponseSignal{Translation: sig.DesiredMov}, nil
	case <-ctx.Done():
		return wire.ResponseSignal{}, ctx.Err()
	}
}

func (m *echoMember) Leave() {
	m.leaveOnce.Do(func() { close(m.left) })
}

func runActor(t *testing.T, ctx context.Context, m Member) (*wire.StreamConn, <-chan error) {
	t.Helper()
	server, client := net.Pipe()
	a := NewActor(1, wire.NewStreamConn(server, "pipe"), m)

	errs := make(chan error, 1)
	go func() { errs <- a.Run(ctx) }()
	t.Cleanup(func() { client.Close() })
	return wire.NewStreamConn(client, "client"), errs
}

func wait(t *testing.T, errs <-chan error) error {
	t.Helper()
	select {
	case err := <-errs:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("actor never stopped")
		return nil
	}
}

func assertLeft(t *testing.T, m *echoMember) {
	t.Helper()
	select {
	case <-m.left:
	case <-time.After(5 * time.Second):
		t.Fatal("actor never left the session")
	}
}

func TestActor_RelaysInOrder(t *testing.T) {
	m := newEchoMember()
	client, errs := runActor(t, context.Background(), m)

	for i := 1; i <= 3; i++ {
		sig := wire.PlayerSignal{DesiredMov: [3]float32{float32(i), 0, 0}, DT: 0.016}
		if err := wire.WriteMessage(client, sig); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var resp wire.ResponseSignal
		if err := wire.ReadMessage(client, &resp); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		testutil.AssertEqual(t, "translation", resp.Translation, [3]float32{float32(i), 0, 0})
	}

	client.Close()
	testutil.AssertEqual(t, "run", wait(t, errs), nil)
	assertLeft(t, m)
}

func TestActor_Disconnects(t *testing.T) {
	tests := map[string]struct {
		submitErr error
		frame     []byte
		expErr    string
	}{
		"undecodable frame": {
			frame:  []byte{1, 2, 3},
			expErr: "decoding player signal",
		},
		"session closed": {
			submitErr: session.ErrSessionClosed,
			frame:     mustMarshal(t, wire.PlayerSignal{DT: 0.016}),
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			m := newEchoMember()
			m.submitErr = tt.submitErr
			client, errs := runActor(t, context.Background(), m)

			if err := client.WriteFrame(tt.frame); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			err := wait(t, errs)
			if tt.expErr == "" {
				testutil.AssertEqual(t, "run", err, nil)
			} else {
				testutil.AssertErrorContains(t, err, tt.expErr)
			}
			assertLeft(t, m)

			// The server side is gone.
			if _, err := client.ReadFrame(); err == nil {
				t.Error("expected the connection to be closed")
			}
		})
	}
}

func TestActor_ContextCancel(t *testing.T) {
	m := newEchoMember()
	ctx, cancel := context.WithCancel(context.Background())
	_, errs := runActor(t, ctx, m)

	cancel()
	testutil.AssertEqual(t, "run", wait(t, errs), nil)
	assertLeft(t, m)
}

func TestActor_WithSession(t *testing.T) {
	w := game.NewWorldState(physics.NewWorld(physics.WithGravity(mgl32.Vec3{})), game.WithGravity(mgl32.Vec3{}))
	s := session.New(session.Config{Id: "room1", PlayerLimit: 2, TickInterval: time.Millisecond}, w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	adm, err := s.Join(ctx, nil)
	if err != nil || adm.Member == nil {
		t.Fatalf("join failed: %v %v", err, adm.Reason)
	}

	client, errs := runActor(t, ctx, adm.Member)
	sig := wire.PlayerSignal{DesiredMov: [3]float32{1, 0, 0}, DT: 0.016}
	if err := wire.WriteMessage(client, sig); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp wire.ResponseSignal
	if err := wire.ReadMessage(client, &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "translation", resp.Translation, [3]float32{1, 0, 0})
	testutil.AssertEqual(t, "players", resp.PlayerCount, uint32(1))

	client.Close()
	testutil.AssertEqual(t, "run", wait(t, errs), nil)
}

func mustMarshal(t *testing.T, sig wire.PlayerSignal) []byte {
	t.Helper()
	b, err := sig.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return b
}
