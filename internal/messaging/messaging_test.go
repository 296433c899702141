package messaging

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/pixil98/go-testutil"
)

func TestEvent_RoundTrip(t *testing.T) {
	tests := map[string]struct {
		ev Event
	}{
		"joined": {
			ev: Event{Id: "a", Kind: EventPlayerJoined, SessionId: "room1", PlayerId: 7, Players: 2},
		},
		"report": {
			ev: Event{Id: "b", Kind: EventReport, SessionId: "room1", Metrics: map[string]int64{"ticks": 40}},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			tt.ev.At = time.Unix(1700000000, 0).UTC()
			b, err := tt.ev.Marshal()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, err := UnmarshalEvent(b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.AssertEqual(t, "event", got, tt.ev)
		})
	}
}

func TestUnmarshalEvent_Garbage(t *testing.T) {
	_, err := UnmarshalEvent([]byte{0xc1})
	testutil.AssertErrorContains(t, err, "decoding event")
}

func TestPlaceCommand(t *testing.T) {
	cmd := PlaceCommand{Session: "room1", Object: "Ball", Position: [3]float32{1, 0.5, -2}}
	b, err := cmd.Marshal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := UnmarshalPlaceCommand(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "command", got, cmd)

	_, err = UnmarshalPlaceCommand([]byte{0xc1})
	testutil.AssertErrorContains(t, err, "decoding place command")
}

func TestNewEvent(t *testing.T) {
	a := NewEvent(EventCreated, "room1")
	b := NewEvent(EventCreated, "room1")
	if a.Id == "" || a.Id == b.Id {
		t.Errorf("event ids %q and %q should be unique", a.Id, b.Id)
	}
	testutil.AssertEqual(t, "subject", a.Subject(), "arena.session.room1.created")
}

type recordingBus struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (b *recordingBus) Publish(subject string, data []byte) error {
	if b.err != nil {
		return b.err
	}
	b.subjects = append(b.subjects, subject)
	b.payloads = append(b.payloads, data)
	return nil
}

func TestEventPublisher(t *testing.T) {
	bus := &recordingBus{}
	p := NewEventPublisher(bus)

	ev := NewEvent(EventPlayerLeft, "room1")
	ev.PlayerId = 3
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "subjects", bus.subjects, []string{"arena.session.room1.player_left"})

	got, err := UnmarshalEvent(bus.payloads[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "player", got.PlayerId, uint64(3))

	bus.err = errors.New("connection closed")
	err = p.Publish(context.Background(), ev)
	testutil.AssertErrorContains(t, err, "publishing arena.session.room1.player_left")

	testutil.AssertEqual(t, "nop", NopPublisher{}.Publish(context.Background(), ev), nil)
}

type recordingAdmin struct {
	closed chan string
	reset  chan string
	placed chan string
}

func (a *recordingAdmin) CloseSession(_ context.Context, id string) error {
	select {
	case a.closed <- id:
	default:
	}
	return nil
}

func (a *recordingAdmin) ResetSession(_ context.Context, id string) error {
	select {
	case a.reset <- id:
	default:
	}
	return nil
}

func (a *recordingAdmin) PlaceObject(_ context.Context, id, object string, pos [3]float32) error {
	select {
	case a.placed <- fmt.Sprintf("%s/%s@%v", id, object, pos):
	default:
	}
	return nil
}

// publishUntil republishes until the subscriber reports the message.
// Subscriptions are registered asynchronously, so early messages may be lost.
func publishUntil(t *testing.T, ns *NatsServer, subject, payload string, got <-chan string) string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		_ = ns.Publish(subject, []byte(payload))
		_ = ns.Flush()
		select {
		case id := <-got:
			return id
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatalf("%s was never delivered", subject)
		}
	}
}

func TestAdminSubscriber(t *testing.T) {
	ns, err := NewNatsServer(WithPort(server.RANDOM_PORT), WithStartTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverDone := make(chan error, 1)
	go func() { serverDone <- ns.Start(ctx) }()
	if err := ns.WaitReady(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	admin := &recordingAdmin{closed: make(chan string, 16), reset: make(chan string, 16), placed: make(chan string, 16)}
	sub := NewAdminSubscriber(ns, admin)
	subCtx, stopSub := context.WithCancel(ctx)
	subDone := make(chan error, 1)
	go func() { subDone <- sub.Start(subCtx) }()

	testutil.AssertEqual(t, "closed", publishUntil(t, ns, SubjectAdminClose, "room1", admin.closed), "room1")
	testutil.AssertEqual(t, "reset", publishUntil(t, ns, SubjectAdminReset, "room2", admin.reset), "room2")

	place, err := PlaceCommand{Session: "room3", Object: "crate", Position: [3]float32{1, 2, 3}}.Marshal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "placed", publishUntil(t, ns, SubjectAdminPlace, string(place), admin.placed), "room3/crate@[1 2 3]")

	stopSub()
	testutil.AssertEqual(t, "subscriber exit", <-subDone, nil)

	cancel()
	testutil.AssertEqual(t, "server exit", <-serverDone, nil)
}
