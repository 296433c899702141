package messaging

import (
	"context"
	"fmt"

	"github.com/pixil98/go-arena/internal/logging"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	SubjectAdminClose = "arena.admin.close"
	SubjectAdminReset = "arena.admin.reset"
	SubjectAdminPlace = "arena.admin.place"
)

// SessionAdmin is what administrative commands act on.
type SessionAdmin interface {
	CloseSession(ctx context.Context, id string) error
	ResetSession(ctx context.Context, id string) error
	PlaceObject(ctx context.Context, id, object string, pos [3]float32) error
}

// PlaceCommand moves one object of one session's scene.
type PlaceCommand struct {
	Session  string     `msgpack:"session"`
	Object   string     `msgpack:"object"`
	Position [3]float32 `msgpack:"position"`
}

func (c PlaceCommand) Marshal() ([]byte, error) {
	return msgpack.Marshal(c)
}

func UnmarshalPlaceCommand(b []byte) (PlaceCommand, error) {
	var c PlaceCommand
	if err := msgpack.Unmarshal(b, &c); err != nil {
		return PlaceCommand{}, fmt.Errorf("decoding place command: %w", err)
	}
	return c, nil
}

// AdminSubscriber turns messages on the admin subjects into session
// commands. Close and reset carry the room id as payload, place carries a
// msgpack PlaceCommand.
type AdminSubscriber struct {
	server *NatsServer
	admin  SessionAdmin
}

func NewAdminSubscriber(server *NatsServer, admin SessionAdmin) *AdminSubscriber {
	return &AdminSubscriber{server: server, admin: admin}
}

func (a *AdminSubscriber) Start(ctx context.Context) error {
	if err := a.server.WaitReady(ctx); err != nil {
		return nil
	}

	handlers := map[string]func(context.Context, []byte) (string, error){
		SubjectAdminClose: func(ctx context.Context, data []byte) (string, error) {
			return string(data), a.admin.CloseSession(ctx, string(data))
		},
		SubjectAdminReset: func(ctx context.Context, data []byte) (string, error) {
			return string(data), a.admin.ResetSession(ctx, string(data))
		},
		SubjectAdminPlace: func(ctx context.Context, data []byte) (string, error) {
			cmd, err := UnmarshalPlaceCommand(data)
			if err != nil {
				return "", err
			}
			return cmd.Session, a.admin.PlaceObject(ctx, cmd.Session, cmd.Object, cmd.Position)
		},
	}

	for subject, fn := range handlers {
		unsub, err := a.server.Subscribe(subject, func(data []byte) {
			id, err := fn(ctx, data)
			if err != nil {
				logging.FromContext(ctx).Warnw("admin command failed", "subject", subject, "session", id, "error", err)
				return
			}
			logging.FromContext(ctx).Infow("admin command applied", "subject", subject, "session", id)
		})
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", subject, err)
		}
		defer unsub()
	}

	<-ctx.Done()
	return nil
}
