package messaging

import (
	"context"
	"fmt"
)

// Publisher delivers session events to whoever is listening.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Bus interface {
	Publish(subject string, data []byte) error
}

// EventPublisher encodes events with msgpack and publishes them on a bus.
type EventPublisher struct {
	bus Bus
}

func NewEventPublisher(bus Bus) *EventPublisher {
	return &EventPublisher{bus: bus}
}

func (p *EventPublisher) Publish(_ context.Context, ev Event) error {
	data, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Kind, err)
	}
	if err := p.bus.Publish(ev.Subject(), data); err != nil {
		return fmt.Errorf("publishing %s: %w", ev.Subject(), err)
	}
	return nil
}

// NopPublisher drops every event. It stands in when NATS is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
