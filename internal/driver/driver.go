package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/pixil98/go-arena/internal/logging"
)

const (
	DefaultTickLength = time.Second * 10
)

// Ticker is anything that does periodic housekeeping.
type Ticker interface {
	Tick(context.Context) error
}

// Driver calls every Ticker once per tick. A failing Ticker stops the driver.
type Driver struct {
	tickLength time.Duration
	tickers    []Ticker
}

func NewDriver(tickers []Ticker, opts ...DriverOpt) *Driver {
	d := &Driver{
		tickLength: DefaultTickLength,
		tickers:    tickers,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *Driver) Start(ctx context.Context) error {
	logging.FromContext(ctx).Infow("driver running", "tick_length", d.tickLength)

	ticker := time.NewTicker(d.tickLength)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := d.Tick(ctx)
			if err != nil {
				return err
			}
		}
	}
}

func (d *Driver) Tick(ctx context.Context) error {
	for _, t := range d.tickers {
		if err := t.Tick(ctx); err != nil {
			return fmt.Errorf("ticking %T: %w", t, err)
		}
	}
	return nil
}
