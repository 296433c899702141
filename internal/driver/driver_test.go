package driver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
)

type countingTicker struct {
	n   atomic.Int32
	err error
}

func (c *countingTicker) Tick(context.Context) error {
	c.n.Add(1)
	return c.err
}

func TestDriver_Tick(t *testing.T) {
	tests := map[string]struct {
		firstErr  error
		expErr    string
		expSecond int32
	}{
		"all tick": {
			expSecond: 1,
		},
		"first fails": {
			firstErr:  errors.New("boom"),
			expErr:    "boom",
			expSecond: 0,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			first := &countingTicker{err: tt.firstErr}
			second := &countingTicker{}
			d := NewDriver([]Ticker{first, second})

			err := d.Tick(context.Background())
			if tt.expErr == "" {
				testutil.AssertEqual(t, "err", err, nil)
			} else {
				testutil.AssertErrorContains(t, err, tt.expErr)
			}
			testutil.AssertEqual(t, "first", first.n.Load(), int32(1))
			testutil.AssertEqual(t, "second", second.n.Load(), tt.expSecond)
		})
	}
}

func TestDriver_Start(t *testing.T) {
	c := &countingTicker{}
	d := NewDriver([]Ticker{c}, WithTickLength(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for c.n.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("driver never ticked")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	testutil.AssertEqual(t, "start", <-done, nil)
}

func TestDriver_StartStopsOnError(t *testing.T) {
	c := &countingTicker{err: errors.New("report failed")}
	d := NewDriver([]Ticker{c}, WithTickLength(time.Millisecond))

	err := d.Start(context.Background())
	testutil.AssertErrorContains(t, err, "report failed")
}
