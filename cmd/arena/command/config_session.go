package command

import (
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pixil98/go-arena/internal/network"
	"github.com/pixil98/go-arena/internal/session"
	"github.com/pixil98/go-errors"
)

const (
	defaultIdleTimeout    = 5 * time.Minute
	defaultMaxPlayerLimit = 16
)

type SessionConfig struct {
	TickInterval     string      `json:"tick_interval"`
	IdleTimeout      string      `json:"idle_timeout"`
	HandshakeTimeout string      `json:"handshake_timeout"`
	JoinQueueSize    int         `json:"join_queue_size"`
	MaxPlayerLimit   int         `json:"max_player_limit"`
	Gravity          *[3]float32 `json:"gravity,omitempty"`
}

func (c *SessionConfig) validate() error {
	el := errors.NewErrorList()

	if c.TickInterval != "" {
		d, err := time.ParseDuration(c.TickInterval)
		if err != nil {
			el.Add(fmt.Errorf("parsing tick_interval: %w", err))
		} else if d <= 0 || d > time.Second {
			el.Add(fmt.Errorf("tick_interval must be positive and at most 1s"))
		}
	}
	if c.IdleTimeout != "" {
		d, err := time.ParseDuration(c.IdleTimeout)
		if err != nil {
			el.Add(fmt.Errorf("parsing idle_timeout: %w", err))
		} else if d < 0 {
			el.Add(fmt.Errorf("idle_timeout must not be negative"))
		}
	}
	if c.HandshakeTimeout != "" {
		d, err := time.ParseDuration(c.HandshakeTimeout)
		if err != nil {
			el.Add(fmt.Errorf("parsing handshake_timeout: %w", err))
		} else if d <= 0 {
			el.Add(fmt.Errorf("handshake_timeout must be positive"))
		}
	}
	if c.JoinQueueSize < 0 {
		el.Add(fmt.Errorf("join_queue_size must not be negative"))
	}
	if c.MaxPlayerLimit < 0 || c.MaxPlayerLimit > math.MaxUint8 {
		el.Add(fmt.Errorf("max_player_limit must be between 0 and %d", math.MaxUint8))
	}
	if c.Gravity != nil {
		for i, v := range c.Gravity {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				el.Add(fmt.Errorf("gravity[%d] must be finite", i))
			}
		}
	}

	return el.Err()
}

func (c *SessionConfig) gravity() mgl32.Vec3 {
	if c.Gravity == nil {
		return mgl32.Vec3{0, -9.81, 0}
	}
	return mgl32.Vec3(*c.Gravity)
}

func (c *SessionConfig) routerConfig() (network.Config, error) {
	cfg := network.Config{
		HandshakeTimeout: network.DefaultHandshakeTimeout,
		TickInterval:     session.DefaultTickInterval,
		IdleTimeout:      defaultIdleTimeout,
		JoinQueueSize:    c.JoinQueueSize,
		MaxPlayerLimit:   c.MaxPlayerLimit,
		Gravity:          c.gravity(),
	}
	if cfg.MaxPlayerLimit == 0 {
		cfg.MaxPlayerLimit = defaultMaxPlayerLimit
	}

	if c.TickInterval != "" {
		d, err := time.ParseDuration(c.TickInterval)
		if err != nil {
			return network.Config{}, fmt.Errorf("parsing tick_interval: %w", err)
		}
		cfg.TickInterval = d
	}
	if c.IdleTimeout != "" {
		d, err := time.ParseDuration(c.IdleTimeout)
		if err != nil {
			return network.Config{}, fmt.Errorf("parsing idle_timeout: %w", err)
		}
		cfg.IdleTimeout = d
	}
	if c.HandshakeTimeout != "" {
		d, err := time.ParseDuration(c.HandshakeTimeout)
		if err != nil {
			return network.Config{}, fmt.Errorf("parsing handshake_timeout: %w", err)
		}
		cfg.HandshakeTimeout = d
	}

	return cfg, nil
}
