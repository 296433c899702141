package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
)

const defaultReportInterval = 30 * time.Second

type Config struct {
	ReportInterval string           `json:"report_interval"`
	Listeners      []ListenerConfig `json:"listeners"`
	Scene          SceneConfig      `json:"scene"`
	Sessions       SessionConfig    `json:"sessions"`
	Nats           NatsConfig       `json:"nats"`
	Logging        LoggingConfig    `json:"logging"`
}

func (c *Config) Validate() error {
	el := errors.NewErrorList()

	if c.ReportInterval != "" {
		d, err := time.ParseDuration(c.ReportInterval)
		if err != nil {
			el.Add(fmt.Errorf("parsing report_interval: %w", err))
		} else if d < time.Second {
			el.Add(fmt.Errorf("report_interval must be at least 1 second"))
		}
	}

	if len(c.Listeners) == 0 {
		el.Add(fmt.Errorf("at least one listener is required"))
	}
	for i, l := range c.Listeners {
		err := l.validate()
		if err != nil {
			el.Add(fmt.Errorf("listener %d: %w", i, err))
		}
	}

	el.Add(c.Scene.validate())
	el.Add(c.Sessions.validate())
	el.Add(c.Nats.validate())
	el.Add(c.Logging.validate())

	return el.Err()
}

func (c *Config) reportInterval() time.Duration {
	d, err := time.ParseDuration(c.ReportInterval)
	if err != nil || c.ReportInterval == "" {
		return defaultReportInterval
	}
	return d
}
