package command

import (
	"fmt"

	"github.com/pixil98/go-arena/internal/logging"
	"github.com/pixil98/go-errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggingConfig struct {
	Level      string `json:"level"`
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
}

func (c *LoggingConfig) validate() error {
	el := errors.NewErrorList()

	if c.Level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
			el.Add(fmt.Errorf("parsing level: %w", err))
		}
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		el.Add(fmt.Errorf("log rotation settings must not be negative"))
	}

	return el.Err()
}

func (c *LoggingConfig) buildLogger() (*zap.SugaredLogger, error) {
	return logging.New(c.Level, logging.FileOptions{
		Path:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
	})
}
