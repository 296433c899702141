package command

import (
	"fmt"

	"github.com/pixil98/go-arena/internal/scene"
	"github.com/pixil98/go-errors"
)

type SceneConfig struct {
	Path string `json:"path"`
}

func (c *SceneConfig) validate() error {
	el := errors.NewErrorList()

	if c.Path == "" {
		el.Add(fmt.Errorf("scene path is required"))
	}

	return el.Err()
}

// loadScene reads the base scene and builds it once so a broken scene stops
// startup instead of failing every session.
func (c *SceneConfig) loadScene(sessions *SessionConfig) (*scene.Scene, error) {
	sc, err := scene.Load(c.Path)
	if err != nil {
		return nil, err
	}

	w, err := sc.Build(sessions.gravity())
	if err != nil {
		return nil, fmt.Errorf("building scene %s: %w", c.Path, err)
	}
	w.Close()

	return sc, nil
}
