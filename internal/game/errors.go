package game

import (
	"errors"
	"fmt"
)

var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrPlayerExists   = errors.New("player already exists")
	ErrInvalidIntent  = errors.New("invalid movement intent")
)

// SceneError reports an object the physics engine refused to create.
type SceneError struct {
	Object string
	Err    error
}

func (e *SceneError) Error() string {
	return fmt.Sprintf("scene object %q: %v", e.Object, e.Err)
}

func (e *SceneError) Unwrap() error {
	return e.Err
}
