package config

import (
	"errors"
	"fmt"
)

// Sentinel kinds for configuration errors.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config")
)

// NewInvalid reports an invalid configuration value.
func NewInvalid(detail string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, detail)
}

// WrapLoad annotates a load failure with the failing step.
func WrapLoad(step string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrLoadConfig, step, cause)
}
