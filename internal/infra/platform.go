package infra

import "github.com/eliteGoblin/navpilot/internal/domain"

// NewPlatform returns the input, window and clipboard adapter for the
// running OS, or ErrUnsupportedPlatform.
func NewPlatform() (domain.Platform, error) {
	return newPlatform()
}

// NewKeyEventSource returns the system-wide keyboard subscription for the
// running OS, or ErrUnsupportedPlatform.
func NewKeyEventSource() (domain.KeyEventSource, error) {
	return newKeyEventSource()
}
