//go:build !windows

package infra

import "github.com/eliteGoblin/navpilot/internal/domain"

func newPlatform() (domain.Platform, error) {
	return nil, ErrUnsupportedPlatform
}

func newKeyEventSource() (domain.KeyEventSource, error) {
	return nil, ErrUnsupportedPlatform
}
