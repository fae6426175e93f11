//go:build !linux

package media

import "fmt"

// NewSession creates a new platform-specific media session.
// Only MPRIS on Linux is supported; callers fall back to NoOpSession.
func NewSession() (Session, error) {
	return nil, fmt.Errorf("media session not supported on this platform")
}
