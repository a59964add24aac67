package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyOpened = errors.New("already opened")
	ErrAlreadyClosed = errors.New("already closed")
)

// State is the lifecycle state of a Handle.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config configures a Handle.
type Config struct {
	URL              string        // WebSocket URL (e.g., ws://127.0.0.1:5050)
	HandshakeTimeout time.Duration // Max time for the opening handshake
	WriteTimeout     time.Duration // Write deadline for sends (0 = none)
	PingInterval     time.Duration // Keepalive ping interval (0 = disabled)
	ReadLimit        int64         // Max inbound frame size in bytes (0 = unlimited)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:              "ws://127.0.0.1:5050",
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}
