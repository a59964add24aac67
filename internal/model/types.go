package model

import (
	"time"

	"github.com/google/uuid"
)

// Direction tells whether a frame was received or sent.
type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// Frame is one discrete message unit carried over a connection.
type Frame struct {
	ID        uuid.UUID // Unique per frame
	ConnID    uuid.UUID // Handle that carried the frame
	Seq       int64     // 1-based arrival (or send) order within its direction
	Direction Direction // Inbound or Outbound
	Data      []byte    // Payload exactly as on the wire
	At        time.Time // Local receive or send time
}

// NewFrame stamps a payload with a fresh ID and the current time.
func NewFrame(connID uuid.UUID, dir Direction, seq int64, data []byte) Frame {
	return Frame{
		ID:        uuid.New(),
		ConnID:    connID,
		Seq:       seq,
		Direction: dir,
		Data:      data,
		At:        time.Now(),
	}
}

// Text returns the payload as a string.
func (f Frame) Text() string {
	return string(f.Data)
}

// AtMicros returns At as microseconds since the Unix epoch.
func (f Frame) AtMicros() int64 {
	return f.At.UnixMicro()
}
