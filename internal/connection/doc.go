// Package connection implements the Connection Handle.
//
// A Handle owns exactly one outbound WebSocket connection to an address
// fixed at construction. It:
//   - Dials once; a Handle is never reused or reconnected
//   - Moves through connecting -> open -> closed, or connecting -> failed
//   - Delivers open, message, close and error events to registered handlers
//   - Runs every handler on a single dispatch goroutine, in event order
//   - Serializes outbound text frames
package connection
