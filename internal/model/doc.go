// Package model defines the value types shared by the connection handle,
// the greeter and the frame journal.
//
// Conventions:
//   - Payloads: raw bytes, no envelope or schema
//   - Timestamps: time.Time in memory, int64 microseconds since Unix epoch in storage
//   - IDs: uuid.UUID for connections and frames
package model
