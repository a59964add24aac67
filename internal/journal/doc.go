// Package journal records every frame a greeter sends or receives into the
// PostgreSQL frames table.
//
// Record only queues a frame. A consumer goroutine started by Start builds
// the batches, so a slow database never blocks the caller. Batches are
// written when BatchSize frames are pending, every FlushInterval, and once
// more on Stop. Inserts are append-only and idempotent on frame_id. A failed
// batch is logged and dropped.
package journal
