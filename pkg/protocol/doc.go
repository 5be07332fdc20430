// Package protocol defines the device codec contract and the write
// transaction engine shared by all device families.
//
// Each family package (tanchjim, moondrop, qudelix) implements Codec:
// it turns a validated profile into a WriteSequence of output reports
// with per-step settle delays, and drives reads over the narrow Conn
// channel. The Transactor executes sequences under a small state
// machine so callers can tell a confirmed commit from a transport
// failure mid-write.
//
// # Transaction States
//
//	Idle ──► Sending ──► AwaitingAck ──► Committed
//	            │             │
//	            └─────────────┴───────► Failed
//
// A profile is reported as applied only from Committed. The Transactor
// never retries; families whose firmware benefits from one retry after
// the settle delay say so in their capability record.
package protocol
