// Package transport defines the HID transport layer interfaces.
//
// The transport layer handles:
//   - Enumeration of candidate HID interfaces
//   - Report-sized writes and timeout-bounded reads
//   - Settle waits between packets, via an injectable clock
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      Family Codec Packets      │
//	├────────────────────────────────┤
//	│   Fixed-Size HID Reports       │
//	├────────────────────────────────┤
//	│         USB HID                │
//	└────────────────────────────────┘
//
// No concrete OS HID implementation lives here. Callers supply an
// Enumerator and Opener backed by their platform's HID stack; tests
// use the scripted devices in internal/devicetest.
package transport
