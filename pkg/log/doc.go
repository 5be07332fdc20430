// Package log provides structured protocol logging for device traffic.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, codec, session).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable trace for debugging device quirks.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	logger := log.NewSlogAdapter(slog.Default())
//
//	// For debugging a device: write to binary file
//	logger, _ := log.NewFileLogger("peq-trace.dlog")
//
//	// Both: use MultiLogger
//	logger := log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: Raw report bytes (PacketEvent)
//   - Codec: Settle waits between packets (WaitEvent)
//   - Session: Transaction state changes (StateChangeEvent)
//
// Errors have a dedicated event type carried at any layer.
//
// # File Format
//
// Log files use CBOR encoding with .dlog extension and can be replayed
// with ReadEvents.
package log
