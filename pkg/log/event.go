package log

import (
	"time"
)

// MaxPacketCapture bounds how many packet bytes are stored per event.
// HID reports are small, but preset reads can chain many chunks; the
// cap keeps log files predictable.
const MaxPacketCapture = 64

// Event represents a device protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// HandleID uniquely identifies the device handle (UUID).
	HandleID string `cbor:"2,keyasint"`

	// Direction indicates report flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Family is the device family name (populated after matching).
	Family string `cbor:"6,keyasint,omitempty"`

	// Product is the device product string.
	Product string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Packet      *PacketEvent      `cbor:"10,keyasint,omitempty"` // Transport layer
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"` // Transaction state
	Wait        *WaitEvent        `cbor:"12,keyasint,omitempty"` // Settle delays
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of report flow.
type Direction uint8

const (
	// DirectionIn indicates an input report from the device.
	DirectionIn Direction = 0
	// DirectionOut indicates an output report to the device.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the HID report layer (raw bytes).
	LayerTransport Layer = 0
	// LayerCodec is the family packet encoding layer.
	LayerCodec Layer = 1
	// LayerSession is the handle/transaction layer.
	LayerSession Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerCodec:
		return "CODEC"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryPacket indicates a report write or read.
	CategoryPacket Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryWait indicates a settle delay.
	CategoryWait Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryPacket:
		return "PACKET"
	case CategoryState:
		return "STATE"
	case CategoryWait:
		return "WAIT"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// PacketEvent captures raw report data at the transport layer.
type PacketEvent struct {
	// Size is the full report size in bytes (including report ID).
	Size int `cbor:"1,keyasint"`

	// Data is the report bytes (truncated above MaxPacketCapture).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewPacketEvent captures data, truncating above MaxPacketCapture.
func NewPacketEvent(data []byte) *PacketEvent {
	pe := &PacketEvent{Size: len(data)}
	if len(data) > MaxPacketCapture {
		pe.Data = append([]byte(nil), data[:MaxPacketCapture]...)
		pe.Truncated = true
	} else {
		pe.Data = append([]byte(nil), data...)
	}
	return pe
}

// StateChangeEvent captures transaction and handle lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityHandle indicates a device handle state change.
	StateEntityHandle StateEntity = 0
	// StateEntityTransaction indicates a write transaction state change.
	StateEntityTransaction StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityHandle:
		return "HANDLE"
	case StateEntityTransaction:
		return "TRANSACTION"
	default:
		return "UNKNOWN"
	}
}

// WaitEvent captures a settle delay between packets.
type WaitEvent struct {
	// Duration of the wait. Stored as nanoseconds.
	Duration time.Duration `cbor:"1,keyasint"`

	// Reason names the wait ("inter-packet", "commit").
	Reason string `cbor:"2,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
