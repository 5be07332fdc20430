package transport

import (
	"errors"
	"time"
)

// Transport errors.
var (
	// ErrTimeout indicates a read deadline expired with no report.
	ErrTimeout = errors.New("transport read timeout")

	// ErrClosed indicates use of a transport after Close.
	ErrClosed = errors.New("transport closed")

	// ErrWriteFailed indicates the device rejected or truncated a report.
	ErrWriteFailed = errors.New("transport write failed")
)

// DeviceInfo describes one enumerated HID interface.
type DeviceInfo struct {
	// VendorID is the USB vendor ID.
	VendorID uint16

	// ProductID is the USB product ID.
	ProductID uint16

	// Product is the product string reported by the device.
	Product string

	// Manufacturer is the manufacturer string reported by the device.
	Manufacturer string

	// SerialNumber is the serial string. May be empty.
	SerialNumber string

	// Path is the OS-specific device path used to open the interface.
	Path string

	// UsagePage is the HID usage page of the interface.
	UsagePage uint16
}

// Transport is an open report channel to one HID interface.
// Implementations must be safe for use from a single goroutine;
// serialization across goroutines is the caller's responsibility.
type Transport interface {
	// Write sends one output report. The first byte is the report ID.
	// Returns the number of bytes accepted.
	Write(data []byte) (int, error)

	// Read blocks for one input report up to timeout. A nil error
	// guarantees a non-empty report. Returns ErrTimeout on deadline.
	Read(timeout time.Duration) ([]byte, error)

	// Close releases the interface. Further calls return ErrClosed.
	Close() error
}

// Enumerator lists HID interfaces present on the host.
type Enumerator interface {
	// Enumerate returns all visible HID interfaces. Order is not
	// significant; callers sort for stable indices.
	Enumerate() ([]DeviceInfo, error)
}

// Opener opens a transport for a previously enumerated interface.
type Opener interface {
	// Open opens the interface at info.Path.
	Open(info DeviceInfo) (Transport, error)
}

// Clock abstracts time for settle waits so tests run instantly.
type Clock interface {
	// Sleep blocks for at least d.
	Sleep(d time.Duration)

	// Now returns the current time.
	Now() time.Time
}

// RealClock is the wall-clock Clock used outside tests.
type RealClock struct{}

// Sleep blocks with time.Sleep.
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// Now returns time.Now.
func (RealClock) Now() time.Time { return time.Now() }

// Compile-time interface satisfaction check.
var _ Clock = RealClock{}

// PadReport returns data extended with zero bytes to size. Reports
// shorter than the interface's fixed report length are rejected by
// some HID stacks, so codecs always pad.
func PadReport(data []byte, size int) []byte {
	if len(data) >= size {
		return data
	}
	out := make([]byte, size)
	copy(out, data)
	return out
}
