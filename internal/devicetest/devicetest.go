// Package devicetest provides scripted fake devices and a manual clock
// for testing the protocol stack without hardware.
package devicetest

import (
	"sync"
	"time"

	"github.com/daceq/daceq-go/pkg/transport"
)

// Clock is a manual transport.Clock. Sleeps advance the fake time
// instantly and are recorded for assertion.
type Clock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

// NewClock creates a clock starting at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Sleep records the request and advances fake time without blocking.
func (c *Clock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
}

// Now returns the fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Slept returns all recorded sleep durations in order.
func (c *Clock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.slept))
	copy(out, c.slept)
	return out
}

// TotalSlept returns the sum of all recorded sleeps.
func (c *Clock) TotalSlept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.slept {
		total += d
	}
	return total
}

// Compile-time interface satisfaction check.
var _ transport.Clock = (*Clock)(nil)

// Firmware emulates one device's report handling. Handle receives each
// output report and returns the input reports the device would send
// back, in order.
type Firmware interface {
	Handle(report []byte) [][]byte
}

// FirmwareFunc adapts a function to the Firmware interface.
type FirmwareFunc func(report []byte) [][]byte

// Handle calls f.
func (f FirmwareFunc) Handle(report []byte) [][]byte { return f(report) }

// Transport is an in-memory transport.Transport backed by a Firmware.
// Faults can be injected to exercise error paths.
type Transport struct {
	mu      sync.Mutex
	fw      Firmware
	queue   [][]byte
	written [][]byte
	closed  bool

	// WriteErr, when set, fails every Write with this error.
	WriteErr error

	// FailAfterWrites, when positive, fails Write once that many
	// writes have succeeded.
	FailAfterWrites int

	// DropResponses, when true, discards firmware responses so reads
	// time out.
	DropResponses bool
}

// NewTransport creates a transport backed by fw. A nil fw echoes nothing.
func NewTransport(fw Firmware) *Transport {
	return &Transport{fw: fw}
}

// Write records the report and queues the firmware's responses.
func (t *Transport) Write(data []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, transport.ErrClosed
	}
	if t.WriteErr != nil {
		return 0, t.WriteErr
	}
	if t.FailAfterWrites > 0 && len(t.written) >= t.FailAfterWrites {
		return 0, transport.ErrWriteFailed
	}

	t.written = append(t.written, append([]byte(nil), data...))
	if t.fw != nil {
		responses := t.fw.Handle(data)
		if !t.DropResponses {
			t.queue = append(t.queue, responses...)
		}
	}
	return len(data), nil
}

// Read pops the next queued input report or times out immediately.
func (t *Transport) Read(timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, transport.ErrClosed
	}
	if len(t.queue) == 0 {
		return nil, transport.ErrTimeout
	}
	report := t.queue[0]
	t.queue = t.queue[1:]
	return report, nil
}

// Close marks the transport closed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return transport.ErrClosed
	}
	t.closed = true
	return nil
}

func (t *Transport) reopen() {
	t.mu.Lock()
	t.closed = false
	t.mu.Unlock()
}

// Written returns copies of all reports written so far.
func (t *Transport) Written() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.written))
	for i, w := range t.written {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// QueueResponse enqueues an input report directly, bypassing the firmware.
func (t *Transport) QueueResponse(report []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, append([]byte(nil), report...))
}

// Compile-time interface satisfaction check.
var _ transport.Transport = (*Transport)(nil)

// Enumerator is a fixed-list transport.Enumerator with per-path transports.
type Enumerator struct {
	// Infos are the interfaces to report.
	Infos []transport.DeviceInfo

	// Transports maps DeviceInfo.Path to the transport Open returns.
	Transports map[string]*Transport

	// EnumerateErr, when set, fails Enumerate.
	EnumerateErr error

	// OpenErr, when set, fails Open.
	OpenErr error
}

// Enumerate returns the configured interface list.
func (e *Enumerator) Enumerate() ([]transport.DeviceInfo, error) {
	if e.EnumerateErr != nil {
		return nil, e.EnumerateErr
	}
	return append([]transport.DeviceInfo(nil), e.Infos...), nil
}

// Open returns the transport configured for info.Path. A transport
// closed by a previous handle is reopened, mirroring a real HID stack
// where the same interface can be opened again.
func (e *Enumerator) Open(info transport.DeviceInfo) (transport.Transport, error) {
	if e.OpenErr != nil {
		return nil, e.OpenErr
	}
	if tr, ok := e.Transports[info.Path]; ok {
		tr.reopen()
		return tr, nil
	}
	return nil, transport.ErrClosed
}

// Compile-time interface satisfaction checks.
var (
	_ transport.Enumerator = (*Enumerator)(nil)
	_ transport.Opener     = (*Enumerator)(nil)
)
