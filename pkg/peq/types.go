package peq

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	// ErrOutOfRange indicates a profile parameter lies outside the
	// device's capability range. Raised at validation/encode time,
	// before any packet is sent.
	ErrOutOfRange = errors.New("parameter outside device capability range")

	// ErrUnsupportedType indicates a filter type the device cannot express.
	ErrUnsupportedType = errors.New("filter type not supported by device")

	// ErrTooManyFilters indicates the profile exceeds the device's slot count.
	ErrTooManyFilters = errors.New("too many filters for device")
)

// FilterType identifies the shape of a single PEQ band.
type FilterType uint8

const (
	// FilterPeak is a peaking (bell) filter.
	FilterPeak FilterType = iota + 1

	// FilterLowShelf is a low-shelf filter.
	FilterLowShelf

	// FilterHighShelf is a high-shelf filter.
	FilterHighShelf
)

// String returns the canonical interchange code for the filter type.
func (t FilterType) String() string {
	switch t {
	case FilterPeak:
		return "PK"
	case FilterLowShelf:
		return "LSQ"
	case FilterHighShelf:
		return "HSQ"
	default:
		return "UNKNOWN"
	}
}

// IsValid reports whether t is a known filter type.
func (t FilterType) IsValid() bool {
	return t >= FilterPeak && t <= FilterHighShelf
}

// ParseFilterType parses an interchange type code ("PK", "LSQ", "HSQ").
func ParseFilterType(s string) (FilterType, error) {
	switch s {
	case "PK":
		return FilterPeak, nil
	case "LSQ":
		return FilterLowShelf, nil
	case "HSQ":
		return FilterHighShelf, nil
	default:
		return 0, fmt.Errorf("unknown filter type %q", s)
	}
}

// Range is an inclusive numeric interval.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Clamp returns v limited to the range.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// FilterDefinition is a single PEQ band.
type FilterDefinition struct {
	// Type is the filter shape.
	Type FilterType

	// Frequency is the center (or corner) frequency in Hz.
	Frequency float64

	// Gain is the band gain in dB.
	Gain float64

	// Q is the quality factor controlling bandwidth.
	Q float64
}

// Validate checks structural invariants independent of any device.
func (f FilterDefinition) Validate() error {
	if !f.Type.IsValid() {
		return fmt.Errorf("invalid filter type %d", f.Type)
	}
	if f.Frequency <= 0 {
		return fmt.Errorf("frequency must be positive, got %g", f.Frequency)
	}
	if f.Q <= 0 {
		return fmt.Errorf("q must be positive, got %g", f.Q)
	}
	return nil
}

// PEQProfile is a complete equalizer setting: a pregain plus an ordered
// sequence of filters. Ordering is significant only for display; devices
// treat the filters as a slot-bounded set.
type PEQProfile struct {
	// Name labels the profile in the interchange document. Optional.
	Name string

	// Pregain is the global gain offset in dB applied before the filters.
	Pregain float64

	// Filters holds the PEQ bands.
	Filters []FilterDefinition
}

// Validate checks structural invariants independent of any device.
func (p PEQProfile) Validate() error {
	for i, f := range p.Filters {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("filter %d: %w", i, err)
		}
	}
	return nil
}

// DeviceCapabilities describes what one device family can accept.
// Created once per family at startup and never mutated.
type DeviceCapabilities struct {
	// MaxFilters is the number of filter slots the device exposes.
	MaxFilters int

	// SupportedTypes lists the filter types the firmware understands.
	SupportedTypes []FilterType

	// GainRange bounds per-filter gain in dB.
	GainRange Range

	// PregainRange bounds the global pregain in dB.
	PregainRange Range

	// FreqRange bounds filter frequency in Hz.
	FreqRange Range

	// QRange bounds the quality factor.
	QRange Range

	// SupportsRead reports whether the device can report its settings back.
	SupportsRead bool

	// SupportsWrite reports whether the device accepts settings.
	SupportsWrite bool

	// RetryAfterSettle advises callers that a failed transaction may
	// succeed if retried once after the device's settle delay. The core
	// never retries on its own.
	RetryAfterSettle bool
}

// SupportsType reports whether the device understands the filter type.
func (c DeviceCapabilities) SupportsType(t FilterType) bool {
	for _, s := range c.SupportedTypes {
		if s == t {
			return true
		}
	}
	return false
}

// ValidateProfile checks a profile against the capability record.
// The returned error wraps ErrOutOfRange, ErrUnsupportedType or
// ErrTooManyFilters so callers can classify it.
func (c DeviceCapabilities) ValidateProfile(p PEQProfile) error {
	// The slot count is a property of the profile's shape, not of any
	// one filter, so it is checked before per-filter contents.
	if len(p.Filters) > c.MaxFilters {
		return fmt.Errorf("%w: %d filters, device has %d slots",
			ErrTooManyFilters, len(p.Filters), c.MaxFilters)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if !c.PregainRange.Contains(p.Pregain) {
		return fmt.Errorf("%w: pregain %.1f dB outside [%.1f, %.1f]",
			ErrOutOfRange, p.Pregain, c.PregainRange.Min, c.PregainRange.Max)
	}
	for i, f := range p.Filters {
		if err := c.ValidateFilter(f); err != nil {
			return fmt.Errorf("filter %d: %w", i, err)
		}
	}
	return nil
}

// ValidateFilter checks a single filter against the capability record.
func (c DeviceCapabilities) ValidateFilter(f FilterDefinition) error {
	if !c.SupportsType(f.Type) {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, f.Type)
	}
	if !c.GainRange.Contains(f.Gain) {
		return fmt.Errorf("%w: gain %.1f dB outside [%.1f, %.1f]",
			ErrOutOfRange, f.Gain, c.GainRange.Min, c.GainRange.Max)
	}
	if !c.FreqRange.Contains(f.Frequency) {
		return fmt.Errorf("%w: frequency %.0f Hz outside [%.0f, %.0f]",
			ErrOutOfRange, f.Frequency, c.FreqRange.Min, c.FreqRange.Max)
	}
	if !c.QRange.Contains(f.Q) {
		return fmt.Errorf("%w: Q %.2f outside [%.2f, %.2f]",
			ErrOutOfRange, f.Q, c.QRange.Min, c.QRange.Max)
	}
	return nil
}
