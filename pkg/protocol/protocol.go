package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/daceq/daceq-go/pkg/peq"
)

// Protocol errors.
var (
	// ErrUnsupportedOperation indicates the device family cannot
	// perform the requested operation at all.
	ErrUnsupportedOperation = errors.New("operation not supported by device family")

	// ErrEncodingOutOfRange indicates a value that passed capability
	// validation but still does not fit the wire encoding. Raised
	// before any packet is sent.
	ErrEncodingOutOfRange = errors.New("value not representable in wire format")

	// ErrTransportTimeout indicates an expected input report never arrived.
	ErrTransportTimeout = errors.New("timed out waiting for device report")

	// ErrTransportFailure indicates the report channel broke mid-sequence.
	ErrTransportFailure = errors.New("transport failure")

	// ErrCommitNotConfirmed indicates the commit step was sent but the
	// device never acknowledged it. The device state is unknown.
	ErrCommitNotConfirmed = errors.New("commit not confirmed by device")

	// ErrMalformedResponse indicates a device report that does not
	// match the family's wire format.
	ErrMalformedResponse = errors.New("malformed device response")
)

// WarningCode classifies non-fatal degradations during encode.
type WarningCode uint8

const (
	// WarningCoefficientClipped indicates a fixed-point coefficient
	// saturated during quantization. The write proceeds; the audible
	// result may deviate from the requested curve.
	WarningCoefficientClipped WarningCode = iota
)

// String returns the warning code name.
func (c WarningCode) String() string {
	switch c {
	case WarningCoefficientClipped:
		return "COEFFICIENT_CLIPPED"
	default:
		return "UNKNOWN"
	}
}

// Warning reports a non-fatal encode degradation surfaced to the caller.
type Warning struct {
	// Code classifies the warning.
	Code WarningCode

	// FilterIndex is the profile filter the warning applies to.
	FilterIndex int

	// Detail is a human-readable explanation.
	Detail string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: filter %d: %s", w.Code, w.FilterIndex, w.Detail)
}

// StepKind classifies a write step for logging and ack handling.
type StepKind uint8

const (
	// StepValue carries parameter data.
	StepValue StepKind = iota

	// StepEnable activates a previously written slot.
	StepEnable

	// StepCommit asks the firmware to persist the staged values.
	StepCommit
)

// String returns the step kind name.
func (k StepKind) String() string {
	switch k {
	case StepValue:
		return "VALUE"
	case StepEnable:
		return "ENABLE"
	case StepCommit:
		return "COMMIT"
	default:
		return "UNKNOWN"
	}
}

// Step is one output report within a write sequence.
type Step struct {
	// Kind classifies the step.
	Kind StepKind

	// Name labels the step in protocol logs ("filter 2 gain", "save").
	Name string

	// Report is the padded output report, report ID first.
	Report []byte

	// SettleAfter is how long the firmware needs before the next
	// report. Zero means none.
	SettleAfter time.Duration

	// WantAck indicates the device answers this step with an input
	// report that must arrive before the sequence continues.
	WantAck bool
}

// WriteSequence is an ordered set of steps forming one transaction.
// Either every step lands and the sequence commits, or the transaction
// fails and the caller must treat the device state as unknown.
type WriteSequence struct {
	// Name labels the transaction in protocol logs.
	Name string

	// Steps are executed in order.
	Steps []Step
}

// Conn is the narrow report channel a codec drives reads over.
// Implemented by Transactor.
type Conn interface {
	// Send writes one output report.
	Send(report []byte) error

	// Receive blocks for one input report up to timeout.
	Receive(timeout time.Duration) ([]byte, error)

	// Wait blocks for the named settle delay.
	Wait(d time.Duration, reason string)
}

// Codec translates between profiles and one family's wire protocol.
// Codecs are stateless and safe for concurrent use.
type Codec interface {
	// Family returns the family name ("tanchjim", "moondrop", "qudelix").
	Family() string

	// Capabilities returns the family capability record.
	Capabilities() peq.DeviceCapabilities

	// EncodeProfile builds the write sequence for a validated profile.
	// Unused slots are cleared so stale filters never survive. Returns
	// warnings for non-fatal degradations such as coefficient clipping.
	EncodeProfile(p peq.PEQProfile) (WriteSequence, []Warning, error)

	// EncodePregain builds the small sequence that sets only the
	// global pregain.
	EncodePregain(db float64) (WriteSequence, error)

	// ReadProfile drives the family's read exchanges over conn and
	// decodes the device's current profile. Families that cannot read
	// return ErrUnsupportedOperation.
	ReadProfile(conn Conn) (peq.PEQProfile, error)
}
