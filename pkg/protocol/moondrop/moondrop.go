// Package moondrop implements the Moondrop DSP wire protocol
// (FreeDSP cables, Rays, Marigold, MAY, ddHiFi DSP IEMs).
//
// The firmware is Conexant-based: each filter slot takes a 63-byte
// packet carrying both the quantized biquad coefficients and the
// human-readable parameters, followed by an enable packet that latches
// the coefficients into the DSP registers. A save packet persists the
// whole bank to flash. Coefficients are fixed-point with a 2^30 scale;
// parameters use a 256x scale.
package moondrop

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/daceq/daceq-go/pkg/biquad"
	"github.com/daceq/daceq-go/pkg/peq"
	"github.com/daceq/daceq-go/pkg/protocol"
	"github.com/daceq/daceq-go/pkg/transport"
)

// VendorIDs lists every USB vendor the protocol ships under. WalkPlay
// (0x3302) is the primary; the rest are OEM variants.
var VendorIDs = []uint16{
	0x3302, 0x0762, 0x35D8, 0x2FC6, 0x0104,
	0xB445, 0x0661, 0x0666, 0x0D8C,
}

// ReportID prefixes every report.
const ReportID = 0x4B

// Commands.
const (
	cmdRead        = 0x80
	cmdWrite       = 0x01
	cmdUpdateEQ    = 0x09
	cmdCoeffToReg  = 0x0A
	cmdSaveToFlash = 0x01
	cmdPregain     = 0x23
	cmdDACOffset   = 0x03
)

// Wire filter type codes. Note these differ from the Tanchjim codes.
const (
	typeLowShelf  = 1
	typePeak      = 2
	typeHighShelf = 3
)

const (
	packetLen = 63
	reportLen = packetLen + 1
	maxSlots  = 8

	// valueScale is the fixed-point scale for gain, Q and pregain.
	valueScale = 256

	// sampleRate is the rate the firmware runs its biquads at.
	sampleRate = 96000
)

// Timing.
const (
	writeDelay  = 20 * time.Millisecond
	saveDelay   = 1 * time.Second
	readDelay   = 10 * time.Millisecond
	readTimeout = 1 * time.Second
)

// Product keyword matching.
var (
	// Keywords mark DSP-capable products.
	Keywords = []string{"MOONDROP", "RAYS", "MARIGOLD", "MAY", "FREEDSP", "DDHIFI DSP"}

	// Excluded products share vendor keywords but carry no DSP.
	Excluded = []string{"MOONRIVER", "ARIA", "BLESSING", "STARFIELD", "KATO"}
)

// Codec implements protocol.Codec for Moondrop devices.
type Codec struct{}

// New returns the Moondrop codec.
func New() *Codec { return &Codec{} }

// Family implements protocol.Codec.
func (*Codec) Family() string { return "moondrop" }

// Capabilities implements protocol.Codec.
func (*Codec) Capabilities() peq.DeviceCapabilities {
	return peq.DeviceCapabilities{
		MaxFilters:     maxSlots,
		SupportedTypes: []peq.FilterType{peq.FilterPeak, peq.FilterLowShelf, peq.FilterHighShelf},
		GainRange:      peq.Range{Min: -20, Max: 20},
		PregainRange:   peq.Range{Min: -12, Max: 12},
		FreqRange:      peq.Range{Min: 20, Max: 20000},
		QRange:         peq.Range{Min: 0.1, Max: 10},
		SupportsRead:   true,
		SupportsWrite:  true,
	}
}

// Matches reports whether an enumerated interface is a Moondrop DSP.
// Vendor match alone is not enough: several vendors ship both DSP and
// plain analog products under the same IDs.
func Matches(info transport.DeviceInfo) bool {
	vendorOK := false
	for _, v := range VendorIDs {
		if info.VendorID == v {
			vendorOK = true
			break
		}
	}
	if !vendorOK {
		return false
	}

	product := strings.ToUpper(info.Product)
	excluded := false
	for _, kw := range Excluded {
		if strings.Contains(product, kw) {
			excluded = true
			break
		}
	}
	if excluded {
		return false
	}
	for _, kw := range Keywords {
		if strings.Contains(product, kw) {
			return true
		}
	}
	return false
}

// EncodeProfile implements protocol.Codec. Pregain goes first, then
// each filter as a write/enable pair, then the flash save. Remaining
// slots are written blank so stale filters never survive. Quantizing a
// coefficient past the int32 range saturates and surfaces a
// CoefficientClipped warning.
func (c *Codec) EncodeProfile(p peq.PEQProfile) (protocol.WriteSequence, []protocol.Warning, error) {
	if err := c.Capabilities().ValidateProfile(p); err != nil {
		return protocol.WriteSequence{}, nil, err
	}

	seq := protocol.WriteSequence{Name: "moondrop write profile"}
	seq.Steps = append(seq.Steps, protocol.Step{
		Kind:        protocol.StepValue,
		Name:        "pregain",
		Report:      report(buildPregain(p.Pregain)),
		SettleAfter: writeDelay,
	})

	var warnings []protocol.Warning
	for i, f := range p.Filters {
		packet, clipped, err := buildFilter(i, f)
		if err != nil {
			return protocol.WriteSequence{}, nil, err
		}
		if clipped {
			warnings = append(warnings, protocol.Warning{
				Code:        protocol.WarningCoefficientClipped,
				FilterIndex: i,
				Detail:      fmt.Sprintf("%s %g Hz %+g dB saturates the 2^30 coefficient range", f.Type, f.Frequency, f.Gain),
			})
		}
		seq.Steps = append(seq.Steps,
			protocol.Step{
				Kind:        protocol.StepValue,
				Name:        fmt.Sprintf("filter %d", i),
				Report:      report(packet),
				SettleAfter: writeDelay,
			},
			protocol.Step{
				Kind:        protocol.StepEnable,
				Name:        fmt.Sprintf("enable %d", i),
				Report:      report(buildEnable(i)),
				SettleAfter: writeDelay,
			},
		)
	}

	for i := len(p.Filters); i < maxSlots; i++ {
		seq.Steps = append(seq.Steps,
			protocol.Step{
				Kind:        protocol.StepValue,
				Name:        fmt.Sprintf("clear slot %d", i),
				Report:      report(buildBlank(i)),
				SettleAfter: writeDelay,
			},
			protocol.Step{
				Kind:        protocol.StepEnable,
				Name:        fmt.Sprintf("enable %d", i),
				Report:      report(buildEnable(i)),
				SettleAfter: writeDelay,
			},
		)
	}

	seq.Steps = append(seq.Steps, protocol.Step{
		Kind:        protocol.StepCommit,
		Name:        "save to flash",
		Report:      report(buildSave()),
		SettleAfter: saveDelay,
	})
	return seq, warnings, nil
}

// EncodePregain implements protocol.Codec. The pregain register takes
// effect immediately; the save persists it across power cycles.
func (c *Codec) EncodePregain(db float64) (protocol.WriteSequence, error) {
	if !c.Capabilities().PregainRange.Contains(db) {
		return protocol.WriteSequence{}, fmt.Errorf("%w: pregain %.1f dB", peq.ErrOutOfRange, db)
	}
	return protocol.WriteSequence{
		Name: "moondrop set pregain",
		Steps: []protocol.Step{
			{
				Kind:        protocol.StepValue,
				Name:        "pregain",
				Report:      report(buildPregain(db)),
				SettleAfter: writeDelay,
			},
			{
				Kind:        protocol.StepCommit,
				Name:        "save to flash",
				Report:      report(buildSave()),
				SettleAfter: saveDelay,
			},
		},
	}, nil
}

// ReadProfile implements protocol.Codec. The firmware answers each slot
// query with the parameter block it stored at write time; slots with
// zero frequency or Q are bypassed and skipped.
func (c *Codec) ReadProfile(conn protocol.Conn) (peq.PEQProfile, error) {
	var profile peq.PEQProfile
	for i := 0; i < maxSlots; i++ {
		if err := conn.Send(report(buildReadFilter(i))); err != nil {
			return peq.PEQProfile{}, fmt.Errorf("filter %d: %w", i, err)
		}
		resp, err := conn.Receive(readTimeout)
		if err != nil {
			return peq.PEQProfile{}, fmt.Errorf("filter %d: %w", i, err)
		}
		f, active, err := decodeFilter(resp)
		if err != nil {
			return peq.PEQProfile{}, fmt.Errorf("filter %d: %w", i, err)
		}
		if active {
			profile.Filters = append(profile.Filters, f)
		}
		conn.Wait(readDelay, "inter-read")
	}

	if err := conn.Send(report(buildReadPregain())); err != nil {
		return peq.PEQProfile{}, fmt.Errorf("pregain: %w", err)
	}
	resp, err := conn.Receive(readTimeout)
	if err != nil {
		return peq.PEQProfile{}, fmt.Errorf("pregain: %w", err)
	}
	profile.Pregain = decodePregain(resp)
	return profile, nil
}

// buildFilter builds the 63-byte slot packet. The coefficient block
// stores [b0, b1, b2, -a1, -a2] so the firmware can accumulate without
// negating.
func buildFilter(index int, f peq.FilterDefinition) ([]byte, bool, error) {
	freq := int(math.Round(f.Frequency))
	if freq < 0 || freq > 0xFFFF {
		return nil, false, fmt.Errorf("%w: frequency %g Hz", protocol.ErrEncodingOutOfRange, f.Frequency)
	}
	q := int(math.Round(f.Q * valueScale))
	if q < 0 || q > 0xFFFF {
		return nil, false, fmt.Errorf("%w: q %g", protocol.ErrEncodingOutOfRange, f.Q)
	}
	gain := int(math.Round(f.Gain * valueScale))
	if gain < -0x8000 || gain > 0x7FFF {
		return nil, false, fmt.Errorf("%w: gain %g dB", protocol.ErrEncodingOutOfRange, f.Gain)
	}
	typeByte, err := typeToWire(f.Type)
	if err != nil {
		return nil, false, err
	}

	coeffs := biquad.Design(f, sampleRate)
	packet := make([]byte, packetLen)
	packet[0] = cmdWrite
	packet[1] = cmdUpdateEQ
	packet[2] = 0x18
	packet[4] = byte(index)

	clipped := false
	offset := 7
	for _, v := range []float64{coeffs.B0, coeffs.B1, coeffs.B2, -coeffs.A1, -coeffs.A2} {
		fixed, c := biquad.QuantizeValue(v, biquad.ScaleQ30)
		clipped = clipped || c
		binary.LittleEndian.PutUint32(packet[offset:], uint32(fixed))
		offset += 4
	}

	binary.LittleEndian.PutUint16(packet[27:], uint16(freq))
	binary.LittleEndian.PutUint16(packet[29:], uint16(q))
	binary.LittleEndian.PutUint16(packet[31:], uint16(int16(gain)))
	packet[33] = typeByte
	packet[35] = 0x07 // peqIndex marker
	return packet, clipped, nil
}

// buildBlank builds a cleared slot packet: zero parameters, zero
// coefficients. The firmware treats a zero-frequency slot as bypassed.
func buildBlank(index int) []byte {
	packet := make([]byte, packetLen)
	packet[0] = cmdWrite
	packet[1] = cmdUpdateEQ
	packet[2] = 0x18
	packet[4] = byte(index)
	packet[35] = 0x07
	return packet
}

// buildEnable builds the latch packet [0x01, 0x0A, index, 0xFF...].
func buildEnable(index int) []byte {
	packet := make([]byte, packetLen)
	for i := range packet {
		packet[i] = 0xFF
	}
	packet[0] = cmdWrite
	packet[1] = cmdCoeffToReg
	packet[2] = byte(index)
	return packet
}

func buildSave() []byte {
	packet := make([]byte, packetLen)
	packet[0] = cmdWrite
	packet[1] = cmdSaveToFlash
	return packet
}

func buildPregain(db float64) []byte {
	packet := make([]byte, packetLen)
	packet[0] = cmdWrite
	packet[1] = cmdPregain
	scaled := int(math.Round(db * valueScale))
	binary.LittleEndian.PutUint16(packet[3:], uint16(int16(scaled)))
	return packet
}

func buildReadFilter(index int) []byte {
	return []byte{cmdRead, cmdUpdateEQ, 0x18, 0x00, byte(index), 0x00}
}

func buildReadPregain() []byte {
	return []byte{cmdRead, cmdDACOffset}
}

func typeToWire(t peq.FilterType) (byte, error) {
	switch t {
	case peq.FilterPeak:
		return typePeak, nil
	case peq.FilterLowShelf:
		return typeLowShelf, nil
	case peq.FilterHighShelf:
		return typeHighShelf, nil
	default:
		return 0, fmt.Errorf("%w: %s", peq.ErrUnsupportedType, t)
	}
}

func typeFromWire(b byte) peq.FilterType {
	switch b {
	case typeLowShelf:
		return peq.FilterLowShelf
	case typeHighShelf:
		return peq.FilterHighShelf
	default:
		return peq.FilterPeak
	}
}

// decodeFilter reads the parameter block from a slot response.
// Responses mirror the write packet layout, without a report ID shift.
func decodeFilter(resp []byte) (peq.FilterDefinition, bool, error) {
	if len(resp) < 34 {
		return peq.FilterDefinition{}, false, fmt.Errorf("%w: %d-byte report", protocol.ErrMalformedResponse, len(resp))
	}
	freq := float64(binary.LittleEndian.Uint16(resp[27:]))
	q := float64(binary.LittleEndian.Uint16(resp[29:])) / valueScale
	gain := float64(int16(binary.LittleEndian.Uint16(resp[31:]))) / valueScale
	if freq == 0 || q == 0 {
		return peq.FilterDefinition{}, false, nil
	}
	return peq.FilterDefinition{
		Type:      typeFromWire(resp[33]),
		Frequency: freq,
		Gain:      gain,
		Q:         q,
	}, true, nil
}

func decodePregain(resp []byte) float64 {
	if len(resp) < 5 {
		return 0
	}
	return float64(int16(binary.LittleEndian.Uint16(resp[3:]))) / valueScale
}

// report prefixes the packet with the report ID.
func report(packet []byte) []byte {
	out := make([]byte, 0, reportLen)
	out = append(out, ReportID)
	return append(out, packet...)
}

// Compile-time interface satisfaction check.
var _ protocol.Codec = (*Codec)(nil)
