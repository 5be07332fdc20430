// Package tanchjim implements the Tanchjim DSP wire protocol
// (Fission, Bunny, One DSP).
//
// The firmware exposes a flat register file addressed by field ID. Each
// filter occupies two fields: the even field carries gain and frequency,
// the odd field Q and type. There are no hardware presets; a commit
// command flushes the staged registers to flash.
package tanchjim

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/daceq/daceq-go/pkg/peq"
	"github.com/daceq/daceq-go/pkg/protocol"
	"github.com/daceq/daceq-go/pkg/transport"
)

// USB identification.
const (
	VendorID = 0x31B2
	ReportID = 0x4B
)

// Protocol commands.
const (
	cmdRead   = 0x52
	cmdWrite  = 0x57
	cmdCommit = 0x53
)

// Field IDs.
const (
	fieldPregain    = 0x65
	fieldFilterBase = 0x26
)

// Timing.
const (
	// writeDelay is the settle time between write commands.
	writeDelay = 20 * time.Millisecond

	// commitDelay covers the flash write after commit.
	commitDelay = 1 * time.Second

	// readTimeout bounds each read exchange.
	readTimeout = 1 * time.Second
)

const (
	packetLen = 11
	reportLen = packetLen + 1
	maxSlots  = 5
)

// filter type bytes on the wire
const (
	typePeak      = 0x00
	typeLowShelf  = 0x03
	typeHighShelf = 0x04
)

// Keywords matched against the uppercased product string.
var Keywords = []string{"FISSION", "TANCHJIM", "BUNNY", "ONE"}

// Codec implements protocol.Codec for Tanchjim devices.
type Codec struct{}

// New returns the Tanchjim codec.
func New() *Codec { return &Codec{} }

// Family implements protocol.Codec.
func (*Codec) Family() string { return "tanchjim" }

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

// Matches reports whether an enumerated interface is a Tanchjim DSP.
func Matches(info transport.DeviceInfo) bool {
	if info.VendorID != VendorID {
		return false
	}
	product := strings.ToUpper(info.Product)
	for _, kw := range Keywords {
		if strings.Contains(product, kw) {
			return true
		}
	}
	return false
}

// EncodeProfile implements protocol.Codec. Unused slots are cleared so
// a shorter profile never leaves stale filters active.
func (c *Codec) EncodeProfile(p peq.PEQProfile) (protocol.WriteSequence, []protocol.Warning, error) {
	if err := c.Capabilities().ValidateProfile(p); err != nil {
		return protocol.WriteSequence{}, nil, err
	}

	seq := protocol.WriteSequence{Name: "tanchjim write profile"}
	for i, f := range p.Filters {
		gainFreq, q, err := encodeFilter(i, f)
		if err != nil {
			return protocol.WriteSequence{}, nil, err
		}
		seq.Steps = append(seq.Steps,
			valueStep(fmt.Sprintf("filter %d gain/freq", i), gainFreq),
			valueStep(fmt.Sprintf("filter %d q/type", i), q),
		)
	}

	// Disable the remaining slots with zero frequency and Q.
	for i := len(p.Filters); i < maxSlots; i++ {
		seq.Steps = append(seq.Steps,
			valueStep(fmt.Sprintf("clear slot %d gain/freq", i), buildGainFreq(evenField(i), 0, 0)),
			valueStep(fmt.Sprintf("clear slot %d q/type", i), buildQType(oddField(i), 0, typePeak)),
		)
	}

	pregain, err := buildPregain(p.Pregain)
	if err != nil {
		return protocol.WriteSequence{}, nil, err
	}
	seq.Steps = append(seq.Steps,
		valueStep("pregain", pregain),
		commitStep(),
	)
	return seq, nil, nil
}

// EncodePregain implements protocol.Codec.
func (c *Codec) EncodePregain(db float64) (protocol.WriteSequence, error) {
	if !c.Capabilities().PregainRange.Contains(db) {
		return protocol.WriteSequence{}, fmt.Errorf("%w: pregain %.1f dB", peq.ErrOutOfRange, db)
	}
	packet, err := buildPregain(db)
	if err != nil {
		return protocol.WriteSequence{}, err
	}
	return protocol.WriteSequence{
		Name: "tanchjim set pregain",
		Steps: []protocol.Step{
			valueStep("pregain", packet),
			commitStep(),
		},
	}, nil
}

// ReadProfile implements protocol.Codec. Slots with zero frequency or
// zero Q are bypassed and skipped.
func (c *Codec) ReadProfile(conn protocol.Conn) (peq.PEQProfile, error) {
	var profile peq.PEQProfile
	for i := 0; i < maxSlots; i++ {
		f, active, err := readFilter(conn, i)
		if err != nil {
			return peq.PEQProfile{}, fmt.Errorf("filter %d: %w", i, err)
		}
		if active {
			profile.Filters = append(profile.Filters, f)
		}
	}

	resp, err := exchange(conn, buildRead(fieldPregain))
	if err != nil {
		return peq.PEQProfile{}, fmt.Errorf("pregain: %w", err)
	}
	profile.Pregain = decodePregain(resp)
	return profile, nil
}

func readFilter(conn protocol.Conn, index int) (peq.FilterDefinition, bool, error) {
	resp, err := exchange(conn, buildRead(evenField(index)))
	if err != nil {
		return peq.FilterDefinition{}, false, err
	}
	gain, freq := decodeGainFreq(resp)

	resp, err = exchange(conn, buildRead(oddField(index)))
	if err != nil {
		return peq.FilterDefinition{}, false, err
	}
	q, ftype := decodeQType(resp)

	if freq == 0 || q == 0 {
		return peq.FilterDefinition{}, false, nil
	}
	return peq.FilterDefinition{Type: ftype, Frequency: freq, Gain: gain, Q: q}, true, nil
}

func exchange(conn protocol.Conn, packet []byte) ([]byte, error) {
	if err := conn.Send(report(packet)); err != nil {
		return nil, err
	}
	resp, err := conn.Receive(readTimeout)
	if err != nil {
		return nil, err
	}
	if len(resp) < 11 {
		return nil, fmt.Errorf("%w: %d-byte report", protocol.ErrMalformedResponse, len(resp))
	}
	return resp, nil
}

func evenField(index int) byte { return byte(fieldFilterBase + index*2) }
func oddField(index int) byte  { return byte(fieldFilterBase + index*2 + 1) }

func encodeFilter(index int, f peq.FilterDefinition) (gainFreq, qType []byte, err error) {
	freq := int(math.Round(f.Frequency))
	if freq < 0 || freq > 0xFFFF {
		return nil, nil, fmt.Errorf("%w: frequency %g Hz", protocol.ErrEncodingOutOfRange, f.Frequency)
	}
	gain := int(math.Round(f.Gain * 10))
	if gain < -0x8000 || gain > 0x7FFF {
		return nil, nil, fmt.Errorf("%w: gain %g dB", protocol.ErrEncodingOutOfRange, f.Gain)
	}
	q := int(math.Round(f.Q * 1000))
	if q < 0 || q > 0xFFFF {
		return nil, nil, fmt.Errorf("%w: q %g", protocol.ErrEncodingOutOfRange, f.Q)
	}
	typeByte, err := typeToWire(f.Type)
	if err != nil {
		return nil, nil, err
	}
	return buildGainFreq(evenField(index), gain, freq), buildQType(oddField(index), q, typeByte), nil
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

// buildRead builds [FieldID, 0, 0, 0, 0x52, 0, ...].
func buildRead(fieldID byte) []byte {
	p := make([]byte, packetLen)
	p[0] = fieldID
	p[4] = cmdRead
	return p
}

// buildGainFreq encodes gain (s16 LE, x10) and frequency (u16 LE).
func buildGainFreq(fieldID byte, gain, freq int) []byte {
	p := make([]byte, packetLen)
	p[0] = fieldID
	p[4] = cmdWrite
	p[6] = byte(gain)
	p[7] = byte(gain >> 8)
	p[8] = byte(freq)
	p[9] = byte(freq >> 8)
	return p
}

// buildQType encodes Q (u16 LE, x1000) and the type byte.
func buildQType(fieldID byte, q int, typeByte byte) []byte {
	p := make([]byte, packetLen)
	p[0] = fieldID
	p[4] = cmdWrite
	p[6] = byte(q)
	p[7] = byte(q >> 8)
	p[8] = typeByte
	return p
}

// buildPregain encodes pregain as signed 8-bit, x2.
func buildPregain(db float64) ([]byte, error) {
	val := int(math.Round(db * 2))
	if val < -128 || val > 127 {
		return nil, fmt.Errorf("%w: pregain %g dB", protocol.ErrEncodingOutOfRange, db)
	}
	p := make([]byte, packetLen)
	p[0] = fieldPregain
	p[4] = cmdWrite
	p[6] = byte(val)
	return p, nil
}

func buildCommit() []byte {
	p := make([]byte, packetLen)
	p[4] = cmdCommit
	return p
}

// Response layout: [ReportID, FieldID, 0, 0, 0, Cmd, 0, data...].
func decodeGainFreq(resp []byte) (gain, freq float64) {
	raw := int(resp[7]) | int(resp[8])<<8
	if raw > 0x7FFF {
		raw -= 0x10000
	}
	gain = float64(raw) / 10
	freq = float64(int(resp[9]) | int(resp[10])<<8)
	return gain, freq
}

func decodeQType(resp []byte) (q float64, t peq.FilterType) {
	q = float64(int(resp[7])|int(resp[8])<<8) / 1000
	return q, typeFromWire(resp[9])
}

func decodePregain(resp []byte) float64 {
	val := int(resp[7])
	if val > 128 {
		val -= 256
	}
	return float64(val) / 2
}

// report prefixes the packet with the report ID.
func report(packet []byte) []byte {
	out := make([]byte, 0, reportLen)
	out = append(out, ReportID)
	return append(out, packet...)
}

func valueStep(name string, packet []byte) protocol.Step {
	return protocol.Step{
		Kind:        protocol.StepValue,
		Name:        name,
		Report:      report(packet),
		SettleAfter: writeDelay,
	}
}

func commitStep() protocol.Step {
	return protocol.Step{
		Kind:        protocol.StepCommit,
		Name:        "commit",
		Report:      report(buildCommit()),
		SettleAfter: commitDelay,
	}
}

// Compile-time interface satisfaction check.
var _ protocol.Codec = (*Codec)(nil)
