// Package qudelix implements the Qudelix-5K V3 wire protocol.
//
// The device speaks a framed command protocol over a vendor-defined
// HID interface: every frame starts with a length byte, a 0x80 marker
// and a big-endian command ID. Writes are plain command frames; the
// current EQ state is read back as a chunked preset blob that must be
// reassembled by offset. Three EQ groups exist with different band
// counts, and custom preset slots 22-41 can be saved, loaded and named.
//
// Command payload integers are big-endian; integers inside the preset
// blob are little-endian. This asymmetry is the firmware's, not ours.
package qudelix

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/daceq/daceq-go/pkg/peq"
	"github.com/daceq/daceq-go/pkg/protocol"
	"github.com/daceq/daceq-go/pkg/transport"
)

// USB identification. The vendor-defined usage page tells the control
// interface apart from the device's audio-class interfaces.
const (
	VendorID    = 0x0A12
	ProductID   = 0x4125
	ReportIDOut = 8
	ReportIDIn  = 9
	UsagePage   = 0xFF00
)

const reportSize = 64

// Commands.
const (
	cmdReqInitData   = 0x0100
	cmdSetEnable     = 0x0700
	cmdSetType       = 0x0701
	cmdSetPregain    = 0x0703
	cmdSetBandParam  = 0x070F
	cmdReqPreset     = 0x0123
	cmdRspPreset     = 0x0128
	cmdSavePreset    = 0x0708
	cmdLoadPreset    = 0x0709
	cmdSetPresetName = 0x070A
	cmdReqPresetName = 0x070B
	cmdRspPresetName = 0x070C
	cmdSetMode       = 0x070E
)

// V3 filter type codes.
const (
	typeBypass    = 0
	typeLowPass   = 1
	typeHighPass  = 2
	typeLowShelf  = 3
	typeHighShelf = 4
	typePeak      = 5
)

// Preset slot ranges.
const (
	PresetFlat         = 0
	PresetFactoryStart = 1
	PresetFactoryEnd   = 21
	PresetCustomStart  = 22
	PresetCustomEnd    = 41
	PresetQxOverStart  = 42
	PresetQxOverEnd    = 52
)

// MaxPresetNameLen bounds custom preset names on the wire.
const MaxPresetNameLen = 20

// Timing.
const (
	cmdDelay     = 50 * time.Millisecond
	settleDelay  = 100 * time.Millisecond
	initDelay    = 300 * time.Millisecond
	chunkTimeout = 2 * time.Second
)

// Mode selects which EQ groups are active.
type Mode uint8

const (
	// ModeUsrSpk activates the USR and SPK groups.
	ModeUsrSpk Mode = 0

	// ModeB20 activates the 20-band group.
	ModeB20 Mode = 1
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeUsrSpk:
		return "USR_SPK"
	case ModeB20:
		return "B20"
	default:
		return "UNKNOWN"
	}
}

// Group identifies one EQ group.
type Group uint8

const (
	// GroupUser is the 10-band user EQ.
	GroupUser Group = 0

	// GroupSpeaker is the 10-band stereo speaker EQ.
	GroupSpeaker Group = 1

	// GroupBand20 is the 20-band EQ.
	GroupBand20 Group = 2
)

// String returns the group name.
func (g Group) String() string {
	switch g {
	case GroupUser:
		return "USR"
	case GroupSpeaker:
		return "SPK"
	case GroupBand20:
		return "B20"
	default:
		return "UNKNOWN"
	}
}

// MaxBands returns the group's band count.
func (g Group) MaxBands() int {
	if g == GroupBand20 {
		return 20
	}
	return 10
}

// chanMask returns the channel mask writes address. SPK writes both
// channels; independent left/right EQ is not supported.
func (g Group) chanMask() byte {
	if g == GroupSpeaker {
		return 0x03
	}
	return 0x01
}

// stereoFreqs reports whether the preset blob carries a redundant
// right-channel frequency array.
func (g Group) stereoFreqs() bool {
	return g == GroupUser || g == GroupSpeaker
}

// ErrNoPresetData indicates the chunked preset response never completed.
var ErrNoPresetData = fmt.Errorf("%w: no preset data received", protocol.ErrTransportTimeout)

// Codec implements protocol.Codec for one Qudelix EQ group.
type Codec struct {
	group Group
}

// New returns a codec for the user EQ group.
func New() *Codec { return &Codec{group: GroupUser} }

// NewGroup returns a codec addressing the given EQ group.
func NewGroup(g Group) *Codec { return &Codec{group: g} }

// Group returns the group this codec addresses.
func (c *Codec) Group() Group { return c.group }

// Family implements protocol.Codec.
func (*Codec) Family() string { return "qudelix" }

// Capabilities implements protocol.Codec. The band count depends on
// the group; firmware state is applied immediately per command, so a
// failed write can be retried after the settle delay.
func (c *Codec) Capabilities() peq.DeviceCapabilities {
	return peq.DeviceCapabilities{
		MaxFilters:       c.group.MaxBands(),
		SupportedTypes:   []peq.FilterType{peq.FilterPeak, peq.FilterLowShelf, peq.FilterHighShelf},
		GainRange:        peq.Range{Min: -20, Max: 20},
		PregainRange:     peq.Range{Min: -12, Max: 12},
		FreqRange:        peq.Range{Min: 20, Max: 20000},
		QRange:           peq.Range{Min: 0.1, Max: 10},
		SupportsRead:     true,
		SupportsWrite:    true,
		RetryAfterSettle: true,
	}
}

// Matches reports whether an enumerated interface is the Qudelix-5K
// control interface. The audio-class interfaces under the same VID/PID
// are rejected by usage page.
func Matches(info transport.DeviceInfo) bool {
	if info.VendorID != VendorID || info.ProductID != ProductID {
		return false
	}
	product := strings.ToUpper(info.Product)
	if !strings.Contains(product, "QUDELIX") && !strings.Contains(product, "5K") {
		return false
	}
	return info.UsagePage == UsagePage
}

// EncodeProfile implements protocol.Codec. The sequence enables the
// group, forces PEQ filter mode, sets pregain, writes every band and
// bypasses the rest. Parameters take effect per command; there is no
// separate commit, the trailing settle covers the last band.
func (c *Codec) EncodeProfile(p peq.PEQProfile) (protocol.WriteSequence, []protocol.Warning, error) {
	if err := c.Capabilities().ValidateProfile(p); err != nil {
		return protocol.WriteSequence{}, nil, err
	}

	g := byte(c.group)
	mask := c.group.chanMask()
	seq := protocol.WriteSequence{Name: fmt.Sprintf("qudelix write profile (%s)", c.group)}
	seq.Steps = append(seq.Steps,
		step(protocol.StepEnable, "enable eq", cmdSetEnable, []byte{g, 1}),
		step(protocol.StepEnable, "set peq mode", cmdSetType, []byte{g, 1}),
	)

	pregain, err := encodePregainPayload(g, mask, p.Pregain)
	if err != nil {
		return protocol.WriteSequence{}, nil, err
	}
	seq.Steps = append(seq.Steps, step(protocol.StepValue, "pregain", cmdSetPregain, pregain))

	for i, f := range p.Filters {
		payload, err := encodeBandPayload(g, mask, i, f)
		if err != nil {
			return protocol.WriteSequence{}, nil, err
		}
		seq.Steps = append(seq.Steps, step(protocol.StepValue, fmt.Sprintf("band %d", i), cmdSetBandParam, payload))
	}

	for i := len(p.Filters); i < c.group.MaxBands(); i++ {
		bypass := []byte{g, mask, byte(i), typeBypass, 0, 0, 0, 0, 0, 0}
		seq.Steps = append(seq.Steps, step(protocol.StepValue, fmt.Sprintf("bypass band %d", i), cmdSetBandParam, bypass))
	}

	// Extend the last step's settle so the firmware finishes applying.
	seq.Steps[len(seq.Steps)-1].SettleAfter = settleDelay
	return seq, nil, nil
}

// EncodePregain implements protocol.Codec.
func (c *Codec) EncodePregain(db float64) (protocol.WriteSequence, error) {
	if !c.Capabilities().PregainRange.Contains(db) {
		return protocol.WriteSequence{}, fmt.Errorf("%w: pregain %.1f dB", peq.ErrOutOfRange, db)
	}
	payload, err := encodePregainPayload(byte(c.group), c.group.chanMask(), db)
	if err != nil {
		return protocol.WriteSequence{}, err
	}
	s := step(protocol.StepValue, "pregain", cmdSetPregain, payload)
	s.SettleAfter = settleDelay
	return protocol.WriteSequence{
		Name:  fmt.Sprintf("qudelix set pregain (%s)", c.group),
		Steps: []protocol.Step{s},
	}, nil
}

// ReadProfile implements protocol.Codec. The device answers the preset
// request with a chunked blob; chunks carry their own offsets and may
// arrive out of order. For stereo groups only the left channel is read.
func (c *Codec) ReadProfile(conn protocol.Conn) (peq.PEQProfile, error) {
	if err := initHandshake(conn); err != nil {
		return peq.PEQProfile{}, err
	}

	if err := conn.Send(frame(cmdReqPreset, []byte{1 << byte(c.group)})); err != nil {
		return peq.PEQProfile{}, fmt.Errorf("preset request: %w", err)
	}
	conn.Wait(settleDelay, "preset settle")

	blob, err := collectChunks(conn, byte(c.group))
	if err != nil {
		return peq.PEQProfile{}, err
	}
	return parsePreset(blob, c.group)
}

// EncodeLoadPreset builds the sequence loading a stored preset into the
// group. QxOver slots are valid for the speaker group only.
func (c *Codec) EncodeLoadPreset(index int) (protocol.WriteSequence, error) {
	if index < PresetFlat || index > PresetQxOverEnd {
		return protocol.WriteSequence{}, fmt.Errorf("preset index %d out of range", index)
	}
	if index >= PresetQxOverStart && c.group != GroupSpeaker {
		return protocol.WriteSequence{}, fmt.Errorf("preset %d valid for %s group only", index, GroupSpeaker)
	}
	s := step(protocol.StepValue, fmt.Sprintf("load preset %d", index), cmdLoadPreset, []byte{byte(c.group), byte(index)})
	s.SettleAfter = settleDelay
	return protocol.WriteSequence{
		Name:  fmt.Sprintf("qudelix load preset (%s)", c.group),
		Steps: []protocol.Step{s},
	}, nil
}

// EncodeSavePreset builds the sequence saving the group's current EQ
// into a custom slot. Factory slots are read-only.
func (c *Codec) EncodeSavePreset(index int) (protocol.WriteSequence, error) {
	if index < PresetCustomStart || index > PresetCustomEnd {
		return protocol.WriteSequence{}, fmt.Errorf("can only save to custom presets (%d-%d), got %d",
			PresetCustomStart, PresetCustomEnd, index)
	}
	s := step(protocol.StepCommit, fmt.Sprintf("save preset %d", index), cmdSavePreset, []byte{byte(c.group), byte(index)})
	s.SettleAfter = settleDelay
	return protocol.WriteSequence{
		Name:  fmt.Sprintf("qudelix save preset (%s)", c.group),
		Steps: []protocol.Step{s},
	}, nil
}

// EncodeSetMode builds the sequence switching the active EQ groups.
func (c *Codec) EncodeSetMode(m Mode) (protocol.WriteSequence, error) {
	if m != ModeUsrSpk && m != ModeB20 {
		return protocol.WriteSequence{}, fmt.Errorf("invalid eq mode %d", m)
	}
	s := step(protocol.StepValue, fmt.Sprintf("set mode %s", m), cmdSetMode, []byte{byte(m)})
	s.SettleAfter = settleDelay
	return protocol.WriteSequence{
		Name:  "qudelix set eq mode",
		Steps: []protocol.Step{s},
	}, nil
}

// EncodeSetPresetName builds the sequence naming a custom slot. Names
// longer than MaxPresetNameLen bytes are truncated.
func (c *Codec) EncodeSetPresetName(index int, name string) (protocol.WriteSequence, error) {
	if index < PresetCustomStart || index > PresetCustomEnd {
		return protocol.WriteSequence{}, fmt.Errorf("can only name custom presets (%d-%d), got %d",
			PresetCustomStart, PresetCustomEnd, index)
	}
	raw := []byte(name)
	if len(raw) > MaxPresetNameLen {
		raw = raw[:MaxPresetNameLen]
	}
	payload := append([]byte{byte(c.group), byte(index - PresetCustomStart), byte(len(raw))}, raw...)
	s := step(protocol.StepValue, fmt.Sprintf("name preset %d", index), cmdSetPresetName, payload)
	s.SettleAfter = settleDelay
	return protocol.WriteSequence{
		Name:  fmt.Sprintf("qudelix set preset name (%s)", c.group),
		Steps: []protocol.Step{s},
	}, nil
}

// ReadPresetName requests and decodes a custom slot's name.
func (c *Codec) ReadPresetName(conn protocol.Conn, index int) (string, error) {
	if index < PresetCustomStart || index > PresetCustomEnd {
		return "", fmt.Errorf("can only read custom preset names (%d-%d), got %d",
			PresetCustomStart, PresetCustomEnd, index)
	}
	if err := initHandshake(conn); err != nil {
		return "", err
	}

	customIdx := byte(index - PresetCustomStart)
	if err := conn.Send(frame(cmdReqPresetName, []byte{byte(c.group), customIdx})); err != nil {
		return "", fmt.Errorf("preset name request: %w", err)
	}
	conn.Wait(settleDelay, "preset name settle")

	deadline := 1 * time.Second
	for {
		report, err := conn.Receive(deadline)
		if err != nil {
			return "", fmt.Errorf("preset name: %w", err)
		}
		data := stripReportID(report)
		if len(data) < 6 {
			continue
		}
		if cmd := uint16(data[1])<<8 | uint16(data[2]); cmd != cmdRspPresetName {
			continue
		}
		if data[3] != byte(c.group) || data[4] != customIdx {
			continue
		}
		nameLen := int(data[5])
		if 6+nameLen > len(data) {
			return "", fmt.Errorf("%w: name length %d", protocol.ErrMalformedResponse, nameLen)
		}
		return string(data[6 : 6+nameLen]), nil
	}
}

func initHandshake(conn protocol.Conn) error {
	if err := conn.Send(frame(cmdReqInitData, []byte{0x00, 0x00, 0x04})); err != nil {
		return fmt.Errorf("init handshake: %w", err)
	}
	conn.Wait(initDelay, "init settle")
	drain(conn)
	return nil
}

// drain discards queued init chatter so later collectors start clean.
func drain(conn protocol.Conn) {
	for i := 0; i < 20; i++ {
		if _, err := conn.Receive(0); err != nil {
			return
		}
	}
}

func collectChunks(conn protocol.Conn, groupID byte) ([]byte, error) {
	type chunk struct {
		offset int
		data   []byte
	}
	chunks := make(map[int]chunk)
	lastIdx := -1

	for {
		report, err := conn.Receive(chunkTimeout)
		if err != nil {
			if len(chunks) == 0 {
				return nil, ErrNoPresetData
			}
			return nil, fmt.Errorf("preset chunk: %w", err)
		}
		data := stripReportID(report)
		if len(data) < 9 || data[0] < 3 {
			continue
		}
		if cmd := uint16(data[1])<<8 | uint16(data[2]); cmd != cmdRspPreset {
			continue
		}
		if data[3] != groupID {
			continue
		}

		idxByte := data[4]
		lastIdx = int(idxByte >> 4 & 0x0F)
		chunkIdx := int(idxByte & 0x0F)
		size := int(data[5])<<8 | int(data[6])
		offset := int(data[7])<<8 | int(data[8])
		if 9+size > len(data) {
			return nil, fmt.Errorf("%w: chunk size %d exceeds report", protocol.ErrMalformedResponse, size)
		}
		chunks[chunkIdx] = chunk{offset: offset, data: append([]byte(nil), data[9:9+size]...)}
		if len(chunks) == lastIdx+1 {
			break
		}
	}

	var blob []byte
	for i := 0; i <= lastIdx; i++ {
		c, ok := chunks[i]
		if !ok {
			return nil, fmt.Errorf("%w: missing chunk %d", protocol.ErrMalformedResponse, i)
		}
		if need := c.offset + len(c.data); need > len(blob) {
			blob = append(blob, make([]byte, need-len(blob))...)
		}
		copy(blob[c.offset:], c.data)
	}
	return blob, nil
}

// parsePreset decodes the reassembled blob. Layout per group:
//
//	USR/SPK: header(4) pregain(4) freqL(2xN) freqR(2xN) params(4xN)
//	B20:     header(4) pregain(4) freq(2xN)             params(4xN)
//
// Band params pack [rsv:4][q:14][gain:10][type:4] little-endian.
func parsePreset(blob []byte, g Group) (peq.PEQProfile, error) {
	bands := g.MaxBands()
	if len(blob) < 8 {
		return peq.PEQProfile{}, fmt.Errorf("%w: preset blob %d bytes", protocol.ErrMalformedResponse, len(blob))
	}

	var profile peq.PEQProfile
	offset := 4
	profile.Pregain = float64(int16(binary.LittleEndian.Uint16(blob[offset:]))) / 10
	offset += 4 // left and right pregain

	freqs := make([]float64, 0, bands)
	for i := 0; i < bands; i++ {
		if offset+2 > len(blob) {
			break
		}
		freqs = append(freqs, float64(binary.LittleEndian.Uint16(blob[offset:])))
		offset += 2
	}
	if g.stereoFreqs() {
		offset += bands * 2
	}

	for i := 0; i < bands; i++ {
		if offset+4 > len(blob) {
			break
		}
		packed := binary.LittleEndian.Uint32(blob[offset:])
		offset += 4

		ftype := packed & 0x0F
		gainRaw := int32(packed >> 4 & 0x3FF)
		if gainRaw&0x200 != 0 {
			gainRaw -= 0x400
		}
		qRaw := packed >> 14 & 0x3FFF

		if ftype == typeBypass && gainRaw == 0 {
			continue
		}

		freq := 1000.0
		if i < len(freqs) {
			freq = freqs[i]
		}
		profile.Filters = append(profile.Filters, peq.FilterDefinition{
			Type:      typeFromWire(byte(ftype)),
			Frequency: freq,
			Gain:      math.Round(float64(gainRaw)) / 10,
			Q:         math.Round(float64(qRaw)/1024*100) / 100,
		})
	}
	return profile, nil
}

func encodeBandPayload(g, mask byte, band int, f peq.FilterDefinition) ([]byte, error) {
	freq := int(math.Round(f.Frequency))
	if freq < 0 || freq > 0xFFFF {
		return nil, fmt.Errorf("%w: frequency %g Hz", protocol.ErrEncodingOutOfRange, f.Frequency)
	}
	gain := int(math.Round(f.Gain * 10))
	if gain < -0x8000 || gain > 0x7FFF {
		return nil, fmt.Errorf("%w: gain %g dB", protocol.ErrEncodingOutOfRange, f.Gain)
	}
	q := int(math.Round(f.Q * 1024))
	if q < 0 || q > 0xFFFF {
		return nil, fmt.Errorf("%w: q %g", protocol.ErrEncodingOutOfRange, f.Q)
	}
	typeByte, err := typeToWire(f.Type)
	if err != nil {
		return nil, err
	}

	// Band parameters are big-endian, unlike the preset blob.
	return []byte{
		g, mask, byte(band), typeByte,
		byte(freq >> 8), byte(freq),
		byte(gain >> 8), byte(gain),
		byte(q >> 8), byte(q),
	}, nil
}

func encodePregainPayload(g, mask byte, db float64) ([]byte, error) {
	scaled := int(math.Round(db * 10))
	if scaled < -0x8000 || scaled > 0x7FFF {
		return nil, fmt.Errorf("%w: pregain %g dB", protocol.ErrEncodingOutOfRange, db)
	}
	return []byte{g, mask, 0, byte(scaled >> 8), byte(scaled)}, nil
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

// typeFromWire maps wire codes back to interchange types. The LPF and
// HPF codes have no interchange equivalent and fold into peak, as does
// an unknown code.
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

// frame builds the padded 64-byte command frame plus report ID:
// [len, 0x80, cmdHi, cmdLo, payload...].
func frame(cmd uint16, payload []byte) []byte {
	out := make([]byte, reportSize+1)
	out[0] = ReportIDOut
	out[1] = byte(len(payload) + 3)
	out[2] = 0x80
	out[3] = byte(cmd >> 8)
	out[4] = byte(cmd)
	copy(out[5:], payload)
	return out
}

// stripReportID drops the input report ID when present.
func stripReportID(report []byte) []byte {
	if len(report) > 0 && report[0] == ReportIDIn {
		return report[1:]
	}
	return report
}

func step(kind protocol.StepKind, name string, cmd uint16, payload []byte) protocol.Step {
	return protocol.Step{
		Kind:        kind,
		Name:        name,
		Report:      frame(cmd, payload),
		SettleAfter: cmdDelay,
	}
}

// Compile-time interface satisfaction check.
var _ protocol.Codec = (*Codec)(nil)
