package devicetest

// QudelixFirmware emulates the Qudelix-5K V3 command protocol: framed
// commands on output report 8, responses on input report 9, and EQ
// state read back as a chunked preset blob.
type QudelixFirmware struct {
	enabled map[byte]bool
	ftMode  map[byte]byte
	pregain map[byte]int16
	bands   map[byte][]qudelixBand

	presets     map[int]qudelixPreset
	presetNames map[int]string
	mode        byte
	saves       int

	// ChunkSize bounds preset chunk payloads. Zero means 48.
	ChunkSize int

	// NoiseOnInit queues an unrelated frame after the init handshake
	// so readers must filter by command ID.
	NoiseOnInit bool
}

type qudelixBand struct {
	ftype byte
	freq  uint16
	gain  int16
	q     uint16
}

type qudelixPreset struct {
	pregain int16
	bands   []qudelixBand
}

// NewQudelixFirmware returns a blank device.
func NewQudelixFirmware() *QudelixFirmware {
	return &QudelixFirmware{
		enabled:     make(map[byte]bool),
		ftMode:      make(map[byte]byte),
		pregain:     make(map[byte]int16),
		bands:       make(map[byte][]qudelixBand),
		presets:     make(map[int]qudelixPreset),
		presetNames: make(map[int]string),
	}
}

// Saves returns how many preset saves the device has seen.
func (f *QudelixFirmware) Saves() int { return f.saves }

// Mode returns the last EQ mode set.
func (f *QudelixFirmware) Mode() byte { return f.mode }

// PresetName returns the stored name for an absolute preset index.
func (f *QudelixFirmware) PresetName(index int) string { return f.presetNames[index] }

// Band returns the stored parameters of one band as (type, freq,
// gain x10, q x1024).
func (f *QudelixFirmware) Band(group byte, i int) (byte, uint16, int16, uint16) {
	bands := f.bands[group]
	if i >= len(bands) {
		return 0, 0, 0, 0
	}
	b := bands[i]
	return b.ftype, b.freq, b.gain, b.q
}

const qudelixBandCap = 20

func (f *QudelixFirmware) groupBands(group byte) []qudelixBand {
	if f.bands[group] == nil {
		f.bands[group] = make([]qudelixBand, qudelixBandCap)
	}
	return f.bands[group]
}

func qudelixGroupBandCount(group byte) int {
	if group == 2 {
		return 20
	}
	return 10
}

// Handle implements Firmware.
func (f *QudelixFirmware) Handle(report []byte) [][]byte {
	if len(report) < 5 || report[0] != 8 {
		return nil
	}
	frame := report[1:]
	frameLen := int(frame[0])
	if frameLen < 3 || frame[1] != 0x80 {
		return nil
	}
	cmd := uint16(frame[2])<<8 | uint16(frame[3])
	payload := frame[4:]
	if n := frameLen - 3; n <= len(payload) {
		payload = payload[:n]
	}

	switch cmd {
	case 0x0100: // init
		if f.NoiseOnInit {
			return [][]byte{f.respond(0x0130, []byte{0x01})}
		}
	case 0x0700:
		if len(payload) >= 2 {
			f.enabled[payload[0]] = payload[1] != 0
		}
	case 0x0701:
		if len(payload) >= 2 {
			f.ftMode[payload[0]] = payload[1]
		}
	case 0x0703:
		if len(payload) >= 5 {
			f.pregain[payload[0]] = int16(payload[3])<<8 | int16(payload[4])
		}
	case 0x070F:
		if len(payload) >= 10 {
			bands := f.groupBands(payload[0])
			i := int(payload[2])
			if i < len(bands) {
				bands[i] = qudelixBand{
					ftype: payload[3],
					freq:  uint16(payload[4])<<8 | uint16(payload[5]),
					gain:  int16(payload[6])<<8 | int16(payload[7]),
					q:     uint16(payload[8])<<8 | uint16(payload[9]),
				}
			}
		}
	case 0x0123:
		if len(payload) >= 1 {
			return f.presetResponses(payload[0])
		}
	case 0x0708:
		if len(payload) >= 2 {
			group, idx := payload[0], int(payload[1])
			bands := append([]qudelixBand(nil), f.groupBands(group)...)
			f.presets[idx] = qudelixPreset{pregain: f.pregain[group], bands: bands}
			f.saves++
		}
	case 0x0709:
		if len(payload) >= 2 {
			group, idx := payload[0], int(payload[1])
			if p, ok := f.presets[idx]; ok {
				f.pregain[group] = p.pregain
				f.bands[group] = append([]qudelixBand(nil), p.bands...)
			}
		}
	case 0x070A:
		if len(payload) >= 3 {
			idx := int(payload[1]) + 22
			n := int(payload[2])
			if 3+n <= len(payload) {
				f.presetNames[idx] = string(payload[3 : 3+n])
			}
		}
	case 0x070B:
		if len(payload) >= 2 {
			idx := int(payload[1]) + 22
			name := []byte(f.presetNames[idx])
			rsp := append([]byte{payload[0], payload[1], byte(len(name))}, name...)
			return [][]byte{f.respond(0x070C, rsp)}
		}
	case 0x070E:
		if len(payload) >= 1 {
			f.mode = payload[0]
		}
	}
	return nil
}

// respond builds an input report: [9, len, cmdHi, cmdLo, data...].
func (f *QudelixFirmware) respond(cmd uint16, data []byte) []byte {
	out := make([]byte, 0, len(data)+4)
	out = append(out, 9, byte(len(data)+3), byte(cmd>>8), byte(cmd))
	return append(out, data...)
}

// presetResponses builds the chunked preset replies for every group
// whose bit is set in the request mask.
func (f *QudelixFirmware) presetResponses(mask byte) [][]byte {
	chunkSize := f.ChunkSize
	if chunkSize == 0 {
		chunkSize = 48
	}

	var out [][]byte
	for group := byte(0); group < 3; group++ {
		if mask&(1<<group) == 0 {
			continue
		}
		blob := f.presetBlob(group)
		last := (len(blob) - 1) / chunkSize
		for i := 0; i <= last; i++ {
			off := i * chunkSize
			end := off + chunkSize
			if end > len(blob) {
				end = len(blob)
			}
			chunk := blob[off:end]
			hdr := []byte{
				group,
				byte(last<<4) | byte(i),
				byte(len(chunk) >> 8), byte(len(chunk)),
				byte(off >> 8), byte(off),
			}
			out = append(out, f.respond(0x0128, append(hdr, chunk...)))
		}
	}
	return out
}

// presetBlob serializes the group's live EQ state in the device's
// little-endian preset layout.
func (f *QudelixFirmware) presetBlob(group byte) []byte {
	bandCount := qudelixGroupBandCount(group)
	bands := f.groupBands(group)

	blob := make([]byte, 0, 8+bandCount*8)
	blob = append(blob, 0, 0, 0, 0) // header

	pg := f.pregain[group]
	blob = append(blob, byte(pg), byte(pg>>8), byte(pg), byte(pg>>8))

	freqs := make([]byte, 0, bandCount*2)
	for i := 0; i < bandCount; i++ {
		freqs = append(freqs, byte(bands[i].freq), byte(bands[i].freq>>8))
	}
	blob = append(blob, freqs...)
	if group != 2 {
		blob = append(blob, freqs...) // right channel mirrors left
	}

	for i := 0; i < bandCount; i++ {
		b := bands[i]
		packed := uint32(b.ftype)&0x0F |
			(uint32(b.gain)&0x3FF)<<4 |
			(uint32(b.q)&0x3FFF)<<14
		blob = append(blob,
			byte(packed), byte(packed>>8), byte(packed>>16), byte(packed>>24))
	}
	return blob
}
