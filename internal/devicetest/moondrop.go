package devicetest

import "sync"

// MoondropFirmware emulates the Conexant slot bank: slot writes are
// staged, the enable packet latches them, reads echo the latched
// parameter block.
type MoondropFirmware struct {
	mu      sync.Mutex
	staged  map[int][]byte
	latched map[int][]byte
	pregain []byte
	saves   int
}

// NewMoondropFirmware creates an empty slot bank.
func NewMoondropFirmware() *MoondropFirmware {
	return &MoondropFirmware{
		staged:  make(map[int][]byte),
		latched: make(map[int][]byte),
		pregain: make([]byte, 2),
	}
}

// Handle implements Firmware.
func (f *MoondropFirmware) Handle(report []byte) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(report) < 3 || report[0] != 0x4B {
		return nil
	}
	packet := report[1:]

	switch packet[0] {
	case 0x01: // write
		switch packet[1] {
		case 0x09: // slot write
			if len(packet) >= 36 {
				f.staged[int(packet[4])] = append([]byte(nil), packet...)
			}
		case 0x0A: // latch
			idx := int(packet[2])
			if staged, ok := f.staged[idx]; ok {
				f.latched[idx] = staged
			}
		case 0x23: // pregain
			if len(packet) >= 5 {
				f.pregain = append([]byte(nil), packet[3:5]...)
			}
		case 0x01: // save to flash
			f.saves++
		}
	case 0x80: // read
		switch packet[1] {
		case 0x09:
			idx := int(packet[4])
			resp := make([]byte, 63)
			copy(resp, f.latched[idx])
			return [][]byte{resp}
		case 0x03:
			resp := make([]byte, 63)
			copy(resp[3:], f.pregain)
			return [][]byte{resp}
		}
	}
	return nil
}

// Saves returns how many flash saves arrived.
func (f *MoondropFirmware) Saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

// Latched returns a copy of the latched packet for a slot.
func (f *MoondropFirmware) Latched(index int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.latched[index]...)
}
