package devicetest

import "sync"

// TanchjimFirmware emulates the Tanchjim register file: writes land in
// per-field registers, reads echo them back, commit snapshots the
// staged state.
type TanchjimFirmware struct {
	mu        sync.Mutex
	regs      map[byte][]byte
	commits   int
	committed map[byte][]byte
}

// NewTanchjimFirmware creates an empty register file.
func NewTanchjimFirmware() *TanchjimFirmware {
	return &TanchjimFirmware{
		regs:      make(map[byte][]byte),
		committed: make(map[byte][]byte),
	}
}

// Handle implements Firmware.
func (f *TanchjimFirmware) Handle(report []byte) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(report) < 12 || report[0] != 0x4B {
		return nil
	}
	packet := report[1:]
	fieldID := packet[0]

	switch packet[4] {
	case 0x57: // write
		f.regs[fieldID] = append([]byte(nil), packet[6:11]...)
		return nil
	case 0x53: // commit
		f.commits++
		f.committed = make(map[byte][]byte)
		for k, v := range f.regs {
			f.committed[k] = append([]byte(nil), v...)
		}
		return nil
	case 0x52: // read
		resp := make([]byte, 12)
		resp[0] = 0x4B
		resp[1] = fieldID
		resp[5] = 0x52
		copy(resp[7:], f.regs[fieldID])
		return [][]byte{resp}
	}
	return nil
}

// Commits returns how many commit commands arrived.
func (f *TanchjimFirmware) Commits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}

// Register returns a copy of the staged payload for a field ID.
func (f *TanchjimFirmware) Register(fieldID byte) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.regs[fieldID]...)
}
