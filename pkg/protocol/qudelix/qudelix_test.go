package qudelix

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/daceq/daceq-go/internal/devicetest"
	"github.com/daceq/daceq-go/pkg/peq"
	"github.com/daceq/daceq-go/pkg/protocol"
	"github.com/daceq/daceq-go/pkg/transport"
)

func testProfile() peq.PEQProfile {
	return peq.PEQProfile{
		Pregain: -4.2,
		Filters: []peq.FilterDefinition{
			{Type: peq.FilterLowShelf, Frequency: 105, Gain: 4.5, Q: 0.71},
			{Type: peq.FilterPeak, Frequency: 1250, Gain: -6.2, Q: 1.41},
			{Type: peq.FilterHighShelf, Frequency: 8000, Gain: 2, Q: 0.5},
		},
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name string
		info transport.DeviceInfo
		want bool
	}{
		{"control interface", transport.DeviceInfo{VendorID: VendorID, ProductID: ProductID, Product: "Qudelix-5K USB DAC", UsagePage: UsagePage}, true},
		{"5k keyword", transport.DeviceInfo{VendorID: VendorID, ProductID: ProductID, Product: "QX 5K", UsagePage: UsagePage}, true},
		{"audio interface", transport.DeviceInfo{VendorID: VendorID, ProductID: ProductID, Product: "Qudelix-5K USB DAC", UsagePage: 0x000C}, false},
		{"wrong vendor", transport.DeviceInfo{VendorID: 0x1234, ProductID: ProductID, Product: "Qudelix-5K", UsagePage: UsagePage}, false},
		{"wrong product id", transport.DeviceInfo{VendorID: VendorID, ProductID: 0x4126, Product: "Qudelix-5K", UsagePage: UsagePage}, false},
		{"unrelated product", transport.DeviceInfo{VendorID: VendorID, ProductID: ProductID, Product: "Headset", UsagePage: UsagePage}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.info); got != tt.want {
				t.Errorf("Matches(%+v) = %v, want %v", tt.info, got, tt.want)
			}
		})
	}
}

func TestEncodeProfileStepLayout(t *testing.T) {
	seq, warnings, err := New().EncodeProfile(peq.PEQProfile{
		Pregain: -6.5,
		Filters: []peq.FilterDefinition{
			{Type: peq.FilterPeak, Frequency: 1000, Gain: 5.5, Q: 1.41},
		},
	})
	if err != nil {
		t.Fatalf("EncodeProfile: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}

	// Enable + type + pregain + 1 band + 9 bypassed bands.
	if len(seq.Steps) != 13 {
		t.Fatalf("got %d steps, want 13", len(seq.Steps))
	}

	wantEnable := frame(0x0700, []byte{0, 1})
	if !bytes.Equal(seq.Steps[0].Report, wantEnable) {
		t.Errorf("enable report = % X, want % X", seq.Steps[0].Report, wantEnable)
	}

	// Pregain -6.5 -> -65 -> 0xFFBF big-endian.
	wantPregain := frame(0x0703, []byte{0, 0x01, 0, 0xFF, 0xBF})
	if !bytes.Equal(seq.Steps[2].Report, wantPregain) {
		t.Errorf("pregain report = % X, want % X", seq.Steps[2].Report, wantPregain)
	}

	// Band 0: PK=5, freq 1000 -> 0x03E8, gain 55 -> 0x0037, q 1444 -> 0x05A4.
	wantBand := frame(0x070F, []byte{0, 0x01, 0, 5, 0x03, 0xE8, 0x00, 0x37, 0x05, 0xA4})
	if !bytes.Equal(seq.Steps[3].Report, wantBand) {
		t.Errorf("band report = % X, want % X", seq.Steps[3].Report, wantBand)
	}

	// Unused bands become explicit bypass writes.
	wantBypass := frame(0x070F, []byte{0, 0x01, 5, 0, 0, 0, 0, 0, 0, 0})
	if !bytes.Equal(seq.Steps[8].Report, wantBypass) {
		t.Errorf("bypass report = % X, want % X", seq.Steps[8].Report, wantBypass)
	}

	for i, s := range seq.Steps[:len(seq.Steps)-1] {
		if s.SettleAfter != 50*time.Millisecond {
			t.Errorf("step %d settle = %v, want 50ms", i, s.SettleAfter)
		}
	}
	if last := seq.Steps[len(seq.Steps)-1]; last.SettleAfter != 100*time.Millisecond {
		t.Errorf("final settle = %v, want 100ms", last.SettleAfter)
	}
}

func TestEncodeProfileBand20(t *testing.T) {
	seq, _, err := NewGroup(GroupBand20).EncodeProfile(testProfile())
	if err != nil {
		t.Fatalf("EncodeProfile: %v", err)
	}
	// Enable + type + pregain + 3 bands + 17 bypassed bands.
	if len(seq.Steps) != 23 {
		t.Fatalf("got %d steps, want 23", len(seq.Steps))
	}
	// B20 is group 2 with channel mask 1.
	if got := seq.Steps[3].Report[5]; got != 2 {
		t.Errorf("group byte = %d, want 2", got)
	}
	if got := seq.Steps[3].Report[6]; got != 1 {
		t.Errorf("chan mask = %d, want 1", got)
	}
}

func TestEncodeProfileSpeakerMask(t *testing.T) {
	seq, _, err := NewGroup(GroupSpeaker).EncodeProfile(testProfile())
	if err != nil {
		t.Fatalf("EncodeProfile: %v", err)
	}
	if got := seq.Steps[3].Report[6]; got != 0x03 {
		t.Errorf("chan mask = %#x, want 0x03", got)
	}
}

func TestEncodeProfileRejectsTooManyFilters(t *testing.T) {
	p := peq.PEQProfile{}
	for i := 0; i < 11; i++ {
		p.Filters = append(p.Filters, peq.FilterDefinition{
			Type: peq.FilterPeak, Frequency: 1000, Gain: 1, Q: 1,
		})
	}
	if _, _, err := New().EncodeProfile(p); !errors.Is(err, peq.ErrTooManyFilters) {
		t.Errorf("err = %v, want ErrTooManyFilters", err)
	}
}

func runSequence(t *testing.T, tx *protocol.Transactor, seq protocol.WriteSequence) {
	t.Helper()
	if err := tx.Run(seq); err != nil {
		t.Fatalf("Run(%s): %v", seq.Name, err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	fw := devicetest.NewQudelixFirmware()
	tr := devicetest.NewTransport(fw)
	tx := protocol.NewTransactor(tr, devicetest.NewClock(), nil, "h1", "qudelix")

	codec := New()
	want := testProfile()
	seq, warnings, err := codec.EncodeProfile(want)
	if err != nil {
		t.Fatalf("EncodeProfile: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	runSequence(t, tx, seq)

	got, err := codec.ReadProfile(tx)
	if err != nil {
		t.Fatalf("ReadProfile: %v", err)
	}
	if math.Abs(got.Pregain-want.Pregain) > 0.05 {
		t.Errorf("pregain = %g, want %g", got.Pregain, want.Pregain)
	}
	if len(got.Filters) != len(want.Filters) {
		t.Fatalf("got %d filters, want %d", len(got.Filters), len(want.Filters))
	}
	for i, w := range want.Filters {
		g := got.Filters[i]
		if g.Type != w.Type {
			t.Errorf("filter %d type = %s, want %s", i, g.Type, w.Type)
		}
		if g.Frequency != w.Frequency {
			t.Errorf("filter %d freq = %g, want %g", i, g.Frequency, w.Frequency)
		}
		if math.Abs(g.Gain-w.Gain) > 0.05 {
			t.Errorf("filter %d gain = %g, want %g", i, g.Gain, w.Gain)
		}
		if math.Abs(g.Q-w.Q) > 0.01 {
			t.Errorf("filter %d q = %g, want %g", i, g.Q, w.Q)
		}
	}
}

func TestReadProfileSmallChunks(t *testing.T) {
	fw := devicetest.NewQudelixFirmware()
	fw.ChunkSize = 8
	tr := devicetest.NewTransport(fw)
	tx := protocol.NewTransactor(tr, devicetest.NewClock(), nil, "h1", "qudelix")

	codec := New()
	seq, _, err := codec.EncodeProfile(testProfile())
	if err != nil {
		t.Fatalf("EncodeProfile: %v", err)
	}
	runSequence(t, tx, seq)

	got, err := codec.ReadProfile(tx)
	if err != nil {
		t.Fatalf("ReadProfile: %v", err)
	}
	if len(got.Filters) != 3 {
		t.Errorf("got %d filters, want 3", len(got.Filters))
	}
}

func TestReadProfileFiltersInitNoise(t *testing.T) {
	fw := devicetest.NewQudelixFirmware()
	fw.NoiseOnInit = true
	tr := devicetest.NewTransport(fw)
	tx := protocol.NewTransactor(tr, devicetest.NewClock(), nil, "h1", "qudelix")

	codec := New()
	seq, _, err := codec.EncodeProfile(testProfile())
	if err != nil {
		t.Fatalf("EncodeProfile: %v", err)
	}
	runSequence(t, tx, seq)

	got, err := codec.ReadProfile(tx)
	if err != nil {
		t.Fatalf("ReadProfile: %v", err)
	}
	if len(got.Filters) != 3 {
		t.Errorf("got %d filters, want 3", len(got.Filters))
	}
}

func TestReadProfileBlankDevice(t *testing.T) {
	fw := devicetest.NewQudelixFirmware()
	tr := devicetest.NewTransport(fw)
	tx := protocol.NewTransactor(tr, devicetest.NewClock(), nil, "h1", "qudelix")

	got, err := New().ReadProfile(tx)
	if err != nil {
		t.Fatalf("ReadProfile: %v", err)
	}
	if len(got.Filters) != 0 {
		t.Errorf("got %d filters from blank device", len(got.Filters))
	}
	if got.Pregain != 0 {
		t.Errorf("pregain = %g, want 0", got.Pregain)
	}
}

func TestReadProfileBand20(t *testing.T) {
	fw := devicetest.NewQudelixFirmware()
	tr := devicetest.NewTransport(fw)
	tx := protocol.NewTransactor(tr, devicetest.NewClock(), nil, "h1", "qudelix")

	codec := NewGroup(GroupBand20)
	p := peq.PEQProfile{Pregain: -2}
	for i := 0; i < 15; i++ {
		p.Filters = append(p.Filters, peq.FilterDefinition{
			Type: peq.FilterPeak, Frequency: float64(100 * (i + 1)), Gain: 1.5, Q: 1,
		})
	}
	seq, _, err := codec.EncodeProfile(p)
	if err != nil {
		t.Fatalf("EncodeProfile: %v", err)
	}
	runSequence(t, tx, seq)

	got, err := codec.ReadProfile(tx)
	if err != nil {
		t.Fatalf("ReadProfile: %v", err)
	}
	if len(got.Filters) != 15 {
		t.Fatalf("got %d filters, want 15", len(got.Filters))
	}
	if got.Filters[14].Frequency != 1500 {
		t.Errorf("filter 14 freq = %g, want 1500", got.Filters[14].Frequency)
	}
}

func TestPresetSaveLoadRoundTrip(t *testing.T) {
	fw := devicetest.NewQudelixFirmware()
	tr := devicetest.NewTransport(fw)
	tx := protocol.NewTransactor(tr, devicetest.NewClock(), nil, "h1", "qudelix")
	codec := New()

	seq, _, err := codec.EncodeProfile(testProfile())
	if err != nil {
		t.Fatalf("EncodeProfile: %v", err)
	}
	runSequence(t, tx, seq)

	save, err := codec.EncodeSavePreset(25)
	if err != nil {
		t.Fatalf("EncodeSavePreset: %v", err)
	}
	runSequence(t, tx, save)
	if fw.Saves() != 1 {
		t.Fatalf("saves = %d, want 1", fw.Saves())
	}

	// Flatten the live EQ, then restore from the preset.
	flat, _, err := codec.EncodeProfile(peq.PEQProfile{})
	if err != nil {
		t.Fatalf("EncodeProfile flat: %v", err)
	}
	runSequence(t, tx, flat)

	load, err := codec.EncodeLoadPreset(25)
	if err != nil {
		t.Fatalf("EncodeLoadPreset: %v", err)
	}
	runSequence(t, tx, load)

	got, err := codec.ReadProfile(tx)
	if err != nil {
		t.Fatalf("ReadProfile: %v", err)
	}
	if len(got.Filters) != 3 {
		t.Errorf("got %d filters after load, want 3", len(got.Filters))
	}
}

func TestPresetValidation(t *testing.T) {
	codec := New()
	if _, err := codec.EncodeSavePreset(5); err == nil {
		t.Error("EncodeSavePreset(5) accepted a factory slot")
	}
	if _, err := codec.EncodeSavePreset(42); err == nil {
		t.Error("EncodeSavePreset(42) accepted a qxover slot")
	}
	if _, err := codec.EncodeLoadPreset(59); err == nil {
		t.Error("EncodeLoadPreset(59) accepted an invalid slot")
	}
	if _, err := codec.EncodeLoadPreset(45); err == nil {
		t.Error("EncodeLoadPreset(45) accepted a qxover slot for USR")
	}
	if _, err := NewGroup(GroupSpeaker).EncodeLoadPreset(45); err != nil {
		t.Errorf("EncodeLoadPreset(45) for SPK: %v", err)
	}
}

func TestPresetNameRoundTrip(t *testing.T) {
	fw := devicetest.NewQudelixFirmware()
	tr := devicetest.NewTransport(fw)
	tx := protocol.NewTransactor(tr, devicetest.NewClock(), nil, "h1", "qudelix")
	codec := New()

	seq, err := codec.EncodeSetPresetName(23, "Harman 2019")
	if err != nil {
		t.Fatalf("EncodeSetPresetName: %v", err)
	}
	runSequence(t, tx, seq)
	if got := fw.PresetName(23); got != "Harman 2019" {
		t.Fatalf("stored name = %q", got)
	}

	name, err := codec.ReadPresetName(tx, 23)
	if err != nil {
		t.Fatalf("ReadPresetName: %v", err)
	}
	if name != "Harman 2019" {
		t.Errorf("name = %q, want %q", name, "Harman 2019")
	}
}

func TestSetPresetNameTruncates(t *testing.T) {
	seq, err := New().EncodeSetPresetName(22, "a name well beyond the twenty byte limit")
	if err != nil {
		t.Fatalf("EncodeSetPresetName: %v", err)
	}
	// Payload: group, customIdx, len, name bytes.
	payload := seq.Steps[0].Report[5:]
	if payload[2] != MaxPresetNameLen {
		t.Errorf("name len = %d, want %d", payload[2], MaxPresetNameLen)
	}
}

func TestSetMode(t *testing.T) {
	fw := devicetest.NewQudelixFirmware()
	tr := devicetest.NewTransport(fw)
	tx := protocol.NewTransactor(tr, devicetest.NewClock(), nil, "h1", "qudelix")

	seq, err := New().EncodeSetMode(ModeB20)
	if err != nil {
		t.Fatalf("EncodeSetMode: %v", err)
	}
	runSequence(t, tx, seq)
	if fw.Mode() != 1 {
		t.Errorf("mode = %d, want 1", fw.Mode())
	}

	if _, err := New().EncodeSetMode(Mode(7)); err == nil {
		t.Error("EncodeSetMode(7) accepted an invalid mode")
	}
}

func TestCapabilities(t *testing.T) {
	caps := New().Capabilities()
	if caps.MaxFilters != 10 {
		t.Errorf("USR MaxFilters = %d, want 10", caps.MaxFilters)
	}
	if got := NewGroup(GroupBand20).Capabilities().MaxFilters; got != 20 {
		t.Errorf("B20 MaxFilters = %d, want 20", got)
	}
	if !caps.SupportsRead || !caps.SupportsWrite {
		t.Error("qudelix supports both read and write")
	}
	if !caps.RetryAfterSettle {
		t.Error("qudelix writes are retryable")
	}
}
