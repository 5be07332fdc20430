package tanchjim

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
		Pregain: -3.5,
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
		{"fission", transport.DeviceInfo{VendorID: VendorID, Product: "TANCHJIM Fission"}, true},
		{"bunny lowercase", transport.DeviceInfo{VendorID: VendorID, Product: "bunny dsp"}, true},
		{"one", transport.DeviceInfo{VendorID: VendorID, Product: "One DSP"}, true},
		{"wrong vendor", transport.DeviceInfo{VendorID: 0x1234, Product: "TANCHJIM Fission"}, false},
		{"unrelated product", transport.DeviceInfo{VendorID: VendorID, Product: "Gaming Mouse"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.info); got != tt.want {
				t.Errorf("Matches(%+v) = %v, want %v", tt.info, got, tt.want)
			}
		})
	}
}

func TestEncodeProfilePackets(t *testing.T) {
	seq, warnings, err := New().EncodeProfile(peq.PEQProfile{
		Pregain: -2,
		Filters: []peq.FilterDefinition{
			{Type: peq.FilterPeak, Frequency: 1000, Gain: -6.2, Q: 1.41},
		},
	})
	if err != nil {
		t.Fatalf("EncodeProfile: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}

	// 1 filter (2 packets) + 4 cleared slots (8 packets) + pregain + commit.
	if len(seq.Steps) != 12 {
		t.Fatalf("got %d steps, want 12", len(seq.Steps))
	}

	// Gain -6.2 -> -62 -> 0xFFC2 LE; freq 1000 -> 0x03E8 LE.
	wantGainFreq := []byte{ReportID, 0x26, 0, 0, 0, 0x57, 0, 0xC2, 0xFF, 0xE8, 0x03, 0}
	if !bytes.Equal(seq.Steps[0].Report, wantGainFreq) {
		t.Errorf("gain/freq report = % X, want % X", seq.Steps[0].Report, wantGainFreq)
	}

	// Q 1.41 -> 1410 -> 0x0582 LE; type PK=0x00.
	wantQType := []byte{ReportID, 0x27, 0, 0, 0, 0x57, 0, 0x82, 0x05, 0x00, 0, 0}
	if !bytes.Equal(seq.Steps[1].Report, wantQType) {
		t.Errorf("q/type report = % X, want % X", seq.Steps[1].Report, wantQType)
	}

	// Pregain -2 -> -4 -> 0xFC.
	pregain := seq.Steps[10]
	wantPregain := []byte{ReportID, 0x65, 0, 0, 0, 0x57, 0, 0xFC, 0, 0, 0, 0}
	if !bytes.Equal(pregain.Report, wantPregain) {
		t.Errorf("pregain report = % X, want % X", pregain.Report, wantPregain)
	}

	commit := seq.Steps[11]
	if commit.Kind != protocol.StepCommit {
		t.Errorf("last step kind = %v, want COMMIT", commit.Kind)
	}
	wantCommit := []byte{ReportID, 0, 0, 0, 0, 0x53, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(commit.Report, wantCommit) {
		t.Errorf("commit report = % X, want % X", commit.Report, wantCommit)
	}
	if commit.SettleAfter != time.Second {
		t.Errorf("commit settle = %v, want 1s", commit.SettleAfter)
	}
}

func TestEncodeProfileRejectsOutOfRange(t *testing.T) {
	_, _, err := New().EncodeProfile(peq.PEQProfile{
		Filters: []peq.FilterDefinition{
			{Type: peq.FilterPeak, Frequency: 1000, Gain: 25, Q: 1},
		},
	})
	if !errors.Is(err, peq.ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}

	_, _, err = New().EncodeProfile(peq.PEQProfile{
		Filters: make([]peq.FilterDefinition, 6),
	})
	if !errors.Is(err, peq.ErrTooManyFilters) {
		t.Errorf("err = %v, want ErrTooManyFilters", err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	fw := devicetest.NewTanchjimFirmware()
	tr := devicetest.NewTransport(fw)
	tx := protocol.NewTransactor(tr, devicetest.NewClock(), nil, "h1", "tanchjim")
	codec := New()

	want := testProfile()
	seq, _, err := codec.EncodeProfile(want)
	if err != nil {
		t.Fatalf("EncodeProfile: %v", err)
	}
	if err := tx.Run(seq); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fw.Commits() != 1 {
		t.Fatalf("commits = %d, want 1", fw.Commits())
	}

	got, err := codec.ReadProfile(tx)
	if err != nil {
		t.Fatalf("ReadProfile: %v", err)
	}

	if got.Pregain != want.Pregain {
		t.Errorf("pregain = %g, want %g", got.Pregain, want.Pregain)
	}
	if len(got.Filters) != len(want.Filters) {
		t.Fatalf("got %d filters, want %d", len(got.Filters), len(want.Filters))
	}
	for i, w := range want.Filters {
		g := got.Filters[i]
		if g.Type != w.Type {
			t.Errorf("filter %d type = %v, want %v", i, g.Type, w.Type)
		}
		if g.Frequency != w.Frequency {
			t.Errorf("filter %d freq = %g, want %g", i, g.Frequency, w.Frequency)
		}
		if math.Abs(g.Gain-w.Gain) > 0.05 {
			t.Errorf("filter %d gain = %g, want %g", i, g.Gain, w.Gain)
		}
		if math.Abs(g.Q-w.Q) > 0.0005 {
			t.Errorf("filter %d q = %g, want %g", i, g.Q, w.Q)
		}
	}
}

func TestShorterProfileClearsStaleSlots(t *testing.T) {
	fw := devicetest.NewTanchjimFirmware()
	tr := devicetest.NewTransport(fw)
	tx := protocol.NewTransactor(tr, devicetest.NewClock(), nil, "h1", "tanchjim")
	codec := New()

	long := testProfile()
	seq, _, err := codec.EncodeProfile(long)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Run(seq); err != nil {
		t.Fatal(err)
	}

	short := peq.PEQProfile{
		Filters: []peq.FilterDefinition{
			{Type: peq.FilterPeak, Frequency: 500, Gain: 3, Q: 2},
		},
	}
	seq, _, err = codec.EncodeProfile(short)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Run(seq); err != nil {
		t.Fatal(err)
	}

	got, err := codec.ReadProfile(tx)
	if err != nil {
		t.Fatalf("ReadProfile: %v", err)
	}
	if len(got.Filters) != 1 {
		t.Fatalf("got %d filters after shorter write, want 1", len(got.Filters))
	}
	if got.Filters[0].Frequency != 500 {
		t.Errorf("surviving filter freq = %g, want 500", got.Filters[0].Frequency)
	}
}

func TestEncodePregain(t *testing.T) {
	seq, err := New().EncodePregain(-7.5)
	if err != nil {
		t.Fatalf("EncodePregain: %v", err)
	}
	if len(seq.Steps) != 2 {
		t.Fatalf("got %d steps, want pregain + commit", len(seq.Steps))
	}
	// -7.5 * 2 = -15 -> 0xF1.
	if seq.Steps[0].Report[7] != 0xF1 {
		t.Errorf("pregain byte = %#02x, want 0xF1", seq.Steps[0].Report[7])
	}

	if _, err := New().EncodePregain(13); !errors.Is(err, peq.ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
}

func TestReadSkipsBypassedSlots(t *testing.T) {
	fw := devicetest.NewTanchjimFirmware()
	tr := devicetest.NewTransport(fw)
	tx := protocol.NewTransactor(tr, devicetest.NewClock(), nil, "h1", "tanchjim")
	codec := New()

	// Nothing written: all slots read back zero and are bypassed.
	got, err := codec.ReadProfile(tx)
	if err != nil {
		t.Fatalf("ReadProfile: %v", err)
	}
	if len(got.Filters) != 0 {
		t.Errorf("got %d filters from blank device, want 0", len(got.Filters))
	}
	if got.Pregain != 0 {
		t.Errorf("pregain = %g, want 0", got.Pregain)
	}
}

func TestCapabilities(t *testing.T) {
	caps := New().Capabilities()
	if caps.MaxFilters != 5 || !caps.SupportsRead || !caps.SupportsWrite {
		t.Errorf("capabilities = %+v", caps)
	}
	if caps.GainRange != (peq.Range{Min: -20, Max: 20}) {
		t.Errorf("gain range = %+v", caps.GainRange)
	}
}
