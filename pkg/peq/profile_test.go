package peq

import (
	"math"
	"strings"
	"testing"
)

func TestProfileJSONRoundTrip(t *testing.T) {
	in := PEQProfile{
		Name:    "test iem",
		Pregain: -4.5,
		Filters: []FilterDefinition{
			{Type: FilterLowShelf, Frequency: 105, Gain: 4.2, Q: 0.71},
			{Type: FilterPeak, Frequency: 2250, Gain: -3.1, Q: 2.5},
			{Type: FilterHighShelf, Frequency: 9000, Gain: 2, Q: 0.5},
		},
	}

	data, err := EncodeProfile(in)
	if err != nil {
		t.Fatalf("EncodeProfile failed: %v", err)
	}

	out, err := DecodeProfile(data)
	if err != nil {
		t.Fatalf("DecodeProfile failed: %v", err)
	}

	if out.Name != in.Name || out.Pregain != in.Pregain {
		t.Errorf("header mismatch: got %q/%g, want %q/%g",
			out.Name, out.Pregain, in.Name, in.Pregain)
	}
	if len(out.Filters) != len(in.Filters) {
		t.Fatalf("filter count = %d, want %d", len(out.Filters), len(in.Filters))
	}
	for i := range in.Filters {
		if out.Filters[i] != in.Filters[i] {
			t.Errorf("filter %d = %+v, want %+v", i, out.Filters[i], in.Filters[i])
		}
	}
}

func TestDecodeProfileRejectsUnknownType(t *testing.T) {
	doc := `{"pregain": 0, "filters": [{"freq": 100, "gain": 1, "q": 1, "type": "BANDPASS"}]}`
	if _, err := DecodeProfile([]byte(doc)); err == nil {
		t.Error("expected error for unknown filter type")
	}
}

func TestParseAutoEQ(t *testing.T) {
	text := `Preamp: -6.1 dB
Filter 1: ON LSC Fc 105 Hz Gain 4.0 dB Q 0.70
Filter 2: ON PK Fc 2250 Hz Gain -3.5 dB Q 1.41
Filter 3: ON HSC Fc 10000 Hz Gain 2.0 dB Q 0.50
this line is noise
Filter 4: ON PK Fc garbage Hz Gain 1.0 dB Q 1.00
`
	p, err := ParseAutoEQ(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ParseAutoEQ failed: %v", err)
	}
	if p.Pregain != -6.1 {
		t.Errorf("pregain = %g, want -6.1", p.Pregain)
	}
	if len(p.Filters) != 3 {
		t.Fatalf("filter count = %d, want 3 (malformed line skipped)", len(p.Filters))
	}

	want := []FilterDefinition{
		{Type: FilterLowShelf, Frequency: 105, Gain: 4, Q: 0.7},
		{Type: FilterPeak, Frequency: 2250, Gain: -3.5, Q: 1.41},
		{Type: FilterHighShelf, Frequency: 10000, Gain: 2, Q: 0.5},
	}
	for i, w := range want {
		got := p.Filters[i]
		if got.Type != w.Type || math.Abs(got.Frequency-w.Frequency) > 1e-9 ||
			math.Abs(got.Gain-w.Gain) > 1e-9 || math.Abs(got.Q-w.Q) > 1e-9 {
			t.Errorf("filter %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestFormatAutoEQRoundTrip(t *testing.T) {
	in := PEQProfile{
		Pregain: -3.5,
		Filters: []FilterDefinition{
			{Type: FilterLowShelf, Frequency: 100, Gain: 3.5, Q: 0.71},
			{Type: FilterPeak, Frequency: 4000, Gain: -2.4, Q: 3.2},
		},
	}
	out, err := ParseAutoEQ(strings.NewReader(FormatAutoEQ(in)))
	if err != nil {
		t.Fatalf("ParseAutoEQ failed: %v", err)
	}
	if out.Pregain != in.Pregain {
		t.Errorf("pregain = %g, want %g", out.Pregain, in.Pregain)
	}
	if len(out.Filters) != len(in.Filters) {
		t.Fatalf("filter count = %d, want %d", len(out.Filters), len(in.Filters))
	}
	for i := range in.Filters {
		if out.Filters[i].Type != in.Filters[i].Type {
			t.Errorf("filter %d type = %v, want %v", i, out.Filters[i].Type, in.Filters[i].Type)
		}
		// Text format rounds Q to two decimals.
		if math.Abs(out.Filters[i].Q-in.Filters[i].Q) > 0.005 {
			t.Errorf("filter %d q = %g, want %g", i, out.Filters[i].Q, in.Filters[i].Q)
		}
	}
}
