package peq

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseAutoEQ reads the AutoEQ fixed-band text format:
//
//	Preamp: -3.5 dB
//	Filter 1: ON PK Fc 100 Hz Gain -3.5 dB Q 1.41
//
// Unparseable filter lines are skipped, matching the tolerant behavior
// of the tools that produce this format. Shelf markers LS/LSC/LSQ map
// to the low shelf, HS/HSC/HSQ to the high shelf.
func ParseAutoEQ(r io.Reader) (PEQProfile, error) {
	var p PEQProfile
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "Preamp:"):
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				if v, err := strconv.ParseFloat(fields[1], 64); err == nil {
					p.Pregain = v
				}
			}
		case strings.HasPrefix(line, "Filter") && strings.Contains(line, ":"):
			f, ok := parseAutoEQFilter(line)
			if ok {
				p.Filters = append(p.Filters, f)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return PEQProfile{}, fmt.Errorf("failed to read autoeq text: %w", err)
	}
	return p, nil
}

func parseAutoEQFilter(line string) (FilterDefinition, bool) {
	fields := strings.Fields(line)
	fc, okFc := valueAfter(fields, "Fc")
	gain, okGain := valueAfter(fields, "Gain")
	q, okQ := valueAfter(fields, "Q")
	if !okFc || !okGain || !okQ {
		return FilterDefinition{}, false
	}

	t := FilterPeak
	switch {
	case containsAny(fields, "LS", "LSC", "LSQ"):
		t = FilterLowShelf
	case containsAny(fields, "HS", "HSC", "HSQ"):
		t = FilterHighShelf
	}

	f := FilterDefinition{Type: t, Frequency: fc, Gain: gain, Q: q}
	if f.Validate() != nil {
		return FilterDefinition{}, false
	}
	return f, true
}

func valueAfter(fields []string, key string) (float64, bool) {
	for i, f := range fields {
		if f == key && i+1 < len(fields) {
			v, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return 0, false
			}
			return v, true
		}
	}
	return 0, false
}

func containsAny(fields []string, keys ...string) bool {
	for _, f := range fields {
		for _, k := range keys {
			if f == k {
				return true
			}
		}
	}
	return false
}

// FormatAutoEQ renders the profile in the AutoEQ text format.
func FormatAutoEQ(p PEQProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Preamp: %.1f dB\n", p.Pregain)
	for i, f := range p.Filters {
		code := f.Type.String()
		if f.Type == FilterLowShelf {
			code = "LSC"
		} else if f.Type == FilterHighShelf {
			code = "HSC"
		}
		fmt.Fprintf(&b, "Filter %d: ON %s Fc %.0f Hz Gain %.1f dB Q %.2f\n",
			i+1, code, f.Frequency, f.Gain, f.Q)
	}
	return b.String()
}
