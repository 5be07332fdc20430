package curve

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseText reads the whitespace- or comma-separated measurement text
// format used by community FR databases: one "frequency level" pair per
// line, comment lines starting with '#' or '*' ignored.
func ParseText(r io.Reader) (Curve, error) {
	var c Curve
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "*") {
			continue
		}
		line = strings.ReplaceAll(line, ",", " ")
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected frequency and level", lineNo)
		}
		freq, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad frequency %q", lineNo, fields[0])
		}
		db, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad level %q", lineNo, fields[1])
		}
		c = append(c, Point{Freq: freq, DB: db})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read curve text: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// FormatText renders the curve as tab-separated measurement text.
func FormatText(c Curve) string {
	var b strings.Builder
	for _, p := range c {
		fmt.Fprintf(&b, "%g\t%g\n", p.Freq, p.DB)
	}
	return b.String()
}

// TargetDoc is the YAML document format for named target curves:
//
//	name: harman_ie_2019
//	points:
//	  - freq: 20
//	    db: 6.5
type TargetDoc struct {
	Name   string `yaml:"name"`
	Points []struct {
		Freq float64 `yaml:"freq"`
		DB   float64 `yaml:"db"`
	} `yaml:"points"`
}

// ParseTargetYAML reads a YAML target-curve document.
func ParseTargetYAML(data []byte) (string, Curve, error) {
	var doc TargetDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", nil, fmt.Errorf("failed to parse target document: %w", err)
	}
	c := make(Curve, 0, len(doc.Points))
	for _, p := range doc.Points {
		c = append(c, Point{Freq: p.Freq, DB: p.DB})
	}
	if err := c.Validate(); err != nil {
		return "", nil, fmt.Errorf("target %q: %w", doc.Name, err)
	}
	return doc.Name, c, nil
}

// FormatTargetYAML renders a named curve as a YAML target document.
func FormatTargetYAML(name string, c Curve) ([]byte, error) {
	doc := TargetDoc{Name: name}
	for _, p := range c {
		doc.Points = append(doc.Points, struct {
			Freq float64 `yaml:"freq"`
			DB   float64 `yaml:"db"`
		}{Freq: p.Freq, DB: p.DB})
	}
	return yaml.Marshal(doc)
}
