package peq

import (
	"encoding/json"
	"fmt"
)

// profileDoc is the canonical JSON interchange document.
//
//	{
//	  "name": "my iem",
//	  "pregain": -3.5,
//	  "filters": [
//	    {"freq": 100, "gain": -3.5, "q": 1.41, "type": "PK"}
//	  ]
//	}
type profileDoc struct {
	Name    string      `json:"name,omitempty"`
	Pregain float64     `json:"pregain"`
	Filters []filterDoc `json:"filters"`
}

type filterDoc struct {
	Freq float64 `json:"freq"`
	Gain float64 `json:"gain"`
	Q    float64 `json:"q"`
	Type string  `json:"type"`
}

// MarshalJSON encodes the profile as the interchange document.
func (p PEQProfile) MarshalJSON() ([]byte, error) {
	doc := profileDoc{
		Name:    p.Name,
		Pregain: p.Pregain,
		Filters: make([]filterDoc, 0, len(p.Filters)),
	}
	for _, f := range p.Filters {
		doc.Filters = append(doc.Filters, filterDoc{
			Freq: f.Frequency,
			Gain: f.Gain,
			Q:    f.Q,
			Type: f.Type.String(),
		})
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes the interchange document into the profile.
func (p *PEQProfile) UnmarshalJSON(data []byte) error {
	var doc profileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	filters := make([]FilterDefinition, 0, len(doc.Filters))
	for i, f := range doc.Filters {
		t, err := ParseFilterType(f.Type)
		if err != nil {
			return fmt.Errorf("filter %d: %w", i, err)
		}
		filters = append(filters, FilterDefinition{
			Type:      t,
			Frequency: f.Freq,
			Gain:      f.Gain,
			Q:         f.Q,
		})
	}
	p.Name = doc.Name
	p.Pregain = doc.Pregain
	p.Filters = filters
	return p.Validate()
}

// EncodeProfile serializes a profile to the JSON interchange document.
func EncodeProfile(p PEQProfile) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// DecodeProfile parses a JSON interchange document into a profile.
func DecodeProfile(data []byte) (PEQProfile, error) {
	var p PEQProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return PEQProfile{}, fmt.Errorf("failed to decode profile: %w", err)
	}
	return p, nil
}
