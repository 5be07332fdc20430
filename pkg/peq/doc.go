// Package peq defines the core parametric-equalizer data model shared by
// every layer of daceq-go: filter definitions, PEQ profiles, device
// capability records, and the JSON interchange document.
//
// The types here are plain values with no I/O. Validation against a
// device's capability record happens before any encoding is attempted,
// so out-of-range parameters are rejected without touching hardware.
package peq
