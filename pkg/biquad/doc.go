// Package biquad converts symbolic PEQ filters into second-order IIR
// coefficients using the Audio EQ Cookbook formulas, evaluates their
// magnitude response, and quantizes coefficients into device fixed-point
// representations with explicit saturation reporting.
//
// Everything here is pure and deterministic: the same inputs always
// produce the same coefficients, which the round-trip tests rely on.
package biquad
