// Package optimize computes a device-constrained PEQ profile that fits
// a measured frequency response to a target curve.
//
// The search is deterministic: peaks in the error curve seed the
// initial filters, then coordinate descent refines frequency, gain and
// Q with shrinking steps. Candidates outside the device capability
// ranges are rejected rather than clamped, so the result is always
// writable as-is. Pregain compensates the combined positive response
// of the result; when the device pregain range cannot cover the boost,
// positive filter gains are scaled down until it can.
package optimize
