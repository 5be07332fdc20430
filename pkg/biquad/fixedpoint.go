package biquad

import "math"

// Fixed-point scales used by supported device families.
const (
	// ScaleQ30 is the 2^30 coefficient scale used by Conexant-based DSPs.
	ScaleQ30 = 1 << 30
)

// Fixed holds one biquad section quantized to signed 32-bit integers at
// a device-specific scale.
type Fixed struct {
	B0 int32
	B1 int32
	B2 int32
	A1 int32
	A2 int32
}

// QuantizeValue rounds v*scale to the nearest integer and saturates at
// the int32 bounds. The second return reports whether saturation
// occurred; callers surface it as a CoefficientClipped warning rather
// than swallowing it.
func QuantizeValue(v, scale float64) (int32, bool) {
	scaled := math.Round(v * scale)
	if scaled > math.MaxInt32 {
		return math.MaxInt32, true
	}
	if scaled < math.MinInt32 {
		return math.MinInt32, true
	}
	return int32(scaled), false
}

// Quantize converts all five coefficients at the given scale. The
// second return reports whether any coefficient saturated.
func Quantize(c Coefficients, scale float64) (Fixed, bool) {
	var f Fixed
	var clipped bool

	quant := func(v float64) int32 {
		q, c := QuantizeValue(v, scale)
		clipped = clipped || c
		return q
	}

	f.B0 = quant(c.B0)
	f.B1 = quant(c.B1)
	f.B2 = quant(c.B2)
	f.A1 = quant(c.A1)
	f.A2 = quant(c.A2)
	return f, clipped
}
