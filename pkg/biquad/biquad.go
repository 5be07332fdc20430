package biquad

import (
	"math"

	"github.com/daceq/daceq-go/pkg/peq"
)

// Coefficients holds the five transfer-function coefficients of one
// biquad section, normalized so a0 == 1:
//
//	H(z) = (B0 + B1 z^-1 + B2 z^-2) / (1 + A1 z^-1 + A2 z^-2)
type Coefficients struct {
	B0 float64
	B1 float64
	B2 float64
	A1 float64
	A2 float64
}

// Design computes cookbook coefficients for the filter at the given
// sample rate. Peak and shelf formulas follow the Audio EQ Cookbook
// (Robert Bristow-Johnson), a0-normalized.
func Design(f peq.FilterDefinition, sampleRate float64) Coefficients {
	a := math.Pow(10, f.Gain/40)
	w0 := 2 * math.Pi * f.Frequency / sampleRate
	sinW0 := math.Sin(w0)
	cosW0 := math.Cos(w0)
	alpha := sinW0 / (2 * f.Q)

	var b0, b1, b2, a0, a1, a2 float64
	switch f.Type {
	case peq.FilterLowShelf:
		sqrtA := math.Sqrt(a)
		b0 = a * ((a + 1) - (a-1)*cosW0 + 2*sqrtA*alpha)
		b1 = 2 * a * ((a - 1) - (a+1)*cosW0)
		b2 = a * ((a + 1) - (a-1)*cosW0 - 2*sqrtA*alpha)
		a0 = (a + 1) + (a-1)*cosW0 + 2*sqrtA*alpha
		a1 = -2 * ((a - 1) + (a+1)*cosW0)
		a2 = (a + 1) + (a-1)*cosW0 - 2*sqrtA*alpha
	case peq.FilterHighShelf:
		sqrtA := math.Sqrt(a)
		b0 = a * ((a + 1) + (a-1)*cosW0 + 2*sqrtA*alpha)
		b1 = -2 * a * ((a - 1) + (a+1)*cosW0)
		b2 = a * ((a + 1) + (a-1)*cosW0 - 2*sqrtA*alpha)
		a0 = (a + 1) - (a-1)*cosW0 + 2*sqrtA*alpha
		a1 = 2 * ((a - 1) - (a+1)*cosW0)
		a2 = (a + 1) - (a-1)*cosW0 - 2*sqrtA*alpha
	default: // peaking
		b0 = 1 + alpha*a
		b1 = -2 * cosW0
		b2 = 1 - alpha*a
		a0 = 1 + alpha/a
		a1 = -2 * cosW0
		a2 = 1 - alpha/a
	}

	inv := 1 / a0
	return Coefficients{
		B0: b0 * inv,
		B1: b1 * inv,
		B2: b2 * inv,
		A1: a1 * inv,
		A2: a2 * inv,
	}
}

// MagnitudeSquared returns |H(f)|^2 using the closed-form expression,
// avoiding complex exponentials.
func (c Coefficients) MagnitudeSquared(freqHz, sampleRate float64) float64 {
	cw := 2 * math.Cos(2*math.Pi*freqHz/sampleRate)

	num := (c.B0-c.B2)*(c.B0-c.B2) + c.B1*c.B1 + (c.B1*(c.B0+c.B2)+c.B0*c.B2*cw)*cw
	den := (1-c.A2)*(1-c.A2) + c.A1*c.A1 + (c.A1*(c.A2+1)+cw*c.A2)*cw
	return num / den
}

// MagnitudeDB returns 10*log10(|H(f)|^2).
func (c Coefficients) MagnitudeDB(freqHz, sampleRate float64) float64 {
	return 10 * math.Log10(c.MagnitudeSquared(freqHz, sampleRate))
}

// ResponseDB returns the combined magnitude response in dB of a filter
// set at one frequency: the sum of each section's response, since the
// sections run in cascade.
func ResponseDB(filters []peq.FilterDefinition, freqHz, sampleRate float64) float64 {
	var db float64
	for _, f := range filters {
		db += Design(f, sampleRate).MagnitudeDB(freqHz, sampleRate)
	}
	return db
}
