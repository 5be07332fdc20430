package curve

import (
	"errors"
	"fmt"
	"math"

	"github.com/daceq/daceq-go/pkg/biquad"
	"github.com/daceq/daceq-go/pkg/peq"
)

// Curve errors.
var (
	// ErrTooFewPoints indicates a curve with fewer than two points.
	ErrTooFewPoints = errors.New("curve needs at least two points")

	// ErrNotMonotonic indicates frequencies that do not strictly increase.
	ErrNotMonotonic = errors.New("curve frequencies must strictly increase")
)

// Point is one frequency-response sample.
type Point struct {
	// Freq is the frequency in Hz.
	Freq float64

	// DB is the level in dB.
	DB float64
}

// Curve is an ordered frequency-response curve, monotonically
// increasing in frequency.
type Curve []Point

// Validate checks the curve invariants: at least two points, strictly
// increasing positive frequencies.
func (c Curve) Validate() error {
	if len(c) < 2 {
		return fmt.Errorf("%w: got %d", ErrTooFewPoints, len(c))
	}
	if c[0].Freq <= 0 {
		return fmt.Errorf("%w: frequency %g not positive", ErrNotMonotonic, c[0].Freq)
	}
	for i := 1; i < len(c); i++ {
		if c[i].Freq <= c[i-1].Freq {
			return fmt.Errorf("%w: %g Hz after %g Hz", ErrNotMonotonic, c[i].Freq, c[i-1].Freq)
		}
	}
	return nil
}

// Mean returns the average level in dB.
func (c Curve) Mean() float64 {
	if len(c) == 0 {
		return 0
	}
	var sum float64
	for _, p := range c {
		sum += p.DB
	}
	return sum / float64(len(c))
}

// At interpolates the level at freq using logarithmic frequency
// positioning with linear dB interpolation. Outside the curve's span
// the edge level is extended flat.
func (c Curve) At(freq float64) float64 {
	if len(c) == 0 {
		return 0
	}
	if freq <= c[0].Freq {
		return c[0].DB
	}
	if freq >= c[len(c)-1].Freq {
		return c[len(c)-1].DB
	}

	// Binary search for the bracketing pair.
	lo, hi := 0, len(c)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if c[mid].Freq <= freq {
			lo = mid
		} else {
			hi = mid
		}
	}

	fLow, fHigh := c[lo].Freq, c[hi].Freq
	t := math.Log(freq/fLow) / math.Log(fHigh/fLow)
	return c[lo].DB + t*(c[hi].DB-c[lo].DB)
}

// LogGrid returns n log-spaced frequencies from lo to hi inclusive.
func LogGrid(lo, hi float64, n int) []float64 {
	if n < 2 {
		return []float64{lo}
	}
	grid := make([]float64, n)
	ratio := math.Log(hi / lo)
	for i := range grid {
		grid[i] = lo * math.Exp(ratio*float64(i)/float64(n-1))
	}
	return grid
}

// Resample interpolates the curve onto the given frequency grid.
func (c Curve) Resample(grid []float64) Curve {
	out := make(Curve, len(grid))
	for i, f := range grid {
		out[i] = Point{Freq: f, DB: c.At(f)}
	}
	return out
}

// Apply returns the curve with the profile's filters and pregain
// applied, evaluated at the given sample rate.
func (c Curve) Apply(p peq.PEQProfile, sampleRate float64) Curve {
	out := make(Curve, len(c))
	for i, pt := range c {
		out[i] = Point{
			Freq: pt.Freq,
			DB:   pt.DB + p.Pregain + biquad.ResponseDB(p.Filters, pt.Freq, sampleRate),
		}
	}
	return out
}

// MSE returns the mean-squared level difference between two curves
// sampled on the same grid. Panics if lengths differ; resample first.
func MSE(a, b Curve) float64 {
	if len(a) != len(b) {
		panic("curve: MSE requires equal-length curves")
	}
	var sum float64
	for i := range a {
		d := a[i].DB - b[i].DB
		sum += d * d
	}
	return sum / float64(len(a))
}

// Stats summarizes the difference between two curves after aligning
// their mean levels, so shapes are compared rather than absolute SPL.
type Stats struct {
	// Offset is the mean-level offset removed from the first curve.
	Offset float64

	// RMSE is the root-mean-square difference in dB.
	RMSE float64

	// MaxAbs is the largest absolute difference in dB.
	MaxAbs float64
}

// Compare resamples both curves to a shared log grid and returns
// difference statistics.
func Compare(a, b Curve, gridSize int) (Stats, error) {
	if err := a.Validate(); err != nil {
		return Stats{}, fmt.Errorf("first curve: %w", err)
	}
	if err := b.Validate(); err != nil {
		return Stats{}, fmt.Errorf("second curve: %w", err)
	}

	lo := math.Max(a[0].Freq, b[0].Freq)
	hi := math.Min(a[len(a)-1].Freq, b[len(b)-1].Freq)
	grid := LogGrid(lo, hi, gridSize)

	ra := a.Resample(grid)
	rb := b.Resample(grid)
	offset := ra.Mean() - rb.Mean()

	var sum, maxAbs float64
	for i := range ra {
		d := (ra[i].DB - offset) - rb[i].DB
		sum += d * d
		if ad := math.Abs(d); ad > maxAbs {
			maxAbs = ad
		}
	}
	return Stats{
		Offset: offset,
		RMSE:   math.Sqrt(sum / float64(len(ra))),
		MaxAbs: maxAbs,
	}, nil
}
