package optimize

import (
	"errors"
	"fmt"
	"math"

	"github.com/daceq/daceq-go/pkg/biquad"
	"github.com/daceq/daceq-go/pkg/curve"
	"github.com/daceq/daceq-go/pkg/peq"
)

// ErrDidNotConverge indicates the search could not produce a profile
// that improves on doing nothing. The caller gets no partial result.
var ErrDidNotConverge = errors.New("optimization did not converge")

const (
	defaultGridSize   = 128
	defaultSampleRate = 48000
	defaultMaxPasses  = 40
	defaultMinGain    = 0.3

	// Seeding stops once the remaining error peak is this small.
	seedThreshold = 0.5

	// Residual MSE below this counts as already matching the target.
	flatThreshold = 0.01
)

// Options tunes the search. The zero value selects defaults.
type Options struct {
	// GridSize is the number of log-spaced evaluation frequencies.
	GridSize int

	// SampleRate is the rate filters are evaluated at, in Hz.
	SampleRate float64

	// MaxPasses bounds the coordinate-descent refinement passes.
	MaxPasses int

	// MinGain drops filters whose refined gain magnitude falls below
	// it, in dB.
	MinGain float64
}

func (o Options) withDefaults() Options {
	if o.GridSize <= 1 {
		o.GridSize = defaultGridSize
	}
	if o.SampleRate <= 0 {
		o.SampleRate = defaultSampleRate
	}
	if o.MaxPasses <= 0 {
		o.MaxPasses = defaultMaxPasses
	}
	if o.MinGain <= 0 {
		o.MinGain = defaultMinGain
	}
	return o
}

// ComputeOptimalProfile fits the measured curve to the target within
// the device capabilities and returns the profile to write. Both
// curves are mean-aligned first, so absolute SPL does not matter.
func ComputeOptimalProfile(measured, target curve.Curve, caps peq.DeviceCapabilities, opts Options) (peq.PEQProfile, error) {
	opts = opts.withDefaults()

	if err := measured.Validate(); err != nil {
		return peq.PEQProfile{}, fmt.Errorf("measured curve: %w", err)
	}
	if err := target.Validate(); err != nil {
		return peq.PEQProfile{}, fmt.Errorf("target curve: %w", err)
	}
	if caps.MaxFilters <= 0 || !caps.SupportsType(peq.FilterPeak) {
		return peq.PEQProfile{}, fmt.Errorf("%w: device offers no peaking filters", ErrDidNotConverge)
	}

	grid, errCurve := errorCurve(measured, target, caps, opts)
	initial := mse(errCurve, nil, grid, opts.SampleRate)
	if initial <= flatThreshold {
		// Already on target. Nothing to write.
		return peq.PEQProfile{}, nil
	}

	filters := seed(errCurve, grid, caps, opts)
	filters = refine(filters, errCurve, grid, caps, opts)
	filters = dropNegligible(filters, opts.MinGain)

	if len(filters) == 0 || mse(errCurve, filters, grid, opts.SampleRate) >= initial {
		return peq.PEQProfile{}, ErrDidNotConverge
	}

	filters = roundFilters(filters, caps)
	pregain, filters := fitPregain(filters, grid, caps, opts)

	// Rounding and pregain scaling move the gains after the improvement
	// check above, so re-check the result they actually produced.
	if len(filters) == 0 || mse(errCurve, filters, grid, opts.SampleRate) >= initial {
		return peq.PEQProfile{}, ErrDidNotConverge
	}

	return peq.PEQProfile{Pregain: pregain, Filters: filters}, nil
}

// errorCurve resamples both curves onto a shared log grid bounded by
// the device frequency range and returns target minus measured with
// the mean level removed.
func errorCurve(measured, target curve.Curve, caps peq.DeviceCapabilities, opts Options) ([]float64, []float64) {
	lo := math.Max(measured[0].Freq, target[0].Freq)
	hi := math.Min(measured[len(measured)-1].Freq, target[len(target)-1].Freq)
	lo = math.Max(lo, caps.FreqRange.Min)
	hi = math.Min(hi, caps.FreqRange.Max)

	grid := curve.LogGrid(lo, hi, opts.GridSize)
	err := make([]float64, len(grid))
	var sum float64
	for i, f := range grid {
		err[i] = target.At(f) - measured.At(f)
		sum += err[i]
	}
	mean := sum / float64(len(err))
	for i := range err {
		err[i] -= mean
	}
	return grid, err
}

// mse evaluates the mean-squared residual between the error curve and
// the combined filter response on the grid.
func mse(errCurve []float64, filters []peq.FilterDefinition, grid []float64, sampleRate float64) float64 {
	var sum float64
	for i, f := range grid {
		d := errCurve[i] - biquad.ResponseDB(filters, f, sampleRate)
		sum += d * d
	}
	return sum / float64(len(grid))
}

// seed picks initial filters at the largest error peaks. The first
// slot becomes a low shelf when the peak sits low enough and the
// device supports shelves; the last slot a high shelf likewise.
func seed(errCurve []float64, grid []float64, caps peq.DeviceCapabilities, opts Options) []peq.FilterDefinition {
	residual := make([]float64, len(errCurve))
	copy(residual, errCurve)

	var filters []peq.FilterDefinition
	for len(filters) < caps.MaxFilters {
		idx := -1
		var peak float64
		for i, v := range residual {
			if a := math.Abs(v); a > peak {
				peak, idx = a, i
			}
		}
		if idx < 0 || peak < seedThreshold {
			break
		}

		freq := grid[idx]
		f := peq.FilterDefinition{
			Type:      peq.FilterPeak,
			Frequency: freq,
			Gain:      caps.GainRange.Clamp(residual[idx]),
			Q:         caps.QRange.Clamp(1.5),
		}
		if len(filters) == 0 && caps.SupportsType(peq.FilterLowShelf) && freq <= lowShelfMaxFreq(caps) {
			f.Type = peq.FilterLowShelf
			f.Q = caps.QRange.Clamp(0.71)
		} else if len(filters) == caps.MaxFilters-1 && caps.SupportsType(peq.FilterHighShelf) && freq >= highShelfMinFreq(caps) {
			f.Type = peq.FilterHighShelf
			f.Q = caps.QRange.Clamp(0.71)
		}
		filters = append(filters, f)

		for i, g := range grid {
			residual[i] = errCurve[i]
			for _, fl := range filters {
				residual[i] -= biquad.ResponseDB([]peq.FilterDefinition{fl}, g, opts.SampleRate)
			}
		}
	}
	return filters
}

func lowShelfMaxFreq(caps peq.DeviceCapabilities) float64 {
	return math.Min(500, caps.FreqRange.Max)
}

func highShelfMinFreq(caps peq.DeviceCapabilities) float64 {
	return math.Max(2000, caps.FreqRange.Min)
}

// inBounds rejects a candidate outside the capability ranges or, for
// shelves, outside the shelf corner-frequency window.
func inBounds(f peq.FilterDefinition, caps peq.DeviceCapabilities) bool {
	if !caps.FreqRange.Contains(f.Frequency) ||
		!caps.GainRange.Contains(f.Gain) ||
		!caps.QRange.Contains(f.Q) {
		return false
	}
	switch f.Type {
	case peq.FilterLowShelf:
		return f.Frequency <= lowShelfMaxFreq(caps)
	case peq.FilterHighShelf:
		return f.Frequency >= highShelfMinFreq(caps)
	}
	return true
}

// refine runs coordinate descent over frequency, gain and Q of every
// filter with geometrically shrinking steps. A candidate is accepted
// only when it stays in bounds and strictly lowers the residual.
func refine(filters []peq.FilterDefinition, errCurve []float64, grid []float64, caps peq.DeviceCapabilities, opts Options) []peq.FilterDefinition {
	if len(filters) == 0 {
		return filters
	}

	best := mse(errCurve, filters, grid, opts.SampleRate)
	freqStep, gainStep, qStep := 0.25, 1.5, 0.3

	for pass := 0; pass < opts.MaxPasses; pass++ {
		improved := false
		for i := range filters {
			for _, dir := range []float64{1, -1} {
				cand := filters[i]
				cand.Frequency = filters[i].Frequency * math.Exp(dir*freqStep)
				if better := tryCandidate(filters, i, cand, errCurve, grid, caps, opts, &best); better {
					improved = true
				}

				cand = filters[i]
				cand.Gain = filters[i].Gain + dir*gainStep
				if better := tryCandidate(filters, i, cand, errCurve, grid, caps, opts, &best); better {
					improved = true
				}

				cand = filters[i]
				cand.Q = filters[i].Q * math.Exp(dir*qStep)
				if better := tryCandidate(filters, i, cand, errCurve, grid, caps, opts, &best); better {
					improved = true
				}
			}
		}
		if !improved {
			freqStep *= 0.5
			gainStep *= 0.5
			qStep *= 0.5
			if gainStep < 0.05 {
				break
			}
		}
	}
	return filters
}

// tryCandidate installs cand at index i when it is in bounds and
// improves the residual, updating best in place.
func tryCandidate(filters []peq.FilterDefinition, i int, cand peq.FilterDefinition, errCurve []float64, grid []float64, caps peq.DeviceCapabilities, opts Options, best *float64) bool {
	if !inBounds(cand, caps) {
		return false
	}
	old := filters[i]
	filters[i] = cand
	score := mse(errCurve, filters, grid, opts.SampleRate)
	if score < *best {
		*best = score
		return true
	}
	filters[i] = old
	return false
}

func dropNegligible(filters []peq.FilterDefinition, minGain float64) []peq.FilterDefinition {
	out := filters[:0]
	for _, f := range filters {
		if math.Abs(f.Gain) >= minGain {
			out = append(out, f)
		}
	}
	return out
}

// roundFilters rounds parameters to device-friendly precision and
// re-clamps so rounding cannot step outside a range boundary.
func roundFilters(filters []peq.FilterDefinition, caps peq.DeviceCapabilities) []peq.FilterDefinition {
	for i, f := range filters {
		filters[i].Frequency = caps.FreqRange.Clamp(math.Round(f.Frequency*10) / 10)
		filters[i].Gain = caps.GainRange.Clamp(math.Round(f.Gain*10) / 10)
		filters[i].Q = caps.QRange.Clamp(math.Round(f.Q*100) / 100)
	}
	return filters
}

// fitPregain compensates the combined positive response. When the
// pregain range cannot absorb the boost, positive filter gains are
// scaled down until it can, then filters fallen below audibility are
// dropped and the boost re-measured.
func fitPregain(filters []peq.FilterDefinition, grid []float64, caps peq.DeviceCapabilities, opts Options) (float64, []peq.FilterDefinition) {
	available := math.Max(0, -caps.PregainRange.Min)

	for {
		boost := maxBoost(filters, grid, opts.SampleRate)
		if boost <= available+1e-9 {
			return caps.PregainRange.Clamp(-boost), filters
		}

		// Floor keeps the scaled gains strictly decreasing so the
		// loop always terminates.
		scale := available / boost
		for i, f := range filters {
			if f.Gain > 0 {
				filters[i].Gain = math.Floor(f.Gain*scale*10) / 10
			}
		}
		filters = dropNegligible(filters, opts.MinGain)
	}
}

// maxBoost returns the largest positive combined response in dB.
func maxBoost(filters []peq.FilterDefinition, grid []float64, sampleRate float64) float64 {
	var boost float64
	for _, f := range grid {
		if r := biquad.ResponseDB(filters, f, sampleRate); r > boost {
			boost = r
		}
	}
	return boost
}
