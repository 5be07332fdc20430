package optimize

import (
	"testing"

	"github.com/daceq/daceq-go/pkg/biquad"
	"github.com/daceq/daceq-go/pkg/curve"
	"github.com/daceq/daceq-go/pkg/peq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCaps() peq.DeviceCapabilities {
	return peq.DeviceCapabilities{
		MaxFilters:     5,
		SupportedTypes: []peq.FilterType{peq.FilterPeak, peq.FilterLowShelf, peq.FilterHighShelf},
		GainRange:      peq.Range{Min: -12, Max: 12},
		PregainRange:   peq.Range{Min: -12, Max: 0},
		FreqRange:      peq.Range{Min: 20, Max: 20000},
		QRange:         peq.Range{Min: 0.5, Max: 10},
	}
}

func flatCurve(db float64) curve.Curve {
	var c curve.Curve
	for _, f := range curve.LogGrid(20, 20000, 48) {
		c = append(c, curve.Point{Freq: f, DB: db})
	}
	return c
}

// bumpCurve returns a flat curve with a peaking-shaped bump, so the
// target is exactly reachable with one filter.
func bumpCurve(centerHz, gain, q float64) curve.Curve {
	f := []peq.FilterDefinition{{Type: peq.FilterPeak, Frequency: centerHz, Gain: gain, Q: q}}
	var c curve.Curve
	for _, freq := range curve.LogGrid(20, 20000, 48) {
		c = append(c, curve.Point{Freq: freq, DB: biquad.ResponseDB(f, freq, defaultSampleRate)})
	}
	return c
}

func TestComputeOptimalProfileImproves(t *testing.T) {
	measured := flatCurve(0)
	target := bumpCurve(1000, 6, 1.2)
	caps := testCaps()

	p, err := ComputeOptimalProfile(measured, target, caps, Options{})
	require.NoError(t, err)
	require.NotEmpty(t, p.Filters)

	grid, errCurve := errorCurve(measured, target, caps, Options{}.withDefaults())
	initial := mse(errCurve, nil, grid, defaultSampleRate)
	final := mse(errCurve, p.Filters, grid, defaultSampleRate)
	assert.Less(t, final, initial, "residual must strictly improve")
	assert.Less(t, final, 1.0, "single reachable bump should fit closely")
}

func TestComputeOptimalProfileRespectsBounds(t *testing.T) {
	measured := flatCurve(0)
	// Target needs more boost than the device allows.
	target := bumpCurve(150, 11, 0.8)
	caps := testCaps()
	caps.GainRange = peq.Range{Min: -6, Max: 6}
	caps.QRange = peq.Range{Min: 0.7, Max: 3}

	p, err := ComputeOptimalProfile(measured, target, caps, Options{})
	require.NoError(t, err)
	require.NoError(t, caps.ValidateProfile(p))

	for _, f := range p.Filters {
		switch f.Type {
		case peq.FilterLowShelf:
			assert.LessOrEqual(t, f.Frequency, 500.0)
		case peq.FilterHighShelf:
			assert.GreaterOrEqual(t, f.Frequency, 2000.0)
		}
	}
}

func TestComputeOptimalProfileFlat(t *testing.T) {
	measured := flatCurve(3)
	target := flatCurve(-2) // same shape, different SPL

	p, err := ComputeOptimalProfile(measured, target, testCaps(), Options{})
	require.NoError(t, err)
	assert.Empty(t, p.Filters)
	assert.Zero(t, p.Pregain)
}

func TestComputeOptimalProfilePregain(t *testing.T) {
	measured := flatCurve(0)
	target := bumpCurve(2000, 8, 1.0)
	caps := testCaps()

	p, err := ComputeOptimalProfile(measured, target, caps, Options{})
	require.NoError(t, err)

	grid := curve.LogGrid(20, 20000, defaultGridSize)
	boost := maxBoost(p.Filters, grid, defaultSampleRate)
	assert.Greater(t, boost, 0.0)
	assert.InDelta(t, -boost, p.Pregain, 0.01, "pregain compensates the combined boost")
	assert.GreaterOrEqual(t, p.Pregain, caps.PregainRange.Min)
}

func TestComputeOptimalProfileLimitedHeadroom(t *testing.T) {
	measured := flatCurve(0)
	target := bumpCurve(1000, 9, 1.0)
	caps := testCaps()
	caps.PregainRange = peq.Range{Min: -2, Max: 0}

	p, err := ComputeOptimalProfile(measured, target, caps, Options{})
	require.NoError(t, err)

	grid := curve.LogGrid(20, 20000, defaultGridSize)
	boost := maxBoost(p.Filters, grid, defaultSampleRate)
	assert.LessOrEqual(t, boost, 2.0+1e-6, "boost scaled into the pregain range")
	assert.GreaterOrEqual(t, p.Pregain, -2.0)
}

func TestComputeOptimalProfileZeroHeadroom(t *testing.T) {
	measured := bumpCurve(1000, 6, 1.2) // cut-only problem
	target := flatCurve(0)
	caps := testCaps()
	caps.PregainRange = peq.Range{Min: 0, Max: 0}

	p, err := ComputeOptimalProfile(measured, target, caps, Options{})
	require.NoError(t, err)
	assert.Zero(t, p.Pregain)

	grid := curve.LogGrid(20, 20000, defaultGridSize)
	boost := maxBoost(p.Filters, grid, defaultSampleRate)
	assert.LessOrEqual(t, boost, 1e-6, "no positive response may remain without headroom")
}

func TestComputeOptimalProfileScalingCannotMaskFailure(t *testing.T) {
	// Boost-only problem on a device with no pregain headroom. The high
	// MinGain drops the shallow cut filters, and scaling then zeroes the
	// one boost filter, so no useful filter can survive. The optimizer
	// must report that rather than return an empty profile as a success.
	measured := flatCurve(0)
	target := bumpCurve(1000, 8, 1.2)
	caps := testCaps()
	caps.PregainRange = peq.Range{Min: 0, Max: 0}

	_, err := ComputeOptimalProfile(measured, target, caps, Options{MinGain: 5})
	assert.ErrorIs(t, err, ErrDidNotConverge)
}

func TestComputeOptimalProfileScaledResultStillImproves(t *testing.T) {
	measured := flatCurve(0)
	target := bumpCurve(1000, 6, 1.2)
	caps := testCaps()
	caps.PregainRange = peq.Range{Min: 0, Max: 0}

	p, err := ComputeOptimalProfile(measured, target, caps, Options{})
	if err != nil {
		assert.ErrorIs(t, err, ErrDidNotConverge)
		return
	}

	opts := Options{}.withDefaults()
	grid, errCurve := errorCurve(measured, target, caps, opts)
	initial := mse(errCurve, nil, grid, defaultSampleRate)
	final := mse(errCurve, p.Filters, grid, defaultSampleRate)
	assert.Less(t, final, initial, "a returned profile must still improve after gain scaling")
	assert.LessOrEqual(t, maxBoost(p.Filters, grid, defaultSampleRate), 1e-6)
}

func TestComputeOptimalProfileDeterministic(t *testing.T) {
	measured := flatCurve(0)
	target := bumpCurve(3000, -5, 2.0)

	a, err := ComputeOptimalProfile(measured, target, testCaps(), Options{})
	require.NoError(t, err)
	b, err := ComputeOptimalProfile(measured, target, testCaps(), Options{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestComputeOptimalProfileErrors(t *testing.T) {
	flat := flatCurve(0)

	_, err := ComputeOptimalProfile(curve.Curve{{Freq: 100, DB: 0}}, flat, testCaps(), Options{})
	assert.Error(t, err)

	caps := testCaps()
	caps.SupportedTypes = nil
	_, err = ComputeOptimalProfile(flat, bumpCurve(1000, 6, 1), caps, Options{})
	assert.ErrorIs(t, err, ErrDidNotConverge)
}

func TestSeedShelfPlacement(t *testing.T) {
	caps := testCaps()
	opts := Options{}.withDefaults()

	// Low-frequency error drives a low shelf into the first slot.
	grid := curve.LogGrid(20, 20000, 64)
	errCurve := make([]float64, len(grid))
	for i, f := range grid {
		if f < 200 {
			errCurve[i] = 5
		}
	}
	filters := seed(errCurve, grid, caps, opts)
	require.NotEmpty(t, filters)
	assert.Equal(t, peq.FilterLowShelf, filters[0].Type)
	assert.LessOrEqual(t, filters[0].Frequency, 500.0)
}

func TestDropNegligible(t *testing.T) {
	filters := []peq.FilterDefinition{
		{Type: peq.FilterPeak, Frequency: 100, Gain: 0.1, Q: 1},
		{Type: peq.FilterPeak, Frequency: 1000, Gain: -4, Q: 1},
		{Type: peq.FilterPeak, Frequency: 5000, Gain: -0.2, Q: 1},
	}
	out := dropNegligible(filters, 0.3)
	require.Len(t, out, 1)
	assert.Equal(t, 1000.0, out[0].Frequency)
}

func TestMaxBoost(t *testing.T) {
	grid := curve.LogGrid(20, 20000, 128)
	cut := []peq.FilterDefinition{{Type: peq.FilterPeak, Frequency: 1000, Gain: -6, Q: 1}}
	assert.LessOrEqual(t, maxBoost(cut, grid, defaultSampleRate), 1e-9)

	boost := []peq.FilterDefinition{{Type: peq.FilterPeak, Frequency: 1000, Gain: 6, Q: 1}}
	got := maxBoost(boost, grid, defaultSampleRate)
	assert.InDelta(t, 6, got, 0.1)
}
