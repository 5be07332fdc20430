// Package curve models frequency-response curves: ordered
// (frequency, level) sequences with log-spaced resampling, comparison
// statistics, and application of PEQ profiles. All transforms are pure.
//
// Curves arrive from external measurement sources as squig-style text
// or YAML target documents; both loaders live here.
package curve
