// Package analysis turns raw readout columns into the quantities a CEST
// experiment reports.
//
//   - [ZSpectrum]: water longitudinal signal per offset, normalised by M0
//   - [Spectrum.MTRAsym]: Z(−Δ) − Z(Δ) over symmetric offset pairs
//   - [Spectrum.Summary]: strongest saturation and asymmetry
//   - [ScatterASCII]: terminal scatter plot for arbitrary offset lists
//
// # M0 normalisation
//
// When the sequence declares an M0 scan the first readout is the reference.
// Otherwise readouts at |Δ| ≥ [M0ThresholdPPM] are averaged into the
// reference and dropped from the spectrum.
package analysis
