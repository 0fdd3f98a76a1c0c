// Package viz renders simulation runs in the terminal.
//
//   - [ProgressModel]: Bubble Tea monitor fed by readout observers, drawing the
//     Z-spectrum as it fills and the water Bloch vector of the latest readout
//   - [PlotSpectrum], [PlotAsymmetry]: static asciigraph plots for finished runs
//   - [Canvas]: Braille dot canvas shared by both
//   - Theme selection with 3 built-in colour schemes
//
// # Key Bindings
//
//	Q     - Cancel the run and quit
//	T     - Cycle colour themes
//	X/Y   - Rotate the Bloch view
//	+/-   - Zoom the Bloch view
//	?     - Show help
package viz
