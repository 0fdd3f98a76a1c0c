package store

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/cestsim/internal/analysis"
	"github.com/san-kum/cestsim/internal/sim"
)

type ExportData struct {
	Preset        string           `json:"preset"`
	Propagator    string           `json:"propagator"`
	Mode          string           `json:"mode"`
	Steps         int              `json:"steps"`
	OffsetsPPM    []float64        `json:"offsets_ppm"`
	Z             []float64        `json:"z"`
	M0            float64          `json:"m0"`
	Normalized    bool             `json:"normalized"`
	AsymOffsets   []float64        `json:"mtr_asym_offsets_ppm,omitempty"`
	Asym          []float64        `json:"mtr_asym,omitempty"`
	Magnetization [][]float64      `json:"magnetization,omitempty"`
	Summary       analysis.Summary `json:"summary"`
}

// NewExportData flattens a run for serialisation. res may be nil when only
// the spectrum is known, as for runs reloaded from disk.
func NewExportData(preset string, res *sim.Result, spec *analysis.Spectrum) ExportData {
	data := ExportData{
		Preset:     preset,
		OffsetsPPM: spec.OffsetsPPM,
		Z:          spec.Z,
		M0:         spec.M0,
		Normalized: spec.Normalized,
		Summary:    spec.Summary(),
	}

	asym := spec.MTRAsym()
	data.AsymOffsets, data.Asym = asym.OffsetsPPM, asym.Values

	if res != nil {
		data.Propagator = res.Strategy
		data.Mode = res.Mode.String()
		data.Steps = res.Steps
		data.Magnetization = make([][]float64, res.Buffer.Len())
		for j := range data.Magnetization {
			data.Magnetization[j] = res.Buffer.Column(j)
		}
	}
	return data
}

func WriteJSON(w io.Writer, data ExportData) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func ExportJSON(path string, data ExportData) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, data)
}

func ExportJSONStdout(data ExportData) error {
	return WriteJSON(os.Stdout, data)
}
