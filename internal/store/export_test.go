package store

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/cestsim/internal/analysis"
	"github.com/san-kum/cestsim/internal/dynamo"
	"github.com/san-kum/cestsim/internal/sim"
)

func testSpectrum() *analysis.Spectrum {
	return &analysis.Spectrum{
		OffsetsPPM: []float64{-3.5, 0, 3.5},
		Z:          []float64{0.8, 0.1, 0.7},
		M0:         0.95,
		Normalized: true,
	}
}

func TestNewExportData(t *testing.T) {
	buf, err := sim.BufferFromColumns(3, []dynamo.State{{0, 0, 1}, {0, 0, 0.5}})
	if err != nil {
		t.Fatalf("buffer: %v", err)
	}
	res := &sim.Result{Buffer: buf, Mode: sim.Parallel, Strategy: "pade", Steps: 7}

	data := NewExportData("amide_3t", res, testSpectrum())
	if data.Propagator != "pade" || data.Mode != "parallel" || data.Steps != 7 {
		t.Errorf("unexpected run fields: %+v", data)
	}
	if len(data.Magnetization) != 2 || data.Magnetization[1][2] != 0.5 {
		t.Errorf("unexpected magnetization: %v", data.Magnetization)
	}
	if len(data.Asym) != 1 || data.AsymOffsets[0] != 3.5 {
		t.Fatalf("expected one asymmetry point at 3.5 ppm, got %v", data.AsymOffsets)
	}
	if d := data.Asym[0] - 0.1; d > 1e-12 || d < -1e-12 {
		t.Errorf("expected asymmetry 0.1, got %g", data.Asym[0])
	}
	if data.Summary.MinZOffset != 0 {
		t.Errorf("expected minimum at 0 ppm, got %g", data.Summary.MinZOffset)
	}
}

func TestNewExportData_SpectrumOnly(t *testing.T) {
	data := NewExportData("csf_3t", nil, testSpectrum())
	if data.Magnetization != nil || data.Propagator != "" {
		t.Errorf("expected spectrum-only export, got %+v", data)
	}
}

func TestExportJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	if err := ExportJSON(path, NewExportData("amide_3t", nil, testSpectrum())); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if back["preset"] != "amide_3t" {
		t.Errorf("expected preset amide_3t, got %v", back["preset"])
	}
	if _, ok := back["magnetization"]; ok {
		t.Error("magnetization should be omitted when empty")
	}
}

func TestWriteJSON_Indented(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, NewExportData("x", nil, testSpectrum())); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("\n  \"preset\": \"x\"")) {
		t.Errorf("expected indented output, got %s", buf.String())
	}
}
