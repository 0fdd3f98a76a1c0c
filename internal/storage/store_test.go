package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/cestsim/internal/analysis"
	"github.com/san-kum/cestsim/internal/config"
	"github.com/san-kum/cestsim/internal/dynamo"
	"github.com/san-kum/cestsim/internal/sim"
)

func testRun(t *testing.T) (*sim.Result, *analysis.Spectrum) {
	t.Helper()
	buf, err := sim.BufferFromColumns(3, []dynamo.State{
		{0, 0, 1},
		{0.01, -0.02, 0.4},
		{0.003, 0.001, 0.9},
	})
	if err != nil {
		t.Fatalf("buffer: %v", err)
	}
	res := &sim.Result{
		Buffer:   buf,
		Mode:     sim.Sequential,
		Strategy: "eigen",
		Steps:    12,
		Elapsed:  1500 * time.Microsecond,
	}
	spec := &analysis.Spectrum{
		OffsetsPPM: []float64{0, 3.5},
		Z:          []float64{0.4, 0.9},
		M0:         1,
		Normalized: true,
	}
	return res, spec
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	res, spec := testRun(t)
	runID, err := st.Save("amide_3t", config.DefaultConfig(), res, spec)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Preset != "amide_3t" {
		t.Errorf("expected preset 'amide_3t', got '%s'", meta.Preset)
	}
	if meta.Propagator != "eigen" || meta.Mode != "sequential" {
		t.Errorf("unexpected strategy/mode %s/%s", meta.Propagator, meta.Mode)
	}
	if meta.Readouts != 3 || meta.Dim != 3 || meta.Steps != 12 {
		t.Errorf("unexpected shape: %+v", meta)
	}
	if meta.ElapsedMs != 1.5 {
		t.Errorf("expected 1.5 ms, got %f", meta.ElapsedMs)
	}
	if meta.Summary.MinZ != 0.4 || meta.Summary.MinZOffset != 0 {
		t.Errorf("unexpected summary: %+v", meta.Summary)
	}

	buf, err := st.LoadMagnetization(runID)
	if err != nil {
		t.Fatalf("load magnetization failed: %v", err)
	}
	if buf.Len() != 3 || buf.Dim() != 3 {
		t.Fatalf("expected 3x3 buffer, got %dx%d", buf.Dim(), buf.Len())
	}
	for j := 0; j < 3; j++ {
		if d := buf.Column(j).MaxAbsDiff(res.Buffer.Column(j)); d != 0 {
			t.Errorf("column %d differs by %g", j, d)
		}
	}

	loaded, err := st.LoadSpectrum(runID)
	if err != nil {
		t.Fatalf("load spectrum failed: %v", err)
	}
	if loaded.Len() != 2 || loaded.Z[1] != 0.9 || loaded.OffsetsPPM[1] != 3.5 {
		t.Errorf("unexpected spectrum: %+v", loaded)
	}

	cfg, err := st.LoadConfig(runID)
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if cfg.Scanner.B0 != config.DefaultB0 {
		t.Errorf("expected b0 %g, got %g", config.DefaultB0, cfg.Scanner.B0)
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	res, spec := testRun(t)
	first, err := st.Save("test", config.DefaultConfig(), res, spec)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	second, err := st.Save("test", config.DefaultConfig(), res, spec)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if first == second {
		t.Errorf("runs in the same second share id %s", first)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
}

func TestStoreListMissingDir(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "nope"))
	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	res, spec := testRun(t)
	runID, err := st.Save("test", config.DefaultConfig(), res, spec)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	for _, name := range []string{"metadata.json", "config.yaml", "magnetization.csv", "zspec.csv"} {
		if _, err := os.Stat(filepath.Join(tmpDir, runID, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}
}

func TestStoreSaveNestedName(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)
	res, spec := testRun(t)

	done := make(chan struct{})
	var runID string
	var err error
	go func() {
		defer close(done)
		runID, err = st.Save("study/amide", config.DefaultConfig(), res, spec)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("save did not return")
	}
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if strings.ContainsRune(runID, '/') {
		t.Errorf("run id %q contains a path separator", runID)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, runID, "metadata.json")); err != nil {
		t.Errorf("run not stored under the base directory: %v", err)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Preset != "study/amide" {
		t.Errorf("expected preset study/amide, got %s", meta.Preset)
	}
}
