package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/cestsim/internal/analysis"
	"github.com/san-kum/cestsim/internal/config"
	"github.com/san-kum/cestsim/internal/dynamo"
	"github.com/san-kum/cestsim/internal/sim"
)

const (
	metadataFile      = "metadata.json"
	configFile        = "config.yaml"
	magnetizationFile = "magnetization.csv"
	spectrumFile      = "zspec.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string           `json:"id"`
	Preset     string           `json:"preset"`
	Timestamp  time.Time        `json:"timestamp"`
	Mode       string           `json:"mode"`
	Propagator string           `json:"propagator"`
	B0         float64          `json:"b0"`
	Dim        int              `json:"dim"`
	Readouts   int              `json:"readouts"`
	Steps      int              `json:"steps"`
	ElapsedMs  float64          `json:"elapsed_ms"`
	Summary    analysis.Summary `json:"summary"`
}

// Save writes a finished run under <base>/<preset>_<unix>/ and returns the
// run id.
func (s *Store) Save(preset string, cfg *config.Config, res *sim.Result, spec *analysis.Spectrum) (string, error) {
	now := time.Now()
	runID, runDir, err := s.allocate(preset, now)
	if err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:         runID,
		Preset:     preset,
		Timestamp:  now,
		Mode:       res.Mode.String(),
		Propagator: res.Strategy,
		B0:         cfg.Scanner.B0,
		Dim:        res.Buffer.Dim(),
		Readouts:   res.Buffer.Len(),
		Steps:      res.Steps,
		ElapsedMs:  float64(res.Elapsed.Microseconds()) / 1e3,
	}
	if spec != nil {
		meta.Summary = spec.Summary()
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := config.Save(filepath.Join(runDir, configFile), cfg); err != nil {
		return "", err
	}
	if err := writeMagnetization(filepath.Join(runDir, magnetizationFile), res.Buffer); err != nil {
		return "", err
	}
	if spec != nil {
		if err := writeSpectrum(filepath.Join(runDir, spectrumFile), spec); err != nil {
			return "", err
		}
	}
	return runID, nil
}

// allocate creates a fresh run directory, suffixing the id when another run
// of the same preset landed in the same second.
// Path separators in preset are flattened so every run stays directly under
// the base directory.
func (s *Store) allocate(preset string, now time.Time) (string, string, error) {
	base := fmt.Sprintf("%s_%d", runName(preset), now.Unix())
	runID := base
	initialised := false
	for i := 1; ; i++ {
		runDir := filepath.Join(s.baseDir, runID)
		err := os.Mkdir(runDir, 0755)
		if err == nil {
			return runID, runDir, nil
		}
		if os.IsNotExist(err) && !initialised {
			initialised = true
			if err := s.Init(); err != nil {
				return "", "", err
			}
			continue
		}
		if !os.IsExist(err) {
			return "", "", err
		}
		runID = fmt.Sprintf("%s_%d", base, i)
	}
}

func runName(preset string) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '-'
		}
		return r
	}, preset)
	if name == "" || name == "." || name == ".." {
		return "run"
	}
	return name
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeMagnetization(path string, buf *sim.ResultBuffer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"readout"}
	for i := 0; i < buf.Dim(); i++ {
		header = append(header, fmt.Sprintf("m%d", i))
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for j := 0; j < buf.Len(); j++ {
		row := []string{strconv.Itoa(j)}
		for _, v := range buf.Column(j) {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeSpectrum(path string, spec *analysis.Spectrum) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"offset_ppm", "z"}); err != nil {
		return err
	}
	for i, ppm := range spec.OffsetsPPM {
		row := []string{
			strconv.FormatFloat(ppm, 'g', -1, 64),
			strconv.FormatFloat(spec.Z[i], 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns stored runs, newest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadConfig returns the configuration a run was produced with.
func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	return config.Load(filepath.Join(s.baseDir, runID, configFile))
}

func (s *Store) LoadMagnetization(runID string) (*sim.ResultBuffer, error) {
	records, err := readCSV(filepath.Join(s.baseDir, runID, magnetizationFile))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty magnetization file", runID)
	}

	dim := len(records[0]) - 1
	cols := make([]dynamo.State, 0, len(records)-1)
	for i, record := range records[1:] {
		vals, err := parseRow(record[1:])
		if err != nil {
			return nil, fmt.Errorf("%s: readout %d: %w", runID, i, err)
		}
		cols = append(cols, vals)
	}
	return sim.BufferFromColumns(dim, cols)
}

// LoadSpectrum returns the stored offsets and normalised Z values.
func (s *Store) LoadSpectrum(runID string) (*analysis.Spectrum, error) {
	records, err := readCSV(filepath.Join(s.baseDir, runID, spectrumFile))
	if err != nil {
		return nil, err
	}

	spec := &analysis.Spectrum{M0: 1, Normalized: true}
	if meta, err := s.Load(runID); err == nil && meta.Summary.M0 != 0 {
		spec.M0 = meta.Summary.M0
	}
	for i, record := range records {
		if i == 0 {
			continue
		}
		vals, err := parseRow(record)
		if err != nil || len(vals) != 2 {
			return nil, fmt.Errorf("%s: malformed spectrum row %d", runID, i)
		}
		spec.OffsetsPPM = append(spec.OffsetsPPM, vals[0])
		spec.Z = append(spec.Z, vals[1])
	}
	return spec, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

func parseRow(record []string) ([]float64, error) {
	vals := make([]float64, len(record))
	for i, s := range record {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}
