package automation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/cestsim/internal/config"
	"github.com/san-kum/cestsim/internal/experiment"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

func fastConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Protocol.OffsetsPPM = []float64{-3.5, 0, 3.5}
	cfg.Protocol.B1 = 1
	cfg.Protocol.PulseDuration = 1
	cfg.Protocol.Recovery = 0.5
	cfg.Protocol.M0Recovery = 1
	return cfg
}

const scenarioYAML = `
name: b1 check
description: two quick runs
steps:
  - preset: amide_3t
    propagator: pade
    params:
      num_offsets: 3
      t_p: 0.2
      t_rec: 0.5
      m0_t_rec: 1
  - save_as: strong
    par_calc: true
    params:
      num_offsets: 3
      b1: 4
      t_p: 0.2
      t_rec: 0.5
      m0_t_rec: 1
`

func TestScenario_LoadAndRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenarioYAML), 0644))

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "b1 check", sc.Name)
	require.Len(t, sc.Steps, 2)

	results, err := RunScenario(context.Background(), sc, experiment.NewRegistry())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "amide_3t", results[0].Name)
	assert.Equal(t, "pade", results[0].Outcome.Result.Strategy)
	assert.Equal(t, "strong", results[1].Name)
	assert.Equal(t, 4.0, results[1].Config.Protocol.B1)
	assert.Equal(t, "parallel", results[1].Outcome.Result.Mode.String())
	assert.Equal(t, 3, results[1].Outcome.Spectrum.Len())
}

func TestScenario_Rejects(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("name: nothing\n"), 0644))
	_, err := LoadScenario(empty)
	assert.Error(t, err)

	sc := &Scenario{Steps: []ScenarioStep{{Preset: "no_such_preset"}}}
	_, err = RunScenario(context.Background(), sc, experiment.NewRegistry())
	assert.Error(t, err)

	sc = &Scenario{Steps: []ScenarioStep{{Params: map[string]float64{"bogus": 1}}}}
	_, err = RunScenario(context.Background(), sc, experiment.NewRegistry())
	assert.Error(t, err)
}

func TestRunSweep(t *testing.T) {
	sweep := &ParameterSweep{
		Base:      fastConfig(),
		ParamName: "b1",
		ParamMin:  0.01,
		ParamMax:  1,
		NumSteps:  2,
		TargetPPM: 3.5,
	}
	results, err := RunSweep(context.Background(), sweep, experiment.NewRegistry())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 0.01, results[0].ParamValue)
	assert.InDelta(t, 1.0, results[1].ParamValue, 1e-12)
	assert.True(t, results[1].HasAsym)
	assert.Less(t, results[1].MinZ, results[0].MinZ, "stronger saturation lowers the dip")
	assert.Less(t, results[1].ZTarget, results[0].ZTarget)
	assert.Greater(t, results[1].Asym, results[0].Asym)
}

func TestRunSweep_UnknownParam(t *testing.T) {
	_, err := RunSweep(context.Background(), &ParameterSweep{Base: fastConfig(), ParamName: "nope", NumSteps: 1}, nil)
	assert.Error(t, err)
}

func TestRunMonteCarlo(t *testing.T) {
	mc := &MonteCarloConfig{
		Base:      fastConfig(),
		B0Spread:  0.01,
		B1Spread:  0.1,
		NumTrials: 3,
		TargetPPM: 3.5,
		Seed:      42,
	}
	results, err := RunMonteCarlo(context.Background(), mc, experiment.NewRegistry())
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, r := range results {
		assert.True(t, r.Stable)
		assert.InDelta(t, 0, r.DB0, 0.01)
		assert.InDelta(t, 1, r.RelB1, 0.1)
	}

	stable, unstable, mean, std := MonteCarloStats(results)
	assert.Equal(t, 3, stable)
	assert.Zero(t, unstable)
	assert.Greater(t, mean, 0.0)
	assert.GreaterOrEqual(t, std, 0.0)
}

func TestMonteCarloStats_CountsUnstable(t *testing.T) {
	stable, unstable, mean, _ := MonteCarloStats([]MonteCarloResult{
		{Stable: true, Asym: 0.02},
		{Stable: false},
		{Stable: true, Asym: 0.04},
	})
	assert.Equal(t, 2, stable)
	assert.Equal(t, 1, unstable)
	assert.InDelta(t, 0.03, mean, 1e-15)
}
