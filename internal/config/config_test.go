package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/cestsim/internal/dynamo"
	"github.com/san-kum/cestsim/internal/pools"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultB0, cfg.Scanner.B0)
	assert.True(t, cfg.Options.ResetInitMag)
	assert.Equal(t, "eigen", cfg.Options.Propagator)

	m, err := cfg.ToModel()
	require.NoError(t, err)
	assert.Equal(t, 2, m.NumPools())
	assert.False(t, m.HasMT())
	assert.InDelta(t, 1/75e-3, m.Water().R2, 1e-9)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tissue.yaml")
	data := []byte(`
scanner:
  b0: 7
water_pool:
  t1: 1.67
  t2: 0.043
  f: 1
mt_pool:
  r1: 1
  r2: 1e5
  f: 0.05
  dw: -2
  k: 23
  lineshape: SuperLorentzian
options:
  par_calc: true
  propagator: pade
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7.0, cfg.Scanner.B0)
	assert.Equal(t, pools.DefaultGamma, cfg.Scanner.Gamma, "unset keys keep defaults")
	assert.True(t, cfg.Options.ResetInitMag)
	assert.True(t, cfg.Options.Parallel)
	assert.Equal(t, "pade", cfg.Options.Propagator)
	assert.Len(t, cfg.CEST, 1)

	m, err := cfg.ToModel()
	require.NoError(t, err)
	mt, ok := m.MT()
	require.True(t, ok)
	assert.Equal(t, pools.LineshapeSuperLorentzian, mt.Lineshape)
	assert.InDelta(t, 1/1.67, m.Water().R1, 1e-12)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gm.yaml")
	cfg := GetPreset("gm_3t")
	require.NotNil(t, cfg)
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestToModel_Rejects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Water.T1 = 0
	_, err := cfg.ToModel()
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)

	cfg = DefaultConfig()
	cfg.MT = semiSolid(0.05, "")
	_, err = cfg.ToModel()
	assert.ErrorIs(t, err, dynamo.ErrConfiguration, "mt pool must name its lineshape")
}

func TestPresets(t *testing.T) {
	names := ListPresets()
	assert.Equal(t, []string{"amide_3t", "csf_3t", "gm_3t", "gm_7t", "wm_3t"}, names)

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			cfg := GetPreset(name)
			require.NotNil(t, cfg)
			_, err := cfg.ToModel()
			require.NoError(t, err)
			s, err := cfg.Sequence()
			require.NoError(t, err)
			assert.Greater(t, s.Readouts(), 1)
		})
	}
}

func TestGetPreset_IsACopy(t *testing.T) {
	cfg := GetPreset("gm_3t")
	cfg.Scanner.B0 = 11.7
	cfg.CEST[0].K = 1
	cfg.MT.F = 0.5

	again := GetPreset("gm_3t")
	assert.Equal(t, 3.0, again.Scanner.B0)
	assert.Equal(t, 30.0, again.CEST[0].K)
	assert.Equal(t, 0.05, again.MT.F)

	assert.Nil(t, GetPreset("nonexistent"))
}

func TestRelaxation(t *testing.T) {
	t1, t2, err := Relaxation("wm", 7)
	require.NoError(t, err)
	assert.Equal(t, 1.1, t1)
	assert.Equal(t, 60e-3, t2)

	_, _, err = Relaxation("bone", 3)
	assert.Error(t, err)
}

func TestSave_KeepsEmptyCESTList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "csf.yaml")
	require.NoError(t, Save(path, GetPreset("csf_3t")))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.CEST, "defaults must not leak into a water-only config")
}
