package seq

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/cestsim/internal/dynamo"
)

func pulse(samples []complex128, length float64) *RFPulse {
	return &RFPulse{Samples: samples, Length: length}
}

func constant(n int, v complex128) []complex128 {
	s := make([]complex128, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestPrepare_ConstantPulseIsOneStep(t *testing.T) {
	w, err := Prepare(pulse(constant(1000, 94.5), 2), 100)
	require.NoError(t, err)

	assert.Equal(t, 1, w.Steps())
	assert.InDelta(t, 2.0, w.Dt, 1e-12)
	assert.Zero(t, w.Tail)
	assert.Equal(t, 94.5, w.Amp[0])
	assert.Zero(t, w.Phase[0])
}

func TestPrepare_ZeroTailBecomesDelay(t *testing.T) {
	s := constant(100, 50)
	for i := 90; i < 100; i++ {
		s[i] = 0
	}
	w, err := Prepare(pulse(s, 1), 100)
	require.NoError(t, err)

	assert.Equal(t, 1, w.Steps())
	assert.InDelta(t, 0.9, w.Dt, 1e-12)
	assert.InDelta(t, 0.1, w.Tail, 1e-12)
	assert.InDelta(t, 1.0, w.Active()+w.Tail, 1e-12)
}

func TestPrepare_PhaseFromComplexSamples(t *testing.T) {
	w, err := Prepare(pulse(constant(10, complex(0, 3)), 0.01), 100)
	require.NoError(t, err)
	assert.InDelta(t, 3, w.Amp[0], 1e-12)
	assert.InDelta(t, math.Pi/2, w.Phase[0], 1e-12)
}

func TestPrepare_SubsamplesShapedPulse(t *testing.T) {
	s := make([]complex128, 1000)
	for i := range s {
		s[i] = complex(1+float64(i), 0)
	}
	w, err := Prepare(pulse(s, 0.1), 300)
	require.NoError(t, err)

	assert.Equal(t, 4, w.Stride)
	assert.Equal(t, 250, w.Steps())
	assert.InDelta(t, 4e-4, w.Dt, 1e-15)
	assert.Equal(t, 1.0, w.Amp[0])
	assert.Equal(t, 5.0, w.Amp[1])
}

func TestPrepare_UnevenSampleBudgetIsFatal(t *testing.T) {
	s := make([]complex128, 50)
	for i := range s {
		s[i] = complex(1+float64(i), 0)
	}
	_, err := Prepare(pulse(s, 0.1), 100)
	assert.ErrorIs(t, err, dynamo.ErrUnsupportedWaveform)
}

func TestPrepare_SilentPulseIsPureDelay(t *testing.T) {
	w, err := Prepare(pulse(constant(20, 0), 0.5), 100)
	require.NoError(t, err)
	assert.Zero(t, w.Steps())
	assert.InDelta(t, 0.5, w.Tail, 1e-12)
}

func TestPrepare_RejectsEmpty(t *testing.T) {
	_, err := Prepare(pulse(nil, 1), 100)
	assert.ErrorIs(t, err, dynamo.ErrUnsupportedWaveform)

	_, err = Prepare(pulse(constant(3, 1), 1), 0)
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)
}

func TestPhaseDrift(t *testing.T) {
	assert.InDelta(t, 0.2*math.Pi, PhaseDrift(0.1, 1), 1e-12)
	assert.InDelta(t, math.Pi, PhaseDrift(0.25, 2), 1e-12)
	assert.InDelta(t, 1.5*math.Pi, PhaseDrift(-0.25, 1), 1e-12, "negative offsets wrap into [0, 2π)")
}
