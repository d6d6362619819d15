package model

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"

	smc "github.com/mjaksn/go-smc"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func validConfig() Config {
	return Config{
		DimZ:       2,
		DimX:       2,
		MuZero:     []float64{0, 0},
		SigmaWZero: 1.1,
		Src:        rand.NewSource(1),
	}
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	// non-positive dimensions
	cfg := validConfig()
	cfg.DimZ = 0
	m, err := New(cfg)
	assert.Nil(m)
	assert.ErrorIs(err, smc.ErrInvalidConfig)

	cfg = validConfig()
	cfg.DimX = -1
	m, err = New(cfg)
	assert.Nil(m)
	assert.ErrorIs(err, smc.ErrInvalidConfig)

	// observation and state dimensions must agree
	cfg = validConfig()
	cfg.DimX = 3
	m, err = New(cfg)
	assert.Nil(m)
	assert.ErrorIs(err, smc.ErrInvalidConfig)

	// prior mean dimension mismatch
	cfg = validConfig()
	cfg.MuZero = []float64{0, 0, 0}
	m, err = New(cfg)
	assert.Nil(m)
	assert.ErrorIs(err, smc.ErrInvalidConfig)

	// non-positive prior deviation
	cfg = validConfig()
	cfg.SigmaWZero = 0
	m, err = New(cfg)
	assert.Nil(m)
	assert.ErrorIs(err, smc.ErrInvalidConfig)

	// transition noise dimension mismatch
	cfg = validConfig()
	cfg.TransCov = mat.NewSymDense(3, nil)
	m, err = New(cfg)
	assert.Nil(m)
	assert.ErrorIs(err, smc.ErrInvalidConfig)

	// invalid mixture constants
	cfg = validConfig()
	cfg.Components = []Component{{Weight: 0.5, Offset: []float64{0, 0}, Cov: mat.NewSymDense(2, []float64{1, 0, 0, 1})}}
	m, err = New(cfg)
	assert.Nil(m)
	assert.ErrorIs(err, smc.ErrInvalidConfig)

	// valid config
	m, err = New(validConfig())
	assert.NotNil(m)
	assert.NoError(err)

	nz, nx := m.Dims()
	assert.Equal(2, nz)
	assert.Equal(2, nx)
}

func TestInitCond(t *testing.T) {
	assert := assert.New(t)

	m, err := New(validConfig())
	assert.NoError(err)

	ic := m.InitCond()
	assert.Equal(2, ic.State().Len())
	assert.InDelta(0.0, ic.State().AtVec(0), 1e-12)
	assert.InDelta(1.1*1.1, ic.Cov().At(0, 0), 1e-12)
	assert.InDelta(0.0, ic.Cov().At(0, 1), 1e-12)
}

func TestTransition(t *testing.T) {
	assert := assert.New(t)

	m, err := New(validConfig())
	assert.NoError(err)

	// invalid state dimension
	z, err := m.Transition(mat.NewVecDense(3, nil))
	assert.Nil(z)
	assert.Error(err)

	z, err = m.Transition(mat.NewVecDense(2, []float64{1.0, 2.0}))
	assert.NoError(err)
	assert.Equal(2, z.Len())

	// with near-zero noise the transition is the pure sine/cosine drift
	cfg := validConfig()
	cfg.TransCov = mat.NewSymDense(2, []float64{1e-12, 0, 0, 1e-12})
	m, err = New(cfg)
	assert.NoError(err)

	cur := mat.NewVecDense(2, []float64{1.0, 2.0})
	z, err = m.Transition(cur)
	assert.NoError(err)
	assert.InDelta(1.0+math.Sin(2.0), z.AtVec(0), 1e-3)
	assert.InDelta(2.0+math.Cos(1.0), z.AtVec(1), 1e-3)
}

func TestObserve(t *testing.T) {
	assert := assert.New(t)

	m, err := New(validConfig())
	assert.NoError(err)

	x, err := m.Observe(mat.NewVecDense(3, nil))
	assert.Nil(x)
	assert.Error(err)

	x, err = m.Observe(mat.NewVecDense(2, []float64{0.5, -0.5}))
	assert.NoError(err)
	assert.Equal(2, x.Len())
}

func TestLikelihood(t *testing.T) {
	assert := assert.New(t)

	m, err := New(validConfig())
	assert.NoError(err)

	z := mat.NewVecDense(2, []float64{0.0, 0.0})

	lp, err := m.LogLikelihood(z, mat.NewVecDense(2, []float64{0.1, -0.1}))
	assert.NoError(err)
	assert.False(math.IsNaN(lp))

	p, err := m.Likelihood(z, mat.NewVecDense(2, []float64{0.1, -0.1}))
	assert.NoError(err)
	assert.True(p > 0)
	assert.InDelta(math.Exp(lp), p, 1e-12)

	// sampling and evaluation share the same mixture: sampled observations
	// must carry positive density under the model
	for i := 0; i < 10; i++ {
		x, err := m.Observe(z)
		assert.NoError(err)

		p, err := m.Likelihood(z, x)
		assert.NoError(err)
		assert.True(p > 0)
	}
}
