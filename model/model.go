package model

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/rand"

	smc "github.com/mjaksn/go-smc"
	"github.com/mjaksn/go-smc/noise"
	"gonum.org/v1/gonum/mat"
)

// DefaultDriftGain is the drift gain used when Config leaves it unset.
const DefaultDriftGain = 1.0

// DefaultTransSigma is the transition noise standard deviation used when
// Config leaves the transition covariance unset.
const DefaultTransSigma = 0.5

// Config is generative model configuration.
type Config struct {
	// DimZ is the latent state dimension
	DimZ int
	// DimX is the observation dimension
	DimX int
	// MuZero is the prior state mean
	MuZero []float64
	// SigmaWZero is the prior state standard deviation
	SigmaWZero float64
	// DriftGain scales the sine/cosine drift of the transition.
	// Non-positive gain selects DefaultDriftGain.
	DriftGain float64
	// TransCov is the transition noise covariance.
	// Nil covariance selects DefaultTransSigma^2 * I.
	TransCov mat.Symmetric
	// Components is the observation mixture. Nil selects DefaultMixture.
	Components []Component
	// Src seeds all model randomness. Nil source seeds from the wall clock.
	Src rand.Source
}

// Mix is a generative state space model over a hidden trajectory: the latent
// state moves by a smooth nonlinear sine/cosine drift with additive Gaussian
// noise and is observed through a Gaussian mixture. Mix implements smc.Model.
type Mix struct {
	dimZ int
	dimX int
	gain float64
	// q is transition noise
	q *noise.Gaussian
	// mix is the observation law
	mix *Mixture
	// ic is the Gaussian prior over the initial state
	ic *InitCond
}

// New creates a generative mixture model from cfg and returns it.
// It fails with an error wrapping smc.ErrInvalidConfig if the dimensions are
// non-positive or disagree with the prior mean, the prior deviation is
// non-positive, or the mixture constants are invalid.
func New(cfg Config) (*Mix, error) {
	if cfg.DimZ <= 0 || cfg.DimX <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions: [%d x %d]", smc.ErrInvalidConfig, cfg.DimZ, cfg.DimX)
	}

	// the mixture components are centered on the latent state, so the
	// observation space must match the latent space
	if cfg.DimX != cfg.DimZ {
		return nil, fmt.Errorf("%w: observation dimension %d does not match state dimension %d", smc.ErrInvalidConfig, cfg.DimX, cfg.DimZ)
	}

	if len(cfg.MuZero) != cfg.DimZ {
		return nil, fmt.Errorf("%w: prior mean dimension %d does not match state dimension %d", smc.ErrInvalidConfig, len(cfg.MuZero), cfg.DimZ)
	}

	if cfg.SigmaWZero <= 0 {
		return nil, fmt.Errorf("%w: invalid prior deviation: %v", smc.ErrInvalidConfig, cfg.SigmaWZero)
	}

	src := cfg.Src
	if src == nil {
		src = rand.NewSource(uint64(time.Now().UnixNano()))
	}

	gain := cfg.DriftGain
	if gain <= 0 {
		gain = DefaultDriftGain
	}

	transCov := cfg.TransCov
	if transCov == nil {
		c := mat.NewSymDense(cfg.DimZ, nil)
		for i := 0; i < cfg.DimZ; i++ {
			c.SetSym(i, i, DefaultTransSigma*DefaultTransSigma)
		}
		transCov = c
	}
	if transCov.SymmetricDim() != cfg.DimZ {
		return nil, fmt.Errorf("%w: invalid transition noise dimension: %d", smc.ErrInvalidConfig, transCov.SymmetricDim())
	}

	q, err := noise.NewGaussian(make([]float64, cfg.DimZ), transCov, src)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid transition noise: %v", smc.ErrInvalidConfig, err)
	}

	comps := cfg.Components
	if comps == nil {
		comps = DefaultMixture(cfg.DimX)
	}

	mix, err := NewMixture(comps, src)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid mixture: %v", smc.ErrInvalidConfig, err)
	}

	priorCov := mat.NewSymDense(cfg.DimZ, nil)
	for i := 0; i < cfg.DimZ; i++ {
		priorCov.SetSym(i, i, cfg.SigmaWZero*cfg.SigmaWZero)
	}
	mu := mat.NewVecDense(cfg.DimZ, cfg.MuZero)

	return &Mix{
		dimZ: cfg.DimZ,
		dimX: cfg.DimX,
		gain: gain,
		q:    q,
		mix:  mix,
		ic:   NewInitCond(mu, priorCov),
	}, nil
}

// Transition draws the next latent state given the current state z: each
// coordinate is moved by a sine or cosine of its cyclic neighbour scaled by
// the drift gain, with additive Gaussian noise.
// It returns error if z has invalid dimension.
func (m *Mix) Transition(z mat.Vector) (mat.Vector, error) {
	if z.Len() != m.dimZ {
		return nil, fmt.Errorf("invalid state vector dimension: %d", z.Len())
	}

	out := mat.NewVecDense(m.dimZ, nil)
	for i := 0; i < m.dimZ; i++ {
		next := z.AtVec((i + 1) % m.dimZ)
		drift := m.gain * math.Sin(next)
		if i%2 == 1 {
			drift = m.gain * math.Cos(next)
		}
		out.SetVec(i, z.AtVec(i)+drift)
	}

	out.AddVec(out, m.q.Sample())

	return out, nil
}

// Observe draws an observation of the latent state z from the observation
// mixture. It returns error if z has invalid dimension.
func (m *Mix) Observe(z mat.Vector) (mat.Vector, error) {
	return m.mix.Sample(z)
}

// LogLikelihood evaluates the log observation density of x given the latent
// state z. It returns error if either vector has invalid dimension.
func (m *Mix) LogLikelihood(z, x mat.Vector) (float64, error) {
	return m.mix.LogProb(z, x)
}

// Likelihood evaluates the observation density of x given the latent state z.
// It can underflow to zero for observations far outside the mixture support;
// use LogLikelihood where small densities matter.
func (m *Mix) Likelihood(z, x mat.Vector) (float64, error) {
	lp, err := m.mix.LogProb(z, x)
	if err != nil {
		return 0, err
	}

	return math.Exp(lp), nil
}

// Dims returns latent and observation dimensions of the model.
func (m *Mix) Dims() (nz, nx int) {
	return m.dimZ, m.dimX
}

// InitCond returns the Gaussian prior over the initial latent state.
func (m *Mix) InitCond() smc.InitCond {
	return m.ic
}
