package sir

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/rand"

	smc "github.com/mjaksn/go-smc"
	"github.com/mjaksn/go-smc/particle"
	smcrand "github.com/mjaksn/go-smc/rand"
	"gonum.org/v1/gonum/mat"
)

// SIR is a Sampling Importance Resampling filter a.k.a. Bootstrap Filter.
// For more information about SIR filters see:
// https://en.wikipedia.org/wiki/Particle_filter#The_bootstrap_filter
//
// Each time step resamples the previous particle population by weight,
// propagates every selected particle through the model transition and
// reweights the population against the new observation. Time steps are
// strictly sequential; one exclusively owned generator drives all draws so a
// fixed seed reproduces a run exactly.
type SIR struct {
	// model is the generative state space model
	model smc.Model
	// ic is the Gaussian prior over the initial state
	ic smc.InitCond
	// n is the particle count, constant across all time steps of a run
	n int
	// rng drives resampling and the prior draw
	rng *rand.Rand
}

// New creates new SIR filter with the following parameters and returns it:
// - m:   generative state space model
// - ic:  initial condition of the filter
// - n:   number of filter particles
// - src: seed source for all filter randomness; nil seeds from the wall clock
// New returns an error wrapping smc.ErrInvalidConfig if the model or initial
// condition is nil, the particle count is non-positive or the prior dimension
// does not match the model.
func New(m smc.Model, ic smc.InitCond, n int, src rand.Source) (*SIR, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil model", smc.ErrInvalidConfig)
	}

	if ic == nil {
		return nil, fmt.Errorf("%w: nil initial condition", smc.ErrInvalidConfig)
	}

	// must have at least one particle; can't be negative
	if n < 1 {
		return nil, fmt.Errorf("%w: invalid particle count: %d", smc.ErrInvalidConfig, n)
	}

	nz, nx := m.Dims()
	if nz <= 0 || nx <= 0 {
		return nil, fmt.Errorf("%w: invalid model dimensions: [%d x %d]", smc.ErrInvalidConfig, nz, nx)
	}

	if state := ic.State(); state.Len() != nz {
		return nil, fmt.Errorf("%w: prior mean dimension %d does not match state dimension %d", smc.ErrInvalidConfig, state.Len(), nz)
	}

	if src == nil {
		src = rand.NewSource(uint64(time.Now().UnixNano()))
	}

	return &SIR{
		model: m,
		ic:    ic,
		n:     n,
		rng:   rand.New(src),
	}, nil
}

// prior draws the particle set of time index zero: n latent samples from the
// Gaussian prior with uniform weights.
func (f *SIR) prior() (*particle.Set, error) {
	x, err := smcrand.WithCovN(f.ic.Cov(), f.n, f.rng)
	if err != nil {
		return nil, fmt.Errorf("failed to generate filter particles: %v", err)
	}

	rows, cols := x.Dims()
	// center particles around the prior mean
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			x.Set(r, c, x.At(r, c)+f.ic.State().AtVec(r))
		}
	}

	return particle.NewSet(x, particle.UniformWeights(f.n))
}

// step advances the filter by one observation: resample indices from the
// current weights, propagate every selected particle and reweight against x.
// On weight collapse the returned set carries uniform weights and the error
// wraps smc.ErrDegenerateWeights.
func (f *SIR) step(cur *particle.Set, x mat.Vector) (*particle.Set, error) {
	indices, err := cur.Resample(f.rng)
	if err != nil {
		return nil, err
	}

	nz, _ := f.model.Dims()
	xNext := mat.NewDense(nz, f.n, nil)
	for c, idx := range indices {
		zNext, err := f.model.Transition(cur.At(idx))
		if err != nil {
			return nil, fmt.Errorf("particle state propagation failed: %v", err)
		}
		xNext.Slice(0, zNext.Len(), c, c+1).(*mat.Dense).Copy(zNext)
	}

	next, err := particle.NewSet(xNext, particle.UniformWeights(f.n))
	if err != nil {
		return nil, err
	}

	if err := next.Reweight(f.model, x); err != nil {
		return next, err
	}

	return next, nil
}

// Run filters the whole observation sequence and returns the particle history
// across all time steps: the prior set at index zero followed by one
// reweighted set per observation. An empty observation sequence returns the
// prior set only.
// Weight collapse at a step is not fatal: the step keeps uniform weights and
// its time index is recorded in History.Degenerate.
// It returns error if particle propagation fails or the weights handed to the
// resampler stop being a valid distribution.
func (f *SIR) Run(obs []mat.Vector) (*particle.History, error) {
	hist := particle.NewHistory(len(obs) + 1)

	cur, err := f.prior()
	if err != nil {
		return nil, err
	}
	hist.Append(cur)

	for t, x := range obs {
		next, err := f.step(cur, x)
		if err != nil {
			if !errors.Is(err, smc.ErrDegenerateWeights) {
				return nil, err
			}
			hist.Degenerate = append(hist.Degenerate, t+1)
		}
		hist.Append(next)
		cur = next
	}

	return hist, nil
}

// Predict extrapolates the particle set s over the given horizon with no new
// observations. Every future step resamples the current population,
// propagates it through the model transition and draws one synthetic
// observation per particle. With no evidence to discriminate among particles
// the weights of every future set are exactly uniform; latent diversity still
// grows through continued propagation, capturing compounding uncertainty.
// It returns the future particle history and one nx-by-n observation matrix
// per step. A zero horizon returns an empty history.
// It returns an error wrapping smc.ErrInvalidConfig if s is nil, sized
// differently from the filter or the horizon is negative, and an error
// wrapping smc.ErrInvalidDistribution if the weights of s are not a valid
// distribution.
func (f *SIR) Predict(s *particle.Set, horizon int) (*particle.History, []*mat.Dense, error) {
	if s == nil {
		return nil, nil, fmt.Errorf("%w: nil particle set", smc.ErrInvalidConfig)
	}

	if s.Len() != f.n {
		return nil, nil, fmt.Errorf("%w: particle count %d does not match filter particle count %d", smc.ErrInvalidConfig, s.Len(), f.n)
	}

	if horizon < 0 {
		return nil, nil, fmt.Errorf("%w: invalid horizon: %d", smc.ErrInvalidConfig, horizon)
	}

	nz, nx := f.model.Dims()

	hist := particle.NewHistory(horizon)
	obs := make([]*mat.Dense, 0, horizon)

	cur := s
	for h := 0; h < horizon; h++ {
		indices, err := cur.Resample(f.rng)
		if err != nil {
			return nil, nil, err
		}

		xNext := mat.NewDense(nz, f.n, nil)
		yNext := mat.NewDense(nx, f.n, nil)
		for c, idx := range indices {
			zNext, err := f.model.Transition(cur.At(idx))
			if err != nil {
				return nil, nil, fmt.Errorf("particle state propagation failed: %v", err)
			}
			xNext.Slice(0, zNext.Len(), c, c+1).(*mat.Dense).Copy(zNext)

			yPart, err := f.model.Observe(zNext)
			if err != nil {
				return nil, nil, fmt.Errorf("particle state observation failed: %v", err)
			}
			yNext.Slice(0, yPart.Len(), c, c+1).(*mat.Dense).Copy(yPart)
		}

		next, err := particle.NewSet(xNext, particle.UniformWeights(f.n))
		if err != nil {
			return nil, nil, err
		}

		hist.Append(next)
		obs = append(obs, yNext)
		cur = next
	}

	return hist, obs, nil
}
