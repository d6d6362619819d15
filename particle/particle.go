package particle

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	smc "github.com/mjaksn/go-smc"
	"github.com/mjaksn/go-smc/estimate"
	smcrand "github.com/mjaksn/go-smc/rand"
	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Filter is a sequential Monte Carlo filter over a particle population.
type Filter interface {
	// Run filters the whole observation sequence and returns the history
	// of particle sets, one per observation plus the initial prior set.
	Run(obs []mat.Vector) (*History, error)
	// Predict extrapolates the given particle set over the horizon with no
	// new observations and returns the future particle sets together with
	// one synthetic observation set per step.
	Predict(s *Set, horizon int) (*History, []*mat.Dense, error)
}

// Set is the particle population of one time step: latent samples stored as
// column vectors of a dense matrix with their importance weights alongside.
// A Set is reweighted in place once, right after it is created, and is
// treated as frozen from then on.
type Set struct {
	// x stores particles as column vectors
	x *mat.Dense
	// w stores particle weights
	w []float64
}

// NewSet creates a particle set from latent samples x and weights w.
// It returns error if the number of weights does not match the number of
// particle columns.
func NewSet(x *mat.Dense, w []float64) (*Set, error) {
	if x == nil {
		return nil, fmt.Errorf("nil particle matrix")
	}

	if _, cols := x.Dims(); cols != len(w) {
		return nil, fmt.Errorf("weight count %d does not match particle count %d", len(w), cols)
	}

	return &Set{x: x, w: w}, nil
}

// UniformWeights returns n weights of exactly 1/n.
func UniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}

	return w
}

// Len returns the number of particles in the set.
func (s *Set) Len() int {
	_, cols := s.x.Dims()
	return cols
}

// Dim returns the latent state dimension of the set.
func (s *Set) Dim() int {
	rows, _ := s.x.Dims()
	return rows
}

// At returns a copy of the latent state of particle i.
func (s *Set) At(i int) mat.Vector {
	rows, _ := s.x.Dims()
	z := mat.NewVecDense(rows, nil)
	z.CopyVec(s.x.ColView(i))

	return z
}

// Particles returns a copy of the latent samples stored as column vectors.
func (s *Set) Particles() *mat.Dense {
	p := &mat.Dense{}
	p.CloneFrom(s.x)

	return p
}

// Weights returns a copy of the particle weights.
func (s *Set) Weights() []float64 {
	w := make([]float64, len(s.w))
	copy(w, s.w)

	return w
}

// Resample draws Len() particle indices independently with replacement,
// index i with probability equal to particle i's weight. Duplicate draws are
// expected: a high-weight particle may be selected many times.
// It fails with an error wrapping smc.ErrInvalidDistribution if the weights
// are not a valid probability distribution.
func (s *Set) Resample(rng *rand.Rand) ([]int, error) {
	return smcrand.Multinomial(s.w, len(s.w), rng)
}

// Reweight computes a fresh importance weight for every particle from the log
// likelihood of observation x and normalizes the weights to sum to 1.
// The normalization runs in log space so small likelihoods survive.
// If every likelihood collapses to zero, or the normalizer is non-finite, the
// weights fall back to uniform and Reweight returns an error wrapping
// smc.ErrDegenerateWeights; the set remains usable and the caller decides
// whether to surface the degradation.
func (s *Set) Reweight(m smc.Model, x mat.Vector) error {
	lw := make([]float64, len(s.w))
	for i := range lw {
		lp, err := m.LogLikelihood(s.x.ColView(i), x)
		if err != nil {
			return fmt.Errorf("particle likelihood evaluation failed: %v", err)
		}
		lw[i] = lp
	}

	norm := floats.LogSumExp(lw)
	if math.IsInf(norm, 0) || math.IsNaN(norm) {
		copy(s.w, UniformWeights(len(s.w)))
		return fmt.Errorf("%w: observation outside the support of all particles", smc.ErrDegenerateWeights)
	}

	for i := range lw {
		s.w[i] = math.Exp(lw[i] - norm)
	}

	return nil
}

// Estimate returns the weighted posterior mean of the particle states with
// the covariance of the particle cloud.
func (s *Set) Estimate() (smc.Estimate, error) {
	rows, _ := s.x.Dims()

	mean := mat.NewVecDense(rows, nil)
	row := make([]float64, s.Len())
	for r := 0; r < rows; r++ {
		mat.Row(row, r, s.x)
		mean.SetVec(r, stat.Mean(row, s.w))
	}

	cov, err := matrix.Cov(s.x, "cols")
	if err != nil {
		return nil, fmt.Errorf("failed to calculate particle covariance: %v", err)
	}

	return estimate.NewBaseWithCov(mean, cov)
}

// History is the time-ordered sequence of particle sets produced by one
// filter run or prediction. Sets are appended once and never mutated after.
type History struct {
	sets []*Set
	// Degenerate lists the time indices at which reweighting collapsed and
	// the uniform fallback was applied.
	Degenerate []int
}

// NewHistory creates an empty history with room for n particle sets.
func NewHistory(n int) *History {
	return &History{sets: make([]*Set, 0, n)}
}

// Append records the particle set of the next time step.
func (h *History) Append(s *Set) {
	h.sets = append(h.sets, s)
}

// Len returns the number of recorded time steps.
func (h *History) Len() int {
	return len(h.sets)
}

// At returns the particle set recorded at time index t.
func (h *History) At(t int) *Set {
	return h.sets[t]
}

// Last returns the most recently recorded particle set or nil for an empty
// history.
func (h *History) Last() *Set {
	if len(h.sets) == 0 {
		return nil
	}

	return h.sets[len(h.sets)-1]
}
