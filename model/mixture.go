package model

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	smcrand "github.com/mjaksn/go-smc/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Component is a single Gaussian component of an observation mixture.
type Component struct {
	// Weight is the mixture weight of the component
	Weight float64
	// Offset is the component mean offset from the latent state
	Offset []float64
	// Cov is the component covariance
	Cov mat.Symmetric
}

// Mixture is a finite mixture of Gaussian components centered on the latent
// state. The same mixture constants drive both sampling and density
// evaluation, which keeps the generative model self-consistent.
type Mixture struct {
	comps []Component
	// dists are the zero-mean component distributions; the state and the
	// component offset are added to their samples
	dists []*distmv.Normal
	// logw caches the log mixture weights for density evaluation
	logw []float64
	w    []float64
	dim  int
	rng  *rand.Rand
}

// NewMixture creates a mixture of Gaussian components over the observation
// space whose samples are drawn with the generator backed by src.
// It returns error if comps is empty, the component dimensions disagree,
// a weight is negative or the weights do not sum to 1.
func NewMixture(comps []Component, src rand.Source) (*Mixture, error) {
	if len(comps) == 0 {
		return nil, fmt.Errorf("empty mixture")
	}

	dim := len(comps[0].Offset)
	w := make([]float64, len(comps))
	logw := make([]float64, len(comps))
	dists := make([]*distmv.Normal, len(comps))

	for i, c := range comps {
		if len(c.Offset) != dim {
			return nil, fmt.Errorf("invalid offset dimension for component %d: %d", i, len(c.Offset))
		}
		if c.Cov.SymmetricDim() != dim {
			return nil, fmt.Errorf("invalid covariance dimension for component %d: %d", i, c.Cov.SymmetricDim())
		}
		if c.Weight < 0 {
			return nil, fmt.Errorf("negative weight for component %d: %v", i, c.Weight)
		}

		dist, ok := distmv.NewNormal(make([]float64, dim), c.Cov, src)
		if !ok {
			return nil, fmt.Errorf("failed to create distribution for component %d", i)
		}

		w[i] = c.Weight
		logw[i] = math.Log(c.Weight)
		dists[i] = dist
	}

	if sum := floats.Sum(w); math.Abs(sum-1) > smcrand.DistTol {
		return nil, fmt.Errorf("mixture weights sum to %v", sum)
	}

	return &Mixture{
		comps: comps,
		dists: dists,
		logw:  logw,
		w:     w,
		dim:   dim,
		rng:   rand.New(src),
	}, nil
}

// DefaultMixture returns the fixed 3-component observation law of the given
// dimension: a dominant component centered on the state and two lighter
// components offset by +2 and -2 in every coordinate.
func DefaultMixture(dim int) []Component {
	offset := func(v float64) []float64 {
		o := make([]float64, dim)
		for i := range o {
			o[i] = v
		}
		return o
	}

	eye := func(s float64) mat.Symmetric {
		d := mat.NewSymDense(dim, nil)
		for i := 0; i < dim; i++ {
			d.SetSym(i, i, s*s)
		}
		return d
	}

	return []Component{
		{Weight: 0.5, Offset: offset(0), Cov: eye(0.6)},
		{Weight: 0.3, Offset: offset(2), Cov: eye(0.8)},
		{Weight: 0.2, Offset: offset(-2), Cov: eye(0.8)},
	}
}

// Dim returns the observation dimension of the mixture.
func (m *Mixture) Dim() int {
	return m.dim
}

// Sample draws one observation centered on the latent state z: a component is
// selected according to the mixture weights first, then a sample of that
// component is returned.
func (m *Mixture) Sample(z mat.Vector) (mat.Vector, error) {
	if z.Len() != m.dim {
		return nil, fmt.Errorf("invalid state vector dimension: %d", z.Len())
	}

	idx, err := smcrand.Multinomial(m.w, 1, m.rng)
	if err != nil {
		return nil, fmt.Errorf("failed to select mixture component: %v", err)
	}

	k := idx[0]
	r := m.dists[k].Rand(nil)

	out := mat.NewVecDense(m.dim, r)
	for i := 0; i < m.dim; i++ {
		out.SetVec(i, out.AtVec(i)+z.AtVec(i)+m.comps[k].Offset[i])
	}

	return out, nil
}

// LogProb evaluates the log mixture density of observation x given latent
// state z. The component densities are combined with log-sum-exp so small
// densities do not underflow before they are summed; the result is negative
// infinity only when every component underflows completely.
func (m *Mixture) LogProb(z, x mat.Vector) (float64, error) {
	if z.Len() != m.dim {
		return 0, fmt.Errorf("invalid state vector dimension: %d", z.Len())
	}
	if x.Len() != m.dim {
		return 0, fmt.Errorf("invalid observation vector dimension: %d", x.Len())
	}

	lp := make([]float64, len(m.comps))
	diff := make([]float64, m.dim)
	for k, c := range m.comps {
		for i := range diff {
			diff[i] = x.AtVec(i) - z.AtVec(i) - c.Offset[i]
		}
		lp[k] = m.logw[k] + m.dists[k].LogProb(diff)
	}

	return floats.LogSumExp(lp), nil
}
