package rand

import (
	"fmt"
	"math"
	"sort"

	rnd "golang.org/x/exp/rand"

	smc "github.com/mjaksn/go-smc"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DistTol is the tolerance within which a weight vector must sum to 1
// to be accepted as a probability distribution.
const DistTol = 1e-9

// WithCovN draws n random samples from a zero-mean Normal (aka Gaussian) distribution
// with covariance cov using the supplied generator rng.
// It returns matrix which contains the randomly generated samples stored in its columns.
// It fails with error if n is non-positive and/or smaller than 1 or if SVD factorization of cov fails.
func WithCovN(cov mat.Symmetric, n int, rng *rnd.Rand) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	// Use SVD instead of Cholesky as Cholesky can be numerically unstable if cov is (almost) singular
	var svd mat.SVD
	ok := svd.Factorize(cov, mat.SVDFull)
	if !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	U := new(mat.Dense)
	svd.UTo(U)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	diag := mat.NewDiagDense(len(vals), vals)
	U.Mul(U, diag)

	rows, _ := cov.Dims()
	data := make([]float64, rows*n)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	samples := mat.NewDense(rows, n, data)
	samples.Mul(U, samples)

	return samples, nil
}

// Multinomial draws n indices independently with replacement from the probability
// mass function defined by the weights in w: index i is drawn with probability w[i].
// Draws use the inverse-CDF method over the cumulative sum of w:
// - https://en.wikipedia.org/wiki/Fitness_proportionate_selection
// - http://www.keithschwarz.com/darts-dice-coins/
// It fails with smc.ErrInvalidDistribution if w is empty, contains a negative
// entry or does not sum to 1 within DistTol.
func Multinomial(w []float64, n int, rng *rnd.Rand) ([]int, error) {
	if len(w) == 0 {
		return nil, fmt.Errorf("%w: empty weights", smc.ErrInvalidDistribution)
	}

	for i, v := range w {
		if v < 0 {
			return nil, fmt.Errorf("%w: negative weight %v at index %d", smc.ErrInvalidDistribution, v, i)
		}
	}

	if sum := floats.Sum(w); math.Abs(sum-1) > DistTol {
		return nil, fmt.Errorf("%w: weights sum to %v", smc.ErrInvalidDistribution, sum)
	}

	// the CDF is sorted in ascending order by construction
	cdf := make([]float64, len(w))
	floats.CumSum(cdf, w)

	u := distuv.Uniform{Min: 0, Max: 1, Src: rng}

	var val float64
	indices := make([]int, n)
	for i := range indices {
		// scale the sample by the largest CDF value; easier than normalizing to [0,1)
		val = u.Rand() * cdf[len(cdf)-1]
		// Search returns the smallest index i such that cdf[i] > val
		indices[i] = sort.Search(len(cdf), func(j int) bool { return cdf[j] > val })
	}

	return indices, nil
}
