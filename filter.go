package smc

import "gonum.org/v1/gonum/mat"

// Model is a generative state space model with sampled dynamics.
// Both samplers and the likelihood are driven by the same fixed
// model constants so that weights computed for sampled observations
// reflect the true generative probability.
type Model interface {
	// Transition draws the next latent state given the current state
	Transition(z mat.Vector) (mat.Vector, error)
	// Observe draws an observation of the latent state z
	Observe(z mat.Vector) (mat.Vector, error)
	// LogLikelihood evaluates the log observation density at x given latent state z.
	// It returns negative infinity for an observation outside the model support.
	LogLikelihood(z, x mat.Vector) (float64, error)
	// Dims returns latent and observation dimensions of the model
	Dims() (nz int, nx int)
}

// InitCond is initial state condition of the filter
type InitCond interface {
	// State returns initial filter state
	State() mat.Vector
	// Cov returns initial state covariance
	Cov() mat.Symmetric
}

// Estimate is dynamical system filter estimate
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}
