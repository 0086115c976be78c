// Package optim implements the optimization step applied between batches.
//
// The model's parameter store is shared-read during a step and exclusively
// mutated here; nothing else writes parameter values.
package optim

import (
	"math"

	"github.com/parlance-nlu/parlance/internal/nn"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * g
//	v_t = beta2 * v_{t-1} + (1-beta2) * g²
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014).
type Adam struct {
	params []*nn.Parameter
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64
	t      int
	m      map[string][]float64
	v      map[string][]float64
}

// AdamConfig holds the optimizer hyperparameters.
// Zero values fall back to the usual defaults.
type AdamConfig struct {
	LR    float64 // learning rate (default 0.001)
	Beta1 float64 // first-moment decay (default 0.9)
	Beta2 float64 // second-moment decay (default 0.999)
	Eps   float64 // numerical stability term (default 1e-8)
}

// NewAdam creates an Adam optimizer over the given parameters.
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Beta1 == 0 {
		config.Beta1 = 0.9
	}
	if config.Beta2 == 0 {
		config.Beta2 = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &Adam{
		params: params,
		lr:     config.LR,
		beta1:  config.Beta1,
		beta2:  config.Beta2,
		eps:    config.Eps,
		m:      make(map[string][]float64),
		v:      make(map[string][]float64),
	}
}

// Step applies one Adam update using the gradients currently stored on each
// parameter tensor.
func (a *Adam) Step() {
	a.t++
	bc1 := 1 - math.Pow(a.beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.beta2, float64(a.t))
	for _, p := range a.params {
		data := p.Tensor().Data()
		grad := p.Tensor().Grad()
		m, ok := a.m[p.Name()]
		if !ok {
			m = make([]float64, len(data))
			a.m[p.Name()] = m
		}
		v, ok := a.v[p.Name()]
		if !ok {
			v = make([]float64, len(data))
			a.v[p.Name()] = v
		}
		for i := range data {
			g := float64(grad[i])
			m[i] = a.beta1*m[i] + (1-a.beta1)*g
			v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
			mHat := m[i] / bc1
			vHat := v[i] / bc2
			data[i] -= float32(a.lr * mHat / (math.Sqrt(vHat) + a.eps))
		}
	}
}

// ZeroGrad clears the gradients of every managed parameter.
func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

// LR returns the learning rate.
func (a *Adam) LR() float64 { return a.lr }

// State returns the optimizer's moment estimates and timestep for
// checkpointing.
func (a *Adam) State() (m, v map[string][]float64, t int) {
	return a.m, a.v, a.t
}

// LoadState restores moment estimates and the timestep from a checkpoint.
func (a *Adam) LoadState(m, v map[string][]float64, t int) {
	if m != nil {
		a.m = m
	}
	if v != nil {
		a.v = v
	}
	a.t = t
}
