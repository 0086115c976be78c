package optim

import (
	"math"

	"github.com/parlance-nlu/parlance/internal/nn"
)

// ClipGradNorm rescales all parameter gradients so their global L2 norm
// does not exceed maxNorm, and returns the norm measured before clipping.
// The recurrent decoder makes exploding gradients a real possibility; the
// model clips at 5 before every optimizer step.
func ClipGradNorm(params []*nn.Parameter, maxNorm float64) float64 {
	var sq float64
	for _, p := range params {
		for _, g := range p.Tensor().Grad() {
			sq += float64(g) * float64(g)
		}
	}
	norm := math.Sqrt(sq)
	if norm <= maxNorm || norm == 0 {
		return norm
	}
	scale := float32(maxNorm / norm)
	for _, p := range params {
		grad := p.Tensor().Grad()
		for i := range grad {
			grad[i] *= scale
		}
	}
	return norm
}
