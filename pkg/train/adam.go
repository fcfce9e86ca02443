package train

import "github.com/chewxy/math32"

// adam keeps first/second moment estimates for one weight tensor.
type adam struct {
	m []float32
	v []float32
	t int
}

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

func newAdam(size int) *adam {
	return &adam{
		m: make([]float32, size),
		v: make([]float32, size),
	}
}

// Step applies one Adam update to params in place.
func (a *adam) Step(params, grads []float32, lr float32) {
	a.t++
	c1 := 1 - math32.Pow(adamBeta1, float32(a.t))
	c2 := 1 - math32.Pow(adamBeta2, float32(a.t))
	for i, g := range grads {
		a.m[i] = adamBeta1*a.m[i] + (1-adamBeta1)*g
		a.v[i] = adamBeta2*a.v[i] + (1-adamBeta2)*g*g
		mHat := a.m[i] / c1
		vHat := a.v[i] / c2
		params[i] -= lr * mHat / (math32.Sqrt(vHat) + adamEps)
	}
}
