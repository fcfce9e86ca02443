package model

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForwardIsProbability(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	head := NewHead(16, 4, rng)
	for i := 0; i < 50; i++ {
		features := make([]float32, 16)
		for j := range features {
			features[j] = rng.Float32()*20 - 10
		}
		p := head.Forward(features)
		require.GreaterOrEqual(t, p, float32(0))
		require.LessOrEqual(t, p, float32(1))
	}
}

func TestForwardDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	head := NewHead(8, 3, rng)
	features := make([]float32, 8)
	for j := range features {
		features[j] = rng.Float32()
	}
	p1 := head.Forward(features)
	p2 := head.Forward(features)
	require.Equal(t, p1, p2)
}

// Finite-difference check of the analytic gradients: perturb each weight
// and compare the loss delta against the computed gradient.
func TestBackwardMatchesNumericGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	head := NewHead(5, 3, rng)
	features := []float32{0.3, -0.7, 1.2, 0.05, -0.4}
	label := float32(1)

	grads := NewGradients(head)
	head.ForwardBackward(features, label, grads)

	const eps = 1e-3
	const tol = 1e-2

	lossAt := func() float32 {
		return BCELoss(head.Forward(features), label)
	}

	for i := range head.W1 {
		orig := head.W1[i]
		head.W1[i] = orig + eps
		up := lossAt()
		head.W1[i] = orig - eps
		down := lossAt()
		head.W1[i] = orig
		numeric := (up - down) / (2 * eps)
		require.InDelta(t, numeric, grads.W1[i], tol, "W1[%d]", i)
	}
	for i := range head.W2 {
		orig := head.W2[i]
		head.W2[i] = orig + eps
		up := lossAt()
		head.W2[i] = orig - eps
		down := lossAt()
		head.W2[i] = orig
		numeric := (up - down) / (2 * eps)
		require.InDelta(t, numeric, grads.W2[i], tol, "W2[%d]", i)
	}
	{
		orig := head.B2
		head.B2 = orig + eps
		up := lossAt()
		head.B2 = orig - eps
		down := lossAt()
		head.B2 = orig
		numeric := (up - down) / (2 * eps)
		require.InDelta(t, numeric, grads.B2, tol)
	}
}

func TestBCELossClamps(t *testing.T) {
	// Exact 0/1 predictions must not produce Inf
	l := BCELoss(0, 1)
	require.False(t, l != l) // not NaN
	require.Greater(t, l, float32(10))
	l = BCELoss(1, 0)
	require.Greater(t, l, float32(10))
	require.InDelta(t, 0, BCELoss(1, 1), 1e-5)
	require.InDelta(t, 0, BCELoss(0, 0), 1e-5)
}

func TestGradientsZeroAndScale(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	head := NewHead(4, 2, rng)
	grads := NewGradients(head)
	head.ForwardBackward([]float32{1, 2, 3, 4}, 0, grads)
	grads.Scale(0.5)
	grads.Zero()
	for _, g := range grads.W1 {
		require.Equal(t, float32(0), g)
	}
	require.Equal(t, float32(0), grads.B2)
}
