package model

// The classification head is the only trainable part of the model: the
// VGG-16 backbone stays frozen inside its ONNX session, and the head maps
// its pooled features to a single mould probability.
//
// pooled[512] -> dense(hidden) -> ReLU -> dense(1) -> sigmoid

import (
	"fmt"
	"math/rand"

	"github.com/chewxy/math32"
)

type Head struct {
	InputSize  int       `json:"inputSize"`
	HiddenSize int       `json:"hiddenSize"`
	W1         []float32 `json:"w1"` // HiddenSize x InputSize, row-major
	B1         []float32 `json:"b1"` // HiddenSize
	W2         []float32 `json:"w2"` // HiddenSize
	B2         float32   `json:"b2"`
}

// Gradients has the same layout as the head's weights.
type Gradients struct {
	W1 []float32
	B1 []float32
	W2 []float32
	B2 float32
}

// forwardCache holds the intermediate activations of one forward pass,
// needed by Backward.
type forwardCache struct {
	input   []float32
	preAct  []float32 // W1*input + B1, before ReLU
	hidden  []float32 // after ReLU
	output  float32   // sigmoid probability
}

// NewHead creates a head with Glorot-uniform initialized weights.
func NewHead(inputSize, hiddenSize int, rng *rand.Rand) *Head {
	h := &Head{
		InputSize:  inputSize,
		HiddenSize: hiddenSize,
		W1:         make([]float32, hiddenSize*inputSize),
		B1:         make([]float32, hiddenSize),
		W2:         make([]float32, hiddenSize),
	}
	limit1 := math32.Sqrt(6 / float32(inputSize+hiddenSize))
	for i := range h.W1 {
		h.W1[i] = (rng.Float32()*2 - 1) * limit1
	}
	limit2 := math32.Sqrt(6 / float32(hiddenSize+1))
	for i := range h.W2 {
		h.W2[i] = (rng.Float32()*2 - 1) * limit2
	}
	return h
}

func (h *Head) Validate() error {
	if h.InputSize <= 0 || h.HiddenSize <= 0 {
		return fmt.Errorf("invalid head geometry %v -> %v", h.InputSize, h.HiddenSize)
	}
	if len(h.W1) != h.HiddenSize*h.InputSize || len(h.B1) != h.HiddenSize || len(h.W2) != h.HiddenSize {
		return fmt.Errorf("head weight sizes do not match geometry %v -> %v", h.InputSize, h.HiddenSize)
	}
	return nil
}

func sigmoid(z float32) float32 {
	return 1 / (1 + math32.Exp(-z))
}

// Forward computes the mould probability for one pooled feature vector.
// The returned value is always in [0,1].
func (h *Head) Forward(features []float32) float32 {
	p, _ := h.forward(features)
	return p
}

func (h *Head) forward(features []float32) (float32, *forwardCache) {
	cache := &forwardCache{
		input:  features,
		preAct: make([]float32, h.HiddenSize),
		hidden: make([]float32, h.HiddenSize),
	}
	z := h.B2
	for j := 0; j < h.HiddenSize; j++ {
		a := h.B1[j]
		row := h.W1[j*h.InputSize:]
		for k := 0; k < h.InputSize; k++ {
			a += row[k] * features[k]
		}
		cache.preAct[j] = a
		if a > 0 {
			cache.hidden[j] = a
			z += h.W2[j] * a
		}
	}
	cache.output = sigmoid(z)
	return cache.output, cache
}

// ForwardBackward runs one forward pass, accumulates BCE gradients for the
// given label into grads, and returns the predicted probability.
func (h *Head) ForwardBackward(features []float32, label float32, grads *Gradients) float32 {
	p, cache := h.forward(features)
	h.backward(cache, label, grads)
	return p
}

// backward accumulates gradients of the binary cross-entropy loss into
// grads, given the cached forward pass and the true label (0 or 1).
// For sigmoid+BCE the output delta collapses to (p - y).
func (h *Head) backward(cache *forwardCache, label float32, grads *Gradients) {
	dz := cache.output - label
	grads.B2 += dz
	for j := 0; j < h.HiddenSize; j++ {
		grads.W2[j] += dz * cache.hidden[j]
		if cache.preAct[j] <= 0 {
			continue
		}
		dh := dz * h.W2[j]
		grads.B1[j] += dh
		gRow := grads.W1[j*h.InputSize:]
		for k := 0; k < h.InputSize; k++ {
			gRow[k] += dh * cache.input[k]
		}
	}
}

// FeatureGradients returns the derivative of the pre-sigmoid mould score
// with respect to each pooled feature. The CAM generator uses these as
// per-channel weights over the conv maps.
func (h *Head) FeatureGradients(features []float32) []float32 {
	_, cache := h.forward(features)
	out := make([]float32, h.InputSize)
	for j := 0; j < h.HiddenSize; j++ {
		if cache.preAct[j] <= 0 {
			continue
		}
		w2 := h.W2[j]
		row := h.W1[j*h.InputSize:]
		for k := 0; k < h.InputSize; k++ {
			out[k] += w2 * row[k]
		}
	}
	return out
}

func NewGradients(h *Head) *Gradients {
	return &Gradients{
		W1: make([]float32, len(h.W1)),
		B1: make([]float32, len(h.B1)),
		W2: make([]float32, len(h.W2)),
	}
}

func (g *Gradients) Zero() {
	clear(g.W1)
	clear(g.B1)
	clear(g.W2)
	g.B2 = 0
}

// Scale divides accumulated gradients by the batch size.
func (g *Gradients) Scale(s float32) {
	for i := range g.W1 {
		g.W1[i] *= s
	}
	for i := range g.B1 {
		g.B1[i] *= s
	}
	for i := range g.W2 {
		g.W2[i] *= s
	}
	g.B2 *= s
}

// BCELoss is the binary cross-entropy of one prediction, clamped away from
// log(0).
func BCELoss(p, label float32) float32 {
	const eps = 1e-7
	if p < eps {
		p = eps
	} else if p > 1-eps {
		p = 1 - eps
	}
	if label >= 0.5 {
		return -math32.Log(p)
	}
	return -math32.Log(1 - p)
}
