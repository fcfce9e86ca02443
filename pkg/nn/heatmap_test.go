package nn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeatmapNormalize(t *testing.T) {
	h := NewHeatmap(3, 2)
	copy(h.Values, []float32{-1, 0, 1, 2, 3, 7})
	h.Normalize()
	for _, v := range h.Values {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}
	require.Equal(t, float32(0), h.Values[0])
	require.Equal(t, float32(1), h.Values[5])

	// A constant map must normalize to zeros, not divide by zero
	flat := NewHeatmap(2, 2)
	copy(flat.Values, []float32{5, 5, 5, 5})
	flat.Normalize()
	for _, v := range flat.Values {
		require.Equal(t, float32(0), v)
	}
}

func TestHeatmapResizeBilinear(t *testing.T) {
	h := NewHeatmap(4, 4)
	for i := range h.Values {
		h.Values[i] = float32(i) / 15
	}
	up, err := h.ResizeBilinear(32, 24)
	require.NoError(t, err)
	require.Equal(t, 32, up.Width)
	require.Equal(t, 24, up.Height)
	require.Equal(t, 32*24, len(up.Values))

	// Bilinear interpolation of values in [0,1] stays in [0,1]
	for _, v := range up.Values {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}

	_, err = h.ResizeBilinear(0, 10)
	require.Error(t, err)
}
