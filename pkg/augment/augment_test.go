package augment

import (
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/stretchr/testify/require"

	"github.com/mouldvision/mouldvision/pkg/nn"
)

func gradientImage(w, h int) *cimg.Image {
	img := cimg.NewImage(w, h, cimg.PixelFormatRGB)
	for y := 0; y < h; y++ {
		row := img.Pixels[y*img.Stride:]
		for x := 0; x < w; x++ {
			row[x*3] = byte(x * 255 / w)
			row[x*3+1] = byte(y * 255 / h)
			row[x*3+2] = 128
		}
	}
	return img
}

func seedPtr(s int64) *int64 {
	return &s
}

func TestApplyPreservesShapeAndInput(t *testing.T) {
	src := gradientImage(40, 30)
	original := make([]byte, len(src.Pixels))
	copy(original, src.Pixels)

	a := New(Options{RotationDegrees: 25, HorizontalFlip: true, ZoomRange: 0.3, BrightnessRange: 0.4}, seedPtr(1))
	for i := 0; i < 5; i++ {
		out := a.Apply(src)
		require.Equal(t, src.Width, out.Width)
		require.Equal(t, src.Height, out.Height)
		require.Equal(t, 3, out.NChan())
	}
	// The source image is never modified
	require.Equal(t, original, src.Pixels)
}

func TestApplyTransformsPixels(t *testing.T) {
	src := gradientImage(40, 40)
	a := New(Options{RotationDegrees: 30}, seedPtr(7))
	// With a +-30 degree range, five draws without a visible rotation would
	// mean the transform isn't being applied at all
	changed := false
	for i := 0; i < 5; i++ {
		out := a.Apply(src)
		for j := range out.Pixels {
			if out.Pixels[j] != src.Pixels[j] {
				changed = true
				break
			}
		}
		if changed {
			break
		}
	}
	require.True(t, changed)
}

func TestNoOptionsIsCopy(t *testing.T) {
	src := gradientImage(20, 20)
	a := New(Options{}, seedPtr(3))
	out := a.Apply(src)
	require.NotSame(t, src, out)
	require.Equal(t, src.Pixels, out.Pixels)
}

func TestFlipIsInvolution(t *testing.T) {
	src := gradientImage(33, 21)
	flipped := flipHorizontal(src)
	require.NotEqual(t, src.Pixels, flipped.Pixels)
	back := flipHorizontal(flipped)
	require.Equal(t, src.Pixels, back.Pixels)
}

func TestBrightnessClamps(t *testing.T) {
	src := gradientImage(16, 16)
	bright := scaleBrightness(src, 10)
	for i, p := range bright.Pixels {
		require.GreaterOrEqual(t, p, src.Pixels[i]) // scaling up never darkens, and overflow clamps at 255
	}
	dark := scaleBrightness(src, 0.1)
	for i, p := range dark.Pixels {
		require.LessOrEqual(t, p, src.Pixels[i])
	}
}

func TestApplyBatchKeepsLabels(t *testing.T) {
	batch := &nn.Batch{
		Samples: []*nn.Sample{
			{Path: "a.jpg", Image: gradientImage(24, 24), Label: nn.LabelMould},
			{Path: "b.jpg", Image: gradientImage(24, 24), Label: nn.LabelClean},
		},
	}
	a := New(Options{HorizontalFlip: true, BrightnessRange: 0.2}, seedPtr(9))
	out := a.ApplyBatch(batch)
	require.Equal(t, batch.Len(), out.Len())
	for i, sample := range out.Samples {
		require.Equal(t, batch.Samples[i].Label, sample.Label)
		require.Equal(t, batch.Samples[i].Path, sample.Path)
		require.NotSame(t, batch.Samples[i].Image, sample.Image)
	}
}
