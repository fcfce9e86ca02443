package cam

import (
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"

	"github.com/mouldvision/mouldvision/pkg/model"
	"github.com/mouldvision/mouldvision/pkg/nn"
)

// quadrantBackbone activates channel 0 only in the top-left quadrant of
// the conv map, so the CAM hot spot has a known location.
type quadrantBackbone struct {
	config nn.ModelConfig
}

func newQuadrantBackbone() *quadrantBackbone {
	return &quadrantBackbone{
		config: nn.ModelConfig{
			Architecture: "fake",
			Width:        32,
			Height:       32,
			Classes:      []string{"clean", "mould"},
			Channels:     2,
			MapWidth:     4,
			MapHeight:    4,
		},
	}
}

func (f *quadrantBackbone) Close() {}

func (f *quadrantBackbone) Config() *nn.ModelConfig {
	return &f.config
}

func (f *quadrantBackbone) Extract(img *cimg.Image) ([]float32, []float32, error) {
	c := &f.config
	conv := make([]float32, c.Channels*c.MapWidth*c.MapHeight)
	for y := 0; y < c.MapHeight/2; y++ {
		for x := 0; x < c.MapWidth/2; x++ {
			conv[y*c.MapWidth+x] = 1
		}
	}
	pooled := make([]float32, c.Channels)
	plane := c.MapWidth * c.MapHeight
	for k := 0; k < c.Channels; k++ {
		sum := float32(0)
		for i := 0; i < plane; i++ {
			sum += conv[k*plane+i]
		}
		pooled[k] = sum / float32(plane)
	}
	return conv, pooled, nil
}

// positiveHead keeps d(score)/d(feature 0) strictly positive, so channel 0
// carries positive CAM weight.
func positiveHead() *model.Head {
	return &model.Head{
		InputSize:  2,
		HiddenSize: 2,
		W1:         []float32{1, 0, 0, 1},
		B1:         []float32{1, 1},
		W2:         []float32{2, -1},
		B2:         0,
	}
}

func newTestGenerator(t *testing.T) (*Generator, *nn.ModelConfig) {
	logger := logs.NewTestingLog(t)
	backbone := newQuadrantBackbone()
	classifier, err := model.NewClassifier(logger, backbone, positiveHead(), 0.5)
	require.NoError(t, err)
	return NewGenerator(logger, classifier), backbone.Config()
}

func TestGenerateHeatmap(t *testing.T) {
	gen, config := newTestGenerator(t)
	img := cimg.NewImage(64, 48, cimg.PixelFormatRGB)

	heatmap, pred, err := gen.Generate(img)
	require.NoError(t, err)
	require.NotNil(t, pred)
	require.Same(t, heatmap, pred.CAM)

	// The heatmap matches the model input geometry, not the source image
	require.Equal(t, config.Width, heatmap.Width)
	require.Equal(t, config.Height, heatmap.Height)

	max := float32(0)
	for _, v := range heatmap.Values {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
		if v > max {
			max = v
		}
	}
	require.Equal(t, float32(1), max)

	// Channel 0 activates only in the top-left quadrant, so the hottest
	// pixel sits in the top-left and the bottom-right corner is cold.
	require.Equal(t, float32(1), heatmap.At(0, 0))
	require.Less(t, heatmap.At(heatmap.Width-1, heatmap.Height-1), float32(0.25))
}

func TestRenderOverlay(t *testing.T) {
	gen, _ := newTestGenerator(t)
	img := cimg.NewImage(64, 64, cimg.PixelFormatRGB)
	for i := range img.Pixels {
		img.Pixels[i] = 128
	}

	heatmap, _, err := gen.Generate(img)
	require.NoError(t, err)

	// Heatmap is resized to the image, overlay keeps the image geometry
	overlay, err := RenderOverlay(img, heatmap, 0.5)
	require.NoError(t, err)
	require.Equal(t, img.Width, overlay.Width)
	require.Equal(t, img.Height, overlay.Height)

	// The hot top-left corner gains red relative to the cold bottom-right
	hotRed := overlay.Pixels[0]
	i := (overlay.Height-1)*overlay.Stride + (overlay.Width-1)*3
	coldRed := overlay.Pixels[i]
	require.Greater(t, hotRed, coldRed)
}

func TestRenderOverlayRejectsBadOpacity(t *testing.T) {
	img := cimg.NewImage(8, 8, cimg.PixelFormatRGB)
	heatmap := nn.NewHeatmap(8, 8)
	_, err := RenderOverlay(img, heatmap, 0)
	require.Error(t, err)
	_, err = RenderOverlay(img, heatmap, 1.5)
	require.Error(t, err)
}
