package cam

// Package cam produces Class Activation Maps: spatial heatmaps showing
// which regions of an image drove the mould prediction. Each channel of the
// backbone's final conv maps is weighted by the derivative of the mould
// score with respect to that channel's pooled feature, summed, rectified,
// upsampled to the model input size and normalized to [0,1].

import (
	"fmt"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"

	"github.com/mouldvision/mouldvision/pkg/model"
	"github.com/mouldvision/mouldvision/pkg/nn"
)

type Generator struct {
	log        logs.Log
	classifier *model.Classifier
}

func NewGenerator(logger logs.Log, classifier *model.Classifier) *Generator {
	return &Generator{
		log:        logger,
		classifier: classifier,
	}
}

// Generate computes the CAM and the prediction for one image. The returned
// heatmap has the same spatial size as the (resized) model input, values
// normalized to [0,1]. Backbone failures (including a missing conv-map
// output) propagate to the caller; they never crash the process.
func (g *Generator) Generate(img *cimg.Image) (*nn.Heatmap, *nn.Prediction, error) {
	config := g.classifier.Config()
	prepared, err := nn.PrepareImage(img, config)
	if err != nil {
		return nil, nil, err
	}
	conv, pooled, err := g.classifier.Backbone().Extract(prepared)
	if err != nil {
		return nil, nil, err
	}
	if len(conv) != config.Channels*config.MapWidth*config.MapHeight {
		return nil, nil, fmt.Errorf("conv feature size %v does not match config geometry %vx%vx%v",
			len(conv), config.Channels, config.MapHeight, config.MapWidth)
	}
	pred := g.classifier.PredictFeatures(pooled)

	weights := g.classifier.Head().FeatureGradients(pooled)
	raw := nn.NewHeatmap(config.MapWidth, config.MapHeight)
	plane := config.MapWidth * config.MapHeight
	for k := 0; k < config.Channels; k++ {
		w := weights[k]
		if w == 0 {
			continue
		}
		channel := conv[k*plane : (k+1)*plane]
		for i, v := range channel {
			raw.Values[i] += w * v
		}
	}
	// ReLU: only regions that push the score towards mould count
	for i, v := range raw.Values {
		if v < 0 {
			raw.Values[i] = 0
		}
	}

	heatmap, err := raw.ResizeBilinear(config.Width, config.Height)
	if err != nil {
		return nil, nil, err
	}
	heatmap.Normalize()
	pred.CAM = heatmap
	return heatmap, pred, nil
}
