package model

import (
	"fmt"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"

	"github.com/mouldvision/mouldvision/pkg/nn"
)

// Classifier is the full transfer-learning model: frozen backbone plus
// trained head. It owns the backbone; nothing else mutates model state.
type Classifier struct {
	log       logs.Log
	backbone  nn.FeatureExtractor
	head      *Head
	threshold float32
}

func NewClassifier(logger logs.Log, backbone nn.FeatureExtractor, head *Head, threshold float32) (*Classifier, error) {
	if err := head.Validate(); err != nil {
		return nil, err
	}
	config := backbone.Config()
	if head.InputSize != config.Channels {
		return nil, fmt.Errorf("head input size %v does not match backbone channels %v", head.InputSize, config.Channels)
	}
	if threshold <= 0 || threshold >= 1 {
		threshold = nn.DefaultDecisionThreshold
	}
	return &Classifier{
		log:       logger,
		backbone:  backbone,
		head:      head,
		threshold: threshold,
	}, nil
}

func (c *Classifier) Config() *nn.ModelConfig {
	return c.backbone.Config()
}

func (c *Classifier) Head() *Head {
	return c.head
}

func (c *Classifier) Backbone() nn.FeatureExtractor {
	return c.backbone
}

func (c *Classifier) Threshold() float32 {
	return c.threshold
}

// Close releases the backbone.
func (c *Classifier) Close() {
	c.backbone.Close()
}

// Predict classifies one image of arbitrary source resolution. The image is
// resized and normalized to the model input shape first. Identical inputs
// produce identical outputs; there is no stochastic path at inference time.
func (c *Classifier) Predict(img *cimg.Image) (*nn.Prediction, error) {
	prepared, err := nn.PrepareImage(img, c.Config())
	if err != nil {
		return nil, err
	}
	_, pooled, err := c.backbone.Extract(prepared)
	if err != nil {
		return nil, err
	}
	return c.predictFromFeatures(pooled), nil
}

// PredictSample classifies a sample that the dataset loader has already
// resized to the model input shape.
func (c *Classifier) PredictSample(sample *nn.Sample) (*nn.Prediction, error) {
	_, pooled, err := c.backbone.Extract(sample.Image)
	if err != nil {
		return nil, err
	}
	return c.predictFromFeatures(pooled), nil
}

// PredictFeatures classifies from already-extracted pooled features. The
// CAM generator uses this to avoid running the backbone twice per image.
func (c *Classifier) PredictFeatures(pooled []float32) *nn.Prediction {
	return c.predictFromFeatures(pooled)
}

func (c *Classifier) predictFromFeatures(pooled []float32) *nn.Prediction {
	pMould := c.head.Forward(pooled)
	pred := &nn.Prediction{
		Mould: pMould,
	}
	if pMould >= c.threshold {
		pred.Label = nn.LabelMould
		pred.Confidence = pMould
	} else {
		pred.Label = nn.LabelClean
		pred.Confidence = 1 - pMould
	}
	return pred
}
