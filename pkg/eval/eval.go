package eval

// Package eval runs the trained classifier over the held-out test split and
// computes the aggregate metrics of the experiment: accuracy, precision,
// recall, F1, and the 2x2 confusion matrix. Mould is the positive class.

import (
	"errors"
	"io"

	"github.com/cyclopcam/logs"

	"github.com/mouldvision/mouldvision/pkg/dataset"
	"github.com/mouldvision/mouldvision/pkg/model"
	"github.com/mouldvision/mouldvision/pkg/nn"
)

// ConfusionMatrix counts true-vs-predicted labels. The four cells always
// sum to the number of evaluated samples.
type ConfusionMatrix struct {
	TruePositive  int `json:"truePositive"`  // mould predicted mould
	TrueNegative  int `json:"trueNegative"`  // clean predicted clean
	FalsePositive int `json:"falsePositive"` // clean predicted mould
	FalseNegative int `json:"falseNegative"` // mould predicted clean
}

func (m *ConfusionMatrix) Add(predicted, actual nn.Label) {
	switch {
	case actual == nn.LabelMould && predicted == nn.LabelMould:
		m.TruePositive++
	case actual == nn.LabelClean && predicted == nn.LabelClean:
		m.TrueNegative++
	case actual == nn.LabelClean && predicted == nn.LabelMould:
		m.FalsePositive++
	default:
		m.FalseNegative++
	}
}

func (m *ConfusionMatrix) Total() int {
	return m.TruePositive + m.TrueNegative + m.FalsePositive + m.FalseNegative
}

func (m *ConfusionMatrix) Accuracy() float32 {
	total := m.Total()
	if total == 0 {
		return 0
	}
	return float32(m.TruePositive+m.TrueNegative) / float32(total)
}

func (m *ConfusionMatrix) Precision() float32 {
	denom := m.TruePositive + m.FalsePositive
	if denom == 0 {
		return 0
	}
	return float32(m.TruePositive) / float32(denom)
}

func (m *ConfusionMatrix) Recall() float32 {
	denom := m.TruePositive + m.FalseNegative
	if denom == 0 {
		return 0
	}
	return float32(m.TruePositive) / float32(denom)
}

func (m *ConfusionMatrix) F1() float32 {
	p := m.Precision()
	r := m.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Metrics are the aggregate results over one split.
type Metrics struct {
	NumSamples int             `json:"numSamples"`
	Accuracy   float32         `json:"accuracy"`
	Precision  float32         `json:"precision"`
	Recall     float32         `json:"recall"`
	F1         float32         `json:"f1"`
	Confusion  ConfusionMatrix `json:"confusion"`
}

// ImageResult is the per-sample outcome, kept so that misclassified images
// can be inspected after the run.
type ImageResult struct {
	Path       string   `json:"path"`
	Actual     nn.Label `json:"actual"`
	Predicted  nn.Label `json:"predicted"`
	Confidence float32  `json:"confidence"`
	Mould      float32  `json:"mould"`
}

// EvaluateSplit runs the classifier over every decodable image of the
// split, in enumeration order and with no augmentation.
func EvaluateSplit(logger logs.Log, classifier *model.Classifier, split *dataset.Split, batchSize int) (*Metrics, []ImageResult, error) {
	it := split.Batches(batchSize, nil)
	matrix := ConfusionMatrix{}
	results := []ImageResult{}
	for {
		batch, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		for _, sample := range batch.Samples {
			pred, err := classifier.PredictSample(sample)
			if err != nil {
				return nil, nil, err
			}
			matrix.Add(pred.Label, sample.Label)
			results = append(results, ImageResult{
				Path:       sample.Path,
				Actual:     sample.Label,
				Predicted:  pred.Label,
				Confidence: pred.Confidence,
				Mould:      pred.Mould,
			})
		}
	}
	metrics := &Metrics{
		NumSamples: matrix.Total(),
		Accuracy:   matrix.Accuracy(),
		Precision:  matrix.Precision(),
		Recall:     matrix.Recall(),
		F1:         matrix.F1(),
		Confusion:  matrix,
	}
	logger.Infof("Evaluated %v images: accuracy %.3f, precision %.3f, recall %.3f, F1 %.3f",
		metrics.NumSamples, metrics.Accuracy, metrics.Precision, metrics.Recall, metrics.F1)
	return metrics, results, nil
}
