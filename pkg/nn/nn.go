package nn

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bmharper/cimg/v2"
)

// Package nn holds the core types shared by the mould classification
// pipeline: labels, samples, batches, model config, predictions.

const DefaultDecisionThreshold = 0.5

// Label is a binary image label. The label set is exactly {Clean, Mould}.
type Label int

const (
	LabelClean Label = 0
	LabelMould Label = 1
)

func (l Label) String() string {
	if l == LabelMould {
		return "mould"
	}
	return "clean"
}

// ParseLabel maps a class directory name to a Label
func ParseLabel(name string) (Label, error) {
	switch name {
	case "clean":
		return LabelClean, nil
	case "mould":
		return LabelMould, nil
	}
	return 0, fmt.Errorf("unknown class name '%v'", name)
}

// Sample is one labelled image, decoded and resized to the model input shape.
// Samples are immutable once loaded.
type Sample struct {
	Path  string
	Image *cimg.Image
	Label Label
}

// Batch is an ordered group of samples assembled for one training or
// inference step. It is owned transiently by the training loop.
type Batch struct {
	Samples []*Sample
}

func (b *Batch) Len() int {
	return len(b.Samples)
}

// Prediction is the classifier's output for a single image.
type Prediction struct {
	Label      Label    `json:"label"`
	Confidence float32  `json:"confidence"` // Probability of the predicted class, in [0,1]
	Mould      float32  `json:"mould"`      // Raw probability of the mould class, in [0,1]
	CAM        *Heatmap `json:"-"`          // Optional class activation map
}

// FeatureExtractor is a frozen convolutional backbone. It consumes an image
// that has already been resized to Config().Width x Config().Height, and
// returns the final convolutional feature maps along with their spatial
// average (one value per channel).
type FeatureExtractor interface {
	// Close releases the backbone (the ONNX runtime is a C library underneath)
	Close()

	// Extract runs the backbone over one image.
	// conv is a [Channels * MapHeight * MapWidth] tensor, pooled is [Channels].
	Extract(img *cimg.Image) (conv []float32, pooled []float32, err error)

	// Config describes the backbone. Callers assume it remains constant.
	Config() *ModelConfig
}

// ModelConfig is saved in a JSON file along with the weights of the model
type ModelConfig struct {
	Architecture string   `json:"architecture"` // eg "vgg16"
	Width        int      `json:"width"`        // Input width, eg 224
	Height       int      `json:"height"`       // Input height, eg 224
	Classes      []string `json:"classes"`      // Exactly ["clean", "mould"]
	Channels     int      `json:"channels"`     // Final conv channels, eg 512
	MapWidth     int      `json:"mapWidth"`     // Final conv map width, eg 7
	MapHeight    int      `json:"mapHeight"`    // Final conv map height, eg 7
}

// Load model config from a JSON file
func LoadModelConfig(filename string) (*ModelConfig, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := &ModelConfig{}
	err = json.Unmarshal(b, config)
	if err != nil {
		return nil, err
	}
	return config, nil
}

func (c *ModelConfig) Validate() error {
	if len(c.Classes) != 2 {
		return fmt.Errorf("model config must have exactly 2 classes, not %v", len(c.Classes))
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid model input size %vx%v", c.Width, c.Height)
	}
	if c.Channels <= 0 || c.MapWidth <= 0 || c.MapHeight <= 0 {
		return fmt.Errorf("invalid feature geometry %vx%vx%v", c.Channels, c.MapWidth, c.MapHeight)
	}
	return nil
}
