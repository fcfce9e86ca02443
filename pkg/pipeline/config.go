package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mouldvision/mouldvision/pkg/augment"
	"github.com/mouldvision/mouldvision/pkg/train"
)

// Config is the single explicit configuration object for one experiment
// run. Every stage constructor receives the part it needs; there is no
// module-level shared state.
type Config struct {
	DataRoot       string          `json:"dataRoot"`       // eg "data/MouldImages", containing {train,test}/{mould,clean}
	BackboneModel  string          `json:"backboneModel"`  // ONNX export of the VGG-16 conv stack
	BackboneConfig string          `json:"backboneConfig"` // JSON model config beside the ONNX file
	ConvOutput     string          `json:"convOutput"`     // Optional explicit conv-layer output name
	PooledOutput   string          `json:"pooledOutput"`   // Optional explicit pooled output name
	ModelID        string          `json:"modelID"`        // Identifier written into prediction records
	ReportFile     string          `json:"reportFile"`     // Metrics/curves JSON, "" = don't write
	Augment        augment.Options `json:"augment"`
	Train          train.Config    `json:"train"`
}

func NewConfig() Config {
	return Config{
		DataRoot:   "data/MouldImages",
		ModelID:    "vgg16-mould-v1",
		ReportFile: "mouldvision-report.json",
		Augment: augment.Options{
			RotationDegrees: 20,
			HorizontalFlip:  true,
			ZoomRange:       0.15,
			BrightnessRange: 0.2,
		},
		Train: train.NewConfig(),
	}
}

func LoadConfig(filename string) (*Config, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	cfg := NewConfig()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("Error loading %v as JSON: %w", filename, err)
	}
	return &cfg, nil
}
