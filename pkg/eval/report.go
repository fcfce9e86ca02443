package eval

import (
	"encoding/json"
	"os"
	"time"

	"github.com/mouldvision/mouldvision/pkg/train"
)

// Report is the JSON artifact written at the end of a run: per-epoch curves
// from training plus the aggregate test metrics. The series layout is flat
// so that plotting tools can consume it directly.
type Report struct {
	GeneratedAt time.Time           `json:"generatedAt"`
	ModelName   string              `json:"modelName"`
	Metrics     Metrics             `json:"metrics"`
	Curves      []train.EpochRecord `json:"curves"`
	BestEpoch   int                 `json:"bestEpoch"`
	PerImage    []ImageResult       `json:"perImage,omitempty"`
}

func NewReport(modelName string, metrics *Metrics, trainResult *train.Result, perImage []ImageResult) *Report {
	return &Report{
		GeneratedAt: time.Now().UTC(),
		ModelName:   modelName,
		Metrics:     *metrics,
		Curves:      trainResult.Records,
		BestEpoch:   trainResult.BestEpoch,
		PerImage:    perImage,
	}
}

func (r *Report) Write(filename string) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, raw, 0644)
}
