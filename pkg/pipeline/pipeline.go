package pipeline

// Package pipeline wires the four stages of an experiment run together:
//
//	Loader -> Augmentation -> Model training -> Evaluator
//
// Control flow is strictly sequential; each run is a single pass.

import (
	"github.com/cyclopcam/logs"

	"github.com/mouldvision/mouldvision/pkg/dataset"
	"github.com/mouldvision/mouldvision/pkg/eval"
	"github.com/mouldvision/mouldvision/pkg/model"
	"github.com/mouldvision/mouldvision/pkg/nn"
	"github.com/mouldvision/mouldvision/pkg/train"
)

// Run executes one full experiment: load the labelled tree, train the head
// on augmented batches, restore the best checkpoint, evaluate it over the
// held-out test split, and write the report. The caller owns the backbone.
func Run(logger logs.Log, cfg *Config, backbone nn.FeatureExtractor) (*eval.Report, error) {
	ds, err := dataset.Open(logger, cfg.DataRoot, backbone.Config())
	if err != nil {
		return nil, err
	}

	trainer := train.NewTrainer(logger, cfg.Train, backbone, cfg.Augment)
	trainResult, err := trainer.Train(ds.Train, ds.Test)
	if err != nil {
		return nil, err
	}

	// Evaluate the checkpointed best epoch, not whatever the final weights
	// happened to be when training stopped.
	head := trainer.Head()
	threshold := float32(nn.DefaultDecisionThreshold)
	if cfg.Train.CheckpointFile != "" {
		ck, err := model.LoadCheckpoint(cfg.Train.CheckpointFile)
		if err != nil {
			return nil, err
		}
		head = ck.Head
		threshold = ck.Threshold
	}
	classifier, err := model.NewClassifier(logger, backbone, head, threshold)
	if err != nil {
		return nil, err
	}

	metrics, perImage, err := eval.EvaluateSplit(logger, classifier, ds.Test, cfg.Train.BatchSize)
	if err != nil {
		return nil, err
	}

	report := eval.NewReport(cfg.ModelID, metrics, trainResult, perImage)
	if cfg.ReportFile != "" {
		if err := report.Write(cfg.ReportFile); err != nil {
			return nil, err
		}
		logger.Infof("Wrote report to %v", cfg.ReportFile)
	}
	return report, nil
}
