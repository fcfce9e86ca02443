package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"

	"github.com/mouldvision/mouldvision/pkg/pipeline"
	"github.com/mouldvision/mouldvision/pkg/vggonnx"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("train", "Train the mould/clean classifier")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Experiment config file (JSON)", Required: true})
	dataRoot := parser.String("d", "data", &argparse.Options{Help: "Override the dataset root directory", Default: ""})
	checkpoint := parser.String("o", "checkpoint", &argparse.Options{Help: "Override the checkpoint output file", Default: ""})
	seed := parser.Int("", "seed", &argparse.Options{Help: "Fix the random seed for shuffling, augmentation and weight init", Default: 0})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, _ := logs.NewLog()

	cfg, err := pipeline.LoadConfig(*configFile)
	check(err)
	if *dataRoot != "" {
		cfg.DataRoot = *dataRoot
	}
	if *checkpoint != "" {
		cfg.Train.CheckpointFile = *checkpoint
	}
	if *seed != 0 {
		s := int64(*seed)
		cfg.Train.Seed = &s
	}

	backbone, err := vggonnx.Load(logger, cfg.BackboneModel, cfg.BackboneConfig, vggonnx.Options{
		ConvOutputName:   cfg.ConvOutput,
		PooledOutputName: cfg.PooledOutput,
	})
	check(err)
	defer backbone.Close()

	report, err := pipeline.Run(logger, cfg, backbone)
	check(err)

	m := report.Metrics
	logger.Infof("Confusion matrix: TP=%v TN=%v FP=%v FN=%v",
		m.Confusion.TruePositive, m.Confusion.TrueNegative, m.Confusion.FalsePositive, m.Confusion.FalseNegative)
}
