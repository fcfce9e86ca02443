package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"

	"github.com/mouldvision/mouldvision/pkg/analytics"
	"github.com/mouldvision/mouldvision/pkg/cam"
	"github.com/mouldvision/mouldvision/pkg/model"
	"github.com/mouldvision/mouldvision/pkg/vggonnx"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("predict", "Classify a property photo as mould or clean")
	input := parser.String("i", "input", &argparse.Options{Help: "Input image file", Required: true})
	checkpointFile := parser.String("n", "checkpoint", &argparse.Options{Help: "Path to trained checkpoint file", Required: true})
	backboneFile := parser.String("b", "backbone", &argparse.Options{Help: "Path to backbone ONNX file", Required: true})
	camFile := parser.String("", "cam", &argparse.Options{Help: "Write a CAM overlay JPEG to this file", Default: ""})
	convOutput := parser.String("", "conv", &argparse.Options{Help: "Explicit conv-layer output name in the ONNX export", Default: ""})
	dbFile := parser.String("", "db", &argparse.Options{Help: "Record the prediction into this analytics database", Default: ""})
	modelID := parser.String("", "modelid", &argparse.Options{Help: "Model identifier for the prediction record", Default: "vgg16-mould-v1"})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, _ := logs.NewLog()

	ck, err := model.LoadCheckpoint(*checkpointFile)
	check(err)

	backbone, err := vggonnx.LoadWithConfig(logger, *backboneFile, &ck.Config, vggonnx.Options{
		ConvOutputName: *convOutput,
	})
	check(err)
	defer backbone.Close()

	classifier, err := model.NewClassifier(logger, backbone, ck.Head, ck.Threshold)
	check(err)

	img, err := cimg.ReadFile(*input)
	check(err)

	pred, err := classifier.Predict(img)
	check(err)

	if *camFile != "" {
		generator := cam.NewGenerator(logger, classifier)
		heatmap, camPred, err := generator.Generate(img)
		check(err)
		pred = camPred
		overlay, err := cam.RenderOverlay(img, heatmap, 0.5)
		check(err)
		check(overlay.WriteJPEG(*camFile, cimg.MakeCompressParams(cimg.Sampling444, 95, 0), 0644))
		logger.Infof("Wrote CAM overlay to %v", *camFile)
	}

	if *dbFile != "" {
		db, err := analytics.Open(logger, *dbFile)
		check(err)
		imgRow, err := db.EnsureImage(*input)
		check(err)
		_, err = db.RecordPrediction(imgRow.ID, *modelID, pred)
		check(err)
		logger.Infof("Recorded prediction for image %v in %v", imgRow.ID, *dbFile)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	check(encoder.Encode(pred))
}
