package vggonnx

// Package vggonnx runs a frozen VGG-16 convolutional backbone through ONNX
// Runtime. The export is expected to have one input ("input", NCHW float32)
// and two outputs: the final convolutional feature maps and their global
// spatial average. The backbone is a read-only feature extractor; all
// trainable state lives in the classifier head.

import (
	"fmt"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/mouldvision/mouldvision/pkg/nn"
)

const (
	DefaultInputName        = "input"
	DefaultConvOutputName   = "conv_features"
	DefaultPooledOutputName = "pooled_features"
)

// UnsupportedLayerError means the ONNX export does not expose the final
// convolutional layer under the expected output name. The caller must name
// the layer explicitly (Options.ConvOutputName).
type UnsupportedLayerError struct {
	Wanted    string
	Available []string
}

func (e *UnsupportedLayerError) Error() string {
	return fmt.Sprintf("model has no output '%v' (available outputs: %v)", e.Wanted, e.Available)
}

// Options overrides the tensor names of the ONNX export.
type Options struct {
	InputName        string
	ConvOutputName   string // Final convolutional layer output
	PooledOutputName string // Globally averaged features
}

func DefaultOptions() Options {
	return Options{
		InputName:        DefaultInputName,
		ConvOutputName:   DefaultConvOutputName,
		PooledOutputName: DefaultPooledOutputName,
	}
}

// Backbone implements nn.FeatureExtractor over an ONNX Runtime session.
type Backbone struct {
	log          logs.Log
	config       nn.ModelConfig
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	convTensor   *ort.Tensor[float32]
	pooledTensor *ort.Tensor[float32]
}

// Load opens an ONNX backbone. configPath is the JSON model config stored
// beside the weights (same convention as our checkpoints).
func Load(logger logs.Log, modelPath, configPath string, opts Options) (*Backbone, error) {
	config, err := nn.LoadModelConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model config: %w", err)
	}
	return LoadWithConfig(logger, modelPath, config, opts)
}

func LoadWithConfig(logger logs.Log, modelPath string, config *nn.ModelConfig, opts Options) (*Backbone, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if opts.InputName == "" {
		opts.InputName = DefaultInputName
	}
	if opts.ConvOutputName == "" {
		opts.ConvOutputName = DefaultConvOutputName
	}
	if opts.PooledOutputName == "" {
		opts.PooledOutputName = DefaultPooledOutputName
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	if err := verifyOutputs(modelPath, opts); err != nil {
		ort.DestroyEnvironment()
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(config.Height), int64(config.Width)))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	convTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(config.Channels), int64(config.MapHeight), int64(config.MapWidth)))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create conv output tensor: %w", err)
	}
	pooledTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(config.Channels)))
	if err != nil {
		inputTensor.Destroy()
		convTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create pooled output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{opts.InputName},
		[]string{opts.ConvOutputName, opts.PooledOutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{convTensor, pooledTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		convTensor.Destroy()
		pooledTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	logger.Infof("Loaded %v backbone from %v (%vx%v input, %vx%vx%v features)",
		config.Architecture, modelPath, config.Width, config.Height, config.Channels, config.MapHeight, config.MapWidth)

	return &Backbone{
		log:          logger,
		config:       *config,
		session:      session,
		inputTensor:  inputTensor,
		convTensor:   convTensor,
		pooledTensor: pooledTensor,
	}, nil
}

// verifyOutputs checks that the export actually exposes the conv-map output.
// Classification-only exports won't, and the CAM generator can't work on
// those, so we fail early with a typed error.
func verifyOutputs(modelPath string, opts Options) error {
	_, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return fmt.Errorf("failed to inspect model: %w", err)
	}
	names := make([]string, 0, len(outputs))
	haveConv := false
	havePooled := false
	for _, out := range outputs {
		names = append(names, out.Name)
		if out.Name == opts.ConvOutputName {
			haveConv = true
		}
		if out.Name == opts.PooledOutputName {
			havePooled = true
		}
	}
	if !haveConv {
		return &UnsupportedLayerError{Wanted: opts.ConvOutputName, Available: names}
	}
	if !havePooled {
		return &UnsupportedLayerError{Wanted: opts.PooledOutputName, Available: names}
	}
	return nil
}

func (b *Backbone) Config() *nn.ModelConfig {
	return &b.config
}

// Extract runs the backbone over one image. The returned slices are copies;
// they remain valid after the next Extract call.
func (b *Backbone) Extract(img *cimg.Image) (conv []float32, pooled []float32, err error) {
	chw, err := nn.ImageToCHW(img, &b.config)
	if err != nil {
		return nil, nil, err
	}
	copy(b.inputTensor.GetData(), chw)
	if err := b.session.Run(); err != nil {
		return nil, nil, fmt.Errorf("backbone inference failed: %w", err)
	}
	conv = make([]float32, len(b.convTensor.GetData()))
	copy(conv, b.convTensor.GetData())
	pooled = make([]float32, len(b.pooledTensor.GetData()))
	copy(pooled, b.pooledTensor.GetData())
	return conv, pooled, nil
}

func (b *Backbone) Close() {
	if b.inputTensor != nil {
		b.inputTensor.Destroy()
	}
	if b.convTensor != nil {
		b.convTensor.Destroy()
	}
	if b.pooledTensor != nil {
		b.pooledTensor.Destroy()
	}
	if b.session != nil {
		b.session.Destroy()
	}
	ort.DestroyEnvironment()
}
