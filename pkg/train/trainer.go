package train

import (
	"errors"
	"io"
	"math/rand"
	"time"

	"github.com/chewxy/math32"
	"github.com/cyclopcam/logs"

	"github.com/mouldvision/mouldvision/pkg/augment"
	"github.com/mouldvision/mouldvision/pkg/dataset"
	"github.com/mouldvision/mouldvision/pkg/model"
	"github.com/mouldvision/mouldvision/pkg/nn"
)

// ErrDiverged means the training loss went NaN or infinite. There is no
// automatic recovery; the operator must adjust hyperparameters and restart.
var ErrDiverged = errors.New("training diverged (NaN/Inf loss)")

type Config struct {
	BatchSize            int     `json:"batchSize"`
	HiddenSize           int     `json:"hiddenSize"`           // Hidden layer width of the head
	MaxEpochs            int     `json:"maxEpochs"`            // Total epoch budget
	HeadOnlyEpochs       int     `json:"headOnlyEpochs"`       // Epochs before unfreezing. 0 = transition on plateau.
	LearningRate         float32 `json:"learningRate"`         // HEAD_ONLY phase
	FineTuneLearningRate float32 `json:"fineTuneLearningRate"` // FINE_TUNE phase (lower)
	Patience             int     `json:"patience"`             // Early stopping: epochs without val improvement
	PlateauEpochs        int     `json:"plateauEpochs"`        // Plateau length that triggers the phase transition
	CheckpointFile       string  `json:"checkpointFile"`
	Seed                 *int64  `json:"seed"` // Optional. nil = seeded from the clock.
}

func NewConfig() Config {
	return Config{
		BatchSize:            16,
		HiddenSize:           64,
		MaxEpochs:            30,
		HeadOnlyEpochs:       10,
		LearningRate:         1e-3,
		FineTuneLearningRate: 1e-4,
		Patience:             5,
		PlateauEpochs:        3,
		CheckpointFile:       "mouldvision-checkpoint.json",
	}
}

// EpochRecord is one entry of the training history. Records are appended
// once per epoch and never mutated afterwards.
type EpochRecord struct {
	Epoch       int     `json:"epoch"` // 1-based
	Phase       string  `json:"phase"`
	TrainLoss   float32 `json:"trainLoss"`
	ValLoss     float32 `json:"valLoss"`
	ValAccuracy float32 `json:"valAccuracy"`
	DurationMS  int64   `json:"durationMS"`
}

// Result summarizes a completed training run.
type Result struct {
	Records      []EpochRecord `json:"records"`
	BestEpoch    int           `json:"bestEpoch"`
	BestValLoss  float32       `json:"bestValLoss"`
	StoppedEarly bool          `json:"stoppedEarly"`
}

// Trainer owns the model parameters for the duration of the run. No other
// component writes to them.
type Trainer struct {
	log      logs.Log
	cfg      Config
	backbone nn.FeatureExtractor
	head     *model.Head
	aug      *augment.Augmenter
	rng      *rand.Rand
	phase    Phase

	optW1 *adam
	optB1 *adam
	optW2 *adam
	optB2 *adam
}

func NewTrainer(logger logs.Log, cfg Config, backbone nn.FeatureExtractor, augOptions augment.Options) *Trainer {
	seed := time.Now().UnixNano()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	rng := rand.New(rand.NewSource(seed))
	head := model.NewHead(backbone.Config().Channels, cfg.HiddenSize, rng)
	return &Trainer{
		log:      logger,
		cfg:      cfg,
		backbone: backbone,
		head:     head,
		aug:      augment.New(augOptions, cfg.Seed),
		rng:      rng,
		phase:    PhaseHeadOnly,
		optW1:    newAdam(len(head.W1)),
		optB1:    newAdam(len(head.B1)),
		optW2:    newAdam(len(head.W2)),
		optB2:    newAdam(1),
	}
}

func (t *Trainer) Phase() Phase {
	return t.phase
}

func (t *Trainer) Head() *model.Head {
	return t.head
}

// Train runs the full two-phase procedure. It returns normally both when the
// epoch budget is exhausted and when early stopping fires: "no further
// improvement" is expected termination, not an error. The checkpoint on disk
// always corresponds to the best validation epoch seen.
func (t *Trainer) Train(trainSplit, valSplit *dataset.Split) (*Result, error) {
	trainIt := trainSplit.Batches(t.cfg.BatchSize, t.rng)

	// The backbone is frozen and validation images are never augmented, so
	// validation features are constant for the whole run. Extracting them
	// once is an internal optimization; it does not change any result.
	valFeatures, valLabels, err := t.extractSplitFeatures(valSplit)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	grads := model.NewGradients(t.head)
	var bestValLoss float32 = math32.MaxFloat32
	sinceBest := 0
	sincePlateau := 0

	for epoch := 1; epoch <= t.cfg.MaxEpochs; epoch++ {
		start := time.Now()

		trainLoss, err := t.trainEpoch(trainIt, grads)
		if err != nil {
			return nil, err
		}
		valLoss, valAccuracy := t.validate(valFeatures, valLabels)
		if math32.IsNaN(valLoss) || math32.IsInf(valLoss, 0) {
			return nil, ErrDiverged
		}

		record := EpochRecord{
			Epoch:       epoch,
			Phase:       t.phase.String(),
			TrainLoss:   trainLoss,
			ValLoss:     valLoss,
			ValAccuracy: valAccuracy,
			DurationMS:  time.Since(start).Milliseconds(),
		}
		result.Records = append(result.Records, record)
		t.log.Infof("Epoch %v [%v]: train loss %.4f, val loss %.4f, val accuracy %.3f",
			epoch, t.phase, trainLoss, valLoss, valAccuracy)

		if valLoss < bestValLoss {
			bestValLoss = valLoss
			result.BestEpoch = epoch
			result.BestValLoss = valLoss
			sinceBest = 0
			sincePlateau = 0
			if t.cfg.CheckpointFile != "" {
				ck := &model.Checkpoint{
					Config:    *t.backbone.Config(),
					Head:      t.head,
					Threshold: nn.DefaultDecisionThreshold,
					Epoch:     epoch,
					ValLoss:   valLoss,
				}
				if err := model.SaveCheckpoint(t.cfg.CheckpointFile, ck); err != nil {
					return nil, err
				}
				t.log.Infof("Saved checkpoint for epoch %v (val loss %.4f)", epoch, valLoss)
			}
		} else {
			sinceBest++
			sincePlateau++
		}

		if t.phase == PhaseHeadOnly && t.shouldUnfreeze(epoch, sincePlateau) {
			t.phase = PhaseFineTune
			sincePlateau = 0
			t.log.Infof("Transition HEAD_ONLY -> FINE_TUNE at epoch %v (learning rate %v)", epoch, t.cfg.FineTuneLearningRate)
		}

		if t.cfg.Patience > 0 && sinceBest >= t.cfg.Patience {
			t.log.Infof("Early stopping at epoch %v: no improvement for %v epochs (best was epoch %v)",
				epoch, sinceBest, result.BestEpoch)
			result.StoppedEarly = true
			break
		}
	}

	t.phase = PhaseDone
	return result, nil
}

func (t *Trainer) shouldUnfreeze(epoch, sincePlateau int) bool {
	if t.cfg.HeadOnlyEpochs > 0 {
		return epoch >= t.cfg.HeadOnlyEpochs
	}
	return t.cfg.PlateauEpochs > 0 && sincePlateau >= t.cfg.PlateauEpochs
}

// trainEpoch runs every training batch through augmentation, the frozen
// backbone, and one optimizer step per batch.
func (t *Trainer) trainEpoch(trainIt *dataset.BatchIterator, grads *model.Gradients) (float32, error) {
	trainIt.Reset()
	lossSum := float32(0)
	n := 0
	for {
		batch, err := trainIt.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		augmented := t.aug.ApplyBatch(batch)
		grads.Zero()
		for _, sample := range augmented.Samples {
			_, pooled, err := t.backbone.Extract(sample.Image)
			if err != nil {
				return 0, err
			}
			p := t.head.ForwardBackward(pooled, float32(sample.Label), grads)
			lossSum += model.BCELoss(p, float32(sample.Label))
			n++
		}
		grads.Scale(1 / float32(augmented.Len()))
		t.step(grads)
	}
	if n == 0 {
		return 0, errors.New("training split produced no usable batches")
	}
	loss := lossSum / float32(n)
	if math32.IsNaN(loss) || math32.IsInf(loss, 0) {
		return 0, ErrDiverged
	}
	return loss, nil
}

// step applies the optimizer according to the current phase: the output
// layer always updates, the hidden layer only once unfrozen.
func (t *Trainer) step(grads *model.Gradients) {
	lr := t.cfg.LearningRate
	if t.phase == PhaseFineTune {
		lr = t.cfg.FineTuneLearningRate
	}
	b2 := []float32{t.head.B2}
	t.optW2.Step(t.head.W2, grads.W2, lr)
	t.optB2.Step(b2, []float32{grads.B2}, lr)
	t.head.B2 = b2[0]
	if t.phase == PhaseFineTune {
		t.optW1.Step(t.head.W1, grads.W1, lr)
		t.optB1.Step(t.head.B1, grads.B1, lr)
	}
}

func (t *Trainer) validate(features [][]float32, labels []nn.Label) (loss float32, accuracy float32) {
	if len(features) == 0 {
		return 0, 0
	}
	correct := 0
	for i, f := range features {
		p := t.head.Forward(f)
		loss += model.BCELoss(p, float32(labels[i]))
		predicted := nn.LabelClean
		if p >= nn.DefaultDecisionThreshold {
			predicted = nn.LabelMould
		}
		if predicted == labels[i] {
			correct++
		}
	}
	return loss / float32(len(features)), float32(correct) / float32(len(features))
}

func (t *Trainer) extractSplitFeatures(split *dataset.Split) ([][]float32, []nn.Label, error) {
	it := split.Batches(t.cfg.BatchSize, nil)
	features := [][]float32{}
	labels := []nn.Label{}
	for {
		batch, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		for _, sample := range batch.Samples {
			_, pooled, err := t.backbone.Extract(sample.Image)
			if err != nil {
				return nil, nil, err
			}
			features = append(features, pooled)
			labels = append(labels, sample.Label)
		}
	}
	return features, labels, nil
}
