package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mouldvision/mouldvision/pkg/nn"
)

// Checkpoint is the serialized parameter set written after training: the
// model config, the head weights, and the score that earned the save.
// The backbone weights live in their own ONNX file and are never rewritten.
type Checkpoint struct {
	Config    nn.ModelConfig `json:"config"`
	Head      *Head          `json:"head"`
	Threshold float32        `json:"threshold"`
	Epoch     int            `json:"epoch"`   // Epoch that produced these weights (1-based)
	ValLoss   float32        `json:"valLoss"` // Validation loss at that epoch
	SavedAt   time.Time      `json:"savedAt"`
}

// SaveCheckpoint writes the checkpoint atomically (temp file + rename), so
// an interrupt mid-write never corrupts the previous best checkpoint.
func SaveCheckpoint(filename string, ck *Checkpoint) error {
	if err := ck.Head.Validate(); err != nil {
		return err
	}
	ck.SavedAt = time.Now().UTC()
	raw, err := json.Marshal(ck)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0777); err != nil {
		return err
	}
	tempFile := filename + ".tmp"
	if err := os.WriteFile(tempFile, raw, 0644); err != nil {
		return err
	}
	return os.Rename(tempFile, filename)
}

// LoadCheckpoint reads a checkpoint back as a read-only artifact for
// inference and CAM generation.
func LoadCheckpoint(filename string) (*Checkpoint, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint '%v': %w", filename, err)
	}
	ck := &Checkpoint{}
	if err := json.Unmarshal(raw, ck); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint '%v': %w", filename, err)
	}
	if ck.Head == nil {
		return nil, fmt.Errorf("checkpoint '%v' has no head weights", filename)
	}
	if err := ck.Head.Validate(); err != nil {
		return nil, fmt.Errorf("checkpoint '%v': %w", filename, err)
	}
	if err := ck.Config.Validate(); err != nil {
		return nil, fmt.Errorf("checkpoint '%v': %w", filename, err)
	}
	return ck, nil
}
