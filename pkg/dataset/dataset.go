package dataset

// Package dataset reads the labelled image directory layout
// <root>/{train,test}/{mould,clean} and turns it into batches for the
// training loop and the evaluator.

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cyclopcam/logs"
	"github.com/mouldvision/mouldvision/pkg/nn"
)

// MissingDirectoryError means one of the four expected class directories is
// absent. The run cannot proceed without both classes in both splits.
type MissingDirectoryError struct {
	Dir string
}

func (e *MissingDirectoryError) Error() string {
	return fmt.Sprintf("missing class directory '%v'", e.Dir)
}

// DecodeError is an unreadable or corrupt image file. Such files are skipped
// with a warning; they are never fatal to the run.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode '%v': %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Entry is one (path, label) pair from the enumeration.
type Entry struct {
	Path  string
	Label nn.Label
}

// Split is the train or test half of the dataset.
type Split struct {
	Name    string
	log     logs.Log
	config  *nn.ModelConfig
	entries []Entry
}

// Dataset is the full labelled image tree.
type Dataset struct {
	Train *Split
	Test  *Split
}

var classNames = []string{"clean", "mould"}
var splitNames = []string{"train", "test"}

// Open scans the directory tree under root and enumerates every image in
// every class directory. The enumeration is deterministic (sorted by path).
// Images are decoded lazily, when a batch iterator reaches them.
func Open(logger logs.Log, root string, config *nn.ModelConfig) (*Dataset, error) {
	splits := map[string]*Split{}
	for _, splitName := range splitNames {
		split := &Split{
			Name:   splitName,
			log:    logger,
			config: config,
		}
		for _, className := range classNames {
			dir := filepath.Join(root, splitName, className)
			label, err := nn.ParseLabel(className)
			if err != nil {
				return nil, err
			}
			entries, err := scanClassDir(dir, label)
			if err != nil {
				return nil, err
			}
			split.entries = append(split.entries, entries...)
		}
		sort.Slice(split.entries, func(i, j int) bool { return split.entries[i].Path < split.entries[j].Path })
		logger.Infof("Dataset split '%v': %v images", splitName, len(split.entries))
		splits[splitName] = split
	}
	return &Dataset{
		Train: splits["train"],
		Test:  splits["test"],
	}, nil
}

func scanClassDir(dir string, label nn.Label) ([]Entry, error) {
	stat, err := os.Stat(dir)
	if err != nil || !stat.IsDir() {
		return nil, &MissingDirectoryError{Dir: dir}
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	entries := []Entry{}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(f.Name())) {
		case ".jpg", ".jpeg", ".png":
			entries = append(entries, Entry{
				Path:  filepath.Join(dir, f.Name()),
				Label: label,
			})
		}
	}
	return entries, nil
}

// Entries returns the deterministic (path, label) enumeration.
func (s *Split) Entries() []Entry {
	return s.entries
}

func (s *Split) Len() int {
	return len(s.entries)
}

// Batches returns a lazy, restartable iterator over the split. If rng is
// non-nil, the iteration order is reshuffled on every Reset (used for the
// training split only; evaluation always runs in enumeration order).
func (s *Split) Batches(batchSize int, rng *rand.Rand) *BatchIterator {
	it := &BatchIterator{
		split:     s,
		batchSize: batchSize,
		rng:       rng,
	}
	it.Reset()
	return it
}
