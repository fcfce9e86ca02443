package dataset

import (
	"io"
	"math/rand"

	"github.com/bmharper/cimg/v2"
	"github.com/mouldvision/mouldvision/pkg/nn"
)

// BatchIterator walks a split in batches, decoding images on demand.
// A sample lives only as long as the batch that holds it.
type BatchIterator struct {
	split     *Split
	batchSize int
	rng       *rand.Rand
	order     []int
	pos       int
}

// Reset restarts the iterator. With an rng attached, the walk order is
// reshuffled; otherwise it is the deterministic enumeration order.
func (it *BatchIterator) Reset() {
	if it.order == nil {
		it.order = make([]int, it.split.Len())
		for i := range it.order {
			it.order[i] = i
		}
	}
	if it.rng != nil {
		it.rng.Shuffle(len(it.order), func(i, j int) {
			it.order[i], it.order[j] = it.order[j], it.order[i]
		})
	}
	it.pos = 0
}

// Next returns the next batch, or io.EOF when the split is exhausted.
// Undecodable files are skipped with a warning. The final batch may be
// smaller than the configured batch size.
func (it *BatchIterator) Next() (*nn.Batch, error) {
	if it.pos >= len(it.order) {
		return nil, io.EOF
	}
	batch := &nn.Batch{}
	for it.pos < len(it.order) && batch.Len() < it.batchSize {
		entry := it.split.entries[it.order[it.pos]]
		it.pos++
		sample, err := it.split.loadSample(entry)
		if err != nil {
			it.split.log.Warnf("Skipping image: %v", err)
			continue
		}
		batch.Samples = append(batch.Samples, sample)
	}
	if batch.Len() == 0 {
		// Every remaining file failed to decode
		return nil, io.EOF
	}
	return batch, nil
}

func (s *Split) loadSample(entry Entry) (*nn.Sample, error) {
	img, err := cimg.ReadFile(entry.Path)
	if err != nil {
		return nil, &DecodeError{Path: entry.Path, Err: err}
	}
	img, err = nn.PrepareImage(img, s.config)
	if err != nil {
		return nil, &DecodeError{Path: entry.Path, Err: err}
	}
	return &nn.Sample{
		Path:  entry.Path,
		Image: img,
		Label: entry.Label,
	}, nil
}
