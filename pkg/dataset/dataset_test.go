package dataset

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"

	"github.com/mouldvision/mouldvision/pkg/nn"
)

func testConfig() *nn.ModelConfig {
	return &nn.ModelConfig{
		Architecture: "vgg16",
		Width:        32,
		Height:       32,
		Classes:      []string{"clean", "mould"},
		Channels:     8,
		MapWidth:     4,
		MapHeight:    4,
	}
}

// writeTestImage writes a JPEG filled with the given color. Sizes vary so
// that the loader's resize path is exercised.
func writeTestImage(t *testing.T, path string, width, height int, r, g, b byte) {
	img := cimg.NewImage(width, height, cimg.PixelFormatRGB)
	for y := 0; y < height; y++ {
		row := img.Pixels[y*img.Stride:]
		for x := 0; x < width; x++ {
			row[x*3] = r
			row[x*3+1] = g
			row[x*3+2] = b
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0777))
	require.NoError(t, img.WriteJPEG(path, cimg.MakeCompressParams(cimg.Sampling444, 95, 0), 0644))
}

// buildTestTree creates <root>/{train,test}/{mould,clean} with nMould+nClean
// images per split. Mould images are reddish, clean images bluish.
func buildTestTree(t *testing.T, root string, nTrain, nTest int) {
	for split, n := range map[string]int{"train": nTrain, "test": nTest} {
		for i := 0; i < n; i++ {
			writeTestImage(t, filepath.Join(root, split, "mould", fmt.Sprintf("m%03d.jpg", i)), 40+i, 40, 200, 40, 30)
			writeTestImage(t, filepath.Join(root, split, "clean", fmt.Sprintf("c%03d.jpg", i)), 48, 36+i, 30, 40, 200)
		}
	}
}

func TestOpenMissingDirectory(t *testing.T) {
	root := t.TempDir()
	buildTestTree(t, root, 3, 2)
	require.NoError(t, os.RemoveAll(filepath.Join(root, "test", "clean")))

	_, err := Open(logs.NewTestingLog(t), root, testConfig())
	require.Error(t, err)
	missing := &MissingDirectoryError{}
	require.ErrorAs(t, err, &missing)
	require.Contains(t, missing.Dir, "clean")
}

func TestEnumerationDeterministic(t *testing.T) {
	root := t.TempDir()
	buildTestTree(t, root, 4, 2)

	ds1, err := Open(logs.NewTestingLog(t), root, testConfig())
	require.NoError(t, err)
	ds2, err := Open(logs.NewTestingLog(t), root, testConfig())
	require.NoError(t, err)

	require.Equal(t, ds1.Train.Entries(), ds2.Train.Entries())
	require.Equal(t, 8, ds1.Train.Len())
	require.Equal(t, 4, ds1.Test.Len())
}

func TestBatchShapesAndLabels(t *testing.T) {
	root := t.TempDir()
	buildTestTree(t, root, 5, 3)
	config := testConfig()

	ds, err := Open(logs.NewTestingLog(t), root, config)
	require.NoError(t, err)

	it := ds.Train.Batches(4, nil)
	total := 0
	for {
		batch, err := it.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.LessOrEqual(t, batch.Len(), 4)
		for _, sample := range batch.Samples {
			require.Contains(t, []nn.Label{nn.LabelClean, nn.LabelMould}, sample.Label)
			require.Equal(t, config.Width, sample.Image.Width)
			require.Equal(t, config.Height, sample.Image.Height)
			require.Equal(t, 3, sample.Image.NChan())
			total++
		}
	}
	require.Equal(t, 10, total)

	// Restartable: a second pass yields the full split again
	it.Reset()
	batch, err := it.Next()
	require.NoError(t, err)
	require.Equal(t, 4, batch.Len())
}

func TestCorruptFileSkipped(t *testing.T) {
	root := t.TempDir()
	buildTestTree(t, root, 3, 1)
	// Not a real JPEG
	require.NoError(t, os.WriteFile(filepath.Join(root, "train", "mould", "broken.jpg"), []byte("not an image"), 0644))

	ds, err := Open(logs.NewTestingLog(t), root, testConfig())
	require.NoError(t, err)
	require.Equal(t, 7, ds.Train.Len()) // enumeration still includes it

	it := ds.Train.Batches(16, nil)
	loaded := 0
	for {
		batch, err := it.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		loaded += batch.Len()
	}
	require.Equal(t, 6, loaded) // the corrupt file was skipped, not fatal
}

func TestShuffledIteration(t *testing.T) {
	root := t.TempDir()
	buildTestTree(t, root, 10, 1)

	ds, err := Open(logs.NewTestingLog(t), root, testConfig())
	require.NoError(t, err)

	collect := func(it *BatchIterator) []string {
		paths := []string{}
		for {
			batch, err := it.Next()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			for _, s := range batch.Samples {
				paths = append(paths, s.Path)
			}
		}
		return paths
	}

	rng := rand.New(rand.NewSource(42))
	it := ds.Train.Batches(8, rng)
	first := collect(it)
	it.Reset()
	second := collect(it)

	require.ElementsMatch(t, first, second)
	require.NotEqual(t, first, second) // 20 entries, reshuffle makes same order vanishingly unlikely
}
