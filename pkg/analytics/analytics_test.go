package analytics

import (
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"

	"github.com/mouldvision/mouldvision/pkg/nn"
)

func openTestDB(t *testing.T) *AnalyticsDB {
	db, err := Open(logs.NewTestingLog(t), filepath.Join(t.TempDir(), "analytics.sqlite"))
	require.NoError(t, err)
	return db
}

func TestEnsureImageIdempotent(t *testing.T) {
	db := openTestDB(t)

	img1, err := db.EnsureImage("/photos/kitchen.jpg")
	require.NoError(t, err)
	require.NotZero(t, img1.ID)
	require.Nil(t, img1.InspectionID)

	img2, err := db.EnsureImage("/photos/kitchen.jpg")
	require.NoError(t, err)
	require.Equal(t, img1.ID, img2.ID)

	img3, err := db.EnsureImage("/photos/bathroom.jpg")
	require.NoError(t, err)
	require.NotEqual(t, img1.ID, img3.ID)
}

func TestRecordPrediction(t *testing.T) {
	db := openTestDB(t)

	img, err := db.EnsureImage("/photos/ceiling.jpg")
	require.NoError(t, err)

	pred := &nn.Prediction{
		Label:      nn.LabelMould,
		Confidence: 0.93,
		Mould:      0.93,
	}
	row, err := db.RecordPrediction(img.ID, "vgg16-head-v1", pred)
	require.NoError(t, err)
	require.NotZero(t, row.ID)

	rows, err := db.PredictionsForImage(img.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, img.ID, rows[0].ImageID)
	require.Equal(t, "vgg16-head-v1", rows[0].ModelID)
	require.Equal(t, "mould", rows[0].PredictedClass)
	require.InDelta(t, 0.93, rows[0].ConfidenceScore, 1e-6)

	// Predictions for other images are not returned
	other, err := db.EnsureImage("/photos/wall.jpg")
	require.NoError(t, err)
	rows, err = db.PredictionsForImage(other.ID)
	require.NoError(t, err)
	require.Len(t, rows, 0)
}

func TestInspectionChain(t *testing.T) {
	db := openTestDB(t)

	prop, err := db.AddProperty("12 Damp Lane", "SW1A 1AA")
	require.NoError(t, err)
	require.NotZero(t, prop.ID)

	ins, err := db.AddInspection(prop.ID, "J. Surveyor", "black spotting above window")
	require.NoError(t, err)
	require.Equal(t, prop.ID, ins.PropertyID)

	ra, err := db.AddRemediationAction(ins.ID, "treat and repaint", nil)
	require.NoError(t, err)
	require.Equal(t, ins.ID, ra.InspectionID)
	require.Equal(t, "open", ra.Status)
	require.Nil(t, ra.DueDate)
}
