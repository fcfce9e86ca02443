package analytics

// Package analytics is the downstream consumer of the pipeline's inference
// step: a relational store of properties, inspections, images, model
// predictions and remediation actions. The pipeline only ever appends
// prediction tuples; everything else is reference data for reporting.

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"

	"github.com/mouldvision/mouldvision/pkg/nn"
)

type AnalyticsDB struct {
	Log logs.Log
	DB  *gorm.DB
}

// Open opens or creates the analytics database (sqlite).
func Open(logger logs.Log, dbFilename string) (*AnalyticsDB, error) {
	os.MkdirAll(filepath.Dir(dbFilename), 0777)
	db, err := dbh.OpenDB(logger, dbh.MakeSqliteConfig(dbFilename), Migrations(logger), 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open analytics database %v: %w", dbFilename, err)
	}
	return &AnalyticsDB{
		Log: logger,
		DB:  db,
	}, nil
}

// EnsureImage returns the image row for filePath, creating it if necessary.
// Ad-hoc classifications aren't tied to an inspection, so InspectionID
// stays null here.
func (a *AnalyticsDB) EnsureImage(filePath string) (*Image, error) {
	img := Image{}
	err := a.DB.First(&img, "file_path = ?", filePath).Error
	if err == nil {
		return &img, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	img = Image{
		FilePath:   filePath,
		CapturedAt: dbh.MakeIntTime(time.Now()),
	}
	if err := a.DB.Create(&img).Error; err != nil {
		return nil, err
	}
	return &img, nil
}

// RecordPrediction appends one (ImageID, ModelID, PredictedClass,
// ConfidenceScore, Timestamp) tuple.
func (a *AnalyticsDB) RecordPrediction(imageID int64, modelID string, pred *nn.Prediction) (*ModelPrediction, error) {
	row := &ModelPrediction{
		ImageID:         imageID,
		ModelID:         modelID,
		PredictedClass:  pred.Label.String(),
		ConfidenceScore: float64(pred.Confidence),
		CreatedAt:       dbh.MakeIntTime(time.Now()),
	}
	if err := a.DB.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// PredictionsForImage returns all predictions recorded for an image, newest
// first.
func (a *AnalyticsDB) PredictionsForImage(imageID int64) ([]ModelPrediction, error) {
	rows := []ModelPrediction{}
	if err := a.DB.Where("image_id = ?", imageID).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// AddProperty, AddInspection and AddRemediationAction exist for the
// reporting side of the schema; the pipeline itself never calls them.

func (a *AnalyticsDB) AddProperty(address, postcode string) (*Property, error) {
	p := &Property{
		Address:   address,
		Postcode:  postcode,
		CreatedAt: dbh.MakeIntTime(time.Now()),
	}
	if err := a.DB.Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (a *AnalyticsDB) AddInspection(propertyID int64, inspector, notes string) (*Inspection, error) {
	ins := &Inspection{
		PropertyID:  propertyID,
		InspectedAt: dbh.MakeIntTime(time.Now()),
		Inspector:   inspector,
		Notes:       notes,
	}
	if err := a.DB.Create(ins).Error; err != nil {
		return nil, err
	}
	return ins, nil
}

func (a *AnalyticsDB) AddRemediationAction(inspectionID int64, action string, dueDate *time.Time) (*RemediationAction, error) {
	ra := &RemediationAction{
		InspectionID: inspectionID,
		Action:       action,
		Status:       "open",
	}
	if dueDate != nil {
		due := dbh.MakeIntTime(*dueDate)
		ra.DueDate = &due
	}
	if err := a.DB.Create(ra).Error; err != nil {
		return nil, err
	}
	return ra, nil
}
