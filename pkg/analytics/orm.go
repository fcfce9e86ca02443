package analytics

import "github.com/cyclopcam/dbh"

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// Property is a building under inspection.
type Property struct {
	BaseModel
	Address   string      `json:"address"`
	Postcode  string      `json:"postcode"`
	CreatedAt dbh.IntTime `json:"createdAt"`
}

// Inspection is one visit to a property.
type Inspection struct {
	BaseModel
	PropertyID  int64       `json:"propertyID"`
	InspectedAt dbh.IntTime `json:"inspectedAt"`
	Inspector   string      `json:"inspector"`
	Notes       string      `json:"notes"`
}

// Image is a photo captured during an inspection. InspectionID is null for
// ad-hoc classifications that aren't tied to a site visit.
type Image struct {
	BaseModel
	InspectionID *int64      `json:"inspectionID"`
	FilePath     string      `json:"filePath"`
	CapturedAt   dbh.IntTime `json:"capturedAt"`
}

// ModelPrediction is the tuple the classification pipeline emits:
// (ImageID, ModelID, PredictedClass, ConfidenceScore, Timestamp).
type ModelPrediction struct {
	BaseModel
	ImageID         int64       `json:"imageID"`
	ModelID         string      `json:"modelID"` // eg "vgg16-mould-v1"
	PredictedClass  string      `json:"predictedClass"`
	ConfidenceScore float64     `json:"confidenceScore"`
	CreatedAt       dbh.IntTime `json:"createdAt"`
}

// RemediationAction is follow-up work raised from a positive finding.
type RemediationAction struct {
	BaseModel
	InspectionID int64        `json:"inspectionID"`
	Action       string       `json:"action"`
	Status       string       `json:"status"` // eg "open", "done"
	DueDate      *dbh.IntTime `json:"dueDate"` // Null = no deadline
}
