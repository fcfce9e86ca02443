package analytics

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE property(
			id INTEGER PRIMARY KEY,
			address TEXT NOT NULL,
			postcode TEXT NOT NULL,
			created_at INT NOT NULL
		);

		CREATE TABLE inspection(
			id INTEGER PRIMARY KEY,
			property_id INT NOT NULL,
			inspected_at INT NOT NULL,
			inspector TEXT NOT NULL,
			notes TEXT
		);

		CREATE TABLE image(
			id INTEGER PRIMARY KEY,
			inspection_id INT,
			file_path TEXT NOT NULL,
			captured_at INT NOT NULL
		);

		CREATE TABLE model_prediction(
			id INTEGER PRIMARY KEY,
			image_id INT NOT NULL,
			model_id TEXT NOT NULL,
			predicted_class TEXT NOT NULL,
			confidence_score REAL NOT NULL,
			created_at INT NOT NULL
		);

		CREATE TABLE remediation_action(
			id INTEGER PRIMARY KEY,
			inspection_id INT NOT NULL,
			action TEXT NOT NULL,
			status TEXT NOT NULL,
			due_date INT
		);
	`))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE INDEX idx_inspection_property_id ON inspection(property_id);
		CREATE INDEX idx_image_inspection_id ON image(inspection_id);
		CREATE INDEX idx_image_file_path ON image(file_path);
		CREATE INDEX idx_model_prediction_image_id ON model_prediction(image_id);
		CREATE INDEX idx_remediation_action_inspection_id ON remediation_action(inspection_id);
	`))

	return migs
}
