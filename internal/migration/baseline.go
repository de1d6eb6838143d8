package migration

import (
	"gorm.io/gorm"

	"github.com/beesaferoot/buildops/internal/models"
)

// BaselineVersion sorts before every timestamped migration.
const BaselineVersion = "00000000000000"

// Baseline creates every registered model's table. SQL migrations build on
// top of it.
func Baseline() *Migration {
	return &Migration{
		Version: BaselineVersion,
		Name:    "baseline",
		Source:  "builtin",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(models.All()...)
		},
		Down: func(tx *gorm.DB) error {
			schemas, err := parseModels(tx, models.All()...)
			if err != nil {
				return err
			}
			for i := len(schemas) - 1; i >= 0; i-- {
				if err := tx.Migrator().DropTable(schemas[i].Table); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// All returns the baseline followed by the SQL migrations in dir.
func All(dir string) ([]*Migration, error) {
	files, err := Load(dir)
	if err != nil {
		return nil, err
	}
	return append([]*Migration{Baseline()}, files...), nil
}
