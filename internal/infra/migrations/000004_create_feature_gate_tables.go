package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/reminder-engine/internal/repository"
	"gorm.io/gorm"
)

func createFeatureGateTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_feature_gate_tables",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&repository.PlanFeatureModel{},
				&repository.FeatureOverrideModel{},
				&repository.FeatureSettingModel{},
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&repository.FeatureSettingModel{},
				&repository.FeatureOverrideModel{},
				&repository.PlanFeatureModel{},
			)
		},
	}
}
