package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/reminder-engine/internal/repository"
	"gorm.io/gorm"
)

func createEscalationTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_escalation_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(
				&repository.EscalationPolicyModel{},
				&repository.EscalationMatrixModel{},
				&repository.EscalationEventModel{},
				&repository.EscalationLogModel{},
			); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_escalation_policies_scope ON escalation_policies (category, property_id, plan_id)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_escalation_matrix_property_level ON escalation_matrix (property_id, level) WHERE property_id IS NOT NULL`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_escalation_matrix_plan_level ON escalation_matrix (plan_id, level) WHERE property_id IS NULL AND plan_id IS NOT NULL`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_escalation_matrix_global_level ON escalation_matrix (level) WHERE property_id IS NULL AND plan_id IS NULL`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&repository.EscalationLogModel{},
				&repository.EscalationEventModel{},
				&repository.EscalationMatrixModel{},
				&repository.EscalationPolicyModel{},
			)
		},
	}
}
