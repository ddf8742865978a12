package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/reminder-engine/internal/repository"
	"gorm.io/gorm"
)

// createReadModelTables creates the lease, request and contact tables that the
// property management side owns. They exist here so a fresh database is usable.
func createReadModelTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_read_models",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(
				&repository.LeaseModel{},
				&repository.SupportRequestModel{},
				&repository.RoleContactModel{},
				&repository.WebhookEndpointModel{},
			); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_leases_active ON leases (id) WHERE active`,
				`CREATE INDEX IF NOT EXISTS idx_support_requests_open ON support_requests (id) WHERE status = 'OPEN'`,
				`CREATE INDEX IF NOT EXISTS idx_role_contacts_role ON role_contacts (subscriber_id, role, property_id)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&repository.WebhookEndpointModel{},
				&repository.RoleContactModel{},
				&repository.SupportRequestModel{},
				&repository.LeaseModel{},
			)
		},
	}
}
