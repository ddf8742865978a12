package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/reminder-engine/internal/repository"
	"gorm.io/gorm"
)

func createRemindersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_reminders",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ReminderModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders (scheduled_at) WHERE status = 'PENDING'`,
				`CREATE INDEX IF NOT EXISTS idx_reminders_claimed ON reminders (claimed_at) WHERE status = 'IN_PROGRESS'`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ReminderModel{})
		},
	}
}
