package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Migrate applies every schema migration in order. The SQL is portable
// between PostgreSQL and SQLite.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createRemindersTable(),
		createReminderLogsTable(),
		createEscalationTables(),
		createFeatureGateTables(),
		createReadModelTables(),
		trackEnqueueAndLogSeq(),
	})

	return m.Migrate()
}

func execAll(tx *gorm.DB, statements []string) error {
	for _, sql := range statements {
		if err := tx.Exec(sql).Error; err != nil {
			return err
		}
	}
	return nil
}
