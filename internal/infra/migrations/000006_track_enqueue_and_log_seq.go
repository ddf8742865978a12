package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/reminder-engine/internal/repository"
	"gorm.io/gorm"
)

// trackEnqueueAndLogSeq adds reminders.enqueued_at so a scan does not
// republish a reminder it already queued, and numbers reminder_logs rows per
// (reminder, channel) stream.
func trackEnqueueAndLogSeq() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000006_track_enqueue_and_log_seq",
		Migrate: func(tx *gorm.DB) error {
			m := tx.Migrator()
			if !m.HasColumn(&repository.ReminderModel{}, "EnqueuedAt") {
				if err := m.AddColumn(&repository.ReminderModel{}, "EnqueuedAt"); err != nil {
					return err
				}
			}
			if !m.HasColumn(&repository.ReminderLogModel{}, "Seq") {
				if err := m.AddColumn(&repository.ReminderLogModel{}, "Seq"); err != nil {
					return err
				}
			}

			return execAll(tx, []string{
				`UPDATE reminder_logs SET seq = (
					SELECT COUNT(*) FROM reminder_logs prev
					WHERE prev.reminder_id = reminder_logs.reminder_id
					  AND prev.channel = reminder_logs.channel
					  AND (prev.created_at < reminder_logs.created_at
					    OR (prev.created_at = reminder_logs.created_at AND prev.id <= reminder_logs.id))
				) WHERE seq = 0`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_reminder_logs_seq ON reminder_logs (reminder_id, channel, seq)`,
				`CREATE INDEX IF NOT EXISTS idx_reminders_enqueued ON reminders (enqueued_at) WHERE status = 'PENDING'`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			if err := execAll(tx, []string{
				`DROP INDEX IF EXISTS idx_reminders_enqueued`,
				`DROP INDEX IF EXISTS idx_reminder_logs_seq`,
			}); err != nil {
				return err
			}
			m := tx.Migrator()
			if err := m.DropColumn(&repository.ReminderLogModel{}, "Seq"); err != nil {
				return err
			}
			return m.DropColumn(&repository.ReminderModel{}, "EnqueuedAt")
		},
	}
}
