package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"gorm.io/gorm"
)

const maxAppendAttempts = 5

// ReminderLogRepository is append-only: rows are never updated or deleted.
// Each (reminder, channel) stream is numbered by Seq.
type ReminderLogRepository interface {
	Append(ctx context.Context, l *domain.ReminderLog) error
	// AppendAfter appends l as the row directly after afterSeq. It reports
	// false when another row already took that place.
	AppendAfter(ctx context.Context, l *domain.ReminderLog, afterSeq int64) (bool, error)
	ListByReminderID(ctx context.Context, reminderID string) ([]domain.ReminderLog, error)
	// LatestForChannel returns the newest row for (reminder, channel), or ErrNotFound.
	LatestForChannel(ctx context.Context, reminderID string, channel domain.Channel) (*domain.ReminderLog, error)
	HasStatus(ctx context.Context, reminderID string, channel domain.Channel, status domain.LogStatus) (bool, error)
}

type GormReminderLogRepo struct {
	db *gorm.DB
}

func NewGormReminderLogRepo(db *gorm.DB) *GormReminderLogRepo {
	return &GormReminderLogRepo{db: db}
}

func (r *GormReminderLogRepo) Append(ctx context.Context, l *domain.ReminderLog) error {
	model := reminderLogModelFromDomain(l)
	if model == nil {
		return errors.New("reminder log is required")
	}

	var err error
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		var last int64
		last, err = r.lastSeq(ctx, model.ReminderID, model.Channel)
		if err != nil {
			return err
		}
		model.Seq = last + 1

		err = r.db.WithContext(ctx).Create(model).Error
		if err == nil {
			*l = *reminderLogModelToDomain(model)
			return nil
		}
		if !isUniqueViolationError(err) {
			return err
		}
	}
	return fmt.Errorf("failed to number reminder log after %d attempts: %w", maxAppendAttempts, err)
}

func (r *GormReminderLogRepo) AppendAfter(ctx context.Context, l *domain.ReminderLog, afterSeq int64) (bool, error) {
	model := reminderLogModelFromDomain(l)
	if model == nil {
		return false, errors.New("reminder log is required")
	}

	last, err := r.lastSeq(ctx, model.ReminderID, model.Channel)
	if err != nil {
		return false, err
	}
	if last != afterSeq {
		return false, nil
	}

	model.Seq = afterSeq + 1
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolationError(err) {
			return false, nil
		}
		return false, err
	}
	*l = *reminderLogModelToDomain(model)
	return true, nil
}

func (r *GormReminderLogRepo) lastSeq(ctx context.Context, reminderID, channel string) (int64, error) {
	var last int64
	err := r.db.WithContext(ctx).
		Model(&ReminderLogModel{}).
		Select("COALESCE(MAX(seq), 0)").
		Where("reminder_id = ? AND channel = ?", reminderID, channel).
		Scan(&last).Error
	return last, err
}

func (r *GormReminderLogRepo) ListByReminderID(ctx context.Context, reminderID string) ([]domain.ReminderLog, error) {
	var models []ReminderLogModel
	err := r.db.WithContext(ctx).
		Where("reminder_id = ?", reminderID).
		Order("created_at ASC, seq ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	logs := make([]domain.ReminderLog, 0, len(models))
	for i := range models {
		logs = append(logs, *reminderLogModelToDomain(&models[i]))
	}

	return logs, nil
}

func (r *GormReminderLogRepo) LatestForChannel(ctx context.Context, reminderID string, channel domain.Channel) (*domain.ReminderLog, error) {
	var model ReminderLogModel
	err := r.db.WithContext(ctx).
		Where("reminder_id = ? AND channel = ?", reminderID, channel.String()).
		Order("seq DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return reminderLogModelToDomain(&model), nil
}

func (r *GormReminderLogRepo) HasStatus(ctx context.Context, reminderID string, channel domain.Channel, status domain.LogStatus) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ReminderLogModel{}).
		Where("reminder_id = ? AND channel = ? AND status = ?", reminderID, channel.String(), status).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
