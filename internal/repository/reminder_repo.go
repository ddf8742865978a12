package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListParams struct {
	Status   *domain.ReminderStatus
	LeaseID  string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type ReminderRepository interface {
	// CreateIfAbsent inserts the reminder unless one already exists for
	// (lease, type, run date). It reports whether a row was inserted.
	CreateIfAbsent(ctx context.Context, r *domain.Reminder) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Reminder, error)
	List(ctx context.Context, params ListParams) ([]domain.Reminder, int64, error)
	// Claim moves a PENDING reminder to IN_PROGRESS. It returns nil when another
	// worker holds the reminder or the reminder is terminal.
	Claim(ctx context.Context, id string, now time.Time) (*domain.Reminder, error)
	Release(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, sentAt time.Time) error
	Cancel(ctx context.Context, id string) error
	ReleaseStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error)
	// GetDuePending returns PENDING reminders scheduled at or before now that
	// were not enqueued at or after enqueuedBefore.
	GetDuePending(ctx context.Context, now, enqueuedBefore time.Time, limit int) ([]domain.Reminder, error)
	// MarkEnqueued stamps a still PENDING reminder as published. It reports
	// false when the reminder already left PENDING.
	MarkEnqueued(ctx context.Context, id string, at time.Time) (bool, error)
}

type GormReminderRepo struct {
	db *gorm.DB
}

func NewGormReminderRepo(db *gorm.DB) *GormReminderRepo {
	return &GormReminderRepo{db: db}
}

func (r *GormReminderRepo) CreateIfAbsent(ctx context.Context, reminder *domain.Reminder) (bool, error) {
	model := reminderModelFromDomain(reminder)
	if model == nil {
		return false, errors.New("reminder is required")
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lease_id"}, {Name: "type"}, {Name: "run_date"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		if isUniqueViolationError(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	*reminder = *reminderModelToDomain(model)
	return true, nil
}

func (r *GormReminderRepo) GetByID(ctx context.Context, id string) (*domain.Reminder, error) {
	var model ReminderModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return reminderModelToDomain(&model), nil
}

func (r *GormReminderRepo) List(ctx context.Context, params ListParams) ([]domain.Reminder, int64, error) {
	query := r.db.WithContext(ctx).Model(&ReminderModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.LeaseID != "" {
		query = query.Where("lease_id = ?", params.LeaseID)
	}
	if params.From != nil {
		query = query.Where("scheduled_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("scheduled_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []ReminderModel
	err := query.
		Order("scheduled_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	reminders := make([]domain.Reminder, 0, len(models))
	for i := range models {
		reminders = append(reminders, *reminderModelToDomain(&models[i]))
	}

	return reminders, total, nil
}

func (r *GormReminderRepo) Claim(ctx context.Context, id string, now time.Time) (*domain.Reminder, error) {
	result := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("id = ? AND status = ?", id, domain.ReminderStatusPending).
		Updates(map[string]any{
			"status":     domain.ReminderStatusInProgress,
			"claimed_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		// Distinguish a missing row from one that is held or terminal.
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return r.GetByID(ctx, id)
}

func (r *GormReminderRepo) Release(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("id = ? AND status = ?", id, domain.ReminderStatusInProgress).
		Updates(map[string]any{
			"status":      domain.ReminderStatusPending,
			"claimed_at":  nil,
			"enqueued_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormReminderRepo) Complete(ctx context.Context, id string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("id = ? AND status = ?", id, domain.ReminderStatusInProgress).
		Updates(map[string]any{
			"status":   domain.ReminderStatusSent,
			"sent_at":  sentAt,
			"attempts": gorm.Expr("attempts + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormReminderRepo) Cancel(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("id = ? AND status IN ?", id, []domain.ReminderStatus{domain.ReminderStatusPending, domain.ReminderStatusInProgress}).
		Update("status", domain.ReminderStatusCancelled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormReminderRepo) ReleaseStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("status = ? AND claimed_at < ?", domain.ReminderStatusInProgress, claimedBefore).
		Updates(map[string]any{
			"status":      domain.ReminderStatusPending,
			"claimed_at":  nil,
			"enqueued_at": nil,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormReminderRepo) GetDuePending(ctx context.Context, now, enqueuedBefore time.Time, limit int) ([]domain.Reminder, error) {
	var models []ReminderModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", domain.ReminderStatusPending, now).
		Where("(enqueued_at IS NULL OR enqueued_at < ?)", enqueuedBefore).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	reminders := make([]domain.Reminder, 0, len(models))
	for i := range models {
		reminders = append(reminders, *reminderModelToDomain(&models[i]))
	}

	return reminders, nil
}

func (r *GormReminderRepo) MarkEnqueued(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("id = ? AND status = ?", id, domain.ReminderStatusPending).
		Update("enqueued_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
