package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EscalationConfigRepository reads scoped escalation policies and matrix entries.
type EscalationConfigRepository interface {
	// ListMatrix returns the entries configured at exactly one scope tier, ordered by level.
	ListMatrix(ctx context.Context, scope domain.Scope, level domain.ScopeLevel) ([]domain.EscalationMatrixEntry, error)
	// FindPolicy returns the category policy at one scope tier, or ErrNotFound.
	FindPolicy(ctx context.Context, category string, scope domain.Scope, level domain.ScopeLevel) (*domain.EscalationPolicy, error)
}

// EscalationEventRepository stores fired levels and the escalation delivery trail.
type EscalationEventRepository interface {
	// InsertIfAbsent inserts the event unless (request, level) already exists.
	// It reports whether this call created the row.
	InsertIfAbsent(ctx context.Context, e *domain.EscalationEvent) (bool, error)
	ListByRequestID(ctx context.Context, requestID string) ([]domain.EscalationEvent, error)
	AppendLog(ctx context.Context, l *domain.EscalationLog) error
	ListLogsByRequestID(ctx context.Context, requestID string) ([]domain.EscalationLog, error)
}

type GormEscalationRepo struct {
	db *gorm.DB
}

func NewGormEscalationRepo(db *gorm.DB) *GormEscalationRepo {
	return &GormEscalationRepo{db: db}
}

func scopeQuery(query *gorm.DB, scope domain.Scope, level domain.ScopeLevel) (*gorm.DB, error) {
	switch level {
	case domain.ScopeLevelProperty:
		if scope.PropertyID == "" {
			return nil, nil
		}
		return query.Where("property_id = ?", scope.PropertyID), nil
	case domain.ScopeLevelPlan:
		if scope.PlanID == "" {
			return nil, nil
		}
		return query.Where("property_id IS NULL AND plan_id = ?", scope.PlanID), nil
	case domain.ScopeLevelGlobal:
		return query.Where("property_id IS NULL AND plan_id IS NULL"), nil
	}
	return nil, fmt.Errorf("%w: unknown scope level %q", domain.ErrValidation, level)
}

func (r *GormEscalationRepo) ListMatrix(ctx context.Context, scope domain.Scope, level domain.ScopeLevel) ([]domain.EscalationMatrixEntry, error) {
	query, err := scopeQuery(r.db.WithContext(ctx).Model(&EscalationMatrixModel{}), scope, level)
	if err != nil {
		return nil, err
	}
	if query == nil {
		return nil, nil
	}

	var models []EscalationMatrixModel
	if err := query.Order("level ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	entries := make([]domain.EscalationMatrixEntry, 0, len(models))
	for i := range models {
		entries = append(entries, *matrixModelToDomain(&models[i]))
	}
	return entries, nil
}

func (r *GormEscalationRepo) FindPolicy(ctx context.Context, category string, scope domain.Scope, level domain.ScopeLevel) (*domain.EscalationPolicy, error) {
	query, err := scopeQuery(r.db.WithContext(ctx).Model(&EscalationPolicyModel{}), scope, level)
	if err != nil {
		return nil, err
	}
	if query == nil {
		return nil, domain.ErrNotFound
	}

	var model EscalationPolicyModel
	err = query.Where("category = ?", category).Order("created_at DESC").First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return policyModelToDomain(&model), nil
}

func (r *GormEscalationRepo) InsertIfAbsent(ctx context.Context, e *domain.EscalationEvent) (bool, error) {
	if e == nil {
		return false, errors.New("escalation event is required")
	}

	model := &EscalationEventModel{
		ID:          e.ID,
		RequestID:   e.RequestID,
		Level:       e.Level,
		Role:        e.Role,
		TriggeredAt: e.TriggeredAt,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}, {Name: "level"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		if isUniqueViolationError(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormEscalationRepo) ListByRequestID(ctx context.Context, requestID string) ([]domain.EscalationEvent, error) {
	var models []EscalationEventModel
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("level ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	events := make([]domain.EscalationEvent, 0, len(models))
	for i := range models {
		events = append(events, *escalationEventModelToDomain(&models[i]))
	}
	return events, nil
}

func (r *GormEscalationRepo) AppendLog(ctx context.Context, l *domain.EscalationLog) error {
	model := escalationLogModelFromDomain(l)
	if model == nil {
		return errors.New("escalation log is required")
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	*l = *escalationLogModelToDomain(model)
	return nil
}

func (r *GormEscalationRepo) ListLogsByRequestID(ctx context.Context, requestID string) ([]domain.EscalationLog, error) {
	var models []EscalationLogModel
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	logs := make([]domain.EscalationLog, 0, len(models))
	for i := range models {
		logs = append(logs, *escalationLogModelToDomain(&models[i]))
	}
	return logs, nil
}
