package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"gorm.io/gorm"
)

type RequestRepository interface {
	// ListOpen pages through open requests ordered by id, starting after afterID.
	ListOpen(ctx context.Context, afterID string, limit int) ([]domain.SupportRequest, error)
	GetByID(ctx context.Context, id string) (*domain.SupportRequest, error)
}

type GormRequestRepo struct {
	db *gorm.DB
}

func NewGormRequestRepo(db *gorm.DB) *GormRequestRepo {
	return &GormRequestRepo{db: db}
}

func (r *GormRequestRepo) ListOpen(ctx context.Context, afterID string, limit int) ([]domain.SupportRequest, error) {
	var models []SupportRequestModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND id > ?", domain.RequestStatusOpen, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	requests := make([]domain.SupportRequest, 0, len(models))
	for i := range models {
		requests = append(requests, *supportRequestModelToDomain(&models[i]))
	}
	return requests, nil
}

func (r *GormRequestRepo) GetByID(ctx context.Context, id string) (*domain.SupportRequest, error) {
	var model SupportRequestModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return supportRequestModelToDomain(&model), nil
}
