package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"gorm.io/gorm"
)

type LeaseRepository interface {
	// ListActive pages through active leases ordered by id, starting after afterID.
	ListActive(ctx context.Context, afterID string, limit int) ([]domain.Lease, error)
	GetByID(ctx context.Context, id string) (*domain.Lease, error)
}

type GormLeaseRepo struct {
	db *gorm.DB
}

func NewGormLeaseRepo(db *gorm.DB) *GormLeaseRepo {
	return &GormLeaseRepo{db: db}
}

func (r *GormLeaseRepo) ListActive(ctx context.Context, afterID string, limit int) ([]domain.Lease, error) {
	var models []LeaseModel
	err := r.db.WithContext(ctx).
		Where("active = ? AND id > ?", true, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	leases := make([]domain.Lease, 0, len(models))
	for i := range models {
		leases = append(leases, *leaseModelToDomain(&models[i]))
	}
	return leases, nil
}

func (r *GormLeaseRepo) GetByID(ctx context.Context, id string) (*domain.Lease, error) {
	var model LeaseModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return leaseModelToDomain(&model), nil
}
