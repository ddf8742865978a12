package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"gorm.io/gorm"
)

// FeatureRepository reads the three feature gate inputs for a subscriber.
type FeatureRepository interface {
	Inputs(ctx context.Context, subscriberID string, planID string, feature domain.Feature) (domain.FeatureInputs, error)
}

type GormFeatureRepo struct {
	db *gorm.DB
}

func NewGormFeatureRepo(db *gorm.DB) *GormFeatureRepo {
	return &GormFeatureRepo{db: db}
}

// Inputs treats a missing plan row as a denied default and missing
// subscriber rows as unset.
func (r *GormFeatureRepo) Inputs(ctx context.Context, subscriberID string, planID string, feature domain.Feature) (domain.FeatureInputs, error) {
	inputs := domain.FeatureInputs{Feature: feature, Override: domain.OverrideInherit}
	db := r.db.WithContext(ctx)

	var plan PlanFeatureModel
	err := db.Where("plan_id = ? AND feature = ?", planID, feature.String()).First(&plan).Error
	switch {
	case err == nil:
		inputs.PlanDefault = plan.DefaultAllowed
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return domain.FeatureInputs{}, err
	}

	var override FeatureOverrideModel
	err = db.Where("subscriber_id = ? AND feature = ?", subscriberID, feature.String()).First(&override).Error
	switch {
	case err == nil:
		if override.Mode.IsValid() {
			inputs.Override = override.Mode
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return domain.FeatureInputs{}, err
	}

	var setting FeatureSettingModel
	err = db.Where("subscriber_id = ? AND feature = ?", subscriberID, feature.String()).First(&setting).Error
	switch {
	case err == nil:
		enabled := setting.Enabled
		inputs.SubscriberOptIn = &enabled
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return domain.FeatureInputs{}, err
	}

	return inputs, nil
}
