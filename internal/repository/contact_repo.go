package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"gorm.io/gorm"
)

type RoleContactRepository interface {
	// ListForRole returns property-specific holders of the role when any exist,
	// otherwise the subscriber-wide holders.
	ListForRole(ctx context.Context, subscriberID string, propertyID string, role string) ([]domain.RoleContact, error)
}

type WebhookEndpointRepository interface {
	// GetBySubscriber returns the enabled endpoint for a subscriber, or ErrNotFound.
	GetBySubscriber(ctx context.Context, subscriberID string) (*domain.WebhookEndpoint, error)
}

type GormContactRepo struct {
	db *gorm.DB
}

func NewGormContactRepo(db *gorm.DB) *GormContactRepo {
	return &GormContactRepo{db: db}
}

func (r *GormContactRepo) ListForRole(ctx context.Context, subscriberID string, propertyID string, role string) ([]domain.RoleContact, error) {
	base := r.db.WithContext(ctx).
		Model(&RoleContactModel{}).
		Where("subscriber_id = ? AND role = ?", subscriberID, role)

	var models []RoleContactModel
	if propertyID != "" {
		if err := base.Session(&gorm.Session{}).Where("property_id = ?", propertyID).Order("id ASC").Find(&models).Error; err != nil {
			return nil, err
		}
	}
	if len(models) == 0 {
		if err := base.Session(&gorm.Session{}).Where("property_id IS NULL").Order("id ASC").Find(&models).Error; err != nil {
			return nil, err
		}
	}

	contacts := make([]domain.RoleContact, 0, len(models))
	for i := range models {
		contacts = append(contacts, *roleContactModelToDomain(&models[i]))
	}
	return contacts, nil
}

func (r *GormContactRepo) GetBySubscriber(ctx context.Context, subscriberID string) (*domain.WebhookEndpoint, error) {
	var model WebhookEndpointModel
	err := r.db.WithContext(ctx).
		Where("subscriber_id = ? AND enabled = ?", subscriberID, true).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &domain.WebhookEndpoint{
		SubscriberID: model.SubscriberID,
		URL:          model.URL,
		Secret:       model.Secret,
		Enabled:      model.Enabled,
	}, nil
}
