package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/Susanoo/models"
	"gorm.io/gorm"
)

// DispatchSettingsRepositoryImpl implements DispatchSettingsRepository
type DispatchSettingsRepositoryImpl struct {
	DB *gorm.DB
}

// NewDispatchSettingsRepository creates a new dispatch settings repository instance
func NewDispatchSettingsRepository(db *gorm.DB) DispatchSettingsRepository {
	return &DispatchSettingsRepositoryImpl{DB: db}
}

func (r *DispatchSettingsRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.DB
}

// Get returns the settings singleton, inserting defaults on first read
func (r *DispatchSettingsRepositoryImpl) Get(ctx context.Context) (*models.DispatchSettings, error) {
	db := r.getDB(ctx)

	var settings models.DispatchSettings
	err := db.First(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			defaults := models.DefaultDispatchSettings()
			if err := db.Create(defaults).Error; err != nil {
				return nil, fmt.Errorf("failed to seed dispatch settings: %w", err)
			}
			return defaults, nil
		}
		return nil, fmt.Errorf("failed to load dispatch settings: %w", err)
	}

	return &settings, nil
}

// Update persists operator changes to the singleton
func (r *DispatchSettingsRepositoryImpl) Update(ctx context.Context, settings *models.DispatchSettings) error {
	if settings.InterMessageDelaySecs < 0 || settings.BatchCap < 1 || settings.StaleClaimMins < 1 {
		return fmt.Errorf("invalid dispatch settings values")
	}

	db := r.getDB(ctx)

	err := db.Model(&models.DispatchSettings{}).
		Where("id = ?", settings.ID).
		Updates(map[string]any{
			"inter_message_delay_secs": settings.InterMessageDelaySecs,
			"batch_cap":                settings.BatchCap,
			"stale_claim_mins":         settings.StaleClaimMins,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update dispatch settings: %w", err)
	}

	return nil
}
