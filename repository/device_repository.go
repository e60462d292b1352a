package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/utils"
	"gorm.io/gorm"
)

// DeviceRepositoryImpl implements DeviceRepository
type DeviceRepositoryImpl struct {
	*BaseRepository[models.Device, models.DeviceFilter]
}

// NewDeviceRepository creates a new device repository instance
func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &DeviceRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Device, models.DeviceFilter](db),
	}
}

// ByUUID retrieves a device by its UUID
func (r *DeviceRepositoryImpl) ByUUID(ctx context.Context, uuidStr string) (*models.Device, error) {
	db := r.getDB(ctx)

	var device models.Device
	err := db.Where("uuid = ?", uuidStr).Last(&device).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find device by UUID %s: %w", uuidStr, err)
	}

	return &device, nil
}

// ListByCustomer retrieves devices owned by the given customer
func (r *DeviceRepositoryImpl) ListByCustomer(ctx context.Context, customerID uint) ([]*models.Device, error) {
	filter := models.DeviceFilter{CustomerID: &customerID}
	return r.ByFilter(ctx, filter, "created_at ASC", 0, 0)
}

// SetActive toggles a device on or off
func (r *DeviceRepositoryImpl) SetActive(ctx context.Context, deviceID uint, isActive bool) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Model(&models.Device{}).
		Where("id = ?", deviceID).
		Updates(map[string]any{
			"is_active":  isActive,
			"updated_at": utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update device active state: %w", err)
	}

	return nil
}

// ByFilter retrieves devices based on filter criteria
func (r *DeviceRepositoryImpl) ByFilter(ctx context.Context, filter models.DeviceFilter, orderBy string, limit, offset int) ([]*models.Device, error) {
	db := r.getDB(ctx)

	var devices []*models.Device
	query := r.applyFilter(db, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&devices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find devices by filter: %w", err)
	}

	return devices, nil
}

// Count returns the number of devices matching the filter
func (r *DeviceRepositoryImpl) Count(ctx context.Context, filter models.DeviceFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Device{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}

	return count, nil
}

// Exists checks if any device matching the filter exists
func (r *DeviceRepositoryImpl) Exists(ctx context.Context, filter models.DeviceFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *DeviceRepositoryImpl) applyFilter(db *gorm.DB, filter models.DeviceFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.CustomerID != nil {
		db = db.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.IsActive != nil {
		db = db.Where("is_active = ?", *filter.IsActive)
	}
	return db
}
