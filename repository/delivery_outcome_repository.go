package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Susanoo/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryOutcomeRepositoryImpl implements DeliveryOutcomeRepository
type DeliveryOutcomeRepositoryImpl struct {
	*BaseRepository[models.DeliveryOutcome, models.DeliveryOutcomeFilter]
}

// NewDeliveryOutcomeRepository creates a new delivery outcome repository instance
func NewDeliveryOutcomeRepository(db *gorm.DB) DeliveryOutcomeRepository {
	return &DeliveryOutcomeRepositoryImpl{
		BaseRepository: NewBaseRepository[models.DeliveryOutcome, models.DeliveryOutcomeFilter](db),
	}
}

// ListByBatch retrieves all outcomes written for one execution batch
func (r *DeliveryOutcomeRepositoryImpl) ListByBatch(ctx context.Context, batch uuid.UUID) ([]*models.DeliveryOutcome, error) {
	filter := models.DeliveryOutcomeFilter{ExecutionBatch: &batch}
	return r.ByFilter(ctx, filter, "created_at ASC", 0, 0)
}

// CountsByStatus returns per-status outcome totals for a customer, optionally
// restricted to outcomes written at or after since
func (r *DeliveryOutcomeRepositoryImpl) CountsByStatus(ctx context.Context, customerID uint, since *time.Time) (map[models.OutcomeStatus]int64, error) {
	db := r.getDB(ctx)

	type row struct {
		Status models.OutcomeStatus
		Total  int64
	}
	var rows []row

	query := db.Model(&models.DeliveryOutcome{}).
		Select("status, COUNT(*) AS total").
		Where("customer_id = ?", customerID).
		Group("status")
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}

	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count outcomes by status: %w", err)
	}

	counts := map[models.OutcomeStatus]int64{
		models.OutcomeStatusSent:  0,
		models.OutcomeStatusError: 0,
	}
	for _, r := range rows {
		counts[r.Status] = r.Total
	}

	return counts, nil
}

// ByFilter retrieves outcomes based on filter criteria
func (r *DeliveryOutcomeRepositoryImpl) ByFilter(ctx context.Context, filter models.DeliveryOutcomeFilter, orderBy string, limit, offset int) ([]*models.DeliveryOutcome, error) {
	db := r.getDB(ctx)

	var outcomes []*models.DeliveryOutcome
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

	err := query.Find(&outcomes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find outcomes by filter: %w", err)
	}

	return outcomes, nil
}

// Count returns the number of outcomes matching the filter
func (r *DeliveryOutcomeRepositoryImpl) Count(ctx context.Context, filter models.DeliveryOutcomeFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.DeliveryOutcome{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count outcomes: %w", err)
	}

	return count, nil
}

// Exists checks if any outcome matching the filter exists
func (r *DeliveryOutcomeRepositoryImpl) Exists(ctx context.Context, filter models.DeliveryOutcomeFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *DeliveryOutcomeRepositoryImpl) applyFilter(db *gorm.DB, filter models.DeliveryOutcomeFilter) *gorm.DB {
	if filter.CustomerID != nil {
		db = db.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.ScheduleID != nil {
		db = db.Where("schedule_id = ?", *filter.ScheduleID)
	}
	if filter.ExecutionBatch != nil {
		db = db.Where("execution_batch = ?", *filter.ExecutionBatch)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return db
}
