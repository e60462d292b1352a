package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Susanoo/models"
	"gorm.io/gorm"
)

// QueueItemRepositoryImpl implements QueueItemRepository
type QueueItemRepositoryImpl struct {
	*BaseRepository[models.QueueItem, models.QueueItemFilter]
}

// NewQueueItemRepository creates a new queue item repository instance
func NewQueueItemRepository(db *gorm.DB) QueueItemRepository {
	return &QueueItemRepositoryImpl{
		BaseRepository: NewBaseRepository[models.QueueItem, models.QueueItemFilter](db),
	}
}

// ClaimNext atomically claims the oldest pending item and moves it to sending.
// The FOR UPDATE SKIP LOCKED subselect lets concurrent dispatchers claim
// disjoint rows without blocking on each other.
func (r *QueueItemRepositoryImpl) ClaimNext(ctx context.Context, now time.Time) (*models.QueueItem, error) {
	db := r.getDB(ctx)

	var item models.QueueItem
	err := db.Raw(`
		UPDATE queue_items
		SET status = ?, started_at = ?
		WHERE id = (
			SELECT id FROM queue_items
			WHERE status = ?
			ORDER BY priority ASC, created_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		models.QueueStatusSending, now, models.QueueStatusPending,
	).Scan(&item).Error
	if err != nil {
		return nil, fmt.Errorf("failed to claim next queue item: %w", err)
	}
	if item.ID == 0 {
		return nil, nil
	}

	return &item, nil
}

// Finalize moves a sending item to a terminal status. The transition is
// conditional on the row still being in sending; a zero row count means a
// sweeper already requeued or escalated it and the caller's result is dropped.
func (r *QueueItemRepositoryImpl) Finalize(ctx context.Context, itemID uint, status models.QueueStatus, sendErr *string, now time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("cannot finalize queue item to non-terminal status %s", status)
	}

	db := r.getDB(ctx)

	res := db.Model(&models.QueueItem{}).
		Where("id = ? AND status = ?", itemID, models.QueueStatusSending).
		Updates(map[string]any{
			"status":       status,
			"error":        sendErr,
			"completed_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to finalize queue item %d: %w", itemID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotClaimed
	}

	return nil
}

// SweepStale recovers sending rows abandoned by a crashed dispatcher. Rows
// under the requeue cap go back to pending with the counter bumped; rows at
// the cap are escalated to error so a poison message cannot cycle forever.
func (r *QueueItemRepositoryImpl) SweepStale(ctx context.Context, now time.Time, threshold time.Duration, maxRequeues int) (int64, []*models.QueueItem, error) {
	var requeued int64
	var escalated []*models.QueueItem

	err := WithTransaction(ctx, r.DB, func(txCtx context.Context) error {
		db := txCtx.Value(TxContextKey).(*gorm.DB)
		cutoff := now.Add(-threshold)

		staleErr := "abandoned mid-send and exceeded requeue limit"
		if err := db.Raw(`
			UPDATE queue_items
			SET status = ?, error = ?, completed_at = ?
			WHERE status = ? AND started_at < ? AND stale_requeues >= ?
			RETURNING *`,
			models.QueueStatusError, staleErr, now,
			models.QueueStatusSending, cutoff, maxRequeues,
		).Scan(&escalated).Error; err != nil {
			return fmt.Errorf("failed to escalate stale queue items: %w", err)
		}

		res := db.Exec(`
			UPDATE queue_items
			SET status = ?, started_at = NULL, stale_requeues = stale_requeues + 1
			WHERE status = ? AND started_at < ?`,
			models.QueueStatusPending,
			models.QueueStatusSending, cutoff,
		)
		if res.Error != nil {
			return fmt.Errorf("failed to requeue stale queue items: %w", res.Error)
		}
		requeued = res.RowsAffected

		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	return requeued, escalated, nil
}

// CountsByStatus returns queue depth per status, optionally scoped to one customer
func (r *QueueItemRepositoryImpl) CountsByStatus(ctx context.Context, customerID *uint) (map[models.QueueStatus]int64, error) {
	db := r.getDB(ctx)

	type row struct {
		Status models.QueueStatus
		Total  int64
	}
	var rows []row

	query := db.Model(&models.QueueItem{}).
		Select("status, COUNT(*) AS total").
		Group("status")
	if customerID != nil {
		query = query.Where("customer_id = ?", *customerID)
	}

	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count queue items by status: %w", err)
	}

	counts := map[models.QueueStatus]int64{
		models.QueueStatusPending: 0,
		models.QueueStatusSending: 0,
		models.QueueStatusSent:    0,
		models.QueueStatusError:   0,
	}
	for _, r := range rows {
		counts[r.Status] = r.Total
	}

	return counts, nil
}

// DeleteTerminal removes the customer's terminal rows in the given statuses.
// Pending and sending rows are never deleted through this path.
func (r *QueueItemRepositoryImpl) DeleteTerminal(ctx context.Context, customerID uint, statuses []models.QueueStatus) (int64, error) {
	for _, s := range statuses {
		if !s.IsTerminal() {
			return 0, fmt.Errorf("cannot delete queue items in non-terminal status %s", s)
		}
	}
	if len(statuses) == 0 {
		statuses = []models.QueueStatus{models.QueueStatusSent, models.QueueStatusError}
	}

	db := r.getDB(ctx)

	res := db.Where("customer_id = ? AND status IN ?", customerID, statuses).
		Delete(&models.QueueItem{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete terminal queue items: %w", res.Error)
	}

	return res.RowsAffected, nil
}

// ByFilter retrieves queue items based on filter criteria
func (r *QueueItemRepositoryImpl) ByFilter(ctx context.Context, filter models.QueueItemFilter, orderBy string, limit, offset int) ([]*models.QueueItem, error) {
	db := r.getDB(ctx)

	var items []*models.QueueItem
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

	err := query.Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find queue items by filter: %w", err)
	}

	return items, nil
}

// Count returns the number of queue items matching the filter
func (r *QueueItemRepositoryImpl) Count(ctx context.Context, filter models.QueueItemFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.QueueItem{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count queue items: %w", err)
	}

	return count, nil
}

// Exists checks if any queue item matching the filter exists
func (r *QueueItemRepositoryImpl) Exists(ctx context.Context, filter models.QueueItemFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *QueueItemRepositoryImpl) applyFilter(db *gorm.DB, filter models.QueueItemFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CustomerID != nil {
		db = db.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.ScheduleID != nil {
		db = db.Where("schedule_id = ?", *filter.ScheduleID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.ExecutionBatch != nil {
		db = db.Where("execution_batch = ?", *filter.ExecutionBatch)
	}
	if filter.GroupID != nil {
		db = db.Where("group_id = ?", *filter.GroupID)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return db
}
