package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/utils"
	"gorm.io/gorm"
)

// MessageScheduleRepositoryImpl implements MessageScheduleRepository
type MessageScheduleRepositoryImpl struct {
	*BaseRepository[models.MessageSchedule, models.MessageScheduleFilter]
}

// NewMessageScheduleRepository creates a new message schedule repository instance
func NewMessageScheduleRepository(db *gorm.DB) MessageScheduleRepository {
	return &MessageScheduleRepositoryImpl{
		BaseRepository: NewBaseRepository[models.MessageSchedule, models.MessageScheduleFilter](db),
	}
}

// ByUUID retrieves a schedule by its UUID
func (r *MessageScheduleRepositoryImpl) ByUUID(ctx context.Context, uuidStr string) (*models.MessageSchedule, error) {
	db := r.getDB(ctx)

	var schedule models.MessageSchedule
	err := db.Where("uuid = ?", uuidStr).
		Preload("Customer").
		Preload("Campaign").
		Preload("Device").
		Last(&schedule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find schedule by UUID %s: %w", uuidStr, err)
	}

	return &schedule, nil
}

// ListByCustomer retrieves schedules owned by the given customer
func (r *MessageScheduleRepositoryImpl) ListByCustomer(ctx context.Context, customerID uint, limit, offset int) ([]*models.MessageSchedule, error) {
	filter := models.MessageScheduleFilter{CustomerID: &customerID}
	return r.ByFilter(ctx, filter, "created_at DESC", limit, offset)
}

// ClaimDue atomically claims due schedules for processing. The FOR UPDATE
// SKIP LOCKED subselect makes concurrent runners partition the due set into
// disjoint claims instead of both expanding the same schedules.
func (r *MessageScheduleRepositoryImpl) ClaimDue(ctx context.Context, now time.Time, staleAfter time.Duration, limit int) ([]*models.MessageSchedule, error) {
	db := r.getDB(ctx)

	staleCutoff := now.Add(-staleAfter)

	var claimed []*models.MessageSchedule
	err := db.Raw(`
		UPDATE message_schedules
		SET processing_started_at = ?
		WHERE id IN (
			SELECT id FROM message_schedules
			WHERE is_active = ?
			  AND next_due_at IS NOT NULL AND next_due_at <= ?
			  AND (processing_started_at IS NULL OR processing_started_at < ?)
			ORDER BY next_due_at ASC
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		now, true, now, staleCutoff, limit,
	).Scan(&claimed).Error
	if err != nil {
		return nil, fmt.Errorf("failed to claim due schedules: %w", err)
	}

	return claimed, nil
}

// FinishRun records a completed expansion and clears the claim marker
func (r *MessageScheduleRepositoryImpl) FinishRun(ctx context.Context, scheduleID uint, runTime time.Time, nextDue *time.Time, deactivate bool) error {
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

	updates := map[string]any{
		"last_run_at":           runTime,
		"next_due_at":           nextDue,
		"processing_started_at": nil,
		"updated_at":            utils.UTCNow(),
	}
	if deactivate {
		updates["is_active"] = false
	}

	err = db.Model(&models.MessageSchedule{}).
		Where("id = ?", scheduleID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to finish schedule run: %w", err)
	}

	return nil
}

// ReleaseClaim clears the claim marker without recording a run
func (r *MessageScheduleRepositoryImpl) ReleaseClaim(ctx context.Context, scheduleID uint) error {
	db := r.getDB(ctx)

	err := db.Model(&models.MessageSchedule{}).
		Where("id = ?", scheduleID).
		Updates(map[string]any{
			"processing_started_at": nil,
			"updated_at":            utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to release schedule claim: %w", err)
	}

	return nil
}

// SetActive toggles a schedule and rewrites its due time. Deactivation clears
// next_due_at so the runner's due query never sees the row; reactivation must
// supply the recomputed occurrence.
func (r *MessageScheduleRepositoryImpl) SetActive(ctx context.Context, scheduleID uint, isActive bool, nextDue *time.Time) error {
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

	err = db.Model(&models.MessageSchedule{}).
		Where("id = ?", scheduleID).
		Updates(map[string]any{
			"is_active":   isActive,
			"next_due_at": nextDue,
			"updated_at":  utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update schedule active state: %w", err)
	}

	return nil
}

// ByFilter retrieves schedules based on filter criteria
func (r *MessageScheduleRepositoryImpl) ByFilter(ctx context.Context, filter models.MessageScheduleFilter, orderBy string, limit, offset int) ([]*models.MessageSchedule, error) {
	db := r.getDB(ctx)

	var schedules []*models.MessageSchedule
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

	query = query.Preload("Campaign").Preload("Device")

	err := query.Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find schedules by filter: %w", err)
	}

	return schedules, nil
}

// Count returns the number of schedules matching the filter
func (r *MessageScheduleRepositoryImpl) Count(ctx context.Context, filter models.MessageScheduleFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.MessageSchedule{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count schedules: %w", err)
	}

	return count, nil
}

// Exists checks if any schedule matching the filter exists
func (r *MessageScheduleRepositoryImpl) Exists(ctx context.Context, filter models.MessageScheduleFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *MessageScheduleRepositoryImpl) applyFilter(db *gorm.DB, filter models.MessageScheduleFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.CustomerID != nil {
		db = db.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.Recurrence != nil {
		db = db.Where("recurrence = ?", *filter.Recurrence)
	}
	if filter.IsActive != nil {
		db = db.Where("is_active = ?", *filter.IsActive)
	}
	if filter.DueBefore != nil {
		db = db.Where("next_due_at IS NOT NULL AND next_due_at <= ?", *filter.DueBefore)
	}
	return db
}
