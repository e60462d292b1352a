// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/Susanoo/models"
	"github.com/google/uuid"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// CustomerRepository defines operations for customers
type CustomerRepository interface {
	Repository[models.Customer, models.CustomerFilter]
	ByEmail(ctx context.Context, email string) (*models.Customer, error)
	ByUUID(ctx context.Context, uuid string) (*models.Customer, error)
}

// DeviceRepository defines operations for gateway devices
type DeviceRepository interface {
	Repository[models.Device, models.DeviceFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Device, error)
	ListByCustomer(ctx context.Context, customerID uint) ([]*models.Device, error)
	SetActive(ctx context.Context, deviceID uint, isActive bool) error
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	ListByCustomer(ctx context.Context, customerID uint, limit, offset int) ([]*models.Campaign, error)
	SetActive(ctx context.Context, campaignID uint, isActive bool) error
}

// MessageScheduleRepository defines operations for message schedules,
// including the atomic claim used by the recurrence runner
type MessageScheduleRepository interface {
	Repository[models.MessageSchedule, models.MessageScheduleFilter]
	ByUUID(ctx context.Context, uuid string) (*models.MessageSchedule, error)
	ListByCustomer(ctx context.Context, customerID uint, limit, offset int) ([]*models.MessageSchedule, error)

	// ClaimDue atomically marks due, unclaimed schedules as being processed
	// and returns the claimed rows. A schedule whose claim marker is older
	// than staleAfter counts as unclaimed.
	ClaimDue(ctx context.Context, now time.Time, staleAfter time.Duration, limit int) ([]*models.MessageSchedule, error)

	// FinishRun records a completed expansion: stamps last_run_at, writes the
	// recomputed next due time (nil deactivates one-offs), and clears the
	// claim marker.
	FinishRun(ctx context.Context, scheduleID uint, runTime time.Time, nextDue *time.Time, deactivate bool) error

	// ReleaseClaim clears the claim marker without recording a run, used when
	// expansion fails before any queue rows are written.
	ReleaseClaim(ctx context.Context, scheduleID uint) error

	SetActive(ctx context.Context, scheduleID uint, isActive bool, nextDue *time.Time) error
}

// QueueItemRepository defines operations for the delivery queue,
// including the single-claimer dequeue used by the dispatcher
type QueueItemRepository interface {
	Repository[models.QueueItem, models.QueueItemFilter]

	// ClaimNext atomically claims the oldest pending item (priority, then
	// insertion order) and moves it to sending. Returns nil when the queue
	// has no pending work.
	ClaimNext(ctx context.Context, now time.Time) (*models.QueueItem, error)

	// Finalize moves a sending item to its terminal status. Returns
	// ErrNotClaimed if the row is no longer in sending, which means a
	// sweeper or operator got to it first.
	Finalize(ctx context.Context, itemID uint, status models.QueueStatus, sendErr *string, now time.Time) error

	// SweepStale requeues sending rows whose claim is older than threshold
	// and escalates rows that have already been requeued maxRequeues times.
	// Returns the number requeued and the rows escalated to error.
	SweepStale(ctx context.Context, now time.Time, threshold time.Duration, maxRequeues int) (int64, []*models.QueueItem, error)

	CountsByStatus(ctx context.Context, customerID *uint) (map[models.QueueStatus]int64, error)
	DeleteTerminal(ctx context.Context, customerID uint, statuses []models.QueueStatus) (int64, error)
}

// DeliveryOutcomeRepository defines operations for the append-only outcome log
type DeliveryOutcomeRepository interface {
	Repository[models.DeliveryOutcome, models.DeliveryOutcomeFilter]
	ListByBatch(ctx context.Context, batch uuid.UUID) ([]*models.DeliveryOutcome, error)
	CountsByStatus(ctx context.Context, customerID uint, since *time.Time) (map[models.OutcomeStatus]int64, error)
}

// DispatchSettingsRepository defines operations for the dispatcher settings singleton
type DispatchSettingsRepository interface {
	// Get returns the singleton row, inserting defaults on first read.
	Get(ctx context.Context) (*models.DispatchSettings, error)
	Update(ctx context.Context, settings *models.DispatchSettings) error
}
