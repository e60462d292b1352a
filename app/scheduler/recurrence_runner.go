package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/repository"
	"github.com/amirphl/Susanoo/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RecurrenceRunner claims due schedules and expands each into one pending
// queue item per target group. The claim marker partitions work between
// concurrent runners; a marker left behind by a crash becomes reclaimable
// after the stale threshold.
type RecurrenceRunner struct {
	scheduleRepo repository.MessageScheduleRepository
	queueRepo    repository.QueueItemRepository
	campaignRepo repository.CampaignRepository
	deviceRepo   repository.DeviceRepository
	db           *gorm.DB
	logger       *log.Logger

	tick       time.Duration
	staleAfter time.Duration
	claimLimit int

	logSink io.Closer
}

func NewRecurrenceRunner(
	scheduleRepo repository.MessageScheduleRepository,
	queueRepo repository.QueueItemRepository,
	campaignRepo repository.CampaignRepository,
	deviceRepo repository.DeviceRepository,
	db *gorm.DB,
	logCfg config.LoggingConfig,
	dispatcherCfg config.DispatcherConfig,
) *RecurrenceRunner {
	tick := dispatcherCfg.RecurrenceTick
	if tick <= 0 {
		tick = utils.DefaultRecurrenceTick
	}

	r := &RecurrenceRunner{
		scheduleRepo: scheduleRepo,
		queueRepo:    queueRepo,
		campaignRepo: campaignRepo,
		deviceRepo:   deviceRepo,
		db:           db,
		tick:         tick,
		staleAfter:   utils.DefaultStaleClaimThreshold,
		claimLimit:   50,
	}
	r.logger = newWorkerLogger("recurrence ", logCfg, &r.logSink)

	return r
}

// Start launches the runner loop in a background goroutine and returns a stop function
func (r *RecurrenceRunner) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(r.tick)
		defer ticker.Stop()

		r.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.runOnce(ctx)
			}
		}
	}()

	return func() {
		cancel()
		if r.logSink != nil {
			r.logSink.Close()
		}
	}
}

// runOnce claims one batch of due schedules and expands them, returning the
// counts of schedules processed and failed.
func (r *RecurrenceRunner) runOnce(ctx context.Context) (processed, failed int) {
	now := utils.UTCNow()

	claimed, err := r.scheduleRepo.ClaimDue(ctx, now, r.staleAfter, r.claimLimit)
	if err != nil {
		r.logger.Printf("recurrence: claim due schedules failed: %v", err)
		return 0, 0
	}
	if len(claimed) == 0 {
		return 0, 0
	}
	r.logger.Printf("recurrence: claimed %d due schedules", len(claimed))

	for _, sched := range claimed {
		if err := ctx.Err(); err != nil {
			return processed, failed
		}
		if err := r.processSchedule(ctx, sched, now); err != nil {
			failed++
			r.logger.Printf("recurrence: process schedule id=%d failed: %v", sched.ID, err)
			if relErr := r.scheduleRepo.ReleaseClaim(ctx, sched.ID); relErr != nil {
				r.logger.Printf("recurrence: release claim for schedule id=%d failed: %v", sched.ID, relErr)
			}
		} else {
			processed++
		}
	}

	return processed, failed
}

// processSchedule expands one claimed schedule. The queue rows and the
// schedule bookkeeping commit in the same transaction, so a crash mid-run
// leaves either a reclaimable untouched schedule or a fully recorded run,
// never a half-expanded one.
func (r *RecurrenceRunner) processSchedule(ctx context.Context, sched *models.MessageSchedule, now time.Time) error {
	nextDue := sched.NextRunAfterExecution(now)
	deactivate := nextDue == nil

	// A suppressed campaign skips delivery without recording a run, so the
	// schedule keeps its due time and fires as soon as the campaign is
	// reactivated. One-offs in particular must not be consumed unsent.
	groups, suppressed, err := r.resolveGroups(ctx, sched)
	if err != nil {
		return err
	}
	if suppressed {
		r.logger.Printf("recurrence: schedule id=%d suppressed by inactive campaign, releasing claim", sched.ID)
		return r.scheduleRepo.ReleaseClaim(ctx, sched.ID)
	}

	if len(groups) == 0 {
		r.logger.Printf("recurrence: schedule id=%d has no target groups, deactivating", sched.ID)
		return r.scheduleRepo.FinishRun(ctx, sched.ID, now, nil, true)
	}

	device, err := r.deviceRepo.ByID(ctx, sched.DeviceID)
	if err != nil {
		return fmt.Errorf("load device id=%d: %w", sched.DeviceID, err)
	}
	if device == nil || !utils.IsTrue(device.IsActive) {
		r.logger.Printf("recurrence: schedule id=%d device id=%d missing or disabled, skipping run", sched.ID, sched.DeviceID)
		return r.scheduleRepo.FinishRun(ctx, sched.ID, now, nextDue, deactivate)
	}

	batch := uuid.New()
	items := make([]*models.QueueItem, 0, len(groups))
	for _, groupID := range groups {
		items = append(items, &models.QueueItem{
			CustomerID:     sched.CustomerID,
			ScheduleID:     &sched.ID,
			GroupID:        groupID,
			DeviceAPIURL:   device.APIURL,
			DeviceToken:    device.Token,
			InstanceLabel:  device.Label,
			MessageType:    sched.MessageType,
			Payload:        sched.Payload,
			Status:         models.QueueStatusPending,
			Priority:       utils.DefaultQueuePriority,
			ExecutionBatch: batch,
		})
	}

	err = repository.WithTransaction(ctx, r.db, func(txCtx context.Context) error {
		if err := r.queueRepo.SaveBatch(txCtx, items); err != nil {
			return err
		}
		return r.scheduleRepo.FinishRun(txCtx, sched.ID, now, nextDue, deactivate)
	})
	if err != nil {
		return err
	}

	schedulesExpandedTotal.Inc()
	queueItemsEnqueuedTotal.Add(float64(len(items)))
	r.logger.Printf("recurrence: schedule id=%d expanded into %d items batch=%s", sched.ID, len(items), batch)

	return nil
}

// resolveGroups returns the target group list for a schedule. A campaign with
// its own group list overrides the schedule's list; an inactive or missing
// campaign suppresses the run entirely.
func (r *RecurrenceRunner) resolveGroups(ctx context.Context, sched *models.MessageSchedule) ([]string, bool, error) {
	if sched.CampaignID == nil {
		return sched.GroupIDs, false, nil
	}

	campaign, err := r.campaignRepo.ByID(ctx, *sched.CampaignID)
	if err != nil {
		return nil, false, fmt.Errorf("load campaign id=%d: %w", *sched.CampaignID, err)
	}
	if campaign == nil || !utils.IsTrue(campaign.IsActive) {
		return nil, true, nil
	}
	if len(campaign.GroupIDs) > 0 {
		return campaign.GroupIDs, false, nil
	}
	return sched.GroupIDs, false, nil
}
