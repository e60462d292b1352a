// Package scheduler hosts the background workers: the queue dispatcher, the
// recurrence runner and the stale-claim sweeper.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/repository"
	"github.com/amirphl/Susanoo/utils"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

// Dispatcher drains the delivery queue one item at a time, pausing between
// sends so the gateway account is not flagged for burst traffic. A single
// dispatcher goroutine runs per process; cross-process safety comes from the
// claim being an atomic row transition, not from any in-process lock.
type Dispatcher struct {
	queueRepo    repository.QueueItemRepository
	outcomeRepo  repository.DeliveryOutcomeRepository
	settingsRepo repository.DispatchSettingsRepository
	gateway      GatewayClient
	db           *gorm.DB
	logger       *log.Logger

	tick          time.Duration
	sweepInterval time.Duration

	logSink io.Closer
}

func NewDispatcher(
	queueRepo repository.QueueItemRepository,
	outcomeRepo repository.DeliveryOutcomeRepository,
	settingsRepo repository.DispatchSettingsRepository,
	gateway GatewayClient,
	db *gorm.DB,
	logCfg config.LoggingConfig,
	dispatcherCfg config.DispatcherConfig,
) *Dispatcher {
	tick := dispatcherCfg.DispatchTick
	if tick <= 0 {
		tick = 5 * time.Second
	}
	sweepInterval := dispatcherCfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = utils.DefaultSweepInterval
	}

	d := &Dispatcher{
		queueRepo:     queueRepo,
		outcomeRepo:   outcomeRepo,
		settingsRepo:  settingsRepo,
		gateway:       gateway,
		db:            db,
		tick:          tick,
		sweepInterval: sweepInterval,
	}
	d.logger = newWorkerLogger("dispatcher ", logCfg, &d.logSink)

	return d
}

// newWorkerLogger builds a logger writing to stdout and a rotating file. The
// returned logger always works; when the file sink cannot be configured it
// degrades to stdout only.
func newWorkerLogger(prefix string, cfg config.LoggingConfig, sink *io.Closer) *log.Logger {
	flags := log.LstdFlags | log.Lmicroseconds | log.LUTC
	if cfg.Output == "stdout" || cfg.FilePath == "" {
		return log.New(os.Stdout, prefix, flags)
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	*sink = rotator

	if cfg.Output == "file" {
		return log.New(rotator, prefix, flags)
	}
	return log.New(io.MultiWriter(os.Stdout, rotator), prefix, flags)
}

// Start launches the dispatch loop and the sweep worker in background
// goroutines and returns a stop function
func (d *Dispatcher) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(d.tick)
		defer ticker.Stop()

		d.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.runOnce(ctx)
			}
		}
	}()

	go d.startSweepWorker(ctx)

	return func() {
		cancel()
		if d.logSink != nil {
			d.logSink.Close()
		}
	}
}

func (d *Dispatcher) runOnce(ctx context.Context) {
	settings, err := d.settingsRepo.Get(ctx)
	if err != nil {
		d.logger.Printf("dispatcher: load settings failed: %v", err)
		settings = models.DefaultDispatchSettings()
	}

	sent, failed, err := d.RunBatch(ctx, settings)
	if err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Printf("dispatcher: batch aborted after %d sent, %d failed: %v", sent, failed, err)
	}
}

// RunBatch claims and sends up to settings.BatchCap items, pausing the
// configured delay between consecutive sends. Gateway failures finalize the
// item as error and the batch continues; store failures abort the batch since
// nothing further can be persisted. Returns the counts of successfully sent
// and failed items.
func (d *Dispatcher) RunBatch(ctx context.Context, settings *models.DispatchSettings) (processed, failed int, err error) {
	delay := settings.InterMessageDelay()

	for processed+failed < settings.BatchCap {
		if processed+failed > 0 && delay > 0 {
			if err := sleepCtx(ctx, delay); err != nil {
				return processed, failed, err
			}
		}
		if err := ctx.Err(); err != nil {
			return processed, failed, err
		}

		item, err := d.queueRepo.ClaimNext(ctx, utils.UTCNow())
		if err != nil {
			return processed, failed, fmt.Errorf("claim next: %w", err)
		}
		if item == nil {
			return processed, failed, nil
		}

		sendErr := d.gateway.Send(ctx, SendRequest{
			APIURL:      item.DeviceAPIURL,
			Token:       item.DeviceToken,
			GroupID:     item.GroupID,
			MessageType: item.MessageType,
			Payload:     item.Payload,
		})

		// The item is already claimed, so its terminal state must be
		// persisted even when the batch context was cancelled mid-send.
		if err := d.finalize(context.WithoutCancel(ctx), item, sendErr); err != nil {
			return processed, failed, err
		}

		if sendErr != nil {
			failed++
			d.logger.Printf("dispatcher: send failed for item id=%d group=%s type=%s: %v",
				item.ID, item.GroupID, item.MessageType, sendErr)
		} else {
			processed++
		}
	}

	return processed, failed, nil
}

// finalize moves the claimed item to its terminal status and appends the
// delivery outcome in one transaction
func (d *Dispatcher) finalize(ctx context.Context, item *models.QueueItem, sendErr error) error {
	status := models.QueueStatusSent
	outcomeStatus := models.OutcomeStatusSent
	var errMsg *string
	if sendErr != nil {
		status = models.QueueStatusError
		outcomeStatus = models.OutcomeStatusError
		errMsg = utils.ToPtr(sendErr.Error())
	}

	now := utils.UTCNow()
	err := repository.WithTransaction(ctx, d.db, func(txCtx context.Context) error {
		if err := d.queueRepo.Finalize(txCtx, item.ID, status, errMsg, now); err != nil {
			return err
		}
		return d.outcomeRepo.Save(txCtx, &models.DeliveryOutcome{
			CustomerID:     item.CustomerID,
			ScheduleID:     item.ScheduleID,
			ExecutionBatch: item.ExecutionBatch,
			GroupID:        item.GroupID,
			MessageType:    item.MessageType,
			Payload:        item.Payload,
			Status:         outcomeStatus,
			Error:          errMsg,
			InstanceLabel:  item.InstanceLabel,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotClaimed) {
			// A sweeper requeued the row mid-send; its next attempt owns the result.
			d.logger.Printf("dispatcher: item id=%d was reclaimed before finalize, dropping result", item.ID)
			return nil
		}
		return fmt.Errorf("finalize item id=%d: %w", item.ID, err)
	}

	deliveriesTotal.WithLabelValues(status.String(), item.MessageType.String()).Inc()
	return nil
}

// startSweepWorker periodically recovers abandoned sending rows and refreshes
// the queue depth gauge
func (d *Dispatcher) startSweepWorker(ctx context.Context) {
	ticker := time.NewTicker(d.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweepOnce(ctx)
		}
	}
}

func (d *Dispatcher) sweepOnce(ctx context.Context) {
	settings, err := d.settingsRepo.Get(ctx)
	if err != nil {
		d.logger.Printf("sweeper: load settings failed: %v", err)
		settings = models.DefaultDispatchSettings()
	}

	now := utils.UTCNow()
	requeued, escalated, err := d.queueRepo.SweepStale(ctx, now, settings.StaleClaimThreshold(), utils.MaxStaleRequeues)
	if err != nil {
		d.logger.Printf("sweeper: sweep failed: %v", err)
		return
	}

	if requeued > 0 {
		staleRequeuesTotal.Add(float64(requeued))
		d.logger.Printf("sweeper: requeued %d stale sending items", requeued)
	}

	for _, item := range escalated {
		staleEscalationsTotal.Inc()
		if err := d.outcomeRepo.Save(ctx, &models.DeliveryOutcome{
			CustomerID:     item.CustomerID,
			ScheduleID:     item.ScheduleID,
			ExecutionBatch: item.ExecutionBatch,
			GroupID:        item.GroupID,
			MessageType:    item.MessageType,
			Payload:        item.Payload,
			Status:         models.OutcomeStatusError,
			Error:          item.Error,
			InstanceLabel:  item.InstanceLabel,
		}); err != nil {
			d.logger.Printf("sweeper: record escalation outcome for item id=%d failed: %v", item.ID, err)
		}
	}
	if len(escalated) > 0 {
		d.logger.Printf("sweeper: escalated %d poisoned items to error", len(escalated))
	}

	counts, err := d.queueRepo.CountsByStatus(ctx, nil)
	if err != nil {
		d.logger.Printf("sweeper: refresh queue depth failed: %v", err)
		return
	}
	for status, count := range counts {
		queueDepth.WithLabelValues(status.String()).Set(float64(count))
	}
}

// sleepCtx waits for d or returns early with the context error
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
