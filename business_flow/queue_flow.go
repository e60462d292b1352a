// Package businessflow contains the core business logic and use cases for queue management workflows
package businessflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/amirphl/Susanoo/app/dto"
	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/repository"
	"github.com/amirphl/Susanoo/utils"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// QueueFlow handles the queue inspection and recovery business logic
type QueueFlow interface {
	QueueStatus(ctx context.Context, req *dto.QueueStatusRequest, metadata *ClientMetadata) (*dto.QueueStatusResponse, error)
	ListQueueItems(ctx context.Context, req *dto.ListQueueItemsRequest, metadata *ClientMetadata) (*dto.ListQueueItemsResponse, error)
	RequeueItem(ctx context.Context, req *dto.RequeueItemRequest, metadata *ClientMetadata) (*dto.RequeueItemResponse, error)
	ClearQueue(ctx context.Context, req *dto.ClearQueueRequest, metadata *ClientMetadata) (*dto.ClearQueueResponse, error)
	ListOutcomes(ctx context.Context, req *dto.ListOutcomesRequest, metadata *ClientMetadata) (*dto.ListOutcomesResponse, error)
	GetDispatchSettings(ctx context.Context, metadata *ClientMetadata) (*dto.GetDispatchSettingsResponse, error)
	UpdateDispatchSettings(ctx context.Context, req *dto.UpdateDispatchSettingsRequest, metadata *ClientMetadata) (*dto.UpdateDispatchSettingsResponse, error)
}

// QueueFlowImpl implements the queue business flow
type QueueFlowImpl struct {
	queueRepo    repository.QueueItemRepository
	outcomeRepo  repository.DeliveryOutcomeRepository
	settingsRepo repository.DispatchSettingsRepository
	customerRepo repository.CustomerRepository
	cacheConfig  *config.CacheConfig
	rc           *redis.Client
	db           *gorm.DB
}

// NewQueueFlow creates a new queue flow instance
func NewQueueFlow(
	queueRepo repository.QueueItemRepository,
	outcomeRepo repository.DeliveryOutcomeRepository,
	settingsRepo repository.DispatchSettingsRepository,
	customerRepo repository.CustomerRepository,
	db *gorm.DB,
	rc *redis.Client,
	cacheConfig *config.CacheConfig,
) QueueFlow {
	return &QueueFlowImpl{
		queueRepo:    queueRepo,
		outcomeRepo:  outcomeRepo,
		settingsRepo: settingsRepo,
		customerRepo: customerRepo,
		cacheConfig:  cacheConfig,
		rc:           rc,
		db:           db,
	}
}

// QueueStatus returns per-status queue depth for the customer. Counts are
// cached briefly in redis since dashboards poll this endpoint aggressively.
func (s *QueueFlowImpl) QueueStatus(ctx context.Context, req *dto.QueueStatusRequest, metadata *ClientMetadata) (*dto.QueueStatusResponse, error) {
	customer, err := getActiveCustomer(ctx, s.customerRepo, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}

	cacheKey := ""
	if s.rc != nil && s.cacheConfig != nil && s.cacheConfig.Enabled {
		cacheKey = redisKey(*s.cacheConfig, fmt.Sprintf("%s%d", utils.QueueStatusCacheKeyPrefix, customer.ID))
		if bs, err := s.rc.Get(ctx, cacheKey).Bytes(); err == nil && len(bs) > 0 {
			var counts map[string]int64
			if err := json.Unmarshal(bs, &counts); err == nil {
				return &dto.QueueStatusResponse{
					Message: "Queue status retrieved from cache",
					Counts:  counts,
				}, nil
			}
		}
	}

	counts, err := s.queueRepo.CountsByStatus(ctx, &customer.ID)
	if err != nil {
		return nil, NewBusinessError("QUEUE_STATUS_FAILED", "Failed to count queue items", err)
	}

	out := make(map[string]int64, len(counts))
	for status, count := range counts {
		out[status.String()] = count
	}

	if cacheKey != "" {
		if bs, err := json.Marshal(out); err == nil {
			_ = s.rc.Set(ctx, cacheKey, bs, utils.QueueStatusCacheTTL).Err()
		}
	}

	return &dto.QueueStatusResponse{
		Message: "Queue status retrieved successfully",
		Counts:  out,
	}, nil
}

// ListQueueItems returns the customer's queue rows, newest first
func (s *QueueFlowImpl) ListQueueItems(ctx context.Context, req *dto.ListQueueItemsRequest, metadata *ClientMetadata) (*dto.ListQueueItemsResponse, error) {
	customer, err := getActiveCustomer(ctx, s.customerRepo, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}

	limit, offset, err := pagination(req.Page, req.PageSize)
	if err != nil {
		return nil, NewBusinessError("QUEUE_LIST_FAILED", "Invalid pagination", err)
	}

	filter := models.QueueItemFilter{CustomerID: &customer.ID}
	if req.Status != nil {
		status := models.QueueStatus(*req.Status)
		filter.Status = &status
	}
	if req.ScheduleID != nil {
		filter.ScheduleID = req.ScheduleID
	}
	if req.ExecutionBatch != nil {
		batch, err := uuid.Parse(*req.ExecutionBatch)
		if err != nil {
			return nil, NewBusinessError("QUEUE_LIST_FAILED", "Invalid execution batch", err)
		}
		filter.ExecutionBatch = &batch
	}

	items, err := s.queueRepo.ByFilter(ctx, filter, "created_at DESC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("QUEUE_LIST_FAILED", "Failed to list queue items", err)
	}
	total, err := s.queueRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("QUEUE_LIST_FAILED", "Failed to count queue items", err)
	}

	out := make([]dto.QueueItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, dto.QueueItemDTO{
			ID:             item.ID,
			GroupID:        item.GroupID,
			InstanceLabel:  item.InstanceLabel,
			MessageType:    item.MessageType.String(),
			Payload:        item.Payload,
			Status:         item.Status.String(),
			Error:          item.Error,
			ExecutionBatch: item.ExecutionBatch.String(),
			StaleRequeues:  item.StaleRequeues,
			CreatedAt:      item.CreatedAt,
			StartedAt:      item.StartedAt,
			CompletedAt:    item.CompletedAt,
		})
	}

	return &dto.ListQueueItemsResponse{
		Message: "Queue items retrieved successfully",
		Items:   out,
		Total:   total,
	}, nil
}

// RequeueItem retries a terminal queue item by inserting a fresh pending clone.
// The original row keeps its terminal state for the audit trail.
func (s *QueueFlowImpl) RequeueItem(ctx context.Context, req *dto.RequeueItemRequest, metadata *ClientMetadata) (*dto.RequeueItemResponse, error) {
	customer, err := getActiveCustomer(ctx, s.customerRepo, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}

	item, err := s.queueRepo.ByID(ctx, req.ItemID)
	if err != nil {
		return nil, NewBusinessError("QUEUE_ITEM_LOOKUP_FAILED", "Failed to lookup queue item", err)
	}
	if item == nil {
		return nil, NewBusinessError("QUEUE_ITEM_NOT_FOUND", "Queue item not found", ErrQueueItemNotFound)
	}
	if item.CustomerID != customer.ID {
		return nil, NewBusinessError("QUEUE_ITEM_ACCESS_DENIED", "Queue item access denied", ErrQueueItemAccessDenied)
	}
	if !item.Status.IsTerminal() {
		return nil, NewBusinessError("QUEUE_ITEM_NOT_TERMINAL", "Queue item is not terminal", ErrQueueItemNotTerminal)
	}

	clone := item.CloneForRequeue()
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		return s.queueRepo.Save(txCtx, clone)
	})
	if err != nil {
		return nil, NewBusinessError("QUEUE_REQUEUE_FAILED", "Failed to requeue item", err)
	}

	return &dto.RequeueItemResponse{
		Message:   "Item requeued successfully",
		NewItemID: clone.ID,
	}, nil
}

// ClearQueue deletes the customer's terminal queue rows
func (s *QueueFlowImpl) ClearQueue(ctx context.Context, req *dto.ClearQueueRequest, metadata *ClientMetadata) (*dto.ClearQueueResponse, error) {
	customer, err := getActiveCustomer(ctx, s.customerRepo, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}

	statuses := make([]models.QueueStatus, 0, len(req.Statuses))
	for _, st := range req.Statuses {
		statuses = append(statuses, models.QueueStatus(st))
	}

	deleted, err := s.queueRepo.DeleteTerminal(ctx, customer.ID, statuses)
	if err != nil {
		return nil, NewBusinessError("QUEUE_CLEAR_FAILED", "Failed to clear queue", err)
	}

	return &dto.ClearQueueResponse{
		Message: "Queue cleared successfully",
		Deleted: deleted,
	}, nil
}

// ListOutcomes returns the customer's delivery history, newest first
func (s *QueueFlowImpl) ListOutcomes(ctx context.Context, req *dto.ListOutcomesRequest, metadata *ClientMetadata) (*dto.ListOutcomesResponse, error) {
	customer, err := getActiveCustomer(ctx, s.customerRepo, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}

	limit, offset, err := pagination(req.Page, req.PageSize)
	if err != nil {
		return nil, NewBusinessError("OUTCOME_LIST_FAILED", "Invalid pagination", err)
	}

	filter := models.DeliveryOutcomeFilter{CustomerID: &customer.ID}
	if req.Status != nil {
		status := models.OutcomeStatus(*req.Status)
		filter.Status = &status
	}

	outcomes, err := s.outcomeRepo.ByFilter(ctx, filter, "created_at DESC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("OUTCOME_LIST_FAILED", "Failed to list outcomes", err)
	}
	total, err := s.outcomeRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("OUTCOME_LIST_FAILED", "Failed to count outcomes", err)
	}

	items := make([]dto.OutcomeDTO, 0, len(outcomes))
	for _, o := range outcomes {
		items = append(items, dto.OutcomeDTO{
			ID:             o.ID,
			GroupID:        o.GroupID,
			InstanceLabel:  o.InstanceLabel,
			MessageType:    o.MessageType.String(),
			Status:         string(o.Status),
			Error:          o.Error,
			ExecutionBatch: o.ExecutionBatch.String(),
			CreatedAt:      o.CreatedAt,
		})
	}

	return &dto.ListOutcomesResponse{
		Message: "Outcomes retrieved successfully",
		Items:   items,
		Total:   total,
	}, nil
}

// GetDispatchSettings returns the current dispatcher tuning
func (s *QueueFlowImpl) GetDispatchSettings(ctx context.Context, metadata *ClientMetadata) (*dto.GetDispatchSettingsResponse, error) {
	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return nil, NewBusinessError("SETTINGS_LOOKUP_FAILED", "Failed to load dispatch settings", err)
	}

	return &dto.GetDispatchSettingsResponse{
		Message:  "Settings retrieved successfully",
		Settings: toSettingsDTO(settings),
	}, nil
}

// UpdateDispatchSettings applies partial updates to the dispatcher tuning.
// Running loops pick up the new values on their next tick.
func (s *QueueFlowImpl) UpdateDispatchSettings(ctx context.Context, req *dto.UpdateDispatchSettingsRequest, metadata *ClientMetadata) (*dto.UpdateDispatchSettingsResponse, error) {
	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return nil, NewBusinessError("SETTINGS_LOOKUP_FAILED", "Failed to load dispatch settings", err)
	}

	if req.InterMessageDelaySecs != nil {
		settings.InterMessageDelaySecs = *req.InterMessageDelaySecs
	}
	if req.BatchCap != nil {
		settings.BatchCap = *req.BatchCap
	}
	if req.StaleClaimMins != nil {
		settings.StaleClaimMins = *req.StaleClaimMins
	}
	settings.UpdatedAt = utils.ToPtr(utils.UTCNow())

	if err := s.settingsRepo.Update(ctx, settings); err != nil {
		return nil, NewBusinessError("SETTINGS_UPDATE_FAILED", "Failed to update dispatch settings", err)
	}

	return &dto.UpdateDispatchSettingsResponse{
		Message:  "Settings updated successfully",
		Settings: toSettingsDTO(settings),
	}, nil
}

func toSettingsDTO(settings *models.DispatchSettings) dto.DispatchSettingsDTO {
	return dto.DispatchSettingsDTO{
		InterMessageDelaySecs: settings.InterMessageDelaySecs,
		BatchCap:              settings.BatchCap,
		StaleClaimMins:        settings.StaleClaimMins,
	}
}
