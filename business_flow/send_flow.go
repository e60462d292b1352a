// Package businessflow contains the core business logic and use cases for direct send workflows
package businessflow

import (
	"context"

	"github.com/amirphl/Susanoo/app/dto"
	"github.com/amirphl/Susanoo/app/scheduler"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/repository"
	"github.com/amirphl/Susanoo/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SendFlow handles schedule-less sends, either queued or immediate
type SendFlow interface {
	DirectSend(ctx context.Context, req *dto.DirectSendRequest, metadata *ClientMetadata) (*dto.DirectSendResponse, error)
}

// SendFlowImpl implements the direct send business flow
type SendFlowImpl struct {
	queueRepo    repository.QueueItemRepository
	outcomeRepo  repository.DeliveryOutcomeRepository
	deviceRepo   repository.DeviceRepository
	customerRepo repository.CustomerRepository
	gateway      scheduler.GatewayClient
	db           *gorm.DB
}

// NewSendFlow creates a new send flow instance
func NewSendFlow(
	queueRepo repository.QueueItemRepository,
	outcomeRepo repository.DeliveryOutcomeRepository,
	deviceRepo repository.DeviceRepository,
	customerRepo repository.CustomerRepository,
	gateway scheduler.GatewayClient,
	db *gorm.DB,
) SendFlow {
	return &SendFlowImpl{
		queueRepo:    queueRepo,
		outcomeRepo:  outcomeRepo,
		deviceRepo:   deviceRepo,
		customerRepo: customerRepo,
		gateway:      gateway,
		db:           db,
	}
}

// DirectSend validates the request, snapshots the device connection and either
// enqueues one pending queue item per target group (mode "queue", the default)
// or delivers each group inline through the gateway (mode "immediate"). Both
// modes share one execution batch across all groups.
func (s *SendFlowImpl) DirectSend(ctx context.Context, req *dto.DirectSendRequest, metadata *ClientMetadata) (*dto.DirectSendResponse, error) {
	customer, err := getActiveCustomer(ctx, s.customerRepo, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}

	if len(req.GroupIDs) == 0 {
		return nil, NewBusinessError("SEND_VALIDATION_FAILED", "Send validation failed", ErrGroupsRequired)
	}
	msgType := models.MessageType(req.MessageType)
	if err := validatePayload(msgType, req.Payload); err != nil {
		return nil, NewBusinessError("SEND_VALIDATION_FAILED", "Send validation failed", err)
	}

	device, err := s.lookupDevice(ctx, req.DeviceUUID, customer.ID)
	if err != nil {
		return nil, NewBusinessError("DEVICE_LOOKUP_FAILED", "Failed to lookup device", err)
	}

	batch := uuid.New()
	if req.Mode == "immediate" {
		return s.sendImmediate(ctx, req, device, msgType, batch)
	}

	items := make([]*models.QueueItem, 0, len(req.GroupIDs))
	for _, groupID := range req.GroupIDs {
		items = append(items, &models.QueueItem{
			CustomerID:     customer.ID,
			GroupID:        groupID,
			DeviceAPIURL:   device.APIURL,
			DeviceToken:    device.Token,
			InstanceLabel:  device.Label,
			MessageType:    msgType,
			Payload:        req.Payload,
			Status:         models.QueueStatusPending,
			Priority:       utils.DefaultQueuePriority,
			ExecutionBatch: batch,
		})
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		return s.queueRepo.SaveBatch(txCtx, items)
	})
	if err != nil {
		return nil, NewBusinessError("SEND_ENQUEUE_FAILED", "Failed to enqueue messages", err)
	}

	return &dto.DirectSendResponse{
		Message:        "Messages enqueued successfully",
		ExecutionBatch: batch.String(),
		Enqueued:       len(items),
	}, nil
}

// sendImmediate bypasses the queue and delivers each group inline, recording
// one delivery outcome per attempt. A gateway failure on one group does not
// stop the remaining groups.
func (s *SendFlowImpl) sendImmediate(ctx context.Context, req *dto.DirectSendRequest, device *models.Device, msgType models.MessageType, batch uuid.UUID) (*dto.DirectSendResponse, error) {
	sent, failed := 0, 0

	for _, groupID := range req.GroupIDs {
		sendErr := s.gateway.Send(ctx, scheduler.SendRequest{
			APIURL:      device.APIURL,
			Token:       device.Token,
			GroupID:     groupID,
			MessageType: msgType,
			Payload:     req.Payload,
		})

		status := models.OutcomeStatusSent
		var errMsg *string
		if sendErr != nil {
			status = models.OutcomeStatusError
			errMsg = utils.ToPtr(sendErr.Error())
			failed++
		} else {
			sent++
		}

		if err := s.outcomeRepo.Save(ctx, &models.DeliveryOutcome{
			CustomerID:     req.CustomerID,
			ExecutionBatch: batch,
			GroupID:        groupID,
			MessageType:    msgType,
			Payload:        req.Payload,
			Status:         status,
			Error:          errMsg,
			InstanceLabel:  device.Label,
		}); err != nil {
			return nil, NewBusinessError("SEND_OUTCOME_FAILED", "Failed to record delivery outcome", err)
		}
	}

	return &dto.DirectSendResponse{
		Message:        "Messages delivered",
		ExecutionBatch: batch.String(),
		Sent:           sent,
		Failed:         failed,
	}, nil
}

func (s *SendFlowImpl) lookupDevice(ctx context.Context, deviceUUID string, customerID uint) (*models.Device, error) {
	device, err := s.deviceRepo.ByUUID(ctx, deviceUUID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, ErrDeviceNotFound
	}
	if device.CustomerID != customerID {
		return nil, ErrDeviceAccessDenied
	}
	if !utils.IsTrue(device.IsActive) {
		return nil, ErrDeviceInactive
	}
	return device, nil
}
