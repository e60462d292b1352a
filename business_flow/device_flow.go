// Package businessflow contains the core business logic and use cases for device workflows
package businessflow

import (
	"context"
	"time"

	"github.com/amirphl/Susanoo/app/dto"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/repository"
	"github.com/amirphl/Susanoo/utils"
	"gorm.io/gorm"
)

// DeviceFlow handles the gateway device business logic
type DeviceFlow interface {
	CreateDevice(ctx context.Context, req *dto.CreateDeviceRequest, metadata *ClientMetadata) (*dto.CreateDeviceResponse, error)
	ListDevices(ctx context.Context, customerID uint, metadata *ClientMetadata) (*dto.ListDevicesResponse, error)
	SetDeviceActive(ctx context.Context, req *dto.SetDeviceActiveRequest, metadata *ClientMetadata) (*dto.SetDeviceActiveResponse, error)
}

// DeviceFlowImpl implements the device business flow
type DeviceFlowImpl struct {
	deviceRepo   repository.DeviceRepository
	customerRepo repository.CustomerRepository
	db           *gorm.DB
}

// NewDeviceFlow creates a new device flow instance
func NewDeviceFlow(
	deviceRepo repository.DeviceRepository,
	customerRepo repository.CustomerRepository,
	db *gorm.DB,
) DeviceFlow {
	return &DeviceFlowImpl{
		deviceRepo:   deviceRepo,
		customerRepo: customerRepo,
		db:           db,
	}
}

// CreateDevice registers a gateway connection for the customer
func (s *DeviceFlowImpl) CreateDevice(ctx context.Context, req *dto.CreateDeviceRequest, metadata *ClientMetadata) (*dto.CreateDeviceResponse, error) {
	customer, err := getActiveCustomer(ctx, s.customerRepo, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}

	device := &models.Device{
		CustomerID: customer.ID,
		Label:      req.Label,
		APIURL:     req.APIURL,
		Token:      req.Token,
		InstanceID: req.InstanceID,
		IsActive:   utils.ToPtr(true),
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		return s.deviceRepo.Save(txCtx, device)
	})
	if err != nil {
		return nil, NewBusinessError("DEVICE_CREATION_FAILED", "Device creation failed", err)
	}

	return &dto.CreateDeviceResponse{
		Message:   "Device registered successfully",
		UUID:      device.UUID.String(),
		CreatedAt: device.CreatedAt.Format(time.RFC3339),
	}, nil
}

// ListDevices returns the customer's registered devices
func (s *DeviceFlowImpl) ListDevices(ctx context.Context, customerID uint, metadata *ClientMetadata) (*dto.ListDevicesResponse, error) {
	customer, err := getActiveCustomer(ctx, s.customerRepo, customerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}

	devices, err := s.deviceRepo.ListByCustomer(ctx, customer.ID)
	if err != nil {
		return nil, NewBusinessError("DEVICE_LIST_FAILED", "Failed to list devices", err)
	}

	items := make([]dto.DeviceDTO, 0, len(devices))
	for _, d := range devices {
		items = append(items, dto.DeviceDTO{
			UUID:       d.UUID.String(),
			Label:      d.Label,
			APIURL:     d.APIURL,
			InstanceID: d.InstanceID,
			IsActive:   utils.IsTrue(d.IsActive),
			CreatedAt:  d.CreatedAt,
		})
	}

	return &dto.ListDevicesResponse{
		Message: "Devices retrieved successfully",
		Items:   items,
	}, nil
}

// SetDeviceActive toggles a device. Queue items already written keep their
// connection snapshot and still go out; only future expansions are affected.
func (s *DeviceFlowImpl) SetDeviceActive(ctx context.Context, req *dto.SetDeviceActiveRequest, metadata *ClientMetadata) (*dto.SetDeviceActiveResponse, error) {
	customer, err := getActiveCustomer(ctx, s.customerRepo, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}

	device, err := s.deviceRepo.ByUUID(ctx, req.UUID)
	if err != nil {
		return nil, NewBusinessError("DEVICE_LOOKUP_FAILED", "Failed to lookup device", err)
	}
	if device == nil {
		return nil, NewBusinessError("DEVICE_NOT_FOUND", "Device not found", ErrDeviceNotFound)
	}
	if device.CustomerID != customer.ID {
		return nil, NewBusinessError("DEVICE_ACCESS_DENIED", "Device access denied", ErrDeviceAccessDenied)
	}

	if err := s.deviceRepo.SetActive(ctx, device.ID, req.IsActive); err != nil {
		return nil, NewBusinessError("DEVICE_UPDATE_FAILED", "Failed to update device", err)
	}

	msg := "Device deactivated successfully"
	if req.IsActive {
		msg = "Device activated successfully"
	}
	return &dto.SetDeviceActiveResponse{Message: msg}, nil
}
