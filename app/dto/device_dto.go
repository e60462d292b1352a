package dto

import "time"

// CreateDeviceRequest represents the request to register a gateway device
type CreateDeviceRequest struct {
	CustomerID uint   `json:"-"`
	Label      string `json:"label" validate:"required,max=100"`
	APIURL     string `json:"api_url" validate:"required,url"`
	Token      string `json:"token" validate:"required,max=255"`
	InstanceID string `json:"instance_id" validate:"required,max=100"`
}

// CreateDeviceResponse represents the response to register a gateway device
type CreateDeviceResponse struct {
	Message   string `json:"message"`
	UUID      string `json:"uuid"`
	CreatedAt string `json:"created_at"`
}

// DeviceDTO represents one device in list responses. The token is never echoed back.
type DeviceDTO struct {
	UUID       string    `json:"uuid"`
	Label      string    `json:"label"`
	APIURL     string    `json:"api_url"`
	InstanceID string    `json:"instance_id"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListDevicesResponse represents the response to list devices
type ListDevicesResponse struct {
	Message string      `json:"message"`
	Items   []DeviceDTO `json:"items"`
}

// SetDeviceActiveRequest represents the request to activate or deactivate a device
type SetDeviceActiveRequest struct {
	UUID       string `json:"-"`
	CustomerID uint   `json:"-"`
	IsActive   bool   `json:"is_active"`
}

// SetDeviceActiveResponse represents the response to activate or deactivate a device
type SetDeviceActiveResponse struct {
	Message string `json:"message"`
}
