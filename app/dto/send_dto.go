package dto

import (
	"github.com/amirphl/Susanoo/models"
)

// DirectSendRequest represents the request to send a message to target groups
// without a schedule. Mode "queue" (default) enqueues for the dispatcher;
// mode "immediate" delivers through the gateway inline.
type DirectSendRequest struct {
	CustomerID  uint                  `json:"-"`
	DeviceUUID  string                `json:"device_uuid" validate:"required,uuid4"`
	Mode        string                `json:"mode,omitempty" validate:"omitempty,oneof=queue immediate"`
	GroupIDs    []string              `json:"group_ids" validate:"required,min=1,dive,required"`
	MessageType string                `json:"message_type" validate:"required"`
	Payload     models.MessagePayload `json:"payload"`
}

// DirectSendResponse represents the response to a direct send
type DirectSendResponse struct {
	Message        string `json:"message"`
	ExecutionBatch string `json:"execution_batch"`
	Enqueued       int    `json:"enqueued,omitempty"`
	Sent           int    `json:"sent,omitempty"`
	Failed         int    `json:"failed,omitempty"`
}
