package dto

import (
	"time"

	"github.com/amirphl/Susanoo/models"
)

// QueueStatusRequest represents the request for queue depth counts
type QueueStatusRequest struct {
	CustomerID uint `json:"-"`
}

// QueueStatusResponse represents per-status queue depth counts
type QueueStatusResponse struct {
	Message string           `json:"message"`
	Counts  map[string]int64 `json:"counts"`
}

// QueueItemDTO represents one queue item in list responses
type QueueItemDTO struct {
	ID             uint                  `json:"id"`
	GroupID        string                `json:"group_id"`
	InstanceLabel  string                `json:"instance_label"`
	MessageType    string                `json:"message_type"`
	Payload        models.MessagePayload `json:"payload"`
	Status         string                `json:"status"`
	Error          *string               `json:"error,omitempty"`
	ExecutionBatch string                `json:"execution_batch"`
	StaleRequeues  int                   `json:"stale_requeues"`
	CreatedAt      time.Time             `json:"created_at"`
	StartedAt      *time.Time            `json:"started_at,omitempty"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
}

// ListQueueItemsRequest represents the request to list queue items
type ListQueueItemsRequest struct {
	CustomerID     uint    `json:"-"`
	Status         *string `json:"status,omitempty" validate:"omitempty,oneof=pending sending sent error"`
	ScheduleID     *uint   `json:"schedule_id,omitempty"`
	ExecutionBatch *string `json:"execution_batch,omitempty" validate:"omitempty,uuid"`
	Page           int     `json:"page" validate:"omitempty,min=1"`
	PageSize       int     `json:"page_size" validate:"omitempty,min=1,max=100"`
}

// ListQueueItemsResponse represents the response to list queue items
type ListQueueItemsResponse struct {
	Message string         `json:"message"`
	Items   []QueueItemDTO `json:"items"`
	Total   int64          `json:"total"`
}

// RequeueItemRequest represents the request to retry a terminal queue item
type RequeueItemRequest struct {
	ItemID     uint `json:"-"`
	CustomerID uint `json:"-"`
}

// RequeueItemResponse represents the response to retry a terminal queue item
type RequeueItemResponse struct {
	Message   string `json:"message"`
	NewItemID uint   `json:"new_item_id"`
}

// ClearQueueRequest represents the request to delete terminal queue items
type ClearQueueRequest struct {
	CustomerID uint     `json:"-"`
	Statuses   []string `json:"statuses,omitempty" validate:"omitempty,dive,oneof=sent error"`
}

// ClearQueueResponse represents the response to delete terminal queue items
type ClearQueueResponse struct {
	Message string `json:"message"`
	Deleted int64  `json:"deleted"`
}

// OutcomeDTO represents one delivery outcome in list responses
type OutcomeDTO struct {
	ID             uint      `json:"id"`
	GroupID        string    `json:"group_id"`
	InstanceLabel  string    `json:"instance_label"`
	MessageType    string    `json:"message_type"`
	Status         string    `json:"status"`
	Error          *string   `json:"error,omitempty"`
	ExecutionBatch string    `json:"execution_batch"`
	CreatedAt      time.Time `json:"created_at"`
}

// ListOutcomesRequest represents the request to list delivery outcomes
type ListOutcomesRequest struct {
	CustomerID uint    `json:"-"`
	Status     *string `json:"status,omitempty" validate:"omitempty,oneof=sent error"`
	Page       int     `json:"page" validate:"omitempty,min=1"`
	PageSize   int     `json:"page_size" validate:"omitempty,min=1,max=100"`
}

// ListOutcomesResponse represents the response to list delivery outcomes
type ListOutcomesResponse struct {
	Message string       `json:"message"`
	Items   []OutcomeDTO `json:"items"`
	Total   int64        `json:"total"`
}

// DispatchSettingsDTO represents the operator-tunable dispatcher settings
type DispatchSettingsDTO struct {
	InterMessageDelaySecs int `json:"inter_message_delay_secs"`
	BatchCap              int `json:"batch_cap"`
	StaleClaimMins        int `json:"stale_claim_mins"`
}

// GetDispatchSettingsResponse represents the response to read dispatcher settings
type GetDispatchSettingsResponse struct {
	Message  string              `json:"message"`
	Settings DispatchSettingsDTO `json:"settings"`
}

// UpdateDispatchSettingsRequest represents the request to update dispatcher settings
type UpdateDispatchSettingsRequest struct {
	InterMessageDelaySecs *int `json:"inter_message_delay_secs,omitempty" validate:"omitempty,min=0,max=3600"`
	BatchCap              *int `json:"batch_cap,omitempty" validate:"omitempty,min=1,max=500"`
	StaleClaimMins        *int `json:"stale_claim_mins,omitempty" validate:"omitempty,min=1,max=1440"`
}

// UpdateDispatchSettingsResponse represents the response to update dispatcher settings
type UpdateDispatchSettingsResponse struct {
	Message  string              `json:"message"`
	Settings DispatchSettingsDTO `json:"settings"`
}
