package dto

import (
	"time"

	"github.com/amirphl/Susanoo/models"
)

// CreateScheduleRequest represents the request to create a message schedule
type CreateScheduleRequest struct {
	CustomerID   uint                  `json:"-"`
	DeviceUUID   string                `json:"device_uuid" validate:"required,uuid4"`
	CampaignUUID *string               `json:"campaign_uuid,omitempty" validate:"omitempty,uuid4"`
	Recurrence   string                `json:"recurrence" validate:"required,oneof=once daily weekly monthly"`
	TimeOfDay    *string               `json:"time_of_day,omitempty"`
	Weekdays     []int                 `json:"weekdays,omitempty" validate:"omitempty,max=7,dive,min=0,max=6"`
	DayOfMonth   *int                  `json:"day_of_month,omitempty" validate:"omitempty,min=1,max=31"`
	RunAt        *time.Time            `json:"run_at,omitempty"`
	MessageType  string                `json:"message_type" validate:"required"`
	Payload      models.MessagePayload `json:"payload"`
	GroupIDs     []string              `json:"group_ids" validate:"required,min=1,dive,required"`
}

// CreateScheduleResponse represents the response to create a message schedule
type CreateScheduleResponse struct {
	Message   string     `json:"message"`
	UUID      string     `json:"uuid"`
	NextDueAt *time.Time `json:"next_due_at,omitempty"`
	CreatedAt string     `json:"created_at"`
}

// ScheduleDTO represents one schedule in list responses
type ScheduleDTO struct {
	UUID         string                `json:"uuid"`
	CampaignUUID *string               `json:"campaign_uuid,omitempty"`
	DeviceLabel  string                `json:"device_label,omitempty"`
	Recurrence   string                `json:"recurrence"`
	TimeOfDay    string                `json:"time_of_day,omitempty"`
	Weekdays     []int                 `json:"weekdays,omitempty"`
	DayOfMonth   *int                  `json:"day_of_month,omitempty"`
	RunAt        *time.Time            `json:"run_at,omitempty"`
	MessageType  string                `json:"message_type"`
	Payload      models.MessagePayload `json:"payload"`
	GroupIDs     []string              `json:"group_ids"`
	IsActive     bool                  `json:"is_active"`
	NextDueAt    *time.Time            `json:"next_due_at,omitempty"`
	LastRunAt    *time.Time            `json:"last_run_at,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
}

// ListSchedulesRequest represents the request to list schedules
type ListSchedulesRequest struct {
	CustomerID uint `json:"-"`
	Page       int  `json:"page" validate:"omitempty,min=1"`
	PageSize   int  `json:"page_size" validate:"omitempty,min=1,max=100"`
}

// ListSchedulesResponse represents the response to list schedules
type ListSchedulesResponse struct {
	Message string        `json:"message"`
	Items   []ScheduleDTO `json:"items"`
	Total   int64         `json:"total"`
}

// SetScheduleActiveRequest represents the request to activate or deactivate a schedule
type SetScheduleActiveRequest struct {
	UUID       string `json:"-"`
	CustomerID uint   `json:"-"`
	IsActive   bool   `json:"is_active"`
}

// SetScheduleActiveResponse represents the response to activate or deactivate a schedule
type SetScheduleActiveResponse struct {
	Message   string     `json:"message"`
	NextDueAt *time.Time `json:"next_due_at,omitempty"`
}
