package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/Susanoo/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OutcomeStatus is the terminal result of one delivery attempt
type OutcomeStatus string

const (
	OutcomeStatusSent  OutcomeStatus = "sent"
	OutcomeStatusError OutcomeStatus = "error"
)

// Valid checks if the status is valid
func (s OutcomeStatus) Valid() bool {
	return s == OutcomeStatusSent || s == OutcomeStatusError
}

// Scan implements the sql.Scanner interface for OutcomeStatus
func (s *OutcomeStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = OutcomeStatus(v)
	case []byte:
		*s = OutcomeStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into OutcomeStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for OutcomeStatus
func (s OutcomeStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid OutcomeStatus: %s", s)
	}
	return string(s), nil
}

// DeliveryOutcome is the append-only record of one delivery attempt, written
// once per terminal queue transition or direct-send attempt and never updated
// or deleted by this service.
type DeliveryOutcome struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	CustomerID     uint           `gorm:"not null;index:idx_delivery_outcomes_customer_id" json:"customer_id"`
	ScheduleID     *uint          `gorm:"index:idx_delivery_outcomes_schedule_id" json:"schedule_id,omitempty"`
	ExecutionBatch uuid.UUID      `gorm:"type:uuid;not null;index:idx_delivery_outcomes_execution_batch" json:"execution_batch"`
	GroupID        string         `gorm:"size:100;not null" json:"group_id"`
	MessageType    MessageType    `gorm:"type:message_type;not null" json:"message_type"`
	Payload        MessagePayload `gorm:"type:jsonb;not null" json:"payload"`
	Status         OutcomeStatus  `gorm:"type:outcome_status;not null;index:idx_delivery_outcomes_status" json:"status"`
	Error          *string        `gorm:"type:text" json:"error,omitempty"`
	InstanceLabel  string         `gorm:"size:100;not null" json:"instance_label"`
	CreatedAt      time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null;index:idx_delivery_outcomes_created_at" json:"created_at"`
}

// TableName returns the table name for the model
func (DeliveryOutcome) TableName() string {
	return "delivery_outcomes"
}

// BeforeCreate is called before creating a new record
func (o *DeliveryOutcome) BeforeCreate(tx *gorm.DB) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = utils.UTCNow()
	}
	return nil
}

// DeliveryOutcomeFilter represents filter criteria for delivery outcomes
type DeliveryOutcomeFilter struct {
	CustomerID     *uint          `json:"customer_id,omitempty"`
	ScheduleID     *uint          `json:"schedule_id,omitempty"`
	ExecutionBatch *uuid.UUID     `json:"execution_batch,omitempty"`
	Status         *OutcomeStatus `json:"status,omitempty"`
	CreatedAfter   *time.Time     `json:"created_after,omitempty"`
	CreatedBefore  *time.Time     `json:"created_before,omitempty"`
}
