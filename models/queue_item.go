package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/Susanoo/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QueueStatus enumerates the delivery-queue state machine:
// pending -> sending -> sent | error. Terminal rows are never resurrected;
// retries are fresh pending rows that keep the original execution batch.
type QueueStatus string

const (
	QueueStatusPending QueueStatus = "pending"
	QueueStatusSending QueueStatus = "sending"
	QueueStatusSent    QueueStatus = "sent"
	QueueStatusError   QueueStatus = "error"
)

// String returns the string representation of the status
func (s QueueStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusPending, QueueStatusSending, QueueStatusSent, QueueStatusError:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status admits no further transitions
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusSent || s == QueueStatusError
}

// CanTransitionTo checks if the status can transition to the given status
func (s QueueStatus) CanTransitionTo(next QueueStatus) bool {
	switch s {
	case QueueStatusPending:
		return next == QueueStatusSending
	case QueueStatusSending:
		return next == QueueStatusSent || next == QueueStatusError
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for QueueStatus
func (s *QueueStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = QueueStatus(v)
	case []byte:
		*s = QueueStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into QueueStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for QueueStatus
func (s QueueStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid QueueStatus: %s", s)
	}
	return string(s), nil
}

// QueueItem is one delivery unit: a (message, recipient group) pair awaiting
// dispatch. Payload and gateway connection are snapshotted at enqueue time and
// never mutated afterwards; editing the source schedule or device has no effect
// on rows already queued.
type QueueItem struct {
	ID         uint  `gorm:"primaryKey" json:"id"`
	CustomerID uint  `gorm:"not null;index:idx_queue_items_customer_id" json:"customer_id"`
	ScheduleID *uint `gorm:"index:idx_queue_items_schedule_id" json:"schedule_id,omitempty"`

	GroupID   string  `gorm:"size:100;not null" json:"group_id"`
	GroupName *string `gorm:"size:255" json:"group_name,omitempty"`

	// Resolved gateway connection snapshot
	DeviceAPIURL  string `gorm:"size:255;not null" json:"device_api_url"`
	DeviceToken   string `gorm:"size:255;not null" json:"-"`
	InstanceLabel string `gorm:"size:100;not null" json:"instance_label"`

	MessageType MessageType    `gorm:"type:message_type;not null" json:"message_type"`
	Payload     MessagePayload `gorm:"type:jsonb;not null" json:"payload"`

	Status        QueueStatus `gorm:"type:queue_status;not null;default:'pending';index:idx_queue_items_status" json:"status"`
	Error         *string     `gorm:"type:text" json:"error,omitempty"`
	Priority      int         `gorm:"not null;default:100;index:idx_queue_items_claim,priority:2" json:"priority"`
	ExecutionBatch uuid.UUID  `gorm:"type:uuid;not null;index:idx_queue_items_execution_batch" json:"execution_batch"`
	StaleRequeues int         `gorm:"not null;default:0" json:"stale_requeues"`

	CreatedAt   time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null;index:idx_queue_items_claim,priority:3" json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Relations
	Customer *Customer        `gorm:"foreignKey:CustomerID;references:ID" json:"customer,omitempty"`
	Schedule *MessageSchedule `gorm:"foreignKey:ScheduleID;references:ID" json:"schedule,omitempty"`
}

// TableName returns the table name for the model
func (QueueItem) TableName() string {
	return "queue_items"
}

// BeforeCreate is called before creating a new record
func (q *QueueItem) BeforeCreate(tx *gorm.DB) error {
	if q.ExecutionBatch == uuid.Nil {
		q.ExecutionBatch = uuid.New()
	}
	if q.Status == "" {
		q.Status = QueueStatusPending
	}
	if q.Priority == 0 {
		q.Priority = utils.DefaultQueuePriority
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = utils.UTCNow()
	}
	return nil
}

// CloneForRequeue builds a fresh pending row carrying the same payload,
// connection snapshot and execution batch as the receiver. The original row is
// left untouched; operators retry terminal failures by inserting the clone.
func (q *QueueItem) CloneForRequeue() *QueueItem {
	return &QueueItem{
		CustomerID:     q.CustomerID,
		ScheduleID:     q.ScheduleID,
		GroupID:        q.GroupID,
		GroupName:      q.GroupName,
		DeviceAPIURL:   q.DeviceAPIURL,
		DeviceToken:    q.DeviceToken,
		InstanceLabel:  q.InstanceLabel,
		MessageType:    q.MessageType,
		Payload:        q.Payload,
		Status:         QueueStatusPending,
		Priority:       q.Priority,
		ExecutionBatch: q.ExecutionBatch,
	}
}

// QueueItemFilter represents filter criteria for queue items
type QueueItemFilter struct {
	ID             *uint        `json:"id,omitempty"`
	CustomerID     *uint        `json:"customer_id,omitempty"`
	ScheduleID     *uint        `json:"schedule_id,omitempty"`
	Status         *QueueStatus `json:"status,omitempty"`
	ExecutionBatch *uuid.UUID   `json:"execution_batch,omitempty"`
	GroupID        *string      `json:"group_id,omitempty"`
	CreatedAfter   *time.Time   `json:"created_after,omitempty"`
	CreatedBefore  *time.Time   `json:"created_before,omitempty"`
}
