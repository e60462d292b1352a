package models

import (
	"time"

	"github.com/amirphl/Susanoo/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Device represents a connected gateway account (one WAPanel session) a tenant
// sends through. Queue items snapshot the connection details at enqueue time so
// dispatch never re-resolves a device that was edited or removed afterwards.
type Device struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_devices_uuid" json:"uuid"`
	CustomerID uint      `gorm:"not null;index:idx_devices_customer_id" json:"customer_id"`
	Label      string    `gorm:"size:100;not null" json:"label"`
	APIURL     string    `gorm:"size:255;not null" json:"api_url"`
	Token      string    `gorm:"size:255;not null" json:"-"`
	InstanceID string    `gorm:"size:100;not null" json:"instance_id"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`

	// Relations
	Customer *Customer `gorm:"foreignKey:CustomerID;references:ID" json:"customer,omitempty"`
}

// TableName returns the table name for the model
func (Device) TableName() string {
	return "devices"
}

// BeforeCreate is called before creating a new record
func (d *Device) BeforeCreate(tx *gorm.DB) error {
	if d.UUID == uuid.Nil {
		d.UUID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = utils.UTCNow()
	}
	return nil
}

// DeviceFilter represents filter criteria for devices
type DeviceFilter struct {
	ID         *uint      `json:"id,omitempty"`
	UUID       *uuid.UUID `json:"uuid,omitempty"`
	CustomerID *uint      `json:"customer_id,omitempty"`
	IsActive   *bool      `json:"is_active,omitempty"`
}
