package models

import (
	"time"

	"github.com/amirphl/Susanoo/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Customer represents a tenant account that owns schedules, devices and queue items.
// Authentication and role management live in an external service; this table only
// carries what the dispatch core needs to attribute work to an owner.
type Customer struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UUID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_customers_uuid" json:"uuid"`
	Email        string    `gorm:"size:255;not null;uniqueIndex:uk_customers_email" json:"email"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

// TableName returns the table name for the model
func (Customer) TableName() string {
	return "customers"
}

// BeforeCreate is called before creating a new record
func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// CustomerFilter represents filter criteria for customers
type CustomerFilter struct {
	ID       *uint      `json:"id,omitempty"`
	UUID     *uuid.UUID `json:"uuid,omitempty"`
	Email    *string    `json:"email,omitempty"`
	IsActive *bool      `json:"is_active,omitempty"`
}
