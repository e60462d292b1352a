package models

import (
	"time"

	"github.com/amirphl/Susanoo/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Campaign is an optional aggregation over message schedules. Deactivating a
// campaign suppresses every schedule that references it without touching the
// schedules themselves, and a campaign with its own group list overrides the
// group lists of its member schedules.
type Campaign struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	CustomerID uint           `gorm:"not null;index:idx_campaigns_customer_id" json:"customer_id"`
	Title      string         `gorm:"size:255;not null" json:"title"`
	GroupIDs   pq.StringArray `gorm:"type:text[]" json:"group_ids"`
	IsActive   *bool          `gorm:"not null;default:true;index:idx_campaigns_is_active" json:"is_active"`
	CreatedAt  time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt  *time.Time     `json:"updated_at,omitempty"`

	// Relations
	Customer *Customer `gorm:"foreignKey:CustomerID;references:ID" json:"customer,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Campaign) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// CampaignFilter represents filter criteria for campaigns
type CampaignFilter struct {
	ID         *uint      `json:"id,omitempty"`
	UUID       *uuid.UUID `json:"uuid,omitempty"`
	CustomerID *uint      `json:"customer_id,omitempty"`
	IsActive   *bool      `json:"is_active,omitempty"`
}
