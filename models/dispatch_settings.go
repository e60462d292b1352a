package models

import (
	"time"

	"github.com/amirphl/Susanoo/utils"
	"gorm.io/gorm"
)

// DispatchSettings is the operator-tunable singleton controlling the
// dispatcher: the enforced pause between gateway sends, the per-invocation
// batch cap, and the stale-claim threshold. Values are passed into RunBatch
// explicitly rather than read from process-wide state so tests can inject
// arbitrary values.
type DispatchSettings struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	InterMessageDelaySecs int        `gorm:"not null;default:10" json:"inter_message_delay_secs"`
	BatchCap              int        `gorm:"not null;default:25" json:"batch_cap"`
	StaleClaimMins        int        `gorm:"not null;default:10" json:"stale_claim_mins"`
	CreatedAt             time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt             *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (DispatchSettings) TableName() string {
	return "dispatch_settings"
}

// BeforeUpdate is called before updating a record
func (d *DispatchSettings) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	d.UpdatedAt = &now
	return nil
}

// InterMessageDelay returns the configured pause as a duration
func (d *DispatchSettings) InterMessageDelay() time.Duration {
	return time.Duration(d.InterMessageDelaySecs) * time.Second
}

// StaleClaimThreshold returns the configured staleness cutoff as a duration
func (d *DispatchSettings) StaleClaimThreshold() time.Duration {
	return time.Duration(d.StaleClaimMins) * time.Minute
}

// DefaultDispatchSettings returns the row used until an operator tunes it
func DefaultDispatchSettings() *DispatchSettings {
	return &DispatchSettings{
		InterMessageDelaySecs: int(utils.DefaultInterMessageDelay / time.Second),
		BatchCap:              utils.DefaultBatchCap,
		StaleClaimMins:        int(utils.DefaultStaleClaimThreshold / time.Minute),
	}
}
