package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/Susanoo/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// RecurrenceKind represents how often a message schedule fires
type RecurrenceKind string

const (
	RecurrenceOnce    RecurrenceKind = "once"
	RecurrenceDaily   RecurrenceKind = "daily"
	RecurrenceWeekly  RecurrenceKind = "weekly"
	RecurrenceMonthly RecurrenceKind = "monthly"
)

// String returns the string representation of the kind
func (k RecurrenceKind) String() string {
	return string(k)
}

// Valid checks if the kind is valid
func (k RecurrenceKind) Valid() bool {
	switch k {
	case RecurrenceOnce, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for RecurrenceKind
func (k *RecurrenceKind) Scan(value any) error {
	if value == nil {
		*k = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*k = RecurrenceKind(v)
	case []byte:
		*k = RecurrenceKind(string(v))
	default:
		return fmt.Errorf("cannot scan %T into RecurrenceKind", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for RecurrenceKind
func (k RecurrenceKind) Value() (driver.Value, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid RecurrenceKind: %s", k)
	}
	return string(k), nil
}

// MessageSchedule is a tenant's recurring or one-off message intent. The
// recurrence runner claims due schedules through processing_started_at and
// expands them into queue items; next_due_at is null only when the schedule is
// inactive or a completed one-off.
type MessageSchedule struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_message_schedules_uuid" json:"uuid"`
	CustomerID uint      `gorm:"not null;index:idx_message_schedules_customer_id" json:"customer_id"`
	CampaignID *uint     `gorm:"index:idx_message_schedules_campaign_id" json:"campaign_id,omitempty"`
	DeviceID   uint      `gorm:"not null" json:"device_id"`

	Recurrence RecurrenceKind `gorm:"type:recurrence_kind;not null" json:"recurrence"`
	TimeOfDay  string         `gorm:"size:5;not null;default:''" json:"time_of_day"`
	Weekdays   pq.Int64Array  `gorm:"type:smallint[]" json:"weekdays,omitempty"`
	DayOfMonth *int           `json:"day_of_month,omitempty"`
	RunAt      *time.Time     `json:"run_at,omitempty"`

	MessageType MessageType    `gorm:"type:message_type;not null" json:"message_type"`
	Payload     MessagePayload `gorm:"type:jsonb;not null" json:"payload"`
	GroupIDs    pq.StringArray `gorm:"type:text[];not null" json:"group_ids"`

	IsActive            *bool      `gorm:"not null;default:true;index:idx_message_schedules_is_active" json:"is_active"`
	NextDueAt           *time.Time `gorm:"index:idx_message_schedules_next_due_at" json:"next_due_at,omitempty"`
	LastRunAt           *time.Time `json:"last_run_at,omitempty"`
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Relations
	Customer *Customer `gorm:"foreignKey:CustomerID;references:ID" json:"customer,omitempty"`
	Campaign *Campaign `gorm:"foreignKey:CampaignID;references:ID" json:"campaign,omitempty"`
	Device   *Device   `gorm:"foreignKey:DeviceID;references:ID" json:"device,omitempty"`
}

// TableName returns the table name for the model
func (MessageSchedule) TableName() string {
	return "message_schedules"
}

// BeforeCreate is called before creating a new record
func (s *MessageSchedule) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (s *MessageSchedule) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	s.UpdatedAt = &now
	return nil
}

// ParseTimeOfDay parses an "HH:MM" clock string
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	if _, err = fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time of day %q", s)
	}
	return hour, minute, nil
}

// NextOccurrenceAfter computes the next instant this schedule fires strictly
// after ref. For once it returns the stored instant verbatim; callers that have
// already fired a one-off must not ask again. Returns nil for degenerate input
// (unparsable time of day, empty weekly set) so the runner can deactivate the
// schedule instead of looping on it.
func (s *MessageSchedule) NextOccurrenceAfter(ref time.Time) *time.Time {
	ref = utils.TruncateToSecond(ref.UTC())

	switch s.Recurrence {
	case RecurrenceOnce:
		if s.RunAt == nil {
			return nil
		}
		at := utils.TruncateToSecond(s.RunAt.UTC())
		return &at

	case RecurrenceDaily:
		hour, minute, err := ParseTimeOfDay(s.TimeOfDay)
		if err != nil {
			return nil
		}
		today := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, time.UTC)
		if today.After(ref) {
			return &today
		}
		next := today.AddDate(0, 0, 1)
		return &next

	case RecurrenceWeekly:
		hour, minute, err := ParseTimeOfDay(s.TimeOfDay)
		if err != nil || len(s.Weekdays) == 0 {
			return nil
		}
		allowed := make(map[time.Weekday]struct{}, len(s.Weekdays))
		for _, d := range s.Weekdays {
			if d >= 0 && d <= 6 {
				allowed[time.Weekday(d)] = struct{}{}
			}
		}
		if len(allowed) == 0 {
			return nil
		}
		for offset := 1; offset <= 7; offset++ {
			day := ref.AddDate(0, 0, offset)
			if _, ok := allowed[day.Weekday()]; ok {
				at := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
				return &at
			}
		}
		return nil

	case RecurrenceMonthly:
		hour, minute, err := ParseTimeOfDay(s.TimeOfDay)
		if err != nil || s.DayOfMonth == nil {
			return nil
		}
		// Always advance at least one month; clamp the requested day to the
		// target month's length so a "31st" schedule fires on the 30th (or
		// 28th/29th) instead of skipping the month.
		first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
		day := min(*s.DayOfMonth, daysInMonth(first.Year(), first.Month()))
		if day < 1 {
			return nil
		}
		at := time.Date(first.Year(), first.Month(), day, hour, minute, 0, 0, time.UTC)
		return &at

	default:
		return nil
	}
}

// NextRunAfterExecution computes the due time to persist after a run completes.
// Unlike NextOccurrenceAfter it never returns "later today" for daily schedules,
// guaranteeing forward progress even when the run fired late; one-off schedules
// have no next run.
func (s *MessageSchedule) NextRunAfterExecution(runTime time.Time) *time.Time {
	if s.Recurrence == RecurrenceOnce {
		return nil
	}
	if s.Recurrence == RecurrenceDaily {
		hour, minute, err := ParseTimeOfDay(s.TimeOfDay)
		if err != nil {
			return nil
		}
		ref := runTime.UTC()
		next := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, time.UTC).AddDate(0, 0, 1)
		return &next
	}
	return s.NextOccurrenceAfter(runTime)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1).Day()
}

// MessageScheduleFilter represents filter criteria for message schedules
type MessageScheduleFilter struct {
	ID         *uint           `json:"id,omitempty"`
	UUID       *uuid.UUID      `json:"uuid,omitempty"`
	CustomerID *uint           `json:"customer_id,omitempty"`
	CampaignID *uint           `json:"campaign_id,omitempty"`
	Recurrence *RecurrenceKind `json:"recurrence,omitempty"`
	IsActive   *bool           `json:"is_active,omitempty"`
	DueBefore  *time.Time      `json:"due_before,omitempty"`
}
