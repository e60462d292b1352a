// Package businessflow contains the core business logic and use cases for scheduling and dispatch workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Customer-related errors
	ErrCustomerNotFound = errors.New("customer not found")
	ErrAccountInactive  = errors.New("account is inactive")

	// Device-related errors
	ErrDeviceNotFound     = errors.New("device not found")
	ErrDeviceInactive     = errors.New("device is inactive")
	ErrDeviceAccessDenied = errors.New("device access denied")

	// Campaign-related errors
	ErrCampaignNotFound     = errors.New("campaign not found")
	ErrCampaignAccessDenied = errors.New("campaign access denied")

	// Schedule-related errors
	ErrScheduleNotFound        = errors.New("schedule not found")
	ErrScheduleAccessDenied    = errors.New("schedule access denied")
	ErrInvalidRecurrence       = errors.New("invalid recurrence kind")
	ErrTimeOfDayRequired       = errors.New("time of day is required for recurring schedules")
	ErrTimeOfDayInvalid        = errors.New("time of day must be HH:MM in UTC")
	ErrWeekdaysRequired        = errors.New("weekly schedules require at least one weekday")
	ErrDayOfMonthRequired      = errors.New("monthly schedules require a day of month")
	ErrRunAtRequired           = errors.New("one-off schedules require a run time")
	ErrRunAtInPast             = errors.New("one-off run time is in the past")
	ErrGroupsRequired          = errors.New("at least one target group is required")
	ErrInvalidMessageType      = errors.New("invalid message type")
	ErrPayloadTextRequired     = errors.New("text messages require text content")
	ErrPayloadMediaRequired    = errors.New("media messages require a media URL")
	ErrPayloadLocationRequired = errors.New("location messages require latitude and longitude")
	ErrPayloadContactRequired  = errors.New("contact messages require a name and phone")
	ErrPayloadPollRequired     = errors.New("poll messages require a question and at least two options")
	ErrPayloadListRequired     = errors.New("list messages require a title, button text and one section")
	ErrScheduleExhausted       = errors.New("one-off schedule has already run")

	// Queue-related errors
	ErrQueueItemNotFound     = errors.New("queue item not found")
	ErrQueueItemAccessDenied = errors.New("queue item access denied")
	ErrQueueItemNotTerminal  = errors.New("only sent or error items can be retried")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error checking helper functions
func IsCustomerNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound)
}

func IsAccountInactive(err error) bool {
	return errors.Is(err, ErrAccountInactive)
}

func IsDeviceNotFound(err error) bool {
	return errors.Is(err, ErrDeviceNotFound)
}

func IsScheduleNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound)
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsQueueItemNotFound(err error) bool {
	return errors.Is(err, ErrQueueItemNotFound)
}

func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrScheduleAccessDenied) ||
		errors.Is(err, ErrDeviceAccessDenied) ||
		errors.Is(err, ErrCampaignAccessDenied) ||
		errors.Is(err, ErrQueueItemAccessDenied)
}

func IsDeviceInactive(err error) bool {
	return errors.Is(err, ErrDeviceInactive)
}

func IsScheduleExhausted(err error) bool {
	return errors.Is(err, ErrScheduleExhausted)
}

func IsQueueItemNotTerminal(err error) bool {
	return errors.Is(err, ErrQueueItemNotTerminal)
}

// IsValidationError reports whether the error stems from malformed schedule or
// payload input rather than from a lookup or persistence failure
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidRecurrence,
		ErrTimeOfDayRequired,
		ErrTimeOfDayInvalid,
		ErrWeekdaysRequired,
		ErrDayOfMonthRequired,
		ErrRunAtRequired,
		ErrRunAtInPast,
		ErrGroupsRequired,
		ErrInvalidMessageType,
		ErrPayloadTextRequired,
		ErrPayloadMediaRequired,
		ErrPayloadLocationRequired,
		ErrPayloadContactRequired,
		ErrPayloadPollRequired,
		ErrPayloadListRequired,
		ErrInvalidPage,
		ErrInvalidPageSize,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
