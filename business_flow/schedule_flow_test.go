package businessflow

import (
	"testing"
	"time"

	"github.com/amirphl/Susanoo/app/dto"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseScheduleRequest(recurrence string) *dto.CreateScheduleRequest {
	return &dto.CreateScheduleRequest{
		DeviceUUID:  "9a1f3f9e-7b0a-4f37-9c58-0b39f4d4e2aa",
		Recurrence:  recurrence,
		MessageType: "text",
		Payload:     models.MessagePayload{Text: utils.ToPtr("hello")},
		GroupIDs:    []string{"g1"},
	}
}

func TestValidateRecurrenceFields(t *testing.T) {
	t.Run("UnknownKind", func(t *testing.T) {
		req := baseScheduleRequest("yearly")
		assert.ErrorIs(t, validateRecurrenceFields(req), ErrInvalidRecurrence)
	})

	t.Run("EmptyGroups", func(t *testing.T) {
		req := baseScheduleRequest("daily")
		req.GroupIDs = nil
		assert.ErrorIs(t, validateRecurrenceFields(req), ErrGroupsRequired)
	})

	t.Run("OnceNeedsRunAt", func(t *testing.T) {
		req := baseScheduleRequest("once")
		assert.ErrorIs(t, validateRecurrenceFields(req), ErrRunAtRequired)

		req.RunAt = utils.ToPtr(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC))
		require.NoError(t, validateRecurrenceFields(req))
	})

	t.Run("DailyNeedsTimeOfDay", func(t *testing.T) {
		req := baseScheduleRequest("daily")
		assert.ErrorIs(t, validateRecurrenceFields(req), ErrTimeOfDayRequired)

		req.TimeOfDay = utils.ToPtr("25:00")
		assert.ErrorIs(t, validateRecurrenceFields(req), ErrTimeOfDayInvalid)

		req.TimeOfDay = utils.ToPtr("09:30")
		require.NoError(t, validateRecurrenceFields(req))
	})

	t.Run("WeeklyNeedsWeekdays", func(t *testing.T) {
		req := baseScheduleRequest("weekly")
		req.TimeOfDay = utils.ToPtr("09:30")
		assert.ErrorIs(t, validateRecurrenceFields(req), ErrWeekdaysRequired)

		req.Weekdays = []int{1, 5}
		require.NoError(t, validateRecurrenceFields(req))
	})

	t.Run("MonthlyNeedsDayOfMonth", func(t *testing.T) {
		req := baseScheduleRequest("monthly")
		req.TimeOfDay = utils.ToPtr("09:30")
		assert.ErrorIs(t, validateRecurrenceFields(req), ErrDayOfMonthRequired)

		req.DayOfMonth = utils.ToPtr(31)
		require.NoError(t, validateRecurrenceFields(req))
	})
}

func TestValidatePayload(t *testing.T) {
	t.Run("UnknownType", func(t *testing.T) {
		err := validatePayload(models.MessageType("hologram"), models.MessagePayload{})
		assert.ErrorIs(t, err, ErrInvalidMessageType)
	})

	t.Run("Text", func(t *testing.T) {
		err := validatePayload(models.MessageTypeText, models.MessagePayload{})
		assert.ErrorIs(t, err, ErrPayloadTextRequired)

		err = validatePayload(models.MessageTypeText, models.MessagePayload{Text: utils.ToPtr("")})
		assert.ErrorIs(t, err, ErrPayloadTextRequired)

		err = validatePayload(models.MessageTypeText, models.MessagePayload{Text: utils.ToPtr("hi")})
		require.NoError(t, err)
	})

	t.Run("MediaTypesNeedURL", func(t *testing.T) {
		for _, mt := range []models.MessageType{
			models.MessageTypeImage, models.MessageTypeVideo, models.MessageTypeDocument,
			models.MessageTypeAudio, models.MessageTypeSticker,
		} {
			err := validatePayload(mt, models.MessagePayload{})
			assert.ErrorIs(t, err, ErrPayloadMediaRequired, "type %s", mt)

			err = validatePayload(mt, models.MessagePayload{MediaURL: utils.ToPtr("https://cdn.example.com/a.png")})
			assert.NoError(t, err, "type %s", mt)
		}
	})

	t.Run("Location", func(t *testing.T) {
		err := validatePayload(models.MessageTypeLocation, models.MessagePayload{Latitude: utils.ToPtr(35.0)})
		assert.ErrorIs(t, err, ErrPayloadLocationRequired)

		err = validatePayload(models.MessageTypeLocation, models.MessagePayload{
			Latitude:  utils.ToPtr(35.0),
			Longitude: utils.ToPtr(51.0),
		})
		require.NoError(t, err)
	})

	t.Run("Contact", func(t *testing.T) {
		err := validatePayload(models.MessageTypeContact, models.MessagePayload{ContactName: utils.ToPtr("Sam")})
		assert.ErrorIs(t, err, ErrPayloadContactRequired)

		err = validatePayload(models.MessageTypeContact, models.MessagePayload{
			ContactName:  utils.ToPtr("Sam"),
			ContactPhone: utils.ToPtr("+989121234567"),
		})
		require.NoError(t, err)
	})

	t.Run("PollNeedsTwoOptions", func(t *testing.T) {
		err := validatePayload(models.MessageTypePoll, models.MessagePayload{
			PollQuestion: utils.ToPtr("Release day?"),
			PollOptions:  []string{"Monday"},
		})
		assert.ErrorIs(t, err, ErrPayloadPollRequired)

		err = validatePayload(models.MessageTypePoll, models.MessagePayload{
			PollQuestion: utils.ToPtr("Release day?"),
			PollOptions:  []string{"Monday", "Friday"},
		})
		require.NoError(t, err)
	})

	t.Run("List", func(t *testing.T) {
		err := validatePayload(models.MessageTypeList, models.MessagePayload{ListTitle: utils.ToPtr("Menu")})
		assert.ErrorIs(t, err, ErrPayloadListRequired)

		err = validatePayload(models.MessageTypeList, models.MessagePayload{
			ListTitle:      utils.ToPtr("Menu"),
			ListButtonText: utils.ToPtr("Pick one"),
			ListSections: []models.ListSection{
				{Title: "Mains", Rows: []models.ListRow{{Title: "Rice"}}},
			},
		})
		require.NoError(t, err)
	})
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, IsValidationError(ErrTimeOfDayRequired))
	assert.True(t, IsValidationError(ErrPayloadPollRequired))
	assert.False(t, IsValidationError(ErrScheduleNotFound))
	assert.False(t, IsValidationError(nil))
}
