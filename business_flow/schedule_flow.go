// Package businessflow contains the core business logic and use cases for schedule workflows
package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Susanoo/app/dto"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/repository"
	"github.com/amirphl/Susanoo/utils"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ScheduleFlow handles the message schedule business logic
type ScheduleFlow interface {
	CreateSchedule(ctx context.Context, req *dto.CreateScheduleRequest, metadata *ClientMetadata) (*dto.CreateScheduleResponse, error)
	ListSchedules(ctx context.Context, req *dto.ListSchedulesRequest, metadata *ClientMetadata) (*dto.ListSchedulesResponse, error)
	SetScheduleActive(ctx context.Context, req *dto.SetScheduleActiveRequest, metadata *ClientMetadata) (*dto.SetScheduleActiveResponse, error)
}

// ScheduleFlowImpl implements the schedule business flow
type ScheduleFlowImpl struct {
	scheduleRepo repository.MessageScheduleRepository
	deviceRepo   repository.DeviceRepository
	campaignRepo repository.CampaignRepository
	customerRepo repository.CustomerRepository
	db           *gorm.DB
}

// NewScheduleFlow creates a new schedule flow instance
func NewScheduleFlow(
	scheduleRepo repository.MessageScheduleRepository,
	deviceRepo repository.DeviceRepository,
	campaignRepo repository.CampaignRepository,
	customerRepo repository.CustomerRepository,
	db *gorm.DB,
) ScheduleFlow {
	return &ScheduleFlowImpl{
		scheduleRepo: scheduleRepo,
		deviceRepo:   deviceRepo,
		campaignRepo: campaignRepo,
		customerRepo: customerRepo,
		db:           db,
	}
}

// CreateSchedule handles the complete schedule creation process
func (s *ScheduleFlowImpl) CreateSchedule(ctx context.Context, req *dto.CreateScheduleRequest, metadata *ClientMetadata) (*dto.CreateScheduleResponse, error) {
	customer, err := getActiveCustomer(ctx, s.customerRepo, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}

	if err := validateRecurrenceFields(req); err != nil {
		return nil, NewBusinessError("SCHEDULE_VALIDATION_FAILED", "Schedule validation failed", err)
	}
	msgType := models.MessageType(req.MessageType)
	if err := validatePayload(msgType, req.Payload); err != nil {
		return nil, NewBusinessError("SCHEDULE_VALIDATION_FAILED", "Schedule validation failed", err)
	}

	device, err := s.lookupDevice(ctx, req.DeviceUUID, customer.ID)
	if err != nil {
		return nil, NewBusinessError("DEVICE_LOOKUP_FAILED", "Failed to lookup device", err)
	}

	var campaignID *uint
	if req.CampaignUUID != nil {
		campaign, err := s.lookupCampaign(ctx, *req.CampaignUUID, customer.ID)
		if err != nil {
			return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
		}
		campaignID = &campaign.ID
	}

	schedule := &models.MessageSchedule{
		CustomerID:  customer.ID,
		CampaignID:  campaignID,
		DeviceID:    device.ID,
		Recurrence:  models.RecurrenceKind(req.Recurrence),
		MessageType: msgType,
		Payload:     req.Payload,
		GroupIDs:    pq.StringArray(req.GroupIDs),
		IsActive:    utils.ToPtr(true),
	}
	if req.TimeOfDay != nil {
		schedule.TimeOfDay = *req.TimeOfDay
	}
	if len(req.Weekdays) > 0 {
		days := make(pq.Int64Array, 0, len(req.Weekdays))
		for _, d := range req.Weekdays {
			days = append(days, int64(d))
		}
		schedule.Weekdays = days
	}
	schedule.DayOfMonth = req.DayOfMonth
	if req.RunAt != nil {
		runAt := req.RunAt.UTC()
		schedule.RunAt = &runAt
	}

	now := utils.UTCNow()
	nextDue := schedule.NextOccurrenceAfter(now)
	if nextDue == nil {
		return nil, NewBusinessError("SCHEDULE_VALIDATION_FAILED", "Schedule validation failed", ErrInvalidRecurrence)
	}
	if schedule.Recurrence == models.RecurrenceOnce && !nextDue.After(now) {
		return nil, NewBusinessError("SCHEDULE_VALIDATION_FAILED", "Schedule validation failed", ErrRunAtInPast)
	}
	schedule.NextDueAt = nextDue

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		return s.scheduleRepo.Save(txCtx, schedule)
	})
	if err != nil {
		return nil, NewBusinessError("SCHEDULE_CREATION_FAILED", "Schedule creation failed", err)
	}

	return &dto.CreateScheduleResponse{
		Message:   "Schedule created successfully",
		UUID:      schedule.UUID.String(),
		NextDueAt: schedule.NextDueAt,
		CreatedAt: schedule.CreatedAt.Format(time.RFC3339),
	}, nil
}

// ListSchedules returns the customer's schedules, newest first
func (s *ScheduleFlowImpl) ListSchedules(ctx context.Context, req *dto.ListSchedulesRequest, metadata *ClientMetadata) (*dto.ListSchedulesResponse, error) {
	customer, err := getActiveCustomer(ctx, s.customerRepo, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}

	limit, offset, err := pagination(req.Page, req.PageSize)
	if err != nil {
		return nil, NewBusinessError("SCHEDULE_LIST_FAILED", "Invalid pagination", err)
	}

	filter := models.MessageScheduleFilter{CustomerID: &customer.ID}
	schedules, err := s.scheduleRepo.ByFilter(ctx, filter, "created_at DESC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("SCHEDULE_LIST_FAILED", "Failed to list schedules", err)
	}
	total, err := s.scheduleRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("SCHEDULE_LIST_FAILED", "Failed to count schedules", err)
	}

	items := make([]dto.ScheduleDTO, 0, len(schedules))
	for _, sched := range schedules {
		items = append(items, toScheduleDTO(sched))
	}

	return &dto.ListSchedulesResponse{
		Message: "Schedules retrieved successfully",
		Items:   items,
		Total:   total,
	}, nil
}

// SetScheduleActive toggles a schedule. Activation recomputes the next
// occurrence from now; a one-off that has already run stays off.
func (s *ScheduleFlowImpl) SetScheduleActive(ctx context.Context, req *dto.SetScheduleActiveRequest, metadata *ClientMetadata) (*dto.SetScheduleActiveResponse, error) {
	customer, err := getActiveCustomer(ctx, s.customerRepo, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}

	schedule, err := s.scheduleRepo.ByUUID(ctx, req.UUID)
	if err != nil {
		return nil, NewBusinessError("SCHEDULE_LOOKUP_FAILED", "Failed to lookup schedule", err)
	}
	if schedule == nil {
		return nil, NewBusinessError("SCHEDULE_NOT_FOUND", "Schedule not found", ErrScheduleNotFound)
	}
	if schedule.CustomerID != customer.ID {
		return nil, NewBusinessError("SCHEDULE_ACCESS_DENIED", "Schedule access denied", ErrScheduleAccessDenied)
	}

	var nextDue *time.Time
	if req.IsActive {
		if schedule.Recurrence == models.RecurrenceOnce && schedule.LastRunAt != nil {
			return nil, NewBusinessError("SCHEDULE_EXHAUSTED", "Schedule has already run", ErrScheduleExhausted)
		}
		now := utils.UTCNow()
		nextDue = schedule.NextOccurrenceAfter(now)
		if nextDue == nil {
			return nil, NewBusinessError("SCHEDULE_ACTIVATION_FAILED", "Schedule cannot be activated", ErrInvalidRecurrence)
		}
		if schedule.Recurrence == models.RecurrenceOnce && !nextDue.After(now) {
			return nil, NewBusinessError("SCHEDULE_ACTIVATION_FAILED", "Schedule cannot be activated", ErrRunAtInPast)
		}
	}

	if err := s.scheduleRepo.SetActive(ctx, schedule.ID, req.IsActive, nextDue); err != nil {
		return nil, NewBusinessError("SCHEDULE_UPDATE_FAILED", "Failed to update schedule", err)
	}

	msg := "Schedule deactivated successfully"
	if req.IsActive {
		msg = "Schedule activated successfully"
	}
	return &dto.SetScheduleActiveResponse{
		Message:   msg,
		NextDueAt: nextDue,
	}, nil
}

func (s *ScheduleFlowImpl) lookupDevice(ctx context.Context, deviceUUID string, customerID uint) (*models.Device, error) {
	device, err := s.deviceRepo.ByUUID(ctx, deviceUUID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, ErrDeviceNotFound
	}
	if device.CustomerID != customerID {
		return nil, ErrDeviceAccessDenied
	}
	if !utils.IsTrue(device.IsActive) {
		return nil, ErrDeviceInactive
	}
	return device, nil
}

func (s *ScheduleFlowImpl) lookupCampaign(ctx context.Context, campaignUUID string, customerID uint) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.ByUUID(ctx, campaignUUID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}
	if campaign.CustomerID != customerID {
		return nil, ErrCampaignAccessDenied
	}
	return campaign, nil
}

// validateRecurrenceFields checks that the fields required by the recurrence
// kind are present and well formed
func validateRecurrenceFields(req *dto.CreateScheduleRequest) error {
	kind := models.RecurrenceKind(req.Recurrence)
	if !kind.Valid() {
		return ErrInvalidRecurrence
	}
	if len(req.GroupIDs) == 0 {
		return ErrGroupsRequired
	}

	switch kind {
	case models.RecurrenceOnce:
		if req.RunAt == nil {
			return ErrRunAtRequired
		}

	case models.RecurrenceDaily:
		return validateTimeOfDay(req.TimeOfDay)

	case models.RecurrenceWeekly:
		if err := validateTimeOfDay(req.TimeOfDay); err != nil {
			return err
		}
		if len(req.Weekdays) == 0 {
			return ErrWeekdaysRequired
		}

	case models.RecurrenceMonthly:
		if err := validateTimeOfDay(req.TimeOfDay); err != nil {
			return err
		}
		if req.DayOfMonth == nil {
			return ErrDayOfMonthRequired
		}
	}

	return nil
}

func validateTimeOfDay(tod *string) error {
	if tod == nil || *tod == "" {
		return ErrTimeOfDayRequired
	}
	if _, _, err := models.ParseTimeOfDay(*tod); err != nil {
		return fmt.Errorf("%w: %v", ErrTimeOfDayInvalid, err)
	}
	return nil
}

// validatePayload checks the type-specific payload requirements shared by
// schedules and direct sends
func validatePayload(msgType models.MessageType, p models.MessagePayload) error {
	if !msgType.Valid() {
		return ErrInvalidMessageType
	}

	switch msgType {
	case models.MessageTypeText:
		if p.Text == nil || *p.Text == "" {
			return ErrPayloadTextRequired
		}

	case models.MessageTypeImage, models.MessageTypeVideo, models.MessageTypeDocument,
		models.MessageTypeAudio, models.MessageTypeSticker:
		if p.MediaURL == nil || *p.MediaURL == "" {
			return ErrPayloadMediaRequired
		}

	case models.MessageTypeLocation:
		if p.Latitude == nil || p.Longitude == nil {
			return ErrPayloadLocationRequired
		}

	case models.MessageTypeContact:
		if p.ContactName == nil || *p.ContactName == "" || p.ContactPhone == nil || *p.ContactPhone == "" {
			return ErrPayloadContactRequired
		}

	case models.MessageTypePoll:
		if p.PollQuestion == nil || *p.PollQuestion == "" || len(p.PollOptions) < 2 {
			return ErrPayloadPollRequired
		}

	case models.MessageTypeList:
		if p.ListTitle == nil || *p.ListTitle == "" ||
			p.ListButtonText == nil || *p.ListButtonText == "" ||
			len(p.ListSections) == 0 {
			return ErrPayloadListRequired
		}
	}

	return nil
}

func toScheduleDTO(sched *models.MessageSchedule) dto.ScheduleDTO {
	out := dto.ScheduleDTO{
		UUID:        sched.UUID.String(),
		Recurrence:  sched.Recurrence.String(),
		TimeOfDay:   sched.TimeOfDay,
		DayOfMonth:  sched.DayOfMonth,
		RunAt:       sched.RunAt,
		MessageType: sched.MessageType.String(),
		Payload:     sched.Payload,
		GroupIDs:    sched.GroupIDs,
		IsActive:    utils.IsTrue(sched.IsActive),
		NextDueAt:   sched.NextDueAt,
		LastRunAt:   sched.LastRunAt,
		CreatedAt:   sched.CreatedAt,
	}
	if len(sched.Weekdays) > 0 {
		days := make([]int, 0, len(sched.Weekdays))
		for _, d := range sched.Weekdays {
			days = append(days, int(d))
		}
		out.Weekdays = days
	}
	if sched.Campaign != nil {
		out.CampaignUUID = utils.ToPtr(sched.Campaign.UUID.String())
	}
	if sched.Device != nil {
		out.DeviceLabel = sched.Device.Label
	}
	return out
}
