package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/utils"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type finishCall struct {
	scheduleID uint
	runTime    time.Time
	nextDue    *time.Time
	deactivate bool
}

type fakeScheduleRepo struct {
	mu       sync.Mutex
	due      []*models.MessageSchedule
	finished []finishCall
	released []uint
}

func (f *fakeScheduleRepo) ByID(ctx context.Context, id uint) (*models.MessageSchedule, error) {
	return nil, nil
}

func (f *fakeScheduleRepo) ByFilter(ctx context.Context, filter models.MessageScheduleFilter, orderBy string, limit, offset int) ([]*models.MessageSchedule, error) {
	return nil, nil
}

func (f *fakeScheduleRepo) Save(ctx context.Context, entity *models.MessageSchedule) error {
	return nil
}

func (f *fakeScheduleRepo) SaveBatch(ctx context.Context, entities []*models.MessageSchedule) error {
	return nil
}

func (f *fakeScheduleRepo) Count(ctx context.Context, filter models.MessageScheduleFilter) (int64, error) {
	return 0, nil
}

func (f *fakeScheduleRepo) Exists(ctx context.Context, filter models.MessageScheduleFilter) (bool, error) {
	return false, nil
}

func (f *fakeScheduleRepo) ByUUID(ctx context.Context, uuid string) (*models.MessageSchedule, error) {
	return nil, nil
}

func (f *fakeScheduleRepo) ListByCustomer(ctx context.Context, customerID uint, limit, offset int) ([]*models.MessageSchedule, error) {
	return nil, nil
}

func (f *fakeScheduleRepo) ClaimDue(ctx context.Context, now time.Time, staleAfter time.Duration, limit int) ([]*models.MessageSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claimed := f.due
	f.due = nil
	return claimed, nil
}

func (f *fakeScheduleRepo) FinishRun(ctx context.Context, scheduleID uint, runTime time.Time, nextDue *time.Time, deactivate bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, finishCall{scheduleID, runTime, nextDue, deactivate})
	return nil
}

func (f *fakeScheduleRepo) ReleaseClaim(ctx context.Context, scheduleID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, scheduleID)
	return nil
}

func (f *fakeScheduleRepo) SetActive(ctx context.Context, scheduleID uint, isActive bool, nextDue *time.Time) error {
	return nil
}

type fakeCampaignRepo struct {
	campaigns map[uint]*models.Campaign
}

func (f *fakeCampaignRepo) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	return f.campaigns[id], nil
}

func (f *fakeCampaignRepo) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	return nil, nil
}

func (f *fakeCampaignRepo) Save(ctx context.Context, entity *models.Campaign) error {
	return nil
}

func (f *fakeCampaignRepo) SaveBatch(ctx context.Context, entities []*models.Campaign) error {
	return nil
}

func (f *fakeCampaignRepo) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	return 0, nil
}

func (f *fakeCampaignRepo) Exists(ctx context.Context, filter models.CampaignFilter) (bool, error) {
	return false, nil
}

func (f *fakeCampaignRepo) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	return nil, nil
}

func (f *fakeCampaignRepo) ListByCustomer(ctx context.Context, customerID uint, limit, offset int) ([]*models.Campaign, error) {
	return nil, nil
}

func (f *fakeCampaignRepo) SetActive(ctx context.Context, campaignID uint, isActive bool) error {
	return nil
}

type fakeDeviceRepo struct {
	devices map[uint]*models.Device
	byIDErr error
}

func (f *fakeDeviceRepo) ByID(ctx context.Context, id uint) (*models.Device, error) {
	if f.byIDErr != nil {
		return nil, f.byIDErr
	}
	return f.devices[id], nil
}

func (f *fakeDeviceRepo) ByFilter(ctx context.Context, filter models.DeviceFilter, orderBy string, limit, offset int) ([]*models.Device, error) {
	return nil, nil
}

func (f *fakeDeviceRepo) Save(ctx context.Context, entity *models.Device) error {
	return nil
}

func (f *fakeDeviceRepo) SaveBatch(ctx context.Context, entities []*models.Device) error {
	return nil
}

func (f *fakeDeviceRepo) Count(ctx context.Context, filter models.DeviceFilter) (int64, error) {
	return 0, nil
}

func (f *fakeDeviceRepo) Exists(ctx context.Context, filter models.DeviceFilter) (bool, error) {
	return false, nil
}

func (f *fakeDeviceRepo) ByUUID(ctx context.Context, uuid string) (*models.Device, error) {
	return nil, nil
}

func (f *fakeDeviceRepo) ListByCustomer(ctx context.Context, customerID uint) ([]*models.Device, error) {
	return nil, nil
}

func (f *fakeDeviceRepo) SetActive(ctx context.Context, deviceID uint, isActive bool) error {
	return nil
}

func activeDevice(id uint) *models.Device {
	return &models.Device{
		ID:       id,
		Label:    "main-line",
		APIURL:   "http://wapanel.local:3000",
		Token:    "token-abc",
		IsActive: utils.ToPtr(true),
	}
}

func dailySchedule(id uint) *models.MessageSchedule {
	text := "daily digest"
	return &models.MessageSchedule{
		ID:          id,
		CustomerID:  1,
		DeviceID:    5,
		Recurrence:  models.RecurrenceDaily,
		TimeOfDay:   "09:00",
		MessageType: models.MessageTypeText,
		Payload:     models.MessagePayload{Text: &text},
		GroupIDs:    pq.StringArray{"g1", "g2"},
		IsActive:    utils.ToPtr(true),
	}
}

func newTestRunner(t *testing.T, scheduleRepo *fakeScheduleRepo, queueRepo *fakeQueueRepo, campaignRepo *fakeCampaignRepo, deviceRepo *fakeDeviceRepo) (*RecurrenceRunner, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockGorm(t)
	r := NewRecurrenceRunner(
		scheduleRepo,
		queueRepo,
		campaignRepo,
		deviceRepo,
		db,
		config.LoggingConfig{Output: "stdout"},
		config.DispatcherConfig{},
	)
	return r, mock
}

func TestProcessScheduleExpandsIntoQueueItems(t *testing.T) {
	sched := dailySchedule(11)
	scheduleRepo := &fakeScheduleRepo{}
	queueRepo := newFakeQueueRepo()
	deviceRepo := &fakeDeviceRepo{devices: map[uint]*models.Device{5: activeDevice(5)}}
	r, mock := newTestRunner(t, scheduleRepo, queueRepo, &fakeCampaignRepo{}, deviceRepo)
	expectCommits(mock, 1)

	now := time.Date(2026, 6, 10, 9, 0, 30, 0, time.UTC)
	require.NoError(t, r.processSchedule(context.Background(), sched, now))

	require.Len(t, queueRepo.saved, 2)
	batch := queueRepo.saved[0].ExecutionBatch
	for i, item := range queueRepo.saved {
		assert.Equal(t, sched.GroupIDs[i], item.GroupID)
		assert.Equal(t, batch, item.ExecutionBatch)
		assert.Equal(t, models.QueueStatusPending, item.Status)
		assert.Equal(t, "http://wapanel.local:3000", item.DeviceAPIURL)
		assert.Equal(t, "token-abc", item.DeviceToken)
		assert.Equal(t, "main-line", item.InstanceLabel)
		require.NotNil(t, item.ScheduleID)
		assert.Equal(t, sched.ID, *item.ScheduleID)
	}

	require.Len(t, scheduleRepo.finished, 1)
	call := scheduleRepo.finished[0]
	assert.Equal(t, sched.ID, call.scheduleID)
	assert.False(t, call.deactivate)
	require.NotNil(t, call.nextDue)
	assert.Equal(t, time.Date(2026, 6, 11, 9, 0, 0, 0, time.UTC), *call.nextDue)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessScheduleCampaignGroupsOverride(t *testing.T) {
	sched := dailySchedule(11)
	campaignID := uint(3)
	sched.CampaignID = &campaignID

	scheduleRepo := &fakeScheduleRepo{}
	queueRepo := newFakeQueueRepo()
	campaignRepo := &fakeCampaignRepo{campaigns: map[uint]*models.Campaign{
		3: {ID: 3, IsActive: utils.ToPtr(true), GroupIDs: pq.StringArray{"c1", "c2", "c3"}},
	}}
	deviceRepo := &fakeDeviceRepo{devices: map[uint]*models.Device{5: activeDevice(5)}}
	r, mock := newTestRunner(t, scheduleRepo, queueRepo, campaignRepo, deviceRepo)
	expectCommits(mock, 1)

	now := time.Date(2026, 6, 10, 9, 0, 30, 0, time.UTC)
	require.NoError(t, r.processSchedule(context.Background(), sched, now))

	require.Len(t, queueRepo.saved, 3)
	assert.Equal(t, "c1", queueRepo.saved[0].GroupID)
	assert.Equal(t, "c3", queueRepo.saved[2].GroupID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessScheduleInactiveCampaignSuppresses(t *testing.T) {
	sched := dailySchedule(11)
	campaignID := uint(3)
	sched.CampaignID = &campaignID

	scheduleRepo := &fakeScheduleRepo{}
	queueRepo := newFakeQueueRepo()
	campaignRepo := &fakeCampaignRepo{campaigns: map[uint]*models.Campaign{
		3: {ID: 3, IsActive: utils.ToPtr(false), GroupIDs: pq.StringArray{"c1"}},
	}}
	deviceRepo := &fakeDeviceRepo{devices: map[uint]*models.Device{5: activeDevice(5)}}
	r, _ := newTestRunner(t, scheduleRepo, queueRepo, campaignRepo, deviceRepo)

	now := time.Date(2026, 6, 10, 9, 0, 30, 0, time.UTC)
	require.NoError(t, r.processSchedule(context.Background(), sched, now))

	// Nothing is enqueued and no run is recorded: the claim is released so
	// the schedule fires as soon as the campaign comes back.
	assert.Empty(t, queueRepo.saved)
	assert.Empty(t, scheduleRepo.finished)
	assert.Equal(t, []uint{sched.ID}, scheduleRepo.released)
}

func TestProcessScheduleSuppressedOneOffIsNotConsumed(t *testing.T) {
	runAt := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	sched := dailySchedule(11)
	sched.Recurrence = models.RecurrenceOnce
	sched.TimeOfDay = ""
	sched.RunAt = &runAt
	campaignID := uint(3)
	sched.CampaignID = &campaignID

	scheduleRepo := &fakeScheduleRepo{}
	queueRepo := newFakeQueueRepo()
	campaignRepo := &fakeCampaignRepo{campaigns: map[uint]*models.Campaign{
		3: {ID: 3, IsActive: utils.ToPtr(false), GroupIDs: pq.StringArray{"c1"}},
	}}
	deviceRepo := &fakeDeviceRepo{devices: map[uint]*models.Device{5: activeDevice(5)}}
	r, _ := newTestRunner(t, scheduleRepo, queueRepo, campaignRepo, deviceRepo)

	require.NoError(t, r.processSchedule(context.Background(), sched, runAt.Add(30*time.Second)))

	// A never-sent one-off stays armed: no deactivation, no last_run_at,
	// only the claim marker is cleared.
	assert.Empty(t, queueRepo.saved)
	assert.Empty(t, scheduleRepo.finished)
	assert.Equal(t, []uint{sched.ID}, scheduleRepo.released)
}

func TestProcessScheduleMissingCampaignSuppresses(t *testing.T) {
	sched := dailySchedule(11)
	campaignID := uint(404)
	sched.CampaignID = &campaignID

	scheduleRepo := &fakeScheduleRepo{}
	queueRepo := newFakeQueueRepo()
	deviceRepo := &fakeDeviceRepo{devices: map[uint]*models.Device{5: activeDevice(5)}}
	r, _ := newTestRunner(t, scheduleRepo, queueRepo, &fakeCampaignRepo{}, deviceRepo)

	require.NoError(t, r.processSchedule(context.Background(), sched, utils.UTCNow()))

	assert.Empty(t, queueRepo.saved)
	assert.Empty(t, scheduleRepo.finished)
	assert.Equal(t, []uint{sched.ID}, scheduleRepo.released)
}

func TestProcessScheduleEmptyGroupsDeactivates(t *testing.T) {
	sched := dailySchedule(11)
	sched.GroupIDs = pq.StringArray{}

	scheduleRepo := &fakeScheduleRepo{}
	queueRepo := newFakeQueueRepo()
	deviceRepo := &fakeDeviceRepo{devices: map[uint]*models.Device{5: activeDevice(5)}}
	r, _ := newTestRunner(t, scheduleRepo, queueRepo, &fakeCampaignRepo{}, deviceRepo)

	require.NoError(t, r.processSchedule(context.Background(), sched, utils.UTCNow()))

	assert.Empty(t, queueRepo.saved)
	require.Len(t, scheduleRepo.finished, 1)
	assert.True(t, scheduleRepo.finished[0].deactivate)
	assert.Nil(t, scheduleRepo.finished[0].nextDue)
}

func TestProcessScheduleDisabledDeviceSkipsRun(t *testing.T) {
	sched := dailySchedule(11)

	disabled := activeDevice(5)
	disabled.IsActive = utils.ToPtr(false)

	scheduleRepo := &fakeScheduleRepo{}
	queueRepo := newFakeQueueRepo()
	deviceRepo := &fakeDeviceRepo{devices: map[uint]*models.Device{5: disabled}}
	r, _ := newTestRunner(t, scheduleRepo, queueRepo, &fakeCampaignRepo{}, deviceRepo)

	now := time.Date(2026, 6, 10, 9, 0, 30, 0, time.UTC)
	require.NoError(t, r.processSchedule(context.Background(), sched, now))

	assert.Empty(t, queueRepo.saved)
	require.Len(t, scheduleRepo.finished, 1)
	assert.False(t, scheduleRepo.finished[0].deactivate)
	require.NotNil(t, scheduleRepo.finished[0].nextDue)
}

func TestProcessScheduleOnceDeactivatesAfterRun(t *testing.T) {
	runAt := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	sched := dailySchedule(11)
	sched.Recurrence = models.RecurrenceOnce
	sched.TimeOfDay = ""
	sched.RunAt = &runAt

	scheduleRepo := &fakeScheduleRepo{}
	queueRepo := newFakeQueueRepo()
	deviceRepo := &fakeDeviceRepo{devices: map[uint]*models.Device{5: activeDevice(5)}}
	r, mock := newTestRunner(t, scheduleRepo, queueRepo, &fakeCampaignRepo{}, deviceRepo)
	expectCommits(mock, 1)

	require.NoError(t, r.processSchedule(context.Background(), sched, runAt.Add(30*time.Second)))

	assert.Len(t, queueRepo.saved, 2)
	require.Len(t, scheduleRepo.finished, 1)
	assert.True(t, scheduleRepo.finished[0].deactivate)
	assert.Nil(t, scheduleRepo.finished[0].nextDue)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnceReleasesClaimOnFailure(t *testing.T) {
	sched := dailySchedule(11)
	scheduleRepo := &fakeScheduleRepo{due: []*models.MessageSchedule{sched}}
	queueRepo := newFakeQueueRepo()
	deviceRepo := &fakeDeviceRepo{byIDErr: errors.New("connection refused")}
	r, _ := newTestRunner(t, scheduleRepo, queueRepo, &fakeCampaignRepo{}, deviceRepo)

	processed, failed := r.runOnce(context.Background())

	assert.Zero(t, processed)
	assert.Equal(t, 1, failed)
	assert.Empty(t, queueRepo.saved)
	assert.Empty(t, scheduleRepo.finished)
	assert.Equal(t, []uint{sched.ID}, scheduleRepo.released)
}
