package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/repository"
	"github.com/amirphl/Susanoo/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newMockGorm returns a gorm handle backed by sqlmock so WithTransaction has a
// real Begin/Commit to run against while the repositories stay in-memory fakes.
func newMockGorm(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)

	return db, mock
}

func expectCommits(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

type fakeQueueRepo struct {
	mu           sync.Mutex
	pending      []*models.QueueItem
	finalized    map[uint]models.QueueStatus
	finalErrors  map[uint]*string
	finalizeFail map[uint]error
	saved        []*models.QueueItem

	requeued  int64
	escalated []*models.QueueItem
	counts    map[models.QueueStatus]int64
}

func newFakeQueueRepo(items ...*models.QueueItem) *fakeQueueRepo {
	return &fakeQueueRepo{
		pending:      items,
		finalized:    make(map[uint]models.QueueStatus),
		finalErrors:  make(map[uint]*string),
		finalizeFail: make(map[uint]error),
	}
}

func (f *fakeQueueRepo) ByID(ctx context.Context, id uint) (*models.QueueItem, error) {
	return nil, nil
}

func (f *fakeQueueRepo) ByFilter(ctx context.Context, filter models.QueueItemFilter, orderBy string, limit, offset int) ([]*models.QueueItem, error) {
	return nil, nil
}

func (f *fakeQueueRepo) Save(ctx context.Context, entity *models.QueueItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, entity)
	return nil
}

func (f *fakeQueueRepo) SaveBatch(ctx context.Context, entities []*models.QueueItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, entities...)
	return nil
}

func (f *fakeQueueRepo) Count(ctx context.Context, filter models.QueueItemFilter) (int64, error) {
	return 0, nil
}

func (f *fakeQueueRepo) Exists(ctx context.Context, filter models.QueueItemFilter) (bool, error) {
	return false, nil
}

func (f *fakeQueueRepo) ClaimNext(ctx context.Context, now time.Time) (*models.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, nil
	}
	item := f.pending[0]
	f.pending = f.pending[1:]
	item.Status = models.QueueStatusSending
	item.StartedAt = &now
	return item, nil
}

func (f *fakeQueueRepo) Finalize(ctx context.Context, itemID uint, status models.QueueStatus, sendErr *string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.finalizeFail[itemID]; ok {
		return err
	}
	f.finalized[itemID] = status
	f.finalErrors[itemID] = sendErr
	return nil
}

func (f *fakeQueueRepo) SweepStale(ctx context.Context, now time.Time, threshold time.Duration, maxRequeues int) (int64, []*models.QueueItem, error) {
	return f.requeued, f.escalated, nil
}

func (f *fakeQueueRepo) CountsByStatus(ctx context.Context, customerID *uint) (map[models.QueueStatus]int64, error) {
	if f.counts == nil {
		return map[models.QueueStatus]int64{}, nil
	}
	return f.counts, nil
}

func (f *fakeQueueRepo) DeleteTerminal(ctx context.Context, customerID uint, statuses []models.QueueStatus) (int64, error) {
	return 0, nil
}

type fakeOutcomeRepo struct {
	mu       sync.Mutex
	outcomes []*models.DeliveryOutcome
}

func (f *fakeOutcomeRepo) ByID(ctx context.Context, id uint) (*models.DeliveryOutcome, error) {
	return nil, nil
}

func (f *fakeOutcomeRepo) ByFilter(ctx context.Context, filter models.DeliveryOutcomeFilter, orderBy string, limit, offset int) ([]*models.DeliveryOutcome, error) {
	return nil, nil
}

func (f *fakeOutcomeRepo) Save(ctx context.Context, entity *models.DeliveryOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, entity)
	return nil
}

func (f *fakeOutcomeRepo) SaveBatch(ctx context.Context, entities []*models.DeliveryOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, entities...)
	return nil
}

func (f *fakeOutcomeRepo) Count(ctx context.Context, filter models.DeliveryOutcomeFilter) (int64, error) {
	return 0, nil
}

func (f *fakeOutcomeRepo) Exists(ctx context.Context, filter models.DeliveryOutcomeFilter) (bool, error) {
	return false, nil
}

func (f *fakeOutcomeRepo) ListByBatch(ctx context.Context, batch uuid.UUID) ([]*models.DeliveryOutcome, error) {
	return nil, nil
}

func (f *fakeOutcomeRepo) CountsByStatus(ctx context.Context, customerID uint, since *time.Time) (map[models.OutcomeStatus]int64, error) {
	return nil, nil
}

type fakeSettingsRepo struct {
	settings *models.DispatchSettings
}

func (f *fakeSettingsRepo) Get(ctx context.Context) (*models.DispatchSettings, error) {
	if f.settings == nil {
		return models.DefaultDispatchSettings(), nil
	}
	return f.settings, nil
}

func (f *fakeSettingsRepo) Update(ctx context.Context, settings *models.DispatchSettings) error {
	f.settings = settings
	return nil
}

type fakeGateway struct {
	mu     sync.Mutex
	sent   []SendRequest
	failOn map[string]error
}

func (f *fakeGateway) Send(ctx context.Context, req SendRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	if err, ok := f.failOn[req.GroupID]; ok {
		return err
	}
	return nil
}

func testQueueItem(id uint, groupID string) *models.QueueItem {
	text := "scheduled announcement"
	return &models.QueueItem{
		ID:             id,
		CustomerID:     1,
		GroupID:        groupID,
		DeviceAPIURL:   "http://wapanel.local:3000",
		DeviceToken:    "token-abc",
		InstanceLabel:  "main-line",
		MessageType:    models.MessageTypeText,
		Payload:        models.MessagePayload{Text: &text},
		Status:         models.QueueStatusPending,
		Priority:       utils.DefaultQueuePriority,
		ExecutionBatch: uuid.New(),
	}
}

func newTestDispatcher(t *testing.T, queueRepo *fakeQueueRepo, outcomeRepo *fakeOutcomeRepo, gateway *fakeGateway) (*Dispatcher, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockGorm(t)
	d := NewDispatcher(
		queueRepo,
		outcomeRepo,
		&fakeSettingsRepo{},
		gateway,
		db,
		config.LoggingConfig{Output: "stdout"},
		config.DispatcherConfig{},
	)
	return d, mock
}

func dispatchSettings(delaySecs, batchCap int) *models.DispatchSettings {
	return &models.DispatchSettings{
		InterMessageDelaySecs: delaySecs,
		BatchCap:              batchCap,
		StaleClaimMins:        10,
	}
}

func TestRunBatchDrainsQueue(t *testing.T) {
	queueRepo := newFakeQueueRepo(testQueueItem(1, "g1"), testQueueItem(2, "g2"))
	outcomeRepo := &fakeOutcomeRepo{}
	gateway := &fakeGateway{}
	d, mock := newTestDispatcher(t, queueRepo, outcomeRepo, gateway)
	expectCommits(mock, 2)

	processed, failed, err := d.RunBatch(context.Background(), dispatchSettings(0, 25))
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Zero(t, failed)

	assert.Len(t, gateway.sent, 2)
	assert.Equal(t, "http://wapanel.local:3000", gateway.sent[0].APIURL)
	assert.Equal(t, "token-abc", gateway.sent[0].Token)

	assert.Equal(t, models.QueueStatusSent, queueRepo.finalized[1])
	assert.Equal(t, models.QueueStatusSent, queueRepo.finalized[2])

	require.Len(t, outcomeRepo.outcomes, 2)
	for _, o := range outcomeRepo.outcomes {
		assert.Equal(t, models.OutcomeStatusSent, o.Status)
		assert.Nil(t, o.Error)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunBatchContinuesAfterGatewayFailure(t *testing.T) {
	queueRepo := newFakeQueueRepo(testQueueItem(1, "g1"), testQueueItem(2, "g2"), testQueueItem(3, "g3"))
	outcomeRepo := &fakeOutcomeRepo{}
	gateway := &fakeGateway{failOn: map[string]error{"g2": errors.New("gateway rejected message: invalid group")}}
	d, mock := newTestDispatcher(t, queueRepo, outcomeRepo, gateway)
	expectCommits(mock, 3)

	processed, failed, err := d.RunBatch(context.Background(), dispatchSettings(0, 25))
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Equal(t, 1, failed)

	assert.Equal(t, models.QueueStatusSent, queueRepo.finalized[1])
	assert.Equal(t, models.QueueStatusError, queueRepo.finalized[2])
	assert.Equal(t, models.QueueStatusSent, queueRepo.finalized[3])

	require.NotNil(t, queueRepo.finalErrors[2])
	assert.Contains(t, *queueRepo.finalErrors[2], "invalid group")

	require.Len(t, outcomeRepo.outcomes, 3)
	assert.Equal(t, models.OutcomeStatusSent, outcomeRepo.outcomes[0].Status)
	assert.Equal(t, models.OutcomeStatusError, outcomeRepo.outcomes[1].Status)
	assert.Equal(t, models.OutcomeStatusSent, outcomeRepo.outcomes[2].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunBatchStopsAtCap(t *testing.T) {
	queueRepo := newFakeQueueRepo(
		testQueueItem(1, "g1"), testQueueItem(2, "g2"), testQueueItem(3, "g3"),
		testQueueItem(4, "g4"), testQueueItem(5, "g5"),
	)
	outcomeRepo := &fakeOutcomeRepo{}
	gateway := &fakeGateway{}
	d, mock := newTestDispatcher(t, queueRepo, outcomeRepo, gateway)
	expectCommits(mock, 2)

	processed, failed, err := d.RunBatch(context.Background(), dispatchSettings(0, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Zero(t, failed)
	assert.Len(t, queueRepo.pending, 3)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunBatchEmptyQueue(t *testing.T) {
	queueRepo := newFakeQueueRepo()
	outcomeRepo := &fakeOutcomeRepo{}
	d, _ := newTestDispatcher(t, queueRepo, outcomeRepo, &fakeGateway{})

	processed, failed, err := d.RunBatch(context.Background(), dispatchSettings(0, 25))
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Zero(t, failed)
	assert.Empty(t, outcomeRepo.outcomes)
}

func TestRunBatchHonorsCancellation(t *testing.T) {
	queueRepo := newFakeQueueRepo(testQueueItem(1, "g1"), testQueueItem(2, "g2"))
	outcomeRepo := &fakeOutcomeRepo{}
	d, mock := newTestDispatcher(t, queueRepo, outcomeRepo, &fakeGateway{})
	expectCommits(mock, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	// The inter-message pause is a full second, so the cancel lands while the
	// dispatcher is sleeping between the first and second item.
	start := time.Now()
	processed, failed, err := d.RunBatch(ctx, dispatchSettings(1, 25))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, processed)
	assert.Zero(t, failed)
	assert.Less(t, time.Since(start), 900*time.Millisecond)

	// The claimed item was finalized despite the cancellation.
	assert.Equal(t, models.QueueStatusSent, queueRepo.finalized[1])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunBatchDropsReclaimedResult(t *testing.T) {
	item := testQueueItem(1, "g1")
	queueRepo := newFakeQueueRepo(item)
	queueRepo.finalizeFail[1] = repository.ErrNotClaimed
	outcomeRepo := &fakeOutcomeRepo{}
	d, mock := newTestDispatcher(t, queueRepo, outcomeRepo, &fakeGateway{})
	mock.ExpectBegin()
	mock.ExpectRollback()

	processed, failed, err := d.RunBatch(context.Background(), dispatchSettings(0, 25))
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Zero(t, failed)
	assert.Empty(t, outcomeRepo.outcomes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunBatchAbortsOnStoreFailure(t *testing.T) {
	queueRepo := newFakeQueueRepo(testQueueItem(1, "g1"), testQueueItem(2, "g2"))
	queueRepo.finalizeFail[1] = fmt.Errorf("connection reset")
	outcomeRepo := &fakeOutcomeRepo{}
	d, mock := newTestDispatcher(t, queueRepo, outcomeRepo, &fakeGateway{})
	mock.ExpectBegin()
	mock.ExpectRollback()

	processed, failed, err := d.RunBatch(context.Background(), dispatchSettings(0, 25))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finalize item id=1")
	assert.Zero(t, processed)
	assert.Zero(t, failed)
	assert.Len(t, queueRepo.pending, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepOnceRecordsEscalations(t *testing.T) {
	poisoned := testQueueItem(9, "g9")
	poisoned.Status = models.QueueStatusError
	poisoned.Error = utils.ToPtr("requeued too many times while sending")

	queueRepo := newFakeQueueRepo()
	queueRepo.requeued = 2
	queueRepo.escalated = []*models.QueueItem{poisoned}
	queueRepo.counts = map[models.QueueStatus]int64{
		models.QueueStatusPending: 4,
		models.QueueStatusError:   1,
	}
	outcomeRepo := &fakeOutcomeRepo{}
	d, _ := newTestDispatcher(t, queueRepo, outcomeRepo, &fakeGateway{})

	d.sweepOnce(context.Background())

	require.Len(t, outcomeRepo.outcomes, 1)
	assert.Equal(t, models.OutcomeStatusError, outcomeRepo.outcomes[0].Status)
	assert.Equal(t, poisoned.GroupID, outcomeRepo.outcomes[0].GroupID)
	require.NotNil(t, outcomeRepo.outcomes[0].Error)
	assert.Contains(t, *outcomeRepo.outcomes[0].Error, "requeued too many times")
}
