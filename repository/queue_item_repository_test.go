package repository

import (
	"sync"
	"testing"
	"time"

	"github.com/amirphl/Susanoo/models"
	testingutil "github.com/amirphl/Susanoo/testing"
	"github.com/amirphl/Susanoo/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueItemRepository(t *testing.T) {
	testingutil.RunWithDB(t, func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		repo := NewQueueItemRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		t.Run("ClaimNextOrdersByPriorityThenAge", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			customer, err := fixtures.CreateTestCustomer()
			require.NoError(t, err)

			low, err := fixtures.CreateTestQueueItem(customer.ID, nil, "group-low")
			require.NoError(t, err)

			urgent, err := fixtures.CreateTestQueueItem(customer.ID, nil, "group-urgent")
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.QueueItem{}).
				Where("id = ?", urgent.ID).
				Update("priority", 10).Error)

			first, err := repo.ClaimNext(ctx, utils.UTCNow())
			require.NoError(t, err)
			require.NotNil(t, first)
			assert.Equal(t, urgent.ID, first.ID)
			assert.Equal(t, models.QueueStatusSending, first.Status)
			assert.NotNil(t, first.StartedAt)

			second, err := repo.ClaimNext(ctx, utils.UTCNow())
			require.NoError(t, err)
			require.NotNil(t, second)
			assert.Equal(t, low.ID, second.ID)

			third, err := repo.ClaimNext(ctx, utils.UTCNow())
			require.NoError(t, err)
			assert.Nil(t, third)
		})

		t.Run("ConcurrentClaimHasSingleWinner", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			customer, err := fixtures.CreateTestCustomer()
			require.NoError(t, err)
			_, err = fixtures.CreateTestQueueItem(customer.ID, nil, "group-contested")
			require.NoError(t, err)

			const claimers = 4
			results := make(chan *models.QueueItem, claimers)
			var wg sync.WaitGroup
			for i := 0; i < claimers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					item, err := repo.ClaimNext(ctx, utils.UTCNow())
					assert.NoError(t, err)
					results <- item
				}()
			}
			wg.Wait()
			close(results)

			winners := 0
			for item := range results {
				if item != nil {
					winners++
				}
			}
			assert.Equal(t, 1, winners)
		})

		t.Run("FinalizeSent", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			customer, err := fixtures.CreateTestCustomer()
			require.NoError(t, err)
			_, err = fixtures.CreateTestQueueItem(customer.ID, nil, "group-1")
			require.NoError(t, err)

			claimed, err := repo.ClaimNext(ctx, utils.UTCNow())
			require.NoError(t, err)
			require.NotNil(t, claimed)

			now := utils.UTCNow()
			require.NoError(t, repo.Finalize(ctx, claimed.ID, models.QueueStatusSent, nil, now))

			stored, err := repo.ByID(ctx, claimed.ID)
			require.NoError(t, err)
			require.NotNil(t, stored)
			assert.Equal(t, models.QueueStatusSent, stored.Status)
			assert.Nil(t, stored.Error)
			assert.NotNil(t, stored.CompletedAt)
		})

		t.Run("FinalizeErrorStoresMessage", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			customer, err := fixtures.CreateTestCustomer()
			require.NoError(t, err)
			_, err = fixtures.CreateTestQueueItem(customer.ID, nil, "group-1")
			require.NoError(t, err)

			claimed, err := repo.ClaimNext(ctx, utils.UTCNow())
			require.NoError(t, err)
			require.NotNil(t, claimed)

			msg := utils.ToPtr("gateway rejected message: invalid group")
			require.NoError(t, repo.Finalize(ctx, claimed.ID, models.QueueStatusError, msg, utils.UTCNow()))

			stored, err := repo.ByID(ctx, claimed.ID)
			require.NoError(t, err)
			require.NotNil(t, stored.Error)
			assert.Equal(t, *msg, *stored.Error)
		})

		t.Run("FinalizeRejectsNonTerminalStatus", func(t *testing.T) {
			err := repo.Finalize(ctx, 1, models.QueueStatusPending, nil, utils.UTCNow())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "non-terminal")
		})

		t.Run("FinalizeUnclaimedRowReturnsErrNotClaimed", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			customer, err := fixtures.CreateTestCustomer()
			require.NoError(t, err)
			item, err := fixtures.CreateTestQueueItem(customer.ID, nil, "group-1")
			require.NoError(t, err)

			// Still pending, so the conditional update matches nothing.
			err = repo.Finalize(ctx, item.ID, models.QueueStatusSent, nil, utils.UTCNow())
			assert.ErrorIs(t, err, ErrNotClaimed)

			claimed, err := repo.ClaimNext(ctx, utils.UTCNow())
			require.NoError(t, err)
			require.NoError(t, repo.Finalize(ctx, claimed.ID, models.QueueStatusSent, nil, utils.UTCNow()))

			// Terminal rows cannot be finalized a second time.
			err = repo.Finalize(ctx, claimed.ID, models.QueueStatusError, nil, utils.UTCNow())
			assert.ErrorIs(t, err, ErrNotClaimed)
		})

		t.Run("SweepStaleRequeuesAndEscalates", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			customer, err := fixtures.CreateTestCustomer()
			require.NoError(t, err)

			recoverable, err := fixtures.CreateTestQueueItem(customer.ID, nil, "group-recoverable")
			require.NoError(t, err)
			poisoned, err := fixtures.CreateTestQueueItem(customer.ID, nil, "group-poisoned")
			require.NoError(t, err)
			fresh, err := fixtures.CreateTestQueueItem(customer.ID, nil, "group-fresh")
			require.NoError(t, err)

			now := utils.UTCNow()
			abandoned := now.Add(-30 * time.Minute)
			require.NoError(t, testDB.DB.Model(&models.QueueItem{}).
				Where("id = ?", recoverable.ID).
				Updates(map[string]any{"status": models.QueueStatusSending, "started_at": abandoned}).Error)
			require.NoError(t, testDB.DB.Model(&models.QueueItem{}).
				Where("id = ?", poisoned.ID).
				Updates(map[string]any{"status": models.QueueStatusSending, "started_at": abandoned, "stale_requeues": utils.MaxStaleRequeues}).Error)
			require.NoError(t, testDB.DB.Model(&models.QueueItem{}).
				Where("id = ?", fresh.ID).
				Updates(map[string]any{"status": models.QueueStatusSending, "started_at": now}).Error)

			requeued, escalated, err := repo.SweepStale(ctx, now, 10*time.Minute, utils.MaxStaleRequeues)
			require.NoError(t, err)
			assert.Equal(t, int64(1), requeued)
			require.Len(t, escalated, 1)
			assert.Equal(t, poisoned.ID, escalated[0].ID)

			recovered, err := repo.ByID(ctx, recoverable.ID)
			require.NoError(t, err)
			assert.Equal(t, models.QueueStatusPending, recovered.Status)
			assert.Nil(t, recovered.StartedAt)
			assert.Equal(t, 1, recovered.StaleRequeues)

			dead, err := repo.ByID(ctx, poisoned.ID)
			require.NoError(t, err)
			assert.Equal(t, models.QueueStatusError, dead.Status)
			require.NotNil(t, dead.Error)

			untouched, err := repo.ByID(ctx, fresh.ID)
			require.NoError(t, err)
			assert.Equal(t, models.QueueStatusSending, untouched.Status)
		})

		t.Run("CountsByStatusScopedToCustomer", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			alice, err := fixtures.CreateTestCustomer()
			require.NoError(t, err)
			bob, err := fixtures.CreateTestCustomer()
			require.NoError(t, err)

			_, err = fixtures.CreateTestQueueItem(alice.ID, nil, "group-a1")
			require.NoError(t, err)
			_, err = fixtures.CreateTestQueueItem(alice.ID, nil, "group-a2")
			require.NoError(t, err)
			_, err = fixtures.CreateTestQueueItem(bob.ID, nil, "group-b1")
			require.NoError(t, err)

			all, err := repo.CountsByStatus(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, int64(3), all[models.QueueStatusPending])

			scoped, err := repo.CountsByStatus(ctx, &alice.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(2), scoped[models.QueueStatusPending])
			assert.Zero(t, scoped[models.QueueStatusSent])
		})

		t.Run("DeleteTerminalLeavesLiveRows", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			customer, err := fixtures.CreateTestCustomer()
			require.NoError(t, err)

			pending, err := fixtures.CreateTestQueueItem(customer.ID, nil, "group-pending")
			require.NoError(t, err)
			done, err := fixtures.CreateTestQueueItem(customer.ID, nil, "group-done")
			require.NoError(t, err)
			failed, err := fixtures.CreateTestQueueItem(customer.ID, nil, "group-failed")
			require.NoError(t, err)

			require.NoError(t, testDB.DB.Model(&models.QueueItem{}).
				Where("id = ?", done.ID).Update("status", models.QueueStatusSent).Error)
			require.NoError(t, testDB.DB.Model(&models.QueueItem{}).
				Where("id = ?", failed.ID).Update("status", models.QueueStatusError).Error)

			_, err = repo.DeleteTerminal(ctx, customer.ID, []models.QueueStatus{models.QueueStatusPending})
			require.Error(t, err)

			deleted, err := repo.DeleteTerminal(ctx, customer.ID, nil)
			require.NoError(t, err)
			assert.Equal(t, int64(2), deleted)

			remaining, err := repo.ByID(ctx, pending.ID)
			require.NoError(t, err)
			require.NotNil(t, remaining)
			assert.Equal(t, models.QueueStatusPending, remaining.Status)
		})

		return nil
	})
}
