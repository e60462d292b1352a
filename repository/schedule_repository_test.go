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

func TestMessageScheduleRepository(t *testing.T) {
	testingutil.RunWithDB(t, func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		repo := NewMessageScheduleRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		setup := func(t *testing.T) (*models.Customer, *models.Device) {
			t.Helper()
			require.NoError(t, testDB.ClearAllTables())
			customer, err := fixtures.CreateTestCustomer()
			require.NoError(t, err)
			device, err := fixtures.CreateTestDevice(customer.ID)
			require.NoError(t, err)
			return customer, device
		}

		t.Run("ClaimDueSkipsFutureAndInactive", func(t *testing.T) {
			customer, device := setup(t)

			due, err := fixtures.CreateTestSchedule(customer.ID, device.ID, nil, []string{"g1"})
			require.NoError(t, err)

			future, err := fixtures.CreateTestSchedule(customer.ID, device.ID, nil, []string{"g2"})
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.MessageSchedule{}).
				Where("id = ?", future.ID).
				Update("next_due_at", utils.UTCNowAdd(time.Hour)).Error)

			disabled, err := fixtures.CreateTestSchedule(customer.ID, device.ID, nil, []string{"g3"})
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.MessageSchedule{}).
				Where("id = ?", disabled.ID).
				Update("is_active", false).Error)

			claimed, err := repo.ClaimDue(ctx, utils.UTCNow(), utils.DefaultStaleClaimThreshold, 10)
			require.NoError(t, err)
			require.Len(t, claimed, 1)
			assert.Equal(t, due.ID, claimed[0].ID)
			assert.NotNil(t, claimed[0].ProcessingStartedAt)
		})

		t.Run("ClaimIsExclusiveUntilStale", func(t *testing.T) {
			customer, device := setup(t)

			sched, err := fixtures.CreateTestSchedule(customer.ID, device.ID, nil, []string{"g1"})
			require.NoError(t, err)

			first, err := repo.ClaimDue(ctx, utils.UTCNow(), utils.DefaultStaleClaimThreshold, 10)
			require.NoError(t, err)
			require.Len(t, first, 1)

			second, err := repo.ClaimDue(ctx, utils.UTCNow(), utils.DefaultStaleClaimThreshold, 10)
			require.NoError(t, err)
			assert.Empty(t, second)

			// A marker older than the threshold counts as abandoned and the
			// schedule becomes claimable again.
			require.NoError(t, testDB.DB.Model(&models.MessageSchedule{}).
				Where("id = ?", sched.ID).
				Update("processing_started_at", utils.UTCNowAdd(-20*time.Minute)).Error)

			third, err := repo.ClaimDue(ctx, utils.UTCNow(), utils.DefaultStaleClaimThreshold, 10)
			require.NoError(t, err)
			require.Len(t, third, 1)
			assert.Equal(t, sched.ID, third[0].ID)
		})

		t.Run("ConcurrentClaimsAreDisjoint", func(t *testing.T) {
			customer, device := setup(t)

			scheduleIDs := make(map[uint]bool)
			for i := 0; i < 6; i++ {
				sched, err := fixtures.CreateTestSchedule(customer.ID, device.ID, nil, []string{"g1"})
				require.NoError(t, err)
				scheduleIDs[sched.ID] = true
			}

			const runners = 3
			results := make(chan []*models.MessageSchedule, runners)
			var wg sync.WaitGroup
			for i := 0; i < runners; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					claimed, err := repo.ClaimDue(ctx, utils.UTCNow(), utils.DefaultStaleClaimThreshold, 2)
					assert.NoError(t, err)
					results <- claimed
				}()
			}
			wg.Wait()
			close(results)

			seen := make(map[uint]int)
			total := 0
			for claimed := range results {
				for _, sched := range claimed {
					assert.True(t, scheduleIDs[sched.ID])
					seen[sched.ID]++
					total++
				}
			}
			assert.Equal(t, 6, total)
			for id, n := range seen {
				assert.Equalf(t, 1, n, "schedule %d claimed %d times", id, n)
			}
		})

		t.Run("FinishRunAdvancesAndClearsClaim", func(t *testing.T) {
			customer, device := setup(t)

			sched, err := fixtures.CreateTestSchedule(customer.ID, device.ID, nil, []string{"g1"})
			require.NoError(t, err)

			claimed, err := repo.ClaimDue(ctx, utils.UTCNow(), utils.DefaultStaleClaimThreshold, 10)
			require.NoError(t, err)
			require.Len(t, claimed, 1)

			runTime := utils.UTCNow()
			nextDue := utils.UTCNowAdd(24 * time.Hour)
			require.NoError(t, repo.FinishRun(ctx, sched.ID, runTime, &nextDue, false))

			stored, err := repo.ByID(ctx, sched.ID)
			require.NoError(t, err)
			require.NotNil(t, stored.LastRunAt)
			require.NotNil(t, stored.NextDueAt)
			assert.Nil(t, stored.ProcessingStartedAt)
			assert.True(t, utils.IsTrue(stored.IsActive))
			assert.WithinDuration(t, nextDue, *stored.NextDueAt, time.Second)
		})

		t.Run("FinishRunDeactivatesOneOffs", func(t *testing.T) {
			customer, device := setup(t)

			sched, err := fixtures.CreateTestSchedule(customer.ID, device.ID, nil, []string{"g1"})
			require.NoError(t, err)

			require.NoError(t, repo.FinishRun(ctx, sched.ID, utils.UTCNow(), nil, true))

			stored, err := repo.ByID(ctx, sched.ID)
			require.NoError(t, err)
			assert.False(t, utils.IsTrue(stored.IsActive))
			assert.Nil(t, stored.NextDueAt)
			require.NotNil(t, stored.LastRunAt)
		})

		t.Run("ReleaseClaimKeepsRunHistoryUntouched", func(t *testing.T) {
			customer, device := setup(t)

			sched, err := fixtures.CreateTestSchedule(customer.ID, device.ID, nil, []string{"g1"})
			require.NoError(t, err)

			claimed, err := repo.ClaimDue(ctx, utils.UTCNow(), utils.DefaultStaleClaimThreshold, 10)
			require.NoError(t, err)
			require.Len(t, claimed, 1)

			require.NoError(t, repo.ReleaseClaim(ctx, sched.ID))

			stored, err := repo.ByID(ctx, sched.ID)
			require.NoError(t, err)
			assert.Nil(t, stored.ProcessingStartedAt)
			assert.Nil(t, stored.LastRunAt)
			require.NotNil(t, stored.NextDueAt)
		})

		t.Run("SetActiveRewritesDueTime", func(t *testing.T) {
			customer, device := setup(t)

			sched, err := fixtures.CreateTestSchedule(customer.ID, device.ID, nil, []string{"g1"})
			require.NoError(t, err)

			require.NoError(t, repo.SetActive(ctx, sched.ID, false, nil))
			stored, err := repo.ByID(ctx, sched.ID)
			require.NoError(t, err)
			assert.False(t, utils.IsTrue(stored.IsActive))
			assert.Nil(t, stored.NextDueAt)

			reactivatedDue := utils.UTCNowAdd(time.Hour)
			require.NoError(t, repo.SetActive(ctx, sched.ID, true, &reactivatedDue))
			stored, err = repo.ByID(ctx, sched.ID)
			require.NoError(t, err)
			assert.True(t, utils.IsTrue(stored.IsActive))
			require.NotNil(t, stored.NextDueAt)
		})

		t.Run("ListByCustomerIsScoped", func(t *testing.T) {
			customer, device := setup(t)
			other, err := fixtures.CreateTestCustomer()
			require.NoError(t, err)
			otherDevice, err := fixtures.CreateTestDevice(other.ID)
			require.NoError(t, err)

			_, err = fixtures.CreateTestSchedule(customer.ID, device.ID, nil, []string{"g1"})
			require.NoError(t, err)
			_, err = fixtures.CreateTestSchedule(other.ID, otherDevice.ID, nil, []string{"g2"})
			require.NoError(t, err)

			mine, err := repo.ListByCustomer(ctx, customer.ID, 10, 0)
			require.NoError(t, err)
			require.Len(t, mine, 1)
			assert.Equal(t, customer.ID, mine[0].CustomerID)
		})

		return nil
	})
}
