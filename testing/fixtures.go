// Package testing provides test utilities and database setup for testing the dispatch system
package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/utils"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestCustomer creates an active test customer
func (tf *TestFixtures) CreateTestCustomer() (*models.Customer, error) {
	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("TestPass123!"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	suffix := rand.Intn(10000000)

	customer := &models.Customer{
		Email:        fmt.Sprintf("jane.doe.%d@example.com", suffix),
		Name:         "Jane Doe",
		PasswordHash: string(hashedPassword),
		IsActive:     utils.ToPtr(true),
	}

	err = tf.DB.DB.Create(customer).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create test customer: %w", err)
	}

	return customer, nil
}

// CreateTestDevice creates an active gateway device for the customer
func (tf *TestFixtures) CreateTestDevice(customerID uint) (*models.Device, error) {
	suffix := rand.Intn(10000000)

	device := &models.Device{
		CustomerID: customerID,
		Label:      fmt.Sprintf("device-%d", suffix),
		APIURL:     "http://wapanel.local:3000",
		Token:      fmt.Sprintf("token-%d", suffix),
		InstanceID: fmt.Sprintf("instance-%d", suffix),
		IsActive:   utils.ToPtr(true),
	}

	err := tf.DB.DB.Create(device).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create test device: %w", err)
	}

	return device, nil
}

// CreateTestCampaign creates an active campaign for the customer
func (tf *TestFixtures) CreateTestCampaign(customerID uint, groupIDs []string) (*models.Campaign, error) {
	campaign := &models.Campaign{
		CustomerID: customerID,
		Title:      fmt.Sprintf("campaign-%d", rand.Intn(10000000)),
		GroupIDs:   groupIDs,
		IsActive:   utils.ToPtr(true),
	}

	err := tf.DB.DB.Create(campaign).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create test campaign: %w", err)
	}

	return campaign, nil
}

// CreateTestSchedule creates an active daily schedule due in the past so the
// runner will pick it up immediately
func (tf *TestFixtures) CreateTestSchedule(customerID, deviceID uint, campaignID *uint, groupIDs []string) (*models.MessageSchedule, error) {
	due := time.Now().UTC().Add(-time.Minute)
	text := "hello"

	schedule := &models.MessageSchedule{
		CustomerID:  customerID,
		CampaignID:  campaignID,
		DeviceID:    deviceID,
		Recurrence:  models.RecurrenceDaily,
		TimeOfDay:   "09:00",
		MessageType: models.MessageTypeText,
		Payload:     models.MessagePayload{Text: &text},
		GroupIDs:    groupIDs,
		IsActive:    utils.ToPtr(true),
		NextDueAt:   &due,
	}

	err := tf.DB.DB.Create(schedule).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create test schedule: %w", err)
	}

	return schedule, nil
}

// CreateTestQueueItem creates a pending queue item carrying a device snapshot
func (tf *TestFixtures) CreateTestQueueItem(customerID uint, scheduleID *uint, groupID string) (*models.QueueItem, error) {
	text := "hello"

	item := &models.QueueItem{
		CustomerID:     customerID,
		ScheduleID:     scheduleID,
		GroupID:        groupID,
		DeviceAPIURL:   "http://wapanel.local:3000",
		DeviceToken:    "test-token",
		InstanceLabel:  "test-device",
		MessageType:    models.MessageTypeText,
		Payload:        models.MessagePayload{Text: &text},
		Status:         models.QueueStatusPending,
		Priority:       utils.DefaultQueuePriority,
		ExecutionBatch: uuid.New(),
	}

	err := tf.DB.DB.Create(item).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create test queue item: %w", err)
	}

	return item, nil
}
