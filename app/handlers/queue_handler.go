// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/amirphl/Susanoo/app/dto"
	businessflow "github.com/amirphl/Susanoo/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// QueueHandlerInterface defines the contract for queue handlers
type QueueHandlerInterface interface {
	QueueStatus(c fiber.Ctx) error
	ListQueueItems(c fiber.Ctx) error
	RequeueItem(c fiber.Ctx) error
	ClearQueue(c fiber.Ctx) error
	ListOutcomes(c fiber.Ctx) error
	GetDispatchSettings(c fiber.Ctx) error
	UpdateDispatchSettings(c fiber.Ctx) error
}

// QueueHandler handles delivery queue inspection and recovery HTTP requests
type QueueHandler struct {
	queueFlow businessflow.QueueFlow
	validator *validator.Validate
}

func (h *QueueHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *QueueHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(queueFlow businessflow.QueueFlow) *QueueHandler {
	return &QueueHandler{
		queueFlow: queueFlow,
		validator: validator.New(),
	}
}

// QueueStatus returns per-status queue depth counts
// @Summary Queue Status
// @Description Retrieve the authenticated customer's queue depth broken down by status
// @Tags Queue
// @Accept json
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.QueueStatusResponse}
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/queue/status [get]
func (h *QueueHandler) QueueStatus(c fiber.Ctx) error {
	customerID, ok := c.Locals("customer_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	req := &dto.QueueStatusRequest{CustomerID: customerID}
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.queueFlow.QueueStatus(h.createRequestContext(c, "/api/v1/queue/status"), req, metadata)
	if err != nil {
		if businessflow.IsCustomerNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer not found", "CUSTOMER_NOT_FOUND", nil)
		}
		if businessflow.IsAccountInactive(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer account is inactive", "ACCOUNT_INACTIVE", nil)
		}

		log.Println("Queue status failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to read queue status", "QUEUE_STATUS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Queue status retrieved successfully", fiber.Map{
		"message": result.Message,
		"counts":  result.Counts,
	})
}

// ListQueueItems returns queue items with optional status filter and pagination
// @Summary List Queue Items
// @Description Retrieve the authenticated customer's queue items, newest first
// @Tags Queue
// @Accept json
// @Produce json
// @Param status query string false "Filter by status (pending|sending|sent|error)"
// @Param schedule_id query int false "Filter by originating schedule"
// @Param execution_batch query string false "Filter by execution batch UUID"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Items per page (max 100)" default(20)
// @Success 200 {object} dto.APIResponse{data=dto.ListQueueItemsResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/queue/items [get]
func (h *QueueHandler) ListQueueItems(c fiber.Ctx) error {
	customerID, ok := c.Locals("customer_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	req := &dto.ListQueueItemsRequest{
		CustomerID: customerID,
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "page_size", 20),
	}
	if status := c.Query("status"); status != "" {
		req.Status = &status
	}
	if scheduleID := queryInt(c, "schedule_id", 0); scheduleID > 0 {
		id := uint(scheduleID)
		req.ScheduleID = &id
	}
	if batch := c.Query("execution_batch"); batch != "" {
		req.ExecutionBatch = &batch
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.queueFlow.ListQueueItems(h.createRequestContext(c, "/api/v1/queue/items"), req, metadata)
	if err != nil {
		if businessflow.IsCustomerNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer not found", "CUSTOMER_NOT_FOUND", nil)
		}
		if businessflow.IsAccountInactive(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer account is inactive", "ACCOUNT_INACTIVE", nil)
		}
		if businessflow.IsValidationError(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid pagination", "INVALID_PAGINATION", err.Error())
		}

		log.Println("List queue items failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list queue items", "LIST_QUEUE_ITEMS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Queue items retrieved successfully", fiber.Map{
		"message": result.Message,
		"items":   result.Items,
		"total":   result.Total,
	})
}

// RequeueItem retries a terminal queue item by inserting a fresh pending copy
// @Summary Requeue Item
// @Description Insert a fresh pending copy of a sent or errored queue item, keeping its execution batch
// @Tags Queue
// @Accept json
// @Produce json
// @Param id path int true "Queue item ID"
// @Success 200 {object} dto.APIResponse{data=dto.RequeueItemResponse}
// @Failure 400 {object} dto.APIResponse "Invalid item ID"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 403 {object} dto.APIResponse "Forbidden - item belongs to another customer"
// @Failure 404 {object} dto.APIResponse "Queue item not found"
// @Failure 409 {object} dto.APIResponse "Item is not in a terminal state"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/queue/items/{id}/requeue [post]
func (h *QueueHandler) RequeueItem(c fiber.Ctx) error {
	itemID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid queue item ID", "INVALID_ITEM_ID", nil)
	}

	customerID, ok := c.Locals("customer_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	req := &dto.RequeueItemRequest{
		ItemID:     uint(itemID),
		CustomerID: customerID,
	}
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.queueFlow.RequeueItem(h.createRequestContext(c, "/api/v1/queue/items/requeue"), req, metadata)
	if err != nil {
		if businessflow.IsCustomerNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer not found", "CUSTOMER_NOT_FOUND", nil)
		}
		if businessflow.IsAccountInactive(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer account is inactive", "ACCOUNT_INACTIVE", nil)
		}
		if businessflow.IsQueueItemNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Queue item not found", "QUEUE_ITEM_NOT_FOUND", nil)
		}
		if businessflow.IsAccessDenied(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Access denied: queue item belongs to another customer", "QUEUE_ITEM_ACCESS_DENIED", nil)
		}
		if businessflow.IsQueueItemNotTerminal(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Only sent or error items can be retried", "QUEUE_ITEM_NOT_TERMINAL", nil)
		}

		log.Println("Requeue item failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to requeue item", "REQUEUE_ITEM_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Queue item requeued successfully", fiber.Map{
		"message":     result.Message,
		"new_item_id": result.NewItemID,
	})
}

// ClearQueue deletes the customer's terminal queue items
// @Summary Clear Queue
// @Description Delete the authenticated customer's sent and errored queue items
// @Tags Queue
// @Accept json
// @Produce json
// @Param request body dto.ClearQueueRequest false "Optional status subset (sent|error)"
// @Success 200 {object} dto.APIResponse{data=dto.ClearQueueResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/queue/clear [post]
func (h *QueueHandler) ClearQueue(c fiber.Ctx) error {
	var req dto.ClearQueueRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}

	// Validate request
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	customerID, ok := c.Locals("customer_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}
	req.CustomerID = customerID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.queueFlow.ClearQueue(h.createRequestContext(c, "/api/v1/queue/clear"), &req, metadata)
	if err != nil {
		if businessflow.IsCustomerNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer not found", "CUSTOMER_NOT_FOUND", nil)
		}
		if businessflow.IsAccountInactive(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer account is inactive", "ACCOUNT_INACTIVE", nil)
		}

		log.Println("Clear queue failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to clear queue", "CLEAR_QUEUE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Queue cleared successfully", fiber.Map{
		"message": result.Message,
		"deleted": result.Deleted,
	})
}

// ListOutcomes returns delivery outcomes with optional status filter and pagination
// @Summary List Delivery Outcomes
// @Description Retrieve the authenticated customer's delivery history, newest first
// @Tags Queue
// @Accept json
// @Produce json
// @Param status query string false "Filter by outcome (sent|error)"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Items per page (max 100)" default(20)
// @Success 200 {object} dto.APIResponse{data=dto.ListOutcomesResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/queue/outcomes [get]
func (h *QueueHandler) ListOutcomes(c fiber.Ctx) error {
	customerID, ok := c.Locals("customer_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	req := &dto.ListOutcomesRequest{
		CustomerID: customerID,
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "page_size", 20),
	}
	if status := c.Query("status"); status != "" {
		req.Status = &status
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.queueFlow.ListOutcomes(h.createRequestContext(c, "/api/v1/queue/outcomes"), req, metadata)
	if err != nil {
		if businessflow.IsCustomerNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer not found", "CUSTOMER_NOT_FOUND", nil)
		}
		if businessflow.IsAccountInactive(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer account is inactive", "ACCOUNT_INACTIVE", nil)
		}
		if businessflow.IsValidationError(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid pagination", "INVALID_PAGINATION", err.Error())
		}

		log.Println("List outcomes failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list outcomes", "LIST_OUTCOMES_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Outcomes retrieved successfully", fiber.Map{
		"message": result.Message,
		"items":   result.Items,
		"total":   result.Total,
	})
}

// GetDispatchSettings returns the operator-tunable dispatcher settings
// @Summary Get Dispatch Settings
// @Description Retrieve the current inter-message delay, batch cap and stale claim threshold
// @Tags Settings
// @Accept json
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.GetDispatchSettingsResponse}
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/settings/dispatch [get]
func (h *QueueHandler) GetDispatchSettings(c fiber.Ctx) error {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.queueFlow.GetDispatchSettings(h.createRequestContext(c, "/api/v1/settings/dispatch"), metadata)
	if err != nil {
		log.Println("Get dispatch settings failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to read dispatch settings", "GET_DISPATCH_SETTINGS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Dispatch settings retrieved successfully", fiber.Map{
		"message":  result.Message,
		"settings": result.Settings,
	})
}

// UpdateDispatchSettings updates the operator-tunable dispatcher settings
// @Summary Update Dispatch Settings
// @Description Update the inter-message delay, batch cap or stale claim threshold; omitted fields keep their value
// @Tags Settings
// @Accept json
// @Produce json
// @Param request body dto.UpdateDispatchSettingsRequest true "Settings to change"
// @Success 200 {object} dto.APIResponse{data=dto.UpdateDispatchSettingsResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/settings/dispatch [put]
func (h *QueueHandler) UpdateDispatchSettings(c fiber.Ctx) error {
	var req dto.UpdateDispatchSettingsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	// Validate request
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.queueFlow.UpdateDispatchSettings(h.createRequestContext(c, "/api/v1/settings/dispatch"), &req, metadata)
	if err != nil {
		log.Println("Update dispatch settings failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update dispatch settings", "UPDATE_DISPATCH_SETTINGS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Dispatch settings updated successfully", fiber.Map{
		"message":  result.Message,
		"settings": result.Settings,
	})
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *QueueHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}
