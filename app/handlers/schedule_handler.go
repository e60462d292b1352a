// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/amirphl/Susanoo/app/dto"
	businessflow "github.com/amirphl/Susanoo/business_flow"
	"github.com/amirphl/Susanoo/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// ScheduleHandlerInterface defines the contract for schedule handlers
type ScheduleHandlerInterface interface {
	CreateSchedule(c fiber.Ctx) error
	ListSchedules(c fiber.Ctx) error
	SetScheduleActive(c fiber.Ctx) error
}

// ScheduleHandler handles message schedule HTTP requests
type ScheduleHandler struct {
	scheduleFlow businessflow.ScheduleFlow
	validator    *validator.Validate
}

func (h *ScheduleHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *ScheduleHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// NewScheduleHandler creates a new schedule handler
func NewScheduleHandler(scheduleFlow businessflow.ScheduleFlow) *ScheduleHandler {
	return &ScheduleHandler{
		scheduleFlow: scheduleFlow,
		validator:    validator.New(),
	}
}

// CreateSchedule handles the schedule creation process
// @Summary Create Schedule
// @Description Create a recurring or one-off message schedule for a gateway device
// @Tags Schedules
// @Accept json
// @Produce json
// @Param request body dto.CreateScheduleRequest true "Schedule creation data"
// @Success 201 {object} dto.APIResponse{data=dto.CreateScheduleResponse} "Schedule created successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 401 {object} dto.APIResponse "Unauthorized - customer not found or inactive"
// @Failure 403 {object} dto.APIResponse "Forbidden - device or campaign belongs to another customer"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/schedules [post]
func (h *ScheduleHandler) CreateSchedule(c fiber.Ctx) error {
	var req dto.CreateScheduleRequest
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

	// Get client information
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	// Get authenticated customer ID from context
	customerID, ok := c.Locals("customer_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}
	req.CustomerID = customerID

	// Call business logic with proper context
	result, err := h.scheduleFlow.CreateSchedule(h.createRequestContext(c, "/api/v1/schedules"), &req, metadata)
	if err != nil {
		if businessflow.IsCustomerNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer not found", "CUSTOMER_NOT_FOUND", nil)
		}
		if businessflow.IsAccountInactive(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer account is inactive", "ACCOUNT_INACTIVE", nil)
		}
		if businessflow.IsDeviceNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Device not found", "DEVICE_NOT_FOUND", nil)
		}
		if businessflow.IsDeviceInactive(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Device is disabled", "DEVICE_INACTIVE", nil)
		}
		if businessflow.IsCampaignNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		}
		if businessflow.IsAccessDenied(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Access denied", "ACCESS_DENIED", nil)
		}
		if businessflow.IsValidationError(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Schedule validation failed", "SCHEDULE_VALIDATION_FAILED", err.Error())
		}

		log.Println("Schedule creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Schedule creation failed", "SCHEDULE_CREATION_FAILED", nil)
	}

	// Successful schedule creation
	return h.SuccessResponse(c, fiber.StatusCreated, "Schedule created successfully", fiber.Map{
		"message":     result.Message,
		"uuid":        result.UUID,
		"next_due_at": result.NextDueAt,
		"created_at":  result.CreatedAt,
	})
}

// ListSchedules returns the customer's schedules with pagination
// @Summary List Schedules
// @Description Retrieve the authenticated customer's schedules, newest first
// @Tags Schedules
// @Accept json
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Items per page (max 100)" default(20)
// @Success 200 {object} dto.APIResponse{data=dto.ListSchedulesResponse}
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/schedules [get]
func (h *ScheduleHandler) ListSchedules(c fiber.Ctx) error {
	customerID, ok := c.Locals("customer_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	req := &dto.ListSchedulesRequest{
		CustomerID: customerID,
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "page_size", 20),
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.scheduleFlow.ListSchedules(h.createRequestContext(c, "/api/v1/schedules"), req, metadata)
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

		log.Println("List schedules failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list schedules", "LIST_SCHEDULES_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Schedules retrieved successfully", fiber.Map{
		"message": result.Message,
		"items":   result.Items,
		"total":   result.Total,
	})
}

// SetScheduleActive activates or deactivates a schedule
// @Summary Set Schedule Active
// @Description Activate or deactivate a schedule; activation recomputes the next due time
// @Tags Schedules
// @Accept json
// @Produce json
// @Param uuid path string true "Schedule UUID"
// @Param request body dto.SetScheduleActiveRequest true "Activation flag"
// @Success 200 {object} dto.APIResponse{data=dto.SetScheduleActiveResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 403 {object} dto.APIResponse "Forbidden - schedule belongs to another customer"
// @Failure 404 {object} dto.APIResponse "Schedule not found"
// @Failure 409 {object} dto.APIResponse "One-off schedule already ran"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/schedules/{uuid}/active [put]
func (h *ScheduleHandler) SetScheduleActive(c fiber.Ctx) error {
	scheduleUUID := c.Params("uuid")
	if scheduleUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Schedule UUID is required", "MISSING_SCHEDULE_UUID", nil)
	}

	var req dto.SetScheduleActiveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.UUID = scheduleUUID

	customerID, ok := c.Locals("customer_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}
	req.CustomerID = customerID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.scheduleFlow.SetScheduleActive(h.createRequestContext(c, "/api/v1/schedules/"+scheduleUUID+"/active"), &req, metadata)
	if err != nil {
		if businessflow.IsCustomerNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer not found", "CUSTOMER_NOT_FOUND", nil)
		}
		if businessflow.IsAccountInactive(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer account is inactive", "ACCOUNT_INACTIVE", nil)
		}
		if businessflow.IsScheduleNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Schedule not found", "SCHEDULE_NOT_FOUND", nil)
		}
		if businessflow.IsAccessDenied(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Access denied: schedule belongs to another customer", "SCHEDULE_ACCESS_DENIED", nil)
		}
		if businessflow.IsScheduleExhausted(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "One-off schedule has already run", "SCHEDULE_EXHAUSTED", nil)
		}

		log.Println("Set schedule active failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update schedule", "SET_SCHEDULE_ACTIVE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Schedule updated successfully", fiber.Map{
		"message":     result.Message,
		"next_due_at": result.NextDueAt,
	})
}

// queryInt parses an integer query parameter with a fallback default
func queryInt(c fiber.Ctx, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key, strconv.Itoa(def))); err == nil && v > 0 {
		return v
	}
	return def
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *ScheduleHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

// createRequestContextWithTimeout creates a context with custom timeout and request-scoped values
func createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	// Add request-scoped values for observability
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel) // Store cancel function for cleanup

	return ctx
}
