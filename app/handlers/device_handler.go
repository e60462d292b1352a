// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"time"

	"github.com/amirphl/Susanoo/app/dto"
	businessflow "github.com/amirphl/Susanoo/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// DeviceHandlerInterface defines the contract for device handlers
type DeviceHandlerInterface interface {
	CreateDevice(c fiber.Ctx) error
	ListDevices(c fiber.Ctx) error
	SetDeviceActive(c fiber.Ctx) error
}

// DeviceHandler handles gateway device HTTP requests
type DeviceHandler struct {
	deviceFlow businessflow.DeviceFlow
	validator  *validator.Validate
}

func (h *DeviceHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *DeviceHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(deviceFlow businessflow.DeviceFlow) *DeviceHandler {
	return &DeviceHandler{
		deviceFlow: deviceFlow,
		validator:  validator.New(),
	}
}

// CreateDevice handles the device registration process
// @Summary Register Device
// @Description Register a WhatsApp gateway device connection for the authenticated customer
// @Tags Devices
// @Accept json
// @Produce json
// @Param request body dto.CreateDeviceRequest true "Device registration data"
// @Success 201 {object} dto.APIResponse{data=dto.CreateDeviceResponse} "Device registered successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 401 {object} dto.APIResponse "Unauthorized - customer not found or inactive"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/devices [post]
func (h *DeviceHandler) CreateDevice(c fiber.Ctx) error {
	var req dto.CreateDeviceRequest
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
	result, err := h.deviceFlow.CreateDevice(h.createRequestContext(c, "/api/v1/devices"), &req, metadata)
	if err != nil {
		if businessflow.IsCustomerNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer not found", "CUSTOMER_NOT_FOUND", nil)
		}
		if businessflow.IsAccountInactive(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer account is inactive", "ACCOUNT_INACTIVE", nil)
		}

		log.Println("Device registration failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Device registration failed", "DEVICE_REGISTRATION_FAILED", nil)
	}

	// Successful device registration
	return h.SuccessResponse(c, fiber.StatusCreated, "Device registered successfully", fiber.Map{
		"message":    result.Message,
		"uuid":       result.UUID,
		"created_at": result.CreatedAt,
	})
}

// ListDevices returns the customer's registered devices
// @Summary List Devices
// @Description Retrieve the authenticated customer's gateway devices; tokens are never returned
// @Tags Devices
// @Accept json
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ListDevicesResponse}
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/devices [get]
func (h *DeviceHandler) ListDevices(c fiber.Ctx) error {
	customerID, ok := c.Locals("customer_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.deviceFlow.ListDevices(h.createRequestContext(c, "/api/v1/devices"), customerID, metadata)
	if err != nil {
		if businessflow.IsCustomerNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer not found", "CUSTOMER_NOT_FOUND", nil)
		}
		if businessflow.IsAccountInactive(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer account is inactive", "ACCOUNT_INACTIVE", nil)
		}

		log.Println("List devices failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list devices", "LIST_DEVICES_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Devices retrieved successfully", fiber.Map{
		"message": result.Message,
		"items":   result.Items,
	})
}

// SetDeviceActive activates or deactivates a device
// @Summary Set Device Active
// @Description Activate or deactivate a device; scheduled runs targeting a disabled device are skipped
// @Tags Devices
// @Accept json
// @Produce json
// @Param uuid path string true "Device UUID"
// @Param request body dto.SetDeviceActiveRequest true "Activation flag"
// @Success 200 {object} dto.APIResponse{data=dto.SetDeviceActiveResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 403 {object} dto.APIResponse "Forbidden - device belongs to another customer"
// @Failure 404 {object} dto.APIResponse "Device not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/devices/{uuid}/active [put]
func (h *DeviceHandler) SetDeviceActive(c fiber.Ctx) error {
	deviceUUID := c.Params("uuid")
	if deviceUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Device UUID is required", "MISSING_DEVICE_UUID", nil)
	}

	var req dto.SetDeviceActiveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.UUID = deviceUUID

	customerID, ok := c.Locals("customer_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}
	req.CustomerID = customerID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.deviceFlow.SetDeviceActive(h.createRequestContext(c, "/api/v1/devices/"+deviceUUID+"/active"), &req, metadata)
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
		if businessflow.IsAccessDenied(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Access denied: device belongs to another customer", "DEVICE_ACCESS_DENIED", nil)
		}

		log.Println("Set device active failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update device", "SET_DEVICE_ACTIVE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Device updated successfully", fiber.Map{
		"message": result.Message,
	})
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *DeviceHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}
