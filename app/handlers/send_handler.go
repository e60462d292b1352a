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

// SendHandlerInterface defines the contract for direct send handlers
type SendHandlerInterface interface {
	DirectSend(c fiber.Ctx) error
}

// SendHandler handles immediate send HTTP requests
type SendHandler struct {
	sendFlow  businessflow.SendFlow
	validator *validator.Validate
}

func (h *SendHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *SendHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// NewSendHandler creates a new send handler
func NewSendHandler(sendFlow businessflow.SendFlow) *SendHandler {
	return &SendHandler{
		sendFlow:  sendFlow,
		validator: validator.New(),
	}
}

// DirectSend sends a message to target groups without a schedule
// @Summary Direct Send
// @Description Enqueue a message per target group for asynchronous delivery (default), or deliver inline with mode "immediate"; returns the execution batch
// @Tags Send
// @Accept json
// @Produce json
// @Param request body dto.DirectSendRequest true "Message and target groups"
// @Success 202 {object} dto.APIResponse{data=dto.DirectSendResponse} "Messages enqueued"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 401 {object} dto.APIResponse "Unauthorized - customer not found or inactive"
// @Failure 403 {object} dto.APIResponse "Forbidden - device belongs to another customer or is disabled"
// @Failure 404 {object} dto.APIResponse "Device not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/send [post]
func (h *SendHandler) DirectSend(c fiber.Ctx) error {
	var req dto.DirectSendRequest
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
	result, err := h.sendFlow.DirectSend(h.createRequestContext(c, "/api/v1/send"), &req, metadata)
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
		if businessflow.IsAccessDenied(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Access denied: device belongs to another customer", "DEVICE_ACCESS_DENIED", nil)
		}
		if businessflow.IsValidationError(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Send validation failed", "SEND_VALIDATION_FAILED", err.Error())
		}

		log.Println("Direct send failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to enqueue messages", "DIRECT_SEND_FAILED", nil)
	}

	// Queued sends are delivered asynchronously by the dispatcher; immediate
	// sends have already hit the gateway by the time we respond.
	return h.SuccessResponse(c, fiber.StatusAccepted, result.Message, result)
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *SendHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}
