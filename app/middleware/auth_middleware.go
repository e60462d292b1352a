// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/amirphl/Susanoo/app/dto"
	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/repository"
	"github.com/amirphl/Susanoo/utils"
	"github.com/gofiber/fiber/v3"
)

// AuthMiddleware validates API keys and resolves the tenant for protected endpoints.
// Full identity management lives in an external service; requests arrive with a
// shared API key plus the customer UUID that service asserted.
type AuthMiddleware struct {
	security     config.SecurityConfig
	customerRepo repository.CustomerRepository
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(security config.SecurityConfig, customerRepo repository.CustomerRepository) *AuthMiddleware {
	return &AuthMiddleware{
		security:     security,
		customerRepo: customerRepo,
	}
}

// RequireAPIKey validates the configured API key header against the allowed key list
func (m *AuthMiddleware) RequireAPIKey() fiber.Handler {
	return func(c fiber.Ctx) error {
		if !m.security.RequireAPIKey {
			return c.Next()
		}

		header := m.security.APIKeyHeader
		if header == "" {
			header = "X-API-Key"
		}

		key := c.Get(header)
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "API key is required",
				Error: dto.ErrorDetail{
					Code: "MISSING_API_KEY",
				},
			})
		}

		for _, allowed := range m.security.AllowedAPIKeys {
			if subtle.ConstantTimeCompare([]byte(key), []byte(allowed)) == 1 {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid API key",
			Error: dto.ErrorDetail{
				Code: "INVALID_API_KEY",
			},
		})
	}
}

// ResolveCustomer looks up the customer asserted by the upstream identity service
// and stores their ID in the request context for downstream handlers
func (m *AuthMiddleware) ResolveCustomer() fiber.Handler {
	return func(c fiber.Ctx) error {
		customerUUID := c.Get("X-Customer-UUID")
		if customerUUID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Customer UUID header is required",
				Error: dto.ErrorDetail{
					Code: "MISSING_CUSTOMER_UUID",
				},
			})
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		customer, err := m.customerRepo.ByUUID(ctx, customerUUID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{
				Success: false,
				Message: "Customer lookup failed",
				Error: dto.ErrorDetail{
					Code: "CUSTOMER_LOOKUP_FAILED",
				},
			})
		}
		if customer == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Customer not found",
				Error: dto.ErrorDetail{
					Code: "CUSTOMER_NOT_FOUND",
				},
			})
		}
		if !utils.IsTrue(customer.IsActive) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Customer account is inactive",
				Error: dto.ErrorDetail{
					Code: "ACCOUNT_INACTIVE",
				},
			})
		}

		// Store tenant information in context for downstream handlers
		c.Locals("customer_id", customer.ID)
		c.Locals("customer_uuid", customer.UUID.String())

		// Store RequestID for audit logging
		if requestID := c.Get("X-Request-ID"); requestID != "" {
			c.Locals("request_id", requestID)
		}

		return c.Next()
	}
}

// GetCustomerIDFromContext extracts customer ID from the request context
func GetCustomerIDFromContext(c fiber.Ctx) (uint, bool) {
	customerID, ok := c.Locals("customer_id").(uint)
	return customerID, ok
}

// RequireAuth is a helper function that ensures a resolved customer is present
func RequireAuth(c fiber.Ctx) error {
	customerID, exists := GetCustomerIDFromContext(c)
	if !exists {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "Authentication required",
			Error: dto.ErrorDetail{
				Code: "AUTHENTICATION_REQUIRED",
			},
		})
	}

	if customerID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid customer ID",
			Error: dto.ErrorDetail{
				Code: "INVALID_CUSTOMER_ID",
			},
		})
	}

	return nil
}
