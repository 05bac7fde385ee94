package utils

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// APIResponse is the envelope every endpoint answers with. Errors is only
// set for request validation failures and maps a JSON field to its rule.
type APIResponse struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// SendSuccess answers 200 with data.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus answers a successful envelope with the given status.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if message == "" {
		message = "success"
	}
	if status == 0 {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// SendError answers a failed envelope without data.
func SendError(c *fiber.Ctx, status int, message string) error {
	return SendErrorWithData(c, status, message, nil)
}

// SendErrorWithData answers a failed envelope that still carries a payload,
// such as a degraded health report.
func SendErrorWithData(c *fiber.Ctx, status int, message string, data interface{}) error {
	if message == "" {
		message = "error"
	}

	return c.Status(status).JSON(APIResponse{
		Success: false,
		Data:    data,
		Message: message,
	})
}

// SendValidationError answers 400 and lists the failing fields when err
// carries validator errors.
func SendValidationError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return SendError(c, fiber.StatusBadRequest, err.Error())
	}

	fields := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		rule := fieldErr.Tag()
		if fieldErr.Param() != "" {
			rule += "=" + fieldErr.Param()
		}
		fields[fieldErr.Field()] = rule
	}

	return c.Status(fiber.StatusBadRequest).JSON(APIResponse{
		Success: false,
		Message: "validation failed",
		Errors:  fields,
	})
}
