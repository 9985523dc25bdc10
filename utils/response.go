package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse writes the uniform error body. Details are omitted when empty.
func ErrorResponse(c *fiber.Ctx, status int, message string, details []FieldError) error {
	response := fiber.Map{
		"error": message,
	}
	if len(details) > 0 {
		response["details"] = details
	}
	return c.Status(status).JSON(response)
}

// MessageResponse pairs a confirmation message with the affected record.
func MessageResponse(message, key string, data interface{}) fiber.Map {
	response := fiber.Map{"message": message}
	if key != "" {
		response[key] = data
	}
	return response
}

// ParseID reads a positive integer route parameter.
func ParseID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}
