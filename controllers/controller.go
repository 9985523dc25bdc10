package controller

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"taskflow/services"
	"taskflow/utils"
)

var statusByKind = map[services.ErrorKind]int{
	services.KindNotFound:     fiber.StatusNotFound,
	services.KindForbidden:    fiber.StatusForbidden,
	services.KindUnauthorized: fiber.StatusUnauthorized,
	services.KindValidation:   fiber.StatusBadRequest,
	services.KindConflict:     fiber.StatusConflict,
}

// respondError writes a service failure. Internal errors are logged and
// reported to Sentry but never echoed to the client.
func respondError(c *fiber.Ctx, logger *logrus.Entry, err error) error {
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		if status, ok := statusByKind[svcErr.Kind]; ok {
			return utils.ErrorResponse(c, status, svcErr.Message, svcErr.Fields)
		}
	}

	utils.LogError("request_failed", err, map[string]interface{}{
		"method": c.Method(),
		"path":   c.Path(),
	})
	logger.WithError(err).WithField("path", c.Path()).Error("Request failed")
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Internal server error", nil)
}

// parseBody decodes and validates a JSON body. It writes the 400 response
// itself and reports false when the request must stop.
func parseBody(c *fiber.Ctx, out interface{}) (bool, error) {
	if err := c.BodyParser(out); err != nil {
		return false, utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(out); err != nil {
		var verrs utils.ValidationErrors
		if errors.As(err, &verrs) {
			return false, utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", verrs)
		}
		return false, utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", nil)
	}
	return true, nil
}

// paramID reads a numeric route parameter, writing a 400 when it is malformed.
func paramID(c *fiber.Ctx, name string) (uint, bool, error) {
	id, ok := utils.ParseID(c, name)
	if !ok {
		return 0, false, utils.ErrorResponse(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid %s", name), nil)
	}
	return id, true, nil
}

// maxLength checks an optional text field that the validator cannot see.
func maxLength(field string, v services.Optional[string], n int) error {
	if v.Value != nil && len([]rune(*v.Value)) > n {
		return services.FieldInvalid(field, fmt.Sprintf("%s must be at most %d characters", field, n))
	}
	return nil
}
