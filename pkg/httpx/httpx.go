// Package httpx holds the response envelope and error handler shared by
// every fiber handler.
package httpx

import (
	"errors"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/logx"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message,omitempty"`
	Data      any            `json:"data,omitempty"`
	Code      string         `json:"code,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// OK writes a success envelope.
func OK(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Envelope{Success: true, Message: message, Data: data})
}

// RequestID returns the id assigned by the requestid middleware.
func RequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(requestid.ConfigDefault.ContextKey).(string); ok && id != "" {
		return id
	}
	return c.GetRespHeader(fiber.HeaderXRequestID, c.Get(fiber.HeaderXRequestID))
}

// ErrorHandler renders err as a failure envelope. Server-side errors are
// logged with their cause and returned redacted.
func ErrorHandler(c *fiber.Ctx, err error) error {
	reqID := RequestID(c)

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(Envelope{
			Success:   false,
			Message:   fe.Message,
			Code:      "HTTP_ERROR",
			RequestID: reqID,
		})
	}

	resp := errx.ResponseFor(err)

	log := logx.WithContext(c.UserContext()).WithFields(logx.Fields{
		"path":   c.Path(),
		"method": c.Method(),
		"status": resp.StatusCode,
		"code":   errx.CodeOf(err),
	}).WithError(err)
	if resp.StatusCode >= fiber.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Debug("request rejected")
	}

	return c.Status(resp.StatusCode).JSON(Envelope{
		Success:   false,
		Message:   resp.Message,
		Code:      resp.Code,
		Details:   resp.Details,
		RequestID: reqID,
	})
}

// BodyParser decodes the request body, turning decode failures into a 400.
func BodyParser(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return errx.New("Invalid request body", errx.TypeValidation).WithCause(err)
	}
	return nil
}
