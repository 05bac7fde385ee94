package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// CorrelationHeader carries the request correlation id in and out.
	CorrelationHeader = "X-Correlation-ID"

	correlationLocal     = "correlation_id"
	maxCorrelationLength = 64
)

type correlationKey struct{}

// CorrelationID assigns every request a correlation id. A client supplied
// X-Correlation-ID or X-Request-ID is reused when it is well formed. The id
// is echoed in the response and stored on the user context so grading jobs
// scheduled by the request can carry it.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := cleanCorrelationID(c.Get(CorrelationHeader))
		if id == "" {
			id = cleanCorrelationID(c.Get(fiber.HeaderXRequestID))
		}
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(correlationLocal, id)
		c.Set(CorrelationHeader, id)
		c.SetUserContext(ContextWithCorrelation(c.UserContext(), id))

		return c.Next()
	}
}

// CorrelationIDFromContext returns the id stored by ContextWithCorrelation.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// GetCorrelationID returns the correlation id of the active request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(correlationLocal).(string); ok {
		return id
	}
	return CorrelationIDFromContext(c.UserContext())
}

// ContextWithCorrelation returns ctx carrying id. Malformed ids are dropped.
func ContextWithCorrelation(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id = cleanCorrelationID(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// cleanCorrelationID accepts ids of letters, digits, '-', '_', '.' and ':'
// up to maxCorrelationLength characters.
func cleanCorrelationID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxCorrelationLength {
		return ""
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return ""
		}
	}
	return id
}
