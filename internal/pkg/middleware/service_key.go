package middleware

import (
	"crypto/subtle"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/behavero/agencyos-sub001/internal/pkg/env"
)

const serviceKeyHeader = "X-Service-Key"

// ServiceKeyAuthMiddleware authenticates internal callers (HTTP routes and
// scheduled jobs live behind the same key). End-user authentication is not
// this core's concern.
func ServiceKeyAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		expected := strings.TrimSpace(env.GetEnv("SERVICE_API_KEY", ""))
		if expected == "" {
			log.Print("service key middleware: SERVICE_API_KEY is not configured")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Service key not configured"})
		}

		provided := strings.TrimSpace(c.Get(serviceKeyHeader))
		if provided == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing service key"})
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid service key"})
		}

		return c.Next()
	}
}
