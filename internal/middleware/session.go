package middleware

import (
	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/campus-market/internal/domain"
	"github.com/arturoeanton/campus-market/internal/port"
)

// SessionReader exposes the current session to the gate.
type SessionReader interface {
	Current() domain.Session
}

// RequireSession rejects requests while no identity is signed in and
// injects the current Identity into the request locals.
func RequireSession(sessions SessionReader) fiber.Handler {
	return func(c fiber.Ctx) error {
		s := sessions.Current()
		if !s.Authenticated() {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": port.ErrUnauthorized.Error(),
			})
		}

		c.Locals("identity", s.Identity)
		return c.Next()
	}
}

// GetIdentity extracts the signed-in Identity from Fiber locals.
func GetIdentity(c fiber.Ctx) *domain.Identity {
	id, ok := c.Locals("identity").(*domain.Identity)
	if !ok {
		return nil
	}
	return id
}
