package handler

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/campus-market/internal/port"
)

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, port.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, port.ErrUnknownProvider), errors.Is(err, port.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, port.ErrNoRefreshToken),
		errors.Is(err, port.ErrTokenRefresh),
		errors.Is(err, port.ErrTokenExchange),
		errors.Is(err, port.ErrInvalidToken),
		errors.Is(err, port.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, port.ErrProfileFetch):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// fail writes err as a JSON error body. Configuration problems are reported
// without detail.
func fail(c fiber.Ctx, err error) error {
	if errors.Is(err, port.ErrConfiguration) {
		slog.Error("oauth setup incomplete", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "setup incomplete"})
	}

	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		slog.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func notFound(c fiber.Ctx, what string) error {
	return fail(c, fmt.Errorf("%s %w", what, port.ErrNotFound))
}
