package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/campus-market/internal/domain"
	"github.com/arturoeanton/campus-market/internal/service"
)

// SessionHandler exposes the current session.
type SessionHandler struct {
	sessions *service.SessionService
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Register sets up session routes.
func (h *SessionHandler) Register(router fiber.Router) {
	s := router.Group("/api/session")
	s.Get("/", h.Get)
	s.Post("/refresh", h.Refresh)
	s.Post("/logout", h.Logout)
}

// Get returns the session snapshot.
func (h *SessionHandler) Get(c fiber.Ctx) error {
	return c.JSON(sessionView(h.sessions.Current()))
}

// Refresh renews the access token of the current session. A failed
// refresh signs the user out.
func (h *SessionHandler) Refresh(c fiber.Ctx) error {
	if _, err := h.sessions.Refresh(c.Context()); err != nil {
		return fail(c, err)
	}
	return c.JSON(sessionView(h.sessions.Current()))
}

// Logout signs the user out.
func (h *SessionHandler) Logout(c fiber.Ctx) error {
	if err := h.sessions.Logout(c.Context()); err != nil {
		return fail(c, err)
	}
	return c.JSON(sessionView(h.sessions.Current()))
}

func sessionView(s domain.Session) fiber.Map {
	view := fiber.Map{
		"authenticated": s.Authenticated(),
		"provider":      s.Provider,
		"user_info":     s.Identity,
	}
	if s.Tokens != nil {
		view["access_token"] = s.Tokens.AccessToken
		if s.Tokens.ExpiresIn > 0 {
			view["expires_in"] = s.Tokens.ExpiresIn
		}
	}
	return view
}
