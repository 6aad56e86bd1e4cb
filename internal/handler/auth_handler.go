package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/campus-market/internal/port"
	"github.com/arturoeanton/campus-market/internal/service"
)

const stateCookie = "oauth_state"

// AuthHandler handles the OAuth2 sign-in flow and the token endpoints.
type AuthHandler struct {
	sessions *service.SessionService
	appURL   string
}

// NewAuthHandler creates a new auth handler. appURL is where the browser
// lands after the callback.
func NewAuthHandler(sessions *service.SessionService, appURL string) *AuthHandler {
	return &AuthHandler{sessions: sessions, appURL: strings.TrimRight(appURL, "/")}
}

// Register sets up auth routes.
func (h *AuthHandler) Register(app *fiber.App) {
	auth := app.Group("/api/auth")
	auth.Post("/refresh", h.RefreshToken)
	auth.Get("/:provider", h.Login)
	auth.Post("/:provider/exchange", h.Exchange)
	auth.Post("/:provider/validate", h.Validate)

	// Shared callback route. The provider is encoded in the state param
	// as "provider:random".
	app.Get("/auth/callback", h.Callback)
	app.Get("/auth/error", h.ErrorPage)
}

// Login redirects to the provider's consent screen.
func (h *AuthHandler) Login(c fiber.Ctx) error {
	provider := c.Params("provider")
	state := provider + ":" + generateState()

	authURL, err := h.sessions.AuthURL(provider, state)
	if err != nil {
		return fail(c, err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Now().Add(10 * time.Minute),
	})
	return c.Redirect().Status(fiber.StatusFound).To(authURL)
}

// Callback completes the sign-in and sends the browser to the success or
// error page of the app.
func (h *AuthHandler) Callback(c fiber.Ctx) error {
	if e := c.Query("error"); e != "" {
		slog.Warn("authorization denied", "error", e)
		return h.redirectError(c, e)
	}

	code := c.Query("code")
	if code == "" {
		return h.redirectError(c, port.AuthErrNoCode)
	}

	state := c.Query("state")
	expected := c.Cookies(stateCookie)
	c.Cookie(&fiber.Cookie{
		Name:     stateCookie,
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Unix(0, 0),
	})
	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(expected)) != 1 {
		return h.redirectError(c, port.AuthErrInvalidState)
	}

	// Extract provider from state ("demo:abc123" -> "demo")
	provider, _, _ := strings.Cut(state, ":")

	if _, err := h.sessions.Authenticate(c.Context(), provider, code); err != nil {
		slog.Error("sign-in failed", "provider", provider, "error", err)
		if errors.Is(err, port.ErrConfiguration) {
			return h.redirectError(c, port.AuthErrSetupIncomplete)
		}
		return h.redirectError(c, port.AuthErrFailed)
	}

	return c.Redirect().Status(fiber.StatusFound).To(h.appURL + "/auth/success")
}

// ErrorPage describes an authentication error code.
func (h *AuthHandler) ErrorPage(c fiber.Ctx) error {
	code := c.Query("error")
	return c.JSON(fiber.Map{
		"code":    code,
		"message": port.AuthErrorMessage(code),
	})
}

// Exchange trades an authorization code for tokens and signs the user in.
func (h *AuthHandler) Exchange(c fiber.Ctx) error {
	var body struct {
		Code string `json:"code"`
	}
	if err := c.Bind().JSON(&body); err != nil || body.Code == "" {
		return badRequest(c, "authorization code is required")
	}

	session, err := h.sessions.Authenticate(c.Context(), c.Params("provider"), body.Code)
	if err != nil {
		return fail(c, err)
	}

	resp := fiber.Map{
		"access_token": session.Tokens.AccessToken,
		"expires_in":   session.Tokens.ExpiresIn,
		"user_info":    session.Identity,
	}
	if session.Tokens.RefreshToken != "" {
		resp["refresh_token"] = session.Tokens.RefreshToken
	}
	if session.Tokens.IDToken != "" {
		resp["id_token"] = session.Tokens.IDToken
	}
	return c.JSON(resp)
}

// RefreshToken refreshes a caller-held refresh token.
func (h *AuthHandler) RefreshToken(c fiber.Ctx) error {
	var body struct {
		Provider     string `json:"provider"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request")
	}
	if body.RefreshToken == "" {
		return badRequest(c, "refresh_token is required")
	}

	tokens, err := h.sessions.RefreshWith(c.Context(), body.Provider, body.RefreshToken)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"access_token":  tokens.AccessToken,
		"expires_in":    tokens.ExpiresIn,
		"refresh_token": tokens.RefreshToken,
	})
}

// Validate checks an identity token and returns the identity it asserts.
func (h *AuthHandler) Validate(c fiber.Ctx) error {
	var body struct {
		IDToken string `json:"id_token"`
	}
	if err := c.Bind().JSON(&body); err != nil || body.IDToken == "" {
		return badRequest(c, "id_token is required")
	}

	identity, err := h.sessions.ValidateIDToken(c.Context(), c.Params("provider"), body.IDToken)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"user_info": identity})
}

func (h *AuthHandler) redirectError(c fiber.Ctx, code string) error {
	return c.Redirect().Status(fiber.StatusFound).To(h.appURL + "/auth/error?error=" + url.QueryEscape(code))
}

func generateState() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
