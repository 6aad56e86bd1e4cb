package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/campus-market/internal/adapter/auth"
	"github.com/arturoeanton/campus-market/internal/adapter/store"
	"github.com/arturoeanton/campus-market/internal/domain"
	"github.com/arturoeanton/campus-market/internal/middleware"
	"github.com/arturoeanton/campus-market/internal/port"
	"github.com/arturoeanton/campus-market/internal/service"
)

const testAppURL = "http://app.test"

type testEnv struct {
	app      *fiber.App
	sessions *service.SessionService
	market   *service.MarketService
}

func newTestEnv(t *testing.T, providers port.IdentityProviderRegistry) *testEnv {
	t.Helper()
	if providers == nil {
		providers = port.NewIdentityProviderRegistry(
			auth.NewDemoProvider("http://localhost:3000/auth/callback"),
		)
	}

	ctx := context.Background()
	kv := store.NewMemoryStore()
	sessions := service.NewSessionService(ctx, providers, kv)
	market := service.NewMarketService(ctx, kv)

	app := fiber.New()
	NewAuthHandler(sessions, testAppURL).Register(app)
	NewSessionHandler(sessions).Register(app)
	NewMarketHandler(market, nil).Register(app, middleware.RequireSession(sessions))

	return &testEnv{app: app, sessions: sessions, market: market}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) (*http.Response, map[string]any) {
	t.Helper()

	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func (e *testEnv) signIn(t *testing.T, name string) {
	t.Helper()
	resp, _ := e.do(t, http.MethodPost, "/api/auth/demo/exchange", map[string]string{"code": name})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func redirectTarget(t *testing.T, resp *http.Response) *url.URL {
	t.Helper()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	u, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	return u
}

// assertStateCleared checks the callback expired the state cookie on the
// same path it was set on, so the state cannot be replayed.
func assertStateCleared(t *testing.T, resp *http.Response) {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name != stateCookie {
			continue
		}
		assert.Equal(t, "/", c.Path)
		assert.Empty(t, c.Value)
		assert.True(t, c.Expires.Before(time.Now()), "expires %v", c.Expires)
		return
	}
	t.Fatalf("no %s cookie in the callback response", stateCookie)
}

func TestGatedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/api/products", "/api/favorites", "/api/chats", "/api/purchase-requests", "/api/profile"} {
		resp, body := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		assert.Equal(t, "not signed in", body["error"], path)
	}
}

func TestLoginSetsStateAndRedirects(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := env.do(t, http.MethodGet, "/api/auth/demo", nil)
	target := redirectTarget(t, resp)
	assert.Equal(t, "/auth/callback", target.Path)

	var state string
	for _, c := range resp.Cookies() {
		if c.Name == stateCookie {
			state = c.Value
		}
	}
	require.NotEmpty(t, state)
	assert.True(t, strings.HasPrefix(state, "demo:"))
	assert.Equal(t, state, target.Query().Get("state"))
}

func TestLoginUnknownProvider(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, _ := env.do(t, http.MethodGet, "/api/auth/github", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLoginSetupIncomplete(t *testing.T) {
	env := newTestEnv(t, port.NewIdentityProviderRegistry(
		auth.NewGoogleProvider("", "", "http://localhost:3000/auth/callback"),
	))

	resp, body := env.do(t, http.MethodGet, "/api/auth/google", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "setup incomplete", body["error"])
}

func TestCallbackSignsIn(t *testing.T) {
	env := newTestEnv(t, nil)
	state := "demo:0123456789abcdef"

	q := url.Values{"code": {"Ada Lovelace"}, "state": {state}}
	resp, _ := env.do(t, http.MethodGet, "/auth/callback?"+q.Encode(), nil, "Cookie", stateCookie+"="+state)

	target := redirectTarget(t, resp)
	assert.Equal(t, testAppURL+"/auth/success", target.String())
	assertStateCleared(t, resp)
	require.True(t, env.sessions.IsAuthenticated())
	assert.Equal(t, "demo", env.sessions.Current().Provider)
	assert.Equal(t, "Ada Lovelace", env.sessions.Current().Identity.Name)
}

func TestCallbackErrors(t *testing.T) {
	state := "demo:0123456789abcdef"
	cookie := stateCookie + "=" + state

	tests := []struct {
		name   string
		query  url.Values
		cookie string
		code   string
	}{
		{"provider error", url.Values{"error": {"access_denied"}}, cookie, port.AuthErrAccessDenied},
		{"missing code", url.Values{"state": {state}}, cookie, port.AuthErrNoCode},
		{"missing cookie", url.Values{"code": {"Ada"}, "state": {state}}, "", port.AuthErrInvalidState},
		{"state mismatch", url.Values{"code": {"Ada"}, "state": {"demo:forged"}}, cookie, port.AuthErrInvalidState},
		{"exchange rejected", url.Values{"code": {"   "}, "state": {state}}, cookie, port.AuthErrFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			var header []string
			if tt.cookie != "" {
				header = []string{"Cookie", tt.cookie}
			}

			resp, _ := env.do(t, http.MethodGet, "/auth/callback?"+tt.query.Encode(), nil, header...)
			target := redirectTarget(t, resp)
			assert.Equal(t, "/auth/error", target.Path)
			assert.Equal(t, tt.code, target.Query().Get("error"))
			if tt.query.Has("code") {
				assertStateCleared(t, resp)
			}
			assert.False(t, env.sessions.IsAuthenticated())
		})
	}
}

func TestErrorPage(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodGet, "/auth/error?error=no_code", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no_code", body["code"])
	assert.Equal(t, "No authorization code received from Google", body["message"])

	_, body = env.do(t, http.MethodGet, "/auth/error?error=weird", nil)
	assert.Equal(t, "An unexpected error occurred during authentication", body["message"])
}

func TestExchange(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/api/auth/demo/exchange", map[string]string{"code": "Ada Lovelace"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "demo-access-Ada Lovelace", body["access_token"])
	assert.Equal(t, "demo-refresh-Ada Lovelace", body["refresh_token"])
	user, ok := body["user_info"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "demo-ada.lovelace", user["id"])

	resp, _ = env.do(t, http.MethodPost, "/api/auth/demo/exchange", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRefreshTokenEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{
		"provider":      "demo",
		"refresh_token": "demo-refresh-Ada",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "demo-access-Ada", body["access_token"])
	assert.Equal(t, "demo-refresh-Ada", body["refresh_token"], "the input token is retained")
	assert.EqualValues(t, 3600, body["expires_in"])

	resp, _ = env.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{"provider": "demo", "refresh_token": "stolen"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{"provider": "demo"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestValidateEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/api/auth/demo/validate", map[string]string{"id_token": "demo-id-Ada"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := body["user_info"].(map[string]any)
	assert.Equal(t, "Ada", user["name"])

	resp, _ = env.do(t, http.MethodPost, "/api/auth/demo/validate", map[string]string{"id_token": "forged"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	_, body := env.do(t, http.MethodGet, "/api/session", nil)
	assert.Equal(t, false, body["authenticated"])

	env.signIn(t, "Ada Lovelace")
	_, body = env.do(t, http.MethodGet, "/api/session", nil)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "demo", body["provider"])

	resp, body := env.do(t, http.MethodPost, "/api/session/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "demo-access-Ada Lovelace", body["access_token"])

	resp, body = env.do(t, http.MethodPost, "/api/session/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["authenticated"])

	resp, _ = env.do(t, http.MethodPost, "/api/session/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProductRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signIn(t, "Ada Lovelace")

	resp, body := env.do(t, http.MethodPost, "/api/products", map[string]any{
		"title":     "Calculus Book",
		"price":     150,
		"condition": "Like New",
		"category":  "Books",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "demo-ada.lovelace", body["sellerId"])
	assert.Equal(t, "available", body["status"])
	productID := body["id"].(string)

	resp, _ = env.do(t, http.MethodPost, "/api/products", map[string]any{"title": "No condition", "category": "Books"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = env.do(t, http.MethodGet, "/api/products?q=calculus", nil)
	assert.EqualValues(t, 1, body["count"])

	_, body = env.do(t, http.MethodGet, "/api/products/mine", nil)
	assert.EqualValues(t, 1, body["count"])

	resp, body = env.do(t, http.MethodPatch, "/api/products/"+productID+"/status", map[string]string{"status": "sold"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sold", body["status"])

	resp, _ = env.do(t, http.MethodPatch, "/api/products/"+productID+"/status", map[string]string{"status": "gone"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/products/p_missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "product not found", body["error"])

	resp, body = env.do(t, http.MethodPost, "/api/favorites/"+productID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["favorite"])

	_, body = env.do(t, http.MethodGet, "/api/products/"+productID, nil)
	assert.Equal(t, true, body["favorite"])

	_, body = env.do(t, http.MethodGet, "/api/favorites", nil)
	assert.Len(t, body["products"], 1)
}

func TestChatAndPurchaseRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	p, err := env.market.AddProduct(context.Background(), domain.ProductInput{
		Title:     "Graphing Calculator",
		Price:     900,
		Condition: domain.ConditionGood,
		Category:  "Electronics",
		SellerID:  "seller_1",
	})
	require.NoError(t, err)
	env.signIn(t, "Ada Lovelace")

	resp, body := env.do(t, http.MethodPost, "/api/chats", map[string]string{"productId": p.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	chatID := body["id"].(string)

	_, body = env.do(t, http.MethodPost, "/api/chats", map[string]string{"productId": p.ID})
	assert.Equal(t, chatID, body["id"], "opening twice returns the same chat")

	resp, body = env.do(t, http.MethodPost, "/api/chats/"+chatID+"/messages", map[string]string{"text": "Still available?"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "demo-ada.lovelace", body["from"])

	resp, _ = env.do(t, http.MethodPost, "/api/chats/c_missing/messages", map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, body = env.do(t, http.MethodGet, "/api/chats/"+chatID, nil)
	assert.Len(t, body["messages"], 1)

	resp, body = env.do(t, http.MethodPost, "/api/purchase-requests", map[string]string{"productId": p.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	requestID := body["id"].(string)

	resp, body = env.do(t, http.MethodPatch, "/api/purchase-requests/"+requestID, map[string]string{"status": "accepted"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "accepted", body["status"])

	sold, _ := env.market.GetProduct(p.ID)
	assert.Equal(t, domain.ProductSold, sold.Status)

	resp, _ = env.do(t, http.MethodPost, "/api/purchase-requests", map[string]string{"productId": p.ID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPatch, "/api/purchase-requests/r_missing", map[string]string{"status": "accepted"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProfileRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signIn(t, "Ada Lovelace")

	resp, _ := env.do(t, http.MethodGet, "/api/profile", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := env.do(t, http.MethodPatch, "/api/profile", map[string]string{"year": "3rd"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "You", body["name"])
	assert.Equal(t, "3rd", body["year"])

	_, body = env.do(t, http.MethodGet, "/api/profile", nil)
	assert.Equal(t, "3rd", body["year"])
}
