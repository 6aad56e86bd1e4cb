package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/arturoeanton/campus-market/internal/adapter/auth"
	"github.com/arturoeanton/campus-market/internal/adapter/store"
	"github.com/arturoeanton/campus-market/internal/handler"
	"github.com/arturoeanton/campus-market/internal/middleware"
	"github.com/arturoeanton/campus-market/internal/port"
	"github.com/arturoeanton/campus-market/internal/service"
	"github.com/arturoeanton/campus-market/pkg/config"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("🚀 Starting Campus Market",
		"port", cfg.Port,
		"storage", cfg.StorageBackend,
		"google_configured", cfg.GoogleConfigured(),
		"demo_login", cfg.DemoLogin,
	)
	if !cfg.GoogleConfigured() {
		slog.Warn("GOOGLE_CLIENT_ID is not set, Google sign-in will report setup incomplete")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Storage ──────────────────────────────────────────────────────────
	kv, closeStore, err := openStore(cfg)
	if err != nil {
		slog.Error("failed to open storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// ── Identity providers ───────────────────────────────────────────────
	providers := port.NewIdentityProviderRegistry(
		auth.NewGoogleProvider(
			cfg.GoogleClientID,
			cfg.GoogleClientSecret,
			cfg.GoogleRedirectURL,
			auth.WithEndpoints(auth.GoogleEndpoints{
				AuthURL:      cfg.GoogleAuthURL,
				TokenURL:     cfg.GoogleTokenURL,
				UserInfoURL:  cfg.GoogleUserInfoURL,
				TokenInfoURL: cfg.GoogleTokenInfoURL,
			}),
			auth.WithTimeout(cfg.OAuthHTTPTimeout),
		),
	)
	if cfg.DemoLogin {
		// The demo provider sends the browser straight back to our callback.
		providers.Register(auth.NewDemoProvider(cfg.GoogleRedirectURL))
	}

	// ── Services ─────────────────────────────────────────────────────────
	sessions := service.NewSessionService(ctx, providers, kv)
	market := service.NewMarketService(ctx, kv)

	if cfg.SeedSample {
		n, err := market.SeedSampleCatalog(ctx)
		if err != nil {
			slog.Warn("failed to seed sample catalog", "error", err)
		} else if n > 0 {
			slog.Info("seeded sample catalog", "products", n)
		}
	}

	var responder *service.Responder
	if cfg.AutoReply {
		responder = service.NewResponder(market)
		defer responder.Close()
	}

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.AppURL},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowCredentials: true,
	}))
	app.Use(middleware.Metrics())

	// ── Public Routes ────────────────────────────────────────────────────
	app.Get("/metrics", middleware.MetricsHandler())

	// Health check
	app.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":        "healthy",
			"app":           cfg.AppName,
			"storage":       cfg.StorageBackend,
			"providers":     providers.Names(),
			"authenticated": sessions.IsAuthenticated(),
		})
	})

	handler.NewAuthHandler(sessions, cfg.AppURL).Register(app)
	handler.NewSessionHandler(sessions).Register(app)

	// ── Session-gated Routes ─────────────────────────────────────────────
	handler.NewMarketHandler(market, responder).Register(app, middleware.RequireSession(sessions))

	// ── Start ────────────────────────────────────────────────────────────
	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()

	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// openStore builds the configured key-value backend.
func openStore(cfg *config.Config) (port.KVStore, func(), error) {
	switch cfg.StorageBackend {
	case "memory":
		return store.NewMemoryStore(), func() {}, nil
	case "file":
		s, err := store.NewFileStore(cfg.StoragePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case "postgres":
		s, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "redis":
		s, err := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
