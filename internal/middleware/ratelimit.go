package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Authenticated endpoint limits (per user ID)
	AuthenticatedMax        int
	AuthenticatedExpiration time.Duration

	// WebSocket/Connection limits (per IP)
	WebSocketMax        int
	WebSocketExpiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		// Global: 200/min - very generous for normal use
		GlobalAPIMax:        200,
		GlobalAPIExpiration: 1 * time.Minute,

		// Authenticated operations: 120/min - task boards refresh a lot
		AuthenticatedMax:        120,
		AuthenticatedExpiration: 1 * time.Minute,

		// WebSocket: 20 connections/min
		WebSocketMax:        20,
		WebSocketExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	cfg := DefaultRateLimitConfig()

	if v := os.Getenv("RATELIMIT_GLOBAL_MAX"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.GlobalAPIMax = parsed
		}
	}
	if v := os.Getenv("RATELIMIT_AUTH_MAX"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.AuthenticatedMax = parsed
		}
	}
	if v := os.Getenv("RATELIMIT_WS_MAX"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.WebSocketMax = parsed
		}
	}

	log.Printf("📋 Rate limits: global=%d/min auth=%d/min ws=%d/min",
		cfg.GlobalAPIMax, cfg.AuthenticatedMax, cfg.WebSocketMax)
	return cfg
}

// GlobalLimiter limits all API traffic per client IP.
func (cfg *RateLimitConfig) GlobalLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        cfg.GlobalAPIMax,
		Expiration: cfg.GlobalAPIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, slow down",
			})
		},
	})
}

// AuthenticatedLimiter limits per authenticated user, falling back to IP for
// anonymous requests.
func (cfg *RateLimitConfig) AuthenticatedLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        cfg.AuthenticatedMax,
		Expiration: cfg.AuthenticatedExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, ok := c.Locals("user_id").(string); ok && userID != "" {
				return userID
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, slow down",
			})
		},
	})
}

// WebSocketLimiter limits connection attempts per client IP.
func (cfg *RateLimitConfig) WebSocketLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        cfg.WebSocketMax,
		Expiration: cfg.WebSocketExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many connection attempts",
			})
		},
	})
}
