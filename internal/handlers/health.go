package handlers

import (
	"commandcenter/internal/database"
	"commandcenter/internal/services"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db      *database.DB
	feed    *services.ChangeFeed
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, feed *services.ChangeFeed) *HealthHandler {
	return &HealthHandler{db: db, feed: feed, started: time.Now()}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"
	if err := h.db.Ping(); err != nil {
		status = "degraded"
	}

	return c.JSON(fiber.Map{
		"status":         status,
		"sync_sessions":  h.feed.TotalSubscribers(),
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}
