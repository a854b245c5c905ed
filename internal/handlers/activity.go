package handlers

import (
	"commandcenter/internal/services"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ActivityHandler serves a task's append-only activity log
type ActivityHandler struct {
	activity *services.ActivityStore
}

// NewActivityHandler creates a new activity handler
func NewActivityHandler(activity *services.ActivityStore) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

// AddNoteRequest is the request body for posting a note
type AddNoteRequest struct {
	Content string `json:"content"`
}

// List returns a task's activity entries, oldest first
// GET /api/tasks/:id/activity
func (h *ActivityHandler) List(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	entries, err := h.activity.List(c.Context(), userID, c.Params("id"))
	if err != nil {
		return taskError(c, err, "list activity")
	}

	return c.JSON(fiber.Map{
		"activity": entries,
		"count":    len(entries),
	})
}

// AddNote appends a user note to a task's log. Whitespace-only content is
// rejected before the store is touched.
// POST /api/tasks/:id/activity
func (h *ActivityHandler) AddNote(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var req AddNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Note content is required",
		})
	}

	entry, err := h.activity.AddNote(c.Context(), userID, c.Params("id"), content)
	if err != nil {
		return taskError(c, err, "add note")
	}

	return c.Status(fiber.StatusCreated).JSON(entry)
}
