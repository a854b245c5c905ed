package handlers

import (
	"commandcenter/internal/services"
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ProjectHandler serves the project CRUD endpoints
type ProjectHandler struct {
	projects *services.ProjectStore
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(projects *services.ProjectStore) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// CreateProjectRequest is the request body for project creation
type CreateProjectRequest struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// List returns the session user's projects, oldest first
// GET /api/projects
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	projects, err := h.projects.List(c.Context(), userID)
	if err != nil {
		log.Printf("❌ Failed to list projects: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list projects",
		})
	}

	return c.JSON(fiber.Map{
		"projects": projects,
		"count":    len(projects),
	})
}

// Get returns a single project
// GET /api/projects/:id
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	project, err := h.projects.GetByID(c.Context(), userID, c.Params("id"))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Project not found",
			})
		}
		log.Printf("❌ Failed to get project: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get project",
		})
	}
	return c.JSON(project)
}

// Create adds a new project owned by the session user
// POST /api/projects
func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var req CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Project name is required",
		})
	}

	project, err := h.projects.Create(c.Context(), userID, req.Name, req.Icon, req.Color)
	if err != nil {
		if errors.Is(err, services.ErrUnauthenticated) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}
		log.Printf("❌ Failed to create project: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create project",
		})
	}

	log.Printf("✅ Project created: %s (%s) by %s", project.Name, project.ID, userID)
	return c.Status(fiber.StatusCreated).JSON(project)
}
