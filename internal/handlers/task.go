package handlers

import (
	"commandcenter/internal/models"
	"commandcenter/internal/services"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// TaskHandler serves the task CRUD endpoints, including the two assignment
// modes: direct (caller picks a worker model) and delegated (the orchestrator
// model plans the work itself).
type TaskHandler struct {
	tasks    *services.TaskStore
	activity *services.ActivityStore
	workers  *services.WorkerRegistry
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(tasks *services.TaskStore, activity *services.ActivityStore, workers *services.WorkerRegistry) *TaskHandler {
	return &TaskHandler{tasks: tasks, activity: activity, workers: workers}
}

// CreateTaskRequest is the request body for task creation. Mode selects how
// the task gets a worker: "direct" (default) requires assigned_model and
// instructions; "delegated" hands the goal to the orchestrator.
type CreateTaskRequest struct {
	ProjectID     string     `json:"project_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Priority      string     `json:"priority"`
	DueDate       *time.Time `json:"due_date"`
	Mode          string     `json:"mode"`
	AssignedModel string     `json:"assigned_model"`
	Instructions  string     `json:"instructions"`
	TriggerType   string     `json:"trigger_type"`
	ScheduledAt   *time.Time `json:"scheduled_at"`
	AutoProceed   *bool      `json:"auto_proceed"`
}

// UpdateStatusRequest is the request body for the status shortcut endpoint
type UpdateStatusRequest struct {
	Status models.TaskStatus `json:"status"`
}

// IntelligenceRequest updates the fields a worker run reports back
type IntelligenceRequest struct {
	ExecutionStatus *models.ExecutionStatus `json:"execution_status"`
	Suggestions     *string                 `json:"suggestions"`
	EvidenceBox     *string                 `json:"evidence_box"`
}

func taskError(c *fiber.Ctx, err error, action string) error {
	if errors.Is(err, services.ErrUnauthenticated) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}
	if errors.Is(err, services.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Not found",
		})
	}
	log.Printf("❌ Failed to %s: %v", action, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to " + action,
	})
}

// validateTaskPatch rejects enum values outside the known sets and blank
// titles. Shared by the REST handlers and the websocket dispatch; the store
// itself stays a thin translation layer.
func validateTaskPatch(patch models.TaskPatch, workers *services.WorkerRegistry) error {
	if patch.Status != nil && !patch.Status.Valid() {
		return errors.New("Invalid status")
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return errors.New("Invalid priority")
	}
	if patch.AssignedModel != nil && !workers.Known(*patch.AssignedModel) {
		return errors.New("Unknown worker model")
	}
	if patch.TriggerType != nil && !patch.TriggerType.Valid() {
		return errors.New("Invalid trigger_type")
	}
	if patch.ExecutionStatus != nil && !patch.ExecutionStatus.Valid() {
		return errors.New("Invalid execution_status")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return errors.New("Task title cannot be empty")
	}
	return nil
}

// List returns the user's tasks newest-first, optionally scoped to one project
// GET /api/tasks?project_id=
func (h *TaskHandler) List(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	projectID := c.Query("project_id")

	tasks, err := h.tasks.List(c.Context(), userID, projectID)
	if err != nil {
		return taskError(c, err, "list tasks")
	}

	return c.JSON(fiber.Map{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// Get returns a single task
// GET /api/tasks/:id
func (h *TaskHandler) Get(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	task, err := h.tasks.GetByID(c.Context(), userID, c.Params("id"))
	if err != nil {
		return taskError(c, err, "get task")
	}
	return c.JSON(task)
}

// Create adds a task in direct or delegated mode
// POST /api/tasks
func (h *TaskHandler) Create(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var req CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Task title is required",
		})
	}
	if req.ProjectID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "project_id is required",
		})
	}

	if req.Priority != "" && !models.TaskPriority(req.Priority).Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid priority",
		})
	}
	if req.TriggerType != "" && !models.TriggerType(req.TriggerType).Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid trigger_type",
		})
	}

	mode := req.Mode
	if mode == "" {
		mode = "direct"
	}

	var model models.WorkerModel
	var instructions string
	var autoProceed *bool

	switch mode {
	case "direct":
		model = models.WorkerModel(req.AssignedModel)
		if !h.workers.Known(model) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unknown worker model",
			})
		}
		if h.workers.IsOrchestrator(model) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Direct assignment to the orchestrator is not allowed; use delegated mode",
			})
		}
		instructions = strings.TrimSpace(req.Instructions)
		if instructions == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Instructions are required for direct assignment",
			})
		}
	case "delegated":
		// The orchestrator decides instructions itself; any supplied ones
		// are ignored.
		model = h.workers.Orchestrator()
		autoProceed = req.AutoProceed
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Mode must be \"direct\" or \"delegated\"",
		})
	}

	task, err := h.tasks.Create(c.Context(), userID, services.CreateTaskParams{
		ProjectID:     req.ProjectID,
		Title:         req.Title,
		Description:   req.Description,
		Priority:      models.TaskPriority(req.Priority),
		DueDate:       req.DueDate,
		AssignedModel: &model,
		TriggerType:   models.TriggerType(req.TriggerType),
		ScheduledAt:   req.ScheduledAt,
	})
	if err != nil {
		return taskError(c, err, "create task")
	}

	// Worker metadata rides a follow-up patch; creation and assignment are
	// separate store calls on purpose, matching the feed's per-row events.
	patch := models.TaskPatch{}
	if instructions != "" {
		patch.Instructions = &instructions
	}
	if autoProceed != nil {
		patch.AutoProceed = autoProceed
	}
	if !patch.Empty() {
		task, err = h.tasks.Update(c.Context(), userID, task.ID, patch)
		if err != nil {
			return taskError(c, err, "finalize task")
		}
	}

	trace := fmt.Sprintf("Assigned to %s (%s mode)", model, mode)
	if _, err := h.activity.AddSystem(c.Context(), task.ID, trace); err != nil {
		log.Printf("⚠️ Failed to record assignment trace: %v", err)
	}

	log.Printf("✅ Task created: %s (%s, %s mode) by %s", task.Title, task.ID, mode, userID)
	return c.Status(fiber.StatusCreated).JSON(task)
}

// Update patches any subset of task fields
// PATCH /api/tasks/:id
func (h *TaskHandler) Update(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var patch models.TaskPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := validateTaskPatch(patch, h.workers); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	task, err := h.tasks.Update(c.Context(), userID, c.Params("id"), patch)
	if err != nil {
		return taskError(c, err, "update task")
	}
	return c.JSON(task)
}

// UpdateStatus is the one-field shortcut the board view uses
// PATCH /api/tasks/:id/status
func (h *TaskHandler) UpdateStatus(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if !req.Status.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid status",
		})
	}

	task, err := h.tasks.UpdateStatus(c.Context(), userID, c.Params("id"), req.Status)
	if err != nil {
		return taskError(c, err, "update task status")
	}
	return c.JSON(task)
}

// UpdateIntelligence records a worker run's outcome fields
// PATCH /api/tasks/:id/intelligence
func (h *TaskHandler) UpdateIntelligence(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var req IntelligenceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ExecutionStatus != nil && !req.ExecutionStatus.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid execution_status",
		})
	}

	task, err := h.tasks.UpdateIntelligence(c.Context(), userID, c.Params("id"),
		req.ExecutionStatus, req.Suggestions, req.EvidenceBox)
	if err != nil {
		return taskError(c, err, "update task intelligence")
	}
	return c.JSON(task)
}

// Workers lists the configured worker models
// GET /api/workers
func (h *TaskHandler) Workers(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"workers":      h.workers.Workers(),
		"orchestrator": h.workers.Orchestrator(),
	})
}
