package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"commandcenter/internal/logging"
	"commandcenter/internal/models"
	"commandcenter/internal/services"
	"commandcenter/internal/state"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// SyncWebSocketHandler drives one state controller per websocket connection.
// Every client mutation goes through the stores; the confirmed result is
// merged optimistically, and feed events from other sessions trigger
// re-fetches. The client always receives full state snapshots.
type SyncWebSocketHandler struct {
	projects *services.ProjectStore
	tasks    *services.TaskStore
	activity *services.ActivityStore
	feed     *services.ChangeFeed
	workers  *services.WorkerRegistry
}

// NewSyncWebSocketHandler creates a new sync websocket handler
func NewSyncWebSocketHandler(
	projects *services.ProjectStore,
	tasks *services.TaskStore,
	activity *services.ActivityStore,
	feed *services.ChangeFeed,
	workers *services.WorkerRegistry,
) *SyncWebSocketHandler {
	return &SyncWebSocketHandler{
		projects: projects,
		tasks:    tasks,
		activity: activity,
		feed:     feed,
		workers:  workers,
	}
}

// sessionRecords scopes the read surface to the connection's user.
type sessionRecords struct {
	projects *services.ProjectStore
	tasks    *services.TaskStore
	activity *services.ActivityStore
	userID   string
}

func (r *sessionRecords) ListProjects(ctx context.Context) ([]models.Project, error) {
	return r.projects.List(ctx, r.userID)
}

func (r *sessionRecords) ListTasks(ctx context.Context, projectID string) ([]models.Task, error) {
	return r.tasks.List(ctx, r.userID, projectID)
}

func (r *sessionRecords) ListTaskActivity(ctx context.Context, taskID string) ([]models.TaskActivity, error) {
	return r.activity.List(ctx, r.userID, taskID)
}

// SyncClientMessage represents a message from the client
type SyncClientMessage struct {
	Type string `json:"type"`

	// Filter / selection
	ProjectID string `json:"project_id,omitempty"`
	TaskID    string `json:"task_id,omitempty"`

	// create_project
	Name  string `json:"name,omitempty"`
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`

	// create_task / update_task
	Title         string            `json:"title,omitempty"`
	Description   string            `json:"description,omitempty"`
	Priority      string            `json:"priority,omitempty"`
	DueDate       *time.Time        `json:"due_date,omitempty"`
	Mode          string            `json:"mode,omitempty"`
	AssignedModel string            `json:"assigned_model,omitempty"`
	Instructions  string            `json:"instructions,omitempty"`
	AutoProceed   *bool             `json:"auto_proceed,omitempty"`
	Status        string            `json:"status,omitempty"`
	Patch         *models.TaskPatch `json:"patch,omitempty"`

	// add_note
	Content string `json:"content,omitempty"`
}

// SyncServerMessage represents a message sent to the client
type SyncServerMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Handle is the WebSocket handler for /ws/sync
func (h *SyncWebSocketHandler) Handle(c *websocket.Conn) {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		log.Printf("[SYNC-WS] Connection rejected: missing or invalid user_id")
		c.WriteJSON(SyncServerMessage{Type: "error", Data: map[string]string{"message": "unauthorized"}})
		return
	}
	connID := uuid.New().String()

	sessionLog := logging.WithSync(connID, userID)
	sessionLog.Info("Sync connection opened")

	if m := services.GetMetrics(); m != nil {
		m.SyncConnections.Inc()
		defer m.SyncConnections.Dec()
	}

	ctx := context.Background()

	records := &sessionRecords{
		projects: h.projects,
		tasks:    h.tasks,
		activity: h.activity,
		userID:   userID,
	}
	controller := state.NewController(records)

	writeChan := make(chan SyncServerMessage, 100)
	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() { closeOnce.Do(func() { close(done) }) }

	// Coalesce change notifications: one pending push is enough, the
	// snapshot is always read fresh when the push goes out.
	stateDirty := make(chan struct{}, 1)
	controller.OnChange(func() {
		select {
		case stateDirty <- struct{}{}:
		default:
		}
	})

	// Write mutex — serializes websocket writes (JSON messages + pings)
	var writeMu sync.Mutex

	// Write loop — sole consumer of writeChan and stateDirty
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[SYNC-WS] Write loop recovered for %s: %v", connID, r)
			}
		}()
		for {
			select {
			case <-done:
				return
			case msg := <-writeChan:
				writeMu.Lock()
				err := c.WriteJSON(msg)
				writeMu.Unlock()
				if err != nil {
					log.Printf("[SYNC-WS] Write error for %s: %v", connID, err)
					return
				}
				if m := services.GetMetrics(); m != nil {
					m.SyncMessages.WithLabelValues(msg.Type, "outbound").Inc()
				}
			case <-stateDirty:
				writeMu.Lock()
				err := c.WriteJSON(SyncServerMessage{Type: "state", Data: controller.Snapshot()})
				writeMu.Unlock()
				if err != nil {
					log.Printf("[SYNC-WS] Write error for %s: %v", connID, err)
					return
				}
				if m := services.GetMetrics(); m != nil {
					m.SyncMessages.WithLabelValues("state", "outbound").Inc()
				}
			}
		}
	}()

	// Ping loop
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[SYNC-WS] Ping loop recovered for %s: %v", connID, r)
			}
		}()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				writeMu.Lock()
				err := c.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	subscriber := state.NewSubscriber(h.feed, controller, userID, connID)
	subscriber.Start(ctx)

	defer func() {
		closeDone()
		subscriber.Stop()
		sessionLog.Info("Sync connection closed")
	}()

	writeChan <- SyncServerMessage{
		Type: "connected",
		Data: map[string]interface{}{"connection_id": connID},
	}

	if err := controller.Load(ctx); err != nil {
		log.Printf("[SYNC-WS] Initial load failed for %s: %v", connID, err)
		writeChan <- SyncServerMessage{Type: "error", Data: map[string]string{"message": "failed to load state"}}
	}

	// Read loop
	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[SYNC-WS] Read error for %s: %v", connID, err)
			}
			break
		}

		var clientMsg SyncClientMessage
		if err := json.Unmarshal(msg, &clientMsg); err != nil {
			writeChan <- SyncServerMessage{
				Type: "error",
				Data: map[string]string{"message": "invalid message format"},
			}
			continue
		}

		if m := services.GetMetrics(); m != nil {
			m.SyncMessages.WithLabelValues(clientMsg.Type, "inbound").Inc()
		}

		if err := h.dispatch(ctx, controller, userID, clientMsg, writeChan); err != nil {
			writeChan <- SyncServerMessage{
				Type: "error",
				Data: map[string]string{"message": err.Error()},
			}
		}
	}
}

func (h *SyncWebSocketHandler) dispatch(ctx context.Context, controller *state.Controller, userID string, msg SyncClientMessage, writeChan chan SyncServerMessage) error {
	switch msg.Type {
	case "ping":
		writeChan <- SyncServerMessage{Type: "pong"}
		return nil

	case "set_filter":
		return controller.SetProjectFilter(ctx, msg.ProjectID)

	case "open_task":
		task, err := h.tasks.GetByID(ctx, userID, msg.TaskID)
		if err != nil {
			return fmt.Errorf("task not found")
		}
		return controller.OpenTask(ctx, *task)

	case "close_task":
		controller.CloseTask()
		return nil

	case "create_project":
		name := strings.TrimSpace(msg.Name)
		if name == "" {
			return fmt.Errorf("project name is required")
		}
		project, err := h.projects.Create(ctx, userID, name, msg.Icon, msg.Color)
		if err != nil {
			return fmt.Errorf("failed to create project")
		}
		controller.ApplyProjectCreated(*project)
		return nil

	case "create_task":
		return h.createTask(ctx, controller, userID, msg)

	case "update_task":
		if msg.Patch == nil || msg.Patch.Empty() {
			return fmt.Errorf("patch is required")
		}
		if err := validateTaskPatch(*msg.Patch, h.workers); err != nil {
			return err
		}
		task, err := h.tasks.Update(ctx, userID, msg.TaskID, *msg.Patch)
		if err != nil {
			return fmt.Errorf("failed to update task")
		}
		controller.ApplyTaskUpdated(*task)
		return nil

	case "update_status":
		status := models.TaskStatus(msg.Status)
		if !status.Valid() {
			return fmt.Errorf("invalid status")
		}
		task, err := h.tasks.UpdateStatus(ctx, userID, msg.TaskID, status)
		if err != nil {
			return fmt.Errorf("failed to update status")
		}
		controller.ApplyTaskUpdated(*task)
		return nil

	case "add_note":
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			return fmt.Errorf("note content is required")
		}
		entry, err := h.activity.AddNote(ctx, userID, msg.TaskID, content)
		if err != nil {
			return fmt.Errorf("failed to add note")
		}
		controller.ApplyNoteAdded(*entry)
		return nil

	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

func (h *SyncWebSocketHandler) createTask(ctx context.Context, controller *state.Controller, userID string, msg SyncClientMessage) error {
	title := strings.TrimSpace(msg.Title)
	if title == "" {
		return fmt.Errorf("task title is required")
	}
	if msg.Priority != "" && !models.TaskPriority(msg.Priority).Valid() {
		return fmt.Errorf("invalid priority")
	}

	mode := msg.Mode
	if mode == "" {
		mode = "direct"
	}

	var model models.WorkerModel
	var instructions string
	var autoProceed *bool

	switch mode {
	case "direct":
		model = models.WorkerModel(msg.AssignedModel)
		if !h.workers.Known(model) {
			return fmt.Errorf("unknown worker model")
		}
		if h.workers.IsOrchestrator(model) {
			return fmt.Errorf("direct assignment to the orchestrator is not allowed")
		}
		instructions = strings.TrimSpace(msg.Instructions)
		if instructions == "" {
			return fmt.Errorf("instructions are required for direct assignment")
		}
	case "delegated":
		model = h.workers.Orchestrator()
		autoProceed = msg.AutoProceed
	default:
		return fmt.Errorf("mode must be \"direct\" or \"delegated\"")
	}

	task, err := h.tasks.Create(ctx, userID, services.CreateTaskParams{
		ProjectID:     msg.ProjectID,
		Title:         title,
		Description:   msg.Description,
		Priority:      models.TaskPriority(msg.Priority),
		DueDate:       msg.DueDate,
		AssignedModel: &model,
	})
	if err != nil {
		return fmt.Errorf("failed to create task")
	}

	patch := models.TaskPatch{}
	if instructions != "" {
		patch.Instructions = &instructions
	}
	if autoProceed != nil {
		patch.AutoProceed = autoProceed
	}
	if !patch.Empty() {
		task, err = h.tasks.Update(ctx, userID, task.ID, patch)
		if err != nil {
			return fmt.Errorf("failed to finalize task")
		}
	}

	if _, err := h.activity.AddSystem(ctx, task.ID, fmt.Sprintf("Assigned to %s (%s mode)", model, mode)); err != nil {
		log.Printf("⚠️ Failed to record assignment trace: %v", err)
	}

	controller.ApplyTaskCreated(*task)
	return nil
}
