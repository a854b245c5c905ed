package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"commandcenter/internal/database"
	"commandcenter/internal/models"
)

// ProjectFilterAll is the sentinel meaning "tasks across all projects".
const ProjectFilterAll = "all"

// TaskStore handles SQL CRUD for tasks
type TaskStore struct {
	db   *database.DB
	feed *ChangeFeed
}

// NewTaskStore creates a new task store
func NewTaskStore(db *database.DB, feed *ChangeFeed) *TaskStore {
	return &TaskStore{db: db, feed: feed}
}

const taskColumns = `id, created_at, project_id, title, description, status, priority,
	due_date, author_id, assigned_model, trigger_type, scheduled_at,
	execution_status, execution_started_at, suggestions, evidence_box, instructions, auto_proceed`

// ownerScope restricts a task query to projects owned by the session user.
// The system identity (housekeeping jobs) sees every task.
const ownerScope = " project_id IN (SELECT id FROM projects WHERE owner_id = ?)"

func scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	var t models.Task
	var description, assignedModel, suggestions, evidenceBox, instructions sql.NullString
	var dueDate, scheduledAt, executionStartedAt sql.NullTime
	var autoProceed sql.NullBool

	err := row.Scan(
		&t.ID, &t.CreatedAt, &t.ProjectID, &t.Title, &description, &t.Status, &t.Priority,
		&dueDate, &t.AuthorID, &assignedModel, &t.TriggerType, &scheduledAt,
		&t.ExecutionStatus, &executionStartedAt, &suggestions, &evidenceBox, &instructions, &autoProceed,
	)
	if err != nil {
		return nil, err
	}

	if executionStartedAt.Valid {
		t.ExecutionStartedAt = &executionStartedAt.Time
	}

	if description.Valid {
		t.Description = &description.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.Time
	}
	if assignedModel.Valid {
		m := models.WorkerModel(assignedModel.String)
		t.AssignedModel = &m
	}
	if scheduledAt.Valid {
		t.ScheduledAt = &scheduledAt.Time
	}
	if suggestions.Valid {
		t.Suggestions = &suggestions.String
	}
	if evidenceBox.Valid {
		t.EvidenceBox = &evidenceBox.String
	}
	if instructions.Valid {
		t.Instructions = &instructions.String
	}
	if autoProceed.Valid {
		t.AutoProceed = &autoProceed.Bool
	}
	return &t, nil
}

// List returns the user's tasks ordered by creation time descending (newest
// first), optionally restricted to one project. An empty filter or the "all"
// sentinel returns tasks across all of the user's projects; tasks in other
// users' projects are never visible.
func (s *TaskStore) List(ctx context.Context, userID, projectID string) ([]models.Task, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	query := "SELECT " + taskColumns + " FROM tasks WHERE" + ownerScope
	args := []any{userID}
	if projectID != "" && projectID != ProjectFilterAll {
		query += " AND project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	recordOp(models.TableTasks, "list")
	return tasks, rows.Err()
}

// GetByID retrieves one of the user's tasks by ID. A task in another user's
// project reads as not found.
func (s *TaskStore) GetByID(ctx context.Context, userID, taskID string) (*models.Task, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	query := "SELECT " + taskColumns + " FROM tasks WHERE id = ?"
	args := []any{taskID}
	if userID != models.SystemAuthorID {
		query += " AND" + ownerScope
		args = append(args, userID)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// CreateTaskParams carries the fields a caller may supply at creation time.
type CreateTaskParams struct {
	ProjectID     string
	Title         string
	Description   string
	Priority      models.TaskPriority
	DueDate       *time.Time
	AssignedModel *models.WorkerModel
	TriggerType   models.TriggerType
	ScheduledAt   *time.Time
}

// Create inserts a new task authored by the session user. The parent project
// must exist; status starts at "todo" and execution status at "idle".
func (s *TaskStore) Create(ctx context.Context, userID string, params CreateTaskParams) (*models.Task, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	var ownerID string
	err := s.db.QueryRowContext(ctx, "SELECT owner_id FROM projects WHERE id = ?", params.ProjectID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", params.ProjectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check project: %w", err)
	}
	// Another user's project reads as not found, same as the task queries.
	if ownerID != userID {
		return nil, fmt.Errorf("project %s: %w", params.ProjectID, ErrNotFound)
	}

	if params.Priority == "" {
		params.Priority = models.TaskPriorityMedium
	}
	if params.TriggerType == "" {
		params.TriggerType = models.TriggerManual
	}

	t := models.Task{
		ID:              uuid.New().String(),
		CreatedAt:       time.Now(),
		ProjectID:       params.ProjectID,
		Title:           params.Title,
		Status:          models.TaskStatusTodo,
		Priority:        params.Priority,
		DueDate:         params.DueDate,
		AuthorID:        userID,
		AssignedModel:   params.AssignedModel,
		TriggerType:     params.TriggerType,
		ScheduledAt:     params.ScheduledAt,
		ExecutionStatus: models.ExecIdle,
	}
	if params.Description != "" {
		t.Description = &params.Description
	}

	var assignedModel any
	if t.AssignedModel != nil {
		assignedModel = string(*t.AssignedModel)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, created_at, project_id, title, description, status, priority,
			due_date, author_id, assigned_model, trigger_type, scheduled_at, execution_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.CreatedAt, t.ProjectID, t.Title, t.Description, t.Status, t.Priority,
		t.DueDate, t.AuthorID, assignedModel, t.TriggerType, t.ScheduledAt, t.ExecutionStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	recordOp(models.TableTasks, "insert")
	s.publish(ownerID, userID, models.ChangeEvent{
		Table: models.TableTasks,
		Op:    models.OpInsert,
		RowID: t.ID,
	})
	return &t, nil
}

// Update merges only the supplied patch fields into the existing record and
// returns the full updated task. There is no cross-field validation: setting
// scheduled_at while trigger_type stays "manual" is allowed and inert.
func (s *TaskStore) Update(ctx context.Context, userID, taskID string, patch models.TaskPatch) (*models.Task, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	if patch.Empty() {
		return s.GetByID(ctx, userID, taskID)
	}

	var sets []string
	var args []any
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.Priority != nil {
		set("priority", string(*patch.Priority))
	}
	if patch.DueDate != nil {
		set("due_date", *patch.DueDate)
	}
	if patch.AssignedModel != nil {
		set("assigned_model", string(*patch.AssignedModel))
	}
	if patch.TriggerType != nil {
		set("trigger_type", string(*patch.TriggerType))
	}
	if patch.ScheduledAt != nil {
		set("scheduled_at", *patch.ScheduledAt)
	}
	if patch.ExecutionStatus != nil {
		set("execution_status", string(*patch.ExecutionStatus))
		// The stuck-run sweep measures from this timestamp, not from the
		// task's creation time.
		if *patch.ExecutionStatus == models.ExecRunning {
			set("execution_started_at", time.Now())
		}
	}
	if patch.Suggestions != nil {
		set("suggestions", *patch.Suggestions)
	}
	if patch.EvidenceBox != nil {
		set("evidence_box", *patch.EvidenceBox)
	}
	if patch.Instructions != nil {
		set("instructions", *patch.Instructions)
	}
	if patch.AutoProceed != nil {
		set("auto_proceed", *patch.AutoProceed)
	}

	query := "UPDATE tasks SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, taskID)
	if userID != models.SystemAuthorID {
		query += " AND" + ownerScope
		args = append(args, userID)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		// RowsAffected is also 0 when the patch matched the stored values,
		// so confirm visibility before reporting not-found.
		if _, err := s.GetByID(ctx, userID, taskID); err != nil {
			return nil, err
		}
	}

	updated, err := s.GetByID(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	recordOp(models.TableTasks, "update")
	s.publishForTask(ctx, updated, userID, models.ChangeEvent{
		Table: models.TableTasks,
		Op:    models.OpUpdate,
		RowID: taskID,
	})
	return updated, nil
}

// UpdateStatus is a convenience wrapper equivalent to Update with only the
// status field supplied.
func (s *TaskStore) UpdateStatus(ctx context.Context, userID, taskID string, status models.TaskStatus) (*models.Task, error) {
	return s.Update(ctx, userID, taskID, models.TaskPatch{Status: &status})
}

// UpdateIntelligence updates the fields an automated run reports back:
// execution status, suggestions, and the evidence box.
func (s *TaskStore) UpdateIntelligence(ctx context.Context, userID, taskID string, execStatus *models.ExecutionStatus, suggestions, evidenceBox *string) (*models.Task, error) {
	return s.Update(ctx, userID, taskID, models.TaskPatch{
		ExecutionStatus: execStatus,
		Suggestions:     suggestions,
		EvidenceBox:     evidenceBox,
	})
}

// ListStuckExecutions returns tasks whose execution entered "running" before
// the cutoff and never reported back. Used by the housekeeping sweep; the age
// of the task itself is irrelevant.
func (s *TaskStore) ListStuckExecutions(ctx context.Context, cutoff time.Time) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE execution_status = ? AND execution_started_at IS NOT NULL AND execution_started_at < ?",
		models.ExecRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck executions: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// publishForTask routes a task event to the project owner and the acting user.
func (s *TaskStore) publishForTask(ctx context.Context, t *models.Task, actorID string, event models.ChangeEvent) {
	var ownerID string
	if err := s.db.QueryRowContext(ctx, "SELECT owner_id FROM projects WHERE id = ?", t.ProjectID).Scan(&ownerID); err != nil {
		ownerID = ""
	}
	s.publish(ownerID, actorID, event)
}

func (s *TaskStore) publish(ownerID, actorID string, event models.ChangeEvent) {
	if s.feed == nil {
		return
	}
	if ownerID != "" {
		s.feed.Publish(ownerID, event)
	}
	if actorID != "" && actorID != ownerID {
		s.feed.Publish(actorID, event)
	}
}
