package models

import "time"

// TaskStatus is the user-facing completion state of a task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusDone       TaskStatus = "done"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// TaskPriority ranks how urgent a task is.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}

// WorkerModel identifies which automated agent profile a task is assigned to.
type WorkerModel string

const (
	WorkerKimi     WorkerModel = "kimi"
	WorkerDeepseek WorkerModel = "deepseek"
	WorkerGLM      WorkerModel = "glm"
	WorkerOpus     WorkerModel = "opus" // orchestrator tier
)

func (m WorkerModel) Valid() bool {
	switch m {
	case WorkerKimi, WorkerDeepseek, WorkerGLM, WorkerOpus:
		return true
	}
	return false
}

// TriggerType describes how a task's automated run is meant to start.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
	TriggerAuto      TriggerType = "auto"
)

func (t TriggerType) Valid() bool {
	switch t {
	case TriggerManual, TriggerScheduled, TriggerAuto:
		return true
	}
	return false
}

// ExecutionStatus is the lifecycle of the last automated run of a task.
// It is independent of TaskStatus — a task can be "done" for the user while
// the last run is recorded as "failed". No reconciliation rule is enforced.
type ExecutionStatus string

const (
	ExecIdle     ExecutionStatus = "idle"
	ExecQueued   ExecutionStatus = "queued"
	ExecRunning  ExecutionStatus = "running"
	ExecFailed   ExecutionStatus = "failed"
	ExecSuccess  ExecutionStatus = "success"
	ExecQuestion ExecutionStatus = "question"
)

func (e ExecutionStatus) Valid() bool {
	switch e {
	case ExecIdle, ExecQueued, ExecRunning, ExecFailed, ExecSuccess, ExecQuestion:
		return true
	}
	return false
}

// Task is a unit of work inside exactly one project.
type Task struct {
	ID              string          `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	ProjectID       string          `json:"project_id"`
	Title           string          `json:"title"`
	Description     *string         `json:"description,omitempty"`
	Status          TaskStatus      `json:"status"`
	Priority        TaskPriority    `json:"priority"`
	DueDate         *time.Time      `json:"due_date,omitempty"`
	AuthorID        string          `json:"author_id"`
	AssignedModel   *WorkerModel    `json:"assigned_model,omitempty"`
	TriggerType     TriggerType     `json:"trigger_type"`
	ScheduledAt     *time.Time      `json:"scheduled_at,omitempty"`
	ExecutionStatus ExecutionStatus `json:"execution_status"`
	// Set every time the execution enters "running"; the stuck-run sweep
	// measures from here.
	ExecutionStartedAt *time.Time `json:"execution_started_at,omitempty"`
	Suggestions        *string    `json:"suggestions,omitempty"`
	EvidenceBox        *string    `json:"evidence_box,omitempty"`
	Instructions       *string    `json:"instructions,omitempty"`
	AutoProceed        *bool      `json:"auto_proceed,omitempty"`
}

// TaskPatch carries a partial update. Nil fields are left untouched by the
// store; only supplied fields are merged into the existing record. There is
// deliberately no cross-field validation here (e.g. scheduled_at may be set
// while trigger_type stays "manual" — semantically inert).
type TaskPatch struct {
	Title           *string          `json:"title,omitempty"`
	Description     *string          `json:"description,omitempty"`
	Status          *TaskStatus      `json:"status,omitempty"`
	Priority        *TaskPriority    `json:"priority,omitempty"`
	DueDate         *time.Time       `json:"due_date,omitempty"`
	AssignedModel   *WorkerModel     `json:"assigned_model,omitempty"`
	TriggerType     *TriggerType     `json:"trigger_type,omitempty"`
	ScheduledAt     *time.Time       `json:"scheduled_at,omitempty"`
	ExecutionStatus *ExecutionStatus `json:"execution_status,omitempty"`
	Suggestions     *string          `json:"suggestions,omitempty"`
	EvidenceBox     *string          `json:"evidence_box,omitempty"`
	Instructions    *string          `json:"instructions,omitempty"`
	AutoProceed     *bool            `json:"auto_proceed,omitempty"`
}

// Empty reports whether the patch carries no fields at all.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.DueDate == nil && p.AssignedModel == nil &&
		p.TriggerType == nil && p.ScheduledAt == nil && p.ExecutionStatus == nil &&
		p.Suggestions == nil && p.EvidenceBox == nil && p.Instructions == nil &&
		p.AutoProceed == nil
}
