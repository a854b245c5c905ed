// Package state holds the per-session view model: the authoritative local
// copies of projects, tasks, and the active selection, kept consistent with
// the record store through optimistic updates after confirmed mutations and
// blunt re-fetches when the change feed announces external writes.
package state

import (
	"context"
	"sync"

	"commandcenter/internal/models"
)

// RecordAccess is the read surface the controller refreshes from. The
// concrete implementation scopes queries to the session user.
type RecordAccess interface {
	ListProjects(ctx context.Context) ([]models.Project, error)
	ListTasks(ctx context.Context, projectID string) ([]models.Task, error)
	ListTaskActivity(ctx context.Context, taskID string) ([]models.TaskActivity, error)
}

// FilterAll is the project filter sentinel meaning "no filter".
const FilterAll = "all"

// Snapshot is a copied, render-ready view of the controller state.
type Snapshot struct {
	Projects        []models.Project      `json:"projects"`
	Tasks           []models.Task         `json:"tasks"`
	ActiveProjectID string                `json:"active_project_id"`
	ActiveTask      *models.Task          `json:"active_task,omitempty"`
	Activity        []models.TaskActivity `json:"activity,omitempty"`
}

// Controller owns the in-memory projects/tasks collections and the active
// selection for one authenticated session. It is the single writer of that
// state: views mutate only through its methods, and every task-list fetch
// carries a generation token so a response from a superseded filter change
// can never clobber the result of a newer one.
type Controller struct {
	mu      sync.Mutex
	records RecordAccess

	projects        []models.Project
	tasks           []models.Task
	activeProjectID string
	activeTask      *models.Task
	activity        []models.TaskActivity

	taskGen  uint64 // generation of the latest issued task fetch
	onChange func()
}

// NewController creates a controller with no filter applied.
func NewController(records RecordAccess) *Controller {
	return &Controller{
		records:         records,
		activeProjectID: FilterAll,
	}
}

// OnChange registers a callback fired after every applied state change.
// Must be set before the controller is shared.
func (c *Controller) OnChange(fn func()) {
	c.onChange = fn
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}

// Load performs the initial fetch: all projects, then tasks for the current
// filter. Called once after the session is confirmed.
func (c *Controller) Load(ctx context.Context) error {
	if err := c.RefreshProjects(ctx); err != nil {
		return err
	}
	return c.RefreshTasks(ctx)
}

// RefreshProjects replaces the project list with a fresh fetch.
func (c *Controller) RefreshProjects(ctx context.Context) error {
	projects, err := c.records.ListProjects(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.projects = projects
	c.mu.Unlock()
	c.notify()
	return nil
}

// SetProjectFilter changes the active project filter (FilterAll clears it)
// and replaces the task list wholesale with the result of a fresh fetch.
func (c *Controller) SetProjectFilter(ctx context.Context, projectID string) error {
	if projectID == "" {
		projectID = FilterAll
	}

	c.mu.Lock()
	c.activeProjectID = projectID
	c.taskGen++
	gen := c.taskGen
	c.mu.Unlock()
	c.notify()

	return c.fetchTasks(ctx, projectID, gen)
}

// RefreshTasks re-fetches the task list for the current filter.
func (c *Controller) RefreshTasks(ctx context.Context) error {
	c.mu.Lock()
	projectID := c.activeProjectID
	c.taskGen++
	gen := c.taskGen
	c.mu.Unlock()

	return c.fetchTasks(ctx, projectID, gen)
}

// fetchTasks performs the list query and applies the result only if no newer
// fetch was issued while this one was in flight. Stale results are discarded,
// never merged.
func (c *Controller) fetchTasks(ctx context.Context, projectID string, gen uint64) error {
	tasks, err := c.records.ListTasks(ctx, projectID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if gen != c.taskGen {
		c.mu.Unlock()
		return nil
	}
	c.tasks = tasks
	c.mu.Unlock()
	c.notify()
	return nil
}

// OpenTask makes a task the active one and loads its activity log.
func (c *Controller) OpenTask(ctx context.Context, task models.Task) error {
	c.mu.Lock()
	taskCopy := task
	c.activeTask = &taskCopy
	c.activity = nil
	c.mu.Unlock()
	c.notify()

	return c.RefreshActivity(ctx, task.ID)
}

// CloseTask clears the active task and its activity log.
func (c *Controller) CloseTask() {
	c.mu.Lock()
	c.activeTask = nil
	c.activity = nil
	c.mu.Unlock()
	c.notify()
}

// ActiveTaskID returns the ID of the open task, or "" when none is open.
func (c *Controller) ActiveTaskID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeTask == nil {
		return ""
	}
	return c.activeTask.ID
}

// ActiveProjectID returns the current filter ("all" when unfiltered).
func (c *Controller) ActiveProjectID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeProjectID
}

// RefreshActivity re-fetches the activity log, but only when taskID names the
// currently open task. Events for other tasks are ignored.
func (c *Controller) RefreshActivity(ctx context.Context, taskID string) error {
	c.mu.Lock()
	open := c.activeTask != nil && c.activeTask.ID == taskID
	c.mu.Unlock()
	if !open {
		return nil
	}

	activity, err := c.records.ListTaskActivity(ctx, taskID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	// The task may have been closed or swapped while the fetch was in flight.
	if c.activeTask == nil || c.activeTask.ID != taskID {
		c.mu.Unlock()
		return nil
	}
	c.activity = activity
	c.mu.Unlock()
	c.notify()
	return nil
}

// ApplyProjectCreated merges a confirmed project creation into local state.
// Appended, not prepended: the authoritative listing orders by creation time
// ascending, and the new project is the newest.
func (c *Controller) ApplyProjectCreated(p models.Project) {
	c.mu.Lock()
	c.projects = append(c.projects, p)
	c.mu.Unlock()
	c.notify()
}

// ApplyTaskCreated merges a confirmed task creation into local state. The
// task list is newest-first, so the new task is prepended — but only when it
// matches the current filter.
func (c *Controller) ApplyTaskCreated(t models.Task) {
	c.mu.Lock()
	if c.activeProjectID == FilterAll || c.activeProjectID == t.ProjectID {
		c.tasks = append([]models.Task{t}, c.tasks...)
	}
	c.mu.Unlock()
	c.notify()
}

// ApplyTaskUpdated replaces the matching task in place and, when the mutated
// task is the open one, swaps the active task so the detail view reflects the
// change without a separate fetch.
func (c *Controller) ApplyTaskUpdated(t models.Task) {
	c.mu.Lock()
	for i := range c.tasks {
		if c.tasks[i].ID == t.ID {
			c.tasks[i] = t
			break
		}
	}
	if c.activeTask != nil && c.activeTask.ID == t.ID {
		taskCopy := t
		c.activeTask = &taskCopy
	}
	c.mu.Unlock()
	c.notify()
}

// ApplyNoteAdded appends a confirmed activity entry when it belongs to the
// open task. The feed-triggered refresh will reconcile ordering if needed.
func (c *Controller) ApplyNoteAdded(a models.TaskActivity) {
	c.mu.Lock()
	if c.activeTask != nil && c.activeTask.ID == a.TaskID {
		c.activity = append(c.activity, a)
	}
	c.mu.Unlock()
	c.notify()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Projects:        make([]models.Project, len(c.projects)),
		Tasks:           make([]models.Task, len(c.tasks)),
		ActiveProjectID: c.activeProjectID,
	}
	copy(snap.Projects, c.projects)
	copy(snap.Tasks, c.tasks)
	if c.activeTask != nil {
		taskCopy := *c.activeTask
		snap.ActiveTask = &taskCopy
		snap.Activity = make([]models.TaskActivity, len(c.activity))
		copy(snap.Activity, c.activity)
	}
	return snap
}
