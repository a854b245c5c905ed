package services

import (
	"context"
	"testing"
	"time"

	"commandcenter/internal/models"
)

func TestMaintenance_SweepFailsStuckExecutions(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "user-1")
	project := seedProject(t, db, "user-1", "Launch")
	tasks := NewTaskStore(db, nil)
	activity := NewActivityStore(db, nil)
	ctx := context.Background()

	task, err := tasks.Create(ctx, "user-1", CreateTaskParams{ProjectID: project.ID, Title: "Long run"})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	running := models.ExecRunning
	if _, err := tasks.Update(ctx, "user-1", task.ID, models.TaskPatch{ExecutionStatus: &running}); err != nil {
		t.Fatalf("Failed to mark running: %v", err)
	}

	// Zero stuck age: anything running counts.
	m, err := NewMaintenance(db, tasks, activity, 0, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create maintenance: %v", err)
	}
	defer m.Stop()

	m.sweepStuckExecutions()

	swept, err := tasks.GetByID(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if swept.ExecutionStatus != models.ExecFailed {
		t.Errorf("Expected execution failed, got %q", swept.ExecutionStatus)
	}
	if swept.Status != models.TaskStatusTodo {
		t.Errorf("Sweep must not touch user-facing status, got %q", swept.Status)
	}

	entries, err := activity.List(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("Failed to list activity: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != models.ActivitySystem {
		t.Fatalf("Expected one system entry, got %+v", entries)
	}
	if entries[0].AuthorID != models.SystemAuthorID {
		t.Errorf("Expected system author, got %q", entries[0].AuthorID)
	}
}

func TestMaintenance_SweepMeasuresRunAgeNotTaskAge(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "user-1")
	project := seedProject(t, db, "user-1", "Launch")
	tasks := NewTaskStore(db, nil)
	activity := NewActivityStore(db, nil)
	ctx := context.Background()

	task, err := tasks.Create(ctx, "user-1", CreateTaskParams{ProjectID: project.ID, Title: "Old task"})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	// Age the task itself well past the stuck threshold, then start a run now.
	if _, err := db.Exec("UPDATE tasks SET created_at = ? WHERE id = ?", time.Now().Add(-2*time.Hour), task.ID); err != nil {
		t.Fatalf("Failed to age task: %v", err)
	}
	running := models.ExecRunning
	if _, err := tasks.Update(ctx, "user-1", task.ID, models.TaskPatch{ExecutionStatus: &running}); err != nil {
		t.Fatalf("Failed to mark running: %v", err)
	}

	m, err := NewMaintenance(db, tasks, activity, time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create maintenance: %v", err)
	}
	defer m.Stop()

	m.sweepStuckExecutions()

	got, err := tasks.GetByID(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if got.ExecutionStatus != models.ExecRunning {
		t.Fatalf("Sweep failed an execution that just started: %q", got.ExecutionStatus)
	}

	// Once the run itself is old, the sweep catches it.
	if _, err := db.Exec("UPDATE tasks SET execution_started_at = ? WHERE id = ?", time.Now().Add(-2*time.Hour), task.ID); err != nil {
		t.Fatalf("Failed to age run: %v", err)
	}
	m.sweepStuckExecutions()

	got, err = tasks.GetByID(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if got.ExecutionStatus != models.ExecFailed {
		t.Errorf("Expected the aged run to be failed, got %q", got.ExecutionStatus)
	}
}

func TestMaintenance_SweepLeavesFreshRunsAlone(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "user-1")
	project := seedProject(t, db, "user-1", "Launch")
	tasks := NewTaskStore(db, nil)
	activity := NewActivityStore(db, nil)
	ctx := context.Background()

	task, err := tasks.Create(ctx, "user-1", CreateTaskParams{ProjectID: project.ID, Title: "Fresh run"})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	running := models.ExecRunning
	if _, err := tasks.Update(ctx, "user-1", task.ID, models.TaskPatch{ExecutionStatus: &running}); err != nil {
		t.Fatalf("Failed to mark running: %v", err)
	}

	m, err := NewMaintenance(db, tasks, activity, time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create maintenance: %v", err)
	}
	defer m.Stop()

	m.sweepStuckExecutions()

	got, err := tasks.GetByID(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if got.ExecutionStatus != models.ExecRunning {
		t.Errorf("Fresh run was swept: %q", got.ExecutionStatus)
	}
}
