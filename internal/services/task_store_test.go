package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"commandcenter/internal/database"
	"commandcenter/internal/models"
)

func seedProject(t *testing.T, db *database.DB, userID, name string) *models.Project {
	t.Helper()
	store := NewProjectStore(db, nil)
	project, err := store.Create(context.Background(), userID, name, "", "")
	if err != nil {
		t.Fatalf("Failed to seed project: %v", err)
	}
	return project
}

func TestTaskStore_CreateAndList(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "user-1")
	project := seedProject(t, db, "user-1", "Launch")
	store := NewTaskStore(db, nil)
	ctx := context.Background()

	task, err := store.Create(ctx, "user-1", CreateTaskParams{
		ProjectID: project.ID,
		Title:     "Write brief",
	})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if task.Status != models.TaskStatusTodo {
		t.Errorf("Expected status todo, got %q", task.Status)
	}
	if task.Priority != models.TaskPriorityMedium {
		t.Errorf("Expected default priority medium, got %q", task.Priority)
	}
	if task.ExecutionStatus != models.ExecIdle {
		t.Errorf("Expected execution status idle, got %q", task.ExecutionStatus)
	}
	if task.TriggerType != models.TriggerManual {
		t.Errorf("Expected trigger manual, got %q", task.TriggerType)
	}

	tasks, err := store.List(ctx, "user-1", "all")
	if err != nil {
		t.Fatalf("Failed to list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("Expected exactly 1 task, got %d", len(tasks))
	}
	if tasks[0].ID != task.ID {
		t.Errorf("Listed task %q does not match created %q", tasks[0].ID, task.ID)
	}
}

func TestTaskStore_ListNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "user-1")
	project := seedProject(t, db, "user-1", "Launch")
	store := NewTaskStore(db, nil)
	ctx := context.Background()

	for _, title := range []string{"Oldest", "Middle", "Newest"} {
		if _, err := store.Create(ctx, "user-1", CreateTaskParams{ProjectID: project.ID, Title: title}); err != nil {
			t.Fatalf("Failed to create task %s: %v", title, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	tasks, err := store.List(ctx, "user-1", project.ID)
	if err != nil {
		t.Fatalf("Failed to list tasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("Expected 3 tasks, got %d", len(tasks))
	}
	if tasks[0].Title != "Newest" || tasks[2].Title != "Oldest" {
		t.Errorf("Expected newest-first ordering, got %q .. %q", tasks[0].Title, tasks[2].Title)
	}
}

func TestTaskStore_FilterPurity(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "user-1")
	alpha := seedProject(t, db, "user-1", "Alpha")
	beta := seedProject(t, db, "user-1", "Beta")
	store := NewTaskStore(db, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := store.Create(ctx, "user-1", CreateTaskParams{ProjectID: alpha.ID, Title: "Alpha task"}); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := store.Create(ctx, "user-1", CreateTaskParams{ProjectID: beta.ID, Title: "Beta task"}); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}
	}

	alphaTasks, err := store.List(ctx, "user-1", alpha.ID)
	if err != nil {
		t.Fatalf("Failed to list alpha tasks: %v", err)
	}
	for _, task := range alphaTasks {
		if task.ProjectID != alpha.ID {
			t.Errorf("Filtered list leaked task from project %q", task.ProjectID)
		}
	}

	betaTasks, err := store.List(ctx, "user-1", beta.ID)
	if err != nil {
		t.Fatalf("Failed to list beta tasks: %v", err)
	}
	allTasks, err := store.List(ctx, "user-1", "all")
	if err != nil {
		t.Fatalf("Failed to list all tasks: %v", err)
	}
	if len(alphaTasks)+len(betaTasks) != len(allTasks) {
		t.Errorf("Filtered counts %d+%d do not sum to unfiltered %d",
			len(alphaTasks), len(betaTasks), len(allTasks))
	}
	if len(allTasks) != 5 {
		t.Errorf("Expected 5 tasks total, got %d", len(allTasks))
	}
}

func TestTaskStore_UpdateStatusIdempotent(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "user-1")
	project := seedProject(t, db, "user-1", "Launch")
	store := NewTaskStore(db, nil)
	ctx := context.Background()

	task, err := store.Create(ctx, "user-1", CreateTaskParams{ProjectID: project.ID, Title: "Write brief"})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	first, err := store.UpdateStatus(ctx, "user-1", task.ID, models.TaskStatusDone)
	if err != nil {
		t.Fatalf("First status update failed: %v", err)
	}
	second, err := store.UpdateStatus(ctx, "user-1", task.ID, models.TaskStatusDone)
	if err != nil {
		t.Fatalf("Repeated status update failed: %v", err)
	}
	if first.Status != models.TaskStatusDone || second.Status != models.TaskStatusDone {
		t.Errorf("Expected done/done, got %q/%q", first.Status, second.Status)
	}
}

func TestTaskStore_UpdateMergesOnlySuppliedFields(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "user-1")
	project := seedProject(t, db, "user-1", "Launch")
	store := NewTaskStore(db, nil)
	ctx := context.Background()

	desc := "Background reading"
	task, err := store.Create(ctx, "user-1", CreateTaskParams{
		ProjectID:   project.ID,
		Title:       "Write brief",
		Description: desc,
	})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	newTitle := "Write launch brief"
	updated, err := store.Update(ctx, "user-1", task.ID, models.TaskPatch{Title: &newTitle})
	if err != nil {
		t.Fatalf("Failed to update task: %v", err)
	}
	if updated.Title != newTitle {
		t.Errorf("Title not updated: %q", updated.Title)
	}
	if updated.Description == nil || *updated.Description != desc {
		t.Errorf("Untouched description changed: %v", updated.Description)
	}
	if updated.Status != models.TaskStatusTodo {
		t.Errorf("Untouched status changed: %q", updated.Status)
	}
}

func TestTaskStore_UpdateEmptyPatchIsNoop(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "user-1")
	project := seedProject(t, db, "user-1", "Launch")
	store := NewTaskStore(db, nil)
	ctx := context.Background()

	task, err := store.Create(ctx, "user-1", CreateTaskParams{ProjectID: project.ID, Title: "Write brief"})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	got, err := store.Update(ctx, "user-1", task.ID, models.TaskPatch{})
	if err != nil {
		t.Fatalf("Empty patch failed: %v", err)
	}
	if got.ID != task.ID || got.Title != task.Title {
		t.Errorf("Empty patch changed the task: %+v", got)
	}
}

func TestTaskStore_UpdateMissingTask(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "user-1")
	store := NewTaskStore(db, nil)

	status := models.TaskStatusDone
	_, err := store.Update(context.Background(), "user-1", "nope", models.TaskPatch{Status: &status})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestTaskStore_CreateRequiresIdentity(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "user-1")
	project := seedProject(t, db, "user-1", "Launch")
	store := NewTaskStore(db, nil)

	_, err := store.Create(context.Background(), "", CreateTaskParams{ProjectID: project.ID, Title: "Orphan"})
	if err != ErrUnauthenticated {
		t.Fatalf("Expected ErrUnauthenticated, got %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM tasks").Scan(&count); err != nil {
		t.Fatalf("Failed to count tasks: %v", err)
	}
	if count != 0 {
		t.Errorf("Unauthenticated create left %d rows behind", count)
	}
}

func TestTaskStore_CreateRequiresExistingProject(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "user-1")
	store := NewTaskStore(db, nil)

	_, err := store.Create(context.Background(), "user-1", CreateTaskParams{ProjectID: "ghost", Title: "Lost"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestTaskStore_ListScopedToOwner(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "alice")
	seedUser(t, db, "bob")
	alicePlans := seedProject(t, db, "alice", "Alice plans")
	bobPlans := seedProject(t, db, "bob", "Bob plans")
	store := NewTaskStore(db, nil)
	ctx := context.Background()

	secret, err := store.Create(ctx, "alice", CreateTaskParams{ProjectID: alicePlans.ID, Title: "Alice secret"})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if _, err := store.Create(ctx, "bob", CreateTaskParams{ProjectID: bobPlans.ID, Title: "Bob task"}); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	bobTasks, err := store.List(ctx, "bob", "all")
	if err != nil {
		t.Fatalf("Failed to list tasks: %v", err)
	}
	for _, task := range bobTasks {
		if task.ID == secret.ID {
			t.Errorf("Unfiltered listing leaked another user's task %q", task.Title)
		}
	}
	if len(bobTasks) != 1 || bobTasks[0].Title != "Bob task" {
		t.Errorf("Expected only the owner's task, got %+v", bobTasks)
	}
}

func TestTaskStore_GetScopedToOwner(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "alice")
	project := seedProject(t, db, "alice", "Alice plans")
	store := NewTaskStore(db, nil)
	ctx := context.Background()

	task, err := store.Create(ctx, "alice", CreateTaskParams{ProjectID: project.ID, Title: "Alice secret"})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	if _, err := store.GetByID(ctx, "bob", task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for another user's task, got %v", err)
	}

	// The system identity (housekeeping) still sees every task.
	got, err := store.GetByID(ctx, models.SystemAuthorID, task.ID)
	if err != nil {
		t.Fatalf("System read failed: %v", err)
	}
	if got.ID != task.ID {
		t.Errorf("System read returned wrong task: %q", got.ID)
	}
}

func TestTaskStore_UpdateScopedToOwner(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "alice")
	project := seedProject(t, db, "alice", "Alice plans")
	store := NewTaskStore(db, nil)
	ctx := context.Background()

	task, err := store.Create(ctx, "alice", CreateTaskParams{ProjectID: project.ID, Title: "Alice secret"})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	hijacked := "Bob was here"
	if _, err := store.Update(ctx, "bob", task.ID, models.TaskPatch{Title: &hijacked}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for another user's update, got %v", err)
	}

	got, err := store.GetByID(ctx, "alice", task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if got.Title != "Alice secret" {
		t.Errorf("Foreign update changed the row: %q", got.Title)
	}
}

func TestTaskStore_CreateRequiresOwnedProject(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "alice")
	project := seedProject(t, db, "alice", "Alice plans")
	store := NewTaskStore(db, nil)

	_, err := store.Create(context.Background(), "bob", CreateTaskParams{ProjectID: project.ID, Title: "Intruder"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM tasks").Scan(&count); err != nil {
		t.Fatalf("Failed to count tasks: %v", err)
	}
	if count != 0 {
		t.Errorf("Rejected create left %d rows behind", count)
	}
}

func TestTaskStore_UpdatePublishesToOwner(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "user-1")
	project := seedProject(t, db, "user-1", "Launch")
	feed := NewChangeFeed()
	store := NewTaskStore(db, feed)
	ctx := context.Background()

	task, err := store.Create(ctx, "user-1", CreateTaskParams{ProjectID: project.ID, Title: "Write brief"})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	ch := feed.Subscribe("user-1", "test-sub", 8)
	if _, err := store.UpdateStatus(ctx, "user-1", task.ID, models.TaskStatusDone); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}

	select {
	case event := <-ch:
		if event.Table != models.TableTasks || event.Op != models.OpUpdate {
			t.Errorf("Unexpected event: %+v", event)
		}
		if event.RowID != task.ID {
			t.Errorf("Event row %q does not match task %q", event.RowID, task.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("No feed event received for task update")
	}
}

func TestTaskStore_ListStuckExecutions(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "user-1")
	project := seedProject(t, db, "user-1", "Launch")
	store := NewTaskStore(db, nil)
	ctx := context.Background()

	task, err := store.Create(ctx, "user-1", CreateTaskParams{ProjectID: project.ID, Title: "Long run"})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	running := models.ExecRunning
	marked, err := store.Update(ctx, "user-1", task.ID, models.TaskPatch{ExecutionStatus: &running})
	if err != nil {
		t.Fatalf("Failed to mark running: %v", err)
	}
	if marked.ExecutionStartedAt == nil {
		t.Fatal("Entering running must record when the run started")
	}

	// Cutoff in the future catches the task; one in the past does not.
	stuck, err := store.ListStuckExecutions(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Failed to list stuck executions: %v", err)
	}
	if len(stuck) != 1 || stuck[0].ID != task.ID {
		t.Errorf("Expected the running task to be stuck, got %+v", stuck)
	}

	stuck, err = store.ListStuckExecutions(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Failed to list stuck executions: %v", err)
	}
	if len(stuck) != 0 {
		t.Errorf("Expected no stuck tasks before cutoff, got %d", len(stuck))
	}
}
