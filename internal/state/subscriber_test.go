package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"commandcenter/internal/models"
	"commandcenter/internal/services"
)

// lockedRecords wraps fakeRecords so tests can swap the served data while the
// subscriber goroutine is reading it.
type lockedRecords struct {
	mu    sync.Mutex
	inner fakeRecords
}

func (l *lockedRecords) ListProjects(ctx context.Context) ([]models.Project, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.ListProjects(ctx)
}

func (l *lockedRecords) ListTasks(ctx context.Context, projectID string) ([]models.Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.ListTasks(ctx, projectID)
}

func (l *lockedRecords) ListTaskActivity(ctx context.Context, taskID string) ([]models.TaskActivity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.ListTaskActivity(ctx, taskID)
}

func (l *lockedRecords) set(fn func(*fakeRecords)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&l.inner)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before deadline")
}

func TestSubscriberRefreshesOnFeedEvents(t *testing.T) {
	records := &lockedRecords{inner: fakeRecords{
		tasks:    map[string][]models.Task{FilterAll: {}},
		activity: map[string][]models.TaskActivity{},
	}}
	c := NewController(records)
	feed := services.NewChangeFeed()

	sub := NewSubscriber(feed, c, "user-1", "conn-1")
	sub.Start(context.Background())
	defer sub.Stop()

	// A projects event triggers a project re-fetch.
	records.set(func(f *fakeRecords) {
		f.projects = []models.Project{{ID: "p1", Name: "Launch"}}
	})
	feed.Publish("user-1", models.ChangeEvent{Table: models.TableProjects, Op: models.OpInsert, RowID: "p1"})
	waitFor(t, func() bool { return len(c.Snapshot().Projects) == 1 })

	// A tasks event triggers a task re-fetch under the current filter.
	records.set(func(f *fakeRecords) {
		f.tasks[FilterAll] = []models.Task{makeTask("t1", "p1", "Write brief")}
	})
	feed.Publish("user-1", models.ChangeEvent{Table: models.TableTasks, Op: models.OpInsert, RowID: "t1"})
	waitFor(t, func() bool { return len(c.Snapshot().Tasks) == 1 })
}

func TestSubscriberRefreshesOpenTaskActivity(t *testing.T) {
	task := makeTask("t1", "p1", "Write brief")
	records := &lockedRecords{inner: fakeRecords{
		tasks:    map[string][]models.Task{FilterAll: {task}},
		activity: map[string][]models.TaskActivity{"t1": {}},
	}}
	c := NewController(records)
	feed := services.NewChangeFeed()

	if err := c.OpenTask(context.Background(), task); err != nil {
		t.Fatalf("OpenTask failed: %v", err)
	}

	sub := NewSubscriber(feed, c, "user-1", "conn-1")
	sub.Start(context.Background())
	defer sub.Stop()

	records.set(func(f *fakeRecords) {
		f.activity["t1"] = []models.TaskActivity{{ID: "a1", TaskID: "t1", Content: "Looks good"}}
		f.activity["t2"] = []models.TaskActivity{{ID: "a2", TaskID: "t2", Content: "Unrelated"}}
	})

	// Event for a different task leaves the open log alone.
	feed.Publish("user-1", models.ChangeEvent{Table: models.TableTaskActivity, Op: models.OpInsert, RowID: "a2", TaskID: "t2"})
	time.Sleep(50 * time.Millisecond)
	if got := len(c.Snapshot().Activity); got != 0 {
		t.Fatalf("Activity refreshed for a task that is not open, got %d entries", got)
	}

	feed.Publish("user-1", models.ChangeEvent{Table: models.TableTaskActivity, Op: models.OpInsert, RowID: "a1", TaskID: "t1"})
	waitFor(t, func() bool { return len(c.Snapshot().Activity) == 1 })
}

func TestSubscriberStopUnregisters(t *testing.T) {
	records := &lockedRecords{inner: fakeRecords{
		tasks: map[string][]models.Task{FilterAll: {}},
	}}
	c := NewController(records)
	feed := services.NewChangeFeed()

	sub := NewSubscriber(feed, c, "user-1", "conn-1")
	sub.Start(context.Background())

	if feed.SubscriberCount("user-1") != 1 {
		t.Fatal("Expected one subscriber after Start")
	}
	sub.Stop()
	if feed.SubscriberCount("user-1") != 0 {
		t.Error("Subscriber still registered after Stop")
	}
}
