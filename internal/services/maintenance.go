package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"commandcenter/internal/database"
	"commandcenter/internal/models"
)

// Maintenance runs the periodic housekeeping jobs: failing executions stuck
// in "running" (server crash recovery) and logging table sizes.
type Maintenance struct {
	db        *database.DB
	tasks     *TaskStore
	activity  *ActivityStore
	scheduler gocron.Scheduler

	stuckAge time.Duration
	interval time.Duration
}

// NewMaintenance creates the housekeeping runner.
func NewMaintenance(db *database.DB, tasks *TaskStore, activity *ActivityStore, stuckAge, interval time.Duration) (*Maintenance, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Maintenance{
		db:        db,
		tasks:     tasks,
		activity:  activity,
		scheduler: scheduler,
		stuckAge:  stuckAge,
		interval:  interval,
	}, nil
}

// Start schedules the jobs and begins running them.
func (m *Maintenance) Start() error {
	if _, err := m.scheduler.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(m.sweepStuckExecutions),
	); err != nil {
		return fmt.Errorf("failed to schedule stuck-execution sweep: %w", err)
	}

	if _, err := m.scheduler.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(m.logTableStats),
	); err != nil {
		return fmt.Errorf("failed to schedule stats job: %w", err)
	}

	m.scheduler.Start()
	log.Printf("✅ Maintenance jobs scheduled (sweep every %s, stuck age %s)", m.interval, m.stuckAge)
	return nil
}

// Stop shuts the scheduler down.
func (m *Maintenance) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		log.Printf("⚠️ Scheduler shutdown error: %v", err)
	}
}

// sweepStuckExecutions marks executions stuck in "running" for longer than
// stuckAge as failed and leaves a system entry in the task's activity log.
// Nothing here touches the user-facing task status.
func (m *Maintenance) sweepStuckExecutions() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-m.stuckAge)
	stuck, err := m.tasks.ListStuckExecutions(ctx, cutoff)
	if err != nil {
		log.Printf("⚠️ [MAINTENANCE] Failed to list stuck executions: %v", err)
		return
	}

	for _, t := range stuck {
		failed := models.ExecFailed
		if _, err := m.tasks.Update(ctx, models.SystemAuthorID, t.ID, models.TaskPatch{ExecutionStatus: &failed}); err != nil {
			log.Printf("⚠️ [MAINTENANCE] Failed to fail execution for task %s: %v", t.ID, err)
			continue
		}
		content := fmt.Sprintf("Execution marked failed after running for more than %s without a result.", m.stuckAge)
		if _, err := m.activity.AddSystem(ctx, t.ID, content); err != nil {
			log.Printf("⚠️ [MAINTENANCE] Failed to log sweep for task %s: %v", t.ID, err)
		}
		log.Printf("🧹 [MAINTENANCE] Failed stuck execution on task %s (%q)", t.ID, t.Title)
	}
}

func (m *Maintenance) logTableStats() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, table := range []string{models.TableProjects, models.TableTasks, models.TableTaskActivity} {
		var count int
		if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			log.Printf("⚠️ [MAINTENANCE] Failed to count %s: %v", table, err)
			continue
		}
		log.Printf("📊 [MAINTENANCE] %s: %d rows", table, count)
	}
}
