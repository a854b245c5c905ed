package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"commandcenter/internal/database"
	"commandcenter/internal/models"
)

// ActivityStore handles the append-only task activity log. Entries are never
// edited or deleted.
type ActivityStore struct {
	db   *database.DB
	feed *ChangeFeed
}

// NewActivityStore creates a new activity store
func NewActivityStore(db *database.DB, feed *ChangeFeed) *ActivityStore {
	return &ActivityStore{db: db, feed: feed}
}

// taskOwner resolves the owning user of a task's project. Any caller other
// than the system identity must be that owner; everything else, including a
// task that does not exist, reads as not found.
func (s *ActivityStore) taskOwner(ctx context.Context, userID, taskID string) (string, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx, `
		SELECT p.owner_id
		FROM tasks t
		JOIN projects p ON p.id = t.project_id
		WHERE t.id = ?
	`, taskID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to check task: %w", err)
	}
	if userID != models.SystemAuthorID && userID != ownerID {
		return "", fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return ownerID, nil
}

// List returns all activity rows for one of the user's tasks, ordered by
// creation time ascending.
func (s *ActivityStore) List(ctx context.Context, userID, taskID string) ([]models.TaskActivity, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if _, err := s.taskOwner(ctx, userID, taskID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, task_id, type, content, author_id
		FROM task_activity
		WHERE task_id = ?
		ORDER BY created_at ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task activity: %w", err)
	}
	defer rows.Close()

	entries := []models.TaskActivity{}
	for rows.Next() {
		var a models.TaskActivity
		if err := rows.Scan(&a.ID, &a.CreatedAt, &a.TaskID, &a.Type, &a.Content, &a.AuthorID); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		entries = append(entries, a)
	}
	recordOp(models.TableTaskActivity, "list")
	return entries, rows.Err()
}

// AddNote appends a user-authored note. Content emptiness is the caller's
// check; the store only requires an identity and an existing task.
func (s *ActivityStore) AddNote(ctx context.Context, userID, taskID, content string) (*models.TaskActivity, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	return s.insert(ctx, taskID, models.ActivityNote, content, userID)
}

// AddSystem appends a server-written log line (janitor sweeps, worker
// assignment traces). No session is involved.
func (s *ActivityStore) AddSystem(ctx context.Context, taskID, content string) (*models.TaskActivity, error) {
	return s.insert(ctx, taskID, models.ActivitySystem, content, models.SystemAuthorID)
}

func (s *ActivityStore) insert(ctx context.Context, taskID string, typ models.ActivityType, content, authorID string) (*models.TaskActivity, error) {
	ownerID, err := s.taskOwner(ctx, authorID, taskID)
	if err != nil {
		return nil, err
	}

	a := models.TaskActivity{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		TaskID:    taskID,
		Type:      typ,
		Content:   content,
		AuthorID:  authorID,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_activity (id, created_at, task_id, type, content, author_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.CreatedAt, a.TaskID, a.Type, a.Content, a.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("failed to add activity: %w", err)
	}

	recordOp(models.TableTaskActivity, "insert")
	if s.feed != nil {
		s.feed.Publish(ownerID, models.ChangeEvent{
			Table:  models.TableTaskActivity,
			Op:     models.OpInsert,
			RowID:  a.ID,
			TaskID: taskID,
		})
	}
	return &a, nil
}
