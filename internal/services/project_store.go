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

// ProjectStore handles SQL CRUD for projects
type ProjectStore struct {
	db   *database.DB
	feed *ChangeFeed
}

// NewProjectStore creates a new project store
func NewProjectStore(db *database.DB, feed *ChangeFeed) *ProjectStore {
	return &ProjectStore{db: db, feed: feed}
}

// List returns the user's projects ordered by creation time ascending.
func (s *ProjectStore) List(ctx context.Context, userID string) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, name, icon, color, owner_id
		FROM projects
		WHERE owner_id = ?
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.CreatedAt, &p.Name, &p.Icon, &p.Color, &p.OwnerID); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	recordOp(models.TableProjects, "list")
	return projects, rows.Err()
}

// GetByID returns a single project. Another user's project reads as not found.
func (s *ProjectStore) GetByID(ctx context.Context, userID, projectID string) (*models.Project, error) {
	var p models.Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, name, icon, color, owner_id
		FROM projects
		WHERE id = ? AND owner_id = ?
	`, projectID, userID).Scan(&p.ID, &p.CreatedAt, &p.Name, &p.Icon, &p.Color, &p.OwnerID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// Create inserts a new project owned by the session user. Empty icon/color
// fall back to the defaults. An empty name is NOT rejected here — callers
// validate before calling, the store stays a thin translation layer.
func (s *ProjectStore) Create(ctx context.Context, userID, name, icon, color string) (*models.Project, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if icon == "" {
		icon = models.DefaultProjectIcon
	}
	if color == "" {
		color = models.DefaultProjectColor
	}

	p := models.Project{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		Name:      name,
		Icon:      icon,
		Color:     color,
		OwnerID:   userID,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, created_at, name, icon, color, owner_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.CreatedAt, p.Name, p.Icon, p.Color, p.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	recordOp(models.TableProjects, "insert")
	if s.feed != nil {
		s.feed.Publish(userID, models.ChangeEvent{
			Table: models.TableProjects,
			Op:    models.OpInsert,
			RowID: p.ID,
		})
	}
	return &p, nil
}
