package models

import "time"

// Project groups related tasks under a named workspace owned by one user.
type Project struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`  // emoji glyph shown in the sidebar
	Color     string    `json:"color"` // hex accent color
	OwnerID   string    `json:"owner_id"`
}

// Default presentation values applied when a project is created without them.
const (
	DefaultProjectIcon  = "📁"
	DefaultProjectColor = "#6366f1"
)
