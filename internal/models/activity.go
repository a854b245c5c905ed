package models

import "time"

// ActivityType distinguishes user notes from server-written log lines.
// The tag is the only distinction — nothing ties type to a particular author.
type ActivityType string

const (
	ActivityNote   ActivityType = "note"
	ActivitySystem ActivityType = "system"
)

func (t ActivityType) Valid() bool {
	return t == ActivityNote || t == ActivitySystem
}

// TaskActivity is one append-only entry in a task's chat/audit log.
// Entries are ordered by creation time ascending and never edited or deleted.
type TaskActivity struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	TaskID    string       `json:"task_id"`
	Type      ActivityType `json:"type"`
	Content   string       `json:"content"`
	AuthorID  string       `json:"author_id"`
}
