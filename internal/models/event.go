package models

// Table names announced by the change feed. The feed is coarse-grained:
// an event says a row in the table changed, consumers re-query to learn what.
const (
	TableProjects     = "projects"
	TableTasks        = "tasks"
	TableTaskActivity = "task_activity"
)

// ChangeOp is the kind of row mutation behind a change event.
type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// ChangeEvent announces that some row in Table changed. RowID and TaskID are
// hints only — consumers must not rely on them beyond deciding whether the
// currently open task's activity log needs a re-fetch.
type ChangeEvent struct {
	Table      string   `json:"table"`
	Op         ChangeOp `json:"op"`
	RowID      string   `json:"row_id,omitempty"`
	TaskID     string   `json:"task_id,omitempty"` // set for task_activity rows
	UserID     string   `json:"user_id,omitempty"` // acting identity, if any
	InstanceID string   `json:"instance_id,omitempty"`
}
