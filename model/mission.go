package model

import "time"

// Mission status constants. Completed is set exactly once by the workflow
// machine's terminal-state side effect.
const (
	MissionStatusActive    = "active"
	MissionStatusCompleted = "completed"
	MissionStatusArchived  = "archived"
)

// Mission is a tracked work campaign. Missions are created by an external
// CRUD collaborator; this core reads them and flips their status on terminal
// workflow states.
type Mission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	OrgID       string    `json:"org_id,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Task status constants.
const (
	TaskStatusPending   = "pending"
	TaskStatusActive    = "in_progress"
	TaskStatusCompleted = "completed"
)

// Task is a unit of work under a mission. Tasks feed the export bundle's task
// summary and the SLA-breach probe.
type Task struct {
	ID          string     `json:"id"`
	MissionID   string     `json:"mission_id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority,omitempty"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TaskSummary is the task shape embedded in an export bundle. The field set
// is a compatibility surface for downstream audit tooling.
type TaskSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}
