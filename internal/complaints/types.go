// Package complaints implements the complaint domain: entities, the status
// machine, the persistent store, and the service the HTTP layer calls into.
package complaints

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a complaint or note does not exist.
var ErrNotFound = errors.New("complaint not found")

// Status is a complaint's position in the triage lifecycle.
type Status string

const (
	StatusOpen       Status = "open"
	StatusTriaged    Status = "triaged"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
	StatusRejected   Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusTriaged, StatusInProgress, StatusResolved, StatusClosed, StatusRejected:
		return true
	}
	return false
}

// transitions maps each status to the statuses it may move to.
var transitions = map[Status][]Status{
	StatusOpen:       {StatusTriaged, StatusRejected},
	StatusTriaged:    {StatusInProgress, StatusRejected},
	StatusInProgress: {StatusResolved},
	StatusResolved:   {StatusClosed, StatusInProgress},
	StatusClosed:     {},
	StatusRejected:   {},
}

// ValidTransition reports whether a complaint may move from one status to
// another. Reopening a resolved complaint (back to in_progress) is allowed;
// closed and rejected are terminal.
func ValidTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Priority classifies urgency as set during triage.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Complaint is a citizen-filed issue tracked through triage and resolution.
type Complaint struct {
	ID          string    `json:"id"`
	Reference   string    `json:"reference"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	CitizenID   string    `json:"citizen_id"`
	AssigneeID  string    `json:"assignee_id,omitempty"`
	Location    string    `json:"location,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Note is a comment attached to a complaint. Internal notes are visible to
// staff only.
type Note struct {
	ID          string    `json:"id"`
	ComplaintID string    `json:"complaint_id"`
	AuthorID    string    `json:"author_id"`
	Body        string    `json:"body"`
	Internal    bool      `json:"internal"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filter narrows a complaint listing.
type Filter struct {
	Status     Status
	Category   string
	CitizenID  string
	AssigneeID string
	Limit      int
	Offset     int
}
