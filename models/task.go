package models

import (
	"time"

	"gorm.io/datatypes"
)

type TaskPriority string

const (
	PriorityHigh   TaskPriority = "high"
	PriorityMedium TaskPriority = "medium"
	PriorityLow    TaskPriority = "low"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

type TaskStatus string

const (
	StatusPlanned    TaskStatus = "planned"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPlanned, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Task is a unit of work inside a list
type Task struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	ListID      uint            `gorm:"not null;index" json:"list_id"`
	Title       string          `gorm:"size:200;not null" json:"title"`
	Description *string         `gorm:"type:text" json:"description"`
	Priority    TaskPriority    `gorm:"type:varchar(10);not null;default:'medium'" json:"priority"`
	AssignedTo  *uint           `gorm:"index" json:"assigned_to"`
	Deadline    *datatypes.Date `json:"deadline"`
	Status      TaskStatus      `gorm:"type:varchar(20);not null;default:'planned';index" json:"status"`
	Position    int             `gorm:"not null" json:"position"`

	// Set the first time the task enters done, never cleared
	CompletedAt *time.Time `json:"completed_at"`

	ReminderSentAt *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`

	// Relations
	List     *List `gorm:"foreignKey:ListID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"list,omitempty"`
	Assignee *User `gorm:"foreignKey:AssignedTo;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"assignee,omitempty"`
}

// DeadlineTime returns the task deadline as a time, or nil when unset.
func (t *Task) DeadlineTime() *time.Time {
	return DateTime(t.Deadline)
}
