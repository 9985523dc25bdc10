package models

import "time"

// List is an ordered stage (Kanban column) inside a project.
// (project_id, position) is unique.
type List struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"not null;uniqueIndex:idx_lists_project_position,priority:1" json:"project_id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Position  int       `gorm:"not null;uniqueIndex:idx_lists_project_position,priority:2" json:"position"`
	CreatedAt time.Time `json:"created_at"`

	// Relations
	Project *Project `gorm:"foreignKey:ProjectID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"project,omitempty"`
}

// DefaultListNames are the stages seeded into every new project, in position order.
var DefaultListNames = []string{"Planned", "In Progress", "Done"}
