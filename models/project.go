package models

import (
	"time"

	"gorm.io/datatypes"
)

type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectArchived ProjectStatus = "archived"
)

func (s ProjectStatus) Valid() bool {
	return s == ProjectActive || s == ProjectArchived
}

// Project is the top-level unit of work. It owns its lists, which own tasks,
// which own comments; deleting a project removes the whole subtree.
type Project struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"size:200;not null" json:"name"`
	Description *string         `gorm:"type:text" json:"description"`
	CreatedBy   uint            `gorm:"not null;index" json:"created_by"`
	Deadline    *datatypes.Date `json:"deadline"`
	Status      ProjectStatus   `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	CreatedAt   time.Time       `json:"created_at"`

	// Relations
	Creator *User `gorm:"foreignKey:CreatedBy;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"creator,omitempty"`

	// Filled by the hierarchy queries, never persisted through this struct
	Members []UserSummary `gorm:"-" json:"members,omitempty"`
	Lists   []List        `gorm:"-" json:"lists,omitempty"`
}

// ProjectMember records a user's participation in a project. The pair is the
// primary key, so a user can be a member of a project at most once.
type ProjectMember struct {
	ProjectID uint      `gorm:"primaryKey;autoIncrement:false" json:"project_id"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	AddedAt   time.Time `gorm:"autoCreateTime" json:"added_at"`

	// Relations
	Project *Project `gorm:"foreignKey:ProjectID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	User    *User    `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"user,omitempty"`
}

// DeadlineTime returns the project deadline as a time, or nil when unset.
func (p *Project) DeadlineTime() *time.Time {
	return DateTime(p.Deadline)
}

// DateTime converts an optional date column into an optional time.
func DateTime(d *datatypes.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := time.Time(*d)
	return &t
}
