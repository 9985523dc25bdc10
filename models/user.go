package models

import "time"

// Role is the global role of a user account.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleProjectManager Role = "project_manager"
	RoleUser           Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleProjectManager, RoleUser:
		return true
	}
	return false
}

// User represents an account in the identity store
type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Name         string `gorm:"size:100;not null" json:"name"`
	Email        string `gorm:"size:100;uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Role         Role   `gorm:"type:varchar(20);not null;default:'user';index" json:"role"`

	// Bumped on password change so previously issued tokens stop working
	TokenVersion int `gorm:"default:0" json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// UserSummary is the public projection used when a user is embedded in another record
type UserSummary struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}
