package models

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SeedUser describes an account created by the seed command
type SeedUser struct {
	Name     string
	Email    string
	Password string
	Role     Role
}

// DefaultSeedUsers returns the admin, project manager and regular accounts a
// fresh install starts with. The admin credentials can be overridden.
func DefaultSeedUsers(adminEmail, adminPassword string) []SeedUser {
	if adminEmail == "" {
		adminEmail = "admin@taskflow.local"
	}
	if adminPassword == "" {
		adminPassword = "Admin1234"
	}
	return []SeedUser{
		{Name: "Admin User", Email: adminEmail, Password: adminPassword, Role: RoleAdmin},
		{Name: "Project Manager", Email: "manager@taskflow.local", Password: "Manager1234", Role: RoleProjectManager},
		{Name: "Regular User", Email: "user@taskflow.local", Password: "User12345", Role: RoleUser},
	}
}

// CreateDefaultUsers inserts the given accounts unless a user with the same
// email already exists.
func CreateDefaultUsers(db *gorm.DB, users []SeedUser) error {
	for _, seed := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", seed.Email, err)
		}
		user := User{
			Name:         seed.Name,
			Email:        seed.Email,
			PasswordHash: string(hash),
			Role:         seed.Role,
		}
		if err := db.Where("email = ?", seed.Email).FirstOrCreate(&user).Error; err != nil {
			return err
		}
	}
	return nil
}
