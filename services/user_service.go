package services

import (
	"context"
	"errors"
	"strings"

	"github.com/badoux/checkmail"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"taskflow/models"
	"taskflow/policy"
	"taskflow/utils"
)

// UserService is the identity store
type UserService struct {
	base
}

func NewUserService(opts Options) *UserService {
	return &UserService{base: newBase(opts, "users")}
}

type NewUser struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
}

type UserUpdate struct {
	Name            *string
	Email           *string
	Role            *models.Role
	Password        *string
	CurrentPassword *string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkNewPassword(field, password string) error {
	if !utils.IsStrongPassword(password) {
		return FieldInvalid(field, "password must be at least 8 characters and contain an uppercase letter, a lowercase letter and a digit")
	}
	return nil
}

func checkEmail(email string) error {
	if err := checkmail.ValidateFormat(email); err != nil {
		return FieldInvalid("email", "email must be valid")
	}
	return nil
}

func (s *UserService) emailTaken(tx *gorm.DB, email string, exceptID uint) (bool, error) {
	var count int64
	q := tx.Model(&models.User{}).Where("email = ?", email)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, storeError(err, "")
	}
	return count > 0, nil
}

func (s *UserService) create(ctx context.Context, in NewUser) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if in.Name == "" {
		return nil, FieldInvalid("name", "name is required")
	}
	if err := checkEmail(in.Email); err != nil {
		return nil, err
	}
	if err := checkNewPassword("password", in.Password); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if !in.Role.Valid() {
		return nil, FieldInvalid("role", "role is invalid")
	}

	db := s.conn(ctx)
	taken, err := s.emailTaken(db, in.Email, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, Conflict("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, Internal("failed to hash password", err)
	}

	user := models.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
	}
	if err := db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, Conflict("email already registered")
		}
		return nil, storeError(err, "")
	}
	return &user, nil
}

// Register creates a self-service account. The role is always user.
func (s *UserService) Register(ctx context.Context, in NewUser) (*models.User, error) {
	in.Role = models.RoleUser
	user, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("user_id", user.ID).Info("User registered")
	return user, nil
}

// Create is the admin path for adding an account with any role.
func (s *UserService) Create(ctx context.Context, p policy.Principal, in NewUser) (*models.User, error) {
	if !p.IsAdmin() {
		return nil, Forbidden("only admins can create users")
	}
	user, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(map[string]interface{}{
		"user_id":    user.ID,
		"role":       user.Role,
		"created_by": p.ID,
	}).Info("User created")
	return user, nil
}

// Authenticate checks credentials and returns the matching user.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.conn(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Unauthorized("invalid email or password")
		}
		return nil, storeError(err, "")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, Unauthorized("invalid email or password")
	}
	return &user, nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).First(&user, id).Error; err != nil {
		return nil, storeError(err, "user not found")
	}
	return &user, nil
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.conn(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, storeError(err, "")
	}
	return users, nil
}

func countAdmins(tx *gorm.DB) (int64, error) {
	var count int64
	err := tx.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error
	return count, err
}

// Update changes profile fields. Role changes are admin only; a non-admin
// changing a password must supply the current one.
func (s *UserService) Update(ctx context.Context, p policy.Principal, id uint, in UserUpdate) (*models.User, error) {
	var user models.User
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			return storeError(err, "user not found")
		}
		if !policy.CanManageUser(p, id) {
			return Forbidden("you are not allowed to modify this user")
		}
		if in.Role != nil && !policy.CanChangeRole(p) {
			return Forbidden("only admins can change roles")
		}

		updates := map[string]interface{}{}

		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return FieldInvalid("name", "name cannot be empty")
			}
			updates["name"] = name
		}

		if in.Email != nil {
			email := normalizeEmail(*in.Email)
			if err := checkEmail(email); err != nil {
				return err
			}
			if email != user.Email {
				taken, err := s.emailTaken(tx, email, user.ID)
				if err != nil {
					return err
				}
				if taken {
					return Conflict("email already registered")
				}
				updates["email"] = email
			}
		}

		if in.Role != nil && *in.Role != user.Role {
			if !in.Role.Valid() {
				return FieldInvalid("role", "role is invalid")
			}
			if user.Role == models.RoleAdmin {
				admins, err := countAdmins(tx)
				if err != nil {
					return storeError(err, "")
				}
				if admins <= 1 {
					return Conflict("the last admin cannot be demoted")
				}
			}
			updates["role"] = *in.Role
		}

		if in.Password != nil {
			if policy.MustVerifyPassword(p) {
				if in.CurrentPassword == nil || *in.CurrentPassword == "" {
					return FieldInvalid("current_password", "current password is required")
				}
				if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(*in.CurrentPassword)); err != nil {
					return FieldInvalid("current_password", "current password is incorrect")
				}
			}
			if err := checkNewPassword("password", *in.Password); err != nil {
				return err
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost)
			if err != nil {
				return Internal("failed to hash password", err)
			}
			updates["password_hash"] = string(hash)
			updates["token_version"] = user.TokenVersion + 1
		}

		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return storeError(err, "")
		}
		return tx.First(&user, id).Error
	})
	if err != nil {
		return nil, storeError(err, "")
	}
	return &user, nil
}

// Delete removes an account. The last admin cannot be deleted. Tasks
// assigned to the user are unassigned; the user's comments, memberships and
// the projects they created go with them.
func (s *UserService) Delete(ctx context.Context, p policy.Principal, id uint) error {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, id).Error; err != nil {
			return storeError(err, "user not found")
		}
		if !policy.CanManageUser(p, id) {
			return Forbidden("you are not allowed to delete this user")
		}
		if user.Role == models.RoleAdmin {
			admins, err := countAdmins(tx)
			if err != nil {
				return storeError(err, "")
			}
			if admins <= 1 {
				return Conflict("the last admin cannot be deleted")
			}
		}

		if err := tx.Model(&models.Task{}).Where("assigned_to = ?", id).Update("assigned_to", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		var owned []uint
		if err := tx.Model(&models.Project{}).Where("created_by = ?", id).Pluck("id", &owned).Error; err != nil {
			return err
		}
		for _, projectID := range owned {
			if err := deleteProjectTree(tx, projectID); err != nil {
				return err
			}
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.ProjectMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		return storeError(err, "")
	}
	s.logger.WithFields(map[string]interface{}{"user_id": id, "deleted_by": p.ID}).Info("User deleted")
	return nil
}
