package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"taskflow/middleware"
	"taskflow/models"
	"taskflow/services"
	"taskflow/utils"
)

type CreateUserRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,mailaddr,max=100"`
	Password string `json:"password" validate:"required,strongpassword"`
	Role     string `json:"role" validate:"omitempty,role"`
}

type UpdateUserRequest struct {
	Name            *string `json:"name" validate:"omitempty,min=2,max=100"`
	Email           *string `json:"email" validate:"omitempty,mailaddr,max=100"`
	Role            *string `json:"role" validate:"omitempty,role"`
	Password        *string `json:"password" validate:"omitempty,strongpassword"`
	CurrentPassword *string `json:"current_password"`
}

type UserController struct {
	Users  *services.UserService
	Logger *logrus.Entry
}

func NewUserController(users *services.UserService, logger *logrus.Entry) *UserController {
	return &UserController{Users: users, Logger: logger.WithField("component", "users")}
}

// GetUsers returns all users
func (uc *UserController) GetUsers(c *fiber.Ctx) error {
	users, err := uc.Users.List(c.UserContext())
	if err != nil {
		return respondError(c, uc.Logger, err)
	}
	return c.JSON(users)
}

// GetUser returns a single user by ID
func (uc *UserController) GetUser(c *fiber.Ctx) error {
	id, ok, err := paramID(c, "id")
	if !ok {
		return err
	}
	user, err := uc.Users.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, uc.Logger, err)
	}
	return c.JSON(user)
}

// CreateUser creates a user with any role (admin only)
func (uc *UserController) CreateUser(c *fiber.Ctx) error {
	var req CreateUserRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	user, err := uc.Users.Create(c.UserContext(), middleware.Principal(c), services.NewUser{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     models.Role(req.Role),
	})
	if err != nil {
		return respondError(c, uc.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.MessageResponse("User created", "user", user))
}

// UpdateUser updates profile, role or password
func (uc *UserController) UpdateUser(c *fiber.Ctx) error {
	id, ok, err := paramID(c, "id")
	if !ok {
		return err
	}
	var req UpdateUserRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	in := services.UserUpdate{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		CurrentPassword: req.CurrentPassword,
	}
	if req.Role != nil {
		role := models.Role(*req.Role)
		in.Role = &role
	}

	user, err := uc.Users.Update(c.UserContext(), middleware.Principal(c), id, in)
	if err != nil {
		return respondError(c, uc.Logger, err)
	}
	return c.JSON(utils.MessageResponse("User updated", "user", user))
}

// DeleteUser deletes a user and everything they own
func (uc *UserController) DeleteUser(c *fiber.Ctx) error {
	id, ok, err := paramID(c, "id")
	if !ok {
		return err
	}
	if err := uc.Users.Delete(c.UserContext(), middleware.Principal(c), id); err != nil {
		return respondError(c, uc.Logger, err)
	}
	return c.JSON(utils.MessageResponse("User deleted", "", nil))
}
