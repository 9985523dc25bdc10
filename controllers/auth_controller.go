package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"taskflow/config"
	"taskflow/middleware"
	"taskflow/models"
	"taskflow/services"
	"taskflow/utils"
)

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,mailaddr,max=100"`
	Password string `json:"password" validate:"required,strongpassword"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Message   string       `json:"message"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

type AuthController struct {
	Users  *services.UserService
	Logger *logrus.Entry
}

func NewAuthController(users *services.UserService, logger *logrus.Entry) *AuthController {
	return &AuthController{Users: users, Logger: logger.WithField("component", "auth")}
}

func (ac *AuthController) issue(c *fiber.Ctx, status int, message string, user *models.User) error {
	token, expiresAt, err := utils.GenerateJWTToken(user)
	if err != nil {
		return respondError(c, ac.Logger, services.Internal("failed to issue token", err))
	}

	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    token,
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   config.AppConfig.Environment == "production",
		SameSite: "Lax",
	})

	return c.Status(status).JSON(AuthResponse{
		Message:   message,
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	})
}

// Register creates an account with role user and signs it in.
func (ac *AuthController) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	user, err := ac.Users.Register(c.UserContext(), services.NewUser{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return respondError(c, ac.Logger, err)
	}

	utils.LogEvent("user_registered", map[string]interface{}{"user_id": user.ID})
	return ac.issue(c, fiber.StatusCreated, "User registered successfully", user)
}

// Login authenticates with email and password
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	user, err := ac.Users.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if services.KindOf(err) == services.KindUnauthorized {
			utils.LogEvent("login_failed", map[string]interface{}{"ip": c.IP()})
		}
		return respondError(c, ac.Logger, err)
	}
	return ac.issue(c, fiber.StatusOK, "Login successful", user)
}

// Logout clears the session cookie. Bearer tokens expire on their own.
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
	})
	return c.JSON(utils.MessageResponse("Logout successful", "", nil))
}

// Me returns the authenticated user
func (ac *AuthController) Me(c *fiber.Ctx) error {
	return c.JSON(middleware.CurrentUser(c))
}
