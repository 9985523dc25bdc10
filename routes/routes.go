package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"taskflow/config"
	controller "taskflow/controllers"
	"taskflow/middleware"
	"taskflow/models"
	"taskflow/policy"
	"taskflow/realtime"
	"taskflow/services"
)

// Options carries what the route tree needs beyond the database.
type Options struct {
	Hub *realtime.Hub

	// RateLimitStorage keeps limiter counters; nil keeps them in memory
	RateLimitStorage fiber.Storage

	// DisableRateLimit is used by tests that fire many requests
	DisableRateLimit bool

	// AccessLog toggles the fiber request logger
	AccessLog bool
}

func serviceOptions(db *gorm.DB, hub *realtime.Hub) services.Options {
	opts := services.Options{
		DB:     db,
		Logger: logrus.WithField("app", "taskflow"),
	}
	if hub != nil {
		opts.Events = hub
	}
	if config.AppConfig.AutoStatusFromList {
		opts.StatusKeywords = policy.DefaultStatusKeywords
	}
	return opts
}

// SetupRoutes registers every /api route on app
func SetupRoutes(app *fiber.App, db *gorm.DB, opts Options) {
	svcOpts := serviceOptions(db, opts.Hub)
	log := logrus.WithField("app", "taskflow")

	userService := services.NewUserService(svcOpts)
	projectService := services.NewProjectService(svcOpts)

	authController := controller.NewAuthController(userService, log)
	userController := controller.NewUserController(userService, log)
	projectController := controller.NewProjectController(projectService, log)
	listController := controller.NewListController(services.NewListService(svcOpts), log)
	taskController := controller.NewTaskController(services.NewTaskService(svcOpts), log)
	commentController := controller.NewCommentController(services.NewCommentService(svcOpts), log)

	api := app.Group("/api")
	if opts.AccessLog {
		api.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	authLimiter := passThrough
	if !opts.DisableRateLimit {
		api.Use(middleware.RateLimiter(middleware.RateLimitConfig{
			Name:    "api",
			Max:     config.AppConfig.RateLimitAPI,
			Window:  config.AppConfig.RateLimitWindow,
			Storage: opts.RateLimitStorage,
		}))
		authLimiter = middleware.RateLimiter(middleware.RateLimitConfig{
			Name:    "auth",
			Max:     config.AppConfig.RateLimitAuth,
			Window:  config.AppConfig.RateLimitWindow,
			Storage: opts.RateLimitStorage,
		})
	}

	protected := middleware.Protected(db)
	managers := middleware.RequireRoles(models.RoleAdmin, models.RoleProjectManager)
	admins := middleware.RequireRoles(models.RoleAdmin)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authLimiter, authController.Register)
	auth.Post("/login", authLimiter, authController.Login)
	auth.Post("/logout", protected, authController.Logout)
	auth.Get("/me", protected, authController.Me)

	// User routes
	users := api.Group("/users", protected)
	users.Get("/", userController.GetUsers)
	users.Get("/:id", userController.GetUser)
	users.Post("/", admins, userController.CreateUser)
	users.Put("/:id", userController.UpdateUser)
	users.Delete("/:id", userController.DeleteUser)

	// Project routes
	projects := api.Group("/projects", protected)
	projects.Get("/", projectController.GetProjects)
	projects.Get("/:id", projectController.GetProject)
	projects.Get("/:id/stats", projectController.GetProjectStats)
	projects.Post("/", managers, projectController.CreateProject)
	projects.Put("/:id", managers, projectController.UpdateProject)
	projects.Delete("/:id", managers, projectController.DeleteProject)
	projects.Post("/:id/members", managers, projectController.AddMember)
	projects.Delete("/:id/members", managers, projectController.RemoveMember)

	// List routes
	lists := api.Group("/lists", protected)
	lists.Get("/project/:projectId", listController.GetListsByProject)
	lists.Post("/", managers, listController.CreateList)
	lists.Put("/:id", managers, listController.UpdateList)
	lists.Delete("/:id", managers, listController.DeleteList)

	// Task routes
	tasks := api.Group("/tasks", protected)
	tasks.Get("/", taskController.GetTasks)
	tasks.Get("/list/:listId", taskController.GetTasksByList)
	tasks.Get("/:id", taskController.GetTask)
	tasks.Post("/", taskController.CreateTask)
	tasks.Put("/:id", taskController.UpdateTask)
	tasks.Delete("/:id", taskController.DeleteTask)

	// Comment routes
	comments := api.Group("/comments", protected)
	comments.Get("/task/:taskId", commentController.GetCommentsByTask)
	comments.Post("/", commentController.CreateComment)
	comments.Put("/:id", commentController.UpdateComment)
	comments.Delete("/:id", commentController.DeleteComment)

	// WebSocket route for live boards
	if opts.Hub != nil {
		boardController := controller.NewBoardController(projectService, opts.Hub, log)
		api.Get("/ws/projects/:id", protected, boardController.Authorize, websocket.New(boardController.Stream))
	}

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "The requested resource was not found",
		})
	})

	log.Info("API routes initialized successfully")
}

func passThrough(c *fiber.Ctx) error {
	return c.Next()
}
