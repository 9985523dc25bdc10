package controller

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"taskflow/middleware"
	"taskflow/models"
	"taskflow/services"
	"taskflow/utils"
)

type CreateTaskRequest struct {
	ListID      uint    `json:"list_id" validate:"required"`
	Title       string  `json:"title" validate:"required,min=3,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Priority    string  `json:"priority" validate:"omitempty,taskpriority"`
	AssignedTo  *uint   `json:"assigned_to"`
	Deadline    *string `json:"deadline" validate:"omitempty,datetime=2006-01-02"`
}

type UpdateTaskRequest struct {
	Title       *string                   `json:"title" validate:"omitempty,min=3,max=200"`
	Description services.Optional[string] `json:"description"`
	Priority    *string                   `json:"priority" validate:"omitempty,taskpriority"`
	AssignedTo  services.Optional[uint]   `json:"assigned_to"`
	Deadline    services.Optional[string] `json:"deadline"`
	Status      *string                   `json:"status" validate:"omitempty,taskstatus"`
	Position    *int                      `json:"position" validate:"omitempty,min=0"`
	ListID      *uint                     `json:"list_id"`
}

type TaskController struct {
	Tasks  *services.TaskService
	Logger *logrus.Entry
}

func NewTaskController(tasks *services.TaskService, logger *logrus.Entry) *TaskController {
	return &TaskController{Tasks: tasks, Logger: logger.WithField("component", "tasks")}
}

// GetTasks lists every visible task matching the query filters.
func (tc *TaskController) GetTasks(c *fiber.Ctx) error {
	filter := services.TaskFilter{
		Search:   c.Query("search"),
		Priority: c.Query("priority"),
		Status:   c.Query("status"),
		Deadline: c.Query("deadline"),
	}
	if raw := c.Query("assigned_to"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid assigned_to", nil)
		}
		assignee := uint(id)
		filter.AssignedTo = &assignee
	}

	tasks, err := tc.Tasks.Search(c.UserContext(), middleware.Principal(c), filter)
	if err != nil {
		return respondError(c, tc.Logger, err)
	}
	return c.JSON(tasks)
}

// GetTasksByList returns the tasks of a list in position order
func (tc *TaskController) GetTasksByList(c *fiber.Ctx) error {
	listID, ok, err := paramID(c, "listId")
	if !ok {
		return err
	}
	tasks, err := tc.Tasks.ByList(c.UserContext(), middleware.Principal(c), listID)
	if err != nil {
		return respondError(c, tc.Logger, err)
	}
	return c.JSON(tasks)
}

// GetTask returns a single task by ID
func (tc *TaskController) GetTask(c *fiber.Ctx) error {
	id, ok, err := paramID(c, "id")
	if !ok {
		return err
	}
	task, err := tc.Tasks.Get(c.UserContext(), middleware.Principal(c), id)
	if err != nil {
		return respondError(c, tc.Logger, err)
	}
	return c.JSON(task)
}

// CreateTask creates a task at the end of a list
func (tc *TaskController) CreateTask(c *fiber.Ctx) error {
	var req CreateTaskRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	task, err := tc.Tasks.Create(c.UserContext(), middleware.Principal(c), services.NewTask{
		ListID:      req.ListID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    models.TaskPriority(req.Priority),
		AssignedTo:  req.AssignedTo,
		Deadline:    req.Deadline,
	})
	if err != nil {
		return respondError(c, tc.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.MessageResponse("Task created", "task", task))
}

// UpdateTask applies a partial task update
func (tc *TaskController) UpdateTask(c *fiber.Ctx) error {
	id, ok, err := paramID(c, "id")
	if !ok {
		return err
	}
	var req UpdateTaskRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	if err := maxLength("description", req.Description, 5000); err != nil {
		return respondError(c, tc.Logger, err)
	}

	in := services.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		AssignedTo:  req.AssignedTo,
		Deadline:    req.Deadline,
		Position:    req.Position,
		ListID:      req.ListID,
	}
	if req.Priority != nil {
		priority := models.TaskPriority(*req.Priority)
		in.Priority = &priority
	}
	if req.Status != nil {
		status := models.TaskStatus(*req.Status)
		in.Status = &status
	}

	task, err := tc.Tasks.Update(c.UserContext(), middleware.Principal(c), id, in)
	if err != nil {
		return respondError(c, tc.Logger, err)
	}
	return c.JSON(utils.MessageResponse("Task updated", "task", task))
}

// DeleteTask deletes a task and its comments
func (tc *TaskController) DeleteTask(c *fiber.Ctx) error {
	id, ok, err := paramID(c, "id")
	if !ok {
		return err
	}
	if err := tc.Tasks.Delete(c.UserContext(), middleware.Principal(c), id); err != nil {
		return respondError(c, tc.Logger, err)
	}
	return c.JSON(utils.MessageResponse("Task deleted", "", nil))
}
