package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"taskflow/middleware"
	"taskflow/models"
	"taskflow/services"
	"taskflow/utils"
)

type CreateProjectRequest struct {
	Name        string  `json:"name" validate:"required,min=3,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Deadline    *string `json:"deadline" validate:"omitempty,datetime=2006-01-02"`
}

type UpdateProjectRequest struct {
	Name        *string                   `json:"name" validate:"omitempty,min=3,max=200"`
	Description services.Optional[string] `json:"description"`
	Deadline    services.Optional[string] `json:"deadline"`
	Status      *string                   `json:"status" validate:"omitempty,projectstatus"`
}

type MemberRequest struct {
	UserID uint `json:"user_id" validate:"required"`
}

type ProjectController struct {
	Projects *services.ProjectService
	Logger   *logrus.Entry
}

func NewProjectController(projects *services.ProjectService, logger *logrus.Entry) *ProjectController {
	return &ProjectController{Projects: projects, Logger: logger.WithField("component", "projects")}
}

// GetProjects returns the projects visible to the caller
func (pc *ProjectController) GetProjects(c *fiber.Ctx) error {
	projects, err := pc.Projects.List(c.UserContext(), middleware.Principal(c))
	if err != nil {
		return respondError(c, pc.Logger, err)
	}
	return c.JSON(projects)
}

// GetProject returns a project with its creator, members and lists
func (pc *ProjectController) GetProject(c *fiber.Ctx) error {
	id, ok, err := paramID(c, "id")
	if !ok {
		return err
	}
	project, err := pc.Projects.Get(c.UserContext(), middleware.Principal(c), id)
	if err != nil {
		return respondError(c, pc.Logger, err)
	}
	return c.JSON(project)
}

// GetProjectStats returns task counts and progress for a project
func (pc *ProjectController) GetProjectStats(c *fiber.Ctx) error {
	id, ok, err := paramID(c, "id")
	if !ok {
		return err
	}
	stats, err := pc.Projects.Stats(c.UserContext(), middleware.Principal(c), id)
	if err != nil {
		return respondError(c, pc.Logger, err)
	}
	return c.JSON(stats)
}

// CreateProject creates a project with its default lists
func (pc *ProjectController) CreateProject(c *fiber.Ctx) error {
	var req CreateProjectRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	project, err := pc.Projects.Create(c.UserContext(), middleware.Principal(c), services.NewProject{
		Name:        req.Name,
		Description: req.Description,
		Deadline:    req.Deadline,
	})
	if err != nil {
		return respondError(c, pc.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.MessageResponse("Project created", "project", project))
}

// UpdateProject updates project details
func (pc *ProjectController) UpdateProject(c *fiber.Ctx) error {
	id, ok, err := paramID(c, "id")
	if !ok {
		return err
	}
	var req UpdateProjectRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	if err := maxLength("description", req.Description, 5000); err != nil {
		return respondError(c, pc.Logger, err)
	}

	in := services.ProjectUpdate{
		Name:        req.Name,
		Description: req.Description,
		Deadline:    req.Deadline,
	}
	if req.Status != nil {
		status := models.ProjectStatus(*req.Status)
		in.Status = &status
	}

	project, err := pc.Projects.Update(c.UserContext(), middleware.Principal(c), id, in)
	if err != nil {
		return respondError(c, pc.Logger, err)
	}
	return c.JSON(utils.MessageResponse("Project updated", "project", project))
}

// DeleteProject deletes a project with its lists, tasks and comments
func (pc *ProjectController) DeleteProject(c *fiber.Ctx) error {
	id, ok, err := paramID(c, "id")
	if !ok {
		return err
	}
	if err := pc.Projects.Delete(c.UserContext(), middleware.Principal(c), id); err != nil {
		return respondError(c, pc.Logger, err)
	}
	return c.JSON(utils.MessageResponse("Project deleted", "", nil))
}

// AddMember adds a user to a project
func (pc *ProjectController) AddMember(c *fiber.Ctx) error {
	id, ok, err := paramID(c, "id")
	if !ok {
		return err
	}
	var req MemberRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	member, err := pc.Projects.AddMember(c.UserContext(), middleware.Principal(c), id, req.UserID)
	if err != nil {
		return respondError(c, pc.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.MessageResponse("Member added", "member", member))
}

// RemoveMember takes the user in the body, matching the board client.
func (pc *ProjectController) RemoveMember(c *fiber.Ctx) error {
	id, ok, err := paramID(c, "id")
	if !ok {
		return err
	}
	var req MemberRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	reassigned, err := pc.Projects.RemoveMember(c.UserContext(), middleware.Principal(c), id, req.UserID)
	if err != nil {
		return respondError(c, pc.Logger, err)
	}
	return c.JSON(fiber.Map{
		"message":          "Member removed",
		"reassigned_tasks": reassigned,
	})
}
